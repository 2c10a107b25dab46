package ui

// iconBytes is a 16x16 PNG.
var iconBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff, 0x61, 0x00, 0x00, 0x00,
	0x33, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda, 0x63, 0x60, 0xa0, 0x06, 0xb8,
	0x63, 0x63, 0xf4, 0x9f, 0x1c, 0x3c, 0xc4, 0x0c, 0x80, 0x01, 0xb2, 0x0c,
	0x40, 0x06, 0x24, 0x19, 0x80, 0x0d, 0x10, 0x65, 0x00, 0x3e, 0x40, 0x1f,
	0x03, 0x28, 0xf6, 0x02, 0xd5, 0x02, 0x91, 0x6a, 0xd1, 0x38, 0x04, 0x92,
	0x32, 0x25, 0x00, 0x00, 0xf6, 0x54, 0xf9, 0xba, 0xec, 0x47, 0xd7, 0x27,
	0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
