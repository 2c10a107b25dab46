// Package overlay turns text and emoji overlay descriptors into ffmpeg
// drawtext filter expressions.
package overlay

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	TypeText  = "text"
	TypeEmoji = "emoji"
)

const (
	defaultTextFontSize  = 28
	defaultEmojiFontSize = 48
)

// Overlay is one positioned text or emoji element. Y is either a vertical
// anchor word (top, center, bottom) or a literal drawtext expression.
type Overlay struct {
	Type        string `json:"type" yaml:"type"`
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
	Emoji       string `json:"emoji,omitempty" yaml:"emoji,omitempty"`
	X           string `json:"x,omitempty" yaml:"x,omitempty"`
	Y           string `json:"y,omitempty" yaml:"y,omitempty"`
	FontFile    string `json:"font,omitempty" yaml:"font,omitempty"`
	FontSize    int    `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	FontColor   string `json:"textColor,omitempty" yaml:"textColor,omitempty"`
	Box         bool   `json:"box,omitempty" yaml:"box,omitempty"`
	BoxColor    string `json:"boxColor,omitempty" yaml:"boxColor,omitempty"`
	BoxBorder   int    `json:"boxBorder,omitempty" yaml:"boxBorder,omitempty"`
	Shadow      bool   `json:"shadow,omitempty" yaml:"shadow,omitempty"`
	ShadowColor string `json:"shadowColor,omitempty" yaml:"shadowColor,omitempty"`
	ShadowX     int    `json:"shadowX,omitempty" yaml:"shadowX,omitempty"`
	ShadowY     int    `json:"shadowY,omitempty" yaml:"shadowY,omitempty"`
	Stroke      bool   `json:"stroke,omitempty" yaml:"stroke,omitempty"`
	StrokeColor string `json:"strokeColor,omitempty" yaml:"strokeColor,omitempty"`
	StrokeWidth int    `json:"strokeWidth,omitempty" yaml:"strokeWidth,omitempty"`
}

// Content returns the string the overlay draws.
func (o Overlay) Content() string {
	if o.Type == TypeEmoji {
		return o.Emoji
	}
	return o.Text
}

// RenderFontSize is the font size passed to drawtext.
func (o Overlay) RenderFontSize() int {
	if o.FontSize > 0 {
		return o.FontSize
	}
	if o.Type == TypeEmoji {
		return defaultEmojiFontSize
	}
	return defaultTextFontSize
}

// FromMap decodes an overlay from a loosely typed document. Both the camelCase
// keys (fontSize, textColor, boxColor) and the flat lowercase keys (fontsize,
// fontcolor, boxcolor, fontfile) are accepted. Setting a stroke or shadow
// color implies the option is on.
func FromMap(m map[string]any) Overlay {
	o := Overlay{
		Type:        str(m, "type"),
		Text:        str(m, "text"),
		Emoji:       str(m, "emoji"),
		X:           str(m, "x"),
		Y:           str(m, "y"),
		FontFile:    str(m, "font", "fontfile", "fontFile"),
		FontSize:    num(m, "fontSize", "fontsize", "font_size"),
		FontColor:   str(m, "textColor", "fontcolor", "fontColor", "color"),
		Box:         boolean(m, "box"),
		BoxColor:    str(m, "boxColor", "boxcolor"),
		BoxBorder:   num(m, "boxBorder", "boxborder", "boxborderw"),
		Shadow:      boolean(m, "shadow"),
		ShadowColor: str(m, "shadowColor", "shadowcolor"),
		ShadowX:     num(m, "shadowX", "shadowx"),
		ShadowY:     num(m, "shadowY", "shadowy"),
		Stroke:      boolean(m, "stroke"),
		StrokeColor: str(m, "strokeColor", "strokecolor"),
		StrokeWidth: num(m, "strokeWidth", "strokewidth"),
	}
	if o.Type == "" {
		if o.Emoji != "" && o.Text == "" {
			o.Type = TypeEmoji
		} else {
			o.Type = TypeText
		}
	}
	if o.ShadowColor != "" {
		o.Shadow = true
	}
	if o.StrokeColor != "" {
		o.Stroke = true
	}
	return o
}

// FromList decodes a list of overlay documents, skipping entries that are not
// objects.
func FromList(v any) []Overlay {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Overlay, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, FromMap(m))
		}
	}
	return out
}

// ToMap encodes the overlay into its canonical document form.
func (o Overlay) ToMap() map[string]any {
	m := map[string]any{"type": o.Type}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	putInt := func(k string, v int) {
		if v != 0 {
			m[k] = v
		}
	}
	put("text", o.Text)
	put("emoji", o.Emoji)
	put("x", o.X)
	put("y", o.Y)
	put("font", o.FontFile)
	putInt("fontSize", o.FontSize)
	put("textColor", o.FontColor)
	if o.Box {
		m["box"] = true
	}
	put("boxColor", o.BoxColor)
	putInt("boxBorder", o.BoxBorder)
	if o.Shadow {
		m["shadow"] = true
	}
	put("shadowColor", o.ShadowColor)
	putInt("shadowX", o.ShadowX)
	putInt("shadowY", o.ShadowY)
	if o.Stroke {
		m["stroke"] = true
	}
	put("strokeColor", o.StrokeColor)
	putInt("strokeWidth", o.StrokeWidth)
	return m
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

func num(m map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		case int64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

func boolean(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// EscapeText escapes a string for use inside a quoted drawtext text option.
func EscapeText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	return r.Replace(s)
}

// ParseResolution accepts "WxH" or "W:H". Empty and "original" report false.
func ParseResolution(s string) (w, h int, ok bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "original" {
		return 0, 0, false
	}
	sep := "x"
	if strings.Contains(s, ":") {
		sep = ":"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// ScaleFilter returns the scale filter for a resolution string, or "" when
// the resolution is absent, "original" or malformed.
func ScaleFilter(resolution string) string {
	w, h, ok := ParseResolution(resolution)
	if !ok {
		return ""
	}
	return fmt.Sprintf("scale=%d:%d", w, h)
}
