package overlay

import (
	"fmt"
	"strings"
)

// VerticalFilter center-crops to 9:16 and scales to 1080x1920.
func VerticalFilter() string {
	return "crop=in_h*9/16:in_h:(in_w-(in_h*9/16))/2:0,scale=1080:1920"
}

// FullWidthFilter letterboxes the full frame width into 1080x1920.
func FullWidthFilter() string {
	return "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black"
}

// Drawtext renders one placed overlay. defaultFont is used when the overlay
// does not name a font file.
func Drawtext(p Placement, defaultFont string) string {
	o := p.Overlay
	font := o.FontFile
	if font == "" {
		font = defaultFont
	}
	color := o.FontColor
	if color == "" {
		color = "white"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "drawtext=text='%s'", EscapeText(o.Content()))
	if font != "" {
		fmt.Fprintf(&b, ":fontfile=%s", font)
	}
	fmt.Fprintf(&b, ":fontsize=%d:fontcolor=%s:x=%s:y=%s", o.RenderFontSize(), color, p.X, p.Y)

	if o.Box {
		boxColor := o.BoxColor
		if boxColor == "" {
			boxColor = "black@0.6"
		}
		border := o.BoxBorder
		if border == 0 {
			border = 10
		}
		fmt.Fprintf(&b, ":box=1:boxcolor=%s:boxborderw=%d", boxColor, border)
	}

	if o.Shadow {
		shadowColor := o.ShadowColor
		if shadowColor == "" {
			shadowColor = "black@0.8"
		}
		sx, sy := o.ShadowX, o.ShadowY
		if sx == 0 && sy == 0 {
			sx, sy = 2, 2
		}
		fmt.Fprintf(&b, ":shadowcolor=%s:shadowx=%d:shadowy=%d", shadowColor, sx, sy)
	}

	if o.Stroke {
		strokeColor := o.StrokeColor
		if strokeColor == "" {
			strokeColor = "black"
		}
		width := o.StrokeWidth
		if width == 0 {
			width = 1
		}
		fmt.Fprintf(&b, ":bordercolor=%s:borderw=%d", strokeColor, width)
	}
	return b.String()
}

// CaptionOverlay is the single boxed caption used by plain clips.
func CaptionOverlay(text string) Placement {
	return Placement{
		Overlay: Overlay{
			Type:      TypeText,
			Text:      text,
			FontSize:  defaultTextFontSize,
			FontColor: "white",
			Box:       true,
			BoxColor:  "black@0.6",
			BoxBorder: 10,
		},
		X: "(w-text_w)/2",
		Y: "h-200",
	}
}

// ClipFilterChain builds the filter for a plain clip: optional mirror,
// optional caption, then the vertical crop.
func ClipFilterChain(flip bool, text, font string) string {
	var filters []string
	if flip {
		filters = append(filters, "hflip")
	}
	if text != "" {
		filters = append(filters, Drawtext(CaptionOverlay(text), font))
	}
	filters = append(filters, VerticalFilter())
	return strings.Join(filters, ",")
}

// TemplateChain describes a template-driven filter chain.
type TemplateChain struct {
	Flip       bool
	Overlays   []Overlay
	Resolution string
	FullWidth  bool
	// Legacy single-caption templates.
	LegacyText     string
	LegacyFontSize int
}

// TemplateFilterChain builds the filter for a template clip: optional mirror,
// auto-stacked overlays, optional scale, then the orientation filter.
func TemplateFilterChain(c TemplateChain, font string) string {
	var filters []string
	if c.Flip {
		filters = append(filters, "hflip")
	}

	height := FrameHeight
	if _, h, ok := ParseResolution(c.Resolution); ok {
		height = h
	}

	switch {
	case len(c.Overlays) > 0:
		for _, p := range StackOverlays(height, c.Overlays) {
			if p.Overlay.Content() == "" {
				continue
			}
			filters = append(filters, Drawtext(p, font))
		}
	case c.LegacyText != "":
		p := CaptionOverlay(c.LegacyText)
		if c.LegacyFontSize > 0 {
			p.Overlay.FontSize = c.LegacyFontSize
		}
		filters = append(filters, Drawtext(p, font))
	}

	if scale := ScaleFilter(c.Resolution); scale != "" {
		filters = append(filters, scale)
	}

	if c.FullWidth {
		filters = append(filters, FullWidthFilter())
	} else {
		filters = append(filters, VerticalFilter())
	}
	return strings.Join(filters, ",")
}
