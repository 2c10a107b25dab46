package overlay

import (
	"strconv"
	"strings"
)

const (
	SafeTop    = 120
	SafeBottom = 120
	StackPad   = 40

	// FrameHeight is the portrait output height used when no resolution is given.
	FrameHeight = 1080 * 16 / 9

	estimateFontSize = 50
)

type Anchor string

const (
	AnchorTop    Anchor = "top"
	AnchorCenter Anchor = "center"
	AnchorBottom Anchor = "bottom"
	AnchorNone   Anchor = ""
)

// Placement is an overlay with its resolved drawtext position.
type Placement struct {
	Overlay Overlay
	Anchor  Anchor
	X       string
	Y       string
}

// AnchorFor classifies a y value. Anchor words are matched by substring
// first, so "top-left" or "Top 1" still stack at the top. A value with no
// anchor word is passed through as a drawtext expression only when it looks
// like one; anything else falls back to bottom.
func AnchorFor(y string) Anchor {
	y = strings.ToLower(strings.TrimSpace(y))
	switch {
	case strings.Contains(y, "top"):
		return AnchorTop
	case strings.Contains(y, "mid"), strings.Contains(y, "center"), strings.Contains(y, "centre"):
		return AnchorCenter
	case strings.Contains(y, "bottom"):
		return AnchorBottom
	case isExpression(y):
		return AnchorNone
	default:
		return AnchorBottom
	}
}

// drawtext variables an expression may start with, longest first.
var exprVars = []string{"main_h", "main_w", "text_h", "text_w", "line_h", "th", "tw", "lh", "h", "w"}

func isExpression(y string) bool {
	if y == "" {
		return false
	}
	if c := y[0]; (c >= '0' && c <= '9') || c == '(' || c == '-' || c == '.' {
		return true
	}
	for _, v := range exprVars {
		rest, ok := strings.CutPrefix(y, v)
		if !ok {
			continue
		}
		if rest == "" {
			return true
		}
		c := rest[0]
		return !(c >= 'a' && c <= 'z') && c != '_'
	}
	return false
}

// EstimatedHeight is the rendered height assumed for stacking.
func EstimatedHeight(fontSize int) int {
	if fontSize <= 0 {
		fontSize = estimateFontSize
	}
	return int(float64(fontSize) * 1.4)
}

// StackOverlays places anchored overlays inside the safe zones of a frame of
// the given height in a single pass. Top overlays grow downward from the top
// margin, center overlays grow downward from the midpoint and bottom overlays
// grow upward from the bottom margin. Each placed overlay advances its
// anchor's offset by its estimated height plus a fixed pad.
func StackOverlays(height int, overlays []Overlay) []Placement {
	if height <= 0 {
		height = FrameHeight
	}
	center := height / 2

	var topStack, centerStack, bottomStack int
	out := make([]Placement, 0, len(overlays))
	for _, o := range overlays {
		p := Placement{Overlay: o, X: xExpr(o.X)}
		anchor := AnchorFor(o.Y)
		p.Anchor = anchor

		est := EstimatedHeight(o.FontSize)
		switch anchor {
		case AnchorNone:
			p.Y = o.Y
		case AnchorTop:
			p.Y = strconv.Itoa(SafeTop + topStack)
			topStack += est + StackPad
		case AnchorCenter:
			p.Y = strconv.Itoa(center + centerStack)
			centerStack += est + StackPad
		default:
			p.Y = strconv.Itoa(height - SafeBottom - bottomStack - est)
			bottomStack += est + StackPad
		}
		out = append(out, p)
	}
	return out
}

func xExpr(x string) string {
	switch strings.ToLower(strings.TrimSpace(x)) {
	case "", "center", "centre", "middle":
		return "(w-text_w)/2"
	case "left":
		return "40"
	case "right":
		return "w-text_w-40"
	default:
		return x
	}
}
