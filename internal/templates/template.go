// Package templates stores named overlay templates used by template clips.
package templates

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ivishnuraj/vmaker/internal/overlay"
)

const (
	ModeVertical  = "vertical"
	ModeFullWidth = "full_width"

	// fullWidthName selects letterboxing for documents that predate Mode.
	fullWidthName = "mobile_full_width"

	DefaultDuration   = 10.0
	DefaultResolution = "1080:1920"
	defaultOutputName = "template_clip_{timestamp}.mp4"
)

// Template is a named clip layout: orientation, window and overlays.
type Template struct {
	Name       string            `json:"name" yaml:"name"`
	Resolution string            `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Mode       string            `json:"mode,omitempty" yaml:"mode,omitempty"`
	Flip       bool              `json:"flip,omitempty" yaml:"flip,omitempty"`
	Start      float64           `json:"start,omitempty" yaml:"start,omitempty"`
	Duration   float64           `json:"duration,omitempty" yaml:"duration,omitempty"`
	OutputName string            `json:"output_name,omitempty" yaml:"output_name,omitempty"`
	Overlays   []overlay.Overlay `json:"overlays,omitempty" yaml:"overlays,omitempty"`
	Text       string            `json:"text,omitempty" yaml:"text,omitempty"`
	FontSize   int               `json:"font_size,omitempty" yaml:"font_size,omitempty"`
}

// FromDocument builds a template from a decoded JSON or YAML document.
// "texts" is accepted as an alias for "overlays".
func FromDocument(name string, doc map[string]any) Template {
	t := Template{
		Name:       name,
		Resolution: stringField(doc, "resolution"),
		Mode:       strings.ToLower(stringField(doc, "mode")),
		Flip:       boolField(doc, "flip"),
		OutputName: stringField(doc, "output_name"),
		Text:       stringField(doc, "text"),
	}
	if n := stringField(doc, "name"); n != "" && name == "" {
		t.Name = n
	}
	if v, ok := floatField(doc, "start"); ok {
		t.Start = v
	}
	if v, ok := floatField(doc, "duration"); ok {
		t.Duration = v
	}
	if v, ok := floatField(doc, "font_size"); ok {
		t.FontSize = int(v)
	}
	if raw, ok := doc["overlays"]; ok {
		t.Overlays = overlay.FromList(raw)
	} else if raw, ok := doc["texts"]; ok {
		t.Overlays = overlay.FromList(raw)
	}
	return t
}

// Clone returns a copy that shares no overlay storage with t.
func (t Template) Clone() Template {
	if t.Overlays != nil {
		t.Overlays = append([]overlay.Overlay(nil), t.Overlays...)
	}
	return t
}

// FullWidth reports whether the template letterboxes instead of cropping.
func (t Template) FullWidth() bool {
	return t.Mode == ModeFullWidth || t.Name == fullWidthName
}

// EffectiveResolution returns the resolution, defaulting to portrait.
func (t Template) EffectiveResolution() string {
	if t.Resolution == "" {
		return DefaultResolution
	}
	return t.Resolution
}

// EffectiveDuration returns the clip length, defaulting to ten seconds.
func (t Template) EffectiveDuration() float64 {
	if t.Duration == 0 {
		return DefaultDuration
	}
	return t.Duration
}

// Chain converts the template into a filter chain description.
func (t Template) Chain() overlay.TemplateChain {
	return overlay.TemplateChain{
		Flip:           t.Flip,
		Overlays:       t.Overlays,
		Resolution:     t.EffectiveResolution(),
		FullWidth:      t.FullWidth(),
		LegacyText:     t.Text,
		LegacyFontSize: t.FontSize,
	}
}

// OutputFilename expands {timestamp} in the output name and ensures an .mp4
// extension.
func (t Template) OutputFilename(timestampMillis int64) string {
	name := t.OutputName
	if name == "" {
		name = defaultOutputName
	}
	name = strings.ReplaceAll(name, "{timestamp}", strconv.FormatInt(timestampMillis, 10))
	if !strings.HasSuffix(strings.ToLower(name), ".mp4") {
		name += ".mp4"
	}
	return name
}

// Overrides are per-request adjustments applied to a private template copy.
// Nil fields leave the template value untouched.
type Overrides struct {
	Start      *float64
	End        *float64
	Duration   *float64
	Overlays   []overlay.Overlay
	Flip       *bool
	Resolution *string
	OutputName *string
}

// Apply returns a copy of t with the overrides applied. End wins over
// Duration when both are given.
func (t Template) Apply(o Overrides) Template {
	out := t.Clone()
	if o.Start != nil {
		out.Start = *o.Start
	}
	if o.Duration != nil {
		out.Duration = *o.Duration
	}
	if o.End != nil {
		out.Duration = *o.End - out.Start
	}
	if o.Overlays != nil {
		out.Overlays = append([]overlay.Overlay(nil), o.Overlays...)
	}
	if o.Flip != nil {
		out.Flip = *o.Flip
	}
	if o.Resolution != nil {
		out.Resolution = *o.Resolution
	}
	if o.OutputName != nil {
		out.OutputName = *o.OutputName
	}
	return out
}

// Validate checks the fields a clip cannot be produced without.
func (t Template) Validate() error {
	if t.Start < 0 {
		return fmt.Errorf("start must not be negative")
	}
	if t.EffectiveDuration() <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if t.Mode != "" && t.Mode != ModeVertical && t.Mode != ModeFullWidth {
		return fmt.Errorf("unknown mode %q", t.Mode)
	}
	return nil
}

func stringField(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func floatField(doc map[string]any, key string) (float64, bool) {
	switch v := doc[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func boolField(doc map[string]any, key string) bool {
	switch v := doc[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
