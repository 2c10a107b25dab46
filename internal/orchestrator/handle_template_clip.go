package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ivishnuraj/vmaker/internal/clips"
	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/overlay"
	"github.com/ivishnuraj/vmaker/internal/templates"
)

type templateClipHandler struct {
	deps HandlerDeps
}

func (h *templateClipHandler) Handle(ctx context.Context, run *Run) (map[string]any, error) {
	job := run.Job()
	tpl, ok := job.Params["template"].(templates.Template)
	if !ok {
		return nil, invalid("template", "is required")
	}

	filename := job.String("filename")
	input, err := h.deps.Workspace.inputPath(filename)
	if err != nil {
		return nil, err
	}

	duration := tpl.EffectiveDuration()
	if tpl.Start < 0 || duration <= 0 {
		return nil, &ValidationError{Message: "invalid start/end"}
	}

	dir := filepath.Join(h.deps.Workspace.Clips, clips.VideoBase(filename))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create clip dir: %w", err)
	}
	out := filepath.Join(dir, tpl.OutputFilename(h.deps.Now().UnixMilli()))

	filter := overlay.TemplateFilterChain(tpl.Chain(), h.deps.Workspace.Font)
	args := trimArgs(input, filter, out, tpl.Start, duration)

	err = h.deps.Transcoder.Run(ctx, args, duration, func(frac float64) {
		run.Progress(frac*100, events.TypeTemplateProgress)
	})
	if err != nil {
		removePartial(run, out)
		return nil, err
	}

	recordClip(ctx, run, h.deps.Clips, &clips.Metadata{
		SourceVideo: filename,
		ClipFile:    filepath.Base(out),
		Start:       tpl.Start,
		End:         tpl.Start + duration,
		Text:        tpl.Text,
		Overlays:    tpl.Overlays,
		Template:    tpl.Name,
		Path:        out,
		JobID:       job.ID,
	})

	run.Artifact(out)
	return map[string]any{"clip_file": out, "template": tpl.Name}, nil
}
