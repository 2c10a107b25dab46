package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ivishnuraj/vmaker/internal/clips"
	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/overlay"
)

const defaultClipStem = "clip"

type clipHandler struct {
	deps HandlerDeps
}

func (h *clipHandler) Handle(ctx context.Context, run *Run) (map[string]any, error) {
	job := run.Job()
	filename := job.String("filename")
	input, err := h.deps.Workspace.inputPath(filename)
	if err != nil {
		return nil, err
	}

	start, okStart := job.Float("start")
	end, okEnd := job.Float("end")
	duration := end - start
	if !okStart || !okEnd || duration <= 0 {
		return nil, &ValidationError{Message: "invalid start/end"}
	}

	outStem := defaultClipStem
	if name := job.String("output_name"); name != "" {
		outStem = stem(name)
	}
	dir := filepath.Join(h.deps.Workspace.Clips, clips.VideoBase(filename))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create clip dir: %w", err)
	}
	out := filepath.Join(dir, fmt.Sprintf("%s_%d.mp4", outStem, h.deps.Now().UnixMilli()))

	text := job.String("text")
	filter := overlay.ClipFilterChain(job.Bool("flip"), text, h.deps.Workspace.Font)
	args := trimArgs(input, filter, out, start, duration)

	err = h.deps.Transcoder.Run(ctx, args, duration, func(frac float64) {
		run.Progress(frac*100, events.TypeClipProgress)
	})
	if err != nil {
		removePartial(run, out)
		return nil, err
	}

	recordClip(ctx, run, h.deps.Clips, &clips.Metadata{
		SourceVideo: filename,
		ClipFile:    filepath.Base(out),
		Start:       start,
		End:         end,
		Text:        text,
		Path:        out,
		JobID:       job.ID,
	})

	run.Artifact(out)
	return map[string]any{"clip_file": out}, nil
}

// removePartial deletes whatever a failed ffmpeg run left at path so clip
// listings never show it.
func removePartial(run *Run, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		run.Logger().Warn("failed to remove partial output", "path", filepath.Base(path), "error", err)
	}
}

// recordClip stores clip provenance. A failure is logged; the clip itself
// was produced.
func recordClip(ctx context.Context, run *Run, repo clips.Repository, m *clips.Metadata) {
	if repo == nil {
		return
	}
	if err := repo.Upsert(ctx, m); err != nil {
		run.Logger().Warn("failed to record clip metadata", "clip", m.ClipFile, "error", err)
	}
}
