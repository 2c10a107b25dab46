package orchestrator

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivishnuraj/vmaker/internal/events"
)

const (
	// Progress step per segment when the source duration is unknown.
	transcribeStep    = 5.0
	transcribeCeiling = 99.0
	previewRunes      = 400
)

type transcribeHandler struct {
	deps HandlerDeps
}

func (h *transcribeHandler) Handle(ctx context.Context, run *Run) (map[string]any, error) {
	filename := run.Job().String("filename")
	input, err := h.deps.Workspace.inputPath(filename)
	if err != nil {
		return nil, err
	}

	total := 0.0
	if h.deps.Prober != nil {
		d, err := h.deps.Prober.Duration(ctx, input)
		if err != nil {
			run.Logger().Warn("duration probe failed, progress will be estimated", "error", err)
		} else {
			total = d
		}
	}

	segments, err := h.deps.Transcriber.Transcribe(ctx, input)
	if err != nil {
		return nil, &EngineError{Engine: "transcribe", Err: err}
	}
	defer segments.Close()

	var lines []string
	maxEnd, percent := 0.0, 0.0
	for {
		seg, ok := segments.Next()
		if !ok {
			break
		}
		lines = append(lines, fmt.Sprintf("[%0.2f] %s", seg.Start, seg.Text))
		run.Emit(events.TypeTranscriptSegment, map[string]any{"segment": seg})

		maxEnd = math.Max(maxEnd, seg.End)
		if total > 0 {
			percent = math.Min(100, maxEnd/total*100)
		} else {
			percent = math.Min(transcribeCeiling, percent+transcribeStep)
		}
		run.Progress(percent, "")
	}
	if err := segments.Err(); err != nil {
		return nil, &EngineError{Engine: "transcribe", Err: err}
	}

	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if err := os.MkdirAll(h.deps.Workspace.Transcripts, 0755); err != nil {
		return nil, fmt.Errorf("create transcripts dir: %w", err)
	}
	out := filepath.Join(h.deps.Workspace.Transcripts, filepath.Base(filename)+".txt")
	if err := os.WriteFile(out, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}
	run.Logger().Info("transcript written", "segments", len(lines), "path", out)

	run.Artifact(out)
	return map[string]any{"transcript_file": out, "text_preview": preview(text, previewRunes)}, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
