package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ivishnuraj/vmaker/internal/events"
)

type downloadHandler struct {
	deps HandlerDeps
}

func (h *downloadHandler) Handle(ctx context.Context, run *Run) (map[string]any, error) {
	url := run.Job().String("url")
	if url == "" {
		return nil, invalid("url", "is required")
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	filename := fmt.Sprintf("%d_%s.mp4", h.deps.Now().Unix(), suffix)
	out := filepath.Join(h.deps.Workspace.Downloads, filename)

	// Progress stays at 0 until completion when the size is unknown.
	sink := func(downloaded, total int64) {
		if total <= 0 {
			return
		}
		run.Progress(float64(downloaded)/float64(total)*100, events.TypeDownloadProgress)
	}
	if err := h.deps.Downloader.Download(ctx, url, out, sink); err != nil {
		return nil, &EngineError{Engine: "download", Err: err}
	}

	run.Artifact(out)
	return map[string]any{"filename": filename, "path": out}, nil
}
