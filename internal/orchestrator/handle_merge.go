package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/overlay"
)

type mergeHandler struct {
	deps HandlerDeps
}

func (h *mergeHandler) Handle(ctx context.Context, run *Run) (map[string]any, error) {
	job := run.Job()
	names := stringList(job.Params["clips"])
	if len(names) == 0 {
		return nil, invalid("clips", "at least one clip is required")
	}
	outName := job.String("output_name")
	if outName == "" {
		return nil, invalid("output_name", "is required")
	}

	root := h.deps.Workspace.Clips
	inputs := make([]string, 0, len(names))
	for _, name := range names {
		path, err := within(root, name)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{What: "clip", Name: name}
		} else if err != nil {
			return nil, fmt.Errorf("stat clip: %w", err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve clip path: %w", err)
		}
		inputs = append(inputs, abs)
	}

	listFile, err := writeConcatList(root, stem(outName), inputs)
	if err != nil {
		return nil, err
	}
	defer os.Remove(listFile)

	// Unprobeable inputs contribute nothing, so progress may run short.
	total := 0.0
	if h.deps.Prober != nil {
		for _, in := range inputs {
			d, err := h.deps.Prober.Duration(ctx, in)
			if err != nil {
				run.Logger().Debug("probe failed, excluding from total", "clip", filepath.Base(in), "error", err)
				continue
			}
			total += d
		}
	}

	if !strings.HasSuffix(strings.ToLower(outName), ".mp4") {
		outName += ".mp4"
	}
	out := filepath.Join(root, filepath.Base(outName))
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-vf", overlay.VerticalFilter(),
		"-c:v", "libx264",
		"-c:a", "aac",
		out,
	}
	err = h.deps.Transcoder.Run(ctx, args, total, func(frac float64) {
		run.Progress(frac*100, events.TypeMergeProgress)
	})
	if err != nil {
		removePartial(run, out)
		return nil, err
	}

	run.Artifact(out)
	return map[string]any{"merged_file": out}, nil
}

// writeConcatList writes an ffmpeg concat demuxer list into dir and returns
// its path.
func writeConcatList(dir, outStem string, inputs []string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create clips dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "merge_"+outStem+"_*.txt")
	if err != nil {
		return "", fmt.Errorf("create merge list: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, in := range inputs {
		fmt.Fprintf(w, "file '%s'\n", strings.ReplaceAll(in, "'", `'\''`))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write merge list: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close merge list: %w", err)
	}
	return f.Name(), nil
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
