package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ivishnuraj/vmaker/internal/clips"
	"github.com/ivishnuraj/vmaker/internal/engines"
	"github.com/ivishnuraj/vmaker/internal/jobs"
)

// Transcoder runs one ffmpeg invocation, reporting completion fractions.
// *media.Runner satisfies it.
type Transcoder interface {
	Run(ctx context.Context, args []string, totalSeconds float64, onProgress func(float64)) error
}

// DurationProber reports a media file's length in seconds.
// *media.Prober satisfies it.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Workspace holds the directory roots handlers read from and write to.
type Workspace struct {
	Downloads   string
	Clips       string
	Transcripts string
	Font        string
}

type HandlerDeps struct {
	Downloader  engines.Downloader
	Transcriber engines.Transcriber
	Transcoder  Transcoder
	Prober      DurationProber
	Clips       clips.Repository
	Workspace   Workspace
	Now         func() time.Time
}

// RegisterHandlers binds the handler for every job kind to s.
func RegisterHandlers(s *Scheduler, d HandlerDeps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	s.Register(jobs.KindDownload, &downloadHandler{deps: d})
	s.Register(jobs.KindTranscribe, &transcribeHandler{deps: d})
	s.Register(jobs.KindClip, &clipHandler{deps: d})
	s.Register(jobs.KindTemplateClip, &templateClipHandler{deps: d})
	s.Register(jobs.KindMerge, &mergeHandler{deps: d})
}

// inputPath resolves a downloaded source video and checks it exists.
func (w Workspace) inputPath(filename string) (string, error) {
	path, err := within(w.Downloads, filename)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", &NotFoundError{What: "input file", Name: filename}
	} else if err != nil {
		return "", fmt.Errorf("stat input: %w", err)
	}
	return path, nil
}

// within joins name onto root, rejecting names that escape it.
func within(root, name string) (string, error) {
	if name == "" {
		return "", invalid("filename", "is required")
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, 0) {
		return "", invalid("filename", "invalid name %q", name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", invalid("filename", "invalid name %q", name)
	}
	return filepath.Join(root, clean), nil
}

// trimArgs returns the ffmpeg arguments shared by clip and template-clip.
func trimArgs(input, filter, output string, start, duration float64) []string {
	return []string{
		"-y",
		"-ss", formatSeconds(start),
		"-i", input,
		"-t", formatSeconds(duration),
		"-vf", filter,
		"-c:v", "libx264",
		"-c:a", "aac",
		output,
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// stem strips the directory and extension from name.
func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
