// Package engines wraps the external download and transcription tools behind
// narrow interfaces. The orchestrator treats both as opaque.
package engines

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ivishnuraj/vmaker/internal/media"
)

// ProgressSink receives byte progress. total is 0 when unknown. It is called
// synchronously on the download goroutine.
type ProgressSink func(downloaded, total int64)

// Downloader fetches a remote video into outPath.
type Downloader interface {
	Download(ctx context.Context, url, outPath string, sink ProgressSink) error
}

const progressPrefix = "vmaker-progress:"

// YTDLP downloads with the yt-dlp command line tool.
type YTDLP struct {
	bin    string
	logger *slog.Logger
}

func NewYTDLP(bin string, logger *slog.Logger) *YTDLP {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &YTDLP{bin: bin, logger: logger}
}

func (y *YTDLP) args(url, outPath string) []string {
	return []string{
		"--newline",
		"--no-playlist",
		"--no-part",
		"-f", "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/b",
		"--merge-output-format", "mp4",
		"--progress-template",
		"download:" + progressPrefix + "%(progress.downloaded_bytes)s/%(progress.total_bytes)s/%(progress.total_bytes_estimate)s",
		"-o", outPath,
		url,
	}
}

func (y *YTDLP) Download(ctx context.Context, url, outPath string, sink ProgressSink) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, y.bin, y.args(url, outPath)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := media.NewTailBuffer(8 * 1024)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", y.bin, err)
	}

	var lastLogged int64
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		downloaded, total, ok := ParseProgressLine(scanner.Text())
		if !ok {
			continue
		}
		if sink != nil {
			sink(downloaded, total)
		}
		if downloaded-lastLogged >= 50*1024*1024 {
			lastLogged = downloaded
			y.logger.Debug("download progress",
				"downloaded", humanize.Bytes(uint64(downloaded)),
				"total", humanize.Bytes(uint64(total)),
			)
		}
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := stderr.LastLine()
			if msg == "" {
				msg = fmt.Sprintf("exit code %d", exitErr.ExitCode())
			}
			return fmt.Errorf("yt-dlp: %s", msg)
		}
		return fmt.Errorf("yt-dlp: %w", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("yt-dlp produced no output: %w", err)
	}
	y.logger.Info("download complete", "size", humanize.Bytes(uint64(info.Size())))
	return nil
}

// ParseProgressLine parses one progress-template line into downloaded and
// total bytes. The estimate is used when the exact total is unavailable.
func ParseProgressLine(line string) (downloaded, total int64, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, progressPrefix) {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimPrefix(line, progressPrefix), "/")
	if len(parts) != 3 {
		return 0, 0, false
	}
	downloaded, ok = parseBytes(parts[0])
	if !ok {
		return 0, 0, false
	}
	if t, ok := parseBytes(parts[1]); ok && t > 0 {
		total = t
	} else if t, ok := parseBytes(parts[2]); ok && t > 0 {
		total = t
	}
	return downloaded, total, true
}

func parseBytes(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" || s == "None" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}
