package engines

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/ivishnuraj/vmaker/internal/media"
)

// Segment is one timed piece of transcribed text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SegmentIterator is a blocking pull stream of segments. It is consumed once;
// it cannot be restarted mid-stream.
type SegmentIterator interface {
	// Next blocks until a segment is available. It returns false at the end
	// of the stream or on error; check Err afterwards.
	Next() (Segment, bool)
	Err() error
	Close() error
}

// Transcriber turns a local media file into timed text segments.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (SegmentIterator, error)
}

// WhisperCLI runs a speech-to-text command that prints one JSON segment
// object per line on stdout.
type WhisperCLI struct {
	bin    string
	model  string
	logger *slog.Logger
}

func NewWhisperCLI(bin, model string, logger *slog.Logger) *WhisperCLI {
	return &WhisperCLI{bin: bin, model: model, logger: logger}
}

func (w *WhisperCLI) Transcribe(ctx context.Context, path string) (SegmentIterator, error) {
	args := []string{"--model", w.model, "--format", "jsonl", path}
	cmd := exec.CommandContext(ctx, w.bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := media.NewTailBuffer(8 * 1024)
	cmd.Stderr = stderr

	w.logger.Debug("starting transcription", "bin", w.bin, "model", w.model)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", w.bin, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &processSegments{cmd: cmd, scanner: scanner, stdout: stdout, stderr: stderr}, nil
}

type processSegments struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	stdout  io.ReadCloser
	stderr  *media.TailBuffer

	err      error
	finished bool
	waitOnce sync.Once
}

func (p *processSegments) Next() (Segment, bool) {
	if p.finished {
		return Segment{}, false
	}
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var seg Segment
		if err := json.Unmarshal([]byte(line), &seg); err != nil {
			p.fail(fmt.Errorf("decode segment: %w", err))
			return Segment{}, false
		}
		seg.Text = strings.TrimSpace(seg.Text)
		return seg, true
	}
	if err := p.scanner.Err(); err != nil {
		p.fail(fmt.Errorf("read segments: %w", err))
		return Segment{}, false
	}
	p.finished = true
	p.wait()
	return Segment{}, false
}

func (p *processSegments) Err() error {
	return p.err
}

// Close stops the engine if it is still running.
func (p *processSegments) Close() error {
	if !p.finished {
		p.finished = true
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	}
	p.waitOnce.Do(func() { _ = p.cmd.Wait() })
	return nil
}

func (p *processSegments) fail(err error) {
	p.err = err
	p.finished = true
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.waitOnce.Do(func() { _ = p.cmd.Wait() })
}

func (p *processSegments) wait() {
	p.waitOnce.Do(func() {
		if err := p.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				msg := p.stderr.LastLine()
				if msg == "" {
					msg = fmt.Sprintf("exit code %d", exitErr.ExitCode())
				}
				p.err = fmt.Errorf("transcriber: %s", msg)
				return
			}
			p.err = fmt.Errorf("transcriber: %w", err)
		}
	})
}

// SliceSegments is an in-memory SegmentIterator, useful for engines that
// produce their whole result at once.
type SliceSegments struct {
	segments []Segment
	pos      int
	err      error
}

// NewSliceSegments returns an iterator over segs that reports err after the
// last segment.
func NewSliceSegments(segs []Segment, err error) *SliceSegments {
	return &SliceSegments{segments: segs, err: err}
}

func (s *SliceSegments) Next() (Segment, bool) {
	if s.pos >= len(s.segments) {
		return Segment{}, false
	}
	seg := s.segments[s.pos]
	s.pos++
	return seg, true
}

func (s *SliceSegments) Err() error {
	if s.pos >= len(s.segments) {
		return s.err
	}
	return nil
}

func (s *SliceSegments) Close() error { return nil }
