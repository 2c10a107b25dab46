// Package media drives the external transcoder and inspection tools.
package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	maxLineBytes   = 1024 * 1024
)

// ProcessFailedError reports a transcoder that exited non-zero.
type ProcessFailedError struct {
	ExitCode   int
	StderrTail string
}

func (e *ProcessFailedError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
	if last := lastLine(e.StderrTail); last != "" {
		msg += ": " + last
	}
	return msg
}

// Runner launches transcoder processes.
type Runner struct {
	bin    string
	logger *slog.Logger
}

func NewRunner(bin string, logger *slog.Logger) *Runner {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Runner{bin: bin, logger: logger}
}

// Process is one running transcoder invocation.
type Process struct {
	cmd      *exec.Cmd
	total    float64
	progress chan float64
	detached chan struct{}
	done     chan struct{}
	stderr   *TailBuffer
	err      error
	started  time.Time
	logger   *slog.Logger

	detachOnce sync.Once
	killOnce   sync.Once
}

// Start launches the transcoder with args. totalSeconds is the expected
// media duration used to turn elapsed-time markers into fractions.
func (r *Runner) Start(ctx context.Context, args []string, totalSeconds float64) (*Process, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	p := &Process{
		cmd:      cmd,
		total:    totalSeconds,
		progress: make(chan float64, 16),
		detached: make(chan struct{}),
		done:     make(chan struct{}),
		stderr:   NewTailBuffer(maxStderrBytes),
		started:  time.Now(),
		logger:   r.logger,
	}

	r.logger.Debug("executing transcoder", "bin", r.bin, "args", args)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.bin, err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		scanner.Split(scanLines)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			p.stderr.WriteString(line + "\n")
			if elapsed, ok := ParseProgressTime(line); ok {
				p.emit(Fraction(elapsed, p.total))
			}
		}

		p.err = p.finish(cmd.Wait())
		close(p.progress)
		close(p.done)
	}()

	return p, nil
}

// Run starts the transcoder and blocks until it exits, reporting every
// progress fraction to onProgress. The process is killed if ctx ends first.
func (r *Runner) Run(ctx context.Context, args []string, totalSeconds float64, onProgress func(float64)) error {
	p, err := r.Start(ctx, args, totalSeconds)
	if err != nil {
		return err
	}
	defer p.Kill()

	for frac := range p.Progress() {
		if onProgress != nil {
			onProgress(frac)
		}
	}
	return p.Wait()
}

// Progress returns the stream of completion fractions. It is closed when the
// process exits.
func (p *Process) Progress() <-chan float64 {
	return p.progress
}

// Wait blocks until the process exits. Progress values not yet consumed are
// discarded.
func (p *Process) Wait() error {
	p.detach()
	<-p.done
	return p.err
}

// Kill terminates the process. Safe to call at any time and more than once.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		p.detach()
		select {
		case <-p.done:
			return
		default:
		}
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	})
}

// StderrTail returns the bounded tail of the diagnostic stream captured so far.
func (p *Process) StderrTail() string {
	select {
	case <-p.done:
		return p.stderr.String()
	default:
		return ""
	}
}

func (p *Process) emit(frac float64) {
	select {
	case p.progress <- frac:
	case <-p.detached:
	}
}

func (p *Process) detach() {
	p.detachOnce.Do(func() { close(p.detached) })
}

func (p *Process) finish(err error) error {
	elapsed := time.Since(p.started)
	if err == nil {
		p.logger.Debug("transcoder finished", "duration_ms", elapsed.Milliseconds())
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		tail := p.stderr.String()
		p.logger.Warn("transcoder failed",
			"exit_code", exitErr.ExitCode(),
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(tail, 512),
		)
		return &ProcessFailedError{ExitCode: exitErr.ExitCode(), StderrTail: tail}
	}
	return fmt.Errorf("wait for transcoder: %w", err)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
