package media

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultCacheTTL    = 5 * time.Minute
	defaultToolTimeout = 10 * time.Second
)

// Tool names an external binary and the arguments that print its version.
type Tool struct {
	Name        string
	Bin         string
	VersionArgs []string
}

// ToolInfo is the availability of one external binary.
type ToolInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities summarises which external tools can be run.
type Capabilities struct {
	Tools    map[string]ToolInfo `json:"tools"`
	Summary  Summary             `json:"summary"`
	ProbedAt time.Time           `json:"probed_at"`
}

type Summary struct {
	Available int  `json:"available"`
	Total     int  `json:"total"`
	AllOK     bool `json:"all_ok"`
}

// Has reports whether the named tool was found and answered its version
// query.
func (c *Capabilities) Has(name string) bool {
	return c != nil && c.Tools[name].Available
}

type ToolProber interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// ToolSet probes a fixed list of tools by running their version command.
type ToolSet struct {
	tools   []Tool
	timeout time.Duration
}

func NewToolSet(tools ...Tool) *ToolSet {
	return &ToolSet{tools: tools, timeout: defaultToolTimeout}
}

func (t *ToolSet) Probe(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{
		Tools:    make(map[string]ToolInfo, len(t.tools)),
		ProbedAt: time.Now(),
	}
	for _, tool := range t.tools {
		info := t.probeOne(ctx, tool)
		caps.Tools[tool.Name] = info
		caps.Summary.Total++
		if info.Available {
			caps.Summary.Available++
		}
	}
	caps.Summary.AllOK = caps.Summary.Available == caps.Summary.Total
	return caps, nil
}

func (t *ToolSet) probeOne(ctx context.Context, tool Tool) ToolInfo {
	path, err := exec.LookPath(tool.Bin)
	if err != nil {
		return ToolInfo{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, tool.VersionArgs...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return ToolInfo{Path: path, Error: err.Error()}
	}

	version, _, _ := strings.Cut(strings.TrimSpace(out.String()), "\n")
	return ToolInfo{Available: true, Path: path, Version: truncate(strings.TrimSpace(version), 120)}
}

// CachedDoctor wraps a ToolProber and caches its result for a TTL so
// status requests do not spawn processes every time.
type CachedDoctor struct {
	prober ToolProber
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(prober ToolProber, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Peek returns the cached capabilities without probing. It may be nil.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes regardless of cache freshness. A failed probe falls back
// to the stale cache when there is one.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Probe(ctx)
	if err != nil {
		d.logger.Warn("tool probe failed", "error", err)
		if d.cached != nil {
			return d.cached, nil
		}
		return nil, err
	}
	for name, info := range caps.Tools {
		if !info.Available {
			d.logger.Warn("external tool unavailable", "tool", name, "error", info.Error)
		}
	}
	d.cached = caps
	return caps, nil
}

func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
