// Package sessions groups job artifacts under client-supplied session ids.
// A session directory is created lazily on the first artifact copy and is
// only ever appended to or removed wholesale.
package sessions

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

var ErrSessionNotFound = errors.New("session not found")

// Summary describes what a cleanup removed.
type Summary struct {
	SessionID    string   `json:"session_id"`
	FilesRemoved int      `json:"files_removed"`
	BytesFreed   int64    `json:"bytes_freed"`
	Kept         []string `json:"kept,omitempty"`
	DirRemoved   bool     `json:"dir_removed"`
}

type Manager struct {
	root   string
	logger *slog.Logger
}

func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{root: root, logger: logger}
}

// ValidateID rejects ids that could address anything outside the sessions
// root.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session id is required")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

// Dir returns the directory of a session.
func (m *Manager) Dir(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(m.root, id), nil
}

// CopyArtifact copies src into the session directory, creating it if needed,
// and returns the destination path. The copy lands under a temporary name and
// is renamed into place so readers never see a partial file.
func (m *Manager) CopyArtifact(id, src string) (string, error) {
	dir, err := m.Dir(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	dst := filepath.Join(dir, filepath.Base(src))
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(src)+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return dst, nil
}

// Cleanup removes a session's artifacts. Video files (.mp4) are removed only
// when deleteClips or deleteVideo is set; every other file is always
// removed. Directories left empty are removed, the session directory
// included.
func (m *Manager) Cleanup(id string, deleteClips, deleteVideo bool) (Summary, error) {
	summary := Summary{SessionID: id}
	dir, err := m.Dir(id)
	if err != nil {
		return summary, err
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return summary, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return summary, fmt.Errorf("stat session: %w", err)
	}

	removeVideos := deleteClips || deleteVideo
	var dirs []string
	var errs []error

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		if strings.EqualFold(filepath.Ext(path), ".mp4") && !removeVideos {
			summary.Kept = append(summary.Kept, rel)
			return nil
		}
		var size int64
		if fi, err := d.Info(); err == nil {
			size = fi.Size()
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			return nil
		}
		summary.FilesRemoved++
		summary.BytesFreed += size
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	// Deepest directories first so parents can become empty.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(d); err != nil {
			errs = append(errs, err)
			continue
		}
		if d == dir {
			summary.DirRemoved = true
		}
	}

	m.logger.Info("session cleaned up",
		"session_id", id,
		"files_removed", summary.FilesRemoved,
		"freed", humanize.Bytes(uint64(summary.BytesFreed)),
		"kept", len(summary.Kept),
		"dir_removed", summary.DirRemoved,
	)

	if len(errs) > 0 {
		return summary, fmt.Errorf("cleanup session %s: %w", id, errors.Join(errs...))
	}
	return summary, nil
}
