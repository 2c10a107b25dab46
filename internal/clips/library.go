package clips

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one clip file on disk, joined with its recorded metadata when
// there is any.
type Entry struct {
	Filename string    `json:"filename"`
	URL      string    `json:"url"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Text     string    `json:"text,omitempty"`
	Start    *float64  `json:"start,omitempty"`
	End      *float64  `json:"end,omitempty"`
	Template string    `json:"template,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Library lists clips stored under clips/{videoBase}/.
type Library struct {
	root string
	repo Repository
}

func NewLibrary(root string, repo Repository) *Library {
	return &Library{root: root, repo: repo}
}

// Dir returns the clip directory for a source video.
func (l *Library) Dir(videoFilename string) string {
	return filepath.Join(l.root, VideoBase(videoFilename))
}

// List returns the .mp4 clips produced from videoFilename, newest first. A
// video with no clip directory yields an empty list.
func (l *Library) List(ctx context.Context, videoFilename string) ([]Entry, error) {
	base := VideoBase(videoFilename)
	if base == "" || base == "." || base == ".." {
		return nil, fmt.Errorf("invalid video name %q", videoFilename)
	}

	entries, err := os.ReadDir(l.Dir(videoFilename))
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read clip dir: %w", err)
	}

	byKey := map[string]*Metadata{}
	if l.repo != nil {
		metas, err := l.repo.ListBySource(ctx, videoFilename)
		if err != nil {
			return nil, fmt.Errorf("list clip metadata: %w", err)
		}
		for _, m := range metas {
			byKey[m.Key] = m
		}
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".mp4") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		entry := Entry{
			Filename: e.Name(),
			URL:      "/clips/" + base + "/" + e.Name(),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		}
		if m, ok := byKey[base+"/"+e.Name()]; ok {
			start, end := m.Start, m.End
			entry.Text = m.DisplayText()
			entry.Start = &start
			entry.End = &end
			entry.Template = m.Template
			entry.Metadata = m
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}
