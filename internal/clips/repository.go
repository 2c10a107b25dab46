// Package clips records the provenance of produced clips.
package clips

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivishnuraj/vmaker/internal/overlay"
)

// Metadata associates a clip with the source and parameters that produced it.
type Metadata struct {
	Key         string            `json:"key"`
	SourceVideo string            `json:"source_video"`
	ClipFile    string            `json:"clip_file"`
	Start       float64           `json:"start"`
	End         float64           `json:"end"`
	Text        string            `json:"text,omitempty"`
	Overlays    []overlay.Overlay `json:"overlays,omitempty"`
	Template    string            `json:"template,omitempty"`
	Path        string            `json:"path"`
	JobID       string            `json:"job_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// VideoBase returns the source video name without its extension.
func VideoBase(videoFilename string) string {
	base := filepath.Base(videoFilename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Key builds the composite storage key {videoBase}/{clipFilename}, which keeps
// same-named clips from different sources apart.
func Key(videoFilename, clipFilename string) string {
	return VideoBase(videoFilename) + "/" + filepath.Base(clipFilename)
}

// DisplayText returns the caption of a clip: its plain text, or the first
// text overlay for template clips.
func (m *Metadata) DisplayText() string {
	if m.Text != "" {
		return m.Text
	}
	for _, o := range m.Overlays {
		if o.Type == overlay.TypeText && o.Text != "" {
			return o.Text
		}
	}
	return ""
}

type Repository interface {
	Upsert(ctx context.Context, m *Metadata) error
	Get(ctx context.Context, key string) (*Metadata, error)
	ListBySource(ctx context.Context, videoFilename string) ([]*Metadata, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, m *Metadata) error {
	if m.Key == "" {
		m.Key = Key(m.SourceVideo, m.ClipFile)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	overlays := m.Overlays
	if overlays == nil {
		overlays = []overlay.Overlay{}
	}
	encoded, err := json.Marshal(overlays)
	if err != nil {
		return fmt.Errorf("encode overlays: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO clips_metadata (key, source_video, clip_file, start_seconds, end_seconds, text, overlays, template, path, job_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			source_video = excluded.source_video,
			clip_file = excluded.clip_file,
			start_seconds = excluded.start_seconds,
			end_seconds = excluded.end_seconds,
			text = excluded.text,
			overlays = excluded.overlays,
			template = excluded.template,
			path = excluded.path,
			job_id = excluded.job_id
	`, m.Key, m.SourceVideo, m.ClipFile, m.Start, m.End, m.Text, string(encoded), m.Template, m.Path, m.JobID, m.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (*Metadata, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT key, source_video, clip_file, start_seconds, end_seconds, text, overlays, template, path, job_id, created_at
		FROM clips_metadata WHERE key = ?
	`, key)
	return scanMetadata(row)
}

func (r *SQLiteRepository) ListBySource(ctx context.Context, videoFilename string) ([]*Metadata, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, source_video, clip_file, start_seconds, end_seconds, text, overlays, template, path, job_id, created_at
		FROM clips_metadata WHERE key LIKE ? ESCAPE '\' ORDER BY created_at DESC
	`, escapeLike(VideoBase(videoFilename))+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Metadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row scanner) (*Metadata, error) {
	var m Metadata
	var overlays, createdAt string
	err := row.Scan(&m.Key, &m.SourceVideo, &m.ClipFile, &m.Start, &m.End, &m.Text, &overlays, &m.Template, &m.Path, &m.JobID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if overlays != "" {
		if err := json.Unmarshal([]byte(overlays), &m.Overlays); err != nil {
			return nil, fmt.Errorf("decode overlays for %s: %w", m.Key, err)
		}
	}
	if len(m.Overlays) == 0 {
		m.Overlays = nil
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &m, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
