// Package artifacts serves produced files from the data directory. Every
// request is scoped to one area (downloads, clips, transcripts) and can never
// address a path outside it.
package artifacts

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Area string

const (
	AreaDownloads   Area = "downloads"
	AreaClips       Area = "clips"
	AreaTranscripts Area = "transcripts"
)

var (
	ErrUnknownArea = errors.New("unknown artifact area")
	ErrInvalidPath = errors.New("invalid artifact path")
	ErrNotFound    = errors.New("artifact not found")
)

type Server struct {
	roots  map[Area]string
	logger *slog.Logger
}

func NewServer(roots map[Area]string, logger *slog.Logger) *Server {
	return &Server{roots: roots, logger: logger}
}

// Resolve maps a slash-separated name inside area to a file path.
func (s *Server) Resolve(area Area, name string) (string, error) {
	root, ok := s.roots[area]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownArea, area)
	}
	if name == "" || strings.ContainsRune(name, 0) || strings.Contains(name, `\`) {
		return "", ErrInvalidPath
	}
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(name, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", ErrInvalidPath
	}
	return filepath.Join(root, clean), nil
}

// Serve writes the named artifact, honouring single byte-range requests.
// Lookup failures are returned so the caller can render them.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, area Area, name string) error {
	path, err := s.Resolve(area, name)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	if info.IsDir() {
		return ErrNotFound
	}
	size := info.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(path))
	h.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))

	byteRange, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the whole file is sent.
		byteRange = nil
	case err != nil:
		return err
	}

	if byteRange == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			s.copy(w, file, size, path)
		}
		return nil
	}

	h.Set("Content-Length", strconv.FormatInt(byteRange.Length(), 10))
	h.Set("Content-Range", byteRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := file.Seek(byteRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek artifact: %w", err)
	}
	s.copy(w, file, byteRange.Length(), path)
	return nil
}

func (s *Server) copy(w io.Writer, r io.Reader, n int64, path string) {
	if _, err := io.CopyN(w, r, n); err != nil && s.logger != nil {
		// Usually the client went away mid-transfer.
		s.logger.Debug("artifact transfer interrupted", "file", filepath.Base(path), "error", err)
	}
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
