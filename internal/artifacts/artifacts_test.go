package artifacts

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantNil   bool
		wantErr   error
	}{
		{"no header", "", 1000, 0, 0, true, nil},
		{"whole file", "bytes=0-999", 1000, 0, 999, false, nil},
		{"open ended", "bytes=500-", 1000, 500, 999, false, nil},
		{"suffix", "bytes=-500", 1000, 500, 999, false, nil},
		{"one byte", "bytes=0-0", 1000, 0, 0, false, nil},
		{"end clamped", "bytes=0-2000", 1000, 0, 999, false, nil},
		{"suffix longer than file", "bytes=-2000", 500, 0, 499, false, nil},
		{"first of several", "bytes=0-99, 200-299", 1000, 0, 99, false, nil},

		{"start at size", "bytes=1000-", 1000, 0, 0, false, ErrUnsatisfiable},
		{"start past size", "bytes=1500-2000", 1000, 0, 0, false, ErrUnsatisfiable},
		{"inverted", "bytes=10-5", 1000, 0, 0, false, ErrUnsatisfiable},
		{"missing unit", "0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"wrong unit", "items=0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad start", "bytes=x-100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad end", "bytes=0-y", 1000, 0, 0, false, ErrInvalidRange},
		{"zero suffix", "bytes=-0", 1000, 0, 0, false, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseRange() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange() unexpected error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("ParseRange() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("ParseRange() = nil, want a range")
			}
			if got.Start != tt.wantStart || got.End != tt.wantEnd {
				t.Errorf("ParseRange() = {%d, %d}, want {%d, %d}", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestByteRange(t *testing.T) {
	r := ByteRange{Start: 100, End: 199}
	if got := r.Length(); got != 100 {
		t.Errorf("Length() = %d, want 100", got)
	}
	if got := r.ContentRange(1000); got != "bytes 100-199/1000" {
		t.Errorf("ContentRange() = %q", got)
	}
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	clips := filepath.Join(root, "clips")
	if err := os.MkdirAll(filepath.Join(clips, "v"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(clips, "v", "a.mp4"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "secret.txt"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewServer(map[Area]string{AreaClips: clips}, nil), root
}

func TestResolve(t *testing.T) {
	s, root := newTestServer(t)

	tests := []struct {
		name    string
		area    Area
		path    string
		want    string
		wantErr error
	}{
		{"nested clip", AreaClips, "v/a.mp4", filepath.Join(root, "clips", "v", "a.mp4"), nil},
		{"leading slash", AreaClips, "/v/a.mp4", filepath.Join(root, "clips", "v", "a.mp4"), nil},
		{"parent escape", AreaClips, "../secret.txt", "", ErrInvalidPath},
		{"nested escape", AreaClips, "v/../../secret.txt", "", ErrInvalidPath},
		{"backslash", AreaClips, `v\a.mp4`, "", ErrInvalidPath},
		{"empty", AreaClips, "", "", ErrInvalidPath},
		{"unknown area", AreaDownloads, "x.mp4", "", ErrUnknownArea},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Resolve(tt.area, tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServe(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name         string
		method       string
		rangeHeader  string
		wantStatus   int
		wantBody     string
		contentRange string
	}{
		{"full", http.MethodGet, "", http.StatusOK, "0123456789", ""},
		{"partial", http.MethodGet, "bytes=2-5", http.StatusPartialContent, "2345", "bytes 2-5/10"},
		{"suffix", http.MethodGet, "bytes=-3", http.StatusPartialContent, "789", "bytes 7-9/10"},
		{"malformed range ignored", http.MethodGet, "pages=1", http.StatusOK, "0123456789", ""},
		{"unsatisfiable", http.MethodGet, "bytes=50-", http.StatusRequestedRangeNotSatisfiable, "", "bytes */10"},
		{"head", http.MethodHead, "", http.StatusOK, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/clips/v/a.mp4", nil)
			if tt.rangeHeader != "" {
				req.Header.Set("Range", tt.rangeHeader)
			}
			rec := httptest.NewRecorder()
			if err := s.Serve(rec, req, AreaClips, "v/a.mp4"); err != nil {
				t.Fatalf("Serve() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusRequestedRangeNotSatisfiable && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if got := rec.Header().Get("Content-Range"); got != tt.contentRange {
				t.Errorf("Content-Range = %q, want %q", got, tt.contentRange)
			}
			if got := rec.Header().Get("Content-Type"); got != "video/mp4" && tt.wantStatus != http.StatusRequestedRangeNotSatisfiable {
				t.Errorf("Content-Type = %q", got)
			}
		})
	}
}

func TestServe_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if err := s.Serve(httptest.NewRecorder(), req, AreaClips, "v/missing.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file error = %v, want ErrNotFound", err)
	}
	if err := s.Serve(httptest.NewRecorder(), req, AreaClips, "v"); !errors.Is(err, ErrNotFound) {
		t.Errorf("directory error = %v, want ErrNotFound", err)
	}
	if err := s.Serve(httptest.NewRecorder(), req, AreaClips, "../secret.txt"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("traversal error = %v, want ErrInvalidPath", err)
	}
}
