package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivishnuraj/vmaker/internal/config"
)

// runCLI executes the root command against a throwaway data directory.
func runCLI(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv(config.EnvDataDir, dataDir)

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "vmaker "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestTemplatesList(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, filepath.Join(dataDir, "templates", "promo.json"), `{"duration": 5, "mode": "full_width", "output_name": "promo_{timestamp}"}`)
	writeFile(t, filepath.Join(dataDir, "templates", "short.yaml"), "start: 2\ntexts:\n  - text: Hello\n")

	out, err := runCLI(t, dataDir, "templates", "list")
	if err != nil {
		t.Fatalf("templates list: %v", err)
	}
	for _, want := range []string{"promo", "full_width", "5s", "promo_{timestamp}", "short", "vertical", "2s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "promo") > strings.Index(out, "short") {
		t.Errorf("templates not sorted by name:\n%s", out)
	}
}

func TestTemplatesList_Empty(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "templates", "list")
	if err != nil {
		t.Fatalf("templates list: %v", err)
	}
	if !strings.Contains(out, "No templates") {
		t.Errorf("output = %q", out)
	}
}

func TestSessionCleanup(t *testing.T) {
	dataDir := t.TempDir()
	sessionDir := filepath.Join(dataDir, "sessions", "s1")
	writeFile(t, filepath.Join(sessionDir, "a.mp4"), "video")
	writeFile(t, filepath.Join(sessionDir, "b.txt"), "text")

	out, err := runCLI(t, dataDir, "session", "cleanup", "s1")
	if err != nil {
		t.Fatalf("session cleanup: %v", err)
	}
	if !strings.Contains(out, "Removed 2 files") || !strings.Contains(out, "Session directory removed") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(sessionDir); !os.IsNotExist(err) {
		t.Errorf("session dir still exists: %v", err)
	}
}

func TestSessionCleanup_KeepVideos(t *testing.T) {
	dataDir := t.TempDir()
	sessionDir := filepath.Join(dataDir, "sessions", "s1")
	writeFile(t, filepath.Join(sessionDir, "a.mp4"), "video")
	writeFile(t, filepath.Join(sessionDir, "b.txt"), "text")

	out, err := runCLI(t, dataDir, "session", "cleanup", "s1", "--keep-clips", "--keep-video")
	if err != nil {
		t.Fatalf("session cleanup: %v", err)
	}
	if !strings.Contains(out, "Removed 1 files") || !strings.Contains(out, "Kept 1 videos") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(sessionDir, "a.mp4")); err != nil {
		t.Errorf("video removed: %v", err)
	}
}

func TestSessionCleanup_Missing(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "session", "cleanup", "nope")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestExternalTools(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv(config.EnvFFmpegPath, "/opt/ffmpeg/bin/ffmpeg")
	cfg, err := config.New("")
	if err != nil {
		t.Fatal(err)
	}

	tools := externalTools(cfg)
	if len(tools) != 4 {
		t.Fatalf("len(tools) = %d, want 4", len(tools))
	}
	if tools[0].Name != "ffmpeg" || tools[0].Bin != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("tools[0] = %+v", tools[0])
	}
}
