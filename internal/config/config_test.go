package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigFile, EnvPort, EnvBind, EnvLogLevel, EnvLogFormat, EnvDataDir,
		EnvWorkers, EnvQueueSize, EnvFFmpegPath, EnvFFprobePath, EnvYTDLPPath,
		EnvWhisperPath, EnvWhisperModel, EnvSubmitRate, EnvSubmitBurst, EnvHeadless,
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.Workers() != DefaultWorkers {
		t.Errorf("Workers = %d, want %d", cfg.Workers(), DefaultWorkers)
	}
	if cfg.QueueSize() != DefaultQueueSize {
		t.Errorf("QueueSize = %d, want %d", cfg.QueueSize(), DefaultQueueSize)
	}
	if cfg.FFmpegPath() != DefaultFFmpegPath {
		t.Errorf("FFmpegPath = %q", cfg.FFmpegPath())
	}
	if cfg.SubmitRate() != 0 {
		t.Errorf("SubmitRate = %v, want 0 (disabled)", cfg.SubmitRate())
	}
	if !cfg.Headless() {
		t.Error("Headless should default to true")
	}
}

func TestNew_DerivedPaths(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	cfg, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"db", cfg.DBPath(), filepath.Join(dir, DBFilename)},
		{"lock", cfg.LockPath(), filepath.Join(dir, LockFilename)},
		{"downloads", cfg.DownloadsDir(), filepath.Join(dir, "downloads")},
		{"clips", cfg.ClipsDir(), filepath.Join(dir, "clips")},
		{"transcripts", cfg.TranscriptsDir(), filepath.Join(dir, "transcripts")},
		{"templates", cfg.TemplatesDir(), filepath.Join(dir, "templates")},
		{"sessions", cfg.SessionsDir(), filepath.Join(dir, "sessions")},
		{"font", cfg.DefaultFont(), filepath.Join(dir, "fonts", DefaultEmojiFont)},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if n := len(cfg.ArtifactDirs()); n != 6 {
		t.Errorf("ArtifactDirs len = %d, want 6", n)
	}
}

func TestNew_FileThenEnvPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "vmaker.toml")
	doc := `
port = 9100
workers = 4
ffmpeg_path = "/opt/ffmpeg"
submit_rate = 2.5
headless = false
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvWorkers, "8")

	cfg, err := New(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9100 {
		t.Errorf("Port = %d, want 9100 from file", cfg.Port())
	}
	if cfg.Workers() != 8 {
		t.Errorf("Workers = %d, want 8 from env", cfg.Workers())
	}
	if cfg.FFmpegPath() != "/opt/ffmpeg" {
		t.Errorf("FFmpegPath = %q", cfg.FFmpegPath())
	}
	if cfg.SubmitRate() != 2.5 {
		t.Errorf("SubmitRate = %v", cfg.SubmitRate())
	}
	if cfg.Headless() {
		t.Error("Headless should be false from file")
	}
}

func TestNew_ConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "vmaker.toml")
	if err := os.WriteFile(path, []byte("bind = \"0.0.0.0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)

	cfg, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bind() != "0.0.0.0" {
		t.Errorf("Bind = %q", cfg.Bind())
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad port", env: map[string]string{EnvPort: "abc"}},
		{name: "port out of range", env: map[string]string{EnvPort: "70000"}},
		{name: "zero workers", env: map[string]string{EnvWorkers: "0"}},
		{name: "bad headless", env: map[string]string{EnvHeadless: "maybe"}},
		{name: "negative rate", env: map[string]string{EnvSubmitRate: "-1"}},
		{name: "bad toml", file: "port = = 1"},
		{name: "missing file", file: "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			switch tt.file {
			case "":
			case "-":
				path = filepath.Join(t.TempDir(), "missing.toml")
			default:
				path = filepath.Join(t.TempDir(), "bad.toml")
				if err := os.WriteFile(path, []byte(tt.file), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := New(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("expandHome = %q", got)
	}
}
