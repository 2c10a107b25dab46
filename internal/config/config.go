// Package config provides configuration management for vmaker.
// Configuration is loaded from an optional TOML file and environment
// variables, with sensible defaults. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort        = 8000
	DefaultBind        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "auto"
	DefaultDataDir     = ".vmaker"
	DefaultWorkers     = 2
	DefaultQueueSize   = 256
	DefaultSubmitBurst = 20

	DefaultFFmpegPath   = "ffmpeg"
	DefaultFFprobePath  = "ffprobe"
	DefaultYTDLPPath    = "yt-dlp"
	DefaultWhisperPath  = "whisper-segments"
	DefaultWhisperModel = "small"

	// Environment variable names
	EnvConfigFile   = "VMAKER_CONFIG"
	EnvPort         = "VMAKER_PORT"
	EnvBind         = "VMAKER_BIND"
	EnvLogLevel     = "VMAKER_LOG_LEVEL"
	EnvLogFormat    = "VMAKER_LOG_FORMAT"
	EnvDataDir      = "VMAKER_DATA_DIR"
	EnvWorkers      = "VMAKER_WORKERS"
	EnvQueueSize    = "VMAKER_QUEUE_SIZE"
	EnvFFmpegPath   = "VMAKER_FFMPEG"
	EnvFFprobePath  = "VMAKER_FFPROBE"
	EnvYTDLPPath    = "VMAKER_YTDLP"
	EnvWhisperPath  = "VMAKER_WHISPER"
	EnvWhisperModel = "VMAKER_WHISPER_MODEL"
	EnvSubmitRate   = "VMAKER_SUBMIT_RATE"
	EnvSubmitBurst  = "VMAKER_SUBMIT_BURST"
	EnvHeadless     = "VMAKER_HEADLESS"

	// File and directory names under the data dir
	DBFilename     = "vmaker.db"
	LockFilename   = "vmaker.lock"
	DownloadsDir   = "downloads"
	ClipsDir       = "clips"
	TranscriptsDir = "transcripts"
	TemplatesDir   = "templates"
	SessionsDir    = "sessions"
	FontsDir       = "fonts"

	DefaultEmojiFont = "NotoColorEmoji-Regular.ttf"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	Bind() string
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	LockPath() string
	DownloadsDir() string
	ClipsDir() string
	TranscriptsDir() string
	TemplatesDir() string
	SessionsDir() string
	FontsDir() string
	DefaultFont() string
	Workers() int
	QueueSize() int
	FFmpegPath() string
	FFprobePath() string
	YTDLPPath() string
	WhisperPath() string
	WhisperModel() string
	SubmitRate() float64
	SubmitBurst() int
	Headless() bool
}

// fileConfig mirrors the TOML document. Zero values mean "not set".
type fileConfig struct {
	Port         int     `toml:"port"`
	Bind         string  `toml:"bind"`
	LogLevel     string  `toml:"log_level"`
	LogFormat    string  `toml:"log_format"`
	DataDir      string  `toml:"data_dir"`
	Workers      int     `toml:"workers"`
	QueueSize    int     `toml:"queue_size"`
	FFmpegPath   string  `toml:"ffmpeg_path"`
	FFprobePath  string  `toml:"ffprobe_path"`
	YTDLPPath    string  `toml:"ytdlp_path"`
	WhisperPath  string  `toml:"whisper_path"`
	WhisperModel string  `toml:"whisper_model"`
	SubmitRate   float64 `toml:"submit_rate"`
	SubmitBurst  int     `toml:"submit_burst"`
	Headless     *bool   `toml:"headless"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	port         int
	bind         string
	logLevel     string
	logFormat    string
	dataDir      string
	workers      int
	queueSize    int
	ffmpegPath   string
	ffprobePath  string
	ytdlpPath    string
	whisperPath  string
	whisperModel string
	submitRate   float64
	submitBurst  int
	headless     bool
}

// New creates a config from defaults, the optional TOML file at path (or
// $VMAKER_CONFIG when path is empty) and environment variable overrides.
func New(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:         DefaultPort,
		bind:         DefaultBind,
		logLevel:     DefaultLogLevel,
		logFormat:    DefaultLogFormat,
		dataDir:      defaultDataDir(),
		workers:      DefaultWorkers,
		queueSize:    DefaultQueueSize,
		ffmpegPath:   DefaultFFmpegPath,
		ffprobePath:  DefaultFFprobePath,
		ytdlpPath:    DefaultYTDLPPath,
		whisperPath:  DefaultWhisperPath,
		whisperModel: DefaultWhisperModel,
		submitBurst:  DefaultSubmitBurst,
		headless:     true,
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setInt(&c.port, fc.Port)
	setString(&c.bind, fc.Bind)
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.logFormat, fc.LogFormat)
	setString(&c.dataDir, expandHome(fc.DataDir))
	setInt(&c.workers, fc.Workers)
	setInt(&c.queueSize, fc.QueueSize)
	setString(&c.ffmpegPath, fc.FFmpegPath)
	setString(&c.ffprobePath, fc.FFprobePath)
	setString(&c.ytdlpPath, fc.YTDLPPath)
	setString(&c.whisperPath, fc.WhisperPath)
	setString(&c.whisperModel, fc.WhisperModel)
	if fc.SubmitRate > 0 {
		c.submitRate = fc.SubmitRate
	}
	setInt(&c.submitBurst, fc.SubmitBurst)
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if w := os.Getenv(EnvWorkers); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvWorkers, err)
		}
		c.workers = n
	}

	if q := os.Getenv(EnvQueueSize); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvQueueSize, err)
		}
		c.queueSize = n
	}

	if r := os.Getenv(EnvSubmitRate); r != "" {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSubmitRate, err)
		}
		c.submitRate = v
	}

	if b := os.Getenv(EnvSubmitBurst); b != "" {
		n, err := strconv.Atoi(b)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSubmitBurst, err)
		}
		c.submitBurst = n
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		v, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = v
	}

	setString(&c.bind, os.Getenv(EnvBind))
	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.logFormat, os.Getenv(EnvLogFormat))
	setString(&c.dataDir, expandHome(os.Getenv(EnvDataDir)))
	setString(&c.ffmpegPath, os.Getenv(EnvFFmpegPath))
	setString(&c.ffprobePath, os.Getenv(EnvFFprobePath))
	setString(&c.ytdlpPath, os.Getenv(EnvYTDLPPath))
	setString(&c.whisperPath, os.Getenv(EnvWhisperPath))
	setString(&c.whisperModel, os.Getenv(EnvWhisperModel))
	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	if c.workers < 1 {
		return fmt.Errorf("invalid workers %d: must be at least 1", c.workers)
	}
	if c.queueSize < 1 {
		return fmt.Errorf("invalid queue_size %d: must be at least 1", c.queueSize)
	}
	if c.submitRate < 0 {
		return fmt.Errorf("invalid submit_rate %v: must not be negative", c.submitRate)
	}
	if c.submitBurst < 1 {
		c.submitBurst = 1
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// Bind returns the HTTP listen address (host part)
func (c *EnvConfig) Bind() string {
	return c.bind
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the single-instance lock file path
func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

func (c *EnvConfig) DownloadsDir() string { return filepath.Join(c.dataDir, DownloadsDir) }
func (c *EnvConfig) ClipsDir() string { return filepath.Join(c.dataDir, ClipsDir) }
func (c *EnvConfig) TranscriptsDir() string { return filepath.Join(c.dataDir, TranscriptsDir) }
func (c *EnvConfig) TemplatesDir() string { return filepath.Join(c.dataDir, TemplatesDir) }
func (c *EnvConfig) SessionsDir() string { return filepath.Join(c.dataDir, SessionsDir) }
func (c *EnvConfig) FontsDir() string { return filepath.Join(c.dataDir, FontsDir) }

// DefaultFont returns the font file used when an overlay does not name one.
func (c *EnvConfig) DefaultFont() string {
	return filepath.Join(c.FontsDir(), DefaultEmojiFont)
}

// ArtifactDirs lists every directory the daemon writes into.
func (c *EnvConfig) ArtifactDirs() []string {
	return []string{
		c.DownloadsDir(),
		c.ClipsDir(),
		c.TranscriptsDir(),
		c.TemplatesDir(),
		c.SessionsDir(),
		c.FontsDir(),
	}
}

func (c *EnvConfig) Workers() int { return c.workers }
func (c *EnvConfig) QueueSize() int { return c.queueSize }
func (c *EnvConfig) FFmpegPath() string { return c.ffmpegPath }
func (c *EnvConfig) FFprobePath() string { return c.ffprobePath }
func (c *EnvConfig) YTDLPPath() string { return c.ytdlpPath }
func (c *EnvConfig) WhisperPath() string { return c.whisperPath }
func (c *EnvConfig) WhisperModel() string { return c.whisperModel }
func (c *EnvConfig) SubmitRate() float64 { return c.submitRate }
func (c *EnvConfig) SubmitBurst() int { return c.submitBurst }
func (c *EnvConfig) Headless() bool { return c.headless }

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
