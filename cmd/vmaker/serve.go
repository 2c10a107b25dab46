package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/ivishnuraj/vmaker/internal/api"
	"github.com/ivishnuraj/vmaker/internal/artifacts"
	"github.com/ivishnuraj/vmaker/internal/clips"
	"github.com/ivishnuraj/vmaker/internal/config"
	"github.com/ivishnuraj/vmaker/internal/db"
	"github.com/ivishnuraj/vmaker/internal/engines"
	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/logging"
	"github.com/ivishnuraj/vmaker/internal/media"
	"github.com/ivishnuraj/vmaker/internal/orchestrator"
	"github.com/ivishnuraj/vmaker/internal/sessions"
	"github.com/ivishnuraj/vmaker/internal/templates"
)

const (
	eventHistory    = 1000
	shutdownTimeout = 10 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var tray bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job daemon and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, tray || !cfg.Headless())
		},
	}
	cmd.Flags().BoolVar(&tray, "tray", false, "Show the system tray icon (overrides headless config)")
	return cmd
}

func runServe(parent context.Context, cfg *config.EnvConfig, withTray bool) error {
	startTime := time.Now()

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	for _, dir := range cfg.ArtifactDirs() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.New(os.Stderr, cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting vmaker", "version", Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another vmaker instance is already running (lock %s)", cfg.LockPath())
	}
	defer lock.Unlock()

	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	tpls := templates.NewStore(cfg.TemplatesDir(), logging.WithComponent(logger, "templates"))
	if err := tpls.Load(); err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	store := jobs.NewStore()
	bus := events.NewBus(eventHistory)
	sess := sessions.NewManager(cfg.SessionsDir(), logging.WithComponent(logger, "sessions"))
	clipRepo := clips.NewRepository(database.Conn())

	scheduler := orchestrator.NewScheduler(store, bus, sess, logging.WithComponent(logger, "scheduler"), orchestrator.SchedulerOptions{
		Workers:   cfg.Workers(),
		QueueSize: cfg.QueueSize(),
		State:     database,
	})
	orchestrator.RegisterHandlers(scheduler, orchestrator.HandlerDeps{
		Downloader:  engines.NewYTDLP(cfg.YTDLPPath(), logger),
		Transcriber: engines.NewWhisperCLI(cfg.WhisperPath(), cfg.WhisperModel(), logger),
		Transcoder:  media.NewRunner(cfg.FFmpegPath(), logger),
		Prober:      media.NewProber(cfg.FFprobePath()),
		Clips:       clipRepo,
		Workspace: orchestrator.Workspace{
			Downloads:   cfg.DownloadsDir(),
			Clips:       cfg.ClipsDir(),
			Transcripts: cfg.TranscriptsDir(),
			Font:        cfg.DefaultFont(),
		},
	})
	service := orchestrator.NewService(store, scheduler, bus, tpls, sess, logging.WithComponent(logger, "service"))

	doctor := media.NewCachedDoctor(media.NewToolSet(externalTools(cfg)...), logger)
	go func() {
		caps, err := doctor.Refresh(signalCtx)
		if err != nil {
			logger.Warn("initial tool probe failed", "error", err)
			return
		}
		logger.Info("external tools detected",
			"tools", fmt.Sprintf("%d/%d", caps.Summary.Available, caps.Summary.Total),
		)
	}()

	scheduler.Start(signalCtx)

	apiServer := api.NewServer(api.ServerConfig{
		Bind:      cfg.Bind(),
		Port:      cfg.Port(),
		Service:   service,
		Scheduler: scheduler,
		Jobs:      store,
		Bus:       bus,
		Templates: tpls,
		Clips:     clips.NewLibrary(cfg.ClipsDir(), clipRepo),
		Artifacts: artifacts.NewServer(map[artifacts.Area]string{
			artifacts.AreaDownloads:   cfg.DownloadsDir(),
			artifacts.AreaClips:       cfg.ClipsDir(),
			artifacts.AreaTranscripts: cfg.TranscriptsDir(),
		}, logging.WithComponent(logger, "artifacts")),
		Doctor:      doctor,
		Logger:      logging.WithComponent(logger, "api"),
		StartTime:   startTime,
		Version:     Version,
		SubmitRate:  cfg.SubmitRate(),
		SubmitBurst: cfg.SubmitBurst(),
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- apiServer.Start()
	}()

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	if withTray {
		stopTray, err := startTray(trayOptions{
			scheduler: scheduler,
			jobs:      store,
			logger:    logger,
			apiURL:    "http://" + net.JoinHostPort(cfg.Bind(), strconv.Itoa(cfg.Port())),
			onQuit:    quit,
		})
		if err != nil {
			logger.Warn("system tray unavailable", "error", err)
		} else {
			defer stopTray()
		}
	} else {
		logger.Info("running in headless mode (no system tray)")
	}

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("received shutdown signal")
	case <-quitCh:
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	scheduler.Stop()

	logger.Info("shutdown complete")
	return runErr
}

func externalTools(cfg config.Config) []media.Tool {
	return []media.Tool{
		{Name: "ffmpeg", Bin: cfg.FFmpegPath(), VersionArgs: []string{"-version"}},
		{Name: "ffprobe", Bin: cfg.FFprobePath(), VersionArgs: []string{"-version"}},
		{Name: "yt-dlp", Bin: cfg.YTDLPPath(), VersionArgs: []string{"--version"}},
		{Name: "whisper", Bin: cfg.WhisperPath(), VersionArgs: []string{"--version"}},
	}
}
