//go:build !headless

package main

import (
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/orchestrator"
	"github.com/ivishnuraj/vmaker/internal/ui"
)

type trayOptions struct {
	scheduler *orchestrator.Scheduler
	jobs      *jobs.Store
	logger    *slog.Logger
	apiURL    string
	onQuit    func()
}

func startTray(opts trayOptions) (func(), error) {
	tray := ui.NewTray(ui.TrayConfig{
		Scheduler: opts.scheduler,
		Jobs:      opts.jobs,
		Logger:    opts.logger,
		APIURL:    opts.apiURL,
		OnOpen:    openURL,
		OnQuit:    opts.onQuit,
	})
	go tray.Run()
	return tray.Quit, nil
}

func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
