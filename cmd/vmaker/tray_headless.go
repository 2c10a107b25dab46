//go:build headless

package main

import (
	"errors"
	"log/slog"

	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/orchestrator"
)

type trayOptions struct {
	scheduler *orchestrator.Scheduler
	jobs      *jobs.Store
	logger    *slog.Logger
	apiURL    string
	onQuit    func()
}

// startTray always fails in builds without the desktop tray, which avoids
// linking the platform GUI libraries.
func startTray(opts trayOptions) (func(), error) {
	return nil, errors.New("built without system tray support")
}
