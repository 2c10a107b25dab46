package ui

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/orchestrator"
)

const refreshInterval = 2 * time.Second

type Tray struct {
	scheduler *orchestrator.Scheduler
	jobs      *jobs.Store
	logger    *slog.Logger
	apiURL    string

	statusItem *systray.MenuItem
	queueItem  *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu   sync.Mutex
	stop chan struct{}

	onOpen func(url string) error
	onQuit func()
}

type TrayConfig struct {
	Scheduler *orchestrator.Scheduler
	Jobs      *jobs.Store
	Logger    *slog.Logger
	APIURL    string
	OnOpen    func(url string) error
	OnQuit    func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		scheduler: cfg.Scheduler,
		jobs:      cfg.Jobs,
		logger:    cfg.Logger,
		apiURL:    cfg.APIURL,
		stop:      make(chan struct{}),
		onOpen:    cfg.OnOpen,
		onQuit:    cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("vmaker")
	systray.SetTooltip("vmaker media jobs")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current scheduler status")
	t.statusItem.Disable()

	t.queueItem = systray.AddMenuItem("Jobs: 0 queued, 0 running", "Job counts")
	t.queueItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Stop starting new jobs")
	openItem := systray.AddMenuItem("Open Status Page", t.apiURL)

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit vmaker")

	t.refresh()

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.refresh()
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				t.handleOpen()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			case <-t.stop:
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.scheduler == nil {
		return
	}

	if t.scheduler.IsPaused() {
		t.scheduler.Resume()
		t.pauseItem.SetTitle("Pause")
	} else {
		t.scheduler.Pause()
		t.pauseItem.SetTitle("Resume")
	}
	t.updateLocked()
}

func (t *Tray) handleOpen() {
	if t.onOpen == nil {
		return
	}
	if err := t.onOpen(t.apiURL + "/api/status"); err != nil {
		t.logger.Error("failed to open status page", "error", err)
	}
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateLocked()
}

func (t *Tray) updateLocked() {
	var counts map[jobs.Status]int
	if t.jobs != nil {
		counts = t.jobs.Counts()
	}

	status := "Idle"
	switch {
	case t.scheduler != nil && t.scheduler.IsPaused():
		status = "Paused"
	case counts[jobs.StatusRunning] > 0:
		status = "Working"
	}
	t.statusItem.SetTitle("Status: " + status)
	t.queueItem.SetTitle(fmt.Sprintf("Jobs: %d queued, %d running, %d failed",
		counts[jobs.StatusQueued], counts[jobs.StatusRunning], counts[jobs.StatusError]))
}

func (t *Tray) Quit() {
	t.mu.Lock()
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	t.mu.Unlock()
	systray.Quit()
}
