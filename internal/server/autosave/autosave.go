// Package autosave takes automatic restore points of a document directory.
//
// An Autosaver joins a project.Watcher to a service.Scheduler: every change
// under the directory marks the document dirty, and a finished automatic
// create marks it clean again only if no change arrived while it ran.
//
// Usage:
//
//	a, err := autosave.New(restorePoints, "/path/to/doc", autosave.Config{})
//	defer a.Stop()
package autosave

import (
	"context"
	"log/slog"
	"time"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/core/service"
	"github.com/yndnr/restorepoint-go/internal/project"
)

// Creator takes an automatic restore point. *service.RestorePoints
// implements it.
type Creator interface {
	CreateAutomatic(ctx context.Context) (domain.Record, error)
}

// Config configures an Autosaver.
type Config struct {
	// Interval is the debounce delay. Default: service.DefaultInterval.
	Interval time.Duration

	Logger  *slog.Logger
	Metrics service.Metrics
}

// Autosaver watches one document directory.
type Autosaver struct {
	creator Creator
	watcher *project.Watcher
	sched   *service.Scheduler
	logger  *slog.Logger
}

// New starts watching dir. The document starts clean.
func New(creator Creator, dir string, cfg Config) (*Autosaver, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	w, err := project.NewWatcher(dir, project.WithWatcherLogger(cfg.Logger))
	if err != nil {
		return nil, err
	}

	a := &Autosaver{
		creator: creator,
		watcher: w,
		logger:  cfg.Logger,
	}
	a.sched = service.NewScheduler(a.create, service.SchedulerConfig{
		Interval: cfg.Interval,
		OnTransition: func(from, to service.State) {
			cfg.Logger.Debug("autosave state", "from", from.String(), "to", to.String())
		},
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	w.OnChange(func(uint64) { a.sched.SetDirty(true) })
	return a, nil
}

func (a *Autosaver) create(ctx context.Context) error {
	gen := a.watcher.Generation()
	rec, err := a.creator.CreateAutomatic(ctx)
	if err != nil {
		return err
	}
	if a.watcher.Generation() == gen {
		a.sched.SetDirty(false)
	}
	a.logger.Info("automatic restore point created", "id", rec.ID, "assets", len(rec.Assets))
	return nil
}

// State returns the scheduler state.
func (a *Autosaver) State() service.State { return a.sched.State() }

// LastError returns the error of the most recent automatic create.
func (a *Autosaver) LastError() error { return a.sched.LastError() }

// SetVisible pauses (false) or resumes (true) automatic creates.
func (a *Autosaver) SetVisible(visible bool) { a.sched.SetVisible(visible) }

// Stop stops watching, cancels a pending create and waits for a running one.
func (a *Autosaver) Stop() error {
	err := a.watcher.Stop()
	a.sched.Close()
	return err
}
