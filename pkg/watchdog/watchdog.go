// Package watchdog pauses projects that are stuck or abandoned. Its only
// write is the idempotent pause.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Store is the read surface the watchdog scans plus the pause write.
type Store interface {
	ActiveProjects(ctx context.Context) ([]int64, error)
	OldestPending(ctx context.Context, projectID int64) (*time.Time, error)
	LastActivity(ctx context.Context, projectID int64) (time.Time, error)
	Pause(ctx context.Context, projectID int64, code, message string) error
}

// Watchdog periodically sweeps active projects, pausing any with a message
// stuck pending past the stall timeout or with no activity past the idle
// timeout.
type Watchdog struct {
	store        Store
	interval     time.Duration
	stallTimeout time.Duration
	idleTimeout  time.Duration

	now func() time.Time
}

// New creates a Watchdog.
func New(store Store, interval, stallTimeout, idleTimeout time.Duration) *Watchdog {
	return &Watchdog{
		store:        store,
		interval:     interval,
		stallTimeout: stallTimeout,
		idleTimeout:  idleTimeout,
		now:          time.Now,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) {
	slog.Info("Watchdog started", "interval", w.interval,
		"stall_timeout", w.stallTimeout, "idle_timeout", w.idleTimeout)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Watchdog stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep examines every active project once.
func (w *Watchdog) Sweep(ctx context.Context) {
	ids, err := w.store.ActiveProjects(ctx)
	if err != nil {
		slog.Error("Watchdog failed to list active projects", "error", err)
		return
	}

	for _, id := range ids {
		if err := w.check(ctx, id); err != nil {
			slog.Error("Watchdog check failed", "project_id", id, "error", err)
		}
	}
}

func (w *Watchdog) check(ctx context.Context, projectID int64) error {
	oldest, err := w.store.OldestPending(ctx, projectID)
	if err != nil {
		return err
	}
	if oldest != nil {
		if age := w.now().Sub(*oldest); age > w.stallTimeout {
			slog.Warn("Pausing stalled project", "project_id", projectID, "pending_age", age)
			return w.store.Pause(ctx, projectID, "stall",
				fmt.Sprintf("Project paused: a message has been pending for %s", age.Round(time.Second)))
		}
		// Work is pending but fresh; the worker is presumably on it.
		return nil
	}

	last, err := w.store.LastActivity(ctx, projectID)
	if err != nil {
		return err
	}
	if idle := w.now().Sub(last); idle > w.idleTimeout {
		slog.Warn("Pausing idle project", "project_id", projectID, "idle", idle)
		return w.store.Pause(ctx, projectID, "idle",
			fmt.Sprintf("Project paused: no activity for %s", idle.Round(time.Second)))
	}
	return nil
}
