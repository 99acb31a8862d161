package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Nudger wakes the turn engine for a project. Implemented locally when the
// worker shares the API process, or over HTTP against a separate worker.
type Nudger interface {
	Nudge(ctx context.Context, projectID int64)
}

// runState tracks one project's in-flight run. recheck is set when a nudge
// arrives while a run is active, so the run loops once more after finishing
// instead of spawning a second runner.
type runState struct {
	active  bool
	recheck bool
}

// Dispatcher serializes runs per project. Nudge never blocks the caller;
// concurrent nudges for the same project coalesce into at most one extra run.
type Dispatcher struct {
	runner *Runner

	mu     sync.Mutex
	states map[int64]*runState

	// baseCtx bounds the lifetime of spawned runs.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher whose runs are bounded by ctx.
func NewDispatcher(ctx context.Context, runner *Runner) *Dispatcher {
	return &Dispatcher{
		runner:  runner,
		states:  make(map[int64]*runState),
		baseCtx: ctx,
	}
}

// Nudge schedules a run for projectID. If a run is already active the nudge
// is folded into it; otherwise a new run goroutine starts.
func (d *Dispatcher) Nudge(_ context.Context, projectID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[projectID]
	if !ok {
		st = &runState{}
		d.states[projectID] = st
	}
	if st.active {
		st.recheck = true
		slog.Debug("Nudge coalesced into active run", "project_id", projectID)
		return
	}
	st.active = true

	d.wg.Add(1)
	go d.runLoop(projectID, st)
}

// runLoop executes runs until no recheck is pending, then releases the slot.
func (d *Dispatcher) runLoop(projectID int64, st *runState) {
	defer d.wg.Done()

	for {
		d.runner.Run(d.baseCtx, projectID)

		d.mu.Lock()
		if st.recheck {
			st.recheck = false
			d.mu.Unlock()
			continue
		}
		st.active = false
		delete(d.states, projectID)
		d.mu.Unlock()
		return
	}
}

// Wait blocks until all in-flight runs finish. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// LocalNudger feeds a Dispatcher in the same process.
type LocalNudger struct {
	Dispatcher *Dispatcher
}

func (n *LocalNudger) Nudge(ctx context.Context, projectID int64) {
	n.Dispatcher.Nudge(ctx, projectID)
}

// HTTPNudger forwards nudges to a separate worker deployment over the
// internal API. Delivery is best-effort; the watchdog recovers missed ones.
type HTTPNudger struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPNudger creates an HTTPNudger against baseURL (no trailing slash).
func NewHTTPNudger(baseURL, apiKey string) *HTTPNudger {
	return &HTTPNudger{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *HTTPNudger) Nudge(ctx context.Context, projectID int64) {
	body := strings.NewReader(fmt.Sprintf(`{"project_id":%d}`, projectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL+"/api/internal/nudge", body)
	if err != nil {
		slog.Error("Failed to build nudge request", "project_id", projectID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Brain-Api-Key", n.APIKey)

	resp, err := n.Client.Do(req)
	if err != nil {
		slog.Warn("Nudge delivery failed", "project_id", projectID, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		slog.Warn("Nudge rejected", "project_id", projectID, "status", resp.StatusCode)
	}
}
