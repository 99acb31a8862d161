package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// blockingBackend parks each GetContext call until released, so a test can
// hold a run mid-flight. The project reports paused, making GetContext the
// only call a run performs.
type blockingBackend struct {
	fakeBackend
	gate    chan struct{}
	mu      sync.Mutex
	fetches int
	fetched chan struct{}
}

func newBlockingBackend() *blockingBackend {
	b := &blockingBackend{
		gate:    make(chan struct{}),
		fetched: make(chan struct{}, 16),
	}
	b.fakeBackend.context = &models.ProjectContext{Project: models.Project{ID: 100}}
	b.fakeBackend.paused = true
	return b
}

func (b *blockingBackend) GetContext(ctx context.Context, projectID int64) (*models.ProjectContext, error) {
	b.mu.Lock()
	b.fetches++
	b.mu.Unlock()
	b.fetched <- struct{}{}
	<-b.gate
	return b.fakeBackend.GetContext(ctx, projectID)
}

func (b *blockingBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

func TestDispatcher_NudgesCoalesce(t *testing.T) {
	backend := newBlockingBackend()
	runner := newTestRunner(backend, &fakeChat{}, testConfig())
	d := NewDispatcher(context.Background(), runner)

	d.Nudge(context.Background(), 100)

	// Wait until the run is parked mid-flight.
	select {
	case <-backend.fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("run never started")
	}

	// Nudges against an active run fold into a single recheck.
	d.Nudge(context.Background(), 100)
	d.Nudge(context.Background(), 100)
	d.Nudge(context.Background(), 100)

	close(backend.gate)
	d.Wait()

	// One initial run plus exactly one coalesced recheck.
	assert.Equal(t, 2, backend.fetchCount())

	d.mu.Lock()
	assert.Empty(t, d.states, "run slot released")
	d.mu.Unlock()
}

func TestDispatcher_IndependentProjects(t *testing.T) {
	backend := newBlockingBackend()
	runner := newTestRunner(backend, &fakeChat{}, testConfig())
	d := NewDispatcher(context.Background(), runner)

	d.Nudge(context.Background(), 100)
	d.Nudge(context.Background(), 200)

	// Both runs start without waiting on each other.
	for i := 0; i < 2; i++ {
		select {
		case <-backend.fetched:
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d never started", i+1)
		}
	}

	close(backend.gate)
	d.Wait()
	assert.Equal(t, 2, backend.fetchCount())
}

func TestDispatcher_NudgeAfterCompletionStartsNewRun(t *testing.T) {
	backend := newBlockingBackend()
	close(backend.gate)

	runner := newTestRunner(backend, &fakeChat{}, testConfig())
	d := NewDispatcher(context.Background(), runner)

	d.Nudge(context.Background(), 100)
	d.Wait()
	d.Nudge(context.Background(), 100)
	d.Wait()

	require.Equal(t, 2, backend.fetchCount())
}
