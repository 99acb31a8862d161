package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	active   []int64
	pending  map[int64]*time.Time
	activity map[int64]time.Time
	pauses   map[int64]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pending:  make(map[int64]*time.Time),
		activity: make(map[int64]time.Time),
		pauses:   make(map[int64]string),
	}
}

func (s *fakeStore) ActiveProjects(_ context.Context) ([]int64, error) {
	return s.active, nil
}

func (s *fakeStore) OldestPending(_ context.Context, projectID int64) (*time.Time, error) {
	return s.pending[projectID], nil
}

func (s *fakeStore) LastActivity(_ context.Context, projectID int64) (time.Time, error) {
	return s.activity[projectID], nil
}

func (s *fakeStore) Pause(_ context.Context, projectID int64, code, _ string) error {
	if _, ok := s.pauses[projectID]; ok {
		return nil
	}
	s.pauses[projectID] = code
	return nil
}

func newTestWatchdog(store Store, now time.Time) *Watchdog {
	w := New(store, 30*time.Second, 90*time.Second, 90*time.Second)
	w.now = func() time.Time { return now }
	return w
}

func TestSweep_StalledProjectPaused(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.active = []int64{100}
	stuck := now.Add(-2 * time.Minute)
	store.pending[100] = &stuck
	store.activity[100] = now

	newTestWatchdog(store, now).Sweep(context.Background())

	assert.Equal(t, "stall", store.pauses[100])
}

func TestSweep_FreshPendingLeftAlone(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.active = []int64{100}
	recent := now.Add(-10 * time.Second)
	store.pending[100] = &recent
	// Idle beyond the timeout, but pending work means the worker owns it.
	store.activity[100] = now.Add(-time.Hour)

	newTestWatchdog(store, now).Sweep(context.Background())

	assert.Empty(t, store.pauses)
}

func TestSweep_IdleProjectPaused(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.active = []int64{100}
	store.activity[100] = now.Add(-3 * time.Minute)

	newTestWatchdog(store, now).Sweep(context.Background())

	assert.Equal(t, "idle", store.pauses[100])
}

func TestSweep_ActiveProjectLeftAlone(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.active = []int64{100}
	store.activity[100] = now.Add(-30 * time.Second)

	newTestWatchdog(store, now).Sweep(context.Background())

	assert.Empty(t, store.pauses)
}

func TestSweep_MultipleProjects(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.active = []int64{1, 2, 3}
	stuck := now.Add(-5 * time.Minute)
	store.pending[1] = &stuck
	store.activity[2] = now.Add(-5 * time.Minute)
	store.activity[3] = now

	newTestWatchdog(store, now).Sweep(context.Background())

	assert.Equal(t, "stall", store.pauses[1])
	assert.Equal(t, "idle", store.pauses[2])
	_, paused := store.pauses[3]
	assert.False(t, paused)
}

func TestStart_StopsOnCancel(t *testing.T) {
	store := newFakeStore()
	w := New(store, 10*time.Millisecond, time.Minute, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop")
	}
}
