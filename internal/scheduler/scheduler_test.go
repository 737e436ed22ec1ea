package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corebridge/process-service/internal/process"
	"corebridge/process-service/internal/scheduler"
)

type fakeLister struct {
	mu     sync.Mutex
	stale  map[process.Stage][]process.Instance
	counts map[process.Stage]int64 // defaults to len(stale[stage])
	asked  []process.Stage
	limits []int
	err    error
	called chan struct{}
}

func (f *fakeLister) CountStale(_ context.Context, stage process.Stage, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, stage)
	if f.called != nil {
		select {
		case f.called <- struct{}{}:
		default:
		}
	}
	if f.err != nil {
		return 0, f.err
	}
	if n, ok := f.counts[stage]; ok {
		return n, nil
	}
	return int64(len(f.stale[stage])), nil
}

func (f *fakeLister) ListStale(_ context.Context, stage process.Stage, _ time.Duration, limit int) ([]process.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	return f.stale[stage], nil
}

func TestSweepSkipsTerminalStages(t *testing.T) {
	lister := &fakeLister{stale: map[process.Stage][]process.Instance{
		process.StageApplied:     {{ID: 1}, {ID: 2}},
		process.StageFinalReview: {{ID: 3}},
	}}
	s := scheduler.New(lister, "@every 1h", 24*time.Hour)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Total())
	assert.Len(t, report.Oldest[process.StageApplied], 2)
	assert.Len(t, report.Oldest[process.StageFinalReview], 1)
	assert.Len(t, lister.limits, 2, "only stages with stale instances are listed")

	for _, st := range lister.asked {
		assert.False(t, st.IsTerminal(), "terminal stage %s must not be swept", st)
	}
	assert.Len(t, lister.asked, 10)
}

func TestSweepCountsBeyondOneBatch(t *testing.T) {
	lister := &fakeLister{
		stale:  map[process.Stage][]process.Instance{process.StageCodingTest: {{ID: 7}}},
		counts: map[process.Stage]int64{process.StageCodingTest: 1200},
	}
	s := scheduler.New(lister, "@every 1h", time.Hour)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1200), report.Counts[process.StageCodingTest])
	assert.Equal(t, int64(1200), report.Total())
	assert.Len(t, report.Oldest[process.StageCodingTest], 1)
	require.Len(t, lister.limits, 1)
	assert.Less(t, lister.limits[0], 1200, "listing stays bounded")
}

func TestSweepStopsOnError(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	s := scheduler.New(lister, "@every 1h", time.Hour)

	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
	assert.Len(t, lister.asked, 1)
}

func TestStartRunsOnSchedule(t *testing.T) {
	lister := &fakeLister{called: make(chan struct{}, 1)}
	s := scheduler.New(lister, "@every 1s", time.Hour)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-lister.called:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not run")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := scheduler.New(&fakeLister{}, "not a spec", time.Hour)
	assert.Error(t, s.Start(context.Background()))
}
