// Package scheduler runs the periodic stale-process sweep: instances that sit
// at a non-terminal stage for too long are reported so recruiters can act.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"corebridge/process-service/internal/process"
)

const defaultBatch = 500

// StaleLister is the query the sweep needs; *process.Service satisfies it.
type StaleLister interface {
	CountStale(ctx context.Context, stage process.Stage, olderThan time.Duration) (int64, error)
	ListStale(ctx context.Context, stage process.Stage, olderThan time.Duration, limit int) ([]process.Instance, error)
}

// Report is the outcome of one sweep. Counts holds the number of stale
// instances per stage; Oldest holds at most one batch of them, oldest first.
type Report struct {
	Counts map[process.Stage]int64
	Oldest map[process.Stage][]process.Instance
}

// Total returns the number of stale instances across stages.
func (r Report) Total() int64 {
	var n int64
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Scheduler wraps robfig/cron and manages the sweep loop.
type Scheduler struct {
	cron      *cron.Cron
	lister    StaleLister
	spec      string // cron spec, e.g. "@every 1h"
	olderThan time.Duration
	batch     int
	gauge     metric.Int64Gauge
}

// New creates a Scheduler that sweeps on spec for instances unchanged for
// longer than olderThan.
func New(lister StaleLister, spec string, olderThan time.Duration) *Scheduler {
	gauge, err := otel.Meter("corebridge/process-service/scheduler").Int64Gauge(
		"process.stale", metric.WithDescription("Instances idle past the stale threshold, by stage"))
	if err != nil {
		gauge = noop.Int64Gauge{}
	}
	return &Scheduler{
		cron:      cron.New(),
		lister:    lister,
		spec:      spec,
		olderThan: olderThan,
		batch:     defaultBatch,
		gauge:     gauge,
	}
}

// Start registers the job and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			slog.Error("stale sweep failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	slog.Info("stale sweep scheduled", "spec", s.spec, "olderThan", s.olderThan)
	return nil
}

// Stop shuts down the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("stale sweep stopped")
}

// Sweep checks every non-terminal stage once.
func (s *Scheduler) Sweep(ctx context.Context) (Report, error) {
	report := Report{
		Counts: make(map[process.Stage]int64),
		Oldest: make(map[process.Stage][]process.Instance),
	}
	for _, info := range process.AllStages() {
		if info.Terminal {
			continue
		}
		count, err := s.lister.CountStale(ctx, info.Stage, s.olderThan)
		if err != nil {
			return report, fmt.Errorf("count stale %s: %w", info.Stage, err)
		}
		s.gauge.Record(ctx, count, metric.WithAttributes(attribute.String("stage", string(info.Stage))))
		if count == 0 {
			continue
		}
		report.Counts[info.Stage] = count

		stale, err := s.lister.ListStale(ctx, info.Stage, s.olderThan, s.batch)
		if err != nil {
			return report, fmt.Errorf("list stale %s: %w", info.Stage, err)
		}
		if len(stale) == 0 {
			continue
		}
		report.Oldest[info.Stage] = stale
		slog.Warn("stale processes", "stage", info.Stage, "count", count, "oldestProcessId", stale[0].ID)
	}
	slog.Info("stale sweep complete", "total", report.Total())
	return report, nil
}
