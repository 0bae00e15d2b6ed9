// Package scheduler runs the periodic resolution sweeps: due missiles,
// due spy missions, expired votes, and elapsed battery cooldowns.
//
// Each family gets its own Sweeper with an independent interval. A sweep
// calls a resolution function that is safe to run concurrently with user
// writes and with an overlapping sweep; conflict errors are absorbed
// inside the resolution functions themselves. Run records are persisted
// through a RunStore so the last-run state survives restarts and is
// shared between instances.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mbd888/warclan/internal/idgen"
	"github.com/mbd888/warclan/internal/logging"
	"github.com/mbd888/warclan/internal/metrics"
)

// SweepFunc resolves every due entity of one family. It reports how many
// items were processed and how many failed; err is reserved for failures
// that abort the whole sweep, such as the listing query.
type SweepFunc func(ctx context.Context) (processed, failed int, err error)

// Run is one recorded sweep execution.
type Run struct {
	ID         string    `json:"id"`
	Family     string    `json:"family"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// ErrNoRuns is returned when a family has never swept.
var ErrNoRuns = errors.New("no recorded runs")

// RunStore persists sweep run records.
type RunStore interface {
	RecordRun(ctx context.Context, r *Run) error
	LastRun(ctx context.Context, family string) (*Run, error)
}

// Sweeper periodically executes one family's sweep.
type Sweeper struct {
	family   string
	interval time.Duration
	fn       SweepFunc
	runs     RunStore
}

// Scheduler owns a set of sweepers and their lifecycle.
type Scheduler struct {
	runs     RunStore
	sweepers []*Sweeper

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    sync.WaitGroup
	started bool
}

// New creates a scheduler that records runs in the given store.
func New(runs RunStore) *Scheduler {
	return &Scheduler{runs: runs}
}

// Register adds a sweep family. Must be called before Start.
func (s *Scheduler) Register(family string, interval time.Duration, fn SweepFunc) {
	s.sweepers = append(s.sweepers, &Sweeper{
		family:   family,
		interval: interval,
		fn:       fn,
		runs:     s.runs,
	})
}

// Start launches one goroutine per registered sweeper. Each sweeper runs
// once immediately, then on its ticker.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, sw := range s.sweepers {
		s.done.Add(1)
		go func(sw *Sweeper) {
			defer s.done.Done()
			sw.loop(ctx)
		}(sw)
	}
	logging.L(ctx).Info("scheduler started", "sweepers", len(s.sweepers))
}

// Stop cancels every sweeper and waits for in-flight sweeps to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.done.Wait()
}

// LastRun returns the most recent run record for a family.
func (s *Scheduler) LastRun(ctx context.Context, family string) (*Run, error) {
	return s.runs.LastRun(ctx, family)
}

// Families returns the registered family names.
func (s *Scheduler) Families() []string {
	out := make([]string, len(s.sweepers))
	for i, sw := range s.sweepers {
		out[i] = sw.family
	}
	return out
}

func (sw *Sweeper) loop(ctx context.Context) {
	sw.runOnce(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.runOnce(ctx)
		}
	}
}

// runOnce executes one sweep, recovering from panics so a bad batch never
// kills the poller goroutine.
func (sw *Sweeper) runOnce(ctx context.Context) {
	run := &Run{
		ID:        idgen.WithPrefix("run"),
		Family:    sw.family,
		StartedAt: time.Now(),
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				run.Error = fmt.Sprintf("panic: %v", r)
				logging.L(ctx).Error("sweep panicked", "family", sw.family, "panic", r)
			}
		}()
		processed, failed, err := sw.fn(ctx)
		run.Processed = processed
		run.Failed = failed
		if err != nil {
			run.Error = err.Error()
		}
	}()
	run.FinishedAt = time.Now()

	result := "ok"
	if run.Error != "" {
		result = "error"
		logging.L(ctx).Error("sweep failed", "family", sw.family, "error", run.Error)
	} else if run.Processed > 0 || run.Failed > 0 {
		logging.L(ctx).Info("sweep completed",
			"family", sw.family, "processed", run.Processed, "failed", run.Failed,
			"duration", run.FinishedAt.Sub(run.StartedAt))
	}

	metrics.SweepRunsTotal.WithLabelValues(sw.family, result).Inc()
	metrics.SweepDuration.WithLabelValues(sw.family).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	metrics.SweepItemsTotal.WithLabelValues(sw.family, "processed").Add(float64(run.Processed))
	metrics.SweepItemsTotal.WithLabelValues(sw.family, "failed").Add(float64(run.Failed))

	if err := sw.runs.RecordRun(ctx, run); err != nil {
		logging.L(ctx).Error("record sweep run failed", "family", sw.family, "error", err)
	}
}
