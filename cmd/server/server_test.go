package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/batch"
	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type countingSweeper struct {
	mu      sync.Mutex
	calls   int
	err     error
	summary *batch.SweepSummary
	ran     chan struct{}
}

func (s *countingSweeper) Run(ctx context.Context) (*batch.SweepSummary, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	defer func() {
		select {
		case s.ran <- struct{}{}:
		default:
		}
	}()
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

type recordingPruner struct {
	mu     sync.Mutex
	before []time.Time
	pruned chan struct{}
}

func (p *recordingPruner) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	p.before = append(p.before, before)
	p.mu.Unlock()
	select {
	case p.pruned <- struct{}{}:
	default:
	}
	return 2, nil
}

// runLoopOnce runs the loop until signal fires, then stops it.
func runLoopOnce(t *testing.T, loop *sweepLoop, signal <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case <-signal:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not reach the expected step")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestSweepLoop_RunOnStartAndPrune(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	sweeper := &countingSweeper{
		summary: &batch.SweepSummary{Errors: []*batch.SubjectError{{
			Subject: models.Subject{UserID: "user-1", PetID: "pet-1"},
			Message: "boom",
		}}},
		ran: make(chan struct{}, 1),
	}
	pruner := &recordingPruner{pruned: make(chan struct{}, 1)}
	loop := &sweepLoop{
		sweeper:   sweeper,
		history:   pruner,
		interval:  time.Hour,
		retention: 24 * time.Hour,
		runNow:    true,
		now:       func() time.Time { return now },
		log:       zerolog.Nop(),
	}

	runLoopOnce(t, loop, pruner.pruned)

	pruner.mu.Lock()
	defer pruner.mu.Unlock()
	if len(pruner.before) != 1 {
		t.Fatalf("prune calls = %d, want 1", len(pruner.before))
	}
	if want := now.Add(-24 * time.Hour); !pruner.before[0].Equal(want) {
		t.Errorf("pruned before %v, want %v", pruner.before[0], want)
	}
}

func TestSweepLoop_FailureSkipsPrune(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("list active rules: locked"), ran: make(chan struct{}, 1)}
	pruner := &recordingPruner{pruned: make(chan struct{}, 1)}
	loop := &sweepLoop{
		sweeper:   sweeper,
		history:   pruner,
		interval:  time.Hour,
		retention: time.Hour,
		runNow:    true,
		log:       zerolog.Nop(),
	}

	runLoopOnce(t, loop, sweeper.ran)

	pruner.mu.Lock()
	defer pruner.mu.Unlock()
	if len(pruner.before) != 0 {
		t.Errorf("prune ran after a failed sweep")
	}
}

func TestSweepLoop_Ticks(t *testing.T) {
	sweeper := &countingSweeper{summary: &batch.SweepSummary{}, ran: make(chan struct{}, 1)}
	loop := &sweepLoop{
		sweeper:  sweeper,
		interval: 10 * time.Millisecond,
		log:      zerolog.Nop(),
	}

	runLoopOnce(t, loop, sweeper.ran)

	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()
	if sweeper.calls < 1 {
		t.Errorf("calls = %d, want at least 1", sweeper.calls)
	}
}

type recordingTarget struct {
	mu   sync.Mutex
	opts []detector.Options
}

func (r *recordingTarget) SetOptions(opts detector.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = append(r.opts, opts)
	return nil
}

func TestConfigWatcher_ReloadsDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pawwatch.yaml")
	if err := os.WriteFile(path, []byte("detection:\n  analysis_window_days: 14\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	target := &recordingTarget{}
	w, err := newConfigWatcher(path, target)
	if err != nil {
		t.Fatalf("newConfigWatcher() error = %v", err)
	}
	w.debounce = 20 * time.Millisecond
	w.log = zerolog.Nop()
	reloaded := make(chan detector.Options, 1)
	w.reloaded = reloaded

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Rewrite until the watcher is registered and picks the change up.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var got detector.Options
wait:
	for {
		select {
		case got = <-reloaded:
			break wait
		case <-ticker.C:
			if err := os.WriteFile(path, []byte("detection:\n  analysis_window_days: 7\n"), 0o600); err != nil {
				t.Fatalf("rewrite config: %v", err)
			}
		case <-deadline:
			t.Fatal("config was not reloaded")
		}
	}

	if got.AnalysisWindowDays != 7 {
		t.Errorf("analysis_window_days = %d, want 7", got.AnalysisWindowDays)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestConfigWatcher_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pawwatch.yaml")
	if err := os.WriteFile(path, []byte("detection:\n  analysis_window_days: 60\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	target := &recordingTarget{}
	w, err := newConfigWatcher(path, target)
	if err != nil {
		t.Fatalf("newConfigWatcher() error = %v", err)
	}
	w.log = zerolog.Nop()
	w.reload()

	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.opts) != 0 {
		t.Errorf("invalid config applied: %+v", target.opts)
	}
}
