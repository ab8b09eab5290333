package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/batch"
)

// sweepRunner is satisfied by *batch.Sweeper.
type sweepRunner interface {
	Run(ctx context.Context) (*batch.SweepSummary, error)
}

// historyPruner is satisfied by the trigger history repository.
type historyPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// sweepLoop runs a sweep every interval. A failed sweep is logged and the
// loop keeps going.
type sweepLoop struct {
	sweeper   sweepRunner
	history   historyPruner
	interval  time.Duration
	retention time.Duration
	runNow    bool
	now       func() time.Time
	log       zerolog.Logger
}

// Run blocks until ctx is canceled.
func (l *sweepLoop) Run(ctx context.Context) error {
	if l.now == nil {
		l.now = time.Now
	}
	l.log.Info().Dur("interval", l.interval).Msg("sweep loop started")

	if l.runNow {
		l.tick(ctx)
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("sweep loop stopped")
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *sweepLoop) tick(ctx context.Context) {
	summary, err := l.sweeper.Run(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if len(summary.Errors) > 0 {
		for _, e := range summary.Errors {
			l.log.Warn().Str("subject", e.Subject.Key()).Str("error", e.Message).Msg("subject evaluation failed")
		}
	}

	if l.retention <= 0 || l.history == nil || ctx.Err() != nil {
		return
	}
	deleted, err := l.history.DeleteBefore(ctx, l.now().Add(-l.retention))
	if err != nil {
		l.log.Error().Err(err).Msg("prune trigger history")
		return
	}
	if deleted > 0 {
		l.log.Info().Int64("deleted", deleted).Msg("pruned trigger history")
	}
}
