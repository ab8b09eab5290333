// Package batch runs alert evaluation sweeps over every subject with an
// active rule.
package batch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Evaluator evaluates all rules for one subject. It is satisfied by
// *alerting.Engine.
type Evaluator interface {
	EvaluateSubject(ctx context.Context, subject models.Subject) ([]*alerting.TriggerResult, error)
}

// RuleLister lists active rules.
type RuleLister interface {
	ListActive(ctx context.Context) ([]*models.AlertRule, error)
}

// PetDirectory resolves the pets owned by a user.
type PetDirectory interface {
	PetsForUser(ctx context.Context, userID string) ([]*models.Pet, error)
}

// SweepOptions configures a Sweeper.
type SweepOptions struct {
	// Workers is the number of concurrent subject evaluations.
	Workers int
	// SubjectTimeout bounds a single subject evaluation.
	SubjectTimeout time.Duration
	// LaunchRate limits subject launches per second. Zero means unlimited.
	LaunchRate float64
	// Now returns the current time.
	Now func() time.Time
}

// DefaultSweepOptions returns the default sweep options.
func DefaultSweepOptions() *SweepOptions {
	return &SweepOptions{
		Workers:        8,
		SubjectTimeout: 30 * time.Second,
		Now:            time.Now,
	}
}

// Sweeper evaluates every subject that has at least one active rule.
type Sweeper struct {
	rules     RuleLister
	pets      PetDirectory
	evaluator Evaluator
	opts      *SweepOptions
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewSweeper creates a sweeper. A nil opts uses DefaultSweepOptions.
func NewSweeper(rules RuleLister, pets PetDirectory, evaluator Evaluator, opts *SweepOptions) *Sweeper {
	defaults := DefaultSweepOptions()
	if opts == nil {
		opts = defaults
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.SubjectTimeout <= 0 {
		opts.SubjectTimeout = defaults.SubjectTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Sweeper{
		rules:     rules,
		pets:      pets,
		evaluator: evaluator,
		opts:      opts,
		log:       logger.WithComponent("sweeper"),
	}
	if opts.LaunchRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.LaunchRate), 1)
	}
	return s
}

// Subjects returns the distinct subjects covered by active rules, sorted by
// key. Rules without a pet expand to every pet of their user.
func (s *Sweeper) Subjects(ctx context.Context) ([]models.Subject, error) {
	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	seen := make(map[models.Subject]struct{})
	expanded := make(map[string]bool)
	for _, rule := range rules {
		if rule.PetID != "" {
			seen[models.Subject{UserID: rule.UserID, PetID: rule.PetID}] = struct{}{}
			continue
		}
		if expanded[rule.UserID] {
			continue
		}
		expanded[rule.UserID] = true

		pets, err := s.pets.PetsForUser(ctx, rule.UserID)
		if err != nil {
			return nil, fmt.Errorf("list pets for user %s: %w", rule.UserID, err)
		}
		for _, pet := range pets {
			seen[pet.Subject()] = struct{}{}
		}
	}

	subjects := make([]models.Subject, 0, len(seen))
	for subject := range seen {
		subjects = append(subjects, subject)
	}
	sort.Slice(subjects, func(i, j int) bool {
		return subjects[i].Key() < subjects[j].Key()
	})
	return subjects, nil
}

// Run performs one sweep. A failing subject is recorded in the summary and
// does not stop the others. Canceling ctx stops launching new subjects;
// subjects already running finish or hit their own timeout.
func (s *Sweeper) Run(ctx context.Context) (*SweepSummary, error) {
	summary := &SweepSummary{StartTime: s.opts.Now()}
	timer := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(timer).Seconds())
	}()

	subjects, err := s.Subjects(ctx)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// Evaluations outlive sweep cancellation.
	evalCtx := context.WithoutCancel(ctx)
	pool := NewWorkerPool(s.opts.Workers, 0)
	pool.Start(evalCtx, s.evaluate)

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range pool.Outcomes() {
			if o.Err == nil {
				summary.Results = append(summary.Results, o.Result)
				metrics.SubjectsEvaluated.WithLabelValues("success").Inc()
				continue
			}
			summary.Errors = append(summary.Errors, o.Err)
			metrics.SubjectsEvaluated.WithLabelValues("error").Inc()
			s.log.Warn().
				Str("user_id", o.Err.Subject.UserID).
				Str("pet_id", o.Err.Subject.PetID).
				Str("error", o.Err.Message).
				Msg("subject evaluation failed")
		}
	}()

	for _, subject := range subjects {
		if s.limiter != nil {
			// Wait fails early when the deadline falls before the next token.
			if err := s.limiter.Wait(ctx); err != nil {
				summary.Canceled = true
				break
			}
		}
		if err := pool.Submit(ctx, subject); err != nil {
			summary.Canceled = true
			break
		}
	}

	pool.Close()
	<-collected
	summary.finalize(s.opts.Now(), len(subjects))

	result := "success"
	switch {
	case summary.Canceled:
		result = "canceled"
	case len(summary.Errors) > 0:
		result = "partial"
	}
	metrics.SweepsTotal.WithLabelValues(result).Inc()

	s.log.Info().
		Int("subjects", len(subjects)).
		Int("checked", summary.Checked).
		Int("triggered", summary.Triggered).
		Int("skipped", summary.Skipped).
		Int("errors", len(summary.Errors)).
		Dur("duration", summary.Duration).
		Msg("sweep finished")

	return summary, nil
}

func (s *Sweeper) evaluate(ctx context.Context, subject models.Subject) (*SubjectResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SubjectTimeout)
	defer cancel()

	start := time.Now()
	triggers, err := s.evaluator.EvaluateSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &SubjectResult{
		Subject:  subject,
		Triggers: triggers,
		Duration: time.Since(start),
	}, nil
}
