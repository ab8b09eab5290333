package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/metrics"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// ErrTriggerConflict is returned by RuleStore.ClaimTrigger when the rule
// fired elsewhere after its stats were read.
var ErrTriggerConflict = errors.New("trigger already claimed")

// RuleStore reads alert rules and records their triggers.
type RuleStore interface {
	// ActiveRulesFor returns active rules scoped to the pet plus the user's
	// rules without a pet scope.
	ActiveRulesFor(ctx context.Context, userID, petID string) ([]*models.AlertRule, error)
	// ListActive returns every active rule.
	ListActive(ctx context.Context) ([]*models.AlertRule, error)
	// CountTriggersSince counts history rows of the rule at or after since.
	CountTriggersSince(ctx context.Context, ruleID string, since time.Time) (int, error)
	// ClaimTrigger inserts the history row and bumps the rule stats, provided the
	// stored last trigger time still equals claim.PreviousTriggered.
	ClaimTrigger(ctx context.Context, claim *models.TriggerClaim) error
	// RecordDelivery stores channel outcomes on the history row and adds the
	// delivered count to the rule's notification total.
	RecordDelivery(ctx context.Context, historyID, ruleID string, delivery models.Delivery) error
}

// Sink delivers a notification over one channel. A nil error means delivered.
type Sink interface {
	Deliver(ctx context.Context, channel models.Channel, n *models.Notification) error
}

// EventPublisher announces fired triggers to other services.
type EventPublisher interface {
	PublishTrigger(ctx context.Context, result *TriggerResult) error
}

// WindowSource reads record windows for a pet. It is satisfied by *detector.Detector.
type WindowSource interface {
	FetchWindowsWith(ctx context.Context, petID string, now time.Time, analysisDays, baselineDays int) (*detector.Windows, error)
	Options() detector.Options
}

// TriggerResult describes one fired trigger.
type TriggerResult struct {
	RuleID      string           `json:"rule_id"`
	RuleName    string           `json:"rule_name"`
	Subject     models.Subject   `json:"subject"`
	Finding     detector.Finding `json:"finding"`
	Delivery    models.Delivery  `json:"delivery"`
	TriggeredAt time.Time        `json:"triggered_at"`
	HistoryID   string           `json:"history_id"`
}

// EngineOptions configures the alert engine.
type EngineOptions struct {
	// Location defines local midnight for the daily cap. Defaults to UTC.
	Location *time.Location
	// Now returns the evaluation time. Defaults to time.Now.
	Now func() time.Time
	// Events receives fired triggers. Optional.
	Events EventPublisher
}

// DefaultEngineOptions returns default engine options.
func DefaultEngineOptions() *EngineOptions {
	return &EngineOptions{
		Location: time.UTC,
		Now:      time.Now,
	}
}

// Engine evaluates a subject's findings against its rules and fires triggers.
// It keeps no state between evaluations and is safe for concurrent use.
type Engine struct {
	store   RuleStore
	windows WindowSource
	sink    Sink
	events  EventPublisher
	matcher *Matcher

	loc *time.Location
	now func() time.Time
	log zerolog.Logger
}

// NewEngine creates a new alert engine.
func NewEngine(store RuleStore, windows WindowSource, sink Sink, opts *EngineOptions) *Engine {
	if opts == nil {
		opts = DefaultEngineOptions()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		store:   store,
		windows: windows,
		sink:    sink,
		events:  opts.Events,
		matcher: NewMatcher(),
		loc:     loc,
		now:     now,
		log:     logger.WithComponent("engine"),
	}
}

// Matcher returns the engine's rule matcher.
func (e *Engine) Matcher() *Matcher {
	return e.matcher
}

// EvaluateSubject runs detection for the subject's pet and fires every
// matching rule that is allowed to fire. Channel failures are recorded in
// the result; store failures abort the evaluation.
func (e *Engine) EvaluateSubject(ctx context.Context, subject models.Subject) ([]*TriggerResult, error) {
	rules, err := e.store.ActiveRulesFor(ctx, subject.UserID, subject.PetID)
	if err != nil {
		return nil, fmt.Errorf("load rules for %s: %w", subject, err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	now := e.now()
	log := logger.WithSubject(e.log, subject.UserID, subject.PetID)

	start := time.Now()
	w, base, err := e.fetch(ctx, subject.PetID, now)
	if err != nil {
		return nil, fmt.Errorf("detect anomalies for %s: %w", subject, err)
	}

	// One analysis per distinct threshold set.
	analyses := make(map[detector.Thresholds][]detector.Finding)
	analyze := func(t detector.Thresholds) []detector.Finding {
		if findings, ok := analyses[t]; ok {
			return findings
		}
		findings := detector.Anomalous(detector.Analyze(w, t))
		for _, f := range findings {
			metrics.FindingsTotal.WithLabelValues(string(f.Type), string(f.Severity)).Inc()
		}
		analyses[t] = findings
		return findings
	}
	analyze(base)
	metrics.DetectionDuration.Observe(time.Since(start).Seconds())

	var results []*TriggerResult
	for _, stored := range rules {
		rule := stored.Clone()
		findings := analyze(EffectiveThresholds(base, rule.CustomConditions))

	findingLoop:
		for _, f := range findings {
			matched, err := e.matcher.Match(rule, f)
			if err != nil {
				log.Warn().Err(err).Str("rule_id", rule.ID).Msg("custom condition failed, skipping finding")
				continue
			}
			if !matched {
				continue
			}

			usage, err := e.usage(ctx, rule.ID, now)
			if err != nil {
				return results, fmt.Errorf("count triggers for rule %s: %w", rule.ID, err)
			}
			if !CanFire(rule, usage, now) {
				log.Debug().
					Str("rule_id", rule.ID).
					Str("type", string(f.Type)).
					Int("today", usage.Today).
					Int("this_week", usage.ThisWeek).
					Msg("rule suppressed by cooldown or caps")
				continue
			}

			res, err := e.fire(ctx, rule, subject, f, now, log)
			switch {
			case errors.Is(err, ErrTriggerConflict):
				metrics.TriggerConflicts.Inc()
				log.Info().Str("rule_id", rule.ID).Msg("rule fired concurrently, skipping")
				break findingLoop
			case err != nil:
				return results, err
			}
			results = append(results, res)
		}
	}

	return results, nil
}

// Findings runs detection for a pet with the configured thresholds and
// returns every finding, anomalous or not.
func (e *Engine) Findings(ctx context.Context, petID string) ([]detector.Finding, error) {
	w, thresholds, err := e.fetch(ctx, petID, e.now())
	if err != nil {
		return nil, err
	}
	return detector.Analyze(w, thresholds), nil
}

// fetch returns windows and thresholds taken from a single options snapshot.
func (e *Engine) fetch(ctx context.Context, petID string, now time.Time) (*detector.Windows, detector.Thresholds, error) {
	opts := e.windows.Options()
	w, err := e.windows.FetchWindowsWith(ctx, petID, now, opts.AnalysisWindowDays, opts.BaselineWindowDays)
	if err != nil {
		return nil, detector.Thresholds{}, err
	}
	return w, opts.Thresholds, nil
}

func (e *Engine) usage(ctx context.Context, ruleID string, now time.Time) (Usage, error) {
	today, err := e.store.CountTriggersSince(ctx, ruleID, startOfDay(now, e.loc))
	if err != nil {
		return Usage{}, err
	}
	week, err := e.store.CountTriggersSince(ctx, ruleID, now.Add(-UsageWindow))
	if err != nil {
		return Usage{}, err
	}
	return Usage{Today: today, ThisWeek: week}, nil
}

// fire claims the trigger, dispatches one notification per enabled channel
// and records the outcome. rule is updated in place to the new stats.
func (e *Engine) fire(ctx context.Context, rule *models.AlertRule, subject models.Subject,
	f detector.Finding, now time.Time, log zerolog.Logger) (*TriggerResult, error) {
	history := &models.TriggerHistory{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		UserID:      subject.UserID,
		PetID:       subject.PetID,
		AnomalyType: f.Type,
		Severity:    f.Severity,
		Confidence:  f.Confidence,
		Description: f.Description,
		TriggeredAt: now,
	}
	claim := &models.TriggerClaim{
		RuleID:            rule.ID,
		PreviousTriggered: rule.Stats.LastTriggered,
		History:           history,
	}
	if err := e.store.ClaimTrigger(ctx, claim); err != nil {
		return nil, fmt.Errorf("claim trigger for rule %s: %w", rule.ID, err)
	}

	triggeredAt := now
	rule.Stats.TotalTriggered++
	rule.Stats.LastTriggered = &triggeredAt
	metrics.TriggersTotal.WithLabelValues(string(f.Type)).Inc()

	n := BuildNotification(rule, subject, f, now)
	var delivery models.Delivery
	for _, ch := range rule.Channels() {
		err := e.sink.Deliver(ctx, ch, n)
		delivery.Set(ch, err == nil)
		if err != nil {
			log.Warn().Err(err).Str("rule_id", rule.ID).Str("channel", string(ch)).Msg("notification delivery failed")
		}
	}

	if err := e.store.RecordDelivery(ctx, history.ID, rule.ID, delivery); err != nil {
		return nil, fmt.Errorf("record delivery for rule %s: %w", rule.ID, err)
	}
	rule.Stats.TotalNotificationsSent += int64(delivery.Delivered())

	log.Info().
		Str("rule_id", rule.ID).
		Str("type", string(f.Type)).
		Str("severity", string(f.Severity)).
		Float64("confidence", f.Confidence).
		Int("delivered", delivery.Delivered()).
		Msg("rule triggered")

	res := &TriggerResult{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Subject:     subject,
		Finding:     f,
		Delivery:    delivery,
		TriggeredAt: now,
		HistoryID:   history.ID,
	}

	if e.events != nil {
		if err := e.events.PublishTrigger(ctx, res); err != nil {
			log.Warn().Err(err).Str("rule_id", rule.ID).Msg("publish trigger event failed")
		}
	}

	return res, nil
}
