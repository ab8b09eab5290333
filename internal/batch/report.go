package batch

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// SweepSummary contains the outcome of one batch sweep.
type SweepSummary struct {
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"-"`
	Checked   int              `json:"checked"`
	Triggered int              `json:"triggered"`
	Skipped   int              `json:"skipped"`
	Canceled  bool             `json:"canceled,omitempty"`
	Results   []*SubjectResult `json:"results"`
	Errors    []*SubjectError  `json:"errors,omitempty"`
}

// SubjectResult holds the triggers fired for one evaluated subject.
type SubjectResult struct {
	Subject  models.Subject            `json:"subject"`
	Triggers []*alerting.TriggerResult `json:"triggers"`
	Duration time.Duration             `json:"-"`
}

// MarshalJSON reports Duration as whole milliseconds in duration_ms.
func (s SweepSummary) MarshalJSON() ([]byte, error) {
	type plain SweepSummary
	return json.Marshal(struct {
		plain
		DurationMS int64 `json:"duration_ms"`
	}{plain(s), s.Duration.Milliseconds()})
}

// MarshalJSON reports Duration as whole milliseconds in duration_ms.
func (r SubjectResult) MarshalJSON() ([]byte, error) {
	type plain SubjectResult
	return json.Marshal(struct {
		plain
		DurationMS int64 `json:"duration_ms"`
	}{plain(r), r.Duration.Milliseconds()})
}

// SubjectError records a failed subject evaluation.
type SubjectError struct {
	Subject models.Subject `json:"subject"`
	Message string         `json:"message"`
}

func (e *SubjectError) Error() string {
	return e.Subject.Key() + ": " + e.Message
}

// finalize fills in the counters and orders results by subject key.
func (s *SweepSummary) finalize(end time.Time, total int) {
	s.EndTime = end
	s.Duration = end.Sub(s.StartTime)
	s.Checked = len(s.Results) + len(s.Errors)
	s.Skipped = total - s.Checked
	if s.Skipped < 0 {
		s.Skipped = 0
	}

	s.Triggered = 0
	for _, r := range s.Results {
		s.Triggered += len(r.Triggers)
	}

	sort.Slice(s.Results, func(i, j int) bool {
		return s.Results[i].Subject.Key() < s.Results[j].Subject.Key()
	})
	sort.Slice(s.Errors, func(i, j int) bool {
		return s.Errors[i].Subject.Key() < s.Errors[j].Subject.Key()
	})
}

// ErrorFor returns the error recorded for subject, if any.
func (s *SweepSummary) ErrorFor(subject models.Subject) *SubjectError {
	for _, e := range s.Errors {
		if e.Subject == subject {
			return e
		}
	}
	return nil
}
