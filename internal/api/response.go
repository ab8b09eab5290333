package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/batch"
	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Response is a standard API response wrapper.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(Response{Data: data}); err != nil {
		log := logger.WithComponent("api")
		log.Warn().Err(err).Msg("encode response")
	}
}

// JSONError writes a JSON error response.
func JSONError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)

	if encErr := json.NewEncoder(w).Encode(Response{Error: err}); encErr != nil {
		log := logger.WithComponent("api")
		log.Warn().Err(encErr).Msg("encode error response")
	}
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// AnomaliesResponse lists the findings of one detection run.
type AnomaliesResponse struct {
	PetID      string             `json:"pet_id"`
	AnalyzedAt time.Time          `json:"analyzed_at"`
	Findings   []detector.Finding `json:"findings"`
}

// EvaluateResponse lists the triggers fired for one subject.
type EvaluateResponse struct {
	Subject  models.Subject           `json:"subject"`
	Triggers []*alerting.TriggerResult `json:"triggers"`
}

// SweepResponse summarizes an on-demand sweep.
type SweepResponse struct {
	StartTime time.Time              `json:"start_time"`
	EndTime   time.Time              `json:"end_time"`
	Duration  string                 `json:"duration"`
	Checked   int                    `json:"checked"`
	Triggered int                    `json:"triggered"`
	Skipped   int                    `json:"skipped"`
	Canceled  bool                   `json:"canceled"`
	Results   []*batch.SubjectResult `json:"results"`
	Errors    []*batch.SubjectError  `json:"errors"`
}

func newSweepResponse(s *batch.SweepSummary) SweepResponse {
	resp := SweepResponse{
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Duration:  s.Duration.String(),
		Checked:   s.Checked,
		Triggered: s.Triggered,
		Skipped:   s.Skipped,
		Canceled:  s.Canceled,
		Results:   s.Results,
		Errors:    s.Errors,
	}
	if resp.Results == nil {
		resp.Results = []*batch.SubjectResult{}
	}
	if resp.Errors == nil {
		resp.Errors = []*batch.SubjectError{}
	}
	return resp
}
