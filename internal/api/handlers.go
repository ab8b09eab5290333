package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/models"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

// handleAnomalies runs detection for one pet. With ?anomalous=true only
// anomalous findings are returned.
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	pet, apiErr := s.lookupPet(ctx, chi.URLParam(r, "petID"))
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	anomalousOnly := false
	if v := r.URL.Query().Get("anomalous"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			JSONError(w, NewBadRequest("anomalous must be a boolean"))
			return
		}
		anomalousOnly = b
	}

	findings, err := s.engine.Findings(ctx, pet.ID)
	if err != nil {
		s.log.Error().Err(err).Str("pet_id", pet.ID).Msg("detect anomalies")
		JSONError(w, backendError(ctx))
		return
	}
	if anomalousOnly {
		findings = detector.Anomalous(findings)
	}
	if findings == nil {
		findings = []detector.Finding{}
	}

	OK(w, AnomaliesResponse{
		PetID:      pet.ID,
		AnalyzedAt: time.Now().UTC(),
		Findings:   findings,
	})
}

// handleEvaluate evaluates the pet against its owner's rules and fires
// triggers.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	pet, apiErr := s.lookupPet(ctx, chi.URLParam(r, "petID"))
	if apiErr != nil {
		JSONError(w, apiErr)
		return
	}

	subject := pet.Subject()
	triggers, err := s.engine.EvaluateSubject(ctx, subject)
	if err != nil {
		s.log.Error().Err(err).Str("subject", subject.Key()).Msg("evaluate subject")
		JSONError(w, backendError(ctx))
		return
	}
	if triggers == nil {
		triggers = []*alerting.TriggerResult{}
	}

	OK(w, EvaluateResponse{Subject: subject, Triggers: triggers})
}

// handleSweep runs one batch sweep. The sweep is detached from the request so
// a disconnecting client does not abort it.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !s.sweepMu.TryLock() {
		JSONError(w, ErrSweepInProgress)
		return
	}
	defer s.sweepMu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.config.SweepTimeout)
	defer cancel()

	summary, err := s.sweeper.Run(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("on-demand sweep failed")
		JSONError(w, backendError(ctx))
		return
	}

	OK(w, newSweepResponse(summary))
}

func (s *Server) lookupPet(ctx context.Context, petID string) (*models.Pet, *Error) {
	if petID == "" {
		return nil, NewBadRequest("pet id is required")
	}
	pet, err := s.pets.GetByID(ctx, petID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPetNotFound
	}
	if err != nil {
		s.log.Error().Err(err).Str("pet_id", petID).Msg("look up pet")
		return nil, backendError(ctx)
	}
	return pet, nil
}

// backendError maps a failed backend call to a timeout or internal error.
func backendError(ctx context.Context) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrInternalServer
}
