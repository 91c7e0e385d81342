package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/jobs"
)

// triggerBillingCycle starts a billing cycle run in the background. The
// run ID is returned immediately; progress lives in the job ledger.
func (s *Server) triggerBillingCycle(w http.ResponseWriter, r *http.Request) {
	runID, err := s.cycle.Start(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to start billing cycle run")
		respondError(w, http.StatusInternalServerError, "failed to start job")
		return
	}

	err = s.runner.Submit("billing_cycle", func(ctx context.Context) error {
		_, execErr := s.cycle.Execute(ctx, runID)
		return execErr
	})
	if err != nil {
		s.rejectTrigger(r.Context(), w, runID, err)
		return
	}
	respondJSON(w, http.StatusAccepted, jobAcceptedResponse{RunID: runID, Status: "accepted"})
}

// triggerDunning starts a dunning run in the background
func (s *Server) triggerDunning(w http.ResponseWriter, r *http.Request) {
	runID, err := s.dunning.Start(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to start dunning run")
		respondError(w, http.StatusInternalServerError, "failed to start job")
		return
	}

	err = s.runner.Submit("dunning", func(ctx context.Context) error {
		_, execErr := s.dunning.Execute(ctx, runID)
		return execErr
	})
	if err != nil {
		s.rejectTrigger(r.Context(), w, runID, err)
		return
	}
	respondJSON(w, http.StatusAccepted, jobAcceptedResponse{RunID: runID, Status: "accepted"})
}

// rejectTrigger closes out a ledger entry whose job never made it onto
// the queue
func (s *Server) rejectTrigger(ctx context.Context, w http.ResponseWriter, runID uuid.UUID, submitErr error) {
	if err := s.ledger.Fail(ctx, runID, submitErr, nil); err != nil {
		s.logger.WithError(err).Error("failed to record rejected job run")
	}
	if errors.Is(submitErr, jobs.ErrQueueFull) {
		respondError(w, http.StatusServiceUnavailable, "job queue full, try again later")
		return
	}
	respondError(w, http.StatusServiceUnavailable, "job runner unavailable")
}

func (s *Server) listJobRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 200)
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			offset = n
		}
	}

	runs, err := s.ledger.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("failed to list job runs")
		respondError(w, http.StatusInternalServerError, "failed to list job runs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": runs})
}

func (s *Server) getJobRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "job run not found")
			return
		}
		s.logger.WithError(err).Error("failed to load job run")
		respondError(w, http.StatusInternalServerError, "failed to load job run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to compute stats")
		respondError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	s.metrics.ActiveSubscriptions.Set(float64(stats.ActiveSubscriptions))
	s.metrics.MRRCents.Set(float64(stats.MRRCents))

	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{
		Limit: queryInt(r, "limit", 100, 500),
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Offset = n
		}
	}
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid tenant_id")
			return
		}
		filter.TenantID = &id
	}
	if raw := r.URL.Query().Get("severity"); raw != "" {
		filter.Severity = audit.Severity(raw)
	}
	if raw := r.URL.Query().Get("event_type"); raw != "" {
		filter.EventType = audit.EventType(raw)
	}

	entries, err := s.auditor.List(r.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("failed to list audit entries")
		respondError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": entries})
}
