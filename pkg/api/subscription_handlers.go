package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/billing"
	"github.com/billforge/billforge/pkg/middleware"
)

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.TenantID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing tenant")
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlanID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "plan_id is required")
		return
	}

	sub, err := s.service.Subscribe(r.Context(), tenantID, req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, billing.ErrPlanNotFound):
			respondError(w, http.StatusNotFound, "plan not found")
		default:
			s.logger.WithError(err).Error("failed to create subscription")
			respondError(w, http.StatusInternalServerError, "failed to create subscription")
		}
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.TenantID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing tenant")
		return
	}

	sub, err := s.store.GetCurrentSubscription(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			respondError(w, http.StatusNotFound, "no subscription")
			return
		}
		s.logger.WithError(err).Error("failed to load subscription")
		respondError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.TenantID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing tenant")
		return
	}

	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sub, err := s.service.Cancel(r.Context(), tenantID, req.AtPeriodEnd)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			respondError(w, http.StatusNotFound, "no live subscription")
			return
		}
		s.logger.WithError(err).Error("failed to cancel subscription")
		respondError(w, http.StatusInternalServerError, "failed to cancel subscription")
		return
	}
	respondJSON(w, http.StatusOK, sub)
}
