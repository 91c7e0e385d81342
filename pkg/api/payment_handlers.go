package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/billforge/billforge/pkg/billing"
	"github.com/billforge/billforge/pkg/middleware"
)

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.TenantID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing tenant")
		return
	}

	limit := queryInt(r, "limit", 50, 200)
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			offset = n
		}
	}

	payments, total, err := s.store.ListPayments(r.Context(), tenantID, limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("failed to list payments")
		respondError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}
	respondJSON(w, http.StatusOK, listResponse{
		Items: payments, Total: total, Limit: limit, Offset: offset,
	})
}

func (s *Server) retryPayment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.TenantID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing tenant")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	payment, err := s.service.RetryPayment(r.Context(), tenantID, id)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrPaymentNotFound):
			respondError(w, http.StatusNotFound, "payment not found")
		case errors.Is(err, billing.ErrPaymentAlreadySucceeded):
			respondError(w, http.StatusConflict, "payment already succeeded")
		default:
			s.logger.WithError(err).Error("failed to retry payment")
			respondError(w, http.StatusBadGateway, "payment retry failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, payment)
}
