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

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.TenantID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing tenant")
		return
	}

	limit := queryInt(r, "limit", 50, 200)
	invoices, err := s.store.ListInvoices(r.Context(), tenantID, limit)
	if err != nil {
		s.logger.WithError(err).Error("failed to list invoices")
		respondError(w, http.StatusInternalServerError, "failed to list invoices")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": invoices})
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.TenantID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing tenant")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	inv, err := s.store.GetInvoice(r.Context(), s.store.DB(), id)
	if err != nil {
		if errors.Is(err, billing.ErrInvoiceNotFound) {
			respondError(w, http.StatusNotFound, "invoice not found")
			return
		}
		s.logger.WithError(err).Error("failed to load invoice")
		respondError(w, http.StatusInternalServerError, "failed to load invoice")
		return
	}
	// Cross-tenant reads look like missing rows, not forbidden ones
	if inv.TenantID != tenantID {
		respondError(w, http.StatusNotFound, "invoice not found")
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
