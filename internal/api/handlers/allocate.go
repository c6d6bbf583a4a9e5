package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/aegis-allocator/internal/brain"
	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

// AllocateRequest is the body of POST /api/allocate
type AllocateRequest struct {
	Capital       float64 `json:"capital"`
	RiskTolerance int     `json:"riskTolerance"`
}

// AllocateHandler runs the tiered orchestrator against the configured snapshot source
type AllocateHandler struct {
	orchestrator *brain.Orchestrator
	logger       *logger.Logger
}

// NewAllocateHandler creates a new allocate handler
func NewAllocateHandler(orchestrator *brain.Orchestrator, log *logger.Logger) *AllocateHandler {
	return &AllocateHandler{
		orchestrator: orchestrator,
		logger:       log,
	}
}

// Allocate returns the Outcome (plan plus tier trace)
// POST /api/allocate
func (h *AllocateHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	outcome, err := h.orchestrator.Allocate(r.Context(), req.Capital, req.RiskTolerance)
	if err != nil {
		switch {
		case errors.Is(err, contracts.ErrInvalidRequest):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, contracts.ErrAllTiersFailed):
			h.logger.WithError(err).Error("Allocation failed")
			respondError(w, http.StatusBadGateway, "All allocation tiers failed")
		default:
			h.logger.WithError(err).Error("Allocation failed")
			respondError(w, http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}
