package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

// StatusLine is reported by GET /
const StatusLine = "Allocation Engine: Online (Mean-Variance Optimized)"

// OptimizeHandler exposes the in-process engine as the remote quantitative service
// ⭐ SSOT: POST /optimize is served only here
type OptimizeHandler struct {
	engine contracts.Allocator
	logger *logger.Logger
}

// NewOptimizeHandler creates a new optimize handler
func NewOptimizeHandler(engine contracts.Allocator, log *logger.Logger) *OptimizeHandler {
	return &OptimizeHandler{
		engine: engine,
		logger: log,
	}
}

// Status reports liveness
// GET /
func (h *OptimizeHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": StatusLine})
}

// Optimize runs the engine on {capital, risk_tolerance, market_data}
// POST /optimize
func (h *OptimizeHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req contracts.OptimizationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan, err := h.engine.Optimize(r.Context(), req)
	if err != nil {
		if errors.Is(err, contracts.ErrInvalidRequest) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.WithError(err).Error("Optimization failed")
		respondError(w, http.StatusInternalServerError, "Optimization failed")
		return
	}

	respondJSON(w, http.StatusOK, plan)
}
