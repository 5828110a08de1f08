package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/civicpulse/backend/internal/middleware"
	"github.com/civicpulse/backend/internal/models"
	"github.com/civicpulse/backend/internal/services"
)

type AdminHandler struct {
	issueService *services.IssueService
	ledger       *services.TrustLedger
}

func NewAdminHandler(issueService *services.IssueService, ledger *services.TrustLedger) *AdminHandler {
	return &AdminHandler{issueService: issueService, ledger: ledger}
}

// PriorityQueue lists unresolved issues, highest priority first.
// Optional ?limit=N.
func (h *AdminHandler) PriorityQueue(w http.ResponseWriter, r *http.Request) {
	var limit int64
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"limit": "Limit must be a non-negative integer"}))
			return
		}
		limit = n
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	issues, err := h.issueService.ListByPriority(ctx, limit)
	if err != nil {
		writeServiceError(w, "PriorityQueue", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(issues))
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stats, err := h.issueService.Stats(ctx)
	if err != nil {
		writeServiceError(w, "Stats", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(stats))
}

func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	issueID := chi.URLParam(r, "issueId")

	var req models.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	issue, err := h.issueService.UpdateStatus(ctx, issueID, req.Status)
	if err != nil {
		writeServiceError(w, "UpdateStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(issue))
}

// FlagFraud marks an issue as a fake report and penalizes its submitter.
func (h *AdminHandler) FlagFraud(w http.ResponseWriter, r *http.Request) {
	issueID := chi.URLParam(r, "issueId")
	adminID := middleware.GetUserID(r.Context())

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.ledger.FlagAsFraud(ctx, issueID, adminID)
	if err != nil {
		writeServiceError(w, "FlagFraud", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res))
}
