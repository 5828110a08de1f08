package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/civicpulse/backend/internal/middleware"
	"github.com/civicpulse/backend/internal/models"
	"github.com/civicpulse/backend/internal/services"
)

// Creation covers the classifier deadline plus image upload and screening.
const createTimeout = 30 * time.Second

type IssueHandler struct {
	issueService *services.IssueService
	maxUpload    int64
}

func NewIssueHandler(issueService *services.IssueService, maxUploadSizeMB int64) *IssueHandler {
	return &IssueHandler{
		issueService: issueService,
		maxUpload:    maxUploadSizeMB << 20,
	}
}

// CreateIssue accepts multipart/form-data with title, description, lat, lng
// and an image file.
func (h *IssueHandler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		log.Println("[CreateIssue] Unauthorized - no user ID in context")
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	// Leave room for the text fields around the file.
	limit := h.maxUpload + (1 << 20)
	if r.ContentLength > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, models.NewErrorResponse("Upload is too large"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.NewErrorResponse("Upload is too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid multipart form"))
		return
	}

	req := models.CreateIssueRequest{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Lat:         r.FormValue("lat"),
		Lng:         r.FormValue("lng"),
	}

	var image []byte
	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		image, err = io.ReadAll(io.LimitReader(file, h.maxUpload+1))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Failed to read image"))
			return
		}
		if int64(len(image)) > h.maxUpload {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.NewErrorResponse("Image is too large"))
			return
		}
	case errors.Is(err, http.ErrMissingFile):
		// Reported as a validation error alongside the other fields.
	default:
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid image upload"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), createTimeout)
	defer cancel()

	issue, err := h.issueService.Create(ctx, userID, &req, image)
	if errors.Is(err, services.ErrUserNotFound) {
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Account no longer exists"))
		return
	}
	if err != nil {
		writeServiceError(w, "CreateIssue", err)
		return
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(issue))
}

func (h *IssueHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	issues, err := h.issueService.ListAll(ctx)
	if err != nil {
		writeServiceError(w, "ListIssues", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(issues))
}

func (h *IssueHandler) GetIssue(w http.ResponseWriter, r *http.Request) {
	issueID := chi.URLParam(r, "issueId")

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	issue, err := h.issueService.Get(ctx, issueID)
	if err != nil {
		writeServiceError(w, "GetIssue", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(issue))
}

// ListMyIssues returns the caller's own reports.
func (h *IssueHandler) ListMyIssues(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), requestTimeout)
	defer cancel()

	issues, err := h.issueService.ListMine(ctx, userID)
	if err != nil {
		writeServiceError(w, "ListMyIssues", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(issues))
}
