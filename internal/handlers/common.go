package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/civicpulse/backend/internal/models"
	"github.com/civicpulse/backend/internal/services"
)

const requestTimeout = 10 * time.Second

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func contextWithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

// writeServiceError maps service errors onto status codes. Anything it does
// not recognize is logged under tag and reported as a 500.
func writeServiceError(w http.ResponseWriter, tag string, err error) {
	var verrs services.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(verrs))
		return
	}
	if pe, ok := services.AsPolicyError(err); ok {
		status := http.StatusTooManyRequests
		if pe.Kind == services.PolicyLocationSaturated {
			status = http.StatusConflict
		}
		writeJSON(w, status, models.NewPolicyErrorResponse(pe.Error(), string(pe.Kind), pe.RemainingMinutes))
		return
	}

	switch {
	case errors.Is(err, services.ErrIssueNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Issue not found"))
	case errors.Is(err, services.ErrSubmitterNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("User who reported this issue not found"))
	case errors.Is(err, services.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("User not found"))
	case errors.Is(err, services.ErrAlreadyFlagged):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse("This issue has already been reported as fake"))
	case errors.Is(err, services.ErrInvalidStatusTransition):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse("Issue status can only move forward"))
	case errors.Is(err, services.ErrEmailExists):
		writeJSON(w, http.StatusConflict, models.NewErrorResponse("Email already registered"))
	case errors.Is(err, services.ErrEmailBanned):
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("This email has been banned due to multiple fake reports"))
	case errors.Is(err, services.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid email or password"))
	case errors.Is(err, services.ErrRecaptchaFailed):
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("reCAPTCHA verification failed"))
	default:
		log.Printf("[%s] internal error: %v", tag, err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Internal server error"))
	}
}
