package services

import (
	"errors"
	"fmt"
)

var (
	ErrIssueNotFound           = errors.New("issue not found")
	ErrUserNotFound            = errors.New("user not found")
	ErrSubmitterNotFound       = errors.New("user who reported this issue not found")
	ErrAlreadyFlagged          = errors.New("issue has already been reported as fake")
	ErrEmailExists             = errors.New("email already registered")
	ErrEmailBanned             = errors.New("this email has been banned")
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrInvalidStatusTransition = errors.New("issue status can only move forward")
	ErrImageRequired           = errors.New("image is required")
	ErrImageRejected           = errors.New("image rejected: violates community guidelines")
	ErrRecaptchaFailed         = errors.New("recaptcha verification failed")
)

// PolicyKind names the admission rule that refused a submission.
type PolicyKind string

const (
	PolicyCooldown          PolicyKind = "cooldown_active"
	PolicyDailyLimit        PolicyKind = "daily_limit_reached"
	PolicyLocationSaturated PolicyKind = "location_saturated"
)

// PolicyError is returned when a submission is refused by the governor.
// It is never a server fault; the submitter can wait or move.
type PolicyError struct {
	Kind PolicyKind
	// RemainingMinutes is set for cooldown rejections only.
	RemainingMinutes int
}

func (e *PolicyError) Error() string {
	switch e.Kind {
	case PolicyCooldown:
		return fmt.Sprintf("Please wait %d minutes before reporting another issue", e.RemainingMinutes)
	case PolicyDailyLimit:
		return "Daily issue limit reached"
	case PolicyLocationSaturated:
		return "Multiple issues already reported at this location. Please support existing reports."
	}
	return string(e.Kind)
}

// AsPolicyError unwraps err into a *PolicyError if it is one.
func AsPolicyError(err error) (*PolicyError, bool) {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ValidationErrors maps request fields to messages, the same shape the
// request models' Validate methods return.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	return "validation failed"
}
