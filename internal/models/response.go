package models

// APIResponse is a generic API response wrapper
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   message,
	}
}

// NewValidationErrorResponse creates a validation error response
func NewValidationErrorResponse(errors map[string]string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   "Validation failed",
		Errors:  errors,
	}
}

// NewPolicyErrorResponse carries the machine-readable reason a submission was
// refused, plus the wait time for cooldowns.
func NewPolicyErrorResponse(message, reason string, remainingMinutes int) APIResponse {
	details := map[string]interface{}{"reason": reason}
	if remainingMinutes > 0 {
		details["remaining_minutes"] = remainingMinutes
	}
	return APIResponse{
		Success: false,
		Error:   message,
		Errors:  details,
	}
}

// FraudFlagResult is returned to the admin after flagging an issue.
type FraudFlagResult struct {
	Issue   Issue      `json:"issue"`
	User    TrustState `json:"user"`
	Message string     `json:"message"`
}
