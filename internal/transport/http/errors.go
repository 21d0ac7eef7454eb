package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"assessment-engine/internal/domain"
)

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

type policyDetail struct {
	Reason       domain.PolicyReason `json:"reason"`
	RetryAt      *time.Time          `json:"retryAt,omitempty"`
	RequestedDay int                 `json:"requestedDay,omitempty"`
	AvailableDay int                 `json:"availableDay,omitempty"`
	Used         int                 `json:"used,omitempty"`
	Limit        int                 `json:"limit,omitempty"`
	Have         int                 `json:"have,omitempty"`
	Need         int                 `json:"need,omitempty"`
}

// statusFor maps the error taxonomy to an HTTP status and a stable code.
func statusFor(err error) (int, errorBody) {
	var (
		ve *domain.ValidationError
		pe *domain.PolicyError
		se *domain.StateError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody{Code: "validation", Message: err.Error(), Detail: map[string]string{"field": ve.Field}}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()}
	case errors.As(err, &se):
		return http.StatusConflict, errorBody{Code: "attempt_not_active", Message: err.Error(), Detail: map[string]interface{}{
			"status":  se.Status,
			"expired": se.Expired,
		}}
	case errors.As(err, &pe):
		return http.StatusForbidden, errorBody{Code: string(pe.Reason), Message: err.Error(), Detail: policyDetail{
			Reason:       pe.Reason,
			RetryAt:      pe.RetryAt,
			RequestedDay: pe.RequestedDay,
			AvailableDay: pe.AvailableDay,
			Used:         pe.Used,
			Limit:        pe.Limit,
			Have:         pe.Have,
			Need:         pe.Need,
		}}
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable, errorBody{Code: "unavailable", Message: "storage unavailable, retry later"}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
