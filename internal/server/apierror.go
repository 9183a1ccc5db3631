package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"flowlytix/licensing/internal/ledger"
	"flowlytix/licensing/internal/licensing"
	"flowlytix/licensing/internal/security"
	subscriptionservice "flowlytix/licensing/internal/subscription/service"
	"flowlytix/licensing/internal/token"
)

// APIError is the JSON error body; it implements render.Renderer so handlers
// can `render.Render(w, r, apiError(err))`.
type APIError struct {
	StatusCode int    `json:"-"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

// Render implements the render.Renderer interface for chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

func newAPIError(status int, code, message string) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: message}
}

func invalidRequest(err error) *APIError {
	return newAPIError(http.StatusBadRequest, "INVALID_REQUEST", err.Error())
}

// apiError maps the licensing error taxonomy to HTTP statuses and app codes.
// The distinctions matter to callers: "no slots left" prompts deactivating
// another device, "subscription invalid" prompts billing, "token revoked"
// prompts re-activation.
func apiError(err error) *APIError {
	switch {
	case errors.Is(err, licensing.ErrSubscriptionNotActive):
		return newAPIError(http.StatusForbidden, "SUBSCRIPTION_NOT_ACTIVE", "subscription is not active")
	case errors.Is(err, ledger.ErrQuotaExceeded):
		return newAPIError(http.StatusConflict, "QUOTA_EXCEEDED", "device limit reached; deactivate another device first")
	case errors.Is(err, ledger.ErrDeviceBound):
		return newAPIError(http.StatusConflict, "DEVICE_BOUND", "device is active under another subscription")
	case errors.Is(err, ledger.ErrDeviceRevoked):
		return newAPIError(http.StatusForbidden, "DEVICE_REVOKED", "device has been revoked")
	case errors.Is(err, ledger.ErrDeviceNotFound):
		return newAPIError(http.StatusNotFound, "DEVICE_NOT_FOUND", "device not found")
	case errors.Is(err, licensing.ErrTokenRevoked):
		return newAPIError(http.StatusUnauthorized, "TOKEN_REVOKED", "token has been revoked; re-activate the device")
	case errors.Is(err, token.ErrTokenExpired):
		return newAPIError(http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired beyond the grace window")
	case errors.Is(err, token.ErrClockSkew):
		return newAPIError(http.StatusUnauthorized, "CLOCK_SKEW", "token issued-at is implausibly in the future")
	case errors.Is(err, token.ErrSignatureInvalid):
		return newAPIError(http.StatusUnauthorized, "SIGNATURE_INVALID", "token signature is invalid")
	case errors.Is(err, ledger.ErrStorageUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "storage temporarily unavailable; retry")
	case errors.Is(err, security.ErrInvalidLicenseKeyFormat):
		return newAPIError(http.StatusBadRequest, "INVALID_LICENSE_KEY", "license key format is invalid")
	case errors.Is(err, subscriptionservice.ErrSubscriptionNotFound):
		return newAPIError(http.StatusNotFound, "SUBSCRIPTION_NOT_FOUND", "subscription not found")
	case errors.Is(err, subscriptionservice.ErrCustomerNotFound):
		return newAPIError(http.StatusNotFound, "CUSTOMER_NOT_FOUND", "customer not found")
	case errors.Is(err, subscriptionservice.ErrInvalidPlan):
		return newAPIError(http.StatusBadRequest, "INVALID_PLAN", "unknown plan tier")
	case errors.Is(err, subscriptionservice.ErrNotSuspended):
		return newAPIError(http.StatusConflict, "NOT_SUSPENDED", "only a suspended subscription can be resumed")
	case errors.Is(err, subscriptionservice.ErrCancelled):
		return newAPIError(http.StatusConflict, "SUBSCRIPTION_CANCELLED", "subscription is cancelled")
	default:
		return newAPIError(http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
