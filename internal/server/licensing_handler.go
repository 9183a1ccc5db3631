package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"flowlytix/licensing/internal/audit"
	devicedomain "flowlytix/licensing/internal/device/domain"
	"flowlytix/licensing/internal/entitlement"
	"flowlytix/licensing/internal/licensing"
	subscriptiondomain "flowlytix/licensing/internal/subscription/domain"
	subscriptionservice "flowlytix/licensing/internal/subscription/service"
)

// LicensingHandler serves the client-facing license endpoints. Clients
// authenticate with their license key (activation) or a license token
// (validation/refresh); there are no user accounts on this surface.
type LicensingHandler struct {
	svc         *licensing.Service
	subs        *subscriptionservice.Service
	entitlement entitlement.Evaluator
	audit       audit.AuditLogger
}

// NewLicensingHandler returns a LicensingHandler with the given dependencies.
// audit may be nil.
func NewLicensingHandler(svc *licensing.Service, subs *subscriptionservice.Service, ev entitlement.Evaluator, auditLogger audit.AuditLogger) *LicensingHandler {
	return &LicensingHandler{svc: svc, subs: subs, entitlement: ev, audit: auditLogger}
}

// Routes returns a chi router for the license endpoints.
func (h *LicensingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/activate", h.Activate)
	r.Post("/validate", h.Validate)
	r.Post("/refresh", h.Refresh)
	r.Post("/deactivate", h.Deactivate)
	r.Post("/heartbeat", h.Heartbeat)
	r.Post("/check-feature", h.CheckFeature)
	return r
}

type activateRequest struct {
	LicenseKey string `json:"license_key"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

func (a *activateRequest) Bind(r *http.Request) error {
	if a.LicenseKey == "" {
		return errors.New("license_key is required")
	}
	if a.DeviceID == "" {
		return errors.New("device_id is required")
	}
	return nil
}

type deviceResponse struct {
	DeviceID     string     `json:"device_id"`
	Name         string     `json:"name,omitempty"`
	Status       string     `json:"status"`
	TokenVersion int64      `json:"token_version"`
	ActivatedAt  time.Time  `json:"activated_at"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
}

func toDeviceResponse(d *devicedomain.Device) *deviceResponse {
	return &deviceResponse{
		DeviceID:     d.DeviceID,
		Name:         d.Name,
		Status:       string(d.Status),
		TokenVersion: d.TokenVersion,
		ActivatedAt:  d.ActivatedAt,
		LastSeenAt:   d.LastSeenAt,
	}
}

type activateResponse struct {
	Token        string          `json:"token"`
	Device       *deviceResponse `json:"device"`
	Subscription struct {
		ID        string     `json:"id"`
		Plan      string     `json:"plan"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	} `json:"subscription"`
}

// Activate resolves the license key to its subscription and binds the device.
func (h *LicensingHandler) Activate(w http.ResponseWriter, r *http.Request) {
	req := &activateRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, invalidRequest(err))
		return
	}
	ctx := r.Context()
	sub, _, err := h.subs.GetByLicenseKey(ctx, req.LicenseKey)
	if err != nil {
		if errors.Is(err, subscriptionservice.ErrSubscriptionNotFound) {
			// An unknown key and an inactive subscription are reported the
			// same way so keys cannot be probed.
			render.Render(w, r, apiError(licensing.ErrSubscriptionNotActive))
			return
		}
		render.Render(w, r, apiError(err))
		return
	}

	now := time.Now().UTC()
	tok, device, err := h.svc.ActivateLicense(ctx, sub.ID, req.DeviceID, req.DeviceName, now)
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	h.logAudit(r, sub.ID, req.DeviceID, audit.ActionActivate, "device", "")

	resp := &activateResponse{Token: tok, Device: toDeviceResponse(device)}
	resp.Subscription.ID = sub.ID
	resp.Subscription.Plan = string(sub.Plan)
	resp.Subscription.ExpiresAt = sub.ExpiresAt
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (t *tokenRequest) Bind(r *http.Request) error {
	if t.Token == "" {
		return errors.New("token is required")
	}
	return nil
}

type validateResponse struct {
	Valid    bool  `json:"valid"`
	Degraded bool  `json:"degraded"`
	Claims   struct {
		DeviceID       string    `json:"device_id"`
		SubscriptionID string    `json:"subscription_id"`
		Plan           string    `json:"plan"`
		TokenVersion   int64     `json:"token_version"`
		ExpiresAt      time.Time `json:"expires_at"`
	} `json:"claims"`
}

// Validate checks a license token against the signature, expiry/grace, and
// the ledger's revocation state.
func (h *LicensingHandler) Validate(w http.ResponseWriter, r *http.Request) {
	req := &tokenRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, invalidRequest(err))
		return
	}
	res, err := h.svc.ValidateLicense(r.Context(), req.Token, time.Now().UTC())
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	resp := &validateResponse{Valid: true, Degraded: res.Degraded}
	resp.Claims.DeviceID = res.Claims.Subject
	resp.Claims.SubscriptionID = res.Claims.SubscriptionID
	resp.Claims.Plan = res.Claims.Plan
	resp.Claims.TokenVersion = res.Claims.TokenVersion
	resp.Claims.ExpiresAt = res.Claims.ExpiresAt.Time
	render.JSON(w, r, resp)
}

// Refresh exchanges a token for a fresh one at a bumped version.
func (h *LicensingHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	req := &tokenRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, invalidRequest(err))
		return
	}
	tok, err := h.svc.RefreshLicense(r.Context(), req.Token, time.Now().UTC())
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	render.JSON(w, r, map[string]string{"token": tok})
}

type deactivateRequest struct {
	LicenseKey string `json:"license_key"`
	DeviceID   string `json:"device_id"`
}

func (d *deactivateRequest) Bind(r *http.Request) error {
	if d.LicenseKey == "" {
		return errors.New("license_key is required")
	}
	if d.DeviceID == "" {
		return errors.New("device_id is required")
	}
	return nil
}

// Deactivate voluntarily releases the device's slot. Allowed regardless of
// subscription state so a lapsed customer can still free devices.
func (h *LicensingHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	req := &deactivateRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, invalidRequest(err))
		return
	}
	ctx := r.Context()
	sub, _, err := h.subs.GetByLicenseKey(ctx, req.LicenseKey)
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	if err := h.svc.DeactivateLicense(ctx, sub.ID, req.DeviceID, time.Now().UTC()); err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	h.logAudit(r, sub.ID, req.DeviceID, audit.ActionDeactivate, "device", "")
	render.NoContent(w, r)
}

type heartbeatRequest struct {
	DeviceID string `json:"device_id"`
}

func (hb *heartbeatRequest) Bind(r *http.Request) error {
	if hb.DeviceID == "" {
		return errors.New("device_id is required")
	}
	return nil
}

// Heartbeat records a device check-in.
func (h *LicensingHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	req := &heartbeatRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, invalidRequest(err))
		return
	}
	if err := h.svc.Heartbeat(r.Context(), req.DeviceID, time.Now().UTC()); err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	render.NoContent(w, r)
}

type checkFeatureRequest struct {
	Token   string `json:"token"`
	Feature string `json:"feature"`
}

func (c *checkFeatureRequest) Bind(r *http.Request) error {
	if c.Token == "" {
		return errors.New("token is required")
	}
	if c.Feature == "" {
		return errors.New("feature is required")
	}
	return nil
}

// CheckFeature validates the token and evaluates the plan's entitlement for
// the requested feature.
func (h *LicensingHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	req := &checkFeatureRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, invalidRequest(err))
		return
	}
	ctx := r.Context()
	res, err := h.svc.ValidateLicense(ctx, req.Token, time.Now().UTC())
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	allowed, err := h.entitlement.CheckFeature(ctx, res.Claims.Plan, req.Feature)
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"allowed": allowed,
		"plan":    res.Claims.Plan,
		"feature": req.Feature,
	})
}

func (h *LicensingHandler) logAudit(r *http.Request, subscriptionID, actor, action, resource, metadata string) {
	if h.audit == nil {
		return
	}
	h.audit.LogEvent(r.Context(), subscriptionID, actor, action, resource, metadata)
}

// subscriptionStateString is a convenience for responses that expose the
// classified state rather than the stored status.
func subscriptionStateString(sub *subscriptiondomain.Subscription, now time.Time) string {
	return string(subscriptiondomain.Classify(sub, now))
}
