package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"flowlytix/licensing/internal/audit"
	auditrepo "flowlytix/licensing/internal/audit/repository"
	customerdomain "flowlytix/licensing/internal/customer/domain"
	customerrepo "flowlytix/licensing/internal/customer/repository"
	"flowlytix/licensing/internal/ledger"
	"flowlytix/licensing/internal/licensing"
	subscriptiondomain "flowlytix/licensing/internal/subscription/domain"
	subscriptionservice "flowlytix/licensing/internal/subscription/service"
)

// adminActor is recorded as the actor on audit entries from this surface.
// Admin authentication is a single shared key, so there is no finer identity.
const adminActor = "admin"

// AdminHandler serves the back-office endpoints: customer management, the
// subscription lifecycle, device revocation, and reporting.
type AdminHandler struct {
	customers customerrepo.Repository
	subs      *subscriptionservice.Service
	licensing *licensing.Service
	devices   ledger.Ledger
	audit     audit.AuditLogger
	auditRepo auditrepo.Repository
}

// NewAdminHandler returns an AdminHandler. audit and auditRepo may be nil;
// audit writes are then skipped and the audit listing returns empty pages.
func NewAdminHandler(customers customerrepo.Repository, subs *subscriptionservice.Service, lic *licensing.Service, devices ledger.Ledger, auditLogger audit.AuditLogger, auditRepo auditrepo.Repository) *AdminHandler {
	return &AdminHandler{
		customers: customers,
		subs:      subs,
		licensing: lic,
		devices:   devices,
		audit:     auditLogger,
		auditRepo: auditRepo,
	}
}

// Routes returns a chi router for the admin endpoints. The caller mounts it
// behind RequireAdminKey.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/customers", h.CreateCustomer)
	r.Get("/customers", h.ListCustomers)
	r.Get("/customers/{customerID}", h.GetCustomer)
	r.Get("/customers/{customerID}/subscriptions", h.ListCustomerSubscriptions)

	r.Post("/subscriptions", h.CreateSubscription)
	r.Get("/subscriptions/expiring", h.ExpiringSoon)
	r.Get("/subscriptions/{subscriptionID}", h.GetSubscription)
	r.Post("/subscriptions/{subscriptionID}/suspend", h.SuspendSubscription)
	r.Post("/subscriptions/{subscriptionID}/cancel", h.CancelSubscription)
	r.Post("/subscriptions/{subscriptionID}/resume", h.ResumeSubscription)
	r.Post("/subscriptions/{subscriptionID}/extend", h.ExtendSubscription)
	r.Get("/subscriptions/{subscriptionID}/devices", h.ListDevices)
	r.Get("/subscriptions/{subscriptionID}/usage", h.Usage)
	r.Get("/subscriptions/{subscriptionID}/audit", h.ListAuditLogs)

	r.Post("/devices/{deviceID}/revoke", h.RevokeDevice)

	r.Get("/analytics", h.Analytics)

	return r
}

type createCustomerRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Company string `json:"company"`
}

func (c *createCustomerRequest) Bind(r *http.Request) error {
	cust := customerdomain.Customer{Email: c.Email, Name: c.Name, Company: c.Company}
	return cust.Validate()
}

type customerResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toCustomerResponse(c *customerdomain.Customer) *customerResponse {
	return &customerResponse{
		ID:        c.ID,
		Email:     c.Email,
		Name:      c.Name,
		Company:   c.Company,
		CreatedAt: c.CreatedAt,
	}
}

// CreateCustomer registers a customer. Email must be unique.
func (h *AdminHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	req := &createCustomerRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, invalidRequest(err))
		return
	}
	ctx := r.Context()
	existing, err := h.customers.GetCustomerByEmail(ctx, req.Email)
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	if existing != nil {
		render.Render(w, r, newAPIError(http.StatusConflict, "EMAIL_TAKEN", "a customer with this email already exists"))
		return
	}
	now := time.Now().UTC()
	cust := &customerdomain.Customer{
		ID:        uuid.New().String(),
		Email:     req.Email,
		Name:      req.Name,
		Company:   req.Company,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.customers.CreateCustomer(ctx, cust); err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toCustomerResponse(cust))
}

// GetCustomer returns one customer by id.
func (h *AdminHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	cust, err := h.customers.GetCustomerByID(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	if cust == nil {
		render.Render(w, r, apiError(subscriptionservice.ErrCustomerNotFound))
		return
	}
	render.JSON(w, r, toCustomerResponse(cust))
}

// ListCustomers returns a page of customers. Query params: limit, offset.
func (h *AdminHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50)
	customers, err := h.customers.ListCustomers(r.Context(), limit, offset)
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	out := make([]*customerResponse, 0, len(customers))
	for _, c := range customers {
		out = append(out, toCustomerResponse(c))
	}
	render.JSON(w, r, map[string]interface{}{"customers": out})
}

type createSubscriptionRequest struct {
	CustomerID   string `json:"customer_id"`
	Plan         string `json:"plan"`
	DeviceLimit  int    `json:"device_limit"`
	DurationDays int    `json:"duration_days"`
}

func (c *createSubscriptionRequest) Bind(r *http.Request) error {
	if c.CustomerID == "" {
		return errors.New("customer_id is required")
	}
	if c.Plan == "" {
		return errors.New("plan is required")
	}
	if c.DeviceLimit < 0 {
		return errors.New("device_limit must not be negative")
	}
	if c.DurationDays < 0 {
		return errors.New("duration_days must not be negative")
	}
	return nil
}

type subscriptionResponse struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customer_id"`
	Plan        string     `json:"plan"`
	Status      string     `json:"status"`
	State       string     `json:"state"`
	DeviceLimit int        `json:"device_limit"`
	StartsAt    time.Time  `json:"starts_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toSubscriptionResponse(s *subscriptiondomain.Subscription, now time.Time) *subscriptionResponse {
	return &subscriptionResponse{
		ID:          s.ID,
		CustomerID:  s.CustomerID,
		Plan:        string(s.Plan),
		Status:      string(s.Status),
		State:       subscriptionStateString(s, now),
		DeviceLimit: s.DeviceLimit,
		StartsAt:    s.StartsAt,
		ExpiresAt:   s.ExpiresAt,
		CreatedAt:   s.CreatedAt,
	}
}

type createSubscriptionResponse struct {
	Subscription *subscriptionResponse `json:"subscription"`
	// LicenseKey is returned exactly once, here; only its hash is stored.
	LicenseKey string `json:"license_key"`
}

// CreateSubscription provisions a subscription and returns the raw license
// key. A zero duration_days means no expiry.
func (h *AdminHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	req := &createSubscriptionRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, invalidRequest(err))
		return
	}
	var duration *time.Duration
	if req.DurationDays > 0 {
		d := time.Duration(req.DurationDays) * 24 * time.Hour
		duration = &d
	}
	res, err := h.subs.Create(r.Context(), req.CustomerID, subscriptiondomain.Plan(req.Plan), req.DeviceLimit, duration)
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	h.logAudit(r, res.Subscription.ID, audit.ActionCreateSubscription, "subscription", "plan="+req.Plan)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, &createSubscriptionResponse{
		Subscription: toSubscriptionResponse(res.Subscription, time.Now().UTC()),
		LicenseKey:   res.LicenseKey,
	})
}

// GetSubscription returns one subscription with its classified state.
func (h *AdminHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, _, err := h.subs.Get(r.Context(), chi.URLParam(r, "subscriptionID"))
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	render.JSON(w, r, toSubscriptionResponse(sub, time.Now().UTC()))
}

// ListCustomerSubscriptions returns all subscriptions for a customer.
func (h *AdminHandler) ListCustomerSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.ListByCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	now := time.Now().UTC()
	out := make([]*subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubscriptionResponse(s, now))
	}
	render.JSON(w, r, map[string]interface{}{"subscriptions": out})
}

func (h *AdminHandler) SuspendSubscription(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, audit.ActionSuspendSubscription, h.subs.Suspend)
}

func (h *AdminHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, audit.ActionCancelSubscription, h.subs.Cancel)
}

func (h *AdminHandler) ResumeSubscription(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, audit.ActionResumeSubscription, h.subs.Resume)
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, id string) (*subscriptiondomain.Subscription, error)) {
	id := chi.URLParam(r, "subscriptionID")
	sub, err := fn(r.Context(), id)
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	h.logAudit(r, sub.ID, action, "subscription", "")
	render.JSON(w, r, toSubscriptionResponse(sub, time.Now().UTC()))
}

type extendSubscriptionRequest struct {
	DurationDays int `json:"duration_days"`
}

func (e *extendSubscriptionRequest) Bind(r *http.Request) error {
	if e.DurationDays <= 0 {
		return errors.New("duration_days must be positive")
	}
	return nil
}

// ExtendSubscription pushes expiry out; an expired subscription whose new
// expiry lands in the future becomes active again.
func (h *AdminHandler) ExtendSubscription(w http.ResponseWriter, r *http.Request) {
	req := &extendSubscriptionRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, invalidRequest(err))
		return
	}
	id := chi.URLParam(r, "subscriptionID")
	sub, err := h.subs.Extend(r.Context(), id, time.Duration(req.DurationDays)*24*time.Hour)
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	h.logAudit(r, sub.ID, audit.ActionExtendSubscription, "subscription", "days="+strconv.Itoa(req.DurationDays))
	render.JSON(w, r, toSubscriptionResponse(sub, time.Now().UTC()))
}

// ListDevices returns every device recorded for the subscription, including
// deactivated and revoked ones.
func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.ListDevices(r.Context(), chi.URLParam(r, "subscriptionID"))
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	out := make([]*deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceResponse(d))
	}
	render.JSON(w, r, map[string]interface{}{"devices": out})
}

// RevokeDevice hard-revokes a device: its slot is freed and outstanding
// tokens fail validation immediately.
func (h *AdminHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if err := h.licensing.RevokeDevice(r.Context(), deviceID, time.Now().UTC()); err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	h.logAudit(r, "", audit.ActionRevoke, "device:"+deviceID, "")
	render.NoContent(w, r)
}

// Usage reports the subscription's device slot utilization.
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.subs.GetUsage(r.Context(), chi.URLParam(r, "subscriptionID"))
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"subscription_id": usage.SubscriptionID,
		"active_devices":  usage.ActiveDevices,
		"device_limit":    usage.DeviceLimit,
	})
}

// ExpiringSoon lists active subscriptions expiring within the window.
// Query param: days (default 30).
func (h *AdminHandler) ExpiringSoon(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			render.Render(w, r, invalidRequest(errors.New("days must be a positive integer")))
			return
		}
		days = n
	}
	subs, err := h.subs.GetExpiringSoon(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	now := time.Now().UTC()
	out := make([]*subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubscriptionResponse(s, now))
	}
	render.JSON(w, r, map[string]interface{}{"subscriptions": out})
}

// Analytics returns fleet-level subscription counts.
func (h *AdminHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.subs.Analytics(r.Context())
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	byStatus := make(map[string]int, len(report.ByStatus))
	for status, n := range report.ByStatus {
		byStatus[string(status)] = n
	}
	render.JSON(w, r, map[string]interface{}{
		"total":         report.Total,
		"by_status":     byStatus,
		"expiring_soon": report.ExpiringSoon,
	})
}

// ListAuditLogs returns a page of audit entries for a subscription.
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.auditRepo == nil {
		render.JSON(w, r, map[string]interface{}{"audit_logs": []struct{}{}})
		return
	}
	limit, offset := pageParams(r, 100)
	logs, err := h.auditRepo.ListBySubscription(r.Context(), chi.URLParam(r, "subscriptionID"), int32(limit), int32(offset))
	if err != nil {
		render.Render(w, r, apiError(err))
		return
	}
	type entry struct {
		ID        string    `json:"id"`
		Actor     string    `json:"actor,omitempty"`
		Action    string    `json:"action"`
		Resource  string    `json:"resource"`
		IP        string    `json:"ip"`
		Metadata  string    `json:"metadata,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]entry, 0, len(logs))
	for _, l := range logs {
		out = append(out, entry{
			ID:        l.ID,
			Actor:     l.Actor,
			Action:    l.Action,
			Resource:  l.Resource,
			IP:        l.IP,
			Metadata:  l.Metadata,
			CreatedAt: l.CreatedAt,
		})
	}
	render.JSON(w, r, map[string]interface{}{"audit_logs": out})
}

func (h *AdminHandler) logAudit(r *http.Request, subscriptionID, action, resource, metadata string) {
	if h.audit == nil {
		return
	}
	if subscriptionID == "" {
		subscriptionID = audit.SentinelSubscriptionID
	}
	h.audit.LogEvent(r.Context(), subscriptionID, adminActor, action, resource, metadata)
}

func pageParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
