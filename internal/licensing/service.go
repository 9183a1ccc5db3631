// Package licensing coordinates the subscription state machine, the device
// activation ledger, the token codec, and the grace policy into the public
// licensing operations. Each operation is a single coordinated unit; the
// package owns the error taxonomy the transport layer maps to HTTP statuses.
package licensing

import (
	"context"
	"errors"
	"time"

	devicedomain "flowlytix/licensing/internal/device/domain"
	"flowlytix/licensing/internal/grace"
	"flowlytix/licensing/internal/ledger"
	subscriptiondomain "flowlytix/licensing/internal/subscription/domain"
	"flowlytix/licensing/internal/telemetry"
	telemetrydomain "flowlytix/licensing/internal/telemetry/domain"
	"flowlytix/licensing/internal/token"
)

// Sentinel errors for the licensing core; combined with the ledger and token
// package errors they form the full taxonomy handlers map to responses.
var (
	// ErrSubscriptionNotActive is returned when the subscription is missing,
	// expired, suspended, cancelled, or not yet started.
	ErrSubscriptionNotActive = errors.New("subscription not active")
	// ErrTokenRevoked is returned when a structurally valid token no longer
	// matches the ledger: the device was revoked or deactivated, or the
	// token's version was superseded by a refresh.
	ErrTokenRevoked = errors.New("token revoked")
)

// SubscriptionStore is the minimal subscription lookup needed by the core.
// Billing owns plan, limit, and expiry; the core only reads them.
type SubscriptionStore interface {
	GetByID(ctx context.Context, id string) (*subscriptiondomain.Subscription, error)
}

// ValidateResult is the outcome of ValidateLicense. Degraded marks a token
// accepted provisionally under the grace policy: expired, but within the
// grace window and not revoked.
type ValidateResult struct {
	Claims   *token.LicenseClaims
	Degraded bool
}

// Service is the licensing core orchestrator.
type Service struct {
	subs    SubscriptionStore
	ledger  ledger.Ledger
	codec   *token.Codec
	policy  grace.Policy
	emitter telemetry.EventEmitter
}

// NewService returns a Service with the given collaborators. emitter may be
// nil; telemetry is best-effort.
func NewService(subs SubscriptionStore, l ledger.Ledger, codec *token.Codec, policy grace.Policy, emitter telemetry.EventEmitter) *Service {
	return &Service{subs: subs, ledger: l, codec: codec, policy: policy, emitter: emitter}
}

// activeSubscription loads and classifies the subscription; anything but an
// active classification fails with ErrSubscriptionNotActive.
func (s *Service) activeSubscription(ctx context.Context, id string, now time.Time) (*subscriptiondomain.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotActive
	}
	if state := subscriptiondomain.Classify(sub, now); !state.AllowsActivation() {
		return nil, ErrSubscriptionNotActive
	}
	return sub, nil
}

// ActivateLicense binds the device to the subscription and issues a license
// token at the device's current token version. Idempotent for an
// already-active device on the same subscription.
func (s *Service) ActivateLicense(ctx context.Context, subscriptionID, deviceID, deviceName string, now time.Time) (string, *devicedomain.Device, error) {
	sub, err := s.activeSubscription(ctx, subscriptionID, now)
	if err != nil {
		return "", nil, err
	}

	var device *devicedomain.Device
	err = withRetry(ctx, func() error {
		var aerr error
		device, aerr = s.ledger.Activate(ctx, ledger.Quota{
			SubscriptionID: sub.ID,
			DeviceLimit:    sub.DeviceLimit,
		}, deviceID, deviceName, now)
		return aerr
	})
	if err != nil {
		s.emit(ctx, telemetrydomain.EventActivationFailed, sub.ID, deviceID, map[string]string{"reason": err.Error()})
		return "", nil, err
	}

	tok, err := s.codec.Issue(device.DeviceID, sub.ID, string(sub.Plan), device.TokenVersion, now)
	if err != nil {
		return "", nil, err
	}
	s.emit(ctx, telemetrydomain.EventActivation, sub.ID, deviceID, nil)
	return tok, device, nil
}

// ValidateLicense verifies the token and checks it against the ledger. An
// expired token within the grace window is accepted with Degraded set, so a
// client cut off from billing keeps working for a bounded window; revocation
// still wins over grace. A revoke committed before this call is always
// visible: the ledger read happens on every validation.
func (s *Service) ValidateLicense(ctx context.Context, tokenString string, now time.Time) (*ValidateResult, error) {
	claims, verr := s.codec.Verify(tokenString, now)
	if verr != nil && !errors.Is(verr, token.ErrTokenExpired) {
		return nil, verr
	}
	expired := verr != nil
	if expired && !s.policy.IsWithinGrace(claims.ExpiresAt.Time, now) {
		return nil, token.ErrTokenExpired
	}

	var device *devicedomain.Device
	err := withRetry(ctx, func() error {
		var gerr error
		device, gerr = s.ledger.GetDevice(ctx, claims.Subject)
		return gerr
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDeviceNotFound) {
			return nil, ErrTokenRevoked
		}
		return nil, err
	}
	if device.Status != devicedomain.StatusActive || device.TokenVersion != claims.TokenVersion {
		return nil, ErrTokenRevoked
	}

	if expired {
		s.emit(ctx, telemetrydomain.EventValidationDegraded, claims.SubscriptionID, claims.Subject, nil)
	}
	return &ValidateResult{Claims: claims, Degraded: expired}, nil
}

// RefreshLicense exchanges a still-acceptable token for a fresh one at a
// bumped token version, superseding the old token immediately. The
// subscription is re-validated first so a suspended or expired subscription
// cannot keep rolling tokens forward.
func (s *Service) RefreshLicense(ctx context.Context, oldToken string, now time.Time) (string, error) {
	res, err := s.ValidateLicense(ctx, oldToken, now)
	if err != nil {
		return "", err
	}
	claims := res.Claims

	sub, err := s.activeSubscription(ctx, claims.SubscriptionID, now)
	if err != nil {
		return "", err
	}

	var version int64
	err = withRetry(ctx, func() error {
		var berr error
		version, berr = s.ledger.BumpTokenVersion(ctx, claims.Subject, now)
		return berr
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDeviceRevoked) || errors.Is(err, ledger.ErrDeviceNotFound) {
			return "", ErrTokenRevoked
		}
		return "", err
	}

	tok, err := s.codec.Issue(claims.Subject, sub.ID, string(sub.Plan), version, now)
	if err != nil {
		return "", err
	}
	s.emit(ctx, telemetrydomain.EventRefresh, sub.ID, claims.Subject, nil)
	return tok, nil
}

// DeactivateLicense voluntarily releases the device's slot. Always allowed
// regardless of subscription state, idempotent, and never bumps the token
// version, so other devices on the subscription are unaffected.
func (s *Service) DeactivateLicense(ctx context.Context, subscriptionID, deviceID string, now time.Time) error {
	err := withRetry(ctx, func() error {
		return s.ledger.Deactivate(ctx, subscriptionID, deviceID, now)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, telemetrydomain.EventDeactivation, subscriptionID, deviceID, nil)
	return nil
}

// RevokeDevice administratively hard-revokes the device. The version bump
// makes every outstanding token fail the next validation.
func (s *Service) RevokeDevice(ctx context.Context, deviceID string, now time.Time) error {
	err := withRetry(ctx, func() error {
		_, rerr := s.ledger.Revoke(ctx, deviceID, now)
		return rerr
	})
	if err != nil {
		return err
	}
	s.emit(ctx, telemetrydomain.EventRevocation, "", deviceID, nil)
	return nil
}

// Heartbeat records that the device checked in. Never changes quota.
func (s *Service) Heartbeat(ctx context.Context, deviceID string, now time.Time) error {
	return withRetry(ctx, func() error {
		return s.ledger.Heartbeat(ctx, deviceID, now)
	})
}

func (s *Service) emit(ctx context.Context, eventType, subscriptionID, deviceID string, metadata map[string]string) {
	telemetry.EmitAsync(s.emitter, ctx, &telemetrydomain.Event{
		SubscriptionID: subscriptionID,
		DeviceID:       deviceID,
		EventType:      eventType,
		Source:         "licensing-core",
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	})
}
