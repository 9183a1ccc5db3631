package domain

import (
	"testing"
	"time"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestClassify(t *testing.T) {
	now := ts("2026-06-01T12:00:00Z")
	future := ts("2027-01-01T00:00:00Z")
	past := ts("2026-01-01T00:00:00Z")
	started := ts("2026-01-01T00:00:00Z")

	cases := []struct {
		name string
		sub  Subscription
		want State
	}{
		{
			name: "active with future expiry",
			sub:  Subscription{Status: StatusActive, StartsAt: started, ExpiresAt: &future},
			want: StateActive,
		},
		{
			name: "active without expiry",
			sub:  Subscription{Status: StatusActive, StartsAt: started},
			want: StateActive,
		},
		{
			name: "active past expiry is lazily expired",
			sub:  Subscription{Status: StatusActive, StartsAt: started, ExpiresAt: &past},
			want: StateExpired,
		},
		{
			name: "expiry exactly now is expired",
			sub:  Subscription{Status: StatusActive, StartsAt: started, ExpiresAt: &now},
			want: StateExpired,
		},
		{
			name: "suspended wins over valid expiry",
			sub:  Subscription{Status: StatusSuspended, StartsAt: started, ExpiresAt: &future},
			want: StateSuspended,
		},
		{
			name: "cancelled wins over valid expiry",
			sub:  Subscription{Status: StatusCancelled, StartsAt: started, ExpiresAt: &future},
			want: StateCancelled,
		},
		{
			name: "stored expired status",
			sub:  Subscription{Status: StatusExpired, StartsAt: started, ExpiresAt: &future},
			want: StateExpired,
		},
		{
			name: "pending status",
			sub:  Subscription{Status: StatusPending, StartsAt: started},
			want: StatePending,
		},
		{
			name: "not yet started is pending",
			sub:  Subscription{Status: StatusActive, StartsAt: future},
			want: StatePending,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(&tc.sub, now); got != tc.want {
				t.Errorf("Classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAllowsActivation(t *testing.T) {
	for _, st := range []State{StateExpired, StateSuspended, StateCancelled, StatePending} {
		if st.AllowsActivation() {
			t.Errorf("%s should not allow activation", st)
		}
	}
	if !StateActive.AllowsActivation() {
		t.Error("active should allow activation")
	}
}

func TestSubscriptionValidate(t *testing.T) {
	valid := func() Subscription {
		return Subscription{
			CustomerID:     "c1",
			LicenseKeyHash: "abc",
			Plan:           PlanBasic,
			DeviceLimit:    2,
		}
	}

	s := valid()
	if err := s.Validate(); err != nil {
		t.Fatalf("valid subscription: %v", err)
	}
	if s.Status != StatusPending {
		t.Errorf("empty status should default to pending, got %s", s.Status)
	}

	s = valid()
	s.DeviceLimit = 0
	if err := s.Validate(); err == nil {
		t.Error("zero device_limit should fail validation")
	}

	s = valid()
	s.Plan = "gold"
	if err := s.Validate(); err == nil {
		t.Error("unknown plan should fail validation")
	}
}

func TestExtend(t *testing.T) {
	now := ts("2026-06-01T00:00:00Z")
	exp := ts("2026-07-01T00:00:00Z")

	s := Subscription{ExpiresAt: &exp}
	s.Extend(30*24*time.Hour, now)
	if want := exp.Add(30 * 24 * time.Hour); !s.ExpiresAt.Equal(want) {
		t.Errorf("Extend from expiry: got %v, want %v", s.ExpiresAt, want)
	}

	s = Subscription{}
	s.Extend(24*time.Hour, now)
	if want := now.Add(24 * time.Hour); !s.ExpiresAt.Equal(want) {
		t.Errorf("Extend from nil expiry: got %v, want %v", s.ExpiresAt, want)
	}
}
