package grace

import (
	"testing"
	"time"
)

func TestIsWithinGrace(t *testing.T) {
	p := NewPolicy(72*time.Hour, 0)
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before expiry", exp.Add(-time.Hour), true},
		{"at expiry", exp, true},
		{"one hour past", exp.Add(time.Hour), true},
		{"at window edge", exp.Add(72 * time.Hour), true},
		{"just past window", exp.Add(72*time.Hour + time.Second), false},
		{"long past window", exp.Add(30 * 24 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.IsWithinGrace(exp, tc.now); got != tc.want {
				t.Errorf("IsWithinGrace(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestIsPlausibleIssuedAt(t *testing.T) {
	p := NewPolicy(0, 5*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if !p.IsPlausibleIssuedAt(now.Add(-time.Hour), now) {
		t.Error("past iat should be plausible")
	}
	if !p.IsPlausibleIssuedAt(now.Add(4*time.Minute), now) {
		t.Error("iat within skew tolerance should be plausible")
	}
	if p.IsPlausibleIssuedAt(now.Add(6*time.Minute), now) {
		t.Error("iat beyond skew tolerance should not be plausible")
	}
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy(0, -time.Second)
	if p.Window != DefaultWindow {
		t.Errorf("Window want %v, got %v", DefaultWindow, p.Window)
	}
	if p.SkewTolerance != DefaultSkewTolerance {
		t.Errorf("SkewTolerance want %v, got %v", DefaultSkewTolerance, p.SkewTolerance)
	}
}
