package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"taskdesk/pkg/requestcontext"
)

type ControllerSuite struct {
	suite.Suite
	ctrl *Controller
	now  time.Time
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctrl = New(Config{
		SoftCap:      50,
		HardCap:      100,
		Window:       15 * time.Minute,
		SoftCapDelay: 500 * time.Millisecond,
		TrustedCIDRs: []string{"127.0.0.0/8", "10.0.0.0/8"},
	})
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func (s *ControllerSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *ControllerSuite) TestAllowUnderSoftCap() {
	for range 50 {
		d := s.ctrl.Admit(s.ctx(), "ip:9.9.9.9")
		s.Equal(KindAllow, d.Kind)
	}
}

func (s *ControllerSuite) TestDelayBetweenSoftAndHardCap() {
	ctx := s.ctx()
	for range 50 {
		s.ctrl.Admit(ctx, "k")
	}
	d := s.ctrl.Admit(ctx, "k")
	s.Equal(KindDelay, d.Kind)
	s.Equal(500*time.Millisecond, d.Delay)
}

func (s *ControllerSuite) TestRejectBeyondHardCap() {
	ctx := s.ctx()
	for range 100 {
		s.ctrl.Admit(ctx, "k")
	}
	d := s.ctrl.Admit(ctx, "k")
	s.Equal(KindReject, d.Kind)
	s.Positive(d.RetryAfter)
	s.Zero(d.Remaining)
}

func (s *ControllerSuite) TestWindowResetsAfterExpiry() {
	ctx := s.ctx()
	for range 101 {
		s.ctrl.Admit(ctx, "k")
	}
	s.Equal(KindReject, s.ctrl.Admit(ctx, "k").Kind)

	later := requestcontext.WithTime(context.Background(), s.now.Add(15*time.Minute+time.Second))
	s.Equal(KindAllow, s.ctrl.Admit(later, "k").Kind)
}

func (s *ControllerSuite) TestTrustedRangesAreExempt() {
	s.True(s.ctrl.Exempt("127.0.0.1"))
	s.True(s.ctrl.Exempt("10.2.3.4"))
	s.False(s.ctrl.Exempt("203.0.113.7"))
	s.False(s.ctrl.Exempt("not-an-ip"))
}

func (s *ControllerSuite) TestForgiveRefundsAdmission() {
	ctrl := New(Config{HardCap: 5, Window: 15 * time.Minute})
	ctx := s.ctx()

	// Five admissions each forgiven: the window never fills.
	for range 20 {
		d := ctrl.Admit(ctx, "k")
		s.Equal(KindAllow, d.Kind)
		ctrl.Forgive(ctx, "k")
	}

	// Five unforgiven admissions exhaust the budget.
	for range 5 {
		ctrl.Admit(ctx, "k")
	}
	s.Equal(KindReject, ctrl.Admit(ctx, "k").Kind)
}

func (s *ControllerSuite) TestSweepEvictsIdleWindows() {
	ctx := s.ctx()
	s.ctrl.Admit(ctx, "old")
	evicted := s.ctrl.Sweep(s.now.Add(31 * time.Minute))
	s.Equal(1, evicted)
	s.Zero(s.ctrl.Len())
}

func TestNewKey(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"identity only", NewKey(KeyPrefixIP, "1.2.3.4", ""), "ip:1.2.3.4"},
		{"identity and route", NewKey(KeyPrefixAuth, "1.2.3.4", "/auth/login"), "auth:1.2.3.4:/auth/login"},
		{"colon escaped", NewKey(KeyPrefixIP, "user:admin", ""), "ip:user_cadmin"},
		{"underscore escaped", NewKey(KeyPrefixIP, "user_admin", ""), "ip:user__admin"},
		{"both escaped no collision", NewKey(KeyPrefixIP, "user_:admin", ""), "ip:user___cadmin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}
