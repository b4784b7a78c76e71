package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/requestcontext"
)

type HubSuite struct {
	suite.Suite
	hub *Hub
	ctx context.Context
}

func (s *HubSuite) SetupTest() {
	s.hub = NewHub(Config{
		MaxPerUser:    3,
		MaxAttempts:   10,
		AttemptWindow: time.Hour,
	})
	s.ctx = requestcontext.WithClientIP(context.Background(), "203.0.113.20")
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) TestFourthConnectionPerUserRejected() {
	for i := 0; i < 3; i++ {
		_, err := s.hub.Subscribe(s.ctx, "user-1")
		s.Require().NoError(err)
	}
	s.Equal(3, s.hub.ConnectionsFor("user-1"))

	_, err := s.hub.Subscribe(s.ctx, "user-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConnectionDenied))

	// A different subject from the same address is still admitted.
	_, err = s.hub.Subscribe(s.ctx, "user-2")
	s.NoError(err)
}

func (s *HubSuite) TestEleventhHandshakeFromAddressRejected() {
	for i := 0; i < 10; i++ {
		sub, err := s.hub.Subscribe(s.ctx, "user-1")
		s.Require().NoError(err)
		// Closing frees the concurrency slot but not the attempt budget.
		sub.Close()
	}

	_, err := s.hub.Subscribe(s.ctx, "user-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConnectionDenied))

	// Another address is unaffected.
	other := requestcontext.WithClientIP(context.Background(), "198.51.100.7")
	_, err = s.hub.Subscribe(other, "user-1")
	s.NoError(err)
}

func (s *HubSuite) TestCloseFreesSlot() {
	var subs []*Subscription
	for i := 0; i < 3; i++ {
		sub, err := s.hub.Subscribe(s.ctx, "user-1")
		s.Require().NoError(err)
		subs = append(subs, sub)
	}

	subs[0].Close()
	s.Equal(2, s.hub.ConnectionsFor("user-1"))

	_, err := s.hub.Subscribe(s.ctx, "user-1")
	s.NoError(err)
}

func (s *HubSuite) TestCloseIsIdempotent() {
	sub, err := s.hub.Subscribe(s.ctx, "user-1")
	s.Require().NoError(err)

	sub.Close()
	sub.Close()
	s.Equal(0, s.hub.ConnectionsFor("user-1"))
}

func (s *HubSuite) TestNotifyUserReachesAllSubscriptions() {
	a, err := s.hub.Subscribe(s.ctx, "user-1")
	s.Require().NoError(err)
	b, err := s.hub.Subscribe(s.ctx, "user-1")
	s.Require().NoError(err)
	other, err := s.hub.Subscribe(s.ctx, "user-2")
	s.Require().NoError(err)

	s.hub.NotifyUser("user-1", Event{Type: "task_updated"})

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			s.Equal("task_updated", ev.Type)
		default:
			s.Fail("expected event on subscription")
		}
	}
	select {
	case <-other.Events():
		s.Fail("user-2 must not receive user-1 events")
	default:
	}
}

func (s *HubSuite) TestBroadcast() {
	a, err := s.hub.Subscribe(s.ctx, "user-1")
	s.Require().NoError(err)
	b, err := s.hub.Subscribe(s.ctx, "user-2")
	s.Require().NoError(err)

	s.hub.Broadcast(Event{Type: "maintenance"})

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			s.Equal("maintenance", ev.Type)
		default:
			s.Fail("expected broadcast event")
		}
	}
}

func (s *HubSuite) TestSlowSubscriberDropsInsteadOfBlocking() {
	sub, err := s.hub.Subscribe(s.ctx, "user-1")
	s.Require().NoError(err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriptionBuffer+5; i++ {
			s.hub.NotifyUser("user-1", Event{Type: "tick"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("NotifyUser blocked on a full subscriber buffer")
	}
	s.Len(sub.Events(), subscriptionBuffer)
}
