package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/project-allocation-api/internal/metrics"
	"go.uber.org/zap"
)

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	events []Event
	done   chan struct{}
	want   int
}

func newCapturePublisher(want int) *capturePublisher {
	return &capturePublisher{done: make(chan struct{}), want: want}
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	if len(p.topics) == p.want {
		close(p.done)
	}
	return nil
}

func (p *capturePublisher) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func TestDispatcher_ResolvesGroupAudienceAtDispatch(t *testing.T) {
	lookup := MemberLookupFunc(func(_ context.Context, groupID uint64) ([]uint64, error) {
		if groupID != 9 {
			return nil, errors.New("unexpected group")
		}
		return []uint64{1, 2}, nil
	})
	pub := newCapturePublisher(4)
	d := NewDispatcher(lookup, zap.NewNop(), metrics.New(), 8, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Emit(Event{
		Type:     TypeGroupFinalized,
		GroupID:  9,
		Audience: []Audience{ToGroup(9), ToUser(2), ToAdmins()},
	})

	topics := pub.wait(t)
	assert.Equal(t, []string{"group:9", "user:1", "user:2", "admin"}, topics)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.NotEmpty(t, pub.events[0].ID)
	assert.False(t, pub.events[0].OccurredAt.IsZero())
}

func TestDispatcher_EmitDropsWhenQueueFull(t *testing.T) {
	m := metrics.New()
	d := NewDispatcher(nil, zap.NewNop(), m, 1)

	d.Emit(Event{Type: TypeInvitationCreated})
	d.Emit(Event{Type: TypeInvitationCreated})

	assert.Len(t, d.queue, 1)
}

func TestDispatcher_LookupErrorKeepsOtherTopics(t *testing.T) {
	lookup := MemberLookupFunc(func(context.Context, uint64) ([]uint64, error) {
		return nil, errors.New("database unavailable")
	})
	d := NewDispatcher(lookup, zap.NewNop(), nil, 1)

	topics := d.topics(context.Background(), Event{Audience: []Audience{ToGroup(3), ToUser(4)}})
	assert.Equal(t, []string{"group:3", "user:4"}, topics)
}

func TestDispatcher_RunDrainsOnCancel(t *testing.T) {
	pub := newCapturePublisher(2)
	d := NewDispatcher(nil, zap.NewNop(), nil, 4, pub)

	d.Emit(Event{Type: TypePendingDecision, Audience: []Audience{ToUser(1)}})
	d.Emit(Event{Type: TypePendingDecision, Audience: []Audience{ToUser(2)}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.ElementsMatch(t, []string{"user:1", "user:2"}, pub.wait(t))
}

func TestHub_SkipsSlowSubscriber(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe(UserTopic(1), AdminTopic)
	defer cancel()

	require.NoError(t, hub.Publish(context.Background(), UserTopic(1), Event{ID: "a"}))
	require.NoError(t, hub.Publish(context.Background(), AdminTopic, Event{ID: "b"}))

	got := <-ch
	assert.Equal(t, "a", got.ID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %s", extra.ID)
	default:
	}
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	hub := NewHub(4)
	ch, cancel := hub.Subscribe(UserTopic(5))
	assert.Equal(t, 1, hub.Subscribers(UserTopic(5)))

	cancel()
	cancel()

	assert.Equal(t, 0, hub.Subscribers(UserTopic(5)))
	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, hub.Publish(context.Background(), UserTopic(5), Event{}))
}

func TestRedisRelay_HandleForwardsToLocalTopic(t *testing.T) {
	hub := NewHub(4)
	ch, cancel := hub.Subscribe(UserTopic(12))
	defer cancel()

	relay := NewRedisRelay(nil, hub, zap.NewNop())

	payload, err := json.Marshal(Event{ID: "evt-1", Type: TypeInvitationUpdate, InvitationID: 3})
	require.NoError(t, err)
	relay.handle(context.Background(), &redis.Message{Channel: ChannelPrefix + UserTopic(12), Payload: string(payload)})
	relay.handle(context.Background(), &redis.Message{Channel: ChannelPrefix + UserTopic(12), Payload: "not json"})

	got := <-ch
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, TypeInvitationUpdate, got.Type)
	assert.Equal(t, uint64(3), got.InvitationID)
	assert.Len(t, ch, 0)
}
