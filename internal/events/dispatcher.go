package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yukikurage/project-allocation-api/internal/metrics"
	"go.uber.org/zap"
)

// Publisher delivers an event to one topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// Emitter accepts events for asynchronous delivery.
type Emitter interface {
	Emit(event Event)
}

// MemberLookup resolves a group to its active member IDs.
type MemberLookup interface {
	ActiveMemberIDs(ctx context.Context, groupID uint64) ([]uint64, error)
}

// MemberLookupFunc adapts a function to MemberLookup.
type MemberLookupFunc func(ctx context.Context, groupID uint64) ([]uint64, error)

func (f MemberLookupFunc) ActiveMemberIDs(ctx context.Context, groupID uint64) ([]uint64, error) {
	return f(ctx, groupID)
}

// Dispatcher queues events and fans them out to publishers from a single
// goroutine. Emit never blocks; a full queue drops the event.
type Dispatcher struct {
	queue      chan Event
	members    MemberLookup
	publishers []Publisher
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher with a queue of queueSize events.
func NewDispatcher(members MemberLookup, log *zap.Logger, m *metrics.Metrics, queueSize int, publishers ...Publisher) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		queue:      make(chan Event, queueSize),
		members:    members,
		publishers: publishers,
		log:        log,
		metrics:    m,
		now:        time.Now,
	}
}

// Emit queues an event, assigning its ID and timestamp when unset.
func (d *Dispatcher) Emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}

	select {
	case d.queue <- event:
		d.metrics.EventEmitted(string(event.Type))
	default:
		d.metrics.EventDropped(string(event.Type))
		d.log.Warn("event queue full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		)
	}
}

// Run delivers queued events until ctx is cancelled. Events still queued at
// cancellation are delivered before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	for _, topic := range d.topics(ctx, event) {
		for _, p := range d.publishers {
			if err := p.Publish(ctx, topic, event); err != nil {
				d.log.Warn("failed to publish event",
					zap.String("event_id", event.ID),
					zap.String("event_type", string(event.Type)),
					zap.String("topic", topic),
					zap.Error(err),
				)
			}
		}
	}
}

// topics resolves the audience to a de-duplicated topic list, preserving order.
func (d *Dispatcher) topics(ctx context.Context, event Event) []string {
	seen := make(map[string]struct{})
	var topics []string
	add := func(topic string) {
		if _, ok := seen[topic]; ok {
			return
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}

	for _, aud := range event.Audience {
		switch aud.Kind {
		case AudienceUser:
			add(UserTopic(aud.ID))
		case AudienceAdmins:
			add(AdminTopic)
		case AudienceGroup:
			add(GroupTopic(aud.ID))
			if d.members == nil {
				continue
			}
			ids, err := d.members.ActiveMemberIDs(ctx, aud.ID)
			if err != nil {
				d.log.Warn("failed to resolve group audience",
					zap.String("event_id", event.ID),
					zap.Uint64("group_id", aud.ID),
					zap.Error(err),
				)
				continue
			}
			for _, id := range ids {
				add(UserTopic(id))
			}
		}
	}

	return topics
}
