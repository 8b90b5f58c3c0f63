// Package events is an in-process publish/subscribe bus keyed by project.
// Delivery is at most once: events are not persisted, so a subscriber that
// attaches after a publish never sees it.
package events

import (
	"sync"
	"time"

	"github.com/homecanvas/homecanvas/pkg/logging"
)

// Event types delivered over a project subscription.
const (
	TypeConnected          = "connected"
	TypeGenerationComplete = "design_generation_complete"
	TypeGenerationError    = "design_generation_error"
	TypeKeepalive          = "keepalive"
)

// Event is one notification on a project topic.
type Event struct {
	Type           string    `json:"type"`
	ProjectID      string    `json:"project_id"`
	NewImageURL    string    `json:"new_image_url,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// subscriberBuffer bounds each subscriber's outbound queue. A subscriber
// that falls this far behind starts losing events rather than blocking
// publishers.
const subscriberBuffer = 16

// Subscription is one attached listener. Close detaches it; the channel from
// C is closed once detached.
type Subscription struct {
	bus       *Bus
	projectID string
	ch        chan Event
	once      sync.Once
}

// C returns the channel events arrive on.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s)
		close(s.ch)
	})
}

// Bus fans events out to all current subscribers of a project. Topics are
// created on first subscribe and dropped when the last subscriber detaches.
type Bus struct {
	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[string]map[*Subscription]struct{})}
}

// Subscribe attaches a listener to projectID and returns its subscription.
func (b *Bus) Subscribe(projectID string) *Subscription {
	sub := &Subscription{
		bus:       b,
		projectID: projectID,
		ch:        make(chan Event, subscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[projectID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[projectID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber currently attached to projectID.
// Sends are non-blocking: a subscriber with a full buffer misses the event
// and the rest still receive it.
func (b *Bus) Publish(projectID string, ev Event) {
	ev.ProjectID = projectID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.topics[projectID] {
		select {
		case sub.ch <- ev:
		default:
			logging.WithComponent("events").Warn("dropping event for slow subscriber",
				"project_id", projectID, "type", ev.Type)
		}
	}
}

// Subscribers reports how many listeners are attached to projectID.
func (b *Bus) Subscribers(projectID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[projectID])
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[sub.projectID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.projectID)
	}
}
