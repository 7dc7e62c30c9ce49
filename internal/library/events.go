package library

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metrics"
)

// EventType identifies what happened.
type EventType string

const (
	EventGalleriesAdded    EventType = "galleries_added"
	EventGalleriesRemoved  EventType = "galleries_removed"
	EventGalleriesUpdated  EventType = "galleries_updated"
	EventScanStarted       EventType = "scan_started"
	EventScanFinished      EventType = "scan_finished"
	EventReconcileFinished EventType = "reconcile_finished"
	EventMetadataFinished  EventType = "metadata_finished"
	EventDuplicatesRemoved EventType = "duplicates_removed"
	EventNotice            EventType = "notice"
)

// defaultBuffer is the per-subscriber channel size.
const defaultBuffer = 64

// Notice is a user-visible failure report.
type Notice struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	Fatal   bool     `json:"fatal"`
}

func (n Notice) Error() string {
	if len(n.Details) == 0 {
		return n.Message
	}
	return n.Message + ": " + strings.Join(n.Details, ", ")
}

// Event is one entry of the event stream.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Time       time.Time `json:"time"`
	GalleryIDs []int64   `json:"galleryIds,omitempty"`
	Notice     *Notice   `json:"notice,omitempty"`
}

// Broker fans events out to subscribers. Slow subscribers lose events
// instead of blocking publishers. A nil Broker discards everything.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	buffer int
	closed bool
}

// NewBroker creates a broker. A buffer of 0 selects the default size.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broker{subs: make(map[string]chan Event), buffer: buffer}
}

// Subscribe registers a subscriber. The channel is closed by Unsubscribe or
// Close.
func (b *Broker) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subs[id] = ch
	metrics.EventSubscribers.Set(float64(len(b.subs)))
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
		metrics.EventSubscribers.Set(float64(len(b.subs)))
	}
}

// Publish sends an event about the given galleries.
func (b *Broker) Publish(t EventType, galleryIDs ...int64) Event {
	return b.send(Event{Type: t, GalleryIDs: galleryIDs})
}

// Notify publishes a notice.
func (b *Broker) Notify(n Notice) Event {
	if n.Fatal {
		logging.Error("%s", n.Error())
	} else {
		logging.Warn("%s", n.Error())
	}
	return b.send(Event{Type: EventNotice, Notice: &n})
}

func (b *Broker) send(e Event) Event {
	e.ID = uuid.NewString()
	e.Time = time.Now()
	if b == nil {
		return e
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			metrics.EventsDroppedTotal.Inc()
			logging.Debug("Dropped %s event for subscriber %s", e.Type, id)
		}
	}
	return e
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions are closed
// immediately.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	metrics.EventSubscribers.Set(0)
}
