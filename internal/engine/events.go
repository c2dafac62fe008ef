package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind names a graph change.
type EventKind string

const (
	EventNodeCreated     EventKind = "node_created"
	EventEdgeCreated     EventKind = "edge_created"
	EventEdgeInferred    EventKind = "edge_inferred"
	EventEdgeTraversed   EventKind = "edge_traversed"
	EventEdgePruned      EventKind = "edge_pruned"
	EventEdgeReinforced  EventKind = "edge_reinforced"
	EventClustersUpdated EventKind = "clusters_updated"
)

// Event describes one change. Subject is the node or edge id; Value carries
// the new strength for edge events and the cluster count for cluster events.
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	Value   float64   `json:"value,omitempty"`
	At      time.Time `json:"at"`
}

type bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	next    int
	dropped func()
}

func newBus(dropped func()) *bus {
	return &bus{subs: make(map[int]chan Event), dropped: dropped}
}

func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// publish never blocks. A subscriber with a full buffer misses the event.
func (b *bus) publish(kind EventKind, subject string, value float64, at time.Time) {
	ev := Event{ID: uuid.NewString(), Kind: kind, Subject: subject, Value: value, At: at}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			if b.dropped != nil {
				b.dropped()
			}
		}
	}
}

func (b *bus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
