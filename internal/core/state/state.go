// Package state holds the aggregate preview state: known devices, the set of
// active preview sessions, the loading/capturing flags, and the last
// user-facing message.
//
// The aggregate is the only shared mutable resource in the system. Units of
// work produce commits concurrently, but every commit is applied by a single
// writer goroutine, so individual commits are atomic and totally ordered.
package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/walnutpair/previewd/internal/core/device"
)

// Aggregate is a snapshot of the whole preview state.
type Aggregate struct {
	AvailableCameras []device.Camera     `json:"available_cameras"`
	ActivePreviews   map[string]struct{} `json:"-"`
	Loading          bool                `json:"loading"`
	Capturing        bool                `json:"capturing"`
	LastMessage      string              `json:"last_message,omitempty"`
}

// ActivePreviewIDs returns the active preview set as a sorted-by-display-order
// slice: enumeration order of AvailableCameras, not insertion order.
func (a Aggregate) ActivePreviewIDs() []string {
	ids := make([]string, 0, len(a.ActivePreviews))
	for _, c := range a.AvailableCameras {
		if _, ok := a.ActivePreviews[c.UniqueID]; ok {
			ids = append(ids, c.UniqueID)
		}
	}
	return ids
}

// EventType identifies event categories.
type EventType string

const (
	EventDevicesUpdate   EventType = "devices_update"
	EventPreviewStarted  EventType = "preview_started"
	EventPreviewStopped  EventType = "preview_stopped"
	EventCaptureComplete EventType = "capture_complete"
	EventMessage         EventType = "message"
	EventLoading         EventType = "loading"
	EventCapturing       EventType = "capturing"
)

// Event represents a state change.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// --- EventBus ---

// EventBus is a simple publish/subscribe event bus.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(log *slog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan Event),
		log:         log,
	}
}

// Publish sends an event to all subscribers.
func (b *EventBus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.log.Warn("event bus: subscriber buffer full, dropping event", "subscriber_id", id, "event_type", evt.Type)
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe function.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		// drain any buffered events
		for {
			select {
			case <-ch:
			default:
				return
			}
		}
	}
	return ch, unsub
}

// --- Store ---

type commit struct {
	fn   func(*Aggregate) []Event
	done chan struct{}
}

// Store is the single source of truth for aggregate state. It lives for the
// whole process; create it once at startup and Close it on shutdown.
type Store struct {
	mu      sync.RWMutex
	agg     Aggregate
	commits chan commit
	stopped chan struct{}
	bus     *EventBus
	log     *slog.Logger
}

// NewStore creates a store wired to the event bus and starts its writer.
func NewStore(bus *EventBus, log *slog.Logger) *Store {
	s := &Store{
		agg: Aggregate{
			ActivePreviews: make(map[string]struct{}),
		},
		commits: make(chan commit, 64),
		stopped: make(chan struct{}),
		bus:     bus,
		log:     log,
	}
	go s.writeLoop()
	return s
}

// Close stops the writer goroutine. Commits after Close are dropped.
func (s *Store) Close() {
	close(s.commits)
	<-s.stopped
}

// writeLoop is the single writer: it applies commits one at a time and
// publishes the events each commit produced, in commit order.
func (s *Store) writeLoop() {
	defer close(s.stopped)
	for c := range s.commits {
		s.mu.Lock()
		events := c.fn(&s.agg)
		s.mu.Unlock()
		for _, evt := range events {
			s.bus.Publish(evt)
		}
		close(c.done)
	}
}

// apply submits a commit to the writer and waits for it to be applied.
func (s *Store) apply(fn func(*Aggregate) []Event) {
	c := commit{fn: fn, done: make(chan struct{})}
	defer func() {
		// Commit after Close: log and move on rather than crash mid-shutdown.
		if recover() != nil {
			s.log.Warn("state commit dropped, store closed")
		}
	}()
	s.commits <- c
	<-c.done
}

// Snapshot returns a copy of the aggregate state.
func (s *Store) Snapshot() Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cams := make([]device.Camera, len(s.agg.AvailableCameras))
	copy(cams, s.agg.AvailableCameras)
	active := make(map[string]struct{}, len(s.agg.ActivePreviews))
	for id := range s.agg.ActivePreviews {
		active[id] = struct{}{}
	}
	return Aggregate{
		AvailableCameras: cams,
		ActivePreviews:   active,
		Loading:          s.agg.Loading,
		Capturing:        s.agg.Capturing,
		LastMessage:      s.agg.LastMessage,
	}
}

// PreviewActive reports whether a preview is active for the given camera.
func (s *Store) PreviewActive(uniqueID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.agg.ActivePreviews[uniqueID]
	return ok
}

// ReplaceDevices replaces the known device list wholesale. Preview membership
// for cameras that vanished from the enumeration is pruned; the pruned IDs
// are returned so the caller can tear their sessions down.
func (s *Store) ReplaceDevices(cams []device.Camera) []string {
	var pruned []string
	s.apply(func(a *Aggregate) []Event {
		a.AvailableCameras = cams
		known := make(map[string]struct{}, len(cams))
		for _, c := range cams {
			known[c.UniqueID] = struct{}{}
		}
		for id := range a.ActivePreviews {
			if _, ok := known[id]; !ok {
				delete(a.ActivePreviews, id)
				pruned = append(pruned, id)
			}
		}
		return []Event{{Type: EventDevicesUpdate, Data: cams}}
	})
	return pruned
}

// SetPreviewActive adds a camera to the active preview set. Adding an ID that
// is not part of the known device list violates the aggregate invariant and
// is rejected.
func (s *Store) SetPreviewActive(uniqueID string) bool {
	accepted := false
	s.apply(func(a *Aggregate) []Event {
		for _, c := range a.AvailableCameras {
			if c.UniqueID == uniqueID {
				accepted = true
				break
			}
		}
		if !accepted {
			return nil
		}
		if _, already := a.ActivePreviews[uniqueID]; already {
			return nil
		}
		a.ActivePreviews[uniqueID] = struct{}{}
		return []Event{{Type: EventPreviewStarted, Data: uniqueID}}
	})
	if !accepted {
		s.log.Warn("rejecting preview for unknown camera", "unique_id", uniqueID)
	}
	return accepted
}

// SetPreviewInactive removes a camera from the active preview set. Removing
// an absent ID is a no-op.
func (s *Store) SetPreviewInactive(uniqueID string) {
	s.apply(func(a *Aggregate) []Event {
		if _, ok := a.ActivePreviews[uniqueID]; !ok {
			return nil
		}
		delete(a.ActivePreviews, uniqueID)
		return []Event{{Type: EventPreviewStopped, Data: uniqueID}}
	})
}

// SetLoading updates the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.apply(func(a *Aggregate) []Event {
		if a.Loading == loading {
			return nil
		}
		a.Loading = loading
		return []Event{{Type: EventLoading, Data: loading}}
	})
}

// SetCapturing updates the capturing flag.
func (s *Store) SetCapturing(capturing bool) {
	s.apply(func(a *Aggregate) []Event {
		if a.Capturing == capturing {
			return nil
		}
		a.Capturing = capturing
		return []Event{{Type: EventCapturing, Data: capturing}}
	})
}

// SetMessage replaces the last user-facing message.
func (s *Store) SetMessage(msg string) {
	s.apply(func(a *Aggregate) []Event {
		a.LastMessage = msg
		return []Event{{Type: EventMessage, Data: msg}}
	})
}

// ClearMessage clears the last user-facing message.
func (s *Store) ClearMessage() {
	s.apply(func(a *Aggregate) []Event {
		a.LastMessage = ""
		return nil
	})
}
