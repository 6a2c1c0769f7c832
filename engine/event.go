package engine

import (
	"log/slog"
	"sync"

	"github.com/nfcforensics/emvscan/engine/transport"
)

// EventKind enumerates the outbound event variants, modeled as a
// tagged sum (a Kind enum plus payload fields) rather than an
// interface per variant.
type EventKind string

const (
	EventReadingStarted EventKind = "reading_started"
	EventReadingStopped EventKind = "reading_stopped"
	EventCardDetected   EventKind = "card_detected"
	EventProgress       EventKind = "progress"
	EventAPDUExchanged  EventKind = "apdu_exchanged"
	EventCardRead       EventKind = "card_read"
	EventError          EventKind = "error"
)

// Event is the single outbound event type; only the fields relevant
// to Kind are populated.
type Event struct {
	Kind EventKind

	StepName string
	Index    int
	Total    int

	APDU transport.LogEntry

	Session *Snapshot

	Message string
}

// Observer is an in-process listener for the synchronous consumer
// path: a tagged sum the UI only switches on, never implements.
type Observer func(Event)

// Sink fans events out over a buffered channel and to any number of
// synchronous observers. A panicking observer is isolated and logged,
// never allowed to propagate into the engine.
type Sink struct {
	ch       chan Event
	mu       sync.Mutex
	observer []Observer
	log      *slog.Logger
}

// NewSink creates a Sink with the given channel buffer depth. A depth
// of 0 still works; callers that do not drain the channel should
// prefer observers instead.
func NewSink(bufferDepth int, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{ch: make(chan Event, bufferDepth), log: log}
}

// Events exposes the read side of the event channel.
func (s *Sink) Events() <-chan Event {
	return s.ch
}

// Subscribe registers an in-process observer and returns an
// unsubscribe closure.
func (s *Sink) Subscribe(obs Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = append(s.observer, obs)
	idx := len(s.observer) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.observer) {
			s.observer[idx] = nil
		}
	}
}

// emit delivers ev to the channel (non-blocking best-effort) and to
// every live observer, isolating a panicking observer with recover.
func (s *Sink) emit(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.log.Warn("event sink channel full, dropping event", "kind", ev.Kind)
	}

	s.mu.Lock()
	observers := append([]Observer(nil), s.observer...)
	s.mu.Unlock()

	for _, obs := range observers {
		if obs == nil {
			continue
		}
		s.dispatchSafely(obs, ev)
	}
}

func (s *Sink) dispatchSafely(obs Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event observer panicked", "kind", ev.Kind, "recover", r)
		}
	}()
	obs(ev)
}

// Close closes the underlying channel. Call only after Run returns.
func (s *Sink) Close() {
	close(s.ch)
}
