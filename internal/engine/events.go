package engine

import (
	"sync"
	"time"
)

// Event categories.
const (
	EventReset       = "reset"
	EventPhase       = "phase"
	EventFetchFailed = "fetch_failed"
	EventSource      = "source"
	EventConfig      = "config"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Event is a notable occurrence in the simulation.
type Event struct {
	Tick        uint64    `json:"tick"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Time        time.Time `json:"time"`
}

// Notifier receives failures the operator should hear about. Notify must
// not block.
type Notifier interface {
	Notify(e Event)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(e Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// broker fans values out to subscriber channels. Slow subscribers miss
// values rather than stall the publisher.
type broker[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]chan T
}

func newBroker[T any]() *broker[T] {
	return &broker[T]{subs: make(map[int]chan T)}
}

func (b *broker[T]) subscribe(buf int) (int, <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	ch := make(chan T, buf)
	b.subs[b.next] = ch
	return b.next, ch
}

func (b *broker[T]) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *broker[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (b *broker[T]) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// emit records an event, fans it out to subscribers and, for failures,
// hands it to the notifier.
func (s *Simulation) emit(tick uint64, category, description string) {
	e := Event{Tick: tick, Description: description, Category: category, Time: time.Now().UTC()}

	s.evMu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	notifier := s.notifier
	s.evMu.Unlock()

	s.eventFeed.publish(e)
	if category == EventFetchFailed && notifier != nil {
		notifier.Notify(e)
	}
}

// SetNotifier installs the failure notifier.
func (s *Simulation) SetNotifier(n Notifier) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	s.notifier = n
}

// Subscribe registers for events. Call Unsubscribe with the returned id
// when done.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	return s.eventFeed.subscribe(64)
}

// Unsubscribe closes and removes an event subscription.
func (s *Simulation) Unsubscribe(id int) {
	s.eventFeed.unsubscribe(id)
}

// SubscribeTicks registers for completed tick results.
func (s *Simulation) SubscribeTicks() (int, <-chan TickResult) {
	return s.tickFeed.subscribe(8)
}

// SubscribeTicksBuffered is SubscribeTicks with a caller-sized buffer, for
// consumers that must not miss ticks.
func (s *Simulation) SubscribeTicksBuffered(buf int) (int, <-chan TickResult) {
	return s.tickFeed.subscribe(buf)
}

// UnsubscribeTicks closes and removes a tick subscription.
func (s *Simulation) UnsubscribeTicks(id int) {
	s.tickFeed.unsubscribe(id)
}

// Subscribers reports how many event and tick subscriptions are open.
func (s *Simulation) Subscribers() (events, ticks int) {
	return s.eventFeed.count(), s.tickFeed.count()
}

// RecentEvents returns up to n of the newest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	start := len(s.events) - n
	if start < 0 || n <= 0 {
		start = 0
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}
