package events

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dGrid/lib/util"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("events")

// Handle identifies a subscription.
type Handle string

// NewHandle returns a fresh random handle.
func NewHandle() Handle { return Handle(uuid.NewString()) }

// --------------------------------------------------------------------------
// Subscription
// --------------------------------------------------------------------------

// Subscription delivers the events of one scope to one listener on its own
// goroutine.
type Subscription struct {
	handle   Handle
	listener Listener
	scope    Scope
	queue    *util.Queue[Event]

	mu     sync.Mutex // held while a callback runs
	closed atomic.Bool
}

// NewSubscription starts a subscription. Hubs create them internally; the
// remote cache client feeds polled events into one directly.
func NewSubscription(h Handle, l Listener, s Scope) *Subscription {
	sub := &Subscription{
		handle:   h,
		listener: l,
		scope:    s,
		queue:    util.NewQueue[Event](),
	}
	go sub.run()
	return sub
}

func (s *Subscription) Handle() Handle { return s.handle }
func (s *Subscription) Scope() Scope   { return s.scope }

// Offer queues the event if it is in scope. Never blocks.
func (s *Subscription) Offer(e Event) {
	if s.closed.Load() || !s.scope.Matches(e) {
		return
	}
	s.queue.Push(e)
}

func (s *Subscription) run() {
	for e := range s.queue.Recv() {
		s.mu.Lock()
		if !s.closed.Load() {
			s.call(e)
		}
		s.mu.Unlock()
	}
}

func (s *Subscription) call(e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("listener of subscription %s panicked on %s: %v", s.handle, e, r)
		}
	}()
	Deliver(s.listener, e)
}

// Close stops delivery. It waits for a running callback and guarantees no
// callback starts afterwards. Queued events are dropped.
func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	// wait for a running callback
	s.mu.Lock()
	s.mu.Unlock()
	s.queue.Close()
}

// --------------------------------------------------------------------------
// Hub
// --------------------------------------------------------------------------

// Hub fans events out to subscriptions.
type Hub struct {
	subs   *xsync.MapOf[Handle, *Subscription]
	closed atomic.Bool
}

func NewHub() *Hub {
	return &Hub{subs: xsync.NewMapOf[Handle, *Subscription]()}
}

// Subscribe registers a listener and returns its handle.
func (h *Hub) Subscribe(l Listener, s Scope) Handle {
	handle := NewHandle()
	h.subs.Store(handle, NewSubscription(handle, l, s))
	return handle
}

// Unsubscribe removes a subscription. See Subscription.Close for the
// guarantees. Returns false for an unknown handle.
func (h *Hub) Unsubscribe(handle Handle) bool {
	sub, ok := h.subs.LoadAndDelete(handle)
	if !ok {
		return false
	}
	sub.Close()
	return true
}

// Publish hands the event to every subscription in scope.
func (h *Hub) Publish(e Event) {
	if h.closed.Load() {
		return
	}
	h.subs.Range(func(_ Handle, sub *Subscription) bool {
		sub.Offer(e)
		return true
	})
}

// Len returns the number of subscriptions.
func (h *Hub) Len() int { return h.subs.Size() }

// Close removes all subscriptions.
func (h *Hub) Close() {
	h.closed.Store(true)
	h.subs.Range(func(handle Handle, _ *Subscription) bool {
		h.Unsubscribe(handle)
		return true
	})
}
