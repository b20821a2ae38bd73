package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/puzpuzpuz/xsync/v3"
)

const defaultSubscriptionBuffer = 10_000

// subscriptionRegistry keeps the buffered subscriptions of remote clients.
// Clients fetch the buffered events with poll; a subscription nobody polled
// for a lease period is dropped.
type subscriptionRegistry struct {
	subs      *xsync.MapOf[events.Handle, *bufferedSubscription]
	lease     time.Duration
	maxBuffer int

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// bufferedSubscription collects the events of one cache subscription
type bufferedSubscription struct {
	handle      events.Handle
	cache       grid.ICache
	cacheHandle events.Handle
	maxBuffer   int

	mu      sync.Mutex
	buf     []events.Event
	dropped bool
	notify  chan struct{} // signalled when events arrive

	lastPoll atomic.Int64 // unix nanos
	polling  atomic.Int32
}

func newSubscriptionRegistry(lease time.Duration, maxBuffer int) *subscriptionRegistry {
	if maxBuffer <= 0 {
		maxBuffer = defaultSubscriptionBuffer
	}
	r := &subscriptionRegistry{
		subs:      xsync.NewMapOf[events.Handle, *bufferedSubscription](),
		lease:     lease,
		maxBuffer: maxBuffer,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.reapLoop()
	return r
}

// --------------------------------------------------------------------------
// Registry operations
// --------------------------------------------------------------------------

func (r *subscriptionRegistry) subscribe(ctx context.Context, cache grid.ICache, scope events.Scope) (events.Handle, error) {
	sub := &bufferedSubscription{
		handle:    events.NewHandle(),
		cache:     cache,
		maxBuffer: r.maxBuffer,
		notify:    make(chan struct{}, 1),
	}
	sub.touch()

	h, err := cache.Subscribe(ctx, events.All(sub.push), scope)
	if err != nil {
		return "", err
	}
	sub.cacheHandle = h

	r.subs.Store(sub.handle, sub)
	Logger.Debugf("Registered remote subscription %s (%s)", sub.handle, scope)
	return sub.handle, nil
}

// poll returns the buffered events. It waits up to wait for the first
// event; an empty batch is not an error.
func (r *subscriptionRegistry) poll(ctx context.Context, h events.Handle, wait time.Duration) ([]events.Event, error) {
	sub, ok := r.subs.Load(h)
	if !ok {
		return nil, grid.NewError(grid.RetCInvalidOperation, "unknown subscription "+string(h))
	}

	sub.polling.Add(1)
	sub.touch()
	defer func() {
		sub.touch()
		sub.polling.Add(-1)
	}()

	if batch := sub.drain(); len(batch) > 0 || wait <= 0 {
		return batch, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-sub.notify:
			if batch := sub.drain(); len(batch) > 0 {
				return batch, nil
			}
		case <-timer.C:
			return sub.drain(), nil
		case <-ctx.Done():
			return sub.drain(), nil
		case <-r.stopCh:
			return sub.drain(), nil
		}
	}
}

func (r *subscriptionRegistry) unsubscribe(ctx context.Context, h events.Handle) error {
	sub, ok := r.subs.LoadAndDelete(h)
	if !ok {
		return grid.NewError(grid.RetCInvalidOperation, "unknown subscription "+string(h))
	}
	return sub.cache.Unsubscribe(ctx, sub.cacheHandle)
}

// len returns the number of registered subscriptions
func (r *subscriptionRegistry) len() int {
	return r.subs.Size()
}

// close stops the reaper and drops all subscriptions
func (r *subscriptionRegistry) close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.done
		r.subs.Range(func(h events.Handle, _ *bufferedSubscription) bool {
			r.drop(h)
			return true
		})
	})
}

// --------------------------------------------------------------------------
// Lease handling
// --------------------------------------------------------------------------

func (r *subscriptionRegistry) reapLoop() {
	defer close(r.done)

	interval := max(r.lease/2, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reap(time.Now())
		case <-r.stopCh:
			return
		}
	}
}

// reap drops the subscriptions whose lease expired at now
func (r *subscriptionRegistry) reap(now time.Time) {
	r.subs.Range(func(h events.Handle, sub *bufferedSubscription) bool {
		if sub.polling.Load() == 0 && now.Sub(time.Unix(0, sub.lastPoll.Load())) > r.lease {
			Logger.Infof("Remote subscription %s expired, not polled for %s", h, r.lease)
			r.drop(h)
		}
		return true
	})
}

func (r *subscriptionRegistry) drop(h events.Handle) {
	sub, ok := r.subs.LoadAndDelete(h)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sub.cache.Unsubscribe(ctx, sub.cacheHandle); err != nil {
		Logger.Warningf("Failed to drop subscription %s: %v", h, err)
	}
}

// --------------------------------------------------------------------------
// Buffer
// --------------------------------------------------------------------------

func (s *bufferedSubscription) touch() {
	s.lastPoll.Store(time.Now().UnixNano())
}

// push buffers an event, the oldest one is dropped when the buffer is full
func (s *bufferedSubscription) push(e events.Event) {
	s.mu.Lock()
	if len(s.buf) >= s.maxBuffer {
		if !s.dropped {
			Logger.Warningf("Buffer of subscription %s is full, dropping oldest events", s.handle)
			s.dropped = true
		}
		s.buf = s.buf[1:]
	}
	s.buf = append(s.buf, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *bufferedSubscription) drain() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.buf
	s.buf = nil
	s.dropped = false
	return batch
}
