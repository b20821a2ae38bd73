package grid

import (
	"context"
	"sync"
)

// DefaultBatchSize is the number of entries a Loader buffers before flushing.
const DefaultBatchSize = 1000

// Loader buffers entries and writes them with PutAll, one round trip per
// batch. It is safe for concurrent use. Call Flush when done.
type Loader struct {
	cache     ICache
	batchSize int

	mu     sync.Mutex
	buf    []Entry
	loaded int64
}

// NewLoader creates a loader. batchSize <= 0 means DefaultBatchSize.
func NewLoader(cache ICache, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{cache: cache, batchSize: batchSize, buf: make([]Entry, 0, batchSize)}
}

// Add queues an entry and flushes once the batch is full.
func (l *Loader) Add(ctx context.Context, key, value any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, Entry{Key: key, Value: value})
	if len(l.buf) < l.batchSize {
		return nil
	}
	return l.flushLocked(ctx)
}

// Flush writes all buffered entries.
func (l *Loader) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked(ctx)
}

func (l *Loader) flushLocked(ctx context.Context) error {
	if len(l.buf) == 0 {
		return nil
	}
	if err := l.cache.PutAll(ctx, l.buf); err != nil {
		// keep the batch so the caller may retry the flush
		return err
	}
	l.loaded += int64(len(l.buf))
	l.buf = make([]Entry, 0, l.batchSize)
	return nil
}

// Loaded returns the number of entries written so far.
func (l *Loader) Loaded() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Pending returns the number of buffered entries.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}
