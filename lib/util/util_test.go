package util

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestHashString(t *testing.T) {
	// FNV-1a reference values
	tests := []struct {
		in   string
		want uint64
	}{
		{"", 0xcbf29ce484222325},
		{"a", 0xaf63dc4c8601ec8c},
		{"foobar", 0x85944171f73967e8},
	}
	for _, tt := range tests {
		if got := HashString(tt.in, 0); got != tt.want {
			t.Errorf("HashString(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
	if HashString("a", 1) == HashString("a", 0) {
		t.Error("seed should change the hash")
	}
}

func TestStripes(t *testing.T) {
	s := NewStripes(16)
	if s.For(`"alice"`) != s.For(`"alice"`) {
		t.Error("same key must map to the same stripe")
	}
	if NewStripes(0).For("x") == nil {
		t.Error("zero stripes should be clamped to one")
	}
}

func TestStripesIndependentOfOwnership(t *testing.T) {
	s := NewStripes(256)
	for _, members := range []uint64{2, 3, 4} {
		used := map[uint64]bool{}
		for i := 0; i < 5000; i++ {
			id := fmt.Sprintf(`{"id":%d}`, i)
			if HashString(id, 0)%members == 0 {
				used[s.index(id)] = true
			}
		}
		if len(used) < 240 {
			t.Errorf("%d members: keys of one member use %d of 256 stripes", members, len(used))
		}
	}
}

func TestQueueBasic(t *testing.T) {
	q := NewQueue[int]()
	defer q.Close()

	for i := 0; i < 10; i++ {
		if !q.Push(i) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case v := <-q.Recv():
			if v != i {
				t.Errorf("Expected %d, got %d", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case v := <-q.Recv():
		t.Errorf("Queue should be empty, but got %d", v)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue[int]()
	defer q.Close()

	const producers = 10
	const perProducer = 1000
	total := producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if !q.Push(id*perProducer + i) {
					t.Errorf("Producer %d failed to push item %d", id, i)
				}
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}

	seen := make(map[int]bool, total)
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	for len(seen) < total {
		select {
		case v := <-q.Recv():
			if seen[v] {
				t.Fatalf("Duplicate item %d", v)
			}
			seen[v] = true

			// per producer order is kept
			id, seq := v/perProducer, v%perProducer
			if seq <= last[id] {
				t.Fatalf("Producer %d: item %d after %d", id, seq, last[id])
			}
			last[id] = seq
		case <-time.After(5 * time.Second):
			t.Fatalf("Timeout, received %d of %d", len(seen), total)
		}
	}
	wg.Wait()
}

func TestQueueClose(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	q.Close()

	if q.Push(100) {
		t.Error("Should not be able to push after queue is closed")
	}
	if !q.IsClosed() {
		t.Error("IsClosed should report true")
	}

	for i := 0; i < 5; i++ {
		select {
		case v := <-q.Recv():
			if v != i {
				t.Errorf("Expected %d, got %d", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case _, ok := <-q.Recv():
		if ok {
			t.Error("Channel should be closed after draining")
		}
	case <-time.After(time.Second):
		t.Fatal("Channel was not closed after draining")
	}

	select {
	case <-q.Done():
	case <-time.After(time.Second):
		t.Fatal("Consumer did not exit")
	}
}

func TestQueueWakesIdleConsumer(t *testing.T) {
	q := NewQueue[int]()
	defer q.Close()

	// repeatedly let the consumer go idle before pushing
	for i := 0; i < 200; i++ {
		if i%20 == 0 {
			time.Sleep(time.Millisecond)
		}
		q.Push(i)
		select {
		case v := <-q.Recv():
			if v != i {
				t.Fatalf("Expected %d, got %d", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Lost wakeup at item %d", i)
		}
	}
}

func BenchmarkQueuePush(b *testing.B) {
	q := NewQueue[int]()
	defer q.Close()
	go func() {
		for range q.Recv() {
		}
	}()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Push(i)
			i++
		}
	})
}
