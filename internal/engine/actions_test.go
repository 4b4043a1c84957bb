package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// memKV is an in-memory storage.KV for engine tests.
type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemKV() *memKV {
	return &memKV{m: make(map[string]string)}
}

func (s *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *memKV) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *memKV) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func TestEnqueueDedupWindow(t *testing.T) {
	q := NewActionQueue(newMemKV())
	ctx := context.Background()

	accepted, err := q.Enqueue(ctx, "c1", ActionDecline, 10_000)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if !accepted {
		t.Fatal("first enqueue must be accepted")
	}

	// Identical action within the 2000ms window is rejected.
	accepted, err = q.Enqueue(ctx, "c1", ActionDecline, 12_000)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if accepted {
		t.Error("duplicate within window must be rejected")
	}

	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Errorf("queue depth = %d, want 1 after dedup", depth)
	}

	// Same call, different action: accepted.
	if accepted, _ := q.Enqueue(ctx, "c1", ActionAnswer, 12_000); !accepted {
		t.Error("different action type must be accepted")
	}

	// Same action, outside the window: accepted.
	if accepted, _ := q.Enqueue(ctx, "c1", ActionDecline, 12_001); !accepted {
		t.Error("duplicate outside window must be accepted")
	}
}

func TestEnqueueBounded(t *testing.T) {
	q := NewActionQueue(newMemKV())
	ctx := context.Background()

	// 15 accepted enqueues, spaced outside the dedup window.
	for i := 0; i < 15; i++ {
		ts := int64(i) * 10_000
		accepted, err := q.Enqueue(ctx, fmt.Sprintf("call-%d", i), ActionAnswer, ts)
		if err != nil {
			t.Fatalf("Enqueue(%d) error: %v", i, err)
		}
		if !accepted {
			t.Fatalf("Enqueue(%d) unexpectedly rejected", i)
		}
	}

	entries, err := q.DrainExpired(ctx, 15*10_000)
	if err != nil {
		t.Fatalf("DrainExpired() error: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("drained %d entries, want 10", len(entries))
	}

	// The 10 most recent survive, in order.
	for i, e := range entries {
		want := fmt.Sprintf("call-%d", i+5)
		if e.CallID != want {
			t.Errorf("entry %d call id = %q, want %q", i, e.CallID, want)
		}
	}
}

func TestDrainExpiredFiltersAndClears(t *testing.T) {
	kv := newMemKV()
	q := NewActionQueue(kv)
	ctx := context.Background()

	const now = int64(500_000)

	q.Enqueue(ctx, "old", ActionDecline, now-120_001) // beyond cutoff
	q.Enqueue(ctx, "edge", ActionDecline, now-120_000)
	q.Enqueue(ctx, "fresh", ActionAnswer, now-1_000)

	entries, err := q.DrainExpired(ctx, now)
	if err != nil {
		t.Fatalf("DrainExpired() error: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("drained %d entries, want 2", len(entries))
	}
	if entries[0].CallID != "edge" || entries[1].CallID != "fresh" {
		t.Errorf("drained order = [%s, %s], want [edge, fresh]", entries[0].CallID, entries[1].CallID)
	}

	// Destructive read: store is emptied regardless of filtering.
	if _, ok, _ := kv.Get(ctx, actionsKey); ok {
		t.Error("backing store must be cleared by drain")
	}
	depth, _ := q.Depth(ctx)
	if depth != 0 {
		t.Errorf("depth after drain = %d, want 0", depth)
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	q := NewActionQueue(newMemKV())

	entries, err := q.DrainExpired(context.Background(), 1_000)
	if err != nil {
		t.Fatalf("DrainExpired() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("drained %d entries from empty queue, want 0", len(entries))
	}
}

func TestQueueAcceptsLegacyRecordShape(t *testing.T) {
	kv := newMemKV()
	q := NewActionQueue(kv)
	ctx := context.Background()

	// A queue written by an older producer: legacy field names only.
	legacy := `[{"action":"decline","call_id":"c1","timestamp":10000}]`
	if err := kv.Set(ctx, actionsKey, legacy); err != nil {
		t.Fatal(err)
	}

	// Dedup still sees the legacy entry.
	accepted, err := q.Enqueue(ctx, "c1", ActionDecline, 11_000)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if accepted {
		t.Error("duplicate of legacy-shaped entry must be deduped")
	}

	entries, err := q.DrainExpired(ctx, 20_000)
	if err != nil {
		t.Fatalf("DrainExpired() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("drained %d entries, want 1", len(entries))
	}
	if entries[0].Action != ActionDecline || entries[0].CallID != "c1" || entries[0].TimestampMs != 10_000 {
		t.Errorf("legacy entry decoded as %+v", entries[0])
	}
}

func TestQueueCorruptStoreTreatedAsEmpty(t *testing.T) {
	kv := newMemKV()
	q := NewActionQueue(kv)
	ctx := context.Background()

	kv.Set(ctx, actionsKey, "{not json")

	accepted, err := q.Enqueue(ctx, "c1", ActionAnswer, 1_000)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if !accepted {
		t.Error("enqueue over corrupt store must be accepted")
	}

	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Errorf("depth = %d, want 1", depth)
	}
}

func TestEnqueueConcurrent(t *testing.T) {
	q := NewActionQueue(newMemKV())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Distinct calls, so every enqueue is accepted.
			q.Enqueue(ctx, fmt.Sprintf("c-%d", i), ActionAnswer, int64(i)*10_000)
		}(i)
	}
	wg.Wait()

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth() error: %v", err)
	}
	if depth != maxQueueEntries {
		t.Errorf("depth = %d, want bound %d", depth, maxQueueEntries)
	}
}
