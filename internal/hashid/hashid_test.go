package hashid

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestNewUsesRequestedLengthAndAlphabet(t *testing.T) {
	alloc := NewAllocator()
	for _, length := range []int{1, 4, 32, 64} {
		id := alloc.New(length)
		if len(id) != length {
			t.Fatalf("expected length %d, got %d (%q)", length, len(id), id)
		}
		for _, r := range id {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("unexpected symbol %q in %q", r, id)
			}
		}
	}
}

func TestNewDefaultsLength(t *testing.T) {
	if got := len(NewAllocator().New(0)); got != DefaultLength {
		t.Fatalf("expected default length %d, got %d", DefaultLength, got)
	}
}

func TestNewRetriesOnCollision(t *testing.T) {
	// Two draws of "a" followed by a "b": the second call must skip the repeat.
	source := bytes.NewReader([]byte{10, 10, 11})
	alloc := newAllocator(source)

	first := alloc.New(1)
	second := alloc.New(1)
	if first != "a" {
		t.Fatalf("expected first id a, got %q", first)
	}
	if second != "b" {
		t.Fatalf("expected collision to be retried into b, got %q", second)
	}
	if alloc.Issued() != 2 {
		t.Fatalf("expected 2 issued ids, got %d", alloc.Issued())
	}
}

func TestNewRejectsBiasedBytes(t *testing.T) {
	// 252..255 fall outside the largest multiple of 36 and must be skipped.
	alloc := newAllocator(bytes.NewReader([]byte{255, 252, 1}))
	if got := alloc.New(1); got != "1" {
		t.Fatalf("expected biased bytes to be skipped, got %q", got)
	}
}

func TestNewUniqueUnderConcurrency(t *testing.T) {
	alloc := NewAllocator()
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := alloc.New(3)
				mu.Lock()
				if _, dup := seen[id]; dup {
					mu.Unlock()
					t.Errorf("duplicate id %q", id)
					return
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if alloc.Issued() != workers*perWorker {
		t.Fatalf("expected %d ids, got %d", workers*perWorker, alloc.Issued())
	}
}
