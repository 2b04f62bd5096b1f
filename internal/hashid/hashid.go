package hashid

import (
	"crypto/rand"
	"io"
	"sync"
)

// Alphabet lists the symbols an identifier may contain.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// DefaultLength is the identifier length used for asset names.
const DefaultLength = 32

// Allocator issues identifiers that are unique for its lifetime.
type Allocator struct {
	mu     sync.Mutex
	random io.Reader
	issued map[string]struct{}
}

// NewAllocator returns an allocator backed by crypto/rand.
func NewAllocator() *Allocator {
	return newAllocator(rand.Reader)
}

func newAllocator(random io.Reader) *Allocator {
	return &Allocator{random: random, issued: make(map[string]struct{})}
}

// New returns an identifier of the requested length. A length <= 0 selects
// DefaultLength. Collisions with previously issued values are retried.
func (a *Allocator) New(length int) string {
	if length <= 0 {
		length = DefaultLength
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		candidate := a.draw(length)
		if _, taken := a.issued[candidate]; taken {
			continue
		}
		a.issued[candidate] = struct{}{}
		return candidate
	}
}

// Issued reports how many identifiers the allocator has handed out.
func (a *Allocator) Issued() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.issued)
}

// draw picks each symbol from its own random byte. Bytes at or above the
// largest multiple of len(Alphabet) are rejected to avoid modulo bias.
func (a *Allocator) draw(length int) string {
	const limit = 256 - 256%len(Alphabet)
	out := make([]byte, length)
	var one [1]byte
	for i := 0; i < length; {
		if _, err := io.ReadFull(a.random, one[:]); err != nil {
			// crypto/rand does not fail on supported platforms.
			panic("hashid: random source failed: " + err.Error())
		}
		if int(one[0]) >= limit {
			continue
		}
		out[i] = Alphabet[int(one[0])%len(Alphabet)]
		i++
	}
	return string(out)
}

var defaultAllocator = NewAllocator()

// New returns an identifier from the process-wide allocator.
func New(length int) string {
	return defaultAllocator.New(length)
}

// Default exposes the process-wide allocator.
func Default() *Allocator {
	return defaultAllocator
}
