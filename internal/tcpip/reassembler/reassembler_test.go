package reassembler

import (
	"container/heap"
	"math/rand"
	"testing"
)

func TestGapFill(t *testing.T) {
	r := New(10)
	r.Insert(0, []byte("ab"), false)
	r.Insert(4, []byte("ef"), false)
	r.Insert(2, []byte("cdef"), true)

	got := string(r.Writer().PopAll())
	if got != "abcdef" {
		t.Fatalf("output = %q, want %q", got, "abcdef")
	}
	if !r.Writer().IsClosed() {
		t.Fatal("writer not closed after is_last delivered")
	}
	if r.BytesPending() != 0 {
		t.Fatalf("BytesPending() = %d, want 0", r.BytesPending())
	}
}

func TestOverlap(t *testing.T) {
	r := New(9) // one byte of headroom so is_last doesn't land exactly at cap_index
	r.Insert(0, []byte("abcd"), false)
	r.Insert(2, []byte("cdef"), false)
	r.Insert(6, []byte("gh"), true)

	got := string(r.Writer().PopAll())
	if got != "abcdefgh" {
		t.Fatalf("output = %q, want %q", got, "abcdefgh")
	}
	if !r.Writer().IsClosed() {
		t.Fatal("writer not closed")
	}
}

func TestCapacityBoundDropsOutOfWindow(t *testing.T) {
	r := New(4)
	r.Insert(10, []byte("zzzz"), false) // far beyond the capacity window
	if r.BytesPending() != 0 {
		t.Fatalf("BytesPending() = %d, want 0 (should have been dropped)", r.BytesPending())
	}
}

func TestTruncationClearsIsLast(t *testing.T) {
	r := New(4)
	r.Insert(0, []byte("abcdef"), true) // only 4 bytes fit
	got := string(r.Writer().PopAll())
	if got != "abcd" {
		t.Fatalf("output = %q, want %q", got, "abcd")
	}
	if r.Writer().IsClosed() {
		t.Fatal("writer closed even though the final byte was out of range")
	}
}

// TestExactCapacityBoundaryClearsIsLast covers the one case
// TestTruncationClearsIsLast doesn't: data that exactly fills the
// capacity window. is_last is still cleared here, since the byte
// carrying the "last" marker would be the one right at cap_index.
func TestExactCapacityBoundaryClearsIsLast(t *testing.T) {
	r := New(4)
	r.Insert(0, []byte("abcd"), true) // exactly fills the window
	got := string(r.Writer().PopAll())
	if got != "abcd" {
		t.Fatalf("output = %q, want %q", got, "abcd")
	}
	if r.Writer().IsClosed() {
		t.Fatal("writer closed even though is_last landed exactly at cap_index")
	}
}

// randomPiece is a substring with an assigned send priority, modeled on
// the EarlyArrivalPacket entries in this codebase's priority-queue
// helper: feeding a Reassembler substrings in a randomized arrival
// order is how the out-of-order-delivery invariant gets exercised.
type randomPiece struct {
	firstIndex uint64
	data       []byte
	isLast     bool
	priority   int
	index      int
}

type pieceQueue []*randomPiece

func (pq pieceQueue) Len() int            { return len(pq) }
func (pq pieceQueue) Less(i, j int) bool  { return pq[i].priority < pq[j].priority }
func (pq pieceQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i]; pq[i].index = i; pq[j].index = j }
func (pq *pieceQueue) Push(x any) {
	item := x.(*randomPiece)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *pieceQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

func TestEquivalenceUnderRandomArrivalOrder(t *testing.T) {
	const want = "the quick brown fox jumps over the lazy dog"
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		pq := &pieceQueue{}
		heap.Init(pq)

		pos := 0
		for pos < len(want) {
			chunk := 1 + rng.Intn(5)
			if pos+chunk > len(want) {
				chunk = len(want) - pos
			}
			heap.Push(pq, &randomPiece{
				firstIndex: uint64(pos),
				data:       []byte(want[pos : pos+chunk]),
				isLast:     pos+chunk == len(want),
				priority:   rng.Int(),
			})
			pos += chunk
		}

		r := New(uint64(len(want)) + 16)
		for pq.Len() > 0 {
			p := heap.Pop(pq).(*randomPiece)
			r.Insert(p.firstIndex, p.data, p.isLast)
		}

		got := string(r.Writer().PopAll())
		if got != want {
			t.Fatalf("trial %d: output = %q, want %q", trial, got, want)
		}
		if !r.Writer().IsClosed() {
			t.Fatalf("trial %d: writer not closed", trial)
		}
	}
}
