// Package reassembler turns a stream of possibly-overlapping,
// possibly-out-of-order indexed substrings into the contiguous byte
// stream a TCPReceiver's application reader expects.
//
// The gap buffer that holds not-yet-contiguous substrings is kept in a
// github.com/google/btree ordered map keyed by start index, per the
// data structure suggested for this role: efficient range-find and
// splice around an arbitrary insertion point.
package reassembler

import (
	"minnow-go/internal/tcpip/bytestream"

	"github.com/google/btree"
)

// segment is one buffered, not-yet-deliverable substring.
type segment struct {
	firstIndex uint64
	data       []byte
	isLast     bool
}

func (s segment) end() uint64 {
	return s.firstIndex + uint64(len(s.data))
}

func segmentLess(a, b segment) bool {
	return a.firstIndex < b.firstIndex
}

// Reassembler wraps an output ByteStream and buffers gaps until they
// can be written in order.
type Reassembler struct {
	out     *bytestream.ByteStream
	gaps    *btree.BTreeG[segment]
	pending uint64
}

// New returns a Reassembler whose output stream has the given capacity.
func New(capacity uint64) *Reassembler {
	return &Reassembler{
		out:  bytestream.New(capacity),
		gaps: btree.NewG(32, segmentLess),
	}
}

// Writer exposes the underlying output stream, e.g. for an application
// to read from, or for a TCPReceiver to compute its acknowledgment.
func (r *Reassembler) Writer() *bytestream.ByteStream {
	return r.out
}

// BytesPending is the number of bytes currently held in the gap buffer,
// not yet written to the output stream.
func (r *Reassembler) BytesPending() uint64 {
	return r.pending
}

// Insert accepts the substring data, whose first byte has absolute
// stream index firstIndex. isLast marks data as ending the stream.
func (r *Reassembler) Insert(firstIndex uint64, data []byte, isLast bool) {
	nextIndex := r.out.BytesPushed()
	capLeft := r.out.AvailableCapacity()
	capIndex := nextIndex + capLeft

	if r.out.IsClosed() || capLeft == 0 || firstIndex >= capIndex {
		return
	}
	if firstIndex+uint64(len(data)) >= capIndex {
		data = data[:capIndex-firstIndex]
		isLast = false
	}
	if len(data) == 0 && !isLast {
		return
	}

	if firstIndex <= nextIndex {
		drop := nextIndex - firstIndex
		if drop > uint64(len(data)) {
			drop = uint64(len(data))
		}
		data = data[drop:]
		if len(data) > 0 {
			r.out.Push(data)
		}
		if isLast {
			r.out.Close()
			r.gaps.Clear(false)
			r.pending = 0
			return
		}
		r.flush()
		return
	}

	r.insertGap(segment{firstIndex: firstIndex, data: data, isLast: isLast})
	r.flush()
}

// insertGap merges seg into the gap buffer, unioning it with any
// existing triple it overlaps or is contiguous with.
func (r *Reassembler) insertGap(seg segment) {
	merged := seg

	var pred *segment
	r.gaps.DescendLessOrEqual(segment{firstIndex: merged.firstIndex}, func(item segment) bool {
		p := item
		pred = &p
		return false
	})
	if pred != nil && pred.end() >= merged.firstIndex {
		merged = union(*pred, merged)
		r.gaps.Delete(*pred)
		r.pending -= uint64(len(pred.data))
	}

	for {
		var next *segment
		r.gaps.AscendGreaterOrEqual(segment{firstIndex: merged.firstIndex}, func(item segment) bool {
			n := item
			next = &n
			return false
		})
		if next == nil || next.firstIndex > merged.end() {
			break
		}
		merged = union(merged, *next)
		r.gaps.Delete(*next)
		r.pending -= uint64(len(next.data))
	}

	r.gaps.ReplaceOrInsert(merged)
	r.pending += uint64(len(merged.data))
}

// union merges two overlapping or contiguous segments into one. Where
// the two inputs disagree on an overlapping byte, b wins; TCP senders
// never retransmit inconsistent data for the same index, so this
// never matters in practice.
func union(a, b segment) segment {
	start := min(a.firstIndex, b.firstIndex)
	end := max(a.end(), b.end())
	data := make([]byte, end-start)
	copy(data[a.firstIndex-start:], a.data)
	copy(data[b.firstIndex-start:], b.data)
	return segment{firstIndex: start, data: data, isLast: a.isLast || b.isLast}
}

// flush writes out every gap-buffer triple that has become contiguous
// with the output stream, stopping at the first remaining gap. A triple
// that overlaps bytes already written has that overlap skipped.
func (r *Reassembler) flush() {
	for {
		front, ok := r.gaps.Min()
		pushed := r.out.BytesPushed()
		if !ok || front.firstIndex > pushed {
			return
		}
		r.gaps.Delete(front)
		r.pending -= uint64(len(front.data))
		if front.end() > pushed {
			r.out.Push(front.data[pushed-front.firstIndex:])
		}
		if front.isLast {
			r.out.Close()
			r.gaps.Clear(false)
			r.pending = 0
			return
		}
	}
}
