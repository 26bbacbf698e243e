// Package bytestream implements a bounded, single-producer
// single-consumer FIFO of bytes: the building block every other layer
// of the stack (Reassembler, TCPSender's outgoing data, application
// reads) is built on top of.
package bytestream

// ByteStream is a fixed-capacity ring buffer with writer-side push/close
// and reader-side peek/pop. It is not safe for concurrent use; callers
// drive it synchronously, same as every other component in this stack.
type ByteStream struct {
	capacity uint64
	ring     []byte

	pushed uint64
	popped uint64

	closed  bool
	errored bool
}

// New returns a ByteStream able to hold up to capacity buffered bytes.
func New(capacity uint64) *ByteStream {
	return &ByteStream{
		capacity: capacity,
		ring:     make([]byte, capacity),
	}
}

// Push appends up to AvailableCapacity() bytes from data; any excess is
// silently dropped. Push is a no-op once the stream is closed or errored.
func (bs *ByteStream) Push(data []byte) (n int) {
	if bs.closed || bs.errored {
		return 0
	}
	avail := bs.AvailableCapacity()
	if uint64(len(data)) < avail {
		avail = uint64(len(data))
	}
	for i := uint64(0); i < avail; i++ {
		bs.ring[(bs.pushed+i)%bs.capacity] = data[i]
	}
	bs.pushed += avail
	return int(avail)
}

// Close signals that no further bytes will be pushed.
func (bs *ByteStream) Close() {
	bs.closed = true
}

// SetError marks the stream as terminally errored.
func (bs *ByteStream) SetError() {
	bs.errored = true
}

// HasError reports whether SetError has ever been called. Monotone.
func (bs *ByteStream) HasError() bool {
	return bs.errored
}

// IsClosed reports whether Close has ever been called.
func (bs *ByteStream) IsClosed() bool {
	return bs.closed
}

// AvailableCapacity is how many more bytes Push could accept right now.
func (bs *ByteStream) AvailableCapacity() uint64 {
	return bs.capacity - bs.BytesBuffered()
}

// BytesPushed is the lifetime count of bytes accepted by Push.
func (bs *ByteStream) BytesPushed() uint64 {
	return bs.pushed
}

// BytesPopped is the lifetime count of bytes discarded by Pop.
func (bs *ByteStream) BytesPopped() uint64 {
	return bs.popped
}

// BytesBuffered is the number of bytes currently held, pending Pop.
func (bs *ByteStream) BytesBuffered() uint64 {
	return bs.pushed - bs.popped
}

// IsFinished reports whether the stream is closed and fully drained.
func (bs *ByteStream) IsFinished() bool {
	return bs.closed && bs.BytesBuffered() == 0
}

// Peek returns a contiguous view of some prefix of the buffered bytes.
// Because the stream is a ring, the view stops at the point where the
// underlying buffer wraps around; callers that need the full buffered
// content should Pop what they consume and call Peek again.
func (bs *ByteStream) Peek() []byte {
	buffered := bs.BytesBuffered()
	if buffered == 0 {
		return nil
	}
	start := bs.popped % bs.capacity
	runLen := bs.capacity - start
	if runLen > buffered {
		runLen = buffered
	}
	return bs.ring[start : start+runLen]
}

// Pop discards min(n, BytesBuffered()) bytes from the front of the stream.
func (bs *ByteStream) Pop(n uint64) {
	buffered := bs.BytesBuffered()
	if n > buffered {
		n = buffered
	}
	bs.popped += n
}

// PopAll drains and returns every byte currently buffered.
func (bs *ByteStream) PopAll() []byte {
	out := make([]byte, 0, bs.BytesBuffered())
	for {
		chunk := bs.Peek()
		if len(chunk) == 0 {
			break
		}
		out = append(out, chunk...)
		bs.Pop(uint64(len(chunk)))
	}
	return out
}
