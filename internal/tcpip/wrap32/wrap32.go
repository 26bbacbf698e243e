// Package wrap32 implements 32-bit TCP sequence numbers and their
// conversion to and from the 64-bit "absolute" sequence space a
// TCPSender/TCPReceiver reason about internally.
package wrap32

// Wrap32 is a 32-bit sequence number as it appears on the wire.
type Wrap32 struct {
	raw uint32
}

// FromRaw builds a Wrap32 directly from its wire-format value.
func FromRaw(raw uint32) Wrap32 {
	return Wrap32{raw: raw}
}

// Raw returns the underlying 32-bit value.
func (w Wrap32) Raw() uint32 {
	return w.raw
}

func (w Wrap32) Equal(other Wrap32) bool {
	return w.raw == other.raw
}

// Wrap converts the absolute 64-bit sequence number n into a Wrap32
// relative to zeroPoint (the ISN).
func Wrap(n uint64, zeroPoint Wrap32) Wrap32 {
	return Wrap32{raw: zeroPoint.raw + uint32(n)}
}

// Unwrap returns the absolute 64-bit sequence number nearest checkpoint
// that wraps to w relative to zeroPoint. Ties (the candidate exactly
// 2^31 above checkpoint) are broken toward the larger, forward
// candidate, and the result is never negative.
func (w Wrap32) Unwrap(zeroPoint Wrap32, checkpoint uint64) uint64 {
	checkpointWrapped := Wrap(checkpoint, zeroPoint).raw
	// Unsigned 32-bit subtraction wraps automatically; widen afterwards
	// so the result lives in [0, 2^32).
	distance := uint64(w.raw - checkpointWrapped)
	candidate := checkpoint + distance
	if distance <= (1 << 31) {
		return candidate
	}
	if candidate < (1 << 32) {
		// Subtracting 2^32 would underflow below zero; the forward
		// candidate is the only valid one.
		return candidate
	}
	return candidate - (1 << 32)
}
