// Package tcpsender implements the sending half of a TCP connection:
// it drains an outgoing ByteStream into window- and MSS-governed
// TCPSenderMessages, manages SYN/FIN bookkeeping, and retransmits on
// timeout with exponential backoff.
package tcpsender

import (
	"time"

	"minnow-go/internal/tcpip/bytestream"
	"minnow-go/internal/tcpip/tcpmsg"
	"minnow-go/internal/tcpip/wrap32"
)

// outstandingSegment pairs a sent-but-unacked message with the
// absolute sequence number it started at, so acks (which arrive in
// 32-bit wire form) can be compared against it unambiguously.
type outstandingSegment struct {
	msg      tcpmsg.SenderMessage
	absSeqno uint64
}

// Sender drains input into TCPSenderMessages via Push, and processes
// acks via Receive.
type Sender struct {
	input          *bytestream.ByteStream
	isn            wrap32.Wrap32
	maxPayloadSize int
	initialRTO     time.Duration

	window   uint16 // W; defaults to 1 so the very first Push can probe.
	next     uint64 // N: next absolute seqno to assign.
	acked    uint64 // A: last absolute seqno acknowledged.
	inFlight uint64 // F: sum of sequence_length over outstanding.

	sentSYN bool
	sentFIN bool

	outstanding     []outstandingSegment
	timer           *RetransmissionTimer
	consecutiveRetx int
}

// New returns a Sender draining input, using isn as its initial
// sequence number.
func New(input *bytestream.ByteStream, isn wrap32.Wrap32, initialRTO time.Duration, maxPayloadSize int) *Sender {
	return &Sender{
		input:          input,
		isn:            isn,
		initialRTO:     initialRTO,
		maxPayloadSize: maxPayloadSize,
		window:         1,
		timer:          NewRetransmissionTimer(initialRTO),
	}
}

// Input returns the ByteStream the sender drains via Push. Callers
// outside the core (e.g. an application writing a request body) push
// into this directly.
func (s *Sender) Input() *bytestream.ByteStream {
	return s.input
}

// SequenceNumbersInFlight returns F, the sum of sequence_length over
// every outstanding (sent, not yet acked) message.
func (s *Sender) SequenceNumbersInFlight() uint64 {
	return s.inFlight
}

// ConsecutiveRetransmissions returns the count of back-to-back
// retransmissions since the last segment was freshly acknowledged.
func (s *Sender) ConsecutiveRetransmissions() int {
	return s.consecutiveRetx
}

// MakeEmptyMessage returns a flagless message at the current send
// pointer, carrying RST if and only if the input stream has errored.
// Useful for acking without data, or for signalling a dead connection.
func (s *Sender) MakeEmptyMessage() tcpmsg.SenderMessage {
	return tcpmsg.SenderMessage{Seqno: wrap32.Wrap(s.next, s.isn), RST: s.input.HasError()}
}

func readUpTo(bs *bytestream.ByteStream, n uint64) []byte {
	if n == 0 {
		return nil
	}
	if buffered := bs.BytesBuffered(); n > buffered {
		n = buffered
	}
	if n == 0 {
		return nil
	}
	out := make([]byte, 0, n)
	for uint64(len(out)) < n {
		chunk := bs.Peek()
		if len(chunk) == 0 {
			break
		}
		need := n - uint64(len(out))
		if uint64(len(chunk)) > need {
			chunk = chunk[:need]
		}
		out = append(out, chunk...)
		bs.Pop(uint64(len(chunk)))
	}
	return out
}

// Push segments whatever is ready in input into one or more
// TCPSenderMessages, handed to transmit in order, respecting the
// currently advertised window and MAX_PAYLOAD_SIZE.
func (s *Sender) Push(transmit func(tcpmsg.SenderMessage)) {
	for {
		effectiveWindow := uint64(s.window)
		if effectiveWindow == 0 {
			effectiveWindow = 1 // zero-window probing
		}
		if s.sentFIN || s.inFlight >= effectiveWindow {
			return
		}

		var synAdjustment uint64
		if !s.sentSYN {
			synAdjustment = 1
		}
		if s.sentSYN && s.input.BytesBuffered() == 0 && !s.input.IsFinished() {
			return
		}

		budget := effectiveWindow - s.inFlight
		if budget > synAdjustment {
			budget -= synAdjustment
		} else {
			budget = 0
		}
		if budget > uint64(s.maxPayloadSize) {
			budget = uint64(s.maxPayloadSize)
		}

		payload := readUpTo(s.input, budget)
		fin := s.input.IsFinished()

		msg := tcpmsg.SenderMessage{
			Seqno:   wrap32.Wrap(s.next, s.isn),
			SYN:     !s.sentSYN,
			Payload: payload,
			FIN:     fin,
		}
		seqLen := msg.SequenceLength()
		if fin && s.inFlight+seqLen > effectiveWindow {
			msg.FIN = false
			seqLen = msg.SequenceLength()
		}
		if msg.FIN {
			s.sentFIN = true
		}
		if seqLen == 0 {
			return
		}

		s.outstanding = append(s.outstanding, outstandingSegment{msg: msg, absSeqno: s.next})
		s.inFlight += seqLen
		s.next += seqLen
		s.sentSYN = true

		transmit(msg)
		if !s.timer.IsActive() {
			s.timer.Activate()
		}
	}
}

// Receive processes an incoming ReceiverMessage: updates the window,
// retires any now-fully-acknowledged outstanding segments, and resets
// the retransmission timer if progress was made.
func (s *Sender) Receive(msg tcpmsg.ReceiverMessage) {
	s.window = msg.WindowSize

	if msg.Ackno == nil {
		if msg.WindowSize == 0 {
			s.input.SetError()
		}
		return
	}

	ackAbs := msg.Ackno.Unwrap(s.isn, s.next)
	if ackAbs > s.next {
		return // acks data we never sent
	}

	removedAny := false
	for len(s.outstanding) > 0 {
		front := s.outstanding[0]
		segEnd := front.absSeqno + front.msg.SequenceLength()
		if ackAbs < segEnd {
			break
		}
		s.outstanding = s.outstanding[1:]
		s.inFlight -= front.msg.SequenceLength()
		s.acked = segEnd
		removedAny = true
	}

	if removedAny {
		s.timer.ResetRTO(s.initialRTO)
		s.consecutiveRetx = 0
		if len(s.outstanding) > 0 {
			s.timer.Activate()
		} else {
			s.timer.Deactivate()
		}
	}
}

// Tick advances the retransmission timer by elapsed. On expiry it
// retransmits the oldest outstanding segment and doubles the RTO,
// unless the peer's window is zero (the segment is a probe, not a
// congestion signal, so no backoff applies).
func (s *Sender) Tick(elapsed time.Duration, transmit func(tcpmsg.SenderMessage)) {
	s.timer.Elapse(elapsed)
	if !s.timer.IsExpired() || len(s.outstanding) == 0 {
		return
	}

	transmit(s.outstanding[0].msg)
	s.consecutiveRetx++
	if s.window > 0 {
		s.timer.Backoff()
	}
	s.timer.ResetElapsed()
}
