// Package tcpreceiver implements the receiving half of a TCP
// connection: it tracks the initial sequence number, feeds incoming
// payload to a Reassembler, and reports an ack/window pair back to
// the remote sender.
package tcpreceiver

import (
	"minnow-go/internal/tcpip/bytestream"
	"minnow-go/internal/tcpip/reassembler"
	"minnow-go/internal/tcpip/tcpmsg"
	"minnow-go/internal/tcpip/wrap32"
)

const maxWindowSize = 65535

// Receiver consumes TCPSenderMessages and produces TCPReceiverMessages.
type Receiver struct {
	reassembler *reassembler.Reassembler
	isn         *wrap32.Wrap32
}

// New returns a Receiver whose reassembled output stream has the given
// capacity.
func New(capacity uint64) *Receiver {
	return &Receiver{reassembler: reassembler.New(capacity)}
}

// Reader exposes the stream an application reads delivered bytes from.
func (r *Receiver) Reader() *bytestream.ByteStream {
	return r.reassembler.Writer()
}

// Receive processes one incoming segment from the sender.
func (r *Receiver) Receive(msg tcpmsg.SenderMessage) {
	if msg.RST {
		r.reassembler.Writer().SetError()
		return
	}
	if r.isn == nil {
		if !msg.SYN {
			return
		}
		isn := msg.Seqno
		r.isn = &isn
	}

	checkpoint := r.reassembler.Writer().BytesPushed() + 1
	absSeqno := msg.Seqno.Unwrap(*r.isn, checkpoint)
	var streamIndex uint64
	if absSeqno >= 1 {
		streamIndex = absSeqno - 1
	}
	r.reassembler.Insert(streamIndex, msg.Payload, msg.FIN)
}

// Send reports the current ack number (if any) and advertised window.
func (r *Receiver) Send() tcpmsg.ReceiverMessage {
	w := r.reassembler.Writer()
	window := w.AvailableCapacity()
	if window > maxWindowSize {
		window = maxWindowSize
	}

	if r.isn == nil {
		return tcpmsg.ReceiverMessage{WindowSize: uint16(window), RST: w.HasError()}
	}

	ackOffset := w.BytesPushed() + 1
	if w.IsClosed() {
		ackOffset++
	}
	ackno := wrap32.Wrap(ackOffset, *r.isn)
	return tcpmsg.ReceiverMessage{Ackno: &ackno, WindowSize: uint16(window), RST: w.HasError()}
}
