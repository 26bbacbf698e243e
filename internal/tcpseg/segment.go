// Package tcpseg converts between the core stack's tcpmsg messages
// and real TCP-over-IPv4 wire bytes, using
// github.com/google/netstack/tcpip/header the way the teacher's
// checksum helper did, but for the full TCP header rather than just
// IPv4. This sits entirely outside internal/tcpip: spec.md puts
// segment encapsulation out of the core's scope, but a host binary
// that wants to interoperate with a real peer still needs it.
package tcpseg

import (
	"net/netip"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"

	"minnow-go/internal/tcpip/tcpmsg"
	"minnow-go/internal/tcpip/wrap32"
)

const (
	flagFIN = 1 << 0
	flagSYN = 1 << 1
	flagRST = 1 << 2
	flagACK = 1 << 4
)

// Endpoints identifies the four-tuple a segment travels between, needed
// to compute the TCP pseudo-header checksum.
type Endpoints struct {
	SrcAddr netip.Addr
	DstAddr netip.Addr
	SrcPort uint16
	DstPort uint16
}

// EncodeSender serializes a tcpmsg.SenderMessage into a TCP segment
// addressed per ep, with ackno/window folded in from the companion
// receiver-side state (a bare SenderMessage carries no ack field of
// its own; the caller supplies whatever the receiver last reported).
func EncodeSender(msg tcpmsg.SenderMessage, ackno *wrap32.Wrap32, window uint16, ep Endpoints) ([]byte, error) {
	var flags uint8
	if msg.SYN {
		flags |= flagSYN
	}
	if msg.FIN {
		flags |= flagFIN
	}
	if msg.RST {
		flags |= flagRST
	}
	var ackNum uint32
	if ackno != nil {
		flags |= flagACK
		ackNum = ackno.Raw()
	}

	totalLen := header.TCPMinimumSize + len(msg.Payload)
	buf := make([]byte, totalLen)
	tcp := header.TCP(buf)
	tcp.Encode(&header.TCPFields{
		SrcPort:    ep.SrcPort,
		DstPort:    ep.DstPort,
		SeqNum:     msg.Seqno.Raw(),
		AckNum:     ackNum,
		DataOffset: header.TCPMinimumSize,
		Flags:      flags,
		WindowSize: window,
	})
	copy(buf[header.TCPMinimumSize:], msg.Payload)

	pseudoSum := header.PseudoHeaderChecksum(header.TCPProtocolNumber,
		tcpipAddress(ep.SrcAddr), tcpipAddress(ep.DstAddr), uint16(totalLen))
	tcp.SetChecksum(^tcp.CalculateChecksum(pseudoSum))
	return buf, nil
}

// DecodeReceiver parses a TCP segment into its payload (as a
// tcpmsg.SenderMessage, since the wire carries both directions of
// flags in one header shape) and a separately reported ReceiverMessage
// view (ackno/window), matching how the core keeps sender and receiver
// state apart even though the wire format doesn't.
func DecodeReceiver(buf []byte) (tcpmsg.SenderMessage, tcpmsg.ReceiverMessage, error) {
	if len(buf) < header.TCPMinimumSize {
		return tcpmsg.SenderMessage{}, tcpmsg.ReceiverMessage{}, errors.New("tcpseg: segment shorter than TCP header")
	}
	tcp := header.TCP(buf)
	flags := tcp.Flags()

	sender := tcpmsg.SenderMessage{
		Seqno:   wrap32.FromRaw(tcp.SequenceNumber()),
		SYN:     flags&flagSYN != 0,
		FIN:     flags&flagFIN != 0,
		RST:     flags&flagRST != 0,
		Payload: buf[tcp.DataOffset():],
	}

	var recv tcpmsg.ReceiverMessage
	recv.RST = sender.RST
	recv.WindowSize = tcp.WindowSize()
	if flags&flagACK != 0 {
		ackno := wrap32.FromRaw(tcp.AckNumber())
		recv.Ackno = &ackno
	}
	return sender, recv, nil
}

func tcpipAddress(a netip.Addr) tcpip.Address {
	b := a.As4()
	return tcpip.Address(b[:])
}
