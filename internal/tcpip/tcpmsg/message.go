// Package tcpmsg holds the two message shapes TCPSender and TCPReceiver
// exchange with each other. They are deliberately decoupled from the
// wire encoding: encapsulation into an IP datagram and TCP segment
// happens one layer up, in internal/tcpseg and internal/ipv4.
package tcpmsg

import "minnow-go/internal/tcpip/wrap32"

// SenderMessage is what a TCPSender hands to its transmit callback.
type SenderMessage struct {
	Seqno   wrap32.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
	RST     bool
}

// SequenceLength is the number of sequence-number slots this message
// consumes: one for SYN, one per payload byte, one for FIN.
func (m SenderMessage) SequenceLength() uint64 {
	var n uint64
	if m.SYN {
		n++
	}
	n += uint64(len(m.Payload))
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is what a TCPReceiver reports back to the sender.
type ReceiverMessage struct {
	Ackno      *wrap32.Wrap32
	WindowSize uint16
	RST        bool
}
