// Package wire implements the link-layer framing NetworkInterface needs:
// a 14-byte Ethernet header (no VLAN support, matching the point-to-point
// links this stack runs over) and a fixed-length IPv4 ARP message. The
// byte layout follows the conventions laid out by soypat/lneto's
// ethernet and arp packages, but the API here is a plain encode/decode
// pair rather than a zero-copy Frame view: NetworkInterface only ever
// deals with whole, already-buffered packets.
package wire

import (
	"encoding/binary"
	"errors"
)

// EtherType identifies the payload carried by an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

const ethHeaderLen = 14

// MAC is a 6-byte hardware address.
type MAC [6]byte

// Broadcast is the Ethernet broadcast address.
var Broadcast = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EthernetFrame is a decoded Ethernet header plus its payload.
type EthernetFrame struct {
	Dst     MAC
	Src     MAC
	Type    EtherType
	Payload []byte
}

// EncodeEthernet serializes an Ethernet frame.
func EncodeEthernet(f EthernetFrame) []byte {
	buf := make([]byte, ethHeaderLen+len(f.Payload))
	copy(buf[0:6], f.Dst[:])
	copy(buf[6:12], f.Src[:])
	binary.BigEndian.PutUint16(buf[12:14], uint16(f.Type))
	copy(buf[ethHeaderLen:], f.Payload)
	return buf
}

// DecodeEthernet parses an Ethernet frame from buf.
func DecodeEthernet(buf []byte) (EthernetFrame, error) {
	if len(buf) < ethHeaderLen {
		return EthernetFrame{}, errors.New("wire: ethernet frame shorter than header")
	}
	var f EthernetFrame
	copy(f.Dst[:], buf[0:6])
	copy(f.Src[:], buf[6:12])
	f.Type = EtherType(binary.BigEndian.Uint16(buf[12:14]))
	f.Payload = buf[ethHeaderLen:]
	return f, nil
}
