package wire

import (
	"encoding/binary"
	"errors"
)

// ARPOperation is the ARP header's operation field.
type ARPOperation uint16

const (
	ARPRequest ARPOperation = 1
	ARPReply   ARPOperation = 2
)

const arpLenIPv4 = 28 // 8 fixed + 2*(6 MAC + 4 IPv4)

// ARPMessage is a decoded IPv4-over-Ethernet ARP packet: hardware type
// Ethernet (1), protocol type IPv4 (0x0800), fixed 6-byte MAC and
// 4-byte IPv4 address lengths. This stack never speaks any other ARP
// address-family combination, so those fields aren't exposed.
type ARPMessage struct {
	Operation ARPOperation
	SenderMAC MAC
	SenderIP  [4]byte
	TargetMAC MAC
	TargetIP  [4]byte
}

// EncodeARP serializes an ARPMessage.
func EncodeARP(m ARPMessage) []byte {
	buf := make([]byte, arpLenIPv4)
	binary.BigEndian.PutUint16(buf[0:2], 1)      // hardware type: Ethernet
	binary.BigEndian.PutUint16(buf[2:4], 0x0800) // protocol type: IPv4
	buf[4] = 6                                   // hardware address length
	buf[5] = 4                                   // protocol address length
	binary.BigEndian.PutUint16(buf[6:8], uint16(m.Operation))
	copy(buf[8:14], m.SenderMAC[:])
	copy(buf[14:18], m.SenderIP[:])
	copy(buf[18:24], m.TargetMAC[:])
	copy(buf[24:28], m.TargetIP[:])
	return buf
}

// DecodeARP parses an ARPMessage from buf. It rejects any hardware or
// protocol type other than Ethernet/IPv4, since this stack never
// issues or expects those ARP variants.
func DecodeARP(buf []byte) (ARPMessage, error) {
	if len(buf) < arpLenIPv4 {
		return ARPMessage{}, errors.New("wire: arp message too short")
	}
	hwType := binary.BigEndian.Uint16(buf[0:2])
	protoType := binary.BigEndian.Uint16(buf[2:4])
	hwLen, protoLen := buf[4], buf[5]
	if hwType != 1 || protoType != 0x0800 || hwLen != 6 || protoLen != 4 {
		return ARPMessage{}, errors.New("wire: unsupported arp address family")
	}
	var m ARPMessage
	m.Operation = ARPOperation(binary.BigEndian.Uint16(buf[6:8]))
	copy(m.SenderMAC[:], buf[8:14])
	copy(m.SenderIP[:], buf[14:18])
	copy(m.TargetMAC[:], buf[18:24])
	copy(m.TargetIP[:], buf[24:28])
	return m, nil
}
