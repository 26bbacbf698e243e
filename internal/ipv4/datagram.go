// Package ipv4 wraps the brown-csci1680/iptcp-headers IPv4 header type
// with the datagram-level operations the router and network interface
// need: checksum recomputation after a TTL decrement, and marshal/parse
// round trips to and from wire bytes.
package ipv4

import (
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

// Datagram is a parsed IPv4 header plus its payload.
type Datagram struct {
	Header  ipv4header.IPv4Header
	Payload []byte
}

// defaultTTL is the hop limit installed on datagrams originated
// locally (as opposed to forwarded), matching the teacher's SendIP.
const defaultTTL = 16

// NewDatagram builds a fresh IPv4 datagram carrying payload under
// protocol, with no IP options and a TTL of defaultTTL. The caller
// still owns choosing where it goes; the checksum is left at zero
// until Marshal (which calls RecomputeChecksum) is invoked.
func NewDatagram(src, dst netip.Addr, protocol int, payload []byte) Datagram {
	return Datagram{
		Header: ipv4header.IPv4Header{
			Version:  4,
			Len:      ipv4header.HeaderLen,
			TotalLen: ipv4header.HeaderLen + len(payload),
			TTL:      defaultTTL,
			Protocol: protocol,
			Src:      src,
			Dst:      dst,
			Options:  []byte{},
		},
		Payload: payload,
	}
}

// Parse decodes buf into a Datagram.
func Parse(buf []byte) (Datagram, error) {
	hdr, err := ipv4header.ParseHeader(buf)
	if err != nil {
		return Datagram{}, errors.Wrap(err, "parse ipv4 header")
	}
	if hdr.Len > len(buf) {
		return Datagram{}, errors.New("ipv4 header length exceeds buffer")
	}
	return Datagram{Header: *hdr, Payload: buf[hdr.Len:]}, nil
}

// Marshal recomputes the header checksum and serializes the datagram.
func (d *Datagram) Marshal() ([]byte, error) {
	if err := d.RecomputeChecksum(); err != nil {
		return nil, errors.Wrap(err, "recompute ipv4 checksum")
	}
	hdrBytes, err := d.Header.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal ipv4 header")
	}
	out := make([]byte, 0, len(hdrBytes)+len(d.Payload))
	out = append(out, hdrBytes...)
	out = append(out, d.Payload...)
	return out, nil
}

// RecomputeChecksum recalculates and installs the header checksum. It
// must be called any time a header field (e.g. TTL) changes.
func (d *Datagram) RecomputeChecksum() error {
	d.Header.Checksum = 0
	hdrBytes, err := d.Header.Marshal()
	if err != nil {
		return err
	}
	sum := header.Checksum(hdrBytes, 0)
	d.Header.Checksum = int(^sum)
	return nil
}

// DstAddr returns the destination address as a netip.Addr.
func (d *Datagram) DstAddr() netip.Addr {
	return d.Header.Dst
}
