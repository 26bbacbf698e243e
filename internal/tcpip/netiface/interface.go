// Package netiface implements the ARP-mediated Ethernet/IPv4 link
// layer: resolving next-hop MACs, queuing datagrams pending resolution,
// and answering/learning from ARP traffic, all driven by explicit
// SendDatagram/RecvFrame/Tick calls rather than a background goroutine.
package netiface

import (
	"sync"
	"time"

	"minnow-go/internal/ipv4"
	"minnow-go/internal/wire"
)

const (
	arpCacheTTL     = 30000 * time.Millisecond
	arpRequestFloor = 5000 * time.Millisecond
)

type cacheEntry struct {
	mac wire.MAC
	age time.Duration
}

type pendingRequest struct {
	age time.Duration
}

// Interface is a single network interface: an Ethernet/IPv4 endpoint
// with its own MAC, IP, ARP cache, and outbound link.
type Interface struct {
	ownMAC wire.MAC
	ownIP  uint32
	link   Link

	// mu guards every field below: RecvFrame runs on the link's receive
	// goroutine, Tick runs on the per-host tick loop, and SendDatagram
	// is called both from Tick/Route's goroutine and directly from the
	// REPL's command-reading goroutine. Mirrors the teacher's
	// IPStack.Mutex, scoped down to one interface's own state.
	mu sync.Mutex

	arpCache    map[uint32]cacheEntry
	arpInFlight map[uint32]*pendingRequest
	pending     map[uint32][]ipv4.Datagram

	inbound []ipv4.Datagram
}

// New returns an Interface with the given MAC/IP, transmitting through
// link.
func New(ownMAC wire.MAC, ownIP uint32, link Link) *Interface {
	return &Interface{
		ownMAC:      ownMAC,
		ownIP:       ownIP,
		link:        link,
		arpCache:    make(map[uint32]cacheEntry),
		arpInFlight: make(map[uint32]*pendingRequest),
		pending:     make(map[uint32][]ipv4.Datagram),
	}
}

// OwnIP returns the interface's own IPv4 address in numeric form.
func (i *Interface) OwnIP() uint32 { return i.ownIP }

func ipBytes(ip uint32) [4]byte {
	return [4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)}
}

func ipFromBytes(b [4]byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// SendDatagram transmits dgram to nextHop, resolving its MAC via the
// ARP cache first. If the MAC is unknown, dgram is queued and an ARP
// request is issued, unless one is already in flight for nextHop.
func (i *Interface) SendDatagram(dgram ipv4.Datagram, nextHop uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if entry, ok := i.arpCache[nextHop]; ok {
		i.transmitIPv4(dgram, entry.mac)
		return
	}

	i.pending[nextHop] = append(i.pending[nextHop], dgram)
	if _, inFlight := i.arpInFlight[nextHop]; inFlight {
		return
	}
	i.arpInFlight[nextHop] = &pendingRequest{}
	i.sendARP(wire.ARPRequest, wire.Broadcast, nextHop)
}

func (i *Interface) transmitIPv4(dgram ipv4.Datagram, dst wire.MAC) {
	payload, err := dgram.Marshal()
	if err != nil {
		return
	}
	frame := wire.EncodeEthernet(wire.EthernetFrame{
		Dst:     dst,
		Src:     i.ownMAC,
		Type:    wire.EtherTypeIPv4,
		Payload: payload,
	})
	i.link.Transmit(frame)
}

func (i *Interface) sendARP(op wire.ARPOperation, dst wire.MAC, targetIP uint32) {
	msg := wire.ARPMessage{
		Operation: op,
		SenderMAC: i.ownMAC,
		SenderIP:  ipBytes(i.ownIP),
		TargetIP:  ipBytes(targetIP),
	}
	if op == wire.ARPReply {
		msg.TargetMAC = dst
	}
	frame := wire.EncodeEthernet(wire.EthernetFrame{
		Dst:     dst,
		Src:     i.ownMAC,
		Type:    wire.EtherTypeARP,
		Payload: wire.EncodeARP(msg),
	})
	i.link.Transmit(frame)
}

// RecvFrame processes an inbound Ethernet frame. Frames not addressed
// to broadcast or our own MAC are silently dropped, as are frames that
// fail to parse.
func (i *Interface) RecvFrame(raw []byte) {
	frame, err := wire.DecodeEthernet(raw)
	if err != nil {
		return
	}
	if frame.Dst != wire.Broadcast && frame.Dst != i.ownMAC {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	switch frame.Type {
	case wire.EtherTypeIPv4:
		dgram, err := ipv4.Parse(frame.Payload)
		if err != nil {
			return
		}
		i.inbound = append(i.inbound, dgram)
	case wire.EtherTypeARP:
		i.recvARP(frame.Payload)
	}
}

func (i *Interface) recvARP(payload []byte) {
	msg, err := wire.DecodeARP(payload)
	if err != nil {
		return
	}
	senderIP := ipFromBytes(msg.SenderIP)
	i.arpCache[senderIP] = cacheEntry{mac: msg.SenderMAC}
	delete(i.arpInFlight, senderIP)

	switch msg.Operation {
	case wire.ARPRequest:
		targetIP := ipFromBytes(msg.TargetIP)
		if targetIP == i.ownIP {
			i.sendARP(wire.ARPReply, msg.SenderMAC, senderIP)
		}
	case wire.ARPReply:
		queued := i.pending[senderIP]
		delete(i.pending, senderIP)
		for _, dgram := range queued {
			i.transmitIPv4(dgram, msg.SenderMAC)
		}
	}
}

// Tick ages the ARP cache and in-flight request records by elapsed,
// evicting anything past its TTL.
func (i *Interface) Tick(elapsed time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for ip, entry := range i.arpCache {
		entry.age += elapsed
		if entry.age > arpCacheTTL {
			delete(i.arpCache, ip)
			continue
		}
		i.arpCache[ip] = entry
	}
	for ip, req := range i.arpInFlight {
		req.age += elapsed
		if req.age > arpRequestFloor {
			delete(i.arpInFlight, ip)
		}
	}
}

// PopInbound removes and returns the oldest datagram on the inbound
// queue, and whether one was present.
func (i *Interface) PopInbound() (ipv4.Datagram, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.inbound) == 0 {
		return ipv4.Datagram{}, false
	}
	d := i.inbound[0]
	i.inbound = i.inbound[1:]
	return d, true
}

// InboundLen reports how many datagrams are queued for the router.
func (i *Interface) InboundLen() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.inbound)
}
