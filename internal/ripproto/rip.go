// Package ripproto implements a RIP-like distance-vector routing
// protocol: periodic and triggered advertisements of (cost, address,
// mask) entries that drive a router.Router's table via AddRoute and
// RemoveRoute. The wire format and request/response shape follow the
// RIPPacket/RIPEntry layout this stack's ancestor used; the
// request/response handling and split-horizon rule follow its
// RIPPacketHandler.
package ripproto

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/pkg/errors"

	"minnow-go/internal/tcpip/router"
)

const (
	CommandRequest  uint16 = 1
	CommandResponse uint16 = 2

	// ProtocolNumber is the IP protocol number RIP traffic travels
	// under, matching the teacher's SendIP(..., 200, ripBytes) calls.
	ProtocolNumber = 200

	// Infinity is the cost used to signal an unreachable route.
	Infinity = 16

	// RouteExpiry is how long a learned route may go without a
	// refreshing advertisement before it is withdrawn.
	RouteExpiry = 12 * time.Second
	// AdvertisementInterval is how often this instance re-advertises
	// its table to every neighbor.
	AdvertisementInterval = 5 * time.Second
)

// Entry is one route advertised or learned over RIP.
type Entry struct {
	Cost    uint32
	Address uint32
	Mask    uint32
}

// Packet is a full RIP message: a request for the responder's table,
// or a response carrying entries.
type Packet struct {
	Command    uint16
	NumEntries uint16
	Entries    []Entry
}

// Marshal serializes a Packet to its wire form.
func Marshal(p *Packet) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, p.Command); err != nil {
		return nil, errors.Wrap(err, "write rip command")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(p.Entries))); err != nil {
		return nil, errors.Wrap(err, "write rip entry count")
	}
	if err := binary.Write(buf, binary.BigEndian, p.Entries); err != nil {
		return nil, errors.Wrap(err, "write rip entries")
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a Packet from its wire form.
func Unmarshal(data []byte) (*Packet, error) {
	r := bytes.NewReader(data)
	var p Packet
	if err := binary.Read(r, binary.BigEndian, &p.Command); err != nil {
		return nil, errors.Wrap(err, "read rip command")
	}
	if err := binary.Read(r, binary.BigEndian, &p.NumEntries); err != nil {
		return nil, errors.Wrap(err, "read rip entry count")
	}
	p.Entries = make([]Entry, p.NumEntries)
	if p.NumEntries > 0 {
		if err := binary.Read(r, binary.BigEndian, &p.Entries); err != nil {
			return nil, errors.Wrap(err, "read rip entries")
		}
	}
	return &p, nil
}

// learnedRoute tracks the neighbor a route was learned from (needed
// for split horizon) and when it was last refreshed.
type learnedRoute struct {
	cost        uint32
	nextHop     netip.Addr
	lastRefresh time.Duration // cumulative ticks since this instance started
}

// Instance runs RIP over a set of neighbors reachable off a single
// local interface, updating rt as advertisements arrive and expire.
type Instance struct {
	rt            *router.Router
	neighbors     []netip.Addr
	localIfaceIdx int

	learned     map[uint32]*learnedRoute // keyed by net_id
	learnedMask map[uint32]uint32
	now         time.Duration

	sinceAdvertised time.Duration
}

// NewInstance returns a RIP instance advertising to and learning from
// neighbors, installing learned routes into rt via localIfaceIdx.
func NewInstance(neighbors []netip.Addr, rt *router.Router, localIfaceIdx int) *Instance {
	return &Instance{
		rt:            rt,
		neighbors:     neighbors,
		localIfaceIdx: localIfaceIdx,
		learned:       make(map[uint32]*learnedRoute),
		learnedMask:   make(map[uint32]uint32),
	}
}

// Neighbors returns the peers this instance advertises to and learns
// from, in the order passed to NewInstance.
func (inst *Instance) Neighbors() []netip.Addr {
	return inst.neighbors
}

// SendRequest emits a Command=1 packet with zero entries to every
// neighbor, soliciting their tables.
func (inst *Instance) SendRequest(send func(dst netip.Addr, payload []byte)) {
	for _, n := range inst.neighbors {
		inst.sendPacket(send, n, &Packet{Command: CommandRequest})
	}
}

// HandlePacket processes a RIP payload received from src. A request
// is answered with this instance's current table, split-horizoned
// against src (routes learned from src are advertised back at cost
// Infinity). A response is relaxed against the route table; any entry
// that actually changed is propagated to every neighbor, each copy
// split-horizoned against its recipient.
func (inst *Instance) HandlePacket(src netip.Addr, payload []byte, send func(dst netip.Addr, payload []byte)) {
	p, err := Unmarshal(payload)
	if err != nil {
		return
	}
	switch p.Command {
	case CommandRequest:
		inst.sendPacket(send, src, inst.advertisementFor(src))
	case CommandResponse:
		changed := inst.applyResponse(src, p.Entries)
		if len(changed) == 0 {
			return
		}
		for _, n := range inst.neighbors {
			inst.sendPacket(send, n, inst.splitHorizon(n, changed))
		}
	}
}

func (inst *Instance) sendPacket(send func(netip.Addr, []byte), dst netip.Addr, p *Packet) {
	payload, err := Marshal(p)
	if err != nil {
		return
	}
	send(dst, payload)
}

// advertisementFor builds the full-table response this instance
// should send to peer, split-horizoned against peer.
func (inst *Instance) advertisementFor(peer netip.Addr) *Packet {
	entries := make([]Entry, 0, len(inst.learned))
	for netID, route := range inst.learned {
		entries = append(entries, Entry{
			Cost:    inst.advertisedCost(route, peer),
			Address: netID,
			Mask:    inst.learnedMask[netID],
		})
	}
	return &Packet{Command: CommandResponse, Entries: entries}
}

// splitHorizon copies entries, replacing the cost of any entry whose
// route was learned from peer with Infinity before sending it back to
// that same peer.
func (inst *Instance) splitHorizon(peer netip.Addr, entries []Entry) *Packet {
	out := make([]Entry, len(entries))
	for idx, e := range entries {
		out[idx] = e
		if route, ok := inst.learned[e.Address]; ok && route.nextHop == peer {
			out[idx].Cost = Infinity
		}
	}
	return &Packet{Command: CommandResponse, Entries: out}
}

func (inst *Instance) advertisedCost(route *learnedRoute, peer netip.Addr) uint32 {
	if route.nextHop == peer {
		return Infinity
	}
	cost := route.cost + 1
	if cost > Infinity {
		cost = Infinity
	}
	return cost
}

// applyResponse performs Bellman-Ford relaxation of entries, each
// advertised by src at one hop less than src's own cost to reach it.
// It returns the entries whose installed cost actually changed, for
// the caller to propagate as a triggered update.
func (inst *Instance) applyResponse(src netip.Addr, entries []Entry) []Entry {
	var changed []Entry
	for _, e := range entries {
		newCost := e.Cost + 1
		if newCost > Infinity {
			newCost = Infinity
		}
		prefixLen := router.PrefixLenFromDottedMask(e.Mask)
		existing, known := inst.learned[e.Address]

		switch {
		case newCost >= Infinity:
			if known {
				inst.withdraw(e.Address, e.Mask)
				changed = append(changed, Entry{Cost: Infinity, Address: e.Address, Mask: e.Mask})
			}
		case !known || newCost < existing.cost || existing.nextHop == src:
			if known && existing.nextHop == src && existing.cost == newCost {
				existing.lastRefresh = inst.now
				continue
			}
			inst.learned[e.Address] = &learnedRoute{cost: newCost, nextHop: src, lastRefresh: inst.now}
			inst.learnedMask[e.Address] = e.Mask
			inst.rt.AddRoute(e.Address, prefixLen, &src, inst.localIfaceIdx)
			changed = append(changed, Entry{Cost: newCost, Address: e.Address, Mask: e.Mask})
		}
	}
	return changed
}

func (inst *Instance) withdraw(netID, mask uint32) {
	if _, known := inst.learned[netID]; !known {
		return
	}
	delete(inst.learned, netID)
	delete(inst.learnedMask, netID)
	inst.rt.RemoveRoute(netID, router.PrefixLenFromDottedMask(mask))
}

// Tick advances time by elapsed, expiring any learned route that
// hasn't been refreshed within RouteExpiry.
func (inst *Instance) Tick(elapsed time.Duration) {
	inst.now += elapsed
	inst.sinceAdvertised += elapsed
	for netID, route := range inst.learned {
		if inst.now-route.lastRefresh > RouteExpiry {
			inst.withdraw(netID, inst.learnedMask[netID])
		}
	}
}

// ShouldAdvertise reports whether AdvertisementInterval has elapsed
// since the last call that reset it, and resets the counter if so.
// The caller is expected to follow a true result with a call to
// Advertise for each neighbor.
func (inst *Instance) ShouldAdvertise() bool {
	if inst.sinceAdvertised < AdvertisementInterval {
		return false
	}
	inst.sinceAdvertised = 0
	return true
}

// Advertise builds the periodic, unsolicited full-table update this
// instance should send to peer right now, split-horizoned against it.
func (inst *Instance) Advertise(peer netip.Addr) *Packet {
	return inst.advertisementFor(peer)
}
