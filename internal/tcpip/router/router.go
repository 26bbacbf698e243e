// Package router implements longest-prefix-match IPv4 forwarding
// across a set of NetworkInterfaces. The routing table is kept in a
// github.com/google/btree ordered map, the same library the
// reassembler uses for its gap buffer, keyed so that an ascending scan
// visits the most specific (longest prefix_length) routes first.
package router

import (
	"net/netip"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/tmthrgd/go-popcount"

	"minnow-go/internal/ipv4"
	"minnow-go/internal/tcpip/netiface"
)

// Route is a single forwarding table entry.
type Route struct {
	PrefixLen    int
	NetID        uint32
	InterfaceIdx int
	NextHop      *netip.Addr // nil means "route directly to the datagram's destination"
}

func maskForLen(prefixLen int) uint32 {
	if prefixLen <= 0 {
		return 0
	}
	if prefixLen >= 32 {
		return 0xFFFFFFFF
	}
	return ^(uint32(0xFFFFFFFF) >> prefixLen)
}

// PrefixLenFromDottedMask derives a CIDR prefix length from a
// dotted-quad subnet mask, as carried by RIP-style configuration that
// supplies masks rather than prefix lengths. It counts the mask's set
// bits with github.com/tmthrgd/go-popcount rather than a hand-rolled
// bit-counting loop.
func PrefixLenFromDottedMask(mask uint32) int {
	b := []byte{byte(mask >> 24), byte(mask >> 16), byte(mask >> 8), byte(mask)}
	return int(popcount.CountBytes(b))
}

// entry is the btree element backing the routing table. Ordering is
// by descending prefix length (longest prefix first), tie-broken by
// net ID so the table has a total order.
type entry struct {
	route Route
}

func entryLess(a, b entry) bool {
	if a.route.PrefixLen != b.route.PrefixLen {
		return a.route.PrefixLen > b.route.PrefixLen
	}
	return a.route.NetID < b.route.NetID
}

// ProtocolHandler receives the payload of a datagram addressed to one
// of this router's own interfaces, registered per IP protocol number.
type ProtocolHandler func(src netip.Addr, payload []byte)

// Router owns a set of interfaces, indexed by position, and forwards
// datagrams drawn from their inbound queues according to its table.
// Datagrams addressed to one of the router's own interface addresses
// are delivered locally to a registered ProtocolHandler instead of
// being forwarded, the same protocol-number dispatch the teacher's
// IPStack.Handler_table performed at the stack level.
type Router struct {
	interfaces []*netiface.Interface

	// mu guards table and handlers: Route/forward runs on the tick
	// loop's goroutine, SendLocal and RegisterHandler are called
	// directly from the REPL's command-reading goroutine (and, for
	// SendLocal, from ripproto's own tick-driven advertisements), all
	// against the same Router. Mirrors the teacher's IPStack.Mutex.
	mu       sync.Mutex
	table    *btree.BTreeG[entry]
	handlers map[int]ProtocolHandler
}

// New returns a Router over the given interfaces, in index order.
func New(interfaces []*netiface.Interface) *Router {
	return &Router{
		interfaces: interfaces,
		table:      btree.NewG(32, entryLess),
		handlers:   make(map[int]ProtocolHandler),
	}
}

// RegisterHandler installs fn to receive datagrams carrying protocol
// that arrive addressed to one of this router's own interfaces (e.g.
// protocol 200 for RIP). Registering the same protocol twice replaces
// the previous handler.
func (r *Router) RegisterHandler(protocol int, fn ProtocolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[protocol] = fn
}

// SendLocal originates a new datagram carrying payload under protocol,
// addressed to dst, and sends it out whichever interface's table entry
// matches dst. Ambient protocols that speak IP directly (ripproto) use
// this instead of forwarding someone else's datagram.
func (r *Router) SendLocal(dst netip.Addr, protocol int, payload []byte) error {
	dstNum := addrToNumeric(dst)
	route, ok := r.Lookup(dstNum)
	if !ok {
		return errors.Errorf("router: no route to %s", dst)
	}
	if route.InterfaceIdx < 0 || route.InterfaceIdx >= len(r.interfaces) {
		return errors.Errorf("router: route to %s names an invalid interface", dst)
	}
	iface := r.interfaces[route.InterfaceIdx]
	dgram := ipv4.NewDatagram(numericToAddr(iface.OwnIP()), dst, protocol, payload)

	nextHop := dstNum
	if route.NextHop != nil {
		nextHop = addrToNumeric(*route.NextHop)
	}
	iface.SendDatagram(dgram, nextHop)
	return nil
}

// AddRoute inserts prefix/prefixLength → (nextHop, interfaceIndex)
// into the table. Mask = ~(0xFFFFFFFF >> prefixLength); net_id =
// prefix & mask.
func (r *Router) AddRoute(prefix uint32, prefixLength int, nextHop *netip.Addr, interfaceIndex int) {
	mask := maskForLen(prefixLength)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table.ReplaceOrInsert(entry{route: Route{
		PrefixLen:    prefixLength,
		NetID:        prefix & mask,
		InterfaceIdx: interfaceIndex,
		NextHop:      nextHop,
	}})
}

// RemoveRoute deletes the route matching prefix/prefixLength, if present.
func (r *Router) RemoveRoute(prefix uint32, prefixLength int) {
	mask := maskForLen(prefixLength)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table.Delete(entry{route: Route{PrefixLen: prefixLength, NetID: prefix & mask}})
}

// Lookup returns the longest-prefix-matching route for dst, and
// whether one was found. It scans the table in descending
// prefix-length order and returns the first match, which by
// construction is the longest.
func (r *Router) Lookup(dst uint32) (Route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found Route
	ok := false
	r.table.Ascend(func(e entry) bool {
		mask := maskForLen(e.route.PrefixLen)
		if dst&mask == e.route.NetID {
			found = e.route
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// Routes returns every entry currently in the table, in the same
// descending-prefix-length order Lookup scans them, for callers (e.g.
// the REPL's "lr") that need to print the whole table rather than
// match a single destination.
func (r *Router) Routes() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	routes := make([]Route, 0, r.table.Len())
	r.table.Ascend(func(e entry) bool {
		routes = append(routes, e.route)
		return true
	})
	return routes
}

func addrToNumeric(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func numericToAddr(ip uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)})
}

func (r *Router) isOwnAddress(ip uint32) bool {
	for _, iface := range r.interfaces {
		if iface.OwnIP() == ip {
			return true
		}
	}
	return false
}

// Route drains every interface's inbound queue: datagrams addressed to
// one of this router's own interfaces are delivered to a registered
// ProtocolHandler; datagrams with TTL<=1 or no matching route are
// dropped; everything else has its TTL decremented, its checksum
// recomputed, and is handed to the matching interface's SendDatagram.
func (r *Router) Route() {
	for _, iface := range r.interfaces {
		for {
			dgram, ok := iface.PopInbound()
			if !ok {
				break
			}
			r.forward(dgram)
		}
	}
}

func (r *Router) forward(dgram ipv4.Datagram) {
	dst := addrToNumeric(dgram.Header.Dst)
	if r.isOwnAddress(dst) {
		r.deliverLocal(dgram)
		return
	}
	if dgram.Header.TTL <= 1 {
		return
	}
	route, ok := r.Lookup(dst)
	if !ok {
		return
	}
	if route.InterfaceIdx < 0 || route.InterfaceIdx >= len(r.interfaces) {
		return
	}

	dgram.Header.TTL--
	if err := dgram.RecomputeChecksum(); err != nil {
		return
	}

	nextHop := dst
	if route.NextHop != nil {
		nextHop = addrToNumeric(*route.NextHop)
	}
	r.interfaces[route.InterfaceIdx].SendDatagram(dgram, nextHop)
}

// deliverLocal hands dgram's payload to whatever handler is registered
// for its protocol number; a datagram with no registered handler is
// dropped, matching the teacher's Handler_table lookup miss.
func (r *Router) deliverLocal(dgram ipv4.Datagram) {
	r.mu.Lock()
	handler, ok := r.handlers[dgram.Header.Protocol]
	r.mu.Unlock()
	if !ok {
		return
	}
	handler(dgram.Header.Src, dgram.Payload)
}
