package router

import (
	"net/netip"
	"testing"

	ipv4header "github.com/brown-csci1680/iptcp-headers"

	"minnow-go/internal/ipv4"
	"minnow-go/internal/tcpip/netiface"
	"minnow-go/internal/wire"
)

func numericIP(s string) uint32 {
	b := netip.MustParseAddr(s).As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func datagramTo(dst string, ttl int) ipv4.Datagram {
	return ipv4.Datagram{
		Header: ipv4header.IPv4Header{
			Version: 4,
			Len:     20,
			TTL:     ttl,
			Dst:     netip.MustParseAddr(dst),
		},
	}
}

func newTestRouter() (*Router, []*netiface.QueueLink) {
	links := []*netiface.QueueLink{netiface.NewQueueLink(), netiface.NewQueueLink(), netiface.NewQueueLink()}
	ifaces := []*netiface.Interface{
		netiface.New(wire.MAC{0}, numericIP("192.168.0.1"), links[0]),
		netiface.New(wire.MAC{1}, numericIP("192.168.0.1"), links[1]),
		netiface.New(wire.MAC{2}, numericIP("192.168.0.1"), links[2]),
	}
	r := New(ifaces)
	r.AddRoute(numericIP("0.0.0.0"), 0, nil, 0)
	r.AddRoute(numericIP("10.0.0.0"), 8, nil, 1)
	r.AddRoute(numericIP("10.0.0.0"), 24, nil, 2)
	return r, links
}

func TestLongestPrefixMatch(t *testing.T) {
	r, _ := newTestRouter()

	cases := []struct {
		dst     string
		wantIdx int
	}{
		{"10.0.0.5", 2},
		{"10.0.1.5", 1},
		{"11.0.0.1", 0},
	}
	for _, c := range cases {
		route, ok := r.Lookup(numericIP(c.dst))
		if !ok {
			t.Fatalf("no route found for %s", c.dst)
		}
		if route.InterfaceIdx != c.wantIdx {
			t.Fatalf("route for %s chose interface %d, want %d", c.dst, route.InterfaceIdx, c.wantIdx)
		}
	}
}

func TestRouteDropsExpiredTTL(t *testing.T) {
	r, links := newTestRouter()
	ifaces := r.interfaces
	ifaces[2].RecvFrame(wire.EncodeEthernet(wire.EthernetFrame{
		Dst:     wire.Broadcast,
		Type:    wire.EtherTypeIPv4,
		Payload: marshal(t, datagramTo("10.0.0.5", 1)),
	}))

	r.Route()

	for idx, l := range links {
		if l.Len() != 0 {
			t.Fatalf("interface %d transmitted a datagram with expired TTL", idx)
		}
	}
}

func TestRouteForwardsOutLongestMatchInterface(t *testing.T) {
	r, links := newTestRouter()
	ifaces := r.interfaces
	ifaces[2].RecvFrame(wire.EncodeEthernet(wire.EthernetFrame{
		Dst:     wire.Broadcast,
		Type:    wire.EtherTypeIPv4,
		Payload: marshal(t, datagramTo("10.0.0.5", 5)),
	}))

	r.Route()

	// Forwarding goes through ARP resolution first since the cache is
	// empty, so the observable side effect is an ARP request, not a
	// direct IPv4 frame.
	if links[2].Len() != 1 {
		t.Fatalf("expected an ARP request while resolving the next hop, got %d frames", links[2].Len())
	}
	frame, err := wire.DecodeEthernet(links[2].Pop())
	if err != nil || frame.Type != wire.EtherTypeARP {
		t.Fatalf("expected ARP request frame: err=%v type=%v", err, frame.Type)
	}
}

func marshal(t *testing.T, d ipv4.Datagram) []byte {
	t.Helper()
	b, err := d.Marshal()
	if err != nil {
		t.Fatalf("marshal datagram: %v", err)
	}
	return b
}
