package ripproto

import (
	"net/netip"
	"testing"
	"time"

	"minnow-go/internal/tcpip/netiface"
	"minnow-go/internal/tcpip/router"
	"minnow-go/internal/wire"
)

func noopSend(netip.Addr, []byte) {}

func responsePayload(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	buf, err := Marshal(&Packet{Command: CommandResponse, Entries: entries})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return buf
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p := &Packet{
		Command: CommandResponse,
		Entries: []Entry{{Cost: 2, Address: 0x0a000000, Mask: 0xff000000}},
	}
	buf, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Command != p.Command || len(got.Entries) != 1 || got.Entries[0] != p.Entries[0] {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestHandlePacketInstallsRoute(t *testing.T) {
	link := netiface.NewQueueLink()
	iface := netiface.New(wire.MAC{1}, 0, link)
	rt := router.New([]*netiface.Interface{iface})
	neighbor := netip.MustParseAddr("10.0.0.2")
	inst := NewInstance([]netip.Addr{neighbor}, rt, 0)

	inst.HandlePacket(neighbor, responsePayload(t, Entry{Cost: 1, Address: 0x0a000000, Mask: 0xff000000}), noopSend)

	route, ok := rt.Lookup(0x0a000001)
	if !ok {
		t.Fatal("learned RIP entry did not install a usable route")
	}
	if route.PrefixLen != 8 {
		t.Fatalf("installed prefix length = %d, want 8", route.PrefixLen)
	}
}

func TestHandlePacketRequestRepliesWithSplitHorizon(t *testing.T) {
	link := netiface.NewQueueLink()
	iface := netiface.New(wire.MAC{1}, 0, link)
	rt := router.New([]*netiface.Interface{iface})
	a := netip.MustParseAddr("10.0.0.2")
	b := netip.MustParseAddr("10.0.0.3")
	inst := NewInstance([]netip.Addr{a, b}, rt, 0)

	// Learn a route from a, then have a ask for the table back: that
	// route must come back at Infinity (split horizon).
	inst.HandlePacket(a, responsePayload(t, Entry{Cost: 1, Address: 0x0a000000, Mask: 0xff000000}), noopSend)

	var got *Packet
	inst.HandlePacket(a, func() []byte {
		buf, err := Marshal(&Packet{Command: CommandRequest})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		return buf
	}(), func(dst netip.Addr, payload []byte) {
		if dst != a {
			t.Fatalf("reply addressed to %s, want %s", dst, a)
		}
		p, err := Unmarshal(payload)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		got = p
	})

	if got == nil {
		t.Fatal("request did not produce a reply")
	}
	if len(got.Entries) != 1 || got.Entries[0].Cost != Infinity {
		t.Fatalf("reply entries = %+v, want the learned route advertised at cost %d", got.Entries, Infinity)
	}
}

func TestHandlePacketResponseTriggersUpdateToEveryNeighbor(t *testing.T) {
	link := netiface.NewQueueLink()
	iface := netiface.New(wire.MAC{1}, 0, link)
	rt := router.New([]*netiface.Interface{iface})
	a := netip.MustParseAddr("10.0.0.2")
	b := netip.MustParseAddr("10.0.0.3")
	inst := NewInstance([]netip.Addr{a, b}, rt, 0)

	var sentTo []netip.Addr
	inst.HandlePacket(a, responsePayload(t, Entry{Cost: 1, Address: 0x0a000000, Mask: 0xff000000}),
		func(dst netip.Addr, payload []byte) { sentTo = append(sentTo, dst) })

	if len(sentTo) != 2 {
		t.Fatalf("triggered update sent to %d neighbors, want 2", len(sentTo))
	}
}

func TestSendRequestReachesEveryNeighbor(t *testing.T) {
	a := netip.MustParseAddr("10.0.0.2")
	b := netip.MustParseAddr("10.0.0.3")
	inst := NewInstance([]netip.Addr{a, b}, router.New(nil), 0)

	var sentTo []netip.Addr
	inst.SendRequest(func(dst netip.Addr, payload []byte) {
		sentTo = append(sentTo, dst)
		p, err := Unmarshal(payload)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if p.Command != CommandRequest || len(p.Entries) != 0 {
			t.Fatalf("request packet = %+v, want an empty CommandRequest", p)
		}
	})

	if len(sentTo) != 2 || sentTo[0] != a || sentTo[1] != b {
		t.Fatalf("SendRequest reached %v, want [%s %s]", sentTo, a, b)
	}
}

func TestRouteExpiresWithoutRefresh(t *testing.T) {
	link := netiface.NewQueueLink()
	iface := netiface.New(wire.MAC{1}, 0, link)
	rt := router.New([]*netiface.Interface{iface})
	neighbor := netip.MustParseAddr("10.0.0.2")
	inst := NewInstance([]netip.Addr{neighbor}, rt, 0)

	inst.HandlePacket(neighbor, responsePayload(t, Entry{Cost: 1, Address: 0x0a000000, Mask: 0xff000000}), noopSend)

	inst.Tick(RouteExpiry + time.Second)

	if _, ok := rt.Lookup(0x0a000001); ok {
		t.Fatal("route survived past its expiry without a refresh")
	}
}

func TestShouldAdvertiseFiresOnInterval(t *testing.T) {
	inst := NewInstance(nil, router.New(nil), 0)
	inst.Tick(AdvertisementInterval - time.Millisecond)
	if inst.ShouldAdvertise() {
		t.Fatal("advertised before the interval elapsed")
	}
	inst.Tick(time.Millisecond)
	if !inst.ShouldAdvertise() {
		t.Fatal("did not advertise once the interval elapsed")
	}
}
