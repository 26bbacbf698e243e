// Command vrouter runs a virtual router node: the same interface/link
// plumbing as vhost, plus a RIP instance per RIP-speaking interface
// that populates the routing table dynamically instead of relying
// solely on static routes. Carried forward in shape from the
// teacher's cmd/vrouter/vrouter.go.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strings"
	"time"

	"minnow-go/internal/lnxconfig"
	"minnow-go/internal/ripproto"
	"minnow-go/internal/tcpip/netiface"
	"minnow-go/internal/tcpip/router"
	"minnow-go/internal/udplink"
	"minnow-go/internal/wire"
)

func main() {
	configPath := flag.String("config", "", "path to the .lnx topology file")
	flag.Parse()
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: vrouter --config <lnx file>")
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := lnxconfig.ParseConfig(*configPath)
	if err != nil {
		log.Error("failed to parse config", "err", err)
		os.Exit(1)
	}

	r, err := newRouterNode(cfg, log)
	if err != nil {
		log.Error("failed to bring up router", "err", err)
		os.Exit(1)
	}
	r.run()
}

type routerNode struct {
	log        *slog.Logger
	interfaces []*netiface.Interface
	links      []*udplink.Link
	names      []string
	up         []bool
	rt         *router.Router
	rip        []*ripproto.Instance
}

func newRouterNode(cfg *lnxconfig.IPConfig, log *slog.Logger) (*routerNode, error) {
	n := &routerNode{log: log}

	for _, ic := range cfg.Interfaces {
		var peers []string
		for _, nb := range cfg.Neighbors {
			if nb.InterfaceName == ic.Name {
				peers = append(peers, nb.UDPAddr.String())
			}
		}
		link, err := udplink.New(ic.UDPAddr.String(), peers, log)
		if err != nil {
			return nil, err
		}
		b := ic.AssignedIP.As4()
		mac := wire.MAC{0x02, 0x00, b[0], b[1], b[2], b[3]}
		iface := netiface.New(mac, numericIP(ic.AssignedIP), link)

		n.links = append(n.links, link)
		n.interfaces = append(n.interfaces, iface)
		n.names = append(n.names, ic.Name)
		n.up = append(n.up, true)
	}

	n.rt = router.New(n.interfaces)
	for _, sr := range cfg.StaticRoutes {
		idx := n.interfaceIndexFor(cfg, sr.NextHop)
		nh := sr.NextHop
		n.rt.AddRoute(numericIP(sr.Prefix.Addr()), sr.Prefix.Bits(), &nh, idx)
	}

	if cfg.RoutingMode == lnxconfig.RoutingModeRIP {
		n.setupRIP(cfg)
	}

	return n, nil
}

// setupRIP groups the configured RIP neighbors by the local interface
// they're reachable through and builds one ripproto.Instance per such
// interface, then installs a single router-level handler that routes
// an inbound RIP datagram to whichever instance owns its sender.
func (n *routerNode) setupRIP(cfg *lnxconfig.IPConfig) {
	byIface := make(map[int][]netip.Addr)
	for _, neighbor := range cfg.RipNeighbors {
		idx := n.interfaceIndexFor(cfg, neighbor)
		byIface[idx] = append(byIface[idx], neighbor)
	}
	for idx, neighbors := range byIface {
		n.rip = append(n.rip, ripproto.NewInstance(neighbors, n.rt, idx))
	}
	n.rt.RegisterHandler(ripproto.ProtocolNumber, n.handleRIPDatagram)
	n.log.Info("rip enabled", "instances", len(n.rip), "neighbors", len(cfg.RipNeighbors))
}

func (n *routerNode) handleRIPDatagram(src netip.Addr, payload []byte) {
	for _, inst := range n.rip {
		for _, neighbor := range inst.Neighbors() {
			if neighbor == src {
				inst.HandlePacket(src, payload, n.ripSend)
				return
			}
		}
	}
}

func (n *routerNode) ripSend(dst netip.Addr, payload []byte) {
	if err := n.rt.SendLocal(dst, ripproto.ProtocolNumber, payload); err != nil {
		n.log.Warn("rip: send failed", "dst", dst, "err", err)
	}
}

func (n *routerNode) interfaceIndexFor(cfg *lnxconfig.IPConfig, dest netip.Addr) int {
	for _, nb := range cfg.Neighbors {
		if nb.DestAddr != dest {
			continue
		}
		for idx, name := range n.names {
			if name == nb.InterfaceName {
				return idx
			}
		}
	}
	return 0
}

func numericIP(ip netip.Addr) uint32 {
	b := ip.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (n *routerNode) run() {
	for i, link := range n.links {
		iface := n.interfaces[i]
		go link.Serve(iface.RecvFrame)
	}

	for _, inst := range n.rip {
		inst.SendRequest(n.ripSend)
	}

	go n.tickLoop()

	commands := n.commandTable()
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("vrouter ready. Enter command:")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, ok := commands[fields[0]]
		if !ok {
			fmt.Println("invalid command")
			continue
		}
		if err := cmd(fields[1:]); err != nil {
			fmt.Println(err)
		}
		if fields[0] == "q" {
			return
		}
	}
}

func (n *routerNode) tickLoop() {
	const period = 100 * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		for i, iface := range n.interfaces {
			if n.up[i] {
				iface.Tick(period)
			}
		}
		n.rt.Route()
		for _, inst := range n.rip {
			inst.Tick(period)
			if !inst.ShouldAdvertise() {
				continue
			}
			for _, neighbor := range inst.Neighbors() {
				payload, err := ripproto.Marshal(inst.Advertise(neighbor))
				if err != nil {
					continue
				}
				n.ripSend(neighbor, payload)
			}
		}
	}
}

func (n *routerNode) commandTable() map[string]func([]string) error {
	return map[string]func([]string) error{
		"li":   func([]string) error { n.listInterfaces(); return nil },
		"lr":   func([]string) error { n.listRoutes(); return nil },
		"up":   n.cmdUp,
		"down": n.cmdDown,
		"q":    func([]string) error { return nil },
	}
}

func (n *routerNode) indexByName(name string) (int, error) {
	for idx, existing := range n.names {
		if existing == name {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("no such interface %q", name)
}

func (n *routerNode) cmdUp(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: up <interface name>")
	}
	idx, err := n.indexByName(args[0])
	if err != nil {
		return err
	}
	n.up[idx] = true
	return nil
}

func (n *routerNode) cmdDown(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: down <interface name>")
	}
	idx, err := n.indexByName(args[0])
	if err != nil {
		return err
	}
	n.up[idx] = false
	return nil
}

func (n *routerNode) listInterfaces() {
	for i, name := range n.names {
		state := "down"
		if n.up[i] {
			state = "up"
		}
		fmt.Printf("%s\t%s\n", name, state)
	}
}

func (n *routerNode) listRoutes() {
	for _, rt := range n.rt.Routes() {
		nextHop := "-"
		if rt.NextHop != nil {
			nextHop = rt.NextHop.String()
		}
		fmt.Printf("%s/%d\tvia %s\t%s\n", ipString(rt.NetID), rt.PrefixLen, nextHop, n.names[rt.InterfaceIdx])
	}
}

// ipString renders a numeric IPv4 address the way netip.Addr.String
// would, for routes read back out of Router.Routes.
func ipString(ip uint32) string {
	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)}).String()
}
