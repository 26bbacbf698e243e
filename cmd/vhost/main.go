// Command vhost runs a single virtual network host: it parses a .lnx
// topology file, brings up one NetworkInterface per configured link,
// and offers a REPL for inspecting and driving the stack. Carried
// forward in shape from the teacher's cmd/vhost/vhost.go, generalized
// to dispatch REPL commands through a table instead of an if-chain.
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
	"minnow-go/internal/tcpip/netiface"
	"minnow-go/internal/tcpip/router"
	"minnow-go/internal/udplink"
	"minnow-go/internal/wire"
)

// testProtocol is the IP protocol number the teacher's TestPacketHandler
// answered on (stack.Handler_table[0]): plain text payloads sent by the
// "send" REPL command, with no transport of their own.
const testProtocol = 0

func main() {
	configPath := flag.String("config", "", "path to the .lnx topology file")
	flag.Parse()
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: vhost --config <lnx file>")
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := lnxconfig.ParseConfig(*configPath)
	if err != nil {
		log.Error("failed to parse config", "err", err)
		os.Exit(1)
	}

	host, err := newHost(cfg, log)
	if err != nil {
		log.Error("failed to bring up host", "err", err)
		os.Exit(1)
	}
	host.run()
}

type host struct {
	log        *slog.Logger
	interfaces []*netiface.Interface
	links      []*udplink.Link
	names      []string
	up         []bool
	rt         *router.Router
}

func newHost(cfg *lnxconfig.IPConfig, log *slog.Logger) (*host, error) {
	h := &host{log: log}

	for _, ic := range cfg.Interfaces {
		peers := peerAddrsForInterface(cfg, ic.Name)
		link, err := udplink.New(ic.UDPAddr.String(), peers, log)
		if err != nil {
			return nil, err
		}
		mac := macFromIP(ic.AssignedIP)
		iface := netiface.New(mac, addrToNumeric(ic.AssignedIP), link)

		h.links = append(h.links, link)
		h.interfaces = append(h.interfaces, iface)
		h.names = append(h.names, ic.Name)
		h.up = append(h.up, true)
	}

	h.rt = router.New(h.interfaces)
	for _, sr := range cfg.StaticRoutes {
		idx := h.interfaceIndexForRoute(cfg, sr)
		nh := sr.NextHop
		h.rt.AddRoute(addrToNumeric(sr.Prefix.Addr()), sr.Prefix.Bits(), &nh, idx)
	}
	h.rt.RegisterHandler(testProtocol, h.handleTestPacket)

	return h, nil
}

func (h *host) handleTestPacket(src netip.Addr, payload []byte) {
	fmt.Printf("Received test packet: Src: %s, Data: %s\n", src, string(payload))
}

func (h *host) interfaceIndexForRoute(cfg *lnxconfig.IPConfig, sr lnxconfig.StaticRoute) int {
	for _, n := range cfg.Neighbors {
		if n.DestAddr != sr.NextHop {
			continue
		}
		for idx, name := range h.names {
			if name == n.InterfaceName {
				return idx
			}
		}
	}
	return 0
}

func peerAddrsForInterface(cfg *lnxconfig.IPConfig, ifaceName string) []string {
	var peers []string
	for _, n := range cfg.Neighbors {
		if n.InterfaceName == ifaceName {
			peers = append(peers, n.UDPAddr.String())
		}
	}
	return peers
}

func macFromIP(ip netip.Addr) wire.MAC {
	b := ip.As4()
	return wire.MAC{0x02, 0x00, b[0], b[1], b[2], b[3]} // locally-administered, IP-derived
}

func addrToNumeric(ip netip.Addr) uint32 {
	b := ip.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (h *host) run() {
	for i, link := range h.links {
		iface := h.interfaces[i]
		go link.Serve(iface.RecvFrame)
	}

	go h.tickLoop()

	commands := h.commandTable()
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("vhost ready. Enter command:")
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

func (h *host) tickLoop() {
	const period = 100 * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		for i, iface := range h.interfaces {
			if h.up[i] {
				iface.Tick(period)
			}
		}
		h.rt.Route()
	}
}

func (h *host) commandTable() map[string]func([]string) error {
	return map[string]func([]string) error{
		"li":   func([]string) error { h.listInterfaces(); return nil },
		"ln":   func([]string) error { h.listNeighbors(); return nil },
		"lr":   func([]string) error { h.listRoutes(); return nil },
		"up":   h.cmdUp,
		"down": h.cmdDown,
		"send": h.cmdSend,
		"q":    func([]string) error { return nil },
		"a":    unsupportedSocketCommand("a"),
		"c":    unsupportedSocketCommand("c"),
		"s":    unsupportedSocketCommand("s"),
		"r":    unsupportedSocketCommand("r"),
		"sf":   unsupportedSocketCommand("sf"),
		"rf":   unsupportedSocketCommand("rf"),
		"cl":   unsupportedSocketCommand("cl"),
	}
}

func unsupportedSocketCommand(name string) func([]string) error {
	return func([]string) error {
		return fmt.Errorf("%s: socket-style TCP commands are not exposed by this build; drive internal/tcpip directly", name)
	}
}

func (h *host) indexByName(name string) (int, error) {
	for idx, existing := range h.names {
		if existing == name {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("no such interface %q", name)
}

func (h *host) cmdUp(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: up <interface name>")
	}
	idx, err := h.indexByName(args[0])
	if err != nil {
		return err
	}
	h.up[idx] = true
	return nil
}

func (h *host) cmdDown(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: down <interface name>")
	}
	idx, err := h.indexByName(args[0])
	if err != nil {
		return err
	}
	h.up[idx] = false
	return nil
}

func (h *host) listInterfaces() {
	for i, name := range h.names {
		state := "down"
		if h.up[i] {
			state = "up"
		}
		fmt.Printf("%s\t%s\t%d inbound queued\n", name, state, h.interfaces[i].InboundLen())
	}
}

func (h *host) listNeighbors() {
	for i, name := range h.names {
		fmt.Printf("%s\townIP=%d\n", name, h.interfaces[i].OwnIP())
	}
}

func (h *host) listRoutes() {
	for _, rt := range h.rt.Routes() {
		nextHop := "-"
		if rt.NextHop != nil {
			nextHop = rt.NextHop.String()
		}
		fmt.Printf("%s/%d\tvia %s\t%s\n", ipString(rt.NetID), rt.PrefixLen, nextHop, h.names[rt.InterfaceIdx])
	}
}

// ipString renders a numeric IPv4 address the way netip.Addr.String
// would, for routes read back out of Router.Routes.
func ipString(ip uint32) string {
	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)}).String()
}

func (h *host) cmdSend(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: send <ip> <message>")
	}
	dst, err := netip.ParseAddr(args[0])
	if err != nil {
		return err
	}
	msg := strings.Join(args[1:], " ")
	return h.rt.SendLocal(dst, testProtocol, []byte(msg))
}
