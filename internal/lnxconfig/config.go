// Package lnxconfig parses the .lnx topology file format: one
// directive per line describing an interface, a neighbor, or a route.
// The teacher referenced a lnxconfig package (imported in
// cmd/vhost/vhost.go and rip/rip.go) without shipping its source; this
// reconstructs it from those call sites using the teacher's own
// hand-parsed-line style rather than reaching for a structured format
// library, matching how the teacher never used one for this either.
package lnxconfig

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// RoutingMode selects how a router populates its forwarding table.
type RoutingMode int

const (
	RoutingModeNone RoutingMode = iota
	RoutingModeStatic
	RoutingModeRIP
)

// InterfaceConfig describes one configured network interface.
type InterfaceConfig struct {
	Name           string
	AssignedIP     netip.Addr
	AssignedPrefix netip.Prefix
	UDPAddr        netip.AddrPort
}

// NeighborConfig maps a peer's virtual IP to the interface it's
// reachable through and the UDP address that simulates its link.
type NeighborConfig struct {
	InterfaceName string
	DestAddr      netip.Addr
	UDPAddr       netip.AddrPort
}

// StaticRoute is a route directive installed regardless of RIP.
type StaticRoute struct {
	Prefix  netip.Prefix
	NextHop netip.Addr
}

// IPConfig is the fully parsed .lnx file.
type IPConfig struct {
	RoutingMode  RoutingMode
	Interfaces   []InterfaceConfig
	Neighbors    []NeighborConfig
	StaticRoutes []StaticRoute
	RipNeighbors []netip.Addr
}

// ParseConfig reads and parses the .lnx file at path.
func ParseConfig(path string) (*IPConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open lnx config %q", path)
	}
	defer f.Close()
	return Parse(f)
}

// Parse parses a .lnx document from r.
func Parse(r io.Reader) (*IPConfig, error) {
	cfg := &IPConfig{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if err := parseDirective(cfg, fields); err != nil {
			return nil, errors.Wrapf(err, "lnx config line %d: %q", lineNo, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan lnx config")
	}
	return cfg, nil
}

func parseDirective(cfg *IPConfig, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "interface":
		return parseInterface(cfg, fields[1:])
	case "neighbor":
		return parseNeighbor(cfg, fields[1:])
	case "routing":
		return parseRoutingMode(cfg, fields[1:])
	case "route":
		return parseRoute(cfg, fields[1:])
	case "rip":
		return parseRIPNeighbor(cfg, fields[1:])
	default:
		return fmt.Errorf("unrecognized directive %q", fields[0])
	}
}

func parseInterface(cfg *IPConfig, fields []string) error {
	if len(fields) != 3 {
		return fmt.Errorf("interface: want 3 fields (name prefix udp-addr), got %d", len(fields))
	}
	prefix, err := netip.ParsePrefix(fields[1])
	if err != nil {
		return errors.Wrap(err, "interface: assigned prefix")
	}
	udpAddr, err := netip.ParseAddrPort(fields[2])
	if err != nil {
		return errors.Wrap(err, "interface: udp address")
	}
	cfg.Interfaces = append(cfg.Interfaces, InterfaceConfig{
		Name:           fields[0],
		AssignedIP:     prefix.Addr(),
		AssignedPrefix: prefix,
		UDPAddr:        udpAddr,
	})
	return nil
}

func parseNeighbor(cfg *IPConfig, fields []string) error {
	if len(fields) != 3 {
		return fmt.Errorf("neighbor: want 3 fields (ip interface udp-addr), got %d", len(fields))
	}
	ip, err := netip.ParseAddr(fields[0])
	if err != nil {
		return errors.Wrap(err, "neighbor: ip")
	}
	udpAddr, err := netip.ParseAddrPort(fields[2])
	if err != nil {
		return errors.Wrap(err, "neighbor: udp address")
	}
	cfg.Neighbors = append(cfg.Neighbors, NeighborConfig{
		InterfaceName: fields[1],
		DestAddr:      ip,
		UDPAddr:       udpAddr,
	})
	return nil
}

func parseRoutingMode(cfg *IPConfig, fields []string) error {
	if len(fields) != 1 {
		return fmt.Errorf("routing: want 1 field (static|rip|none), got %d", len(fields))
	}
	switch fields[0] {
	case "static":
		cfg.RoutingMode = RoutingModeStatic
	case "rip":
		cfg.RoutingMode = RoutingModeRIP
	case "none":
		cfg.RoutingMode = RoutingModeNone
	default:
		return fmt.Errorf("routing: unknown mode %q", fields[0])
	}
	return nil
}

func parseRoute(cfg *IPConfig, fields []string) error {
	if len(fields) != 2 {
		return fmt.Errorf("route: want 2 fields (prefix next-hop), got %d", len(fields))
	}
	prefix, err := netip.ParsePrefix(fields[0])
	if err != nil {
		return errors.Wrap(err, "route: prefix")
	}
	nextHop, err := netip.ParseAddr(fields[1])
	if err != nil {
		return errors.Wrap(err, "route: next hop")
	}
	cfg.StaticRoutes = append(cfg.StaticRoutes, StaticRoute{Prefix: prefix, NextHop: nextHop})
	return nil
}

func parseRIPNeighbor(cfg *IPConfig, fields []string) error {
	if len(fields) != 1 {
		return fmt.Errorf("rip: want 1 field (neighbor ip), got %d", len(fields))
	}
	ip, err := netip.ParseAddr(fields[0])
	if err != nil {
		return errors.Wrap(err, "rip: neighbor ip")
	}
	cfg.RipNeighbors = append(cfg.RipNeighbors, ip)
	return nil
}
