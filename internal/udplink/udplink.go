// Package udplink simulates an Ethernet segment over UDP sockets, the
// same trick the teacher's cmd/vhost and cmd/vrouter used to run a
// virtual topology on one machine: each configured neighbor gets a UDP
// peer address, and "transmitting a frame" means broadcasting it to
// every neighbor on that segment. It implements netiface.Link so a
// NetworkInterface can use it as its shared output port.
package udplink

import (
	"log/slog"
	"net"

	"github.com/pkg/errors"
)

// Link broadcasts frames to a fixed set of UDP peers and hands
// received datagrams to a callback, decoupling netiface.Interface
// entirely from the mechanics of any particular simulated wire.
type Link struct {
	conn  *net.UDPConn
	peers []*net.UDPAddr
	log   *slog.Logger
}

// New binds a UDP socket at localAddr and returns a Link that
// broadcasts to peers.
func New(localAddr string, peers []string, log *slog.Logger) (*Link, error) {
	addr, err := net.ResolveUDPAddr("udp4", localAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve local udp address %q", localAddr)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen udp %q", localAddr)
	}

	peerAddrs := make([]*net.UDPAddr, 0, len(peers))
	for _, p := range peers {
		pa, err := net.ResolveUDPAddr("udp4", p)
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "resolve peer udp address %q", p)
		}
		peerAddrs = append(peerAddrs, pa)
	}

	if log == nil {
		log = slog.Default()
	}
	return &Link{conn: conn, peers: peerAddrs, log: log}, nil
}

// Transmit implements netiface.Link by broadcasting frame to every peer.
func (l *Link) Transmit(frame []byte) {
	for _, peer := range l.peers {
		if _, err := l.conn.WriteToUDP(frame, peer); err != nil {
			l.log.Warn("udplink: write failed", "peer", peer, "err", err)
		}
	}
}

// Serve reads frames off the socket until it's closed, handing each
// to deliver. Intended to run in its own goroutine, one per interface.
func (l *Link) Serve(deliver func(frame []byte)) {
	buf := make([]byte, 65535)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			l.log.Debug("udplink: read loop exiting", "err", err)
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		deliver(frame)
	}
}

// Close releases the underlying socket.
func (l *Link) Close() error {
	return l.conn.Close()
}
