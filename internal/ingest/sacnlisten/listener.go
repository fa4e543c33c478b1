// Package sacnlisten is the sACN/E1.31 half of spec §4.A's IngestListeners,
// grounded on gopatchy-artmap/sacn/receiver.go's ipv4.PacketConn multicast
// join pattern but emitting ingest.Frame instead of invoking a handler func.
package sacnlisten

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/ingest"
	"github.com/mccartyp/govee-artnet-lan-bridge/pkg/sacn"
)

// Listener receives sACN data packets on a single UDP socket, optionally
// joining per-universe multicast groups up front.
type Listener struct {
	addr      string
	iface     *net.Interface
	multicast bool
	sourceID  string
	logger    *slog.Logger
	frames    chan ingest.Frame
	malformed atomic.Uint64

	conn *ipv4.PacketConn
}

// New builds a Listener bound to addr (e.g. ":5568"). When multicast is
// true, JoinUniverses must be called (typically once per mapped universe)
// after Run has opened the socket to receive anything beyond
// broadcast/unicast traffic.
func New(addr string, multicast bool, ifaceName string, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var iface *net.Interface
	if ifaceName != "" {
		found, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, fmt.Errorf("sacnlisten: interface %s: %w", ifaceName, err)
		}
		iface = found
	}
	return &Listener{
		addr:      addr,
		iface:     iface,
		multicast: multicast,
		sourceID:  "sacn:" + addr,
		logger:    logger.With("component", "ingest.sacn"),
		frames:    make(chan ingest.Frame, 64),
	}, nil
}

// Frames returns the channel frames are emitted on.
func (l *Listener) Frames() <-chan ingest.Frame { return l.frames }

// MalformedCount returns the number of datagrams rejected by pkg/sacn.Parse.
func (l *Listener) MalformedCount() uint64 { return l.malformed.Load() }

// JoinUniverses joins the multicast group for each universe (per ANSI
// E1.31's 239.255.x.y convention). Must be called after the socket is open,
// i.e. from within or after Run has started; safe to call multiple times.
func (l *Listener) JoinUniverses(universes []uint16) error {
	if !l.multicast || l.conn == nil {
		return nil
	}
	for _, u := range universes {
		if err := l.conn.JoinGroup(l.iface, sacn.MulticastAddr(u)); err != nil {
			return fmt.Errorf("sacnlisten: join universe %d: %w", u, err)
		}
	}
	return nil
}

// Run opens the UDP socket and blocks until ctx is cancelled or a socket
// error occurs. The frames channel is left open on return so the caller
// can restart Run without losing readers.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp4", l.addr)
	if err != nil {
		return fmt.Errorf("sacnlisten: listen %s: %w", l.addr, err)
	}
	p := ipv4.NewPacketConn(conn)
	l.conn = p
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, _, _, err := p.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("sacnlisten: read: %w", err)
		}

		pkt, err := sacn.Parse(buf[:n])
		if err != nil {
			l.malformed.Add(1)
			l.logger.Debug("malformed sacn frame", "error", err)
			continue
		}

		priority := pkt.Priority
		if pkt.StreamTerminated {
			priority = 0
		}
		frame := ingest.Frame{
			Universe:       pkt.Universe,
			Data:           pkt.Data,
			Sequence:       pkt.Sequence,
			SourceProtocol: "sacn",
			Priority:       priority,
			Timestamp:      time.Now(),
			SourceID:       l.sourceID,
		}
		select {
		case l.frames <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}
