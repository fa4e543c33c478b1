// Package artnetlisten is the ArtNet/ArtDMX half of spec §4.A's
// IngestListeners, grounded on gopatchy-artmap/artnet/receiver.go's
// listen-loop shape but emitting ingest.Frame instead of invoking a
// handler interface.
package artnetlisten

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/ingest"
	"github.com/mccartyp/govee-artnet-lan-bridge/pkg/artnet"
)

// Listener receives ArtDMX datagrams on a single UDP socket and emits one
// ingest.Frame per valid packet. A socket error returns from Run; the
// supervisor is responsible for restart-with-backoff (spec §4.A).
type Listener struct {
	addr      string
	priority  uint8
	sourceID  string
	logger    *slog.Logger
	frames    chan ingest.Frame
	malformed atomic.Uint64
}

// New builds a Listener bound to addr (e.g. ":6454"). priority is the
// static priority ArtNet frames carry into the Mapper's mixing rule.
func New(addr string, priority uint8, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		addr:     addr,
		priority: priority,
		sourceID: "artnet:" + addr,
		logger:   logger.With("component", "ingest.artnet"),
		frames:   make(chan ingest.Frame, 64),
	}
}

// Frames returns the channel frames are emitted on. The channel is never
// closed, including across restarts: the supervisor calls Run again after
// a socket error, reusing the same Listener and channel (spec §4.A).
func (l *Listener) Frames() <-chan ingest.Frame { return l.frames }

// MalformedCount returns the number of datagrams rejected by pkg/artnet.Parse.
func (l *Listener) MalformedCount() uint64 { return l.malformed.Load() }

// Run opens the UDP socket and blocks until ctx is cancelled or a socket
// error occurs. The frames channel is left open on return so the caller
// can restart Run without losing readers.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp4", l.addr)
	if err != nil {
		return fmt.Errorf("artnetlisten: listen %s: %w", l.addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("artnetlisten: read: %w", err)
		}

		pkt, err := artnet.Parse(buf[:n])
		if err != nil {
			l.malformed.Add(1)
			l.logger.Debug("malformed artnet frame", "error", err)
			continue
		}

		frame := ingest.Frame{
			Universe:       pkt.Universe,
			Data:           pkt.Data,
			Sequence:       pkt.Sequence,
			SourceProtocol: "artnet",
			Priority:       l.priority,
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
