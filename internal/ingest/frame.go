// Package ingest defines the protocol-agnostic frame emitted by the
// ArtNet and sACN listeners and consumed by the Mapper (spec §4.A).
package ingest

import "time"

// Frame is the output contract of spec §4.A: exactly 512 data bytes
// regardless of how many were actually on the wire.
type Frame struct {
	Universe       uint16
	Data           [512]byte
	Sequence       uint8
	SourceProtocol string // "artnet" | "sacn"
	Priority       uint8
	Timestamp      time.Time
	SourceID       string
}
