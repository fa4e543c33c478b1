package artnet

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed Art-Net header length preceding DMX data.
const HeaderSize = 18

// Errors returned by Parse. Callers should treat all of them as "drop the
// datagram, count it, keep listening" per the ingest failure semantics.
var (
	ErrShortHeader    = errors.New("artnet: datagram shorter than header")
	ErrBadID          = errors.New("artnet: Art-Net ID mismatch")
	ErrNotDMX         = errors.New("artnet: opcode is not ArtDMX")
	ErrLengthTooLarge = errors.New("artnet: length exceeds 512")
	ErrLengthMismatch = errors.New("artnet: length does not match remaining bytes")
)

// DMXPacket is the decoded form of an ArtDMX datagram.
type DMXPacket struct {
	Sequence byte
	Physical byte
	Universe uint16 // 0-based, as carried on the wire
	Length   uint16
	Data     [512]byte
}

// Parse decodes an ArtDMX datagram, enforcing the framing rules in §4.A:
// header magic, opcode 0x5000, length <= 512, and length == bytes remaining.
// The returned Data is always zero-padded to 512 bytes.
func Parse(datagram []byte) (*DMXPacket, error) {
	if len(datagram) < HeaderSize {
		return nil, ErrShortHeader
	}
	for i, b := range ArtNetID {
		if datagram[i] != b {
			return nil, ErrBadID
		}
	}
	opcode := binary.LittleEndian.Uint16(datagram[8:10])
	if opcode != OpCodeDMX {
		return nil, ErrNotDMX
	}
	length := binary.BigEndian.Uint16(datagram[16:18])
	if length > DMXDataLength {
		return nil, ErrLengthTooLarge
	}
	remaining := len(datagram) - HeaderSize
	if int(length) != remaining {
		return nil, ErrLengthMismatch
	}

	pkt := &DMXPacket{
		Sequence: datagram[12],
		Physical: datagram[13],
		Universe: binary.LittleEndian.Uint16(datagram[14:16]),
		Length:   length,
	}
	copy(pkt.Data[:], datagram[HeaderSize:])
	return pkt, nil
}
