// Package wire frames outbound datagrams written by the network-write thread.
//
// Ownership boundary:
// - fixed datagram header layout
//
// - size limits for encode/decode
//
// Payload content is opaque here; protocol semantics live with the caller.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Magic     uint32 = 0x454e4743 // "ENGC"
	Version   uint16 = 1
	HeaderLen        = 20
)

var (
	ErrShortHeader     = errors.New("wire: short header")
	ErrBadMagic        = errors.New("wire: bad magic")
	ErrBadVersion      = errors.New("wire: unsupported version")
	ErrPayloadTooLarge = errors.New("wire: payload too large")
	ErrPayloadTrunc    = errors.New("wire: payload truncated")
)

// Header is the fixed datagram header.
type Header struct {
	Magic      uint32
	Version    uint16
	Kind       uint16
	Sequence   uint64
	PayloadLen uint32
}

// Packet is one complete datagram.
type Packet struct {
	Header  Header
	Payload []byte
}

// Limits constrains encode/decode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

// DefaultLimits keeps a packet inside a typical UDP datagram.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 64*1024 - HeaderLen - 28}
}

// Encode stamps magic, version and payload length and returns the datagram.
func Encode(p Packet, limits Limits) ([]byte, error) {
	if uint64(len(p.Payload)) > uint64(limits.MaxPayloadBytes) {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(p.Payload))
	}
	h := p.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint32(len(p.Payload))

	buf := make([]byte, HeaderLen+len(p.Payload))
	putHeader(buf[:HeaderLen], h)
	copy(buf[HeaderLen:], p.Payload)
	return buf, nil
}

// Decode parses one datagram. Trailing bytes beyond PayloadLen are ignored.
func Decode(b []byte, limits Limits) (Packet, error) {
	if len(b) < HeaderLen {
		return Packet{}, ErrShortHeader
	}
	h := readHeader(b[:HeaderLen])
	if h.Magic != Magic {
		return Packet{}, ErrBadMagic
	}
	if h.Version != Version {
		return Packet{}, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Packet{}, fmt.Errorf("%w: %d", ErrPayloadTooLarge, h.PayloadLen)
	}
	if uint64(len(b)-HeaderLen) < uint64(h.PayloadLen) {
		return Packet{}, ErrPayloadTrunc
	}
	payload := make([]byte, h.PayloadLen)
	copy(payload, b[HeaderLen:HeaderLen+int(h.PayloadLen)])
	return Packet{Header: h, Payload: payload}, nil
}

func putHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Kind)
	binary.BigEndian.PutUint64(buf[8:16], h.Sequence)
	binary.BigEndian.PutUint32(buf[16:20], h.PayloadLen)
}

func readHeader(b []byte) Header {
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Kind:       binary.BigEndian.Uint16(b[6:8]),
		Sequence:   binary.BigEndian.Uint64(b[8:16]),
		PayloadLen: binary.BigEndian.Uint32(b[16:20]),
	}
}
