// Package tdsframe implements TDS packet header parsing and packet
// iteration: the framer never interprets payload bytes, it only finds
// packet boundaries within a buffer so the caller can reassemble
// multi-packet messages.
package tdsframe

import (
	"errors"
	"fmt"
)

// PacketType is the TDS header's type byte (offset 0).
type PacketType byte

const (
	TypeSQLBatch     PacketType = 0x01
	TypeRPCRequest   PacketType = 0x03
	TypePreTDS7Login PacketType = 0x02
	TypeReply        PacketType = 0x04
	TypeAttention    PacketType = 0x06
	TypeBulkLoad     PacketType = 0x07
	TypeTransManager PacketType = 0x0E
	TypePrelogin     PacketType = 0x12
)

// StatusEOM marks the final packet of a TDS message.
const StatusEOM byte = 0x01

// HeaderSize is the fixed TDS packet header length.
const HeaderSize = 8

// MaxReassemblyBytes caps the per-direction leftover buffer; a single
// in-flight message larger than this causes the caller to drop the
// connection (see proxy.Pipe).
const MaxReassemblyBytes = 1 << 20 // 1 MiB

// Header is a parsed 8-byte TDS packet header.
type Header struct {
	Type    PacketType
	Status  byte
	Length  uint16
	SPID    uint16
	PktID   byte
	Window  byte
}

// IsEOM reports whether this header's status bit marks the last packet
// of a message.
func (h Header) IsEOM() bool { return h.Status&StatusEOM != 0 }

var ErrShortHeader = errors.New("tdsframe: fewer than 8 bytes available for header")

// ParseHeader decodes the 8-byte TDS header at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		Type:   PacketType(buf[0]),
		Status: buf[1],
		Length: uint16(buf[2])<<8 | uint16(buf[3]),
		SPID:   uint16(buf[4])<<8 | uint16(buf[5]),
		PktID:  buf[6],
		Window: buf[7],
	}, nil
}

// Packet is one fully-framed TDS packet, payload excludes the header.
type Packet struct {
	Header  Header
	Payload []byte
}

// IterPackets walks buf extracting complete packets. It stops as soon
// as fewer than 8 bytes remain, or the next header's declared length
// would exceed what's left in buf — in both cases the remaining bytes
// (from the returned consumed offset onward) are the caller's leftover
// to re-buffer for the next read. The only error is a header whose
// declared length is smaller than the header itself; it is returned so
// callers can fall back to passthrough for that read.
func IterPackets(buf []byte) (packets []Packet, consumed int, err error) {
	i := 0
	for len(buf)-i >= HeaderSize {
		hdr, herr := ParseHeader(buf[i:])
		if herr != nil {
			return packets, i, herr
		}
		if hdr.Length < HeaderSize {
			return packets, i, fmt.Errorf("tdsframe: header length %d smaller than header size", hdr.Length)
		}
		end := i + int(hdr.Length)
		if end > len(buf) {
			break // await more bytes
		}
		packets = append(packets, Packet{Header: hdr, Payload: buf[i+HeaderSize : end]})
		i = end
	}
	return packets, i, nil
}

// EncodeHeader writes an 8-byte TDS header for a packet of the given
// total length (header included).
func EncodeHeader(typ PacketType, status byte, length int, spid uint16, pktID, window byte) []byte {
	b := make([]byte, HeaderSize)
	b[0] = byte(typ)
	b[1] = status
	b[2] = byte(length >> 8)
	b[3] = byte(length)
	b[4] = byte(spid >> 8)
	b[5] = byte(spid)
	b[6] = pktID
	b[7] = window
	return b
}

// EncodeMessage wraps payload in a single TDS packet with the EOM bit
// set — used when the controller re-emits a reassembled or rewritten
// message as one packet regardless of how many packets it arrived in.
func EncodeMessage(typ PacketType, payload []byte, spid uint16) []byte {
	total := HeaderSize + len(payload)
	out := make([]byte, 0, total)
	out = append(out, EncodeHeader(typ, StatusEOM, total, spid, 1, 0)...)
	out = append(out, payload...)
	return out
}
