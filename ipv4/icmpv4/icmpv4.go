// Package icmpv4 implements the ICMPv4 message codec (RFC 792): typed
// views over a caller-owned buffer, in the same borrowed-buffer idiom as
// the ethernet and ipv4 packages.
package icmpv4

import (
	"encoding/binary"
	"errors"

	"github.com/netstacklab/swrouter"
)

type Type uint8

const (
	TypeEchoReply              Type = 0  // echo reply
	TypeDestinationUnreachable Type = 3  // destination unreachable
	TypeEcho                   Type = 8  // echo
	TypeTimeExceeded           Type = 11 // time exceeded
)

// CodeTimeExceeded enumerates the codes carried with TypeTimeExceeded.
type CodeTimeExceeded uint8

const (
	CodeExceededInTransit CodeTimeExceeded = iota // TTL exceeded in transit
)

// CodeDestinationUnreachable enumerates the codes this router emits with
// TypeDestinationUnreachable: no matching route, ARP resolution gave up,
// or an unroutable transport port.
type CodeDestinationUnreachable uint8

const (
	CodeNetUnreachable  CodeDestinationUnreachable = 0 // net unreachable
	CodeHostUnreachable CodeDestinationUnreachable = 1 // host unreachable
	CodePortUnreachable CodeDestinationUnreachable = 3 // port unreachable
)

var errShortFrame = errors.New("icmpv4: buffer shorter than 8 byte header")

// NewFrame returns a Frame with data set to buf. An error is returned if
// the buffer is smaller than the 8 byte ICMP header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < swrouter.SizeICMPv4Header {
		return Frame{}, errShortFrame
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw bytes of an ICMP message.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the frame was constructed from.
func (frm Frame) RawData() []byte { return frm.buf }

// Type returns the ICMP type field.
func (frm Frame) Type() Type { return Type(frm.buf[0]) }

// SetType sets the ICMP type field.
func (frm Frame) SetType(t Type) { frm.buf[0] = uint8(t) }

// Code returns the raw ICMP code field.
func (frm Frame) Code() uint8 { return frm.buf[1] }

// SetCode sets the raw ICMP code field.
func (frm Frame) SetCode(code uint8) { frm.buf[1] = code }

// CRC returns the checksum field.
func (frm Frame) CRC() uint16 { return binary.BigEndian.Uint16(frm.buf[2:4]) }

// SetCRC sets the checksum field.
func (frm Frame) SetCRC(crc uint16) { binary.BigEndian.PutUint16(frm.buf[2:4], crc) }

// Payload returns everything past the 4-byte type/code/checksum prefix:
// the rest-of-header plus data area.
func (frm Frame) Payload() []byte { return frm.buf[4:] }

// CalculateCRC computes the RFC 792 checksum over the whole message,
// treating the checksum field as zero.
func (frm Frame) CalculateCRC() uint16 {
	var crc swrouter.CRC791
	crc.AddUint16(binary.BigEndian.Uint16(frm.buf[0:2]))
	crc.Write(frm.buf[4:])
	return crc.Sum16()
}

// ValidateCRC reports whether the carried checksum matches a fresh
// computation.
func (frm Frame) ValidateCRC() bool { return frm.CalculateCRC() == frm.CRC() }

// ValidateSize checks the buffer against the minimum ICMP header size.
func (frm Frame) ValidateSize(v *swrouter.Validator) {
	if len(frm.buf) < swrouter.SizeICMPv4Header {
		v.AddError(errShortFrame)
	}
}

// FrameEcho is an ICMP echo request/reply view: the common header
// followed by a 16-bit identifier, 16-bit sequence number, and payload.
type FrameEcho struct{ Frame }

// NewFrameEcho wraps buf as an echo request/reply.
func NewFrameEcho(buf []byte) (FrameEcho, error) {
	base, err := NewFrame(buf)
	if err != nil {
		return FrameEcho{}, err
	}
	return FrameEcho{base}, nil
}

func (frm FrameEcho) Identifier() uint16      { return binary.BigEndian.Uint16(frm.buf[4:6]) }
func (frm FrameEcho) SetIdentifier(id uint16) { binary.BigEndian.PutUint16(frm.buf[4:6], id) }

func (frm FrameEcho) SequenceNumber() uint16 { return binary.BigEndian.Uint16(frm.buf[6:8]) }
func (frm FrameEcho) SetSequenceNumber(seq uint16) {
	binary.BigEndian.PutUint16(frm.buf[6:8], seq)
}

// Data returns the echo payload following identifier+sequence.
func (frm FrameEcho) Data() []byte { return frm.buf[8:] }

// FrameDestinationUnreachable is an ICMP type-3 view: the common header,
// 2 unused bytes, a 2-byte next-hop-MTU field (always 0, this router
// never fragments), followed by the quoted offending packet.
type FrameDestinationUnreachable struct{ Frame }

// NewFrameDestinationUnreachable wraps buf as a type-3 message.
func NewFrameDestinationUnreachable(buf []byte) (FrameDestinationUnreachable, error) {
	base, err := NewFrame(buf)
	if err != nil {
		return FrameDestinationUnreachable{}, err
	}
	return FrameDestinationUnreachable{base}, nil
}

func (frm FrameDestinationUnreachable) Code() CodeDestinationUnreachable {
	return CodeDestinationUnreachable(frm.Frame.Code())
}

func (frm FrameDestinationUnreachable) SetCode(code CodeDestinationUnreachable) {
	frm.Frame.SetCode(uint8(code))
}

// Quote returns the area holding the quoted offending packet.
func (frm FrameDestinationUnreachable) Quote() []byte { return frm.buf[8:] }

// FrameTimeExceeded is an ICMP type-11 view: same body layout as type 3
// (4 unused bytes followed by the quote), emitted when a datagram's TTL
// reaches zero in transit.
type FrameTimeExceeded struct{ Frame }

// NewFrameTimeExceeded wraps buf as a type-11 message.
func NewFrameTimeExceeded(buf []byte) (FrameTimeExceeded, error) {
	base, err := NewFrame(buf)
	if err != nil {
		return FrameTimeExceeded{}, err
	}
	return FrameTimeExceeded{base}, nil
}

func (frm FrameTimeExceeded) Code() CodeTimeExceeded {
	return CodeTimeExceeded(frm.Frame.Code())
}

func (frm FrameTimeExceeded) SetCode(code CodeTimeExceeded) {
	frm.Frame.SetCode(uint8(code))
}

// Quote returns the area holding the quoted offending packet.
func (frm FrameTimeExceeded) Quote() []byte { return frm.buf[8:] }
