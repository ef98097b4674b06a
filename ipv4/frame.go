package ipv4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/netstacklab/swrouter"
)

// NewFrame returns a Frame with data set to buf. An error is returned if
// the buffer is smaller than HeaderLength. Callers should still call
// [Frame.ValidateSize] before trusting TotalLength-derived slices.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderLength {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw bytes of an IPv4 datagram and exposes
// accessors/mutators over the borrowed buffer. See RFC 791.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the frame was constructed from.
func (ifrm Frame) RawData() []byte { return ifrm.buf }

func (ifrm Frame) ihl() uint8     { return ifrm.buf[0] & 0xf }
func (ifrm Frame) version() uint8 { return ifrm.buf[0] >> 4 }

// HeaderLength returns the header length in bytes, as encoded by IHL*4.
func (ifrm Frame) HeaderLength() int { return int(ifrm.ihl()) * 4 }

// VersionAndIHL returns the version and header-length-in-words fields.
func (ifrm Frame) VersionAndIHL() (version, ihl uint8) {
	v := ifrm.buf[0]
	return v >> 4, v & 0xf
}

// SetVersionAndIHL sets the version and IHL fields.
func (ifrm Frame) SetVersionAndIHL(version, ihl uint8) {
	ifrm.buf[0] = version<<4 | ihl&0xf
}

// ToS returns the Type of Service byte.
func (ifrm Frame) ToS() ToS { return ToS(ifrm.buf[1]) }

// SetToS sets the Type of Service byte.
func (ifrm Frame) SetToS(tos ToS) { ifrm.buf[1] = byte(tos) }

// TotalLength returns the entire datagram size (header + payload) in bytes.
func (ifrm Frame) TotalLength() uint16 { return binary.BigEndian.Uint16(ifrm.buf[2:4]) }

// SetTotalLength sets the total length field.
func (ifrm Frame) SetTotalLength(tl uint16) { binary.BigEndian.PutUint16(ifrm.buf[2:4], tl) }

// ID returns the datagram identification field.
func (ifrm Frame) ID() uint16 { return binary.BigEndian.Uint16(ifrm.buf[4:6]) }

// SetID sets the datagram identification field.
func (ifrm Frame) SetID(id uint16) { binary.BigEndian.PutUint16(ifrm.buf[4:6], id) }

// Flags returns the flags+fragment-offset field.
func (ifrm Frame) Flags() Flags { return Flags(binary.BigEndian.Uint16(ifrm.buf[6:8])) }

// SetFlags sets the flags+fragment-offset field.
func (ifrm Frame) SetFlags(f Flags) { binary.BigEndian.PutUint16(ifrm.buf[6:8], uint16(f)) }

// TTL returns the time-to-live / hop-count field.
func (ifrm Frame) TTL() uint8 { return ifrm.buf[8] }

// SetTTL sets the time-to-live field.
func (ifrm Frame) SetTTL(ttl uint8) { ifrm.buf[8] = ttl }

// Protocol returns the encapsulated protocol number.
func (ifrm Frame) Protocol() swrouter.IPProto { return swrouter.IPProto(ifrm.buf[9]) }

// SetProtocol sets the encapsulated protocol number.
func (ifrm Frame) SetProtocol(proto swrouter.IPProto) { ifrm.buf[9] = uint8(proto) }

// CRC returns the header checksum field.
func (ifrm Frame) CRC() uint16 { return binary.BigEndian.Uint16(ifrm.buf[10:12]) }

// SetCRC sets the header checksum field.
func (ifrm Frame) SetCRC(cs uint16) { binary.BigEndian.PutUint16(ifrm.buf[10:12], cs) }

// CalculateHeaderCRC computes the RFC 791 checksum over the header only
// (octets 0:10 and 12:IHL*4), treating the checksum field itself as zero.
func (ifrm Frame) CalculateHeaderCRC() uint16 {
	var crc swrouter.CRC791
	hl := ifrm.HeaderLength()
	crc.Write(ifrm.buf[0:10])
	crc.Write(ifrm.buf[12:hl])
	return crc.Sum16()
}

// ValidateCRC reports whether the carried header checksum matches a fresh
// computation: recompute with the field treated as zero, compare to the
// wire value.
func (ifrm Frame) ValidateCRC() bool {
	return ifrm.CalculateHeaderCRC() == ifrm.CRC()
}

// SourceAddr returns a pointer to the 4-byte source address.
func (ifrm Frame) SourceAddr() *[4]byte { return (*[4]byte)(ifrm.buf[12:16]) }

// DestinationAddr returns a pointer to the 4-byte destination address.
func (ifrm Frame) DestinationAddr() *[4]byte { return (*[4]byte)(ifrm.buf[16:20]) }

// Payload returns the datagram payload (after header and options), sized
// by TotalLength. Call [Frame.ValidateSize] first to avoid a panic on a
// malformed TotalLength field.
func (ifrm Frame) Payload() []byte {
	off := ifrm.HeaderLength()
	return ifrm.buf[off:ifrm.TotalLength()]
}

// Options returns the variable-length options area between the fixed
// header and HeaderLength.
func (ifrm Frame) Options() []byte {
	off := ifrm.HeaderLength()
	return ifrm.buf[HeaderLength:off]
}

// ClearHeader zeros out the fixed (non-option) header contents.
func (ifrm Frame) ClearHeader() {
	for i := range ifrm.buf[:HeaderLength] {
		ifrm.buf[i] = 0
	}
}

var (
	errShort         = errors.New("ipv4: buffer shorter than header")
	errBadTL         = errors.New("ipv4: total length smaller than header")
	errTruncated     = errors.New("ipv4: total length exceeds buffer")
	errBadIHL        = errors.New("ipv4: IHL field below minimum of 5")
	errHeaderTooLong = errors.New("ipv4: IHL-derived header length exceeds total length")
	errBadVersion    = errors.New("ipv4: version field is not 4")
)

// ValidateSize checks the frame's length fields against the buffer it was
// constructed from.
func (ifrm Frame) ValidateSize(v *swrouter.Validator) {
	ihl := ifrm.ihl()
	tl := ifrm.TotalLength()
	if tl < HeaderLength {
		v.AddError(errBadTL)
	}
	if int(tl) > len(ifrm.buf) {
		v.AddError(errTruncated)
	}
	if ihl < 5 {
		v.AddError(errBadIHL)
	}
	// IHL*4 must not exceed TotalLength (and, transitively with the check
	// above, the buffer itself): otherwise CalculateHeaderCRC and Payload
	// slice past TotalLength with a negative-length range and panic.
	if int(ihl)*4 > int(tl) {
		v.AddError(errHeaderTooLong)
	}
}

// ValidateExceptCRC runs ValidateSize and additionally checks the version
// field, without touching the checksum: the dispatcher checks the
// checksum separately, after length validation passes.
func (ifrm Frame) ValidateExceptCRC(v *swrouter.Validator) {
	ifrm.ValidateSize(v)
	if ifrm.version() != 4 {
		v.AddError(errBadVersion)
	}
}

func (ifrm Frame) String() string {
	dst := netip.AddrFrom4(*ifrm.DestinationAddr())
	src := netip.AddrFrom4(*ifrm.SourceAddr())
	return fmt.Sprintf("IP proto=%d SRC=%s DST=%s LEN=%d TTL=%d ID=%d",
		ifrm.Protocol(), src, dst, ifrm.TotalLength(), ifrm.TTL(), ifrm.ID())
}
