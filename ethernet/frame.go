package ethernet

import (
	"encoding/binary"
	"errors"

	"github.com/netstacklab/swrouter"
)

// NewFrame returns a Frame with data set to buf.
// An error is returned if the buffer size is smaller than HeaderLength.
// Callers should still call [Frame.ValidateSize] before reading the
// payload to avoid panics on a truncated frame.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderLength {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw bytes of an Ethernet II frame, starting at the
// destination address (no preamble, no frame check sequence), and exposes
// accessors/mutators over the borrowed buffer.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the frame was constructed from.
func (efrm Frame) RawData() []byte { return efrm.buf }

// Payload returns the data following the 14 byte header.
func (efrm Frame) Payload() []byte { return efrm.buf[HeaderLength:] }

// DestinationHardwareAddr returns the destination MAC address.
func (efrm Frame) DestinationHardwareAddr() *[6]byte {
	return (*[6]byte)(efrm.buf[0:6])
}

// SetDestinationHardwareAddr overwrites the destination MAC address.
func (efrm Frame) SetDestinationHardwareAddr(addr [6]byte) {
	copy(efrm.buf[0:6], addr[:])
}

// IsBroadcast reports whether the destination is ff:ff:ff:ff:ff:ff.
func (efrm Frame) IsBroadcast() bool {
	b := efrm.buf[0:6]
	return b[0] == 0xff && b[1] == 0xff && b[2] == 0xff && b[3] == 0xff && b[4] == 0xff && b[5] == 0xff
}

// SourceHardwareAddr returns the source MAC address.
func (efrm Frame) SourceHardwareAddr() *[6]byte {
	return (*[6]byte)(efrm.buf[6:12])
}

// SetSourceHardwareAddr overwrites the source MAC address.
func (efrm Frame) SetSourceHardwareAddr(addr [6]byte) {
	copy(efrm.buf[6:12], addr[:])
}

// EtherType returns the EtherType field.
func (efrm Frame) EtherType() Type {
	return Type(binary.BigEndian.Uint16(efrm.buf[12:14]))
}

// SetEtherType sets the EtherType field.
func (efrm Frame) SetEtherType(t Type) {
	binary.BigEndian.PutUint16(efrm.buf[12:14], uint16(t))
}

// ClearHeader zeros out the fixed header contents.
func (efrm Frame) ClearHeader() {
	for i := range efrm.buf[:HeaderLength] {
		efrm.buf[i] = 0
	}
}

var errShort = errors.New("ethernet: frame shorter than header")

// ValidateSize checks that the buffer is at least long enough to hold the
// Ethernet header. Unlike IPv4/ARP, the Ethernet header carries no length
// field of its own to cross-check against the buffer.
func (efrm Frame) ValidateSize(v *swrouter.Validator) {
	if len(efrm.buf) < HeaderLength {
		v.AddError(errShort)
	}
}
