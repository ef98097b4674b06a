package arp

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	"github.com/netstacklab/swrouter"
	"github.com/netstacklab/swrouter/ethernet"
)

// NewFrame returns a Frame with data set to buf. An error is returned if
// the buffer is smaller than the 28 byte IPv4-over-Ethernet ARP size.
// Callers should still call [Frame.ValidateSize] before trusting the
// hardware/protocol length fields if buf may be attacker-controlled.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderv4 {
		return Frame{}, errShortARP
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw bytes of an ARP packet and exposes
// accessors/mutators over the borrowed buffer. See RFC 826.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the frame was constructed from.
func (afrm Frame) RawData() []byte { return afrm.buf }

// Hardware returns the hardware type and per-address length fields.
func (afrm Frame) Hardware() (typ uint16, length uint8) {
	return binary.BigEndian.Uint16(afrm.buf[0:2]), afrm.hwlen()
}

func (afrm Frame) hwlen() uint8 { return afrm.buf[4] }

// SetHardware sets the hardware type and per-address length fields.
func (afrm Frame) SetHardware(typ uint16, length uint8) {
	binary.BigEndian.PutUint16(afrm.buf[0:2], typ)
	afrm.buf[4] = length
}

// Protocol returns the upper-layer protocol type and per-address length
// fields.
func (afrm Frame) Protocol() (typ ethernet.Type, length uint8) {
	return ethernet.Type(binary.BigEndian.Uint16(afrm.buf[2:4])), afrm.protolen()
}

func (afrm Frame) protolen() uint8 { return afrm.buf[5] }

// SetProtocol sets the upper-layer protocol type and per-address length
// fields.
func (afrm Frame) SetProtocol(typ ethernet.Type, length uint8) {
	binary.BigEndian.PutUint16(afrm.buf[2:4], uint16(typ))
	afrm.buf[5] = length
}

// Operation returns the ARP header operation field.
func (afrm Frame) Operation() Operation { return Operation(binary.BigEndian.Uint16(afrm.buf[6:8])) }

// SetOperation sets the ARP header operation field.
func (afrm Frame) SetOperation(op Operation) { binary.BigEndian.PutUint16(afrm.buf[6:8], uint16(op)) }

// Sender4 returns pointers to the IPv4 sender hardware and protocol
// addresses.
func (afrm Frame) Sender4() (hardwareAddr *[6]byte, proto *[4]byte) {
	return (*[6]byte)(afrm.buf[8:14]), (*[4]byte)(afrm.buf[14:18])
}

// Target4 returns pointers to the IPv4 target hardware and protocol
// addresses.
func (afrm Frame) Target4() (hardwareAddr *[6]byte, proto *[4]byte) {
	return (*[6]byte)(afrm.buf[18:24]), (*[4]byte)(afrm.buf[24:28])
}

// ClearHeader zeros out the fixed (non-variable) header contents.
func (afrm Frame) ClearHeader() {
	for i := range afrm.buf[:sizeHeader] {
		afrm.buf[i] = 0
	}
}

// Clip returns a Frame bound to exactly the bytes the hardware/protocol
// length fields describe, discarding any trailing padding the link layer
// may have appended (Ethernet pads short frames to 64 bytes).
func (afrm Frame) Clip() Frame {
	return Frame{buf: afrm.buf[:sizeHeader+2*int(afrm.hwlen())+2*int(afrm.protolen())]}
}

// SwapTargetSender exchanges the sender and target address pairs in
// place, the first step in turning a received request into a reply.
func (afrm Frame) SwapTargetSender() {
	senderHW, senderProto := afrm.Sender4()
	targetHW, targetProto := afrm.Target4()
	*senderHW, *targetHW = *targetHW, *senderHW
	*senderProto, *targetProto = *targetProto, *senderProto
}

// ValidateSize checks the frame's hardware/protocol length fields against
// the buffer it was constructed from.
func (afrm Frame) ValidateSize(v *swrouter.Validator) {
	_, hlen := afrm.Hardware()
	_, ilen := afrm.Protocol()
	minLen := sizeHeader + 2*(int(hlen)+int(ilen))
	if len(afrm.buf) < minLen {
		v.AddError(errShortARP)
	}
}

func (afrm Frame) String() string {
	proto, _ := afrm.Protocol()
	senderHW, senderProto := afrm.Sender4()
	targetHW, targetProto := afrm.Target4()
	sender := netip.AddrFrom4(*senderProto)
	target := netip.AddrFrom4(*targetProto)
	return fmt.Sprintf("ARP %s PROTO=%s SENDER=(%s,%s) TARGET=(%s,%s)",
		afrm.Operation(), proto,
		net.HardwareAddr(senderHW[:]), sender,
		net.HardwareAddr(targetHW[:]), target)
}
