// Package ethernet implements the Ethernet II frame codec used by the
// router's dispatcher: a typed, zero-copy view over a caller-owned buffer,
// mirroring the "typed view borrowing from a single owner" idiom used
// throughout this module's wire codecs.
package ethernet

import "strconv"

const (
	// HeaderLength is the size of an untagged Ethernet II header: 6 byte
	// destination, 6 byte source, 2 byte EtherType.
	HeaderLength = 14
)

// Type is the 16 bit EtherType field of an Ethernet II frame. Only the two
// types this router classifies on are named; anything else is dropped as
// unrecognized.
type Type uint16

const (
	TypeIPv4 Type = 0x0800 // IPv4
	TypeARP  Type = 0x0806 // ARP
)

func (t Type) String() string {
	switch t {
	case TypeIPv4:
		return "IPv4"
	case TypeARP:
		return "ARP"
	default:
		return "EtherType(0x" + strconv.FormatUint(uint64(t), 16) + ")"
	}
}

// BroadcastAddr returns the all-ones broadcast hardware address.
func BroadcastAddr() [6]byte {
	return [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

// AppendAddr appends the colon-separated hex text form of a MAC address.
func AppendAddr(dst []byte, hwAddr [6]byte) []byte {
	for i, b := range hwAddr {
		if i != 0 {
			dst = append(dst, ':')
		}
		if b < 16 {
			dst = append(dst, '0')
		}
		dst = strconv.AppendUint(dst, uint64(b), 16)
	}
	return dst
}
