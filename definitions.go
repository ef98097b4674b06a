// Package swrouter holds the wire-format vocabulary shared by every codec
// package in this module: EtherType and IPProto values, the RFC 791
// Internet checksum accumulator, and the packet validator used by
// ethernet, arp, ipv4 and icmpv4 to report malformed frames.
package swrouter

//go:generate stringer -type=EtherType,IPProto -linecomment -output stringers.go .

// EtherType is the 16 bit EtherType field of an Ethernet II frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800 // IPv4
	EtherTypeARP  EtherType = 0x0806 // ARP
)

// IsSize reports whether et is actually an IEEE 802.3 payload length
// rather than an EtherType; values <= 1500 are lengths, not types.
func (et EtherType) IsSize() bool { return et <= 1500 }

// IPProto is an IPv4 protocol number (the ip_proto header field).
type IPProto uint8

const (
	IPProtoICMP IPProto = 1  // ICMP
	IPProtoTCP  IPProto = 6  // TCP
	IPProtoUDP  IPProto = 17 // UDP
)

const (
	SizeEthernetHeader = 14
	SizeARPv4Header    = 28
	SizeIPv4Header     = 20
	SizeICMPv4Header   = 8
)
