//go:build linux

// Package rawsock implements the router's production link layer: one
// AF_PACKET SOCK_RAW socket per configured interface, the concrete
// realization of the host-provided link-layer contract. Linux-only, as
// a software router operating at the Ethernet frame level requires the
// kernel's packet socket facility.
package rawsock

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Socket is a raw AF_PACKET socket bound to one network interface,
// sending and receiving complete Ethernet frames with one syscall per
// frame — no TPACKET ring buffer, adequate for the packet rates a
// router this size is expected to see.
type Socket struct {
	fd      int
	iface   string
	ifindex int
}

// Open creates and binds a raw socket to the named interface.
func Open(iface string) (*Socket, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("rawsock: %w", err)
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("rawsock: socket: %w", err)
	}
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rawsock: bind %s: %w", iface, err)
	}
	return &Socket{fd: fd, iface: iface, ifindex: ifi.Index}, nil
}

// SendFrame writes a complete Ethernet frame to the wire. iface must
// match the interface this socket was opened on.
func (s *Socket) SendFrame(iface string, b []byte) error {
	if iface != s.iface {
		return fmt.Errorf("rawsock: frame addressed to %s, socket bound to %s", iface, s.iface)
	}
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  s.ifindex,
	}
	return unix.Sendto(s.fd, b, 0, addr)
}

// ReadLoop reads frames in a tight loop, invoking onFrame for each one,
// until a read error occurs — including the socket being closed from
// another goroutine, the standard way of cancelling a blocking read.
func (s *Socket) ReadLoop(onFrame func(iface string, b []byte)) error {
	buf := make([]byte, 65536)
	for {
		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("rawsock: recvfrom %s: %w", s.iface, err)
		}
		onFrame(s.iface, buf[:n])
	}
}

// Close releases the underlying file descriptor, unblocking any
// in-progress ReadLoop with an error.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | v>>8
}
