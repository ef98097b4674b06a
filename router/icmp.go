package router

import (
	"net/netip"
	"strconv"

	"github.com/netstacklab/swrouter"
	"github.com/netstacklab/swrouter/arpcache"
	"github.com/netstacklab/swrouter/ifacetable"
	"github.com/netstacklab/swrouter/ipv4"
	"github.com/netstacklab/swrouter/ipv4/icmpv4"
)

// emitEchoReply answers an echo request addressed to one of the router's
// own interfaces. The source address is that interface's own IP, not a
// routed-back address, since the request already named it as destination.
func (d *Dispatcher) emitEchoReply(ifc ifacetable.Interface, dst netip.Addr, req icmpv4.FrameEcho) {
	icmpBuf := make([]byte, len(req.RawData()))
	reply, err := icmpv4.BuildEchoReply(icmpBuf, req)
	if err != nil {
		return
	}
	if d.metrics != nil {
		d.metrics.ICMPEmitted.WithLabelValues("0", "0").Inc()
	}
	d.sendIPv4(ifc.Addr, dst, swrouter.IPProtoICMP, reply.RawData(), false)
}

// emitTimeExceeded composes and routes a type-11 code-0 ICMP message back
// toward origSrc, quoting the offending datagram.
func (d *Dispatcher) emitTimeExceeded(origSrc netip.Addr, quote []byte) {
	icmpBuf := make([]byte, 8+len(quote))
	frm, err := icmpv4.BuildTimeExceeded(icmpBuf, quote)
	if err != nil {
		return
	}
	if d.metrics != nil {
		d.metrics.ICMPEmitted.WithLabelValues("11", "0").Inc()
	}
	d.emitRoutedBack(origSrc, frm.RawData())
}

// emitDestUnreachable composes and routes a type-3 ICMP message of the
// given code back toward origSrc.
func (d *Dispatcher) emitDestUnreachable(origSrc netip.Addr, code icmpv4.CodeDestinationUnreachable, quote []byte) {
	icmpBuf := make([]byte, 8+len(quote))
	frm, err := icmpv4.BuildDestinationUnreachable(icmpBuf, code, quote)
	if err != nil {
		return
	}
	if d.metrics != nil {
		d.metrics.ICMPEmitted.WithLabelValues("3", strconv.Itoa(int(code))).Inc()
	}
	d.emitRoutedBack(origSrc, frm.RawData())
}

// onARPFailure is the arpcache.Cache callback invoked once a pending
// request exhausts all its retry attempts: the queued packet becomes an
// ICMP host-unreachable message, unless it was itself one already, which
// would otherwise chain into an unbounded storm of ICMP errors about
// ICMP errors.
func (d *Dispatcher) onARPFailure(f arpcache.FailedPacket) {
	if f.IsErrorResponse {
		d.log.Debug("dropping packet after ARP failure, suppressing further ICMP", "source", f.SourceIP)
		return
	}
	d.emitDestUnreachable(f.SourceIP, icmpv4.CodeHostUnreachable, f.Quote)
}

// emitRoutedBack picks the outgoing interface by looking up a route to
// dst (the original packet's source), uses that interface's own address
// as the new packet's source, and hands the result to the ordinary
// forwarding path, marked as an error response.
func (d *Dispatcher) emitRoutedBack(dst netip.Addr, icmpBytes []byte) {
	route, ok := d.routes.Lookup(dst)
	if !ok {
		d.drop("no_route_for_icmp_reply")
		return
	}
	outIface, ok := d.ifaces.ByName(route.Iface)
	if !ok {
		d.drop("route_to_unknown_iface")
		return
	}
	d.sendIPv4(outIface.Addr, dst, swrouter.IPProtoICMP, icmpBytes, true)
}

// sendIPv4 wraps payload in a freshly built IPv4 header and hands it to
// routeAndSend.
func (d *Dispatcher) sendIPv4(src, dst netip.Addr, proto swrouter.IPProto, payload []byte, isErrorResponse bool) {
	buf := make([]byte, ipv4.HeaderLength+len(payload))
	ifrm, _ := ipv4.NewFrame(buf)
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetToS(0)
	ifrm.SetTotalLength(uint16(len(buf)))
	ifrm.SetID(0)
	ifrm.SetFlags(0x4000) // DF set: the router never fragments its own ICMP messages
	ifrm.SetTTL(64)
	ifrm.SetProtocol(proto)
	*ifrm.SourceAddr() = src.As4()
	*ifrm.DestinationAddr() = dst.As4()
	copy(ifrm.Payload(), payload)
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	route, ok := d.routes.Lookup(dst)
	if !ok {
		d.drop("no_route_for_icmp_reply")
		return
	}
	d.routeAndSend(route, buf, isErrorResponse)
}
