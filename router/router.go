// Package router implements the dispatcher: the single entry point that
// classifies inbound Ethernet frames and drives the IPv4/ARP/ICMP state
// machine. It owns no long-lived state of its own beyond the tables and
// cache it borrows a pointer to, and runs concurrently from one goroutine
// per attached interface.
package router

import (
	"log/slog"
	"net/netip"

	"github.com/netstacklab/swrouter"
	"github.com/netstacklab/swrouter/arp"
	"github.com/netstacklab/swrouter/arpcache"
	"github.com/netstacklab/swrouter/ethernet"
	"github.com/netstacklab/swrouter/ifacetable"
	"github.com/netstacklab/swrouter/ipv4"
	"github.com/netstacklab/swrouter/ipv4/icmpv4"
	"github.com/netstacklab/swrouter/linklayer"
	"github.com/netstacklab/swrouter/metrics"
	"github.com/netstacklab/swrouter/routetable"
)

// hardwareTypeEthernet is the ARP htype value for Ethernet, the only
// link layer this router speaks.
const hardwareTypeEthernet = 1

// Dispatcher is the router's packet-processing core. Construct with
// New; OnFrame is safe to call concurrently from multiple goroutines.
type Dispatcher struct {
	ifaces  *ifacetable.Table
	routes  *routetable.Table
	cache   *arpcache.Cache
	tx      linklayer.Transmitter
	metrics *metrics.Registry
	log     *slog.Logger
}

// New wires together a Dispatcher and the ARP cache it drives. cacheCtor
// is called with the dispatcher's own ARP-timeout handler so the caller
// can construct the arpcache.Cache (which needs a clock and a
// transmitter that New does not itself own) and hand it back.
func New(ifaces *ifacetable.Table, routes *routetable.Table, tx linklayer.Transmitter, reg *metrics.Registry, log *slog.Logger, cacheCtor func(onFailure func(arpcache.FailedPacket)) *arpcache.Cache) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{ifaces: ifaces, routes: routes, tx: tx, metrics: reg, log: log}
	d.cache = cacheCtor(d.onARPFailure)
	return d
}

// OnFrame is the link layer's entry point: iface is the name of the
// interface b arrived on. b is borrowed and must not be retained past
// this call; every branch below either drops it or copies what it needs
// into a freshly allocated outbound buffer.
func (d *Dispatcher) OnFrame(iface string, b []byte) {
	if len(b) < ethernet.HeaderLength {
		d.drop("short_frame")
		return
	}
	if _, ok := d.ifaces.ByName(iface); !ok {
		d.drop("unknown_interface")
		return
	}
	efrm, err := ethernet.NewFrame(b)
	if err != nil {
		d.drop("short_frame")
		return
	}
	switch efrm.EtherType() {
	case ethernet.TypeARP:
		d.handleARP(iface, efrm)
	case ethernet.TypeIPv4:
		d.handleIPv4(iface, efrm)
	default:
		d.drop("unknown_ethertype")
	}
}

func (d *Dispatcher) drop(reason string) {
	if d.metrics != nil {
		d.metrics.FramesDropped.WithLabelValues(reason).Inc()
	}
}

func (d *Dispatcher) send(iface string, frame []byte) {
	if err := d.tx.SendFrame(iface, frame); err != nil {
		d.log.Warn("link transmit failed", "iface", iface, "len", len(frame), "error", err)
	}
}

// handleARP classifies a received ARP packet: requests addressed to one
// of the router's own IPs get a unicast reply, replies update the ARP
// cache, anything else is silently dropped.
func (d *Dispatcher) handleARP(iface string, efrm ethernet.Frame) {
	afrm, err := arp.NewFrame(efrm.Payload())
	if err != nil {
		d.drop("short_arp")
		return
	}
	var v swrouter.Validator
	afrm.ValidateSize(&v)
	if v.HasError() {
		d.drop("short_arp")
		return
	}
	htype, _ := afrm.Hardware()
	if htype != hardwareTypeEthernet {
		d.drop("bad_arp_hardware")
		return
	}

	switch afrm.Operation() {
	case arp.OpRequest:
		_, targetProto := afrm.Target4()
		targetIP := netip.AddrFrom4(*targetProto)
		ifc, ok := d.ifaces.ByIP(targetIP)
		if !ok {
			return // not asking about us
		}
		senderHW, senderProto := afrm.Sender4()
		d.sendARPReply(iface, ifc, *senderHW, *senderProto)

	case arp.OpReply:
		senderHW, senderProto := afrm.Sender4()
		ip := netip.AddrFrom4(*senderProto)
		d.cache.Insert(ip, *senderHW)

	default:
		d.drop("bad_arp_opcode")
	}
}

func (d *Dispatcher) sendARPReply(iface string, ifc ifacetable.Interface, askerHW [6]byte, askerIP [4]byte) {
	buf := make([]byte, ethernet.HeaderLength+28)
	efrm, _ := ethernet.NewFrame(buf)
	efrm.SetDestinationHardwareAddr(askerHW)
	efrm.SetSourceHardwareAddr(ifc.HW)
	efrm.SetEtherType(ethernet.TypeARP)

	afrm, _ := arp.NewFrame(buf[ethernet.HeaderLength:])
	afrm.SetHardware(hardwareTypeEthernet, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(arp.OpReply)
	senderHW, senderProto := afrm.Sender4()
	*senderHW = ifc.HW
	*senderProto = ifc.Addr.As4()
	targetHW, targetProto := afrm.Target4()
	*targetHW = askerHW
	*targetProto = askerIP

	d.send(iface, buf)
}

// handleIPv4 runs a received IPv4 datagram through TTL expiry, local
// delivery, and forwarding in turn.
func (d *Dispatcher) handleIPv4(iface string, efrm ethernet.Frame) {
	payload := efrm.Payload()
	ifrm, err := ipv4.NewFrame(payload)
	if err != nil {
		d.drop("short_ip")
		return
	}
	var v swrouter.Validator
	ifrm.ValidateExceptCRC(&v)
	if v.HasError() {
		d.drop("bad_ip_header")
		return
	}
	if !ifrm.ValidateCRC() {
		d.drop("bad_ip_checksum")
		return
	}

	datagram := payload[:ifrm.TotalLength()]
	ifrm, _ = ipv4.NewFrame(datagram)
	srcIP := netip.AddrFrom4(*ifrm.SourceAddr())
	dstIP := netip.AddrFrom4(*ifrm.DestinationAddr())
	quote := quoteOf(ifrm, datagram)
	allowICMP := ifrm.Flags().IsInitialFragment() && !isBroadcastOrMulticast(dstIP) && !isICMPError(ifrm.Protocol(), ifrm.Payload())

	if ifrm.TTL() <= 1 {
		if allowICMP {
			d.emitTimeExceeded(srcIP, quote)
		}
		return
	}

	if ifc, ok := d.ifaces.ByIP(dstIP); ok {
		if ifrm.Protocol() == swrouter.IPProtoICMP {
			icfrm, err := icmpv4.NewFrameEcho(ifrm.Payload())
			if err == nil && icfrm.Type() == icmpv4.TypeEcho && icfrm.ValidateCRC() {
				d.emitEchoReply(ifc, srcIP, icfrm)
				return
			}
		}
		if allowICMP {
			d.emitDestUnreachable(srcIP, icmpv4.CodePortUnreachable, quote)
		}
		return
	}

	route, ok := d.routes.Lookup(dstIP)
	if !ok {
		if allowICMP {
			d.emitDestUnreachable(srcIP, icmpv4.CodeNetUnreachable, quote)
		}
		return
	}

	out := append([]byte(nil), datagram...)
	outFrm, _ := ipv4.NewFrame(out)
	newTTL := outFrm.TTL() - 1
	if newTTL == 0 {
		if allowICMP {
			d.emitTimeExceeded(srcIP, quote)
		}
		return
	}
	outFrm.SetTTL(newTTL)
	outFrm.SetCRC(0)
	outFrm.SetCRC(outFrm.CalculateHeaderCRC())

	d.routeAndSend(route, out, false)
	_ = iface // the receiving interface plays no further part once routed
}

// routeAndSend builds the outbound Ethernet frame around ipPacket and
// either transmits it immediately (ARP cache hit) or queues it pending
// resolution. Shared by ordinary forwarding and by ICMP messages the
// router itself originates.
func (d *Dispatcher) routeAndSend(route routetable.Route, ipPacket []byte, isErrorResponse bool) {
	outIface, ok := d.ifaces.ByName(route.Iface)
	if !ok {
		d.drop("route_to_unknown_iface")
		return
	}
	dstIP := netip.AddrFrom4(*mustIPv4(ipPacket).DestinationAddr())
	nextHop := route.Gateway
	if !nextHop.IsValid() {
		nextHop = dstIP
	}

	frame := make([]byte, ethernet.HeaderLength+len(ipPacket))
	copy(frame[ethernet.HeaderLength:], ipPacket)
	efrm, _ := ethernet.NewFrame(frame)
	efrm.SetSourceHardwareAddr(outIface.HW)
	efrm.SetEtherType(ethernet.TypeIPv4)

	if mac, ok := d.cache.Lookup(nextHop); ok {
		efrm.SetDestinationHardwareAddr(mac)
		d.send(route.Iface, frame)
		if d.metrics != nil {
			d.metrics.PacketsForwarded.Inc()
		}
		return
	}

	ifrm := mustIPv4(ipPacket)
	d.cache.Queue(route.Iface, nextHop, arpcache.QueuedPacket{
		Frame:           frame,
		SourceIP:        netip.AddrFrom4(*ifrm.SourceAddr()),
		Quote:           quoteOf(ifrm, ipPacket),
		IsErrorResponse: isErrorResponse,
	})
}

func mustIPv4(b []byte) ipv4.Frame {
	frm, err := ipv4.NewFrame(b)
	if err != nil {
		panic("router: internally built IP packet shorter than header: " + err.Error())
	}
	return frm
}

// quoteOf returns the first min(ihl*4+8, 28, len(datagram)) bytes of the
// offending datagram, the ICMP quote area.
func quoteOf(ifrm ipv4.Frame, datagram []byte) []byte {
	n := ifrm.HeaderLength() + 8
	if n > 28 {
		n = 28
	}
	if n > len(datagram) {
		n = len(datagram)
	}
	return append([]byte(nil), datagram[:n]...)
}

func isBroadcastOrMulticast(ip netip.Addr) bool {
	if !ip.Is4() {
		return true
	}
	b := ip.As4()
	if b == [4]byte{255, 255, 255, 255} {
		return true
	}
	return b[0] >= 224 && b[0] <= 239
}

// isICMPError reports whether a datagram is itself an ICMP error
// message (destination-unreachable or time-exceeded); the router never
// generates a new ICMP error in response to one.
func isICMPError(proto swrouter.IPProto, icmpPayload []byte) bool {
	if proto != swrouter.IPProtoICMP || len(icmpPayload) < 1 {
		return false
	}
	switch icmpv4.Type(icmpPayload[0]) {
	case icmpv4.TypeDestinationUnreachable, icmpv4.TypeTimeExceeded:
		return true
	}
	return false
}
