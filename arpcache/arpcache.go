// Package arpcache implements the router's ARP resolution subsystem: a
// thread-safe IP→MAC mapping, a pending-request queue keyed by target
// IP, and a sweeper goroutine driving the retry/expiry state machine. It
// is built as a monitor exposing a handful of narrow operations —
// Lookup, Insert, Queue — rather than a struct any caller can reach into
// directly, keeping the concurrency-bearing core isolated from routing
// and ICMP policy decisions made elsewhere.
package arpcache

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/netstacklab/swrouter/arp"
	"github.com/netstacklab/swrouter/ethernet"
	"github.com/netstacklab/swrouter/ifacetable"
	"github.com/netstacklab/swrouter/internal"
	"github.com/netstacklab/swrouter/linklayer"
	"github.com/netstacklab/swrouter/metrics"
)

const (
	maxAttempts = 5
	maxQueueLen = 100              // packets held per pending target IP
	entryTTL    = 15 * time.Second // ARP entry lifetime
	retryPeriod = time.Second      // resolver loop cadence
)

// QueuedPacket is a frame held by a pending ARP request, waiting for the
// target IP to resolve. Frame is a complete Ethernet frame with the
// destination hardware address still zeroed; SourceIP and Quote are
// carried along purely so a failed resolution can be reported back to
// the original sender as an ICMP host-unreachable message.
type QueuedPacket struct {
	Frame    []byte
	SourceIP netip.Addr
	Quote    []byte

	// IsErrorResponse marks a packet that is itself an ICMP error message
	// the router composed (time-exceeded or destination-unreachable).
	// Carried through to FailedPacket so the dispatcher can refuse to
	// generate a second ICMP error if this one's ARP resolution also
	// fails.
	IsErrorResponse bool
}

// FailedPacket describes one packet whose ARP resolution exhausted all
// five attempts; the caller (the router dispatcher, which owns the
// routing table and the ICMP builders) is responsible for turning this
// into an actual ICMP destination-unreachable message, keeping this
// package a narrow cache monitor rather than one that also knows how to
// compose ICMP messages.
type FailedPacket struct {
	Iface           string
	SourceIP        netip.Addr
	Quote           []byte
	IsErrorResponse bool
}

type cacheEntry struct {
	mac        [6]byte
	insertedAt time.Time
	valid      bool
}

type pendingRequest struct {
	iface     string
	sentCount int
	lastSent  time.Time
	queue     []QueuedPacket
}

// Cache is the ARP entry table plus the pending-request queue. Use New
// to construct one; the zero value is not usable.
type Cache struct {
	mu      sync.Mutex
	entries map[netip.Addr]cacheEntry
	pending map[netip.Addr]*pendingRequest

	clock     clockwork.Clock
	ifaces    *ifacetable.Table
	tx        linklayer.Transmitter
	metrics   *metrics.Registry
	onFailure func(FailedPacket)
	log       *slog.Logger
}

// New constructs a Cache and starts its sweeper goroutine, stopped when
// ctx is cancelled. onFailure is invoked once per queued packet whose
// request exhausted all five attempts; it must not block for long, as
// it runs synchronously within the sweeper's loop (but after the cache
// lock has been released). A nil log falls back to slog.Default().
func New(ctx context.Context, clock clockwork.Clock, ifaces *ifacetable.Table, tx linklayer.Transmitter, reg *metrics.Registry, onFailure func(FailedPacket), log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	c := &Cache{
		entries:   make(map[netip.Addr]cacheEntry),
		pending:   make(map[netip.Addr]*pendingRequest),
		clock:     clock,
		ifaces:    ifaces,
		tx:        tx,
		metrics:   reg,
		onFailure: onFailure,
		log:       log,
	}
	go c.runSweeper(ctx)
	return c
}

// Lookup returns the MAC address cached for ip, if a valid, unexpired
// entry exists.
func (c *Cache) Lookup(ip netip.Addr) (mac [6]byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[ip]
	if !found || !e.valid || c.clock.Now().Sub(e.insertedAt) >= entryTTL {
		return mac, false
	}
	return e.mac, true
}

// Insert records a learned IP→MAC mapping (from a received ARP reply;
// the dispatcher does not cache the sender of an ARP request) and flushes any
// packets queued on a matching pending request, filling in the now-known
// destination hardware address before transmitting them. The cache lock
// is released before any frame is sent.
func (c *Cache) Insert(ip netip.Addr, mac [6]byte) {
	c.mu.Lock()
	c.entries[ip] = cacheEntry{mac: mac, insertedAt: c.clock.Now(), valid: true}
	req, ok := c.pending[ip]
	var toSend []queuedFrame
	if ok {
		for _, pkt := range req.queue {
			copy(pkt.Frame[0:6], mac[:])
			toSend = append(toSend, queuedFrame{iface: req.iface, frame: pkt.Frame})
		}
		delete(c.pending, ip)
		if c.metrics != nil {
			c.metrics.ARPResolutions.Inc()
		}
	}
	c.mu.Unlock()

	resolvedIP := ip.As4()
	for _, f := range toSend {
		if err := c.tx.SendFrame(f.iface, f.frame); err != nil {
			mac := [6]byte(f.frame[0:6])
			c.log.Warn("failed to flush queued frame after ARP resolution",
				internal.SlogAddr6("dst_mac", &mac), internal.SlogAddr4("resolved_ip", &resolvedIP),
				"iface", f.iface, "error", err)
		}
	}
}

// Queue enqueues pkt on the pending request for targetIP, creating one
// if none exists yet. If the request's queue is already at its 100-packet
// bound, the oldest queued packet is dropped and counted in the
// ARPQueueOverflow metric.
func (c *Cache) Queue(iface string, targetIP netip.Addr, pkt QueuedPacket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[targetIP]
	if !ok {
		req = &pendingRequest{iface: iface}
		c.pending[targetIP] = req
	}
	if len(req.queue) >= maxQueueLen {
		req.queue = req.queue[1:]
		if c.metrics != nil {
			c.metrics.ARPQueueOverflow.Inc()
		}
	}
	req.queue = append(req.queue, pkt)
}

type queuedFrame struct {
	iface string
	frame []byte
	// target is set for an ARP request frame built by buildRequestFrame,
	// so a send failure can be logged against the IP being resolved. It
	// is the zero address for frames flushed out of the pending queue,
	// which already carry their own destination in frame's MAC header.
	target netip.Addr
}

func (c *Cache) runSweeper(ctx context.Context) {
	ticker := c.clock.NewTicker(retryPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.sweep()
		}
	}
}

// sweep runs one pass of the resolver loop and the entry expiry check,
// collecting I/O to perform after the lock is released.
func (c *Cache) sweep() {
	now := c.clock.Now()

	c.mu.Lock()
	for ip, e := range c.entries {
		if e.valid && now.Sub(e.insertedAt) >= entryTTL {
			e.valid = false
			c.entries[ip] = e
		}
	}

	var toSend []queuedFrame
	var toFail []FailedPacket
	for ip, req := range c.pending {
		if !req.lastSent.IsZero() && now.Sub(req.lastSent) < retryPeriod {
			continue
		}
		if req.sentCount >= maxAttempts {
			for _, pkt := range req.queue {
				toFail = append(toFail, FailedPacket{Iface: req.iface, SourceIP: pkt.SourceIP, Quote: pkt.Quote, IsErrorResponse: pkt.IsErrorResponse})
			}
			delete(c.pending, ip)
			if c.metrics != nil {
				c.metrics.ARPTimeouts.Inc()
			}
			continue
		}
		if frame, ok := c.buildRequestFrame(req.iface, ip); ok {
			toSend = append(toSend, queuedFrame{iface: req.iface, frame: frame, target: ip})
		}
		req.sentCount++
		req.lastSent = now
		if c.metrics != nil {
			c.metrics.ARPRequestsSent.Inc()
		}
	}
	c.mu.Unlock()

	for _, f := range toSend {
		if err := c.tx.SendFrame(f.iface, f.frame); err != nil {
			if f.target.Is4() {
				target := f.target.As4()
				c.log.Warn("failed to send ARP request", internal.SlogAddr4("target_ip", &target),
					"iface", f.iface, "error", err)
				continue
			}
			c.log.Warn("failed to send ARP request", "iface", f.iface, "error", err)
		}
	}
	for _, f := range toFail {
		c.onFailure(f)
	}
}

// buildRequestFrame composes a broadcast ARP request for targetIP,
// sourced from the outgoing interface's own hardware and protocol
// addresses.
func (c *Cache) buildRequestFrame(iface string, targetIP netip.Addr) ([]byte, bool) {
	ifc, ok := c.ifaces.ByName(iface)
	if !ok {
		return nil, false
	}
	buf := make([]byte, ethernet.HeaderLength+28)
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return nil, false
	}
	efrm.SetDestinationHardwareAddr(ethernet.BroadcastAddr())
	efrm.SetSourceHardwareAddr(ifc.HW)
	efrm.SetEtherType(ethernet.TypeARP)

	afrm, err := arp.NewFrame(buf[ethernet.HeaderLength:])
	if err != nil {
		return nil, false
	}
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(arp.OpRequest)
	senderHW, senderProto := afrm.Sender4()
	*senderHW = ifc.HW
	*senderProto = ifc.Addr.As4()
	_, targetProto := afrm.Target4()
	*targetProto = targetIP.As4()
	return buf, true
}
