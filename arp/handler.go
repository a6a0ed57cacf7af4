// Package arp implements the Address Resolution Protocol for an IPv4
// network stack attached to a single Ethernet-class link: it maps the IPv4
// addresses of on-link hosts to their hardware addresses, answers queries
// for the local host (and, optionally, for proxied hosts), caches learned
// bindings with a uniform lifetime and queues outbound frames while a
// resolution is in flight.
package arp

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netstax/etharp"
	"github.com/netstax/etharp/ethernet"
	"github.com/netstax/etharp/internal"
	"github.com/netstax/etharp/stat"
)

// Default cadence of the cache sweeper and the resolver retry loop.
const (
	DefaultFlushInterval = 5 * time.Minute
	DefaultRetryInterval = 1 * time.Second
)

// Output is the link-layer sink. The Handler hands over ownership of pkt;
// the sink prepends the Ethernet header addressed to dst with the given
// EtherType and transmits synchronously. Output runs with the Handler's
// lock held and must not call back into the Handler.
type Output func(pkt *Packet, dst [6]byte, etype ethernet.Type)

// Config parameterizes a Handler. HardwareAddr, ProtocolAddr and Output
// are required; every other field has a usable zero value.
type Config struct {
	// HardwareAddr is the fixed link address, captured once.
	HardwareAddr [6]byte
	// ProtocolAddr reports the current local IPv4 address. It is read
	// fresh on every use so the host may renumber the interface, and it
	// runs on the receive path so it must be fast.
	ProtocolAddr func() [4]byte
	// Output is the link-layer sink for ARP frames and resolved
	// datagrams alike.
	Output Output

	// Interface scopes counter names, e.g. "eth0.arp.requests_rx".
	Interface string
	// FlushInterval is the maximum age of a cache entry and the sweeper
	// cadence. Defaults to [DefaultFlushInterval].
	FlushInterval time.Duration
	// RetryInterval is the resolver sweep cadence. Defaults to
	// [DefaultRetryInterval].
	RetryInterval time.Duration

	// Proxy, when non-nil, is consulted for requests whose target is not
	// the local address; returning true makes the Handler answer on the
	// target's behalf with its own hardware address (proxy ARP). Must be
	// pure and fast; it runs on the receive path.
	Proxy func(target [4]byte) bool
	// PassthroughMAC, when non-nil, bypasses the cache and resolver
	// entirely: every non-broadcast transmit goes to this address. The
	// pending queue and retry timer stay quiescent. Intended for test
	// and bridging setups.
	PassthroughMAC *[6]byte

	// ResolveAttempts caps how many requests are emitted per pending
	// address before its queued packets are dropped. Zero retries
	// forever, which matches what peers on the wire expect; bound it
	// only when the host imposes its own delivery deadline.
	ResolveAttempts int
	// OnUnresolved receives the dropped packet chain when
	// ResolveAttempts is exceeded, e.g. to emit ICMP unreachable.
	// Runs with the Handler's lock held; must not call back in.
	OnUnresolved func(ip [4]byte, chain *Packet)

	// AllocPacket supplies outbound frame buffers of at least the given
	// size. Nil allocates from the heap.
	AllocPacket func(size int) *Packet
	// Timers creates the sweeper and retry timers. Nil uses
	// [SystemTimer].
	Timers TimerFactory
	// Stats is the counter registry. Nil keeps counters private to the
	// Handler.
	Stats *stat.Registry

	// Log enables structured logging. Nil disables it.
	Log *slog.Logger
}

// Handler is the per-interface ARP module. It owns the address cache and
// the pending-transmit queue, drives their timers and serializes all entry
// points (receive, transmit, timer fires) on an internal lock, so a single
// Handler may be shared by the receive and transmit paths of the host
// stack. The zero value is unusable; call [Handler.Reset] first.
type Handler struct {
	mu  sync.Mutex
	vld etharp.Validator

	mac             [6]byte
	addr            func() [4]byte
	out             Output
	alloc           func(int) *Packet
	proxy           func([4]byte) bool
	passthrough     *[6]byte
	onUnresolved    func([4]byte, *Packet)
	flushInterval   time.Duration
	retryInterval   time.Duration
	resolveAttempts int

	cache   map[[4]byte]cacheEntry
	pending map[[4]byte]*pendingEntry

	flushTimer Timer
	retryTimer Timer

	requestsRx *uint32
	requestsTx *uint32
	repliesRx  *uint32
	repliesTx  *uint32

	now func() time.Time
	logger
}

type cacheEntry struct {
	mac  [6]byte
	seen time.Time
}

type pendingEntry struct {
	head, tail *Packet
	attempts   int
}

// NewHandler allocates a Handler and calls Reset on it.
func NewHandler(cfg Config) (*Handler, error) {
	h := &Handler{}
	err := h.Reset(cfg)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Reset discards all Handler state and reconfigures it. A previously used
// Handler has its timers stopped and queues dropped first.
func (h *Handler) Reset(cfg Config) error {
	switch {
	case cfg.ProtocolAddr == nil:
		return errNoProtoAddr
	case cfg.Output == nil:
		return errNoOutput
	case cfg.HardwareAddr == ([6]byte{}):
		return errNoHWAddr
	case cfg.FlushInterval < 0 || cfg.RetryInterval < 0:
		return errBadIntervals
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.flushTimer != nil {
		h.flushTimer.Stop()
	}
	if h.retryTimer != nil {
		h.retryTimer.Stop()
	}

	ifname := cfg.Interface
	if ifname == "" {
		ifname = "eth0"
	}
	reg := cfg.Stats
	if reg == nil {
		reg = new(stat.Registry)
	}
	timers := cfg.Timers
	if timers == nil {
		timers = SystemTimer
	}
	alloc := cfg.AllocPacket
	if alloc == nil {
		alloc = func(size int) *Packet { return &Packet{Data: make([]byte, size)} }
	}
	flush := cfg.FlushInterval
	if flush == 0 {
		flush = DefaultFlushInterval
	}
	retry := cfg.RetryInterval
	if retry == 0 {
		retry = DefaultRetryInterval
	}

	h.mac = cfg.HardwareAddr
	h.addr = cfg.ProtocolAddr
	h.out = cfg.Output
	h.alloc = alloc
	h.proxy = cfg.Proxy
	h.passthrough = cfg.PassthroughMAC
	h.onUnresolved = cfg.OnUnresolved
	h.flushInterval = flush
	h.retryInterval = retry
	h.resolveAttempts = cfg.ResolveAttempts
	h.cache = make(map[[4]byte]cacheEntry)
	h.pending = make(map[[4]byte]*pendingEntry)
	h.flushTimer = timers(h.flushExpired)
	h.retryTimer = timers(h.resolveWaiting)
	h.requestsRx = reg.Uint32(ifname + ".arp.requests_rx")
	h.requestsTx = reg.Uint32(ifname + ".arp.requests_tx")
	h.repliesRx = reg.Uint32(ifname + ".arp.replies_rx")
	h.repliesTx = reg.Uint32(ifname + ".arp.replies_tx")
	h.now = time.Now
	h.logger = logger{log: cfg.Log}
	return nil
}

// Recv handles one inbound ARP frame, Ethernet header already stripped.
// Every valid frame teaches the cache the sender's binding and releases
// any packets queued for the sender, regardless of opcode; requests for
// the local address or a proxied one are then answered. Malformed frames
// are dropped silently.
func (h *Handler) Recv(frame []byte) {
	afrm, err := NewFrame(frame)
	if err != nil {
		h.debug("arp:recv-drop", slog.String("err", err.Error()))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vld.ResetErr()
	afrm.Validate(&h.vld)
	if h.vld.HasError() {
		h.debug("arp:recv-drop", slog.String("err", h.vld.Err().Error()))
		return
	}

	shw, sproto := afrm.Sender()
	h.learn(*sproto, *shw)

	// Someone talked; ship anything waiting on them before dispatch.
	if pe, ok := h.pending[*sproto]; ok {
		delete(h.pending, *sproto)
		if len(h.pending) == 0 {
			h.retryTimer.Stop()
		}
		h.drainTo(pe, *shw)
	}

	switch op := afrm.Operation(); op {
	case OpRequest:
		atomic.AddUint32(h.requestsRx, 1)
		_, tproto := afrm.Target()
		local := h.addr()
		switch {
		case *tproto == local:
			h.respond(afrm, local)
		case h.proxy != nil && h.proxy(*tproto):
			h.respond(afrm, *tproto)
		default:
			h.debug("arp:request-ignored", internal.Addr4("target", *tproto))
		}
	case OpReply:
		// Learning and draining above already served the reply.
		atomic.AddUint32(h.repliesRx, 1)
	default:
		h.debug("arp:unknown-op", slog.Uint64("op", uint64(op)))
	}
}

// Send transmits one IPv4 datagram to the given next hop. On a cache hit
// the packet goes straight to the link; on a miss it is queued in arrival
// order and a resolution is kicked off. Send panics if pkt carries no
// data: that is a contract violation by the caller, not a wire condition.
func (h *Handler) Send(pkt *Packet, nextHop [4]byte) {
	if pkt == nil || len(pkt.Data) == 0 {
		panic("arp: transmit of empty packet")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if nextHop == Broadcast4() {
		h.out(pkt, ethernet.BroadcastAddr(), ethernet.TypeIPv4)
		return
	}
	if h.passthrough != nil {
		h.out(pkt, *h.passthrough, ethernet.TypeIPv4)
		return
	}
	ent, ok := h.cache[nextHop]
	if !ok {
		h.await(pkt, nextHop)
		return
	}
	h.out(pkt, ent.mac, ethernet.TypeIPv4)
}

// Resolve emits a single ARP request for ip without queueing anything.
// Any answer is learned by [Handler.Recv] and observable via
// [Handler.Lookup]. Datagram transmission should use [Handler.Send], which
// resolves on demand; Resolve exists for hosts that want to warm the cache.
func (h *Handler) Resolve(ip [4]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolve(ip)
}

// SetProxy installs, replaces or (with nil) removes the proxy-ARP
// predicate. See [Config.Proxy].
func (h *Handler) SetProxy(proxy func(target [4]byte) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.proxy = proxy
}

// Lookup returns the cached hardware address for ip. It does not refresh
// the entry's age.
func (h *Handler) Lookup(ip [4]byte) ([6]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ent, ok := h.cache[ip]
	return ent.mac, ok
}

// CachedCount returns the number of cached address bindings.
func (h *Handler) CachedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cache)
}

// PendingCount returns the number of next-hop addresses with queued
// packets awaiting resolution.
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// PendingAddrs appends the addresses currently awaiting resolution to dst
// and returns the extended slice. Hosts use it to impose their own policy
// on stalled resolutions, e.g. reporting unreachable destinations.
func (h *Handler) PendingAddrs(dst [][4]byte) [][4]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ip := range h.pending {
		dst = append(dst, ip)
	}
	return dst
}

// Flush drops every cached binding and stops the sweeper. Queued packets
// and counters are unaffected.
func (h *Handler) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.cache)
	h.flushTimer.Stop()
}

// Close stops both timers and discards the cache and all queued packets.
// The Handler may be reused after another Reset.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushTimer.Stop()
	h.retryTimer.Stop()
	clear(h.cache)
	clear(h.pending)
}

// learn records ip->mac. A fresh binding for a known address replaces the
// old entry outright; a confirmation refreshes its age. The broadcast
// address and the local address are never cached.
func (h *Handler) learn(ip [4]byte, mac [6]byte) {
	if ip == Broadcast4() || ip == h.addr() {
		return
	}
	ent, ok := h.cache[ip]
	if ok {
		if ent.mac != mac {
			h.info("arp:conflict", internal.Addr4("ip", ip),
				internal.Addr6("old", ent.mac), internal.Addr6("new", mac))
		}
		h.cache[ip] = cacheEntry{mac: mac, seen: h.now()}
		return
	}
	h.cache[ip] = cacheEntry{mac: mac, seen: h.now()}
	if len(h.cache) == 1 {
		h.flushTimer.Start(h.flushInterval)
	}
	h.debug("arp:learn", internal.Addr4("ip", ip), internal.Addr6("mac", mac))
}

// drainTo hands a pending chain to the link in FIFO order.
func (h *Handler) drainTo(pe *pendingEntry, dst [6]byte) {
	pkt := pe.head
	pe.head, pe.tail = nil, nil
	for pkt != nil {
		next := pkt.next
		pkt.next = nil
		h.out(pkt, dst, ethernet.TypeIPv4)
		pkt = next
	}
}

// await queues pkt behind any packets already waiting on nextHop. The
// first packet for an address triggers an immediate resolution and arms
// the retry timer.
func (h *Handler) await(pkt *Packet, nextHop [4]byte) {
	if pe, ok := h.pending[nextHop]; ok {
		pe.tail.next = pkt
		pe.tail = pkt
		return
	}
	h.pending[nextHop] = &pendingEntry{head: pkt, tail: pkt, attempts: 1}
	h.resolve(nextHop)
	h.retryTimer.Start(h.retryInterval)
}

// resolve broadcasts one ARP request for ip.
func (h *Handler) resolve(ip [4]byte) {
	pkt := h.alloc(SizeFrame)
	pkt.Data = pkt.Data[:SizeFrame]
	afrm, _ := NewFrame(pkt.Data)
	afrm.SetEthernetIPv4()
	afrm.SetOperation(OpRequest)
	shw, sproto := afrm.Sender()
	*shw = h.mac
	*sproto = h.addr()
	thw, tproto := afrm.Target()
	*thw = [6]byte{}
	*tproto = ip
	atomic.AddUint32(h.requestsTx, 1)
	h.debug("arp:resolve", internal.Addr4("ip", ip))
	h.out(pkt, ethernet.BroadcastAddr(), ethernet.TypeARP)
}

// respond answers req claiming ackIP is at the local hardware address.
// ackIP is the local address, or the requested target when proxying.
func (h *Handler) respond(req Frame, ackIP [4]byte) {
	atomic.AddUint32(h.repliesTx, 1)
	pkt := h.alloc(SizeFrame)
	pkt.Data = pkt.Data[:SizeFrame]
	afrm, _ := NewFrame(pkt.Data)
	afrm.SetEthernetIPv4()
	afrm.SetOperation(OpReply)
	reqHW, reqProto := req.Sender()
	shw, sproto := afrm.Sender()
	*shw = h.mac
	*sproto = ackIP
	thw, tproto := afrm.Target()
	*thw = *reqHW
	*tproto = *reqProto
	h.debug("arp:respond", internal.Addr4("ip", ackIP), internal.Addr6("to", *reqHW))
	h.out(pkt, *reqHW, ethernet.TypeARP)
}

// resolveWaiting is the retry timer callback: re-request every address
// still waiting on a resolution, dropping those that exhausted their
// attempt budget, then re-arm while any remain.
func (h *Handler) resolveWaiting() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) == 0 {
		h.retryTimer.Stop()
		return
	}
	for ip, pe := range h.pending {
		if h.resolveAttempts > 0 && pe.attempts >= h.resolveAttempts {
			delete(h.pending, ip)
			h.warn("arp:unresolved", internal.Addr4("ip", ip),
				slog.Int("attempts", pe.attempts))
			if h.onUnresolved != nil {
				h.onUnresolved(ip, pe.head)
			}
			continue
		}
		pe.attempts++
		h.resolve(ip)
	}
	if len(h.pending) == 0 {
		h.retryTimer.Stop()
		return
	}
	h.retryTimer.Start(h.retryInterval)
}

// flushExpired is the sweeper callback: drop entries past the flush
// interval and re-arm only while entries remain.
func (h *Handler) flushExpired() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	for ip, ent := range h.cache {
		if now.Sub(ent.seen) >= h.flushInterval {
			delete(h.cache, ip)
		}
	}
	if len(h.cache) > 0 {
		h.flushTimer.Start(h.flushInterval)
	}
}

type logger struct {
	log *slog.Logger
}

func (l logger) error(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelError, msg, attrs...)
}
func (l logger) warn(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelWarn, msg, attrs...)
}
func (l logger) info(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...)
}
func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}
