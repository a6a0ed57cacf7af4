// Command arpd answers ARP on a network interface: it serves the
// interface's own address, optionally proxy-ARPs for routed prefixes, and
// can probe a neighbor address. It is also the end-to-end exercise of the
// arp.Handler against a real link.
//
// Requires CAP_NET_RAW. Linux only.
package main

import (
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mdlayher/packet"
	"golang.org/x/sys/unix"

	"github.com/netstax/etharp/arp"
	"github.com/netstax/etharp/ethernet"
	"github.com/netstax/etharp/stat"
)

func main() {
	var (
		ifaceFlag   = flag.String("i", "eth0", "network interface to serve ARP on")
		proxyFlag   = flag.String("proxy", "", "comma-separated prefixes to proxy-ARP for, e.g. 10.0.1.0/24,10.0.2.5")
		resolveFlag = flag.String("resolve", "", "resolve one IPv4 address, print its MAC and exit")
		flushFlag   = flag.Duration("flush", arp.DefaultFlushInterval, "cache entry lifetime")
		statsFlag   = flag.Duration("stats", 0, "interval between counter dumps, 0 disables")
		verboseFlag = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ifi, err := net.InterfaceByName(*ifaceFlag)
	if err != nil {
		fatal(logger, "interface lookup", err)
	}
	if len(ifi.HardwareAddr) != 6 {
		fatal(logger, "interface", errors.New("not an Ethernet-class interface"))
	}
	mac := [6]byte(ifi.HardwareAddr)
	localIP, err := firstIPv4Addr(ifi)
	if err != nil {
		fatal(logger, "interface address", err)
	}

	conn, err := packet.Listen(ifi, packet.Raw, unix.ETH_P_ARP, nil)
	if err != nil {
		fatal(logger, "AF_PACKET listen", err)
	}
	defer conn.Close()

	reg := new(stat.Registry)
	h, err := arp.NewHandler(arp.Config{
		HardwareAddr:  mac,
		ProtocolAddr:  func() [4]byte { return localIP },
		Output:        linkOutput(conn, mac, logger),
		Interface:     ifi.Name,
		FlushInterval: *flushFlag,
		Proxy:         proxyPredicate(*proxyFlag, logger),
		Stats:         reg,
		Log:           logger,
	})
	if err != nil {
		fatal(logger, "arp handler", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		h.Close()
		dumpCounters(logger, reg)
		os.Exit(0)
	}()
	if *statsFlag > 0 {
		go func() {
			for range time.Tick(*statsFlag) {
				dumpCounters(logger, reg)
			}
		}()
	}
	if *resolveFlag != "" {
		target, err := netip.ParseAddr(*resolveFlag)
		if err != nil || !target.Is4() {
			fatal(logger, "resolve target", errors.New("not an IPv4 address"))
		}
		go probe(h, target.As4(), logger)
	}

	logger.Info("arpd up",
		slog.String("iface", ifi.Name),
		slog.String("mac", net.HardwareAddr(mac[:]).String()),
		slog.String("ip", netip.AddrFrom4(localIP).String()))

	buf := make([]byte, 1514)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			fatal(logger, "read", err)
		}
		efrm, err := ethernet.NewFrame(buf[:n])
		if err != nil {
			continue
		}
		if !efrm.IsBroadcast() && *efrm.DestinationHardwareAddr() != mac {
			continue
		}
		if efrm.EtherTypeOrSize() != ethernet.TypeARP {
			continue
		}
		h.Recv(efrm.Payload())
	}
}

// linkOutput prepends the Ethernet header the Handler leaves to the link
// layer and writes the frame to the AF_PACKET socket.
func linkOutput(conn *packet.Conn, src [6]byte, logger *slog.Logger) arp.Output {
	return func(pkt *arp.Packet, dst [6]byte, etype ethernet.Type) {
		frame := make([]byte, 14+len(pkt.Data))
		efrm, err := ethernet.NewFrame(frame)
		if err != nil {
			return
		}
		*efrm.DestinationHardwareAddr() = dst
		*efrm.SourceHardwareAddr() = src
		efrm.SetEtherType(etype)
		copy(efrm.Payload(), pkt.Data)
		_, err = conn.WriteTo(frame, &packet.Addr{HardwareAddr: net.HardwareAddr(dst[:])})
		if err != nil {
			logger.Error("link write", slog.String("err", err.Error()))
		}
	}
}

// proxyPredicate parses the -proxy flag into a membership test, or nil
// when no prefixes were given.
func proxyPredicate(s string, logger *slog.Logger) func([4]byte) bool {
	if s == "" {
		return nil
	}
	var prefixes []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		p, err := netip.ParsePrefix(part)
		if err != nil {
			addr, err2 := netip.ParseAddr(part)
			if err2 != nil || !addr.Is4() {
				fatal(logger, "proxy prefix "+part, err)
			}
			p = netip.PrefixFrom(addr, 32)
		}
		if !p.Addr().Is4() {
			fatal(logger, "proxy prefix "+part, errors.New("not IPv4"))
		}
		prefixes = append(prefixes, p)
	}
	return func(target [4]byte) bool {
		addr := netip.AddrFrom4(target)
		for _, p := range prefixes {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}
}

// probe resolves one address with a short retry budget, prints the result
// and exits the process.
func probe(h *arp.Handler, target [4]byte, logger *slog.Logger) {
	for attempt := 0; attempt < 5; attempt++ {
		h.Resolve(target)
		time.Sleep(arp.DefaultRetryInterval)
		if mac, ok := h.Lookup(target); ok {
			logger.Info("resolved",
				slog.String("ip", netip.AddrFrom4(target).String()),
				slog.String("mac", net.HardwareAddr(mac[:]).String()))
			os.Exit(0)
		}
	}
	logger.Error("no reply", slog.String("ip", netip.AddrFrom4(target).String()))
	os.Exit(1)
}

func firstIPv4Addr(ifi *net.Interface) ([4]byte, error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return [4]byte{}, err
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipn.IP.To4(); ip4 != nil {
			return [4]byte(ip4), nil
		}
	}
	return [4]byte{}, errors.New("no IPv4 address on interface")
}

func dumpCounters(logger *slog.Logger, reg *stat.Registry) {
	snap := reg.Snapshot()
	for _, name := range reg.Names() {
		logger.Info("counter", slog.String("name", name), slog.Uint64("value", uint64(snap[name])))
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("err", err.Error()))
	os.Exit(1)
}
