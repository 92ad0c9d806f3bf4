// Command nxslib-dummy hosts a simulated NxScope device and exposes its wire
// protocol over TCP, the way the teacher's can-server hosts a real CAN bus
// for remote clients. Grounded on the original source's nxslib/intf/dummy.py
// (the simulated device itself) and the teacher's cmd/can-server/main.go
// (flag parsing, logger/metrics/mDNS wiring, signal-driven shutdown).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/railab/nxslib-go/internal/metrics"
	"github.com/railab/nxslib-go/internal/transport"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("nxslib-dummy %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	dev := transport.NewDummy(uint8(cfg.rxPadding))
	dev.Start()
	defer dev.Stop()
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("device_info", "chmax", dev.Device().ChMax, "rxpadding", cfg.rxPadding)

	policy := transport.PolicyDrop
	if cfg.bridgePolicy == "kick" {
		policy = transport.PolicyKick
	}
	bridge := transport.NewDummyBridge(dev, policy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	if err := bridge.Listen(cfg.listenAddr); err != nil {
		l.Error("bridge_listen_error", "error", err)
		return
	}
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- bridge.Run(ctx) }()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		portNum := addrPort(bridge.Addr())
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case err := <-serveErrCh:
		if err != nil {
			l.Error("bridge_serve_error", "error", err)
		}
	}
	cancel()
	bridge.Shutdown()
	wg.Wait()
}

// addrPort extracts the numeric port from a "host:port" listener address.
func addrPort(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if pn, err := strconv.Atoi(p); err == nil {
			return pn
		}
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if pn, err := strconv.Atoi(addr[i+1:]); err == nil {
			return pn
		}
	}
	return 0
}
