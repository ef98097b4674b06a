package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netstacklab/swrouter/arpcache"
	"github.com/netstacklab/swrouter/config"
	"github.com/netstacklab/swrouter/ifacetable"
	"github.com/netstacklab/swrouter/linklayer"
	"github.com/netstacklab/swrouter/metrics"
	"github.com/netstacklab/swrouter/router"
)

// serve loads configPath, wires the forwarding plane together, and blocks
// until ctx is cancelled (SIGINT/SIGTERM) or a fatal setup error occurs.
func serve(ctx context.Context, log *slog.Logger, configPath, metricsAddr string, sim bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ifaces, err := buildIfaceTable(cfg)
	if err != nil {
		return fmt.Errorf("interfaces: %w", err)
	}
	routes, err := buildRouteTable(cfg)
	if err != nil {
		return fmt.Errorf("routes: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mux, rxTable, closeLink, err := selectLinkLayer(ifaces, sim)
	if err != nil {
		return err
	}
	defer closeLink()

	if metricsAddr != "" {
		if err := serveMetrics(ctx, log, metricsAddr, reg); err != nil {
			return err
		}
	}

	d := router.New(ifaces, routes, mux, m, log, func(onFailure func(arpcache.FailedPacket)) *arpcache.Cache {
		return arpcache.New(ctx, clockwork.NewRealClock(), ifaces, mux, m, onFailure, log)
	})

	for _, ifc := range ifaces.List() {
		r, ok := rxTable[ifc.Name]
		if !ok {
			continue
		}
		name := ifc.Name
		go func() {
			if err := r.ReadLoop(d.OnFrame); err != nil {
				log.Warn("interface read loop exited", "iface", name, "error", err)
			}
		}()
	}

	log.Info("swrouter started", "interfaces", len(ifaces.List()), "sim", sim, "metrics_addr", metricsAddr)
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// selectLinkLayer picks the real raw-socket link layer, or the
// in-memory simulated one when sim is set.
func selectLinkLayer(ifaces *ifacetable.Table, sim bool) (linklayer.Multi, map[string]linklayer.Receiver, func(), error) {
	if sim {
		return openSimInterfaces(ifaces)
	}
	return openInterfaces(ifaces)
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string, reg *prometheus.Registry) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server exited", "error", err)
		}
	}()
	log.Info("serving prometheus metrics", "addr", listener.Addr().String())
	return nil
}
