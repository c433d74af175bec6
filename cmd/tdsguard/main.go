// Command tdsguard runs the TDS inspection proxy: it accepts client
// connections, relays them to the configured SQL Server upstream, and
// evaluates every SQL Batch and RPC Request against the rule catalog
// in flight.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/sqlumai/tdsguard/internal/admin"
	"github.com/sqlumai/tdsguard/internal/config"
	"github.com/sqlumai/tdsguard/internal/decisionlog"
	"github.com/sqlumai/tdsguard/internal/logx"
	"github.com/sqlumai/tdsguard/internal/metrics"
	"github.com/sqlumai/tdsguard/internal/policy"
	"github.com/sqlumai/tdsguard/internal/proxy"
	"github.com/sqlumai/tdsguard/internal/ratelimit"
	"github.com/sqlumai/tdsguard/internal/rpccodec"
)

func main() {
	debug.SetTraceback("all")

	lg := logx.New(os.Stderr)
	lg.SetLevel(logx.Info)

	cfg, err := config.Load()
	if err != nil {
		lg.Error("failed to load configuration", logx.KVErr(err))
		os.Exit(1)
	}

	rules, err := policy.NewWatcher(cfg.RulesPath, cfg.RulesWatch, lg)
	if err != nil {
		lg.Error("failed to load rules", logx.KVErr(err))
		os.Exit(1)
	}
	defer rules.Close()

	sink, err := decisionlog.Open(cfg.DecisionLogPath, cfg.DecisionLogMaxBytes, lg)
	if err != nil {
		lg.Error("failed to open decision log", logx.KVErr(err))
		os.Exit(1)
	}
	defer sink.Close()

	counters := metrics.NewCounters()

	var types rpccodec.TypeResolver
	if cfg.RPCParamTypesPath != "" {
		fr, err := rpccodec.LoadFileResolver(cfg.RPCParamTypesPath)
		if err != nil {
			lg.Warn("failed to load RPC param types file, repack builder disabled", logx.KVErr(err))
		} else {
			types = fr
		}
	}

	deps := proxy.Deps{
		Cfg:      cfg,
		Rules:    rules,
		Counters: counters,
		Sink:     sink,
		Log:      lg,
		Types:    types,
	}

	governor := ratelimit.NewAcceptGovernor(0, 0)
	server, err := proxy.NewServer(deps, governor)
	if err != nil {
		lg.Error("failed to bind listener", logx.KVErr(err))
		os.Exit(1)
	}

	adminSrv := admin.New(counters)
	httpSrv := &http.Server{Addr: cfg.MetricsListenAddr, Handler: adminSrv.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Error("admin server exited", logx.KVErr(err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lg.Info("tdsguard listening", logx.KV("addr", server.Addr().String()), logx.KV("upstream", cfg.UpstreamAddr()))

	go func() {
		<-ctx.Done()
		server.Close()
		httpSrv.Close()
	}()

	if err := server.Serve(ctx); err != nil {
		lg.Error("proxy server exited with error", logx.KVErr(err))
		os.Exit(1)
	}
}
