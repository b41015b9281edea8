package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/coop-relay/internal/config"
	"github.com/DoyleJ11/coop-relay/internal/httpapi"
	"github.com/DoyleJ11/coop-relay/internal/logging"
	"github.com/DoyleJ11/coop-relay/internal/netinfo"
	"github.com/DoyleJ11/coop-relay/internal/relay"
	"github.com/DoyleJ11/coop-relay/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info := httpapi.ServerInfo{
		IP:     netinfo.Resolve(cfg.AdvertiseIP),
		Port:   cfg.HTTPPort,
		WSPort: cfg.WSPort,
	}

	g, gctx := errgroup.WithContext(ctx)
	rl := relay.New(gctx, log.Named("relay"))

	wsOpts := ws.Options{
		OriginPatterns: cfg.OriginPatterns,
		ReadLimit:      cfg.MaxMessage,
		OutboxSize:     cfg.OutboxSize,
	}
	relaySrv := &http.Server{
		Addr:              cfg.WSAddr(),
		Handler:           httpapi.SetupRelayRoutes(rl, wsOpts, log.Named("ws")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	pageSrv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           httpapi.SetupRoutes(info, cfg.StaticDir, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	for _, srv := range []*http.Server{relaySrv, pageSrv} {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()

		err := multierr.Combine(
			relaySrv.Shutdown(sctx),
			pageSrv.Shutdown(sctx),
		)
		select {
		case <-rl.Done():
		case <-sctx.Done():
			err = multierr.Append(err, errors.New("relay did not stop before grace period"))
		}
		return err
	})

	log.Info("coop relay started",
		zap.String("join_url", info.JoinURL()),
		zap.String("http_addr", cfg.HTTPAddr()),
		zap.String("ws_addr", cfg.WSAddr()),
		zap.String("ws_url", fmt.Sprintf("ws://%s:%d", info.IP, info.WSPort)),
	)

	return g.Wait()
}
