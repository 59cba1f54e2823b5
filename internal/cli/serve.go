package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/lowc1012/authguard/internal/config"
	"github.com/lowc1012/authguard/internal/log"
	"github.com/lowc1012/authguard/internal/metrics"
	"github.com/lowc1012/authguard/internal/session"
	httptransport "github.com/lowc1012/authguard/internal/transport/http"
	"github.com/lowc1012/authguard/internal/workers/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the guard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// serve is the composition root: it owns the session registry and every
// guard in it for the lifetime of the process.
func serve(ctx context.Context, cfg *config.Config) error {
	store, pinger, closeStore := openStore(cfg)
	defer func() {
		if err := closeStore(); err != nil {
			log.Logger().Warn("Failed to close flag store", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	registry := session.NewRegistry(cfg.GuardThresholds(), store,
		session.WithMetrics(m),
		session.WithSinkTimeout(cfg.Flags.WriteTimeout))

	routerCfg := httptransport.RouterConfig{
		Extractor: httptransport.NewSessionExtractor(cfg.Session.Cookie, cfg.Session.Headers...),
		Gatherer:  reg,
	}
	if pinger != nil {
		routerCfg.Health = pinger
	}
	if cfg.Upstream.URL != "" {
		target, err := url.Parse(cfg.Upstream.URL)
		if err != nil {
			return fmt.Errorf("parse upstream url: %w", err)
		}
		routerCfg.Upstream = httptransport.NewUpstream(target, cfg.Upstream.Timeout)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httptransport.NewRouter(httptransport.NewHandler(registry, store, m), routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	worker := cleanup.New(registry,
		cleanup.WithInterval(cfg.Session.CleanupInterval),
		cleanup.WithIdleTTL(cfg.Session.IdleTTL),
		cleanup.WithMetrics(m))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Logger().Info("Run a server listening to "+cfg.Server.Addr,
			zap.String("upstream", cfg.Upstream.URL),
			zap.Bool("redis", pinger != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := worker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Logger().Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
