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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/webrtc-echo/internal/adapters/http"
	"github.com/dkeye/webrtc-echo/internal/adapters/rtc"
	echosignal "github.com/dkeye/webrtc-echo/internal/adapters/signal"
	"github.com/dkeye/webrtc-echo/internal/app"
	"github.com/dkeye/webrtc-echo/internal/app/orch"
	"github.com/dkeye/webrtc-echo/internal/config"
	"github.com/dkeye/webrtc-echo/internal/logging"
	"github.com/dkeye/webrtc-echo/internal/metrics"
)

func main() {
	cmd := newRootCmd()
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "echo-server",
		Short: "WebRTC echo server: answers offers over HTTP and plays every track back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.Flags())
		},
	}
	f := cmd.Flags()
	f.String("host", "0.0.0.0", "listen host")
	f.Int("port", 8080, "listen port")
	f.String("html-file", "./html/index.html", "page served on / and /index.html")
	f.String("cert-file", "", "TLS certificate file (serves HTTPS together with --key-file)")
	f.String("key-file", "", "TLS key file")
	f.Bool("debug", false, "verbose logging")
	f.StringSlice("ice-servers", []string{config.DefaultSTUNServer}, "ICE server URLs")
	f.Duration("connect-timeout", 30*time.Second, "close sessions that do not connect in time (0 disables)")
	f.Duration("gather-timeout", 2*time.Second, "longest wait for candidate gathering before answering")
	f.Int("offer-rate-limit", 0, "offers allowed per client IP per window (0 disables)")
	return cmd
}

func run(ctx context.Context, flags *pflag.FlagSet) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize the logger early so config loading can use it.
	logging.Setup(false)
	logger := logging.Module("main")

	cfg, err := config.LoadServer(flags)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	if cfg.Debug {
		logging.Setup(true)
		logger = logging.Module("main")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hub := app.NewHub(64)
	registry := app.NewRegistry(cfg.CleanupQueueSize, hub, m)

	engine, err := rtc.NewEngine(rtc.Options{
		Profile:    rtc.ProfileServer,
		ICEServers: cfg.ICEServers,
		Verbose:    cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	server := &orch.Server{
		Engine:         engine,
		Registry:       registry,
		Hub:            hub,
		Metrics:        m,
		ConnectTimeout: cfg.ConnectTimeout,
		GatherTimeout:  cfg.GatherTimeout,
	}

	page, err := router.LoadPage(cfg.HTMLFile)
	if err != nil {
		return fmt.Errorf("load page: %w", err)
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Offers:   server,
		Sessions: registry,
		Events:   hub,
		Limiter:  echosignal.NewRateLimiter(cfg.OfferRateLimit, cfg.OfferRateWindow),
		Metrics:  m,
		Gatherer: reg,
		Page:     page,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return registry.Run(gctx) })
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr()).Bool("tls", cfg.TLS()).Msg("echo server started")
		var err error
		if cfg.TLS() {
			err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Relays did not stop in time")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
		return err
	}
	logger.Info().Msg("Server exited gracefully")
	return nil
}
