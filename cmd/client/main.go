package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dkeye/webrtc-echo/internal/adapters/rtc"
	echosignal "github.com/dkeye/webrtc-echo/internal/adapters/signal"
	"github.com/dkeye/webrtc-echo/internal/app/lifecycle"
	"github.com/dkeye/webrtc-echo/internal/app/orch"
	"github.com/dkeye/webrtc-echo/internal/config"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/dkeye/webrtc-echo/internal/logging"
)

var errNotConnected = errors.New("not connected")

func main() {
	cmd := newRootCmd()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "echo-client [server-url]",
		Short: "Negotiates one session with an echo server and reports whether it connected",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("server-url", args[0]); err != nil {
					return err
				}
			}
			return run(cmd.Context(), cmd.Flags())
		},
	}
	f := cmd.Flags()
	f.String("server-url", "http://localhost:8080/offer", "offer endpoint of the echo server")
	f.Duration("timeout", 10*time.Second, "how long to wait for the connection")
	f.Bool("debug", false, "verbose logging")
	f.StringSlice("ice-servers", []string{config.DefaultSTUNServer}, "ICE server URLs")
	return cmd
}

func run(ctx context.Context, flags *pflag.FlagSet) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Setup(false)
	logger := logging.Module("main")

	cfg, err := config.LoadClient(flags)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	if cfg.Debug {
		logging.Setup(true)
		logger = logging.Module("main")
	}

	engine, err := rtc.NewEngine(rtc.Options{
		Profile:    rtc.ProfileClient,
		ICEServers: cfg.ICEServers,
		Verbose:    cfg.Debug,
	})
	if err != nil {
		logger.Error().Err(err).Msg("engine")
		return err
	}
	track, err := rtc.NewLocalVideoTrack()
	if err != nil {
		logger.Error().Err(err).Msg("local track")
		return err
	}

	client := &orch.Client{
		Engine:     engine,
		Signal:     echosignal.NewClient(cfg.ServerURL, cfg.Timeout),
		Timeout:    cfg.Timeout,
		LocalTrack: track,
		OnTerminal: func(s domain.OverallState) {
			logger.Error().Str("state", string(s)).Msg("peer connection ended before completion, exiting")
			os.Exit(1)
		},
	}

	logger.Info().Str("url", cfg.ServerURL).Dur("timeout", cfg.Timeout).Msg("connecting to echo server")
	outcome, err := client.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("echo session failed")
		return err
	}
	if outcome != lifecycle.OutcomeConnected {
		logger.Error().Str("outcome", outcome.String()).Msg("echo session did not connect")
		return fmt.Errorf("%w: %s", errNotConnected, outcome)
	}
	logger.Info().Msg("echo session connected")
	return nil
}
