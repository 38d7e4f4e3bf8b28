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

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "github.com/dkeye/Duet/internal/adapters/http"
	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("duet-relay", pflag.ContinueOnError)
	fs.String("log-level", "", "log level (trace, debug, info, warn, error)")
	fs.String("log-file", "", "also write logs to this file")
	fs.String("mode", "", "gin mode (debug or release)")
	fs.Int("port", 0, "listen port")
	printConfig := fs.Bool("print-config", false, "print the effective configuration and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	if *printConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	pairing, err := config.Pairing(cfg.Relay.Pairs)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Pairing:  pairing,
		Policy:   app.SimplePolicy{Kick: cfg.Relay.KickSlow},
		Logins:   app.NewLoginLimiter(cfg.Relay.LoginLimit, cfg.Relay.LoginWindow),
	}

	r := router.SetupRouter(ctx, &cfg.Relay, orch)
	addr := fmt.Sprintf(":%d", cfg.Relay.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Duet relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Relay exited gracefully")
	return nil
}
