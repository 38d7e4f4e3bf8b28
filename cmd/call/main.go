package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Duet/internal/adapters/media"
	"github.com/dkeye/Duet/internal/adapters/power"
	"github.com/dkeye/Duet/internal/adapters/rtc"
	"github.com/dkeye/Duet/internal/adapters/ui"
	"github.com/dkeye/Duet/internal/adapters/wsclient"
	"github.com/dkeye/Duet/internal/app/orch"
	"github.com/dkeye/Duet/internal/app/quality"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/logging"
)

const defaultTUILog = "duet-call.log"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("duet-call", pflag.ContinueOnError)
	fs.String("log-level", "", "log level (trace, debug, info, warn, error)")
	fs.String("log-file", "", "write logs to this file")
	fs.String("username", "", "local peer id")
	fs.String("partner", "", "partner peer id (default: from the configured pairs)")
	fs.String("signal-url", "", "relay websocket url")
	fs.String("output", "", `remote audio destination: "discard" or an .ogg path`)
	fs.Bool("no-capture", false, "do not open the microphone")
	fs.Bool("no-wakelock", false, "do not inhibit sleep during calls")
	headless := fs.Bool("headless", false, "run without the terminal view")
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

	// The terminal view owns stdout and stderr.
	if !*headless {
		cfg.Log.Console = false
		if cfg.Log.File == "" {
			cfg.Log.File = defaultTUILog
		}
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	local, remote, err := peers(cfg)
	if err != nil {
		return err
	}

	signalClient := wsclient.New(wsclient.Config{
		URL:       cfg.Call.SignalURL,
		Username:  local,
		SendQueue: cfg.Call.SendQueue,
		Reconnect: wsclient.ReconnectConfig{
			MaxRetries:      cfg.Call.Reconnect.MaxRetries,
			InitialInterval: cfg.Call.Reconnect.InitialInterval,
			MaxInterval:     cfg.Call.Reconnect.MaxInterval,
		},
	})

	rtcCfg := rtc.Config{
		ICEServers:          iceServers(cfg.Call.ICE.Servers),
		DisconnectedTimeout: cfg.Call.ICE.DisconnectedTimeout,
		FailedTimeout:       cfg.Call.ICE.FailedTimeout,
		KeepaliveInterval:   cfg.Call.ICE.KeepaliveInterval,
		LoggerFactory:       logging.PionFactory{Level: zerolog.GlobalLevel()},
	}
	if cfg.Call.Audio.Capture {
		rtcCfg.Audio = media.NewMicrophone(cfg.Call.Quality.NormalBitrate)
	}
	factory, err := rtc.NewFactory(rtcCfg)
	if err != nil {
		return err
	}

	output := media.NewOutput(cfg.Call.Audio.Output, cfg.Call.Audio.SpeakerOutput)
	defer func() {
		if err := output.Close(); err != nil {
			log.Warn().Err(err).Msg("closing audio output")
		}
	}()

	var wake core.WakeLock = power.Nop{}
	if cfg.Call.WakeLock {
		wake = power.Detect("duet")
	}

	session := orch.New(orch.Deps{
		Local:      local,
		Remote:     remote,
		Signal:     signalClient,
		Transports: factory,
		Output:     output,
		WakeLock:   wake,
		QualityPolicy: quality.Policy{
			LowBandwidthKbps: cfg.Call.Quality.LowBandwidthKbps,
			LowBitrate:       cfg.Call.Quality.LowBitrate,
			NormalBitrate:    cfg.Call.Quality.NormalBitrate,
		},
		QualityInterval: cfg.Call.Quality.Interval,
	})

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(sigCtx)

	// Signaling outlives the session so the final reject can still go out.
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()
	g.Go(func() error {
		err := signalClient.Run(clientCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer clientCancel()
		err := session.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if !*headless {
		g.Go(func() error {
			defer stop()
			return ui.Run(ctx, session)
		})
	}

	log.Info().Str("local", string(local)).Str("remote", string(remote)).Str("signal_url", cfg.Call.SignalURL).Msg("Duet call started")
	err = g.Wait()
	log.Info().Msg("Duet call exited")
	return err
}

func peers(cfg *config.Config) (domain.PeerID, domain.PeerID, error) {
	local, err := domain.NewPeerID(cfg.Call.Username)
	if err != nil {
		return "", "", fmt.Errorf("username: %w", err)
	}
	if cfg.Call.Partner != "" {
		remote, err := domain.NewPeerID(cfg.Call.Partner)
		if err != nil {
			return "", "", fmt.Errorf("partner: %w", err)
		}
		return local, remote, nil
	}
	pairing, err := config.Pairing(cfg.Call.Pairs)
	if err != nil {
		return "", "", err
	}
	remote, err := pairing.PartnerOf(local)
	if err != nil {
		return "", "", err
	}
	return local, remote, nil
}

func iceServers(in []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(in))
	for _, s := range in {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}
