// Command ppgd runs the Push Proxy Gateway daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	konflib "github.com/nil-go/konf"
	pflagProvider "github.com/nil-go/konf/provider/pflag"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kannel-go/ppg/ppg"
	"github.com/kannel-go/ppg/ppg/bearerbox"
	"github.com/kannel-go/ppg/ppg/clock"
	"github.com/kannel-go/ppg/ppg/engine"
	"github.com/kannel-go/ppg/ppg/identmap"
	"github.com/kannel-go/ppg/ppg/intake"
	"github.com/kannel-go/ppg/ppg/ota"
	"github.com/kannel-go/ppg/ppg/supervisor"
	"github.com/kannel-go/ppg/ppg/transcoder"

	pplog "github.com/kannel-go/ppg/internal/log"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ppgd",
		Short: "Push Proxy Gateway daemon",
	}
	root.AddCommand(serveCmd())
	return root
}

func serveCmd() *cobra.Command {
	cfg := ppg.DefaultConfig()

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.StringVar(&cfg.BearerboxAddr, "bearerbox-addr", cfg.BearerboxAddr, "bearerbox address (or 'localhost')")
	flags.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "PI-facing HTTP intake listen address")
	flags.IntVar(&cfg.BearerPort, "bearer-port", cfg.BearerPort, "this PPG's own WSP bearer port, advertised in SIA contact points")
	flags.StringVar(&cfg.SenderOfficialName, "sender-official-name", cfg.SenderOfficialName, "PAP sender-name official name")
	flags.StringVar(&cfg.SenderProductName, "sender-product-name", cfg.SenderProductName, "PAP sender-name product name")
	flags.StringVar(&cfg.SenderVersion, "sender-version", cfg.SenderVersion, "PAP sender-name version")
	flags.StringVar(&cfg.WMLCompilerPath, "wml-compiler-path", cfg.WMLCompilerPath, "path to external WML compiler plugin (unused; out of scope)")
	flags.StringVar(&cfg.SICompilerPath, "si-compiler-path", cfg.SICompilerPath, "path to external SI compiler plugin (unused; out of scope)")
	flags.StringVar(&cfg.AccessLogPath, "access-log-path", cfg.AccessLogPath, "rotating HTTP access log path (empty disables)")
	flags.StringVar(&cfg.DeliveryTick, "delivery-tick", cfg.DeliveryTick, "re-evaluation interval for TOO_EARLY pushes (e.g. 30s); empty disables")

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			konfCfg := konflib.New()
			if err := konfCfg.Load(pflagProvider.New(konfCfg, pflagProvider.WithFlagSet(flags))); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := konfCfg.Unmarshal("", &cfg); err != nil {
				return fmt.Errorf("unmarshal config: %w", err)
			}

			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().AddFlagSet(flags)
	return cmd
}

func run(ctx context.Context, cfg ppg.Config) error {
	log := zerolog.New(pplog.NewRedactingWriter(zerolog.NewConsoleWriter())).With().Timestamp().Logger()

	bb := bearerbox.New(log)
	bb.Set(cfg.BearerboxAddr)

	tc := transcoder.NewDefault(passthroughCompiler, passthroughCompiler)

	sink := &unwiredSink{log: log}
	dispatcher := ota.NewDispatcher(sink, log, 1024)

	identifiers := identmap.New()

	eng := engine.New(engine.Config{
		Transcoder:  tc,
		Dispatcher:  dispatcher,
		Identifiers: identifiers,
		Clock:       clock.Real(),
		Log:         log,
		Sender: engine.SenderIdentity{
			OfficialName: cfg.SenderOfficialName,
			ProductName:  cfg.SenderProductName,
			Version:      cfg.SenderVersion,
		},
	})

	if cfg.DeliveryTick != "" {
		d, err := time.ParseDuration(cfg.DeliveryTick)
		if err != nil {
			return fmt.Errorf("parse delivery-tick: %w", err)
		}
		eng.EnableDeliveryTick(d)
	}

	var accessLog intake.RotatingFileSink
	if cfg.AccessLogPath != "" {
		var err error
		accessLog, err = pplog.NewRotatingFile(cfg.AccessLogPath, 50*1024*1024, 5)
		if err != nil {
			return fmt.Errorf("open access log: %w", err)
		}
	}

	server := intake.NewServer(intake.Config{
		Addr:       cfg.ListenAddr,
		MIMEParser: intake.NewMultipartParser(),
		PAPDecoder: intake.NewStubPAPDecoder(),
		Handler: func(ctx context.Context, msg intake.PushMessage) {
			msg.LocalAddr = bb.Get()
			msg.LocalPort = cfg.BearerPort
			eng.Submit(msg)
		},
		Log:       log,
		AccessLog: accessLog,
	})

	sup := supervisor.New(log)
	sup.Add("ota-dispatcher", dispatcher.Run)
	sup.Add("ota-in", eng.RunOTAIn)
	sup.Add("pi-intake", server.Run)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				bb.Reload(cfg.BearerboxAddr)
			case syscall.SIGINT, syscall.SIGTERM:
				cancel()
				return
			}
		}
	}()

	err := sup.Run(runCtx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func passthroughCompiler(body []byte) ([]byte, error) {
	return body, nil
}

// unwiredSink is the placeholder ota.Sink wired by default: actual
// WSP dispatch isn't included here, so this simply logs what would
// have been dispatched. Production deployments supply a real Sink
// talking to the bearerbox/WSP stack.
type unwiredSink struct {
	log zerolog.Logger
}

func (s *unwiredSink) DispatchConnectionOriented(_ context.Context, ev ota.Event) error {
	s.log.Info().Int("kind", int(ev.Kind)).Int64("session_id", ev.SessionID).Msg("dispatch (connection-oriented, unwired)")
	return nil
}

func (s *unwiredSink) DispatchConnectionless(_ context.Context, ev ota.Event) error {
	s.log.Info().Int("kind", int(ev.Kind)).Msg("dispatch (connectionless, unwired)")
	return nil
}
