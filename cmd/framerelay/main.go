package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Versifine/framerelay/internal/config"
	"github.com/Versifine/framerelay/internal/event"
	"github.com/Versifine/framerelay/internal/hook"
	"github.com/Versifine/framerelay/internal/logger"
	"github.com/Versifine/framerelay/internal/protocol"
	"github.com/Versifine/framerelay/internal/proxy"
	"github.com/Versifine/framerelay/internal/stats"
)

const defaultConfigPath = "configs/config.yaml"

type flags struct {
	configPath string
	listen     string
	upstream   string
	logLevel   string
	noHex      bool
}

func main() {
	if err := newRootCmd(&flags{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "framerelay",
		Short:        "Transparent TCP relay that logs every length-prefixed frame",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "Path to a YAML or TOML config file")
	cmd.Flags().StringVarP(&f.listen, "listen", "l", "", "Listen address (host:port), overrides listen.*")
	cmd.Flags().StringVarP(&f.upstream, "upstream", "u", "", "Upstream address (host:port), overrides upstream.*")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().BoolVar(&f.noHex, "no-hex", false, "Do not dump frame bytes")
	return cmd
}

// loadConfig reads the config file and applies flag overrides. A missing
// file is only an error when --config was given explicitly.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, fmt.Errorf("loading config %s: %w", f.configPath, err)
		}
		cfg = config.Default()
	}

	if f.listen != "" {
		if cfg.Listen, err = config.ParseAddr(f.listen); err != nil {
			return nil, fmt.Errorf("--listen: %w", err)
		}
	}
	if f.upstream != "" {
		if cfg.Upstream, err = config.ParseAddr(f.upstream); err != nil {
			return nil, fmt.Errorf("--upstream: %w", err)
		}
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.noHex {
		cfg.Logging.HexDump = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	var out io.Writer = os.Stdout
	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer file.Close()
		out = file
	}
	logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: out,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus()
	bus.Subscribe(event.EventSessionClosed, logSessionSummary)
	tracker := stats.NewTracker()
	tracker.Attach(bus)

	server := proxy.NewServer(cfg.ListenAddr(), proxy.Options{
		Upstream:     cfg.UpstreamAddr(),
		DialTimeout:  cfg.Relay.DialTimeout.Std(),
		MaxFrameSize: cfg.Relay.MaxFrameSize,
		IdleTimeout:  cfg.Relay.IdleTimeout.Std(),
		Observer: hook.Chain{
			&hook.LogObserver{
				Logger:   logger.L(),
				HexDump:  cfg.Logging.HexDump,
				HexLimit: cfg.Logging.HexLimit,
			},
			&hook.BusObserver{Bus: bus},
		},
		Bus: bus,
	})
	if err := server.Start(ctx); err != nil {
		slog.Error("Failed to start server", "error", err)
		return err
	}
	bus.Wait()
	logTotals(tracker.Snapshot())
	return nil
}

func logTotals(snap stats.Snapshot) {
	attrs := []any{"sessions", snap.Opened}
	for dir, prefix := range [2]string{"c2s", "s2c"} {
		d := protocol.Direction(dir)
		attrs = append(attrs, prefix+"_frames", snap.TotalFrames(d), prefix+"_bytes", snap.Bytes[d])
		for _, c := range snap.Frames[d] {
			attrs = append(attrs, fmt.Sprintf("%s_0x%02X", prefix, c.ID), c.Count)
		}
	}
	slog.Info("Relay totals", attrs...)
}

func logSessionSummary(raw any) {
	evt, ok := raw.(event.SessionClosedEvent)
	if !ok {
		return
	}
	up := evt.Stats[protocol.ClientToUpstream]
	down := evt.Stats[protocol.UpstreamToClient]
	slog.Debug("Session summary",
		"session", evt.ID,
		"client", evt.Client,
		"duration", evt.Duration,
		"c2s_frames", up.Frames,
		"c2s_bytes", up.Bytes,
		"s2c_frames", down.Frames,
		"s2c_bytes", down.Bytes,
	)
}
