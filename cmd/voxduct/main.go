// Command voxduct routes microphone audio to an ElevenLabs conversational
// agent and plays the agent's replies into a virtual audio cable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxduct/voxduct/internal/config"
	"github.com/voxduct/voxduct/internal/control"
	"github.com/voxduct/voxduct/internal/health"
	"github.com/voxduct/voxduct/internal/observe"
	"github.com/voxduct/voxduct/internal/route"
	"github.com/voxduct/voxduct/pkg/agent"
	"github.com/voxduct/voxduct/pkg/agent/elevenlabs"
	"github.com/voxduct/voxduct/pkg/device"
	devmalgo "github.com/voxduct/voxduct/pkg/device/malgo"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "enumerate audio devices and exit")
	flag.Parse()

	if *listDevices {
		return printDeviceList()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxduct: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxduct: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("voxduct starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxduct",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Audio driver ──────────────────────────────────────────────────────────
	opener, err := devmalgo.New()
	if err != nil {
		slog.Error("failed to initialise audio driver", "err", err)
		return 1
	}
	defer func() {
		if err := opener.Close(); err != nil {
			slog.Warn("audio driver close error", "err", err)
		}
	}()

	// ── Agent dialer ──────────────────────────────────────────────────────────
	var dialerOpts []elevenlabs.Option
	if cfg.Agent.BaseURL != "" {
		dialerOpts = append(dialerOpts, elevenlabs.WithBaseURL(cfg.Agent.BaseURL))
	}
	dialer := elevenlabs.New(dialerOpts...)

	// ── Routing controller ────────────────────────────────────────────────────
	ctrl := route.New(opener, dialer, route.WithObserver(newRouteObserver(metrics)))

	reg, err := metrics.RegisterRouteCounters(func() observe.RouteCounters {
		return routeCounters(ctrl.Stats().Snapshot())
	})
	if err != nil {
		slog.Error("failed to register routing metrics", "err", err)
		return 1
	}
	defer func() { _ = reg.Unregister() }()

	routeCfg := buildRouteConfig(cfg)

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "log_level", d.NewLogLevel)
		}
		if d.RestartRequired {
			slog.Warn("configuration changed, stop and start the route to apply")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg)

	// ── Start the route ───────────────────────────────────────────────────────
	if err := ctrl.Start(ctx, routeCfg); err != nil {
		slog.Error("route start failed", "err", err)
		if cfg.Server.ListenAddr == "" {
			return 1
		}
		// Keep the control API up so the operator can inspect and retry.
	}
	defer func() {
		if err := ctrl.Stop(); err != nil {
			slog.Warn("route stop error", "err", err)
		}
	}()

	slog.Info("route ready, press Ctrl+C to shut down", "state", ctrl.State())

	// ── Control API ───────────────────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		srv := control.New(ctrl, routeCfg, metrics,
			control.WithCheckers(agentConfigChecker(cfg)),
		)
		slog.Info("control API listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(ctx, cfg.Server.ListenAddr); err != nil {
			slog.Error("control API error", "err", err)
			return 1
		}
	} else {
		<-ctx.Done()
	}

	slog.Info("shutdown signal received, stopping…")
	return 0
}

// ── Route wiring ────────────────────────────────────────────────────────────────

// buildRouteConfig maps the file configuration onto a routing session.
func buildRouteConfig(cfg *config.Config) route.Config {
	rc := route.Config{
		Capture: device.StreamConfig{
			DeviceID:        cfg.Devices.Mic,
			SampleRate:      cfg.Audio.SampleRate,
			Channels:        cfg.Audio.InputChannels,
			FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		},
		Playback: device.StreamConfig{
			DeviceID:        cfg.Devices.Cable,
			SampleRate:      cfg.Audio.SampleRate,
			Channels:        cfg.Audio.OutputChannels,
			FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		},
		Agent: agent.Config{
			AgentID:    cfg.Agent.AgentID,
			APIKey:     cfg.Agent.APIKey,
			SampleRate: cfg.Audio.SampleRate,
		},
	}
	if cfg.Monitor.Enabled {
		rc.Monitor = true
		rc.MonitorSource = device.StreamConfig{
			DeviceID:        cfg.Devices.Cable,
			SampleRate:      cfg.Audio.SampleRate,
			Channels:        cfg.Audio.OutputChannels,
			FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		}
		rc.MonitorSink = device.StreamConfig{
			DeviceID:        cfg.Devices.Speaker,
			SampleRate:      cfg.Audio.SampleRate,
			Channels:        cfg.Audio.OutputChannels,
			FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		}
	}
	return rc
}

// routeCounters copies a stats snapshot into the metrics bridge type.
func routeCounters(s route.Snapshot) observe.RouteCounters {
	return observe.RouteCounters{
		FramesCaptured:       s.FramesCaptured,
		FramesPlayed:         s.FramesPlayed,
		SilenceSubstitutions: s.SilenceSubstitutions,
		PlaybackUnderruns:    s.PlaybackUnderruns,
		DroppedFrames:        s.DroppedFrames,
		MonitorDrops:         s.MonitorDrops,
		MonitorUnderruns:     s.MonitorUnderruns,
		AgentBytesOut:        s.AgentBytesOut,
		AgentBytesIn:         s.AgentBytesIn,
		QueueDepth:           s.QueueDepth,
	}
}

// agentConfigChecker reports readiness of the agent configuration itself.
func agentConfigChecker(cfg *config.Config) health.Checker {
	return health.Checker{
		Name: "agent",
		Check: func(_ context.Context) error {
			if cfg.Agent.AgentID == "" {
				return errors.New("agent id not configured")
			}
			return nil
		},
	}
}

// routeObserver logs lifecycle events and transcripts and records them as
// metrics. The controller invokes it synchronously, one event at a time.
type routeObserver struct {
	metrics *observe.Metrics
	prev    route.State
}

func newRouteObserver(m *observe.Metrics) *routeObserver {
	return &routeObserver{metrics: m, prev: route.StateIdle}
}

func (o *routeObserver) OnStateChange(s route.State, reason string) {
	if reason != "" {
		slog.Warn("route state changed", "from", o.prev, "to", s, "reason", reason)
	} else {
		slog.Info("route state changed", "from", o.prev, "to", s)
	}
	o.metrics.RecordStateTransition(context.Background(), o.prev.String(), s.String())
	o.prev = s
}

func (o *routeObserver) OnTranscript(tr agent.Transcript) {
	slog.Info("transcript", "role", tr.Role, "text", tr.Text)
	o.metrics.RecordTranscript(context.Background(), string(tr.Role))
}

// ── Device listing ──────────────────────────────────────────────────────────────

// printDeviceList enumerates capture and playback devices to stdout.
func printDeviceList() int {
	opener, err := devmalgo.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxduct: %v\n", err)
		return 1
	}
	defer opener.Close()

	for _, kind := range []device.Kind{device.Capture, device.Playback} {
		infos, err := opener.ListDevices(kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voxduct: list %s devices: %v\n", kind, err)
			return 1
		}
		fmt.Printf("%s devices:\n", kind)
		for _, info := range infos {
			marker := " "
			if info.IsDefault {
				marker = "*"
			}
			fmt.Printf("  %s [%d] %s\n      id: %s\n", marker, info.Index, info.Name, info.ID)
		}
		fmt.Println()
	}
	return 0
}

// ── Startup summary ─────────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	monitor := "off"
	if cfg.Monitor.Enabled {
		monitor = "on"
	}
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║           voxduct  router            ║")
	fmt.Println("╠══════════════════════════════════════╣")
	printRow("Agent", cfg.Agent.AgentID)
	printRow("Mic", orDefault(cfg.Devices.Mic))
	printRow("Cable", orDefault(cfg.Devices.Cable))
	printRow("Speaker", orDefault(cfg.Devices.Speaker))
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printRow("Channels", fmt.Sprintf("%d in / %d out", cfg.Audio.InputChannels, cfg.Audio.OutputChannels))
	printRow("Monitor", monitor)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 22 {
		value = value[:19] + "…"
	}
	fmt.Printf("║  %-11s : %-22s ║\n", label, value)
}

func orDefault(name string) string {
	if name == "" {
		return "(system default)"
	}
	return name
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
