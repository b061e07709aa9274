// Command ada runs the voice appliance: wake-phrase detection, utterance
// capture with silence end-pointing, and LED and audio feedback.
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

	"github.com/spf13/afero"

	"github.com/ada-assistant/ada/internal/app"
	"github.com/ada-assistant/ada/internal/config"
	"github.com/ada-assistant/ada/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=…".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the feedback script and log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ada: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ada: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("ada starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "ada", ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Devices ───────────────────────────────────────────────────────────────
	devices, err := app.Setup(cfg, afero.NewOsFs())
	if err != nil {
		slog.Error("failed to create devices", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, devices,
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithMetricsHandler(tel.Handler),
		app.WithLogLevel(&level),
	)
	if err != nil {
		_ = devices.Close()
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           Ada, startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Microphone", cfg.Devices.Microphone.Driver)
	printRow("Speaker", cfg.Devices.Speaker.Driver)
	printRow("LED strip", fmt.Sprintf("%s / %d leds", cfg.Devices.LEDStrip.Driver, cfg.Effects.LEDCount))
	printRow("Detector", cfg.Devices.Detector.Driver)
	printRow("Volume", cfg.Devices.Volume.Driver)
	printRow("Max record", cfg.Recording.MaxDuration.Std().String())
	if cfg.Transcription.ModelPath != "" {
		printRow("Transcribe", "whisper / "+cfg.Transcription.Language)
	} else {
		printRow("Transcribe", "(disabled)")
	}
	steps := "default"
	if n := len(cfg.Feedback.Steps); n > 0 {
		steps = fmt.Sprintf("%d steps", n)
	}
	printRow("Feedback", steps)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
