// HostLink - engine autohost companion.
//
// HostLink speaks the engine's autohost UDP protocol: it decodes the command
// stream into typed events, mirrors the live session and player table,
// persists finished matches to SQLite, exposes a REST status API, and
// publishes real-time telemetry via MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hostlink-project/hostlink/internal/api"
	"github.com/hostlink-project/hostlink/internal/cli"
	"github.com/hostlink-project/hostlink/internal/client"
	"github.com/hostlink-project/hostlink/internal/config"
	"github.com/hostlink-project/hostlink/internal/match"
	"github.com/hostlink-project/hostlink/internal/session"
	"github.com/hostlink-project/hostlink/internal/store"
	"github.com/hostlink-project/hostlink/internal/telemetry"
	"github.com/hostlink-project/hostlink/internal/util"
)

const (
	AppName    = "HostLink"
	AppVersion = "1.0.0"
	Banner     = `
  _   _           _   _     _       _
 | | | | ___  ___| |_| |   (_)_ __ | | __
 | |_| |/ _ \/ __| __| |   | | '_ \| |/ /
 |  _  | (_) \__ \ |_| |___| | | | |   <
 |_| |_|\___/|___/\__|_____|_|_| |_|_|\_\  v%s
 Autohost Protocol Client & Match Companion
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting HostLink")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	app := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      app.Logging.Level,
		Directory:  app.Logging.Directory,
		MaxSizeMB:  app.Logging.MaxSizeMB,
		MaxBackups: app.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize match history storage
	var history *store.MatchStore
	if app.Database.Enabled {
		history, err = store.NewMatchStore(app.Database.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open match database")
		}
		defer history.Close()
	}

	// Initialize the autohost client and the live match tracker
	engine := cfg.GetEngine()
	ah := client.New(client.NewUDPTransport(), engine.WarnUnhandledCommands)
	tracker := match.NewTracker(ah, history)

	// Chat messages from the API and CLI are queued here and drained on the
	// pump goroutine; the client itself is single-threaded.
	sayCh := make(chan string, 16)
	say := func(text string) bool {
		if tracker.Snapshot().State == session.StateNotRunning {
			return false
		}
		select {
		case sayCh <- text:
			return true
		default:
			log.Warn().Msg("chat queue full, message dropped")
			return false
		}
	}

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if app.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, ah)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize REST API
	var apiServer *api.Server
	if app.API.Enabled {
		apiServer = api.NewServer(cfg, tracker, history, api.SayFunc(say))
	}

	// Initialize CLI
	cliHandler := cli.NewCLI(cfg, tracker, history, cli.SayFunc(say), cancel)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// Task 1: pump the autohost endpoint. All subscriptions are registered
	// here, before the first pump.
	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := ah.Open(engine.Address, engine.Port); err != nil {
			errCh <- fmt.Errorf("autohost endpoint: %w", err)
			return
		}
		defer ah.Close()

		tracker.Subscribe()
		if mqttHandler != nil {
			mqttHandler.Subscribe()
		}

		log.Info().
			Str("address", engine.Address).
			Int("port", engine.Port).
			Int("interval_ms", engine.PumpIntervalMs).
			Msg("pumping autohost endpoint")

		ticker := time.NewTicker(time.Duration(engine.PumpIntervalMs) * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case text := <-sayCh:
				ah.SendChatMessage(text)
			case <-ticker.C:
				ah.Pump()
			}
		}
	}()

	// Task 2: REST API server
	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", app.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	// Task 3: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 4: interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	case <-ctx.Done():
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	log.Info().Msg("HostLink stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors. Uses a fixed 3-second interval between retries, giving the OS
// time to release sockets after a process is force-killed.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
