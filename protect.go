package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"aegis/config"
	"aegis/internal/delivery/api"
	"aegis/internal/infrastructure"
)

// runProtectionMode starts real-time protection and blocks until SIGINT or SIGTERM
func runProtectionMode(cfg *config.Config) error {
	logFile, err := infrastructure.SetupLogging(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Warn().Err(err).Msg("failed to setup file logging, using console only")
	} else {
		defer logFile.Close()
	}

	// keep logs from the last 7 days
	if err := infrastructure.CleanupOldLogs(cfg.LogDir, 7*24*time.Hour); err != nil {
		log.Warn().Err(err).Msg("failed to cleanup old logs")
	}

	log.Info().Str("version", version).Msg("aegis real-time protection starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openState(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	a.initMetrics()

	var bus *infrastructure.NATSBus
	var extra []infrastructure.DetectionNotifier
	if cfg.NATSURL != "" {
		bus, err = infrastructure.ConnectNATS(cfg.NATSURL, cfg.NATSEventSubject, cfg.NATSVerdictSubject, a.metrics)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, remote sensors and verdict publishing disabled")
			bus = nil
		} else {
			extra = append(extra, bus)
		}
	}

	log.Info().Msg("initializing detection engine")
	a.wireEngine(extra...)

	settings := a.settings.Load()
	log.Info().
		Bool("realtime", settings.RealtimeProtection).
		Bool("auto_quarantine", settings.AutoQuarantine).
		Bool("behavior", settings.BehaviorMonitoring).
		Bool("ransomware", settings.RansomwareProtection).
		Bool("memory", settings.MemoryScanning).
		Str("quarantine", cfg.QuarantineDir).
		Msg("protection settings")

	alertsDone := make(chan struct{})
	go a.consumeAlerts(alertsDone)

	if err := a.scanner.Start(ctx); err != nil {
		return err
	}

	fileSensor := infrastructure.NewFileSensor(a.scanner, a.metrics, cfg.WatchPaths)
	if err := fileSensor.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("file sensor disabled")
	}

	stopPlatform := startPlatformSensors(ctx, cfg, a)

	if bus != nil {
		if err := bus.Subscribe(a.scanner); err != nil {
			log.Warn().Err(err).Msg("remote sensor feed disabled")
		}
	}

	var server *api.Server
	if cfg.HTTPAddr != "" {
		server = api.NewServer(a.scanner, a.responder, a.lists, a.history, a.settings, a.registry)
		go func() {
			if err := server.ListenAndServe(cfg.HTTPAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.HTTPAddr).Msg("http api stopped")
			}
		}()
	}

	log.Info().Msg("real-time protection active, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http api shutdown")
		}
		shutdownCancel()
	}

	cancel()
	fileSensor.Stop()
	stopPlatform()
	a.scanner.Stop()
	if bus != nil {
		bus.Close()
	}

	// producers are gone; drain the remaining alerts
	a.alerts.Close()
	<-alertsDone

	persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer persistCancel()
	if err := a.persist(persistCtx); err != nil {
		log.Error().Err(err).Msg("state not saved")
	}

	log.Info().
		Interface("scan", a.scanner.GetStats()).
		Interface("response", a.responder.GetStats()).
		Uint64("alerts_dropped", a.alerts.Dropped()).
		Msg("aegis stopped")
	return nil
}
