//go:build windows

package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"aegis/config"
	"aegis/internal/infrastructure"
)

// startPlatformSensors enables SeDebugPrivilege and subscribes to Sysmon
func startPlatformSensors(ctx context.Context, cfg *config.Config, a *app) func() {
	if err := infrastructure.NewProcessController().EnableDebugPrivilege(); err != nil {
		log.Warn().Err(err).Msg("SeDebugPrivilege unavailable, memory sweeps may miss elevated processes")
	}

	sysmon := infrastructure.NewSysmonSensor(a.scanner, a.metrics, cfg.WorkerPoolSize)
	if err := sysmon.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("sysmon sensor disabled")
		return func() {}
	}
	return sysmon.Stop
}
