//go:build !windows

package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"aegis/config"
)

// startPlatformSensors has nothing beyond the file sensor and the remote feed here
func startPlatformSensors(ctx context.Context, cfg *config.Config, a *app) func() {
	log.Info().Msg("no platform sensor on this OS; relying on file sensor and NATS feed")
	return func() {}
}
