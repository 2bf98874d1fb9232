package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"aegis/config"
	"aegis/internal/infrastructure"
)

var version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	infrastructure.SetupConsoleLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var err error
	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "protect":
		err = runProtectionMode(cfg)
	case "scan":
		err = runScan(cfg, args)
	case "list":
		err = runList(cfg, args)
	case "history":
		err = runHistory(cfg, args)
	case "signatures":
		err = runSignatures(cfg, args)
	case "settings":
		err = runSettings(cfg, args)
	case "version":
		showVersion()
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Str("command", command).Msg("command failed")
		os.Exit(1)
	}
}

func showVersion() {
	fmt.Printf("aegis %s\n", version)
}

func printUsage() {
	fmt.Println("Usage: aegis <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  protect                                   Start real-time protection")
	fmt.Println("  scan --quick|--full                       Run one scan and print detections")
	fmt.Println("  list show|export --allow|--block [file]   Show or export a list")
	fmt.Println("  list add|remove --allow|--block <pattern> Edit a list")
	fmt.Println("  list enable|disable --allow|--block <pattern>")
	fmt.Println("  history show [--min-severity s]           Show archived detections")
	fmt.Println("  history export [--min-severity s] [file]  Export archived detections (.jsonl.zst)")
	fmt.Println("  signatures update [source.yaml]           Merge a catalogue and reseed the lists")
	fmt.Println("  settings show                             Show protection toggles")
	fmt.Println("  settings set <name> <true|false>          Change a protection toggle")
	fmt.Println("  version                                   Show version")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  AEGIS_DATA_ROOT, AEGIS_LOG_LEVEL, AEGIS_HTTP_ADDR, AEGIS_NATS_URL, AEGIS_WATCH_PATHS")
}
