package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"aegis/config"
	"aegis/internal/delivery/cli"
	"aegis/internal/domain"
	"aegis/internal/infrastructure"
	"aegis/internal/usecase"
)

var errUsage = errors.New("invalid arguments, run aegis without arguments for usage")

// runScan runs one synchronous scan and prints what it recorded
func runScan(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	mode, err := usecase.ParseScanMode(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openState(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	a.wireEngine()

	alertsDone := make(chan struct{})
	go a.consumeAlerts(alertsDone)

	a.scanner.Scan(ctx, mode)
	a.scanner.Stop()
	a.alerts.Close()
	<-alertsDone

	c := cli.NewCLI(os.Stdout)
	if err := c.PrintHistory(a.history.Snapshot()); err != nil {
		return err
	}
	if err := c.PrintStats("Response", a.responder.GetStats()); err != nil {
		return err
	}
	return a.persist(context.Background())
}

// listFlags parses --allow|--block and returns the remaining arguments
func listFlags(name string, args []string) (domain.ListKind, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	allow := fs.Bool("allow", false, "allow-list")
	block := fs.Bool("block", false, "block-list")
	if err := fs.Parse(args); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errUsage, err)
	}

	switch {
	case *allow && !*block:
		return domain.AllowList, fs.Args(), nil
	case *block && !*allow:
		return domain.BlockList, fs.Args(), nil
	}
	return 0, nil, fmt.Errorf("%w: exactly one of --allow or --block is required", errUsage)
}

// runList edits or prints the persisted lists
func runList(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	sub := args[0]
	kind, rest, err := listFlags("list "+sub, args[1:])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openState(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	c := cli.NewCLI(os.Stdout)
	switch sub {
	case "show":
		return c.PrintList(kind, a.lists.Snapshot(kind))

	case "export":
		var w io.Writer = os.Stdout
		if len(rest) == 1 {
			f, err := os.Create(rest[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", rest[0], err)
			}
			defer f.Close()
			w = f
		}
		return infrastructure.WriteListText(w, a.lists.Snapshot(kind))

	case "add":
		if len(rest) != 1 {
			return errUsage
		}
		added, err := a.lists.Insert(kind, rest[0])
		if err != nil {
			return err
		}
		if !added {
			fmt.Printf("%s is already on the %s list\n", rest[0], kind)
			return nil
		}
		fmt.Printf("Added %s to the %s list\n", rest[0], kind)

	case "remove":
		if len(rest) != 1 {
			return errUsage
		}
		if !a.lists.Remove(kind, rest[0]) {
			return fmt.Errorf("%s on the %s list: %w", rest[0], kind, domain.ErrNotFound)
		}
		fmt.Printf("Removed %s from the %s list\n", rest[0], kind)

	case "enable", "disable":
		if len(rest) != 1 {
			return errUsage
		}
		if !a.lists.SetEnabled(kind, rest[0], sub == "enable") {
			return fmt.Errorf("%s on the %s list: %w", rest[0], kind, domain.ErrNotFound)
		}
		fmt.Printf("%s %sd on the %s list\n", rest[0], sub, kind)

	default:
		return errUsage
	}

	return a.persist(ctx)
}

// runHistory prints or exports the archived history
func runHistory(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	sub := args[0]

	fs := flag.NewFlagSet("history "+sub, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	minSeverity := fs.String("min-severity", "low", "lowest severity to include")
	limit := fs.Int("limit", 0, "most recent records to include, 0 for all")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	min, err := domain.ParseSeverity(*minSeverity)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := infrastructure.OpenSQLiteStore(cfg.DBPath, infrastructure.DefaultArchiveLimit)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ArchivedHistory(ctx, min, *limit)
	if err != nil {
		return err
	}

	switch sub {
	case "show":
		return cli.NewCLI(os.Stdout).PrintHistory(records)
	case "export":
		path := fs.Arg(0)
		if path == "" {
			path = fmt.Sprintf("aegis_history_%s.jsonl.zst", time.Now().Format("20060102_150405"))
		}
		if err := infrastructure.ExportHistory(path, records); err != nil {
			return err
		}
		fmt.Printf("Exported %d record(s) to %s\n", len(records), path)
		return nil
	}
	return errUsage
}

// runSignatures merges a catalogue into the configured one and reseeds the
// persisted lists. Entries the user disabled stay disabled and removed ones stay removed.
func runSignatures(cfg *config.Config, args []string) error {
	if len(args) < 1 || args[0] != "update" {
		return errUsage
	}

	sig, err := config.LoadSignatures(cfg.SignaturesFile)
	if err != nil {
		return err
	}
	if len(args) > 1 {
		source, err := config.LoadSignatures(args[1])
		if err != nil {
			return err
		}
		sig.Merge(source)
		sig.Version = source.Version
	}
	if err := sig.Save(cfg.SignaturesFile); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openState(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.persist(ctx); err != nil {
		return err
	}

	fmt.Printf("Signatures %s saved to %s\n", sig.Version, cfg.SignaturesFile)
	fmt.Printf("  block patterns:        %d\n", a.lists.Len(domain.BlockList))
	fmt.Printf("  allow patterns:        %d\n", a.lists.Len(domain.AllowList))
	fmt.Printf("  ransomware extensions: %d\n", len(sig.RansomwareExtensions))
	return nil
}

// runSettings prints or changes the persisted protection toggles
func runSettings(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errUsage
	}

	ctx := context.Background()
	a, err := openState(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	c := cli.NewCLI(os.Stdout)
	switch args[0] {
	case "show":
		return c.PrintSettings(a.settings.Load())
	case "set":
		if len(args) != 3 {
			return errUsage
		}
		value, err := strconv.ParseBool(args[2])
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		updated, ok := a.settings.Load().With(args[1], value)
		if !ok {
			return fmt.Errorf("unknown setting %q, expected one of %v", args[1], domain.SettingNames)
		}
		a.settings.Store(updated)
		if err := a.persist(ctx); err != nil {
			return err
		}
		return c.PrintSettings(updated)
	}
	return errUsage
}
