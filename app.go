package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"aegis/config"
	"aegis/internal/domain"
	"aegis/internal/infrastructure"
	"aegis/internal/usecase"
)

// app holds the wired engine shared by protect and the one-shot commands
type app struct {
	cfg        *config.Config
	signatures *config.Signatures
	store      *infrastructure.SQLiteStore
	registry   *prometheus.Registry
	metrics    *infrastructure.Metrics

	lists    *domain.ListStore
	history  *domain.HistoryLog
	settings *domain.SettingsHolder
	keys     *usecase.KeyStore

	responder *usecase.ResponseOrchestrator
	engine    *usecase.ClassificationEngine
	scanner   *usecase.ScanOrchestrator
	alerts    *infrastructure.ChannelNotifier
}

// openState loads the catalogue and the persisted lists and settings
func openState(ctx context.Context, cfg *config.Config) (*app, error) {
	sig, err := config.LoadSignatures(cfg.SignaturesFile)
	if err != nil {
		return nil, err
	}

	store, err := infrastructure.OpenSQLiteStore(cfg.DBPath, infrastructure.DefaultArchiveLimit)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		signatures: sig,
		store:      store,
		lists:      domain.NewListStore(),
	}

	removed, err := store.LoadRemoved(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	for kind, patterns := range removed {
		a.lists.Bury(kind, patterns)
	}

	blocked := a.lists.Seed(domain.BlockList, sig.Block)
	allowed := a.lists.Seed(domain.AllowList, sig.Allow)

	persisted, err := store.LoadLists(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	for kind, entries := range persisted {
		for _, e := range entries {
			if err := a.lists.Put(kind, e); err != nil {
				log.Warn().Err(err).Str("list", kind.String()).Msg("skipping persisted entry")
			}
		}
	}

	settings, err := store.LoadSettings(ctx, cfg.Settings)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.settings = domain.NewSettingsHolder(settings)

	log.Debug().
		Str("signatures", sig.Version).
		Int("block_seeded", blocked).
		Int("allow_seeded", allowed).
		Int("block", a.lists.Len(domain.BlockList)).
		Int("allow", a.lists.Len(domain.AllowList)).
		Msg("lists loaded")
	return a, nil
}

// initMetrics creates the registry with the runtime collectors
func (a *app) initMetrics() {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = infrastructure.NewMetrics(a.registry)
	a.metrics.SetListSize(domain.AllowList, a.lists.Len(domain.AllowList))
	a.metrics.SetListSize(domain.BlockList, a.lists.Len(domain.BlockList))
}

// wireEngine builds classification, response and scanning on top of the
// loaded state. extra notifiers receive every notable detection too.
func (a *app) wireEngine(extra ...infrastructure.DetectionNotifier) {
	cfg := a.cfg
	if a.metrics == nil {
		a.initMetrics()
	}

	a.history = domain.NewHistoryLog(cfg.HistoryCapacity)
	a.keys = usecase.NewKeyStore(0)

	a.responder = usecase.NewResponseOrchestrator(
		a.lists,
		a.history,
		infrastructure.NewProcessController(),
		infrastructure.NewFileMover(),
		a.keys,
		cfg.QuarantineDir,
		a.metrics,
	)
	a.responder.SetRansomwareExtensions(a.signatures.RansomwareExtensions)

	a.alerts = infrastructure.NewChannelNotifier(cfg.NotificationBuffer, a.metrics)
	notifier := infrastructure.MultiNotifier{a.alerts}
	notifier = append(notifier, extra...)

	a.engine = usecase.NewClassificationEngine(a.lists, a.responder, notifier, a.settings, a.metrics)
	a.engine.SetTempRoots(cfg.TempRoot)
	a.engine.SetRansomwareExtensions(a.signatures.RansomwareExtensions)

	a.scanner = usecase.NewScanOrchestrator(
		a.engine,
		a.responder,
		a.keys,
		a.history,
		a.lists,
		infrastructure.NewProcessRepository(),
		infrastructure.NewMemoryReader(),
		a.settings,
		a.metrics,
		usecase.ScanConfig{
			TempRoot:           cfg.TempRoot,
			AppDataRoot:        cfg.AppDataRoot,
			DocumentsRoot:      cfg.DocumentsRoot,
			RansomwareExts:     a.signatures.RansomwareExtensions,
			ScanInterval:       cfg.ScanInterval,
			SensorWaitInterval: cfg.SensorWaitInterval,
			EventBufferSize:    cfg.EventBufferSize,
			MaxRegionBytes:     cfg.MaxRegionBytes,
			WorkerPoolSize:     cfg.WorkerPoolSize,
			TaskQueueSize:      cfg.TaskQueueSize,
		},
	)
	a.scanner.SetArchiver(a.store)
}

// consumeAlerts logs notifications until the notifier is closed
func (a *app) consumeAlerts(done chan<- struct{}) {
	defer close(done)
	for det := range a.alerts.C() {
		log.Warn().
			Str("id", det.ID).
			Str("threat", det.Verdict.Name).
			Str("severity", det.Verdict.Severity.String()).
			Str("action", det.Verdict.Action.String()).
			Bool("auto", det.AutoRemediated).
			Uint32("pid", det.Event.ProcessID).
			Str("path", det.Event.FilePath).
			Str("target", det.Event.TargetProcess).
			Msg("ALERT")
	}
}

// persist writes the lists and settings back to the store
func (a *app) persist(ctx context.Context) error {
	snapshot := map[domain.ListKind][]domain.ListEntry{
		domain.AllowList: a.lists.Snapshot(domain.AllowList),
		domain.BlockList: a.lists.Snapshot(domain.BlockList),
	}
	removed := map[domain.ListKind][]string{
		domain.AllowList: a.lists.Removed(domain.AllowList),
		domain.BlockList: a.lists.Removed(domain.BlockList),
	}
	if err := a.store.SaveLists(ctx, snapshot, removed); err != nil {
		return fmt.Errorf("failed to persist lists: %w", err)
	}
	if err := a.store.SaveSettings(ctx, a.settings.Load()); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	return nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close store")
	}
}
