package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"aegis/internal/domain"
	"aegis/internal/infrastructure"
	"aegis/internal/repository"
)

// ScanMode selects which sweeps a scan runs
type ScanMode int

const (
	// ScanQuick runs the process, file and memory sweeps
	ScanQuick ScanMode = iota
	// ScanFull adds the ransomware sweep
	ScanFull
)

func (m ScanMode) String() string {
	if m == ScanFull {
		return "full"
	}
	return "quick"
}

// ParseScanMode accepts "quick"/"full" with or without leading dashes
func ParseScanMode(s string) (ScanMode, error) {
	switch strings.TrimLeft(strings.ToLower(strings.TrimSpace(s)), "-") {
	case "quick":
		return ScanQuick, nil
	case "full":
		return ScanFull, nil
	}
	return ScanQuick, fmt.Errorf("unknown scan mode %q", s)
}

// Sweep names, used as log fields and metric labels
const (
	SweepProcess    = "process"
	SweepFile       = "file"
	SweepMemory     = "memory"
	SweepRansomware = "ransomware"
)

// ScanConfig holds the roots and limits the orchestrator works with
type ScanConfig struct {
	TempRoot       string
	AppDataRoot    string
	DocumentsRoot  string
	RansomwareExts []string

	ScanInterval       time.Duration
	SensorWaitInterval time.Duration
	EventBufferSize    int
	MaxRegionBytes     int

	WorkerPoolSize int
	TaskQueueSize  int
}

// ScanOrchestrator walks process, file and memory state, feeds what it finds
// through classification into the history log, and hosts the sensor-wait
// and periodic scan loops
type ScanOrchestrator struct {
	engine    *ClassificationEngine
	responder Responder
	keys      *KeyStore
	history   *domain.HistoryLog
	lists     *domain.ListStore
	processes repository.ProcessRepository
	memory    repository.MemoryReader
	archiver  repository.HistoryArchiver
	settings  *domain.SettingsHolder
	metrics   *infrastructure.Metrics

	cfg     ScanConfig
	selfPID uint32
	events  chan domain.ThreatEvent
	pool    *TaskPool

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	stopped atomic.Bool

	ingested atomic.Uint64
	dropped  atomic.Uint64
	scans    atomic.Uint64
}

// NewScanOrchestrator creates a new scan orchestrator
func NewScanOrchestrator(
	engine *ClassificationEngine,
	responder Responder,
	keys *KeyStore,
	history *domain.HistoryLog,
	lists *domain.ListStore,
	processes repository.ProcessRepository,
	memory repository.MemoryReader,
	settings *domain.SettingsHolder,
	metrics *infrastructure.Metrics,
	cfg ScanConfig,
) *ScanOrchestrator {
	if cfg.EventBufferSize < 1 {
		cfg.EventBufferSize = 1000
	}
	if cfg.SensorWaitInterval <= 0 {
		cfg.SensorWaitInterval = 5 * time.Second
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Hour
	}
	if cfg.MaxRegionBytes <= 0 {
		cfg.MaxRegionBytes = 4 << 20
	}

	return &ScanOrchestrator{
		engine:    engine,
		responder: responder,
		keys:      keys,
		history:   history,
		lists:     lists,
		processes: processes,
		memory:    memory,
		settings:  settings,
		metrics:   metrics,
		cfg:       cfg,
		selfPID:   uint32(os.Getpid()),
		events:    make(chan domain.ThreatEvent, cfg.EventBufferSize),
		pool:      NewTaskPool(cfg.WorkerPoolSize, cfg.TaskQueueSize, metrics),
	}
}

// SetArchiver persists every recorded detection as well
func (so *ScanOrchestrator) SetArchiver(a repository.HistoryArchiver) {
	so.archiver = a
}

// Start launches the sensor-wait loop, the periodic scan loop and the task
// pool. They run until ctx is cancelled or Stop is called.
func (so *ScanOrchestrator) Start(ctx context.Context) error {
	so.mu.Lock()
	if so.running {
		so.mu.Unlock()
		return fmt.Errorf("scan orchestrator already running")
	}
	if so.stopped.Load() {
		so.mu.Unlock()
		return fmt.Errorf("scan orchestrator stopped")
	}
	so.running = true
	ctx, so.cancel = context.WithCancel(ctx)
	so.mu.Unlock()

	so.pool.Start(ctx)

	so.wg.Add(2)
	go so.sensorWaitLoop(ctx)
	go so.periodicScanLoop(ctx)

	log.Info().
		Dur("scan_interval", so.cfg.ScanInterval).
		Dur("sensor_wait", so.cfg.SensorWaitInterval).
		Int("event_buffer", cap(so.events)).
		Msg("scan orchestrator started")
	return nil
}

// Stop cancels the loops and any running scans and waits for them
func (so *ScanOrchestrator) Stop() {
	so.stopped.Store(true)

	so.mu.Lock()
	if !so.running {
		so.mu.Unlock()
		so.pool.Stop()
		return
	}
	so.running = false
	cancel := so.cancel
	so.mu.Unlock()

	cancel()
	so.wg.Wait()
	so.pool.Stop()

	log.Info().
		Uint64("ingested", so.ingested.Load()).
		Uint64("dropped", so.dropped.Load()).
		Uint64("scans", so.scans.Load()).
		Msg("scan orchestrator stopped")
}

// Ingest is the sensor entry point. It never blocks; false means the event
// was dropped because the buffer is full or the orchestrator stopped.
func (so *ScanOrchestrator) Ingest(ev domain.ThreatEvent) bool {
	if so.stopped.Load() {
		so.dropped.Add(1)
		return false
	}
	select {
	case so.events <- ev:
		so.ingested.Add(1)
		return true
	default:
		so.dropped.Add(1)
		log.Debug().Str("kind", ev.Kind.String()).Uint32("pid", ev.ProcessID).Msg("event buffer full, dropping")
		return false
	}
}

// Submit hands an on-demand scan to the task pool
func (so *ScanOrchestrator) Submit(mode ScanMode) error {
	err := so.pool.Submit(func(ctx context.Context) {
		so.Scan(ctx, mode)
	})
	if err != nil {
		return fmt.Errorf("%s scan: %w", mode, err)
	}
	log.Info().Str("mode", mode.String()).Msg("scan queued")
	return nil
}

func (so *ScanOrchestrator) sensorWaitLoop(ctx context.Context) {
	defer so.wg.Done()

	ticker := time.NewTicker(so.cfg.SensorWaitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-so.events:
			if !so.settings.Load().RealtimeProtection {
				continue
			}
			so.record(ctx, so.engine.Classify(ctx, ev))
		case <-ticker.C:
			log.Debug().Int("pending", len(so.events)).Uint64("ingested", so.ingested.Load()).Msg("sensor wait heartbeat")
		}
	}
}

func (so *ScanOrchestrator) periodicScanLoop(ctx context.Context) {
	defer so.wg.Done()

	ticker := time.NewTicker(so.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			so.Scan(ctx, ScanFull)
		}
	}
}

// Scan runs the sweeps of mode in order and returns every detection
// recorded. Settings toggles can skip the memory and ransomware sweeps.
func (so *ScanOrchestrator) Scan(ctx context.Context, mode ScanMode) []domain.Detection {
	started := time.Now()
	settings := so.settings.Load()
	so.scans.Add(1)

	log.Info().Str("mode", mode.String()).Msg("scan started")

	var out []domain.Detection
	out = append(out, so.SweepProcesses(ctx)...)
	out = append(out, so.SweepFiles(ctx)...)
	if settings.MemoryScanning {
		out = append(out, so.SweepMemory(ctx)...)
	}
	if mode == ScanFull && settings.RansomwareProtection {
		out = append(out, so.SweepRansomware(ctx)...)
	}

	log.Info().
		Str("mode", mode.String()).
		Int("detections", len(out)).
		Dur("elapsed", time.Since(started)).
		Bool("cancelled", ctx.Err() != nil).
		Msg("scan finished")
	return out
}

// SweepProcesses flags block-listed, suspiciously named and hidden processes
func (so *ScanOrchestrator) SweepProcesses(ctx context.Context) []domain.Detection {
	started := time.Now()
	procs, err := so.processes.FindAll(ctx)
	if err != nil {
		return so.sweepUnavailable(SweepProcess, started, err)
	}

	var out []domain.Detection
	for _, p := range procs {
		if ctx.Err() != nil {
			break
		}
		if p.PID == so.selfPID {
			continue
		}
		if err := p.Validate(); err != nil {
			log.Debug().Err(err).Uint32("pid", p.PID).Msg("skipping process entry")
			continue
		}

		ev := domain.NewThreatEvent(domain.KindProcessOpen, p.PID).WithTarget(p.Name)

		if so.lists.Contains(domain.BlockList, p.Name) {
			out = so.assess(ctx, out, ev, &Finding{
				Severity:    domain.SeverityCritical,
				Name:        "Blacklisted Process",
				Description: "A known malicious process is running.",
				Action:      domain.ActionRemove,
				Auto:        true,
			})
			// one finding per process; the image is not deleted
			continue
		}

		// the image path gives a manual quarantine something to move
		withImage := ev.WithFile(p.Path)
		if domain.IsSuspiciousProcessName(p.Name) {
			out = so.assess(ctx, out, withImage, &Finding{
				Severity:    domain.SeverityMedium,
				Name:        "Suspicious Process",
				Description: "A process with a suspicious name is running.",
				Action:      domain.ActionQuarantine,
			})
		}
		if p.IsHidden() {
			out = so.assess(ctx, out, withImage, &Finding{
				Severity:    domain.SeverityMedium,
				Name:        "Hidden Process",
				Description: "A process without visible windows is running.",
				Action:      domain.ActionQuarantine,
			})
		}
	}

	so.sweepDone(SweepProcess, started, len(out), len(procs))
	return out
}

// SweepFiles checks executables directly inside the temp and app-data roots
// against the block-list
func (so *ScanOrchestrator) SweepFiles(ctx context.Context) []domain.Detection {
	started := time.Now()

	var out []domain.Detection
	var errs []error
	examined := 0
	roots := uniqueRoots(so.cfg.TempRoot, so.cfg.AppDataRoot)
	for _, root := range roots {
		paths, err := executablesIn(root)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, path := range paths {
			if ctx.Err() != nil {
				break
			}
			examined++
			if !so.lists.Contains(domain.BlockList, path) {
				continue
			}
			ev := domain.NewThreatEvent(domain.KindFileCreate, 0).WithFile(path)
			out = so.assess(ctx, out, ev, &Finding{
				Severity:    domain.SeverityCritical,
				Name:        "Blacklisted File",
				Description: "A known malicious file was found.",
				Action:      domain.ActionRemove,
				Auto:        true,
			})
		}
	}

	if len(roots) == 0 || len(errs) == len(roots) {
		err := errors.Join(errs...)
		if err == nil {
			err = errors.New("no sweep roots configured")
		}
		return so.sweepUnavailable(SweepFile, started, err)
	}
	for _, err := range errs {
		log.Debug().Err(err).Str("sweep", SweepFile).Msg("root skipped")
	}
	so.sweepDone(SweepFile, started, len(out), examined)
	return out
}

// SweepMemory checks the modules loaded by every process against the
// block-list
func (so *ScanOrchestrator) SweepMemory(ctx context.Context) []domain.Detection {
	started := time.Now()
	procs, err := so.processes.FindAll(ctx)
	if err != nil {
		return so.sweepUnavailable(SweepMemory, started, err)
	}

	var out []domain.Detection
	for _, p := range procs {
		if ctx.Err() != nil {
			break
		}
		modules, err := so.processes.Modules(ctx, p.PID)
		if err != nil {
			// exited or access denied
			continue
		}
		for _, m := range modules {
			if !so.lists.Contains(domain.BlockList, m.Path) {
				continue
			}
			ev := domain.NewThreatEvent(domain.KindMemoryWrite, p.PID).WithFile(m.Path).WithTarget(p.Name)
			out = so.assess(ctx, out, ev, &Finding{
				Severity:    domain.SeverityCritical,
				Name:        "Blacklisted Module",
				Description: "A known malicious module is loaded in a process.",
				Action:      domain.ActionRemove,
				Auto:        true,
			})
		}
	}

	so.sweepDone(SweepMemory, started, len(out), len(procs))
	return out
}

// SweepRansomware reports encrypted files in the documents root. When there
// are any, it scans process memory for a candidate key, removes the first
// process holding one and tries that key on the files still present.
//
// The memory key scan is skipped entirely while the documents root holds no
// encrypted files, so a key-holding process that has not encrypted anything
// yet goes unreported by this sweep.
func (so *ScanOrchestrator) SweepRansomware(ctx context.Context) []domain.Detection {
	started := time.Now()

	encrypted, err := so.encryptedFiles()
	if err != nil {
		return so.sweepUnavailable(SweepRansomware, started, err)
	}

	var out []domain.Detection
	var fileDetections []domain.Detection
	for _, path := range encrypted {
		ev := domain.NewThreatEvent(domain.KindFileWrite, 0).WithFile(path)
		before := len(out)
		out = so.assess(ctx, out, ev, &Finding{
			Severity:    domain.SeverityCritical,
			Name:        "Encrypted File Detected",
			Description: "A file with a ransomware extension was found.",
			Action:      domain.ActionDecrypt,
		})
		if len(out) > before && out[len(out)-1].Verdict.Action == domain.ActionDecrypt {
			fileDetections = append(fileDetections, out[len(out)-1])
		}
	}

	if len(fileDetections) == 0 {
		so.sweepDone(SweepRansomware, started, len(out), len(encrypted))
		return out
	}

	procs, err := so.processes.FindAll(ctx)
	if err != nil {
		log.Warn().Err(err).Str("sweep", SweepRansomware).Msg("process enumeration unavailable, skipping key scan")
		so.sweepDone(SweepRansomware, started, len(out), len(encrypted))
		return out
	}

	for _, p := range procs {
		if ctx.Err() != nil {
			break
		}
		if p.PID == so.selfPID || p.PID == idlePID || p.PID == systemPID {
			continue
		}

		key := so.findKey(ctx, p.PID)
		if key == nil {
			continue
		}

		ev := domain.NewThreatEvent(domain.KindMemoryWrite, p.PID).WithTarget(p.Name)
		finding := &Finding{
			Severity: domain.SeverityCritical,
			Name:     "Ransomware Process",
			Description: fmt.Sprintf("A process containing encryption keys was found (%d-byte candidate, entropy %.2f).",
				len(key), domain.CalculateShannonEntropy(key)),
			Action: domain.ActionRemove,
			Auto:   true,
		}

		before := len(out)
		out = so.assess(ctx, out, ev, finding)
		if len(out) == before || out[len(out)-1].Verdict.Action != domain.ActionRemove {
			// allow-listed; not a ransomware process after all
			continue
		}
		so.keys.Learn(p.PID, key)

		for _, fileDet := range fileDetections {
			if _, err := os.Stat(fileDet.Event.FilePath); err != nil {
				continue
			}
			attempt := fileDet
			attempt.Event.ProcessID = p.PID
			so.responder.Respond(ctx, attempt, domain.ActionDecrypt)
		}
	}

	so.sweepDone(SweepRansomware, started, len(out), len(encrypted))
	return out
}

// findKey returns the first candidate key in the RW regions of pid
func (so *ScanOrchestrator) findKey(ctx context.Context, pid uint32) []byte {
	regions, err := so.memory.Regions(ctx, pid)
	if err != nil {
		return nil
	}
	for _, region := range regions {
		if ctx.Err() != nil {
			return nil
		}
		buf, err := so.memory.ReadRegion(ctx, pid, region, so.cfg.MaxRegionBytes)
		if err != nil {
			continue
		}
		if key := domain.FindCandidateKey(buf); key != nil {
			return key
		}
	}
	return nil
}

func (so *ScanOrchestrator) encryptedFiles() ([]string, error) {
	if so.cfg.DocumentsRoot == "" {
		return nil, fmt.Errorf("documents root not configured: %w", domain.ErrEnumerationUnavailable)
	}
	entries, err := os.ReadDir(so.cfg.DocumentsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", so.cfg.DocumentsRoot, err)
	}

	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if domain.HasRansomwareExtension(entry.Name(), so.cfg.RansomwareExts...) {
			out = append(out, filepath.Join(so.cfg.DocumentsRoot, entry.Name()))
		}
	}
	return out, nil
}

// assess classifies a sweep event and records it, unless the allow-list
// cleared it
func (so *ScanOrchestrator) assess(ctx context.Context, out []domain.Detection, ev domain.ThreatEvent, finding *Finding) []domain.Detection {
	det := so.engine.Assess(ctx, ev, finding)
	if det.Verdict.Action == domain.ActionAllow {
		log.Debug().Str("target", ev.TargetProcess).Str("path", ev.FilePath).Str("finding", finding.Name).Msg("allow-listed, not recorded")
		return out
	}
	so.record(ctx, det)
	return append(out, det)
}

// record appends to the history log and the archive; the two are
// independent and may briefly disagree
func (so *ScanOrchestrator) record(ctx context.Context, det domain.Detection) {
	rec := so.history.Add(det)
	so.metrics.SetHistorySize(so.history.Len())

	if so.archiver == nil {
		return
	}
	if err := so.archiver.Archive(ctx, rec); err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("failed to archive history record")
	}
}

func (so *ScanOrchestrator) sweepUnavailable(sweep string, started time.Time, err error) []domain.Detection {
	log.Warn().Err(err).Str("sweep", sweep).Msg("enumeration unavailable")
	so.metrics.ObserveSweep(sweep, started, 0, fmt.Errorf("%w: %v", domain.ErrEnumerationUnavailable, err))
	return nil
}

func (so *ScanOrchestrator) sweepDone(sweep string, started time.Time, detections, examined int) {
	so.metrics.ObserveSweep(sweep, started, detections, nil)
	log.Info().
		Str("sweep", sweep).
		Int("examined", examined).
		Int("detections", detections).
		Dur("elapsed", time.Since(started)).
		Msg("sweep complete")
}

// GetStats returns orchestrator statistics
func (so *ScanOrchestrator) GetStats() map[string]interface{} {
	so.mu.Lock()
	running := so.running
	so.mu.Unlock()

	return map[string]interface{}{
		"running":         running,
		"events_ingested": so.ingested.Load(),
		"events_dropped":  so.dropped.Load(),
		"events_pending":  len(so.events),
		"scans_run":       so.scans.Load(),
		"scans_queued":    so.pool.Pending(),
		"history_records": so.history.Len(),
	}
}

// executablesIn lists *.exe files directly inside dir, case-insensitively
func executablesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".exe") {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	return out, nil
}

func uniqueRoots(roots ...string) []string {
	seen := make(map[string]bool, len(roots))
	var out []string
	for _, r := range roots {
		if r == "" {
			continue
		}
		clean := filepath.Clean(r)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}
