package infrastructure

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"aegis/internal/domain"
)

// FileSensor turns filesystem notifications under the watched roots into
// ThreatEvents. Notifications carry no actor, so the events have PID 0.
type FileSensor struct {
	sink    EventSink
	metrics *Metrics
	paths   []string
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup

	mu       sync.Mutex
	received int
	dropped  int
}

// NewFileSensor creates a sensor for the given directories; missing ones are
// skipped at Start
func NewFileSensor(sink EventSink, metrics *Metrics, paths []string) *FileSensor {
	return &FileSensor{sink: sink, metrics: metrics, paths: paths}
}

// Start adds the watches and begins forwarding events
func (s *FileSensor) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	watched := 0
	for _, p := range s.paths {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			log.Debug().Str("path", p).Msg("watch path unavailable, skipping")
			continue
		}
		if err := watcher.Add(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("failed to watch path")
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return fmt.Errorf("no watchable paths in %v", s.paths)
	}

	s.watcher = watcher
	s.wg.Add(1)
	go s.run(ctx)

	log.Info().Int("paths", watched).Msg("file sensor started")
	return nil
}

// Stop closes the watcher and waits for the forwarding goroutine
func (s *FileSensor) Stop() {
	if s.watcher == nil {
		return
	}
	s.watcher.Close()
	s.wg.Wait()
	log.Info().Msg("file sensor stopped")
}

func (s *FileSensor) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (s *FileSensor) handle(event fsnotify.Event) {
	if shouldSkipFile(event.Name) {
		return
	}
	kind, ok := FileOpKind(event.Op, event.Name)
	if !ok {
		return
	}

	accepted := s.sink.Ingest(domain.NewThreatEvent(kind, 0).WithFile(event.Name))
	s.metrics.ObserveSensorEvent("fsnotify", accepted)

	s.mu.Lock()
	s.received++
	if !accepted {
		s.dropped++
	}
	s.mu.Unlock()
}

// shouldSkipFile drops editor and partial-download noise
func shouldSkipFile(name string) bool {
	base := strings.ToLower(domain.LastPathComponent(name))
	for _, suffix := range []string{".tmp", ".swp", "~", ".crdownload", ".part"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return strings.HasPrefix(base, ".#")
}

// GetStats returns sensor statistics
func (s *FileSensor) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"paths":    len(s.paths),
		"received": s.received,
		"dropped":  s.dropped,
	}
}
