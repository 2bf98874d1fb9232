//go:build windows

package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"
)

// Windows Event Log API
var (
	modWevtapi       = windows.NewLazySystemDLL("wevtapi.dll")
	procEvtSubscribe = modWevtapi.NewProc("EvtSubscribe")
	procEvtNext      = modWevtapi.NewProc("EvtNext")
	procEvtRender    = modWevtapi.NewProc("EvtRender")
	procEvtClose     = modWevtapi.NewProc("EvtClose")
)

// Event subscription flags
const (
	evtSubscribeToFutureEvents = 1
	evtRenderEventXml          = 1
)

const sysmonChannel = "Microsoft-Windows-Sysmon/Operational"

// SysmonSensor pulls Sysmon events, converts them to ThreatEvents and hands
// them to the sink. Rendering and parsing run on a small worker pool.
type SysmonSensor struct {
	sink           EventSink
	metrics        *Metrics
	workerPoolSize int
	rawEvents      chan []byte
	wg             sync.WaitGroup
	mu             sync.RWMutex
	running        bool
	received       int
	dropped        int
}

// NewSysmonSensor creates a Sysmon sensor feeding sink
func NewSysmonSensor(sink EventSink, metrics *Metrics, workerPoolSize int) *SysmonSensor {
	if workerPoolSize < 1 {
		workerPoolSize = 1
	}
	return &SysmonSensor{
		sink:           sink,
		metrics:        metrics,
		workerPoolSize: workerPoolSize,
		rawEvents:      make(chan []byte, 1000),
	}
}

// Start begins consuming Sysmon events
func (s *SysmonSensor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sysmon sensor already running")
	}
	s.running = true
	s.mu.Unlock()

	for i := 0; i < s.workerPoolSize; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.wg.Add(1)
	go s.subscribe(ctx)

	log.Info().Int("workers", s.workerPoolSize).Str("channel", sysmonChannel).Msg("sysmon sensor started")
	return nil
}

// Stop waits for the subscription and workers; cancel the Start context first
func (s *SysmonSensor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Msg("sysmon sensor stopped")
}

func (s *SysmonSensor) subscribe(ctx context.Context) {
	defer s.wg.Done()

	query := "*[System[(EventID=2 or EventID=8 or EventID=10 or EventID=11 or EventID=25)]]"

	queryPtr, err := windows.UTF16PtrFromString(query)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode Sysmon query")
		return
	}
	channelPtr, err := windows.UTF16PtrFromString(sysmonChannel)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode Sysmon channel")
		return
	}

	signalEvent, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to create signal event")
		return
	}
	defer windows.CloseHandle(signalEvent)

	ret, _, err := procEvtSubscribe.Call(
		0,
		uintptr(signalEvent),
		uintptr(unsafe.Pointer(channelPtr)),
		uintptr(unsafe.Pointer(queryPtr)),
		0,
		0,
		0, // pull subscription
		evtSubscribeToFutureEvents,
	)
	if ret == 0 {
		log.Warn().Err(err).Msg("EvtSubscribe failed; is Sysmon installed and running as Administrator? continuing without it")
		return
	}

	subscription := windows.Handle(ret)
	defer procEvtClose.Call(uintptr(subscription))

	s.poll(ctx, subscription)
}

func (s *SysmonSensor) poll(ctx context.Context, subscription windows.Handle) {
	for {
		if ctx.Err() != nil {
			return
		}

		events := make([]windows.Handle, 10)
		var returned uint32
		ret, _, _ := procEvtNext.Call(
			uintptr(subscription),
			uintptr(len(events)),
			uintptr(unsafe.Pointer(&events[0])),
			uintptr(1000),
			0,
			uintptr(unsafe.Pointer(&returned)),
		)
		if ret == 0 || returned == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		for i := uint32(0); i < returned; i++ {
			if events[i] == 0 {
				continue
			}
			raw := renderEventXML(events[i])
			procEvtClose.Call(uintptr(events[i]))
			if len(raw) == 0 {
				continue
			}

			select {
			case s.rawEvents <- raw:
			case <-ctx.Done():
				return
			default:
				s.mu.Lock()
				s.dropped++
				s.mu.Unlock()
				s.metrics.ObserveSensorEvent("sysmon", false)
			}
		}
	}
}

func renderEventXML(event windows.Handle) []byte {
	var bufferUsed, propertyCount uint32

	procEvtRender.Call(
		0,
		uintptr(event),
		evtRenderEventXml,
		0,
		0,
		uintptr(unsafe.Pointer(&bufferUsed)),
		uintptr(unsafe.Pointer(&propertyCount)),
	)
	if bufferUsed == 0 {
		return nil
	}

	buffer := make([]uint16, bufferUsed/2+1)
	ret, _, err := procEvtRender.Call(
		0,
		uintptr(event),
		evtRenderEventXml,
		uintptr(len(buffer)*2),
		uintptr(unsafe.Pointer(&buffer[0])),
		uintptr(unsafe.Pointer(&bufferUsed)),
		uintptr(unsafe.Pointer(&propertyCount)),
	)
	if ret == 0 {
		log.Debug().Err(err).Msg("EvtRender failed")
		return nil
	}
	return []byte(windows.UTF16ToString(buffer))
}

func (s *SysmonSensor) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-s.rawEvents:
			ev, ok, err := ParseSysmonEvent(raw)
			if err != nil {
				log.Debug().Err(err).Msg("skipping Sysmon event")
				continue
			}
			if !ok {
				continue
			}

			accepted := s.sink.Ingest(ev)
			s.metrics.ObserveSensorEvent("sysmon", accepted)

			s.mu.Lock()
			s.received++
			if !accepted {
				s.dropped++
			}
			s.mu.Unlock()
		}
	}
}

// GetStats returns sensor statistics
func (s *SysmonSensor) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"running":          s.running,
		"worker_pool_size": s.workerPoolSize,
		"channel_length":   len(s.rawEvents),
		"channel_capacity": cap(s.rawEvents),
		"received":         s.received,
		"dropped":          s.dropped,
	}
}
