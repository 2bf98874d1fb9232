package usecase

import (
	"context"
	"errors"
	"sync"

	"aegis/internal/domain"
)

type fakeController struct {
	mu         sync.Mutex
	terminated []uint32
	err        error
}

func (f *fakeController) Terminate(_ context.Context, pid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.terminated = append(f.terminated, pid)
	return nil
}

func (f *fakeController) pids() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.terminated...)
}

type responderCall struct {
	det    domain.Detection
	action domain.Action
}

type fakeResponder struct {
	mu    sync.Mutex
	calls []responderCall
}

func (f *fakeResponder) Respond(_ context.Context, det domain.Detection, action domain.Action) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, responderCall{det: det, action: action})
	return Outcome{Action: action, Executed: true}
}

func (f *fakeResponder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []domain.Detection
}

func (f *fakeNotifier) Notify(det domain.Detection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, det)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type fakeProcesses struct {
	procs   []*domain.Process
	modules map[uint32][]domain.Module
	err     error

	mu          sync.Mutex
	moduleCalls int
}

func (f *fakeProcesses) FindAll(context.Context) ([]*domain.Process, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*domain.Process, 0, len(f.procs))
	for _, p := range f.procs {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeProcesses) Modules(_ context.Context, pid uint32) ([]domain.Module, error) {
	f.mu.Lock()
	f.moduleCalls++
	f.mu.Unlock()
	mods, ok := f.modules[pid]
	if !ok {
		return nil, errors.New("access denied")
	}
	return mods, nil
}

// fakeMemory serves one region per process holding the configured bytes
type fakeMemory struct {
	contents map[uint32][]byte

	mu    sync.Mutex
	reads int
}

func (f *fakeMemory) Regions(_ context.Context, pid uint32) ([]domain.MemoryRegion, error) {
	data, ok := f.contents[pid]
	if !ok {
		return nil, errors.New("access denied")
	}
	return []domain.MemoryRegion{{Base: 0x10000, Size: uint64(len(data))}}, nil
}

func (f *fakeMemory) ReadRegion(_ context.Context, pid uint32, region domain.MemoryRegion, max int) ([]byte, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	data := f.contents[pid]
	if len(data) > max {
		data = data[:max]
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeMemory) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

type fakeArchiver struct {
	mu   sync.Mutex
	recs []domain.HistoryRecord
}

func (f *fakeArchiver) Archive(_ context.Context, rec domain.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeArchiver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}
