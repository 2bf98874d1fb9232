//go:build !windows

package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"

	"aegis/internal/domain"
)

// PsProcessRepository implements ProcessRepository with gopsutil. A process
// with a controlling terminal stands in for one with a visible window.
type PsProcessRepository struct{}

// NewProcessRepository creates the platform process repository
func NewProcessRepository() *PsProcessRepository {
	return &PsProcessRepository{}
}

func (r *PsProcessRepository) FindAll(ctx context.Context) ([]*domain.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEnumerationUnavailable, err)
	}

	out := make([]*domain.Process, 0, len(procs))
	for _, p := range procs {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		name, err := p.NameWithContext(ctx)
		if err != nil {
			// exited between listing and inspection
			continue
		}
		exe, _ := p.ExeWithContext(ctx)

		proc, err := domain.NewProcess(uint32(p.Pid), name, exe)
		if err != nil {
			continue
		}
		proc.HasWindow = hasTerminal(ctx, p)
		out = append(out, proc)
	}
	return out, nil
}

// hasTerminal treats "unknown" as having one so platforms without tty
// support do not flag every process as hidden
func hasTerminal(ctx context.Context, p *process.Process) bool {
	tty, err := p.TerminalWithContext(ctx)
	if err != nil {
		return runtime.GOOS != "linux"
	}
	return tty != ""
}

func (r *PsProcessRepository) Modules(ctx context.Context, pid uint32) ([]domain.Module, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}

	maps, err := p.MemoryMapsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("memory maps for PID %d: %w", pid, err)
	}
	if maps == nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	var modules []domain.Module
	for _, m := range *maps {
		// anonymous and pseudo mappings ([heap], [stack], ...) are not images
		if m.Path == "" || m.Path[0] != '/' || seen[m.Path] {
			continue
		}
		seen[m.Path] = true
		modules = append(modules, domain.Module{Path: m.Path})
	}
	return modules, nil
}

// PsProcessController kills processes through gopsutil
type PsProcessController struct{}

// NewProcessController creates the platform process controller
func NewProcessController() *PsProcessController {
	return &PsProcessController{}
}

func (c *PsProcessController) Terminate(ctx context.Context, pid uint32) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return fmt.Errorf("process %d not running: %w", pid, err)
		}
		return fmt.Errorf("process %d: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("kill failed for PID %d: %w", pid, err)
	}
	return nil
}
