//go:build windows

package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"aegis/internal/domain"
)

var (
	windowMu         sync.Mutex
	windowOwners     map[uint32]bool
	enumWindowsProcs = syscall.NewCallback(collectWindowOwner)
)

func collectWindowOwner(hwnd windows.HWND, _ uintptr) uintptr {
	if windows.IsWindowVisible(hwnd) {
		var pid uint32
		if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err == nil {
			windowOwners[pid] = true
		}
	}
	return 1 // continue enumeration
}

// visibleWindowOwners returns the PIDs owning a visible top-level window
func visibleWindowOwners() map[uint32]bool {
	windowMu.Lock()
	defer windowMu.Unlock()

	windowOwners = make(map[uint32]bool)
	_ = windows.EnumWindows(enumWindowsProcs, nil)
	owners := windowOwners
	windowOwners = nil
	return owners
}

// WindowsProcessRepository implements ProcessRepository with toolhelp snapshots
type WindowsProcessRepository struct{}

// NewProcessRepository creates the platform process repository
func NewProcessRepository() *WindowsProcessRepository {
	return &WindowsProcessRepository{}
}

func (r *WindowsProcessRepository) FindAll(ctx context.Context) ([]*domain.Process, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: process snapshot: %v", domain.ErrEnumerationUnavailable, err)
	}
	defer windows.CloseHandle(snapshot)

	owners := visibleWindowOwners()

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, fmt.Errorf("%w: Process32First: %v", domain.ErrEnumerationUnavailable, err)
	}

	var processes []*domain.Process
	for {
		if ctx.Err() != nil {
			return processes, ctx.Err()
		}

		pid := entry.ProcessID
		// PID 0 is the idle pseudo-process
		if proc, err := domain.NewProcess(pid, windows.UTF16ToString(entry.ExeFile[:]), imagePath(pid)); err == nil {
			proc.HasWindow = owners[pid]
			processes = append(processes, proc)
		}

		if err := windows.Process32Next(snapshot, &entry); err != nil {
			break
		}
	}

	return processes, nil
}

func (r *WindowsProcessRepository) Modules(ctx context.Context, pid uint32) ([]domain.Module, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, pid)
	if err != nil {
		return nil, fmt.Errorf("module snapshot for PID %d: %w", pid, err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Module32First(snapshot, &entry); err != nil {
		return nil, fmt.Errorf("Module32First for PID %d: %w", pid, err)
	}

	var modules []domain.Module
	for {
		if ctx.Err() != nil {
			return modules, ctx.Err()
		}
		modules = append(modules, domain.Module{Path: windows.UTF16ToString(entry.ExePath[:])})

		if err := windows.Module32Next(snapshot, &entry); err != nil {
			break
		}
	}
	return modules, nil
}

// imagePath resolves the full image path, or "" when access is denied
func imagePath(pid uint32) string {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(handle)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:size])
}
