//go:build windows

package infrastructure

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"aegis/internal/domain"
)

// WindowsMemoryReader walks committed read-write regions with VirtualQueryEx
type WindowsMemoryReader struct{}

// NewMemoryReader creates the platform memory reader
func NewMemoryReader() *WindowsMemoryReader {
	return &WindowsMemoryReader{}
}

func (m *WindowsMemoryReader) Regions(ctx context.Context, pid uint32) ([]domain.MemoryRegion, error) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		return nil, fmt.Errorf("OpenProcess failed for PID %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	var (
		regions []domain.MemoryRegion
		mbi     windows.MemoryBasicInformation
		addr    uintptr
	)
	for {
		if ctx.Err() != nil {
			return regions, ctx.Err()
		}
		if err := windows.VirtualQueryEx(handle, addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			break
		}

		if mbi.State&windows.MEM_COMMIT != 0 && mbi.Protect&windows.PAGE_READWRITE != 0 {
			regions = append(regions, domain.MemoryRegion{
				Base: uint64(mbi.BaseAddress),
				Size: uint64(mbi.RegionSize),
			})
		}

		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next
	}
	return regions, nil
}

func (m *WindowsMemoryReader) ReadRegion(ctx context.Context, pid uint32, region domain.MemoryRegion, max int) ([]byte, error) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		return nil, fmt.Errorf("OpenProcess failed for PID %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	size := region.Size
	if max > 0 && size > uint64(max) {
		size = uint64(max)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	var read uintptr
	err = windows.ReadProcessMemory(handle, uintptr(region.Base), &buf[0], uintptr(size), &read)
	if read > 0 {
		return buf[:read], nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReadProcessMemory failed for PID %d: %w", pid, err)
	}
	return nil, nil
}
