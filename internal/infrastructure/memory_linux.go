//go:build linux

package infrastructure

import (
	"context"
	"fmt"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"aegis/internal/domain"
)

// ProcfsMemoryReader lists rw mappings from /proc/<pid>/maps and reads them
// with process_vm_readv
type ProcfsMemoryReader struct {
	fs  procfs.FS
	err error
}

// NewMemoryReader creates the platform memory reader
func NewMemoryReader() *ProcfsMemoryReader {
	fs, err := procfs.NewDefaultFS()
	return &ProcfsMemoryReader{fs: fs, err: err}
}

func (m *ProcfsMemoryReader) Regions(ctx context.Context, pid uint32) ([]domain.MemoryRegion, error) {
	if m.err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEnumerationUnavailable, m.err)
	}

	proc, err := m.fs.Proc(int(pid))
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}
	maps, err := proc.ProcMaps()
	if err != nil {
		return nil, fmt.Errorf("maps for PID %d: %w", pid, err)
	}

	var regions []domain.MemoryRegion
	for _, mp := range maps {
		if ctx.Err() != nil {
			return regions, ctx.Err()
		}
		if mp.Perms == nil || !mp.Perms.Read || !mp.Perms.Write {
			continue
		}
		if mp.EndAddr <= mp.StartAddr {
			continue
		}
		regions = append(regions, domain.MemoryRegion{
			Base: uint64(mp.StartAddr),
			Size: uint64(mp.EndAddr - mp.StartAddr),
		})
	}
	return regions, nil
}

func (m *ProcfsMemoryReader) ReadRegion(ctx context.Context, pid uint32, region domain.MemoryRegion, max int) ([]byte, error) {
	size := region.Size
	if max > 0 && size > uint64(max) {
		size = uint64(max)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(region.Base), Len: len(buf)}}

	n, err := unix.ProcessVMReadv(int(pid), local, remote, 0)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		return nil, fmt.Errorf("process_vm_readv failed for PID %d: %w", pid, err)
	}
	return nil, nil
}
