//go:build !windows && !linux

package infrastructure

import (
	"context"

	"aegis/internal/domain"
)

// UnsupportedMemoryReader reports that region enumeration is unavailable
type UnsupportedMemoryReader struct{}

// NewMemoryReader creates the platform memory reader
func NewMemoryReader() *UnsupportedMemoryReader {
	return &UnsupportedMemoryReader{}
}

func (UnsupportedMemoryReader) Regions(ctx context.Context, pid uint32) ([]domain.MemoryRegion, error) {
	return nil, domain.ErrEnumerationUnavailable
}

func (UnsupportedMemoryReader) ReadRegion(ctx context.Context, pid uint32, region domain.MemoryRegion, max int) ([]byte, error) {
	return nil, domain.ErrEnumerationUnavailable
}
