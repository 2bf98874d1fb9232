package repository

import (
	"context"

	"aegis/internal/domain"
)

// ProcessRepository enumerates the live process table
type ProcessRepository interface {
	FindAll(ctx context.Context) ([]*domain.Process, error)
	Modules(ctx context.Context, pid uint32) ([]domain.Module, error)
}

// MemoryReader walks and reads the address space of other processes
type MemoryReader interface {
	Regions(ctx context.Context, pid uint32) ([]domain.MemoryRegion, error)
	ReadRegion(ctx context.Context, pid uint32, region domain.MemoryRegion, max int) ([]byte, error)
}

// ProcessController defines the interface for process control operations
// Separated from query operations (Interface Segregation Principle)
type ProcessController interface {
	Terminate(ctx context.Context, pid uint32) error
}

// FileMover relocates a file, crossing devices if it has to
type FileMover interface {
	Move(src, dst string) error
}

// ListPersistence loads and stores the list snapshot and settings
type ListPersistence interface {
	LoadLists(ctx context.Context) (map[domain.ListKind][]domain.ListEntry, error)
	LoadRemoved(ctx context.Context) (map[domain.ListKind][]string, error)
	SaveLists(ctx context.Context, lists map[domain.ListKind][]domain.ListEntry, removed map[domain.ListKind][]string) error
	LoadSettings(ctx context.Context, defaults domain.Settings) (domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) error
}

// HistoryArchiver keeps history beyond the process lifetime
type HistoryArchiver interface {
	Archive(ctx context.Context, rec domain.HistoryRecord) error
}
