//go:build !windows

package infrastructure

// NewFileMover creates the platform file mover
func NewFileMover() *RenameFileMover {
	return &RenameFileMover{}
}
