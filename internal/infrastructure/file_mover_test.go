package infrastructure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameFileMover(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sample.exe")
	dst := filepath.Join(dir, "q", "sample_1.exe")
	require.NoError(t, os.WriteFile(src, []byte("MZ"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o700))

	require.NoError(t, RenameFileMover{}.Move(src, dst))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("MZ"), data)
}

func TestRenameFileMoverMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := RenameFileMover{}.Move(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCopyFileRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	assert.Error(t, copyFile(src, dst))
	data, _ := os.ReadFile(dst)
	assert.Equal(t, []byte("old"), data)
}
