package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSignatures(t *testing.T) {
	sig := DefaultSignatures()

	assert.Contains(t, sig.Block, "wannacry")
	assert.Contains(t, sig.Block, "rootkit")
	assert.Contains(t, sig.Block, ".jar")
	assert.Contains(t, sig.Allow, "explorer.exe")
	assert.Contains(t, sig.Allow, `C:\Windows\System32\`)
	assert.Len(t, sig.Block, 24)
	assert.Len(t, sig.Allow, 12)
}

func TestLoadSignaturesMissingFileUsesDefaults(t *testing.T) {
	sig, err := LoadSignatures(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSignatures(), sig)

	sig, err = LoadSignatures("")
	require.NoError(t, err)
	assert.Equal(t, "builtin", sig.Version)
}

func TestLoadSignaturesMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.yaml")
	content := `version: "2025.10"
block:
  - lockbit
  - wannacry
allow:
  - /usr/bin/
ransomware_extensions:
  - .WNCRY
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sig, err := LoadSignatures(path)
	require.NoError(t, err)

	assert.Equal(t, "2025.10", sig.Version)
	assert.Contains(t, sig.Block, "lockbit")
	assert.Len(t, sig.Block, 25, "wannacry must not be duplicated")
	assert.Contains(t, sig.Allow, "/usr/bin/")
	assert.Equal(t, []string{".wncry"}, sig.RansomwareExtensions)
}

func TestLoadSignaturesRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("block: [unterminated"), 0o644))

	_, err := LoadSignatures(path)
	assert.Error(t, err)
}

func TestSignaturesSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "signatures.yaml")
	sig := DefaultSignatures()
	sig.Merge(&Signatures{Block: []string{"blackcat"}})

	require.NoError(t, sig.Save(path))

	loaded, err := LoadSignatures(path)
	require.NoError(t, err)
	assert.Contains(t, loaded.Block, "blackcat")
}
