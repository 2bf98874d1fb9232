package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Signatures is the seed catalogue for the allow-list and block-list
type Signatures struct {
	Version              string   `yaml:"version"`
	Block                []string `yaml:"block"`
	Allow                []string `yaml:"allow"`
	RansomwareExtensions []string `yaml:"ransomware_extensions"`
}

// DefaultSignatures returns the built-in catalogue
func DefaultSignatures() *Signatures {
	return &Signatures{
		Version: "builtin",
		Block: []string{
			// ransomware families
			"wannacry", "petya", "notpetya", "badrabbit", "ryuk", "sodinokibi",
			"locky", "cryptolocker", "cerber", "zeus", "conficker",
			// generic malicious behaviour
			"backdoor", "keylogger", "stealer", "spyware", "rootkit",
			// suspicious extensions
			".scr", ".pif", ".com", ".bat", ".cmd", ".vbs", ".js", ".jar",
		},
		Allow: []string{
			"explorer.exe", "svchost.exe", "lsass.exe", "csrss.exe",
			"wininit.exe", "services.exe", "winlogon.exe", "System",
			`C:\Windows\System32\`, `C:\Windows\SysWOW64\`,
			`C:\Program Files\`, `C:\Program Files (x86)\`,
		},
	}
}

// LoadSignatures reads a YAML catalogue. An empty path or a missing file
// yields the built-in catalogue.
func LoadSignatures(path string) (*Signatures, error) {
	sig := DefaultSignatures()
	if path == "" {
		return sig, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sig, nil
		}
		return nil, fmt.Errorf("failed to read signatures: %w", err)
	}

	var fromFile Signatures
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("failed to parse signatures: %w", err)
	}

	sig.Merge(&fromFile)
	if fromFile.Version != "" {
		sig.Version = fromFile.Version
	}
	return sig, nil
}

// Merge adds patterns from other that are not yet present
func (s *Signatures) Merge(other *Signatures) {
	s.Block = appendMissing(s.Block, other.Block, false)
	s.Allow = appendMissing(s.Allow, other.Allow, false)
	s.RansomwareExtensions = appendMissing(s.RansomwareExtensions, other.RansomwareExtensions, true)
}

func appendMissing(dst, src []string, lower bool) []string {
	seen := make(map[string]bool, len(dst))
	for _, existing := range dst {
		seen[existing] = true
	}
	for _, p := range src {
		p = strings.TrimSpace(p)
		if lower {
			p = strings.ToLower(p)
		}
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		dst = append(dst, p)
	}
	return dst
}

// Save writes the catalogue as YAML
func (s *Signatures) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal signatures: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create signatures directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write signatures: %w", err)
	}
	return nil
}
