// Command xor_ransomware encrypts the files of a scratch directory the way
// the engine's decrypt action expects: XOR with a 16-byte key, then a
// ".encrypted" suffix. It keeps the key in memory and idles until
// interrupted so a full scan can find it.
//
//	AEGIS_DOCUMENTS_ROOT=/tmp/aegis-sim go run ./test/simulators -dir /tmp/aegis-sim -generate 20
//	aegis scan --full
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"aegis/internal/domain"
	"aegis/internal/infrastructure"
)

const encryptedSuffix = ".encrypted"

type simulator struct {
	dir      string
	generate int
	rate     int
	key      []byte
}

func main() {
	sim := &simulator{}
	flag.StringVar(&sim.dir, "dir", "", "Scratch directory to encrypt (REQUIRED, must look like a test directory)")
	flag.IntVar(&sim.generate, "generate", 0, "Create this many sample files first")
	flag.IntVar(&sim.rate, "rate", 50, "Files per second")
	hold := flag.Duration("hold", 0, "Idle this long after encrypting; 0 waits for Ctrl+C")
	flag.Parse()

	infrastructure.SetupConsoleLogging("info")

	if sim.dir == "" {
		log.Fatal().Msg("-dir is required")
	}
	if !isSafeDirectory(sim.dir) {
		log.Fatal().Str("dir", sim.dir).Msg("refusing to run outside an isolated test directory")
	}
	if err := os.MkdirAll(sim.dir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create directory")
	}

	sim.key = make([]byte, 16)
	if _, err := rand.Read(sim.key); err != nil {
		log.Fatal().Err(err).Msg("failed to generate key")
	}

	log.Info().Int("pid", os.Getpid()).Str("key", hex.EncodeToString(sim.key)).Msg("simulator started")

	if sim.generate > 0 {
		if err := sim.generateFiles(); err != nil {
			log.Fatal().Err(err).Msg("failed to generate sample files")
		}
	}

	encrypted, err := sim.encryptAll()
	if err != nil {
		log.Fatal().Err(err).Msg("encryption failed")
	}
	log.Info().Int("files", encrypted).Msg("encryption finished, holding key in memory")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	if *hold > 0 {
		select {
		case <-sigChan:
		case <-time.After(*hold):
		}
	} else {
		<-sigChan
	}

	runtime.KeepAlive(sim.key)
	log.Info().Msg("simulator exiting")
}

func (s *simulator) generateFiles() error {
	for i := 0; i < s.generate; i++ {
		path := filepath.Join(s.dir, fmt.Sprintf("document_%03d.txt", i))
		content := strings.Repeat(fmt.Sprintf("Sample document %d for the ransomware simulator.\n", i), 32)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	log.Info().Int("files", s.generate).Str("dir", s.dir).Msg("sample files created")
	return nil
}

func (s *simulator) encryptAll() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	delay := time.Second / time.Duration(max(s.rate, 1))
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), encryptedSuffix) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := s.encryptFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to encrypt")
			continue
		}
		count++
		time.Sleep(delay)
	}
	return count, nil
}

// encryptFile rewrites path in place and renames it with the suffix
func (s *simulator) encryptFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	domain.XORBytes(data, s.key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	return os.Rename(path, path+encryptedSuffix)
}

func isSafeDirectory(dir string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}

	for _, unsafePath := range []string{`C:\Windows`, `C:\Program Files`, "/usr", "/etc", "/bin"} {
		if strings.HasPrefix(absDir, unsafePath) {
			return false
		}
	}

	name := strings.ToLower(filepath.Base(absDir))
	return strings.Contains(name, "test") ||
		strings.Contains(name, "sim") ||
		strings.Contains(name, "demo")
}
