package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"aegis/internal/domain"
	"aegis/internal/infrastructure"
	"aegis/internal/repository"
)

// System Idle and System
const (
	idlePID   = 0
	systemPID = 4
)

var errNoSubject = errors.New("detection has no subject for this action")

// Outcome describes what a response did. It is informational: callers log
// it, nothing is retried on failure.
type Outcome struct {
	Action   domain.Action
	Executed bool
	Steps    []string
	Err      error
}

func (o *Outcome) step(format string, args ...interface{}) {
	o.Steps = append(o.Steps, fmt.Sprintf(format, args...))
}

func (o *Outcome) fail(err error) {
	o.Err = errors.Join(o.Err, err)
}

// ResponseOrchestrator executes remediation actions against processes,
// files and the allow-list. Every step is best-effort.
type ResponseOrchestrator struct {
	lists      *domain.ListStore
	history    *domain.HistoryLog
	controller repository.ProcessController
	mover      repository.FileMover
	keys       *KeyStore
	metrics    *infrastructure.Metrics

	quarantineDir  string
	ransomwareExts []string
	selfPID        uint32

	mu sync.RWMutex

	// Statistics
	stats struct {
		processesTerminated int
		filesDeleted        int
		filesQuarantined    int
		entriesAllowed      int
		filesDecrypted      int
		failures            int
	}
}

// NewResponseOrchestrator creates a new response orchestrator
func NewResponseOrchestrator(
	lists *domain.ListStore,
	history *domain.HistoryLog,
	controller repository.ProcessController,
	mover repository.FileMover,
	keys *KeyStore,
	quarantineDir string,
	metrics *infrastructure.Metrics,
) *ResponseOrchestrator {
	return &ResponseOrchestrator{
		lists:         lists,
		history:       history,
		controller:    controller,
		mover:         mover,
		keys:          keys,
		metrics:       metrics,
		quarantineDir: quarantineDir,
		selfPID:       uint32(os.Getpid()),
	}
}

// SetRansomwareExtensions adds catalogue suffixes stripped after decryption
func (ro *ResponseOrchestrator) SetRansomwareExtensions(exts []string) {
	ro.ransomwareExts = exts
}

// Respond executes action for det. The caller is responsible for not
// invoking it twice for the same detection.
func (ro *ResponseOrchestrator) Respond(ctx context.Context, det domain.Detection, action domain.Action) Outcome {
	out := Outcome{Action: action}

	switch action {
	case domain.ActionNone:
		return out
	case domain.ActionRemove:
		ro.remove(ctx, det, &out)
	case domain.ActionQuarantine:
		ro.quarantine(det, &out)
	case domain.ActionAllow:
		ro.allow(det, &out)
	case domain.ActionBlock:
		ro.block(ctx, det, &out)
	case domain.ActionDecrypt:
		ro.decrypt(det, &out)
	default:
		out.fail(fmt.Errorf("unsupported action %s", action))
	}

	ro.metrics.ObserveResponse(action, out.Err)

	logger := log.With().
		Str("id", det.ID).
		Str("action", action.String()).
		Uint32("pid", det.Event.ProcessID).
		Str("path", det.Event.FilePath).
		Str("target", det.Event.TargetProcess).
		Strs("steps", out.Steps).
		Logger()
	if out.Err != nil {
		ro.mu.Lock()
		ro.stats.failures++
		ro.mu.Unlock()
		logger.Warn().Err(out.Err).Bool("executed", out.Executed).Msg("response incomplete")
	} else {
		logger.Info().Msg("response executed")
	}
	return out
}

// RespondCode is the UI callback: code 0, 1 or 2 applied to a history record
func (ro *ResponseOrchestrator) RespondCode(ctx context.Context, historyID string, code int) (Outcome, error) {
	action, err := domain.ParseActionCode(code)
	if err != nil {
		return Outcome{}, err
	}

	rec, ok := ro.history.Get(historyID)
	if !ok {
		return Outcome{}, fmt.Errorf("history record %s: %w", historyID, domain.ErrNotFound)
	}

	return ro.Respond(ctx, rec.Detection, action), nil
}

func (ro *ResponseOrchestrator) remove(ctx context.Context, det domain.Detection, out *Outcome) {
	if pid := det.Event.ProcessID; pid != 0 {
		if err := ro.terminate(ctx, pid); err != nil {
			out.fail(err)
		} else {
			out.Executed = true
			out.step("terminated pid %d", pid)
		}
	}

	if path := det.Event.FilePath; path != "" {
		err := os.Remove(path)
		switch {
		case err == nil:
			out.Executed = true
			out.step("deleted %s", path)
			ro.mu.Lock()
			ro.stats.filesDeleted++
			ro.mu.Unlock()
		case errors.Is(err, fs.ErrNotExist):
			out.step("%s already gone", path)
		default:
			out.fail(fmt.Errorf("failed to delete %s: %w", path, err))
		}
	}
}

func (ro *ResponseOrchestrator) quarantine(det domain.Detection, out *Outcome) {
	path := det.Event.FilePath
	if path == "" {
		out.fail(errNoSubject)
		return
	}

	if err := os.MkdirAll(ro.quarantineDir, 0o700); err != nil {
		out.fail(fmt.Errorf("failed to create quarantine directory: %w", err))
		return
	}

	dst := QuarantinePath(ro.quarantineDir, path, det.Event.Timestamp)
	if _, err := os.Stat(dst); err == nil {
		// same event quarantined twice; keep both copies
		dst = QuarantinePath(ro.quarantineDir, path, time.Now())
	}

	if err := ro.mover.Move(path, dst); err != nil {
		out.fail(fmt.Errorf("failed to quarantine %s: %w", path, err))
		return
	}

	out.Executed = true
	out.step("moved %s to %s", path, dst)
	ro.mu.Lock()
	ro.stats.filesQuarantined++
	ro.mu.Unlock()
}

// QuarantinePath builds <dir>/<base>_<unixnano><ext> for src
func QuarantinePath(dir, src string, ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	name := domain.LastPathComponent(src)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, base+"_"+strconv.FormatInt(ts.UnixNano(), 10)+ext)
}

func (ro *ResponseOrchestrator) allow(det domain.Detection, out *Outcome) {
	subjects := []string{det.Event.FilePath, det.Event.TargetProcess}
	for _, subject := range subjects {
		if subject == "" {
			continue
		}
		added, err := ro.lists.Insert(domain.AllowList, subject)
		if err != nil {
			out.fail(err)
			continue
		}
		out.Executed = true
		if added {
			out.step("allowed %s", subject)
			ro.mu.Lock()
			ro.stats.entriesAllowed++
			ro.mu.Unlock()
		} else {
			out.step("%s already allowed", subject)
		}
	}

	if det.Event.FilePath == "" && det.Event.TargetProcess == "" {
		out.fail(errNoSubject)
	}
	ro.metrics.SetListSize(domain.AllowList, ro.lists.Len(domain.AllowList))
}

// block stops the actor of the blocked access
func (ro *ResponseOrchestrator) block(ctx context.Context, det domain.Detection, out *Outcome) {
	pid := det.Event.ProcessID
	if pid == 0 {
		out.fail(errNoSubject)
		return
	}
	if err := ro.terminate(ctx, pid); err != nil {
		out.fail(err)
		return
	}
	out.Executed = true
	out.step("terminated pid %d", pid)
}

// decrypt applies the learned key in place and strips the ransomware suffix.
// XOR with a guessed key: the result is only as good as the guess.
func (ro *ResponseOrchestrator) decrypt(det domain.Detection, out *Outcome) {
	path := det.Event.FilePath
	if path == "" {
		out.fail(errNoSubject)
		return
	}

	key, ok := ro.keys.KeyFor(det.Event.ProcessID)
	if !ok {
		out.fail(domain.ErrNoKey)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		out.fail(fmt.Errorf("failed to stat %s: %w", path, err))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		out.fail(fmt.Errorf("failed to read %s: %w", path, err))
		return
	}

	domain.XORBytes(data, key)

	if err := os.WriteFile(path, data, info.Mode().Perm()); err != nil {
		out.fail(fmt.Errorf("failed to write %s: %w", path, err))
		return
	}
	out.Executed = true
	out.step("applied %d-byte key to %s", len(key), path)

	if restored, stripped := domain.StripRansomwareSuffix(path, ro.ransomwareExts...); stripped {
		if _, err := os.Lstat(restored); err == nil {
			out.step("%s already exists, kept %s", restored, path)
		} else {
			if err := os.Rename(path, restored); err != nil {
				out.fail(fmt.Errorf("failed to rename %s: %w", path, err))
				return
			}
			out.step("renamed to %s", restored)
		}
	}

	ro.mu.Lock()
	ro.stats.filesDecrypted++
	ro.mu.Unlock()
}

func (ro *ResponseOrchestrator) terminate(ctx context.Context, pid uint32) error {
	if pid == idlePID || pid == systemPID || pid == ro.selfPID {
		return fmt.Errorf("pid %d: %w", pid, domain.ErrProtectedProcess)
	}
	if err := ro.controller.Terminate(ctx, pid); err != nil {
		return fmt.Errorf("failed to terminate pid %d: %w", pid, err)
	}

	ro.mu.Lock()
	ro.stats.processesTerminated++
	ro.mu.Unlock()
	return nil
}

// GetStats returns orchestrator statistics
func (ro *ResponseOrchestrator) GetStats() map[string]interface{} {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	return map[string]interface{}{
		"processes_terminated": ro.stats.processesTerminated,
		"files_deleted":        ro.stats.filesDeleted,
		"files_quarantined":    ro.stats.filesQuarantined,
		"entries_allowed":      ro.stats.entriesAllowed,
		"files_decrypted":      ro.stats.filesDecrypted,
		"failures":             ro.stats.failures,
		"learned_keys":         ro.keys.Len(),
	}
}
