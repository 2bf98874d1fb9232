package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"aegis/internal/domain"
	"aegis/internal/infrastructure"
)

// Responder executes a remediation action for a detection
type Responder interface {
	Respond(ctx context.Context, det domain.Detection, action domain.Action) Outcome
}

// Notifier surfaces high-severity detections to the UI without blocking
type Notifier interface {
	Notify(det domain.Detection)
}

// Finding is the verdict a sweep already reached for the event it
// synthesized. It replaces the kind heuristics but not the list rules.
type Finding struct {
	Severity    domain.Severity
	Name        string
	Description string
	Action      domain.Action
	Auto        bool
}

func (f *Finding) verdict() domain.Verdict {
	return domain.Verdict{
		Severity:    f.Severity,
		Name:        f.Name,
		Description: f.Description,
		Action:      f.Action,
	}
}

// ruling is a verdict plus what classification does with it
type ruling struct {
	verdict domain.Verdict
	auto    bool
	// block-list remediation already removed the threat, nothing to show
	silent bool
}

// ClassificationEngine turns events into detections. Block-list hits and
// the ransomware and rootkit heuristics are remediated before Classify
// returns.
type ClassificationEngine struct {
	lists     *domain.ListStore
	responder Responder
	notifier  Notifier
	settings  *domain.SettingsHolder
	metrics   *infrastructure.Metrics

	tempRoots      []string
	ransomwareExts []string
}

// NewClassificationEngine wires the engine; notifier and metrics may be nil
func NewClassificationEngine(
	lists *domain.ListStore,
	responder Responder,
	notifier Notifier,
	settings *domain.SettingsHolder,
	metrics *infrastructure.Metrics,
) *ClassificationEngine {
	return &ClassificationEngine{
		lists:     lists,
		responder: responder,
		notifier:  notifier,
		settings:  settings,
		metrics:   metrics,
	}
}

// SetTempRoots adds directories treated as temporary besides Temp/tmp
// path segments
func (e *ClassificationEngine) SetTempRoots(roots ...string) {
	e.tempRoots = roots
}

// SetRansomwareExtensions adds catalogue extensions to the built-in ones
func (e *ClassificationEngine) SetRansomwareExtensions(exts []string) {
	e.ransomwareExts = exts
}

// Classify computes the verdict for a sensor event
func (e *ClassificationEngine) Classify(ctx context.Context, ev domain.ThreatEvent) domain.Detection {
	r, ok := e.listRules(ev, nil)
	if !ok {
		r = e.heuristics(ev)
	}
	return e.conclude(ctx, ev, r)
}

// Assess classifies an event synthesized by a sweep. List rules still take
// precedence; otherwise the sweep's finding stands. A nil finding behaves
// like Classify.
func (e *ClassificationEngine) Assess(ctx context.Context, ev domain.ThreatEvent, finding *Finding) domain.Detection {
	if finding == nil {
		return e.Classify(ctx, ev)
	}

	r, ok := e.listRules(ev, finding)
	if !ok {
		r = ruling{verdict: finding.verdict(), auto: finding.Auto}
		e.applyAutoQuarantine(ev, &r)
	}
	return e.conclude(ctx, ev, r)
}

// listRules checks the file path, then the target process, allow-list first.
// A finding relabels block-list verdicts.
func (e *ClassificationEngine) listRules(ev domain.ThreatEvent, finding *Finding) (ruling, bool) {
	subjects := []struct {
		value     string
		allowName string
		allowDesc string
		blockName string
		blockDesc string
	}{
		{ev.FilePath, "Allowed File", "This file is in the allow list.", "Blacklisted File", "This file is known to be malicious."},
		{ev.TargetProcess, "Allowed Process", "This process is in the allow list.", "Blacklisted Process", "This process is known to be malicious."},
	}

	for _, s := range subjects {
		if s.value == "" {
			continue
		}
		if e.lists.Contains(domain.AllowList, s.value) {
			return ruling{verdict: domain.Verdict{
				Severity:    domain.SeverityLow,
				Name:        s.allowName,
				Description: s.allowDesc,
				Action:      domain.ActionAllow,
			}}, true
		}
		if e.lists.Contains(domain.BlockList, s.value) {
			v := domain.Verdict{
				Severity:    domain.SeverityCritical,
				Name:        s.blockName,
				Description: s.blockDesc,
				Action:      domain.ActionRemove,
			}
			if finding != nil {
				v.Name, v.Description = finding.Name, finding.Description
			}
			return ruling{verdict: v, auto: true, silent: true}, true
		}
	}
	return ruling{}, false
}

func (e *ClassificationEngine) heuristics(ev domain.ThreatEvent) ruling {
	r := ruling{verdict: domain.Verdict{Severity: domain.SeverityLow, Action: domain.ActionNone}}
	if !e.settings.Load().BehaviorMonitoring {
		return r
	}

	switch ev.Kind {
	case domain.KindFileCreate:
		if domain.IsExecutableExtension(ev.FilePath) && domain.IsTempPath(ev.FilePath, e.tempRoots...) {
			r.verdict = domain.Verdict{
				Severity:    domain.SeverityMedium,
				Name:        "Suspicious Executable",
				Description: "An executable file was created in a temporary directory.",
				Action:      domain.ActionQuarantine,
			}
		}
	case domain.KindProcessOpen:
		if domain.IsSensitiveProcess(ev.TargetProcess) {
			r.verdict = domain.Verdict{
				Severity:    domain.SeverityHigh,
				Name:        "Sensitive Process Access",
				Description: "A process attempted to access a sensitive system process.",
				Action:      domain.ActionBlock,
			}
		}
	case domain.KindFileWrite:
		if domain.HasRansomwareExtension(ev.FilePath, e.ransomwareExts...) {
			r.verdict = domain.Verdict{
				Severity:    domain.SeverityCritical,
				Name:        "Ransomware Activity",
				Description: "Files with ransomware extensions are being created.",
				Action:      domain.ActionRemove,
			}
			r.auto = true
		}
	case domain.KindMemoryWrite:
		// cross-process writes have no carve-out
		r.verdict = domain.Verdict{
			Severity:    domain.SeverityHigh,
			Name:        "Memory Write",
			Description: "A process is writing to another process's memory.",
			Action:      domain.ActionBlock,
		}
	case domain.KindRootkitSignal:
		r.verdict = domain.Verdict{
			Severity:    domain.SeverityCritical,
			Name:        "Rootkit Detected",
			Description: "A rootkit was detected in the system.",
			Action:      domain.ActionRemove,
		}
		r.auto = true
	}

	e.applyAutoQuarantine(ev, &r)
	return r
}

func (e *ClassificationEngine) applyAutoQuarantine(ev domain.ThreatEvent, r *ruling) {
	if r.auto || ev.FilePath == "" {
		return
	}
	if r.verdict.Action == domain.ActionQuarantine &&
		r.verdict.Severity == domain.SeverityMedium &&
		e.settings.Load().AutoQuarantine {
		r.auto = true
	}
}

func (e *ClassificationEngine) conclude(ctx context.Context, ev domain.ThreatEvent, r ruling) domain.Detection {
	det := domain.Detection{
		ID:      uuid.NewString(),
		Event:   ev,
		Verdict: r.verdict,
	}

	if r.auto && e.responder != nil {
		outcome := e.responder.Respond(ctx, det, r.verdict.Action)
		det.AutoRemediated = true
		e.metrics.ObserveAutoRemediation(r.verdict.Action)
		if outcome.Err != nil {
			log.Debug().Err(outcome.Err).Str("id", det.ID).Msg("auto-remediation incomplete")
		}
	}

	e.metrics.ObserveClassified(det.Verdict.Severity)
	logDetection(det)

	if det.Notable() && !r.silent && e.notifier != nil {
		e.notifier.Notify(det)
	}
	return det
}

func logDetection(det domain.Detection) {
	var evt *zerolog.Event
	switch {
	case det.Verdict.Severity.AtLeast(domain.SeverityHigh):
		evt = log.Warn()
	case det.Verdict.Severity == domain.SeverityMedium:
		evt = log.Info()
	default:
		evt = log.Debug()
	}

	evt.Str("id", det.ID).
		Str("kind", det.Event.Kind.String()).
		Uint32("pid", det.Event.ProcessID).
		Str("path", det.Event.FilePath).
		Str("target", det.Event.TargetProcess).
		Str("severity", det.Verdict.Severity.String()).
		Str("action", det.Verdict.Action.String()).
		Bool("auto", det.AutoRemediated).
		Msg(threatLabel(det.Verdict))
}

func threatLabel(v domain.Verdict) string {
	if v.Name == "" {
		return "no threat"
	}
	return fmt.Sprintf("%s: %s", v.Name, v.Description)
}
