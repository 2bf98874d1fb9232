package domain

import (
	"fmt"
	"strings"
)

// Severity is ordered: Low < Medium < High < Critical
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
}

// AtLeast reports whether s is as severe as min
func (s Severity) AtLeast(min Severity) bool {
	return s >= min
}

// ParseSeverity is case-insensitive
func ParseSeverity(str string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", str)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Action is the remediation recommended by a verdict, or chosen by the UI
type Action int

const (
	ActionNone Action = iota
	ActionRemove
	ActionQuarantine
	ActionAllow
	ActionBlock
	ActionDecrypt
)

var actionNames = map[Action]string{
	ActionNone:       "none",
	ActionRemove:     "remove",
	ActionQuarantine: "quarantine",
	ActionAllow:      "allow",
	ActionBlock:      "block",
	ActionDecrypt:    "decrypt",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for action, n := range actionNames {
		if n == name {
			*a = action
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", name)
}

// UI action codes
const (
	CodeRemove     = 0
	CodeQuarantine = 1
	CodeAllow      = 2
)

// ParseActionCode maps a UI action code onto an Action
func ParseActionCode(code int) (Action, error) {
	switch code {
	case CodeRemove:
		return ActionRemove, nil
	case CodeQuarantine:
		return ActionQuarantine, nil
	case CodeAllow:
		return ActionAllow, nil
	}
	return ActionNone, fmt.Errorf("%w: %d", ErrUnknownActionCode, code)
}

// Code returns the UI code for actions the UI can choose, or -1
func (a Action) Code() int {
	switch a {
	case ActionRemove:
		return CodeRemove
	case ActionQuarantine:
		return CodeQuarantine
	case ActionAllow:
		return CodeAllow
	}
	return -1
}

// Verdict is the classification result for one event
type Verdict struct {
	Severity    Severity `json:"severity"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Action      Action   `json:"action"`
}

// Detection pairs an event with the verdict computed for it
type Detection struct {
	ID      string      `json:"id"`
	Event   ThreatEvent `json:"event"`
	Verdict Verdict     `json:"verdict"`

	// AutoRemediated is set when classification already executed the action
	AutoRemediated bool `json:"auto_remediated"`
}

// Notable reports whether the verdict is high enough to surface to the UI
func (d Detection) Notable() bool {
	return d.Verdict.Severity.AtLeast(SeverityHigh)
}
