package domain

import "errors"

var (
	ErrInvalidPID             = errors.New("invalid process ID")
	ErrInvalidProcessName     = errors.New("invalid process name")
	ErrProtectedProcess       = errors.New("process is protected from termination")
	ErrUnknownActionCode      = errors.New("unknown action code")
	ErrUnknownList            = errors.New("unknown list")
	ErrEmptyPattern           = errors.New("pattern is empty")
	ErrNoKey                  = errors.New("no learned key available")
	ErrNotFound               = errors.New("not found")
	ErrEnumerationUnavailable = errors.New("enumeration unavailable")
	ErrPoolSaturated          = errors.New("task pool saturated")
	ErrPoolClosed             = errors.New("task pool closed")
)
