package domain

// Process is one entry of the live process table
type Process struct {
	PID  uint32
	Name string
	Path string

	// HasWindow is true when the process owns a visible top-level window
	// (on hosts without windows: a controlling terminal)
	HasWindow bool
}

// NewProcess creates a process entity with validation
func NewProcess(pid uint32, name, path string) (*Process, error) {
	p := &Process{
		PID:  pid,
		Name: name,
		Path: path,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects the idle pseudo-process (PID 0) and nameless entries
func (p *Process) Validate() error {
	if p.PID == 0 {
		return ErrInvalidPID
	}
	if p.Name == "" {
		return ErrInvalidProcessName
	}
	return nil
}

// IsHidden applies the hidden-process heuristic: a low PID, no visible
// window, and not one of the known system processes
func (p *Process) IsHidden() bool {
	return p.PID > 0 &&
		p.PID < HiddenProcessPIDLimit &&
		!p.HasWindow &&
		!IsSystemProcess(p.Name)
}

// Module is an image mapped into a process
type Module struct {
	Path string
}

// MemoryRegion is a committed, readable and writable range of a process
type MemoryRegion struct {
	Base uint64
	Size uint64
}
