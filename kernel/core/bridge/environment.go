package bridge

import (
	"fmt"
	"strings"
)

// Mode selects how calls reach the host.
type Mode int

const (
	// ModeAuto uses the boundary when it reports itself available and the
	// responder otherwise.
	ModeAuto Mode = iota
	ModeReal
	ModeMock
)

var modeNames = map[Mode]string{
	ModeAuto: "auto",
	ModeReal: "real",
	ModeMock: "mock",
}

func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts "auto", "real" or "mock".
func ParseMode(s string) (Mode, error) {
	for m, n := range modeNames {
		if strings.EqualFold(s, n) {
			return m, nil
		}
	}
	return ModeAuto, fmt.Errorf("unknown bridge mode %q", s)
}

// Path is the per-call outcome of the environment switch.
type Path int

const (
	PathReal Path = iota
	PathMock
)

func (p Path) String() string {
	if p == PathMock {
		return "mock"
	}
	return "real"
}

// Environment picks the real boundary or the local responder for each call.
type Environment struct {
	mode      Mode
	boundary  Boundary
	responder Responder
}

// NewEnvironment wires the two paths. Either may be nil; selecting a nil
// path fails the call with ErrBoundaryUnavailable.
func NewEnvironment(mode Mode, boundary Boundary, responder Responder) *Environment {
	return &Environment{mode: mode, boundary: boundary, responder: responder}
}

// Mode returns the configured mode.
func (e *Environment) Mode() Mode { return e.mode }

// Boundary returns the real-path boundary, possibly nil.
func (e *Environment) Boundary() Boundary { return e.boundary }

// Responder returns the mock-path responder, possibly nil.
func (e *Environment) Responder() Responder { return e.responder }

// Select decides the path for one call.
func (e *Environment) Select() Path {
	switch e.mode {
	case ModeReal:
		return PathReal
	case ModeMock:
		return PathMock
	}
	if e.boundary != nil && e.boundary.Available() {
		return PathReal
	}
	if e.responder != nil {
		return PathMock
	}
	return PathReal
}
