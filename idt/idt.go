// Package idt manages the Interrupt Descriptor Table and routes every trap
// to at most one registered handler.
//
// Every gate points at a fixed low-level entry stub (stubBase + n*stubLength)
// that saves state and enters Dispatch with its vector. The handler slots
// are a separate table, so registering a handler never rewrites a gate.
package idt

import (
	"errors"
	"unsafe"

	"github.com/eddyb/rustic/arch"
)

// Size is the number of CPU interrupt vectors.
const Size = 256

// Vectors below FirstExternal are reserved for CPU exceptions by convention.
const FirstExternal = 32

// PageFault is the #PF exception vector.
const PageFault uint8 = 14

// ErrAlreadyBuilt is returned by a second Build.
var ErrAlreadyBuilt = errors.New("idt: table already built")

// Handler is the high-level callback for one vector.
type Handler interface {
	HandleTrap(vector uint8)
}

// The HandlerFunc type is an adapter to allow the use of ordinary functions
// as trap handlers.
type HandlerFunc func(vector uint8)

// HandleTrap calls f(vector).
func (f HandlerFunc) HandleTrap(vector uint8) { f(vector) }

type slot struct {
	h   Handler
	set bool
}

// Table owns the gates, the handler slots and the register pointing at the
// gates.
type Table struct {
	cpu      arch.CPU
	gates    [Size]Gate
	handlers [Size]slot
	reg      arch.DescriptorRegister
	built    bool
}

var _ = [1]struct{}{}[unsafe.Sizeof(Gate{})-8]

// New returns an unbuilt table bound to cpu.
func New(cpu arch.CPU) *Table {
	return &Table{cpu: cpu}
}

// Build points gate n at stubBase+n*stubLength with the given code selector
// and a present, ring 0, 32-bit interrupt gate attribute, marks every
// handler slot absent and installs Dispatch as the CPU's trap entry.
func (t *Table) Build(stubBase uint32, stubLength uint32, codeSelector uint16) error {
	if t.built {
		return ErrAlreadyBuilt
	}

	t.reg.Limit = uint16(unsafe.Sizeof(t.gates)) - 1
	t.reg.Base = uint32(uintptr(unsafe.Pointer(&t.gates)))

	// Load default IDT entries, these generally shouldn't ever be changed.
	attr := Attr{Type: TypeInterrupt32, Present: true}.Byte()
	base := stubBase
	for i := 0; i < Size; i++ {
		t.gates[i] = NewGate(base, codeSelector, attr)
		t.handlers[i] = slot{}
		base += stubLength
	}

	t.cpu.SetTrapEntry(t.Dispatch)
	t.built = true
	return nil
}

// Register installs h for vector, replacing whatever was there. There is no
// way back to the stub-only state.
func (t *Table) Register(vector uint8, h Handler) {
	t.handlers[vector] = slot{h: h, set: true}
}

// Dispatch is the entry point of every stub. Vectors without a handler
// return with no effect, which swallows unhandled CPU exceptions.
//
//go:nosplit
func (t *Table) Dispatch(vector uint8) {
	s := &t.handlers[vector]
	if s.set {
		s.h.HandleTrap(vector)
	}
}

// Load issues lidt.
func (t *Table) Load() {
	t.cpu.LoadIDT(t.reg)
}

// Installed reports whether vector has a handler.
func (t *Table) Installed(vector uint8) bool { return t.handlers[vector].set }

// Gate returns the gate for vector.
func (t *Table) Gate(vector uint8) Gate { return t.gates[vector] }

// Pointer returns the pseudo-descriptor handed to lidt.
func (t *Table) Pointer() arch.DescriptorRegister { return t.reg }
