// Package pic drives the two cascaded 8259A interrupt controllers and routes
// their 16 lines to registered handlers.
//
// The router occupies trap vectors remapBase..remapBase+15. Every one of them
// enters HandleTrap, which checks the in-service registers for spurious
// signals and sends the end-of-interrupt at the point the line's trigger mode
// requires.
package pic

import (
	"errors"

	"github.com/eddyb/rustic/arch"
	"github.com/eddyb/rustic/idt"
	"github.com/eddyb/rustic/serial"
)

// I/O ports
const (
	PrimaryCommand   uint16 = 0x20
	PrimaryData      uint16 = 0x21
	SecondaryCommand uint16 = 0xA0
	SecondaryData    uint16 = 0xA1
)

// Command bytes
const (
	ICW1Init      uint8 = 0x11 // Edge-sensitive, cascade, ICW4 follows
	ICW3Primary   uint8 = 0x04 // Secondary hangs off line 2
	ICW3Secondary uint8 = 0x02 // Cascade identity
	ICW48086      uint8 = 0x01
	OCW3ReadISR   uint8 = 0x0B
	EOI           uint8 = 0x20 // Non-specific end of interrupt
	MaskAll       uint8 = 0xFF
)

// Lines is the number of IRQ lines across both controllers.
const Lines = 16

// CascadeLine is the primary's input the secondary is wired to.
const CascadeLine = 2

var (
	// ErrAlreadyBuilt is returned by a second Build.
	ErrAlreadyBuilt = errors.New("pic: controllers already initialized")
	// ErrRemapBase is returned when the 16 vectors would not fit above the
	// CPU exceptions, or the base is not 8-aligned (ICW2 ignores bits 0..2).
	ErrRemapBase = errors.New("pic: remap base must be a multiple of 8 in 0x20..0xF0")
)

// Trigger is how a line signals. It decides when the EOI is sent.
type Trigger uint8

const (
	// Level lines are acknowledged after the handler has run.
	Level Trigger = iota
	// Edge lines are acknowledged before the handler runs.
	Edge
)

func (t Trigger) String() string {
	if t == Edge {
		return "edge"
	}
	return "level"
}

// LineHandler is the callback for one IRQ line. It receives the logical line
// number, not the vector.
type LineHandler interface {
	HandleIRQ(line uint8)
}

// LineHandlerFunc adapts an ordinary function to LineHandler.
type LineHandlerFunc func(line uint8)

// HandleIRQ calls f(line).
func (f LineHandlerFunc) HandleIRQ(line uint8) { f(line) }

// TrapRegistrar is the part of the trap table the router needs.
type TrapRegistrar interface {
	Register(vector uint8, h idt.Handler)
}

type slot struct {
	h       LineHandler
	present bool
	trigger Trigger
}

// Stats counts what the dispatch routine has seen. It is only written from
// interrupt context.
type Stats struct {
	Dispatched [Lines]uint32
	Spurious   uint32
	NoStatus   uint32
	Unhandled  uint32
}

// Router owns the controller pair.
type Router struct {
	ports   arch.Ports
	traps   TrapRegistrar
	console serial.Console

	base  uint8
	lines [Lines]slot
	stats Stats
	built bool
}

// New returns a router that has not touched the hardware yet.
func New(ports arch.Ports, traps TrapRegistrar, console serial.Console) *Router {
	return &Router{ports: ports, traps: traps, console: console}
}

// Build reprograms both controllers to deliver lines 0..7 at remapBase and
// 8..15 at remapBase+8, masks every line, and claims the 16 trap vectors.
func (r *Router) Build(remapBase uint8) error {
	if r.built {
		return ErrAlreadyBuilt
	}
	if remapBase < idt.FirstExternal || remapBase > 0xF0 || remapBase&0x7 != 0 {
		return ErrRemapBase
	}
	r.base = remapBase

	p := r.ports
	p.Outb(PrimaryCommand, ICW1Init)
	p.Outb(SecondaryCommand, ICW1Init)
	p.Outb(PrimaryData, remapBase)
	p.Outb(SecondaryData, remapBase+8)
	p.Outb(PrimaryData, ICW3Primary)
	p.Outb(SecondaryData, ICW3Secondary)
	p.Outb(PrimaryData, ICW48086)
	p.Outb(SecondaryData, ICW48086)

	// Mask all, lines are enabled one by one once someone handles them.
	p.Outb(PrimaryData, MaskAll)
	p.Outb(SecondaryData, MaskAll)

	for i := uint8(0); i < Lines; i++ {
		r.lines[i] = slot{}
		r.traps.Register(remapBase+i, r)
	}
	r.built = true
	return nil
}

// RegisterLine installs a level-triggered handler for line. It does not
// unmask the line.
func (r *Router) RegisterLine(line uint8, h LineHandler) {
	r.RegisterLineMode(line, h, Level)
}

// RegisterLineMode installs h for line with the given trigger mode,
// replacing any earlier handler. It does not unmask the line.
func (r *Router) RegisterLineMode(line uint8, h LineHandler, mode Trigger) {
	r.lines[line] = slot{h: h, present: true, trigger: mode}
}

// Enable clears line's mask bit on the controller owning it.
func (r *Router) Enable(line uint8) {
	port, bit := maskBit(line)
	r.ports.Outb(port, r.ports.Inb(port)&^bit)
}

// Disable sets line's mask bit on the controller owning it.
func (r *Router) Disable(line uint8) {
	port, bit := maskBit(line)
	r.ports.Outb(port, r.ports.Inb(port)|bit)
}

func maskBit(line uint8) (uint16, uint8) {
	if line > 7 {
		return SecondaryData, 1 << (line - 8)
	}
	return PrimaryData, 1 << line
}

// Masks reads both interrupt mask registers.
func (r *Router) Masks() (primary, secondary uint8) {
	return r.ports.Inb(PrimaryData), r.ports.Inb(SecondaryData)
}

// Vector returns the trap vector line is delivered on.
func (r *Router) Vector(line uint8) uint8 { return r.base + line }

// RemapBase returns the vector of line 0.
func (r *Router) RemapBase() uint8 { return r.base }

// Registered reports whether line has a handler and its trigger mode.
func (r *Router) Registered(line uint8) (bool, Trigger) {
	s := &r.lines[line]
	return s.present, s.trigger
}

// Stats returns a copy of the dispatch counters.
func (r *Router) Stats() Stats { return r.stats }

// inService reads ISR of both controllers as secondary<<8 | primary.
//
//go:nosplit
func (r *Router) inService() uint16 {
	r.ports.Outb(PrimaryCommand, OCW3ReadISR)
	r.ports.Outb(SecondaryCommand, OCW3ReadISR)
	secondary := r.ports.Inb(SecondaryCommand)
	primary := r.ports.Inb(PrimaryCommand)
	return uint16(secondary)<<8 | uint16(primary)
}

// eoi acknowledges line. Lines on the secondary need both controllers told,
// secondary first.
//
//go:nosplit
func (r *Router) eoi(line uint8) {
	if line > 7 {
		r.ports.Outb(SecondaryCommand, EOI)
	}
	r.ports.Outb(PrimaryCommand, EOI)
}

// HandleTrap is the dispatch routine behind all 16 vectors.
//
//go:nosplit
func (r *Router) HandleTrap(vector uint8) {
	line := vector - r.base
	if line >= Lines {
		return
	}

	status := r.inService()

	// Spurious IRQ?
	switch line {
	case 7:
		if status&(1<<7) == 0 {
			r.stats.Spurious++
			r.console.Puts("spurious IRQ 7\r\n")
			return
		}
	case 15:
		if status&(1<<15) == 0 {
			// The primary did see its cascade line go up.
			r.stats.Spurious++
			r.console.Puts("spurious IRQ 15\r\n")
			r.eoi(CascadeLine)
			return
		}
	}

	if status&(1<<line) == 0 {
		r.stats.NoStatus++
		r.console.Puts("IRQ stub called with no interrupt status, line ")
		r.console.PutUint32(uint32(line))
		r.console.Puts("\r\n")
		return
	}

	s := &r.lines[line]
	if !s.present {
		// Still acknowledge, or the line stays in service forever.
		r.stats.Unhandled++
		r.console.Puts("Unhandled IRQ ")
		r.console.PutUint32(uint32(line))
		r.console.Puts("\r\n")
		r.eoi(line)
		return
	}

	r.stats.Dispatched[line]++
	if s.trigger == Edge {
		r.eoi(line)
	}
	s.h.HandleIRQ(line)
	if s.trigger == Level {
		r.eoi(line)
	}
}
