// Package sim is a host model of the parts of a PC the bring-up layer talks
// to: the CPU's privileged state, a cascaded 8259A pair, a COM1 UART, the
// 8253 timer and the 8042 keyboard controller.
//
// A Machine implements arch.CPU, so the real gdt, idt, pic and machine code
// runs against it unchanged. Everything that crosses the boundary is
// recorded in a trace, which is what the tests assert against.
package sim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eddyb/rustic/arch"
)

// ErrHalted is returned by Run when the CPU executed hlt with interrupts
// disabled, which on hardware never returns.
var ErrHalted = errors.New("sim: cpu halted with interrupts disabled")

// Kind classifies trace events.
type Kind uint8

const (
	Out Kind = iota
	In
	LoadGDT
	FarJump
	LoadData
	LoadGS
	LoadIDT
	STI
	CLI
	HLT
	Trap
	Mark
)

var kindNames = [...]string{
	Out:      "out",
	In:       "in",
	LoadGDT:  "lgdt",
	FarJump:  "ljmp",
	LoadData: "mov ds",
	LoadGS:   "mov gs",
	LoadIDT:  "lidt",
	STI:      "sti",
	CLI:      "cli",
	HLT:      "hlt",
	Trap:     "trap",
	Mark:     "mark",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Event is one entry of the trace.
type Event struct {
	Kind Kind
	// Port and Value for Out/In. Value is the selector for segment loads.
	Port  uint16
	Value uint16
	// Vector for Trap.
	Vector uint8
	// Register operand for LoadGDT/LoadIDT.
	Reg arch.DescriptorRegister
	// Label for Mark.
	Label string
}

func (e Event) String() string {
	switch e.Kind {
	case Out:
		return fmt.Sprintf("out 0x%02x <- 0x%02x", e.Port, e.Value)
	case In:
		return fmt.Sprintf("in  0x%02x -> 0x%02x", e.Port, e.Value)
	case LoadGDT, LoadIDT:
		return fmt.Sprintf("%s base=0x%08x limit=%d", e.Kind, e.Reg.Base, e.Reg.Limit)
	case FarJump, LoadData, LoadGS:
		return fmt.Sprintf("%s 0x%02x", e.Kind, e.Value)
	case Trap:
		return fmt.Sprintf("trap %d", e.Vector)
	case Mark:
		return "mark " + e.Label
	}
	return e.Kind.String()
}

// IsEOI reports whether e is an end-of-interrupt written to a controller.
func (e Event) IsEOI() bool {
	return e.Kind == Out && e.Value == 0x20 && (e.Port == 0x20 || e.Port == 0xA0)
}

// Controller is a snapshot of one 8259A.
type Controller struct {
	Configured    bool
	Base, Cascade uint8
	IMR, IRR, ISR uint8
}

// Segments is the visible segment register state.
type Segments struct {
	CS, DS, ES, FS, GS, SS uint16
}

// Machine is the simulated PC.
type Machine struct {
	entry  func(vector uint8)
	ifl    bool
	inTrap bool

	gdtr, idtr arch.DescriptorRegister
	seg        Segments

	primary, secondary i8259

	uart     uart
	pit      pit
	keyboard keyboard

	trace  []Event
	halted bool
}

// New returns a machine with interrupts disabled and both controllers
// masked.
func New() *Machine {
	m := &Machine{
		primary:   newI8259(true),
		secondary: newI8259(false),
	}
	m.keyboard.m = m
	return m
}

func (m *Machine) record(e Event) { m.trace = append(m.trace, e) }

// Outb implements arch.Ports.
func (m *Machine) Outb(port uint16, value uint8) {
	if !isUART(port) {
		m.record(Event{Kind: Out, Port: port, Value: uint16(value)})
	}
	switch port {
	case 0x20:
		m.primary.writeCommand(value)
	case 0x21:
		m.primary.writeData(value)
	case 0xA0:
		m.secondary.writeCommand(value)
	case 0xA1:
		m.secondary.writeData(value)
	case 0x40, 0x43:
		m.pit.write(port, value)
	case 0x60, 0x64:
		m.keyboard.write(port, value)
	default:
		if isUART(port) {
			m.uart.write(port-uartBase, value)
		}
	}
	// Unmasking may let a latched request through.
	m.deliver()
}

// Inb implements arch.Ports. Unmapped ports float high.
func (m *Machine) Inb(port uint16) uint8 {
	var v uint8
	switch port {
	case 0x20:
		v = m.primary.readCommand()
	case 0x21:
		v = m.primary.readData()
	case 0xA0:
		v = m.secondary.readCommand()
	case 0xA1:
		v = m.secondary.readData()
	case 0x60, 0x64:
		v = m.keyboard.read(port)
	default:
		if isUART(port) {
			return m.uart.read(port - uartBase)
		}
		v = 0xFF
	}
	m.record(Event{Kind: In, Port: port, Value: uint16(v)})
	if port == 0x60 && len(m.keyboard.buffer) > 0 {
		// The 8042 loads the next byte and interrupts again.
		m.Raise(1)
	}
	return v
}

func (m *Machine) LoadGDT(reg arch.DescriptorRegister) {
	m.gdtr = reg
	m.record(Event{Kind: LoadGDT, Reg: reg})
}

func (m *Machine) FarJump(selector uint16) {
	m.seg.CS = selector
	m.record(Event{Kind: FarJump, Value: selector})
}

func (m *Machine) LoadDataSegments(selector uint16) {
	m.seg.DS, m.seg.ES, m.seg.FS, m.seg.SS = selector, selector, selector, selector
	m.record(Event{Kind: LoadData, Value: selector})
}

func (m *Machine) LoadGS(selector uint16) {
	m.seg.GS = selector
	m.record(Event{Kind: LoadGS, Value: selector})
}

func (m *Machine) LoadIDT(reg arch.DescriptorRegister) {
	m.idtr = reg
	m.record(Event{Kind: LoadIDT, Reg: reg})
}

func (m *Machine) EnableInterrupts() {
	m.record(Event{Kind: STI})
	m.ifl = true
	m.deliver()
}

func (m *Machine) DisableInterrupts() {
	m.record(Event{Kind: CLI})
	m.ifl = false
}

// Halt waits for the next interrupt. With nothing pending it returns at
// once, as if the next external event had been a no-op. With IF clear it
// panics with ErrHalted, which Run turns back into an error.
func (m *Machine) Halt() {
	m.record(Event{Kind: HLT})
	if !m.ifl {
		m.halted = true
		panic(ErrHalted)
	}
	m.deliver()
}

func (m *Machine) SetTrapEntry(fn func(vector uint8)) { m.entry = fn }

var _ arch.CPU = (*Machine)(nil)

// Run calls fn and reports ErrHalted if it ended in a dead halt.
func (m *Machine) Run(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, ErrHalted) {
				err = ErrHalted
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}

// Raise latches a request on IRQ line 0..15 and delivers it if the CPU and
// the controllers let it through.
func (m *Machine) Raise(line uint8) {
	if line > 7 {
		m.secondary.irr |= 1 << (line - 8)
	} else {
		m.primary.irr |= 1 << line
	}
	m.deliver()
}

// RaiseSpurious delivers the vector of line 7 or 15 without the request
// reaching the in-service register, the way an 8259A does when the request
// drops before the acknowledge cycle. A spurious 15 still puts the cascade
// line in service on the primary.
func (m *Machine) RaiseSpurious(line uint8) {
	switch line {
	case 7:
		m.trap(m.primary.base + 7)
	case 15:
		m.primary.isr |= 1 << 2
		m.trap(m.secondary.base + 7)
	default:
		panic(fmt.Sprintf("sim: line %d cannot be spurious", line))
	}
}

// Fault delivers a CPU exception. Exceptions ignore IF.
func (m *Machine) Fault(vector uint8) { m.trap(vector) }

// Mark drops a labelled event into the trace.
func (m *Machine) Mark(label string) { m.record(Event{Kind: Mark, Label: label}) }

func (m *Machine) deliver() {
	for m.ifl && !m.inTrap {
		vector, ok := m.acknowledge()
		if !ok {
			return
		}
		m.trap(vector)
	}
}

// acknowledge runs the INTA cycle: picks the line the pair would hand the
// CPU and marks it in service.
func (m *Machine) acknowledge() (uint8, bool) {
	if m.primary.cascade&(1<<2) != 0 {
		if _, ok := m.secondary.pending(); ok {
			m.primary.irr |= 1 << 2
		}
	}
	n, ok := m.primary.pending()
	if !ok {
		return 0, false
	}
	if n == 2 && m.primary.cascade&(1<<2) != 0 {
		s, ok := m.secondary.pending()
		if !ok {
			m.primary.irr &^= 1 << 2
			return 0, false
		}
		m.primary.accept(2)
		m.secondary.accept(s)
		return m.secondary.base + s, true
	}
	m.primary.accept(n)
	return m.primary.base + n, true
}

// trap enters the installed entry point through an interrupt gate: IF is
// cleared for the handler and restored after.
func (m *Machine) trap(vector uint8) {
	m.record(Event{Kind: Trap, Vector: vector})
	saved, nested := m.ifl, m.inTrap
	m.ifl, m.inTrap = false, true
	if m.entry != nil {
		m.entry(vector)
	}
	m.ifl, m.inTrap = saved, nested
}

// Trace returns every recorded event.
func (m *Machine) Trace() []Event { return m.trace }

// ResetTrace drops the recorded events.
func (m *Machine) ResetTrace() { m.trace = m.trace[:0] }

// EOIs counts end-of-interrupt writes to port since the last reset.
func (m *Machine) EOIs(port uint16) int {
	n := 0
	for _, e := range m.trace {
		if e.IsEOI() && e.Port == port {
			n++
		}
	}
	return n
}

// Dump renders the trace one event per line.
func (m *Machine) Dump() string {
	var b strings.Builder
	for i, e := range m.trace {
		fmt.Fprintf(&b, "%4d %s\n", i, e)
	}
	return b.String()
}

// InterruptsEnabled reports IF.
func (m *Machine) InterruptsEnabled() bool { return m.ifl }

// Halted reports whether the CPU dead-halted.
func (m *Machine) Halted() bool { return m.halted }

// GDTR returns the last lgdt operand.
func (m *Machine) GDTR() arch.DescriptorRegister { return m.gdtr }

// IDTR returns the last lidt operand.
func (m *Machine) IDTR() arch.DescriptorRegister { return m.idtr }

// Segments returns the segment registers.
func (m *Machine) Segments() Segments { return m.seg }

// Primary returns the state of the primary controller.
func (m *Machine) Primary() Controller { return m.primary.state() }

// Secondary returns the state of the secondary controller.
func (m *Machine) Secondary() Controller { return m.secondary.state() }
