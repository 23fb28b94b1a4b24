// Package machine brings the CPU into protected-mode operation: segment
// table, trap table and interrupt controllers, in that order. Drivers then
// hook IRQ lines and CPU traps through it.
package machine

import (
	"fmt"

	"github.com/eddyb/rustic/arch"
	"github.com/eddyb/rustic/gdt"
	"github.com/eddyb/rustic/idt"
	"github.com/eddyb/rustic/pic"
	"github.com/eddyb/rustic/serial"
)

// Machine owns the three tables for the kernel's lifetime.
type Machine struct {
	cpu     arch.CPU
	console serial.Console
	cfg     Config

	gdt *gdt.Table
	idt *idt.Table
	pic *pic.Router
}

// New returns a machine that has not touched the CPU yet.
func New(cpu arch.CPU, console serial.Console, cfg Config) *Machine {
	m := &Machine{
		cpu:     cpu,
		console: console,
		cfg:     cfg,
		gdt:     gdt.New(cpu),
		idt:     idt.New(cpu),
	}
	m.pic = pic.New(cpu, m.idt, console)
	return m
}

// Init runs the bring-up sequence. Interrupts are still disabled when it
// returns; call SetInterrupts(true) once drivers are registered.
func (m *Machine) Init() error {
	if err := m.initGDT(); err != nil {
		return fmt.Errorf("machine: segment table: %w", err)
	}
	m.console.Puts("GDT loaded\r\n")

	// Configure and load the IDT; IRQs stay off until the drivers are in.
	if err := m.idt.Build(m.cfg.StubBase, m.cfg.StubLength, m.cfg.CodeSelector); err != nil {
		return fmt.Errorf("machine: trap table: %w", err)
	}
	m.idt.Load()
	m.console.Puts("IDT loaded, stubs at 0x")
	m.console.PutHex32(m.cfg.StubBase)
	m.console.Puts("\r\n")

	m.idt.Register(idt.PageFault, idt.HandlerFunc(m.pageFault))

	if err := m.pic.Build(m.cfg.RemapBase); err != nil {
		return fmt.Errorf("machine: interrupt controller: %w", err)
	}
	m.console.Puts("PIC remapped to 0x")
	m.console.PutHex8(m.cfg.RemapBase)
	m.console.Puts("\r\n")
	return nil
}

func (m *Machine) initGDT() error {
	t := m.gdt
	if err := t.Build(); err != nil {
		return err
	}
	gran := gdt.FlatFlags()
	t.SetEntry(0, 0, 0, 0, 0)                                                   // 0x00 - Null
	t.SetEntry(1, 0, gdt.FlatLimit, gdt.FlatAccess(0, true), gran)              // 0x08 - Kernel code
	t.SetEntry(2, 0, gdt.FlatLimit, gdt.FlatAccess(0, false), gran)             // 0x10 - Kernel data
	t.SetEntry(3, 0, gdt.FlatLimit, gdt.FlatAccess(3, true), gran)              // 0x18 - User code
	t.SetEntry(4, 0, gdt.FlatLimit, gdt.FlatAccess(3, false), gran)             // 0x20 - User data
	t.SetEntry(5, m.cfg.TLSBase, gdt.FlatLimit, gdt.FlatAccess(0, false), gran) // 0x28 - TLS emulation
	t.Load(m.cfg.CodeSelector, m.cfg.DataSelector, m.cfg.TLSSelector)
	return nil
}

// pageFault reports the fault and stops the machine. There is no recovery
// path without virtual memory.
func (m *Machine) pageFault(vector uint8) {
	m.console.Puts("BUS ERROR (vector ")
	m.console.PutUint32(uint32(vector))
	m.console.Puts(")\r\n")
	m.cpu.DisableInterrupts()
	for {
		m.cpu.Halt()
	}
}

// RegisterTrap installs h for a CPU vector, replacing any earlier handler.
func (m *Machine) RegisterTrap(vector uint8, h idt.Handler) {
	m.idt.Register(vector, h)
}

// RegisterIRQ installs a level-triggered handler for line and unmasks it.
func (m *Machine) RegisterIRQ(line uint8, h pic.LineHandler) {
	m.RegisterIRQMode(line, h, pic.Level)
}

// RegisterIRQMode installs h for line with the given trigger mode and
// unmasks it. Lines on the secondary controller also need the cascade input
// open on the primary.
func (m *Machine) RegisterIRQMode(line uint8, h pic.LineHandler, mode pic.Trigger) {
	m.pic.RegisterLineMode(line, h, mode)
	m.pic.Enable(line)
	if line > 7 {
		m.pic.Enable(pic.CascadeLine)
	}
}

// SetInterrupts sets or clears the CPU interrupt flag.
func (m *Machine) SetInterrupts(enabled bool) {
	if enabled {
		m.cpu.EnableInterrupts()
	} else {
		m.cpu.DisableInterrupts()
	}
}

// WaitForInterrupt enables interrupts and halts until the next one arrives.
func (m *Machine) WaitForInterrupt() {
	m.SetInterrupts(true)
	m.cpu.Halt()
}

// Config returns the layout the machine was built with.
func (m *Machine) Config() Config { return m.cfg }

// GDT returns the segment table.
func (m *Machine) GDT() *gdt.Table { return m.gdt }

// IDT returns the trap table.
func (m *Machine) IDT() *idt.Table { return m.idt }

// PIC returns the interrupt controller router.
func (m *Machine) PIC() *pic.Router { return m.pic }
