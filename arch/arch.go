// Package arch is the boundary between the descriptor/interrupt code and the
// CPU. Every privileged instruction the bring-up layer needs is one method
// here; the bare-metal 386 binding lives in hw_386.go and the host model in
// package sim.
package arch

// Ports is byte-wide x86 port I/O (outb/inb).
type Ports interface {
	Outb(port uint16, value uint8)
	Inb(port uint16) uint8
}

// Privileged holds one primitive per privileged instruction.
type Privileged interface {
	// LoadGDT issues lgdt with the given pseudo-descriptor.
	LoadGDT(reg DescriptorRegister)
	// FarJump reloads CS with selector by a same-privilege far jump.
	FarJump(selector uint16)
	// LoadDataSegments loads DS, ES, FS and SS with selector.
	LoadDataSegments(selector uint16)
	// LoadGS loads GS with selector.
	LoadGS(selector uint16)
	// LoadIDT issues lidt with the given pseudo-descriptor.
	LoadIDT(reg DescriptorRegister)
	// EnableInterrupts issues sti.
	EnableInterrupts()
	// DisableInterrupts issues cli.
	DisableInterrupts()
	// Halt issues hlt.
	Halt()
}

// TrapEntry is the hand-off from the low-level entry stubs. The stub for
// vector n saves CPU state and calls the function installed here with n.
type TrapEntry interface {
	SetTrapEntry(fn func(vector uint8))
}

// CPU is everything the bring-up layer needs from the machine.
type CPU interface {
	Ports
	Privileged
	TrapEntry
}

// DescriptorRegister is the operand of lgdt/lidt.
type DescriptorRegister struct {
	Limit uint16
	Base  uint32
}

// Bytes returns the packed 6-byte little-endian pseudo-descriptor the CPU
// reads. Go pads the struct to 8 bytes, so the binding passes this form.
func (r DescriptorRegister) Bytes() [6]byte {
	return [6]byte{
		byte(r.Limit),
		byte(r.Limit >> 8),
		byte(r.Base),
		byte(r.Base >> 8),
		byte(r.Base >> 16),
		byte(r.Base >> 24),
	}
}
