//go:build baremetal && 386

package arch

import (
	_ "unsafe" // Required for //go:linkname directives
)

// Link to external assembly functions from asm/x86/lib.S
//
//go:linkname outb outb
//go:nosplit
func outb(port uint16, value uint8)

//go:linkname inb inb
//go:nosplit
func inb(port uint16) uint8

// lgdt_load takes a pointer to the packed 6-byte pseudo-descriptor.
//
//go:linkname lgdt lgdt_load
//go:nosplit
func lgdt(reg *[6]byte)

//go:linkname farJump far_jump
//go:nosplit
func farJump(selector uint32)

//go:linkname loadDataSegments load_data_segments
//go:nosplit
func loadDataSegments(selector uint32)

//go:linkname loadGS load_gs
//go:nosplit
func loadGS(selector uint32)

//go:linkname lidt lidt_load
//go:nosplit
func lidt(reg *[6]byte)

//go:linkname sti sti
//go:nosplit
func sti()

//go:linkname cli cli
//go:nosplit
func cli()

//go:linkname hlt hlt
//go:nosplit
func hlt()

//go:linkname isrsBaseAddr isrs_base_addr
//go:nosplit
func isrsBaseAddr() uint32

//go:linkname tlsEmulSegmentAddr tls_emul_segment_addr
//go:nosplit
func tlsEmulSegmentAddr() uint32

// ISRStubLength is the size in bytes of each entry stub in lib.S
// (push imm32 + jmp rel32).
const ISRStubLength = 10

// Pseudo-descriptors handed to lgdt/lidt. The CPU only reads these during
// the instruction, but they live for the kernel's lifetime anyway.
var (
	gdtr [6]byte
	idtr [6]byte
)

var trapEntry func(vector uint8)

// isrGoEntry is called by isr_common in lib.S with the vector pushed by the
// stub. Interrupts are disabled by the gate on entry.
//
//go:linkname isrGoEntry isr_goentry
//go:nosplit
func isrGoEntry(vector uint32) {
	if trapEntry != nil {
		trapEntry(uint8(vector))
	}
}

// Hardware is the real CPU.
type Hardware struct{}

//go:nosplit
func (Hardware) Outb(port uint16, value uint8) { outb(port, value) }

//go:nosplit
func (Hardware) Inb(port uint16) uint8 { return inb(port) }

func (Hardware) LoadGDT(reg DescriptorRegister) {
	gdtr = reg.Bytes()
	lgdt(&gdtr)
}

func (Hardware) FarJump(selector uint16) { farJump(uint32(selector)) }

func (Hardware) LoadDataSegments(selector uint16) { loadDataSegments(uint32(selector)) }

func (Hardware) LoadGS(selector uint16) { loadGS(uint32(selector)) }

func (Hardware) LoadIDT(reg DescriptorRegister) {
	idtr = reg.Bytes()
	lidt(&idtr)
}

//go:nosplit
func (Hardware) EnableInterrupts() { sti() }

//go:nosplit
func (Hardware) DisableInterrupts() { cli() }

//go:nosplit
func (Hardware) Halt() { hlt() }

func (Hardware) SetTrapEntry(fn func(vector uint8)) { trapEntry = fn }

// StubBase returns the address of the first entry stub (isrs_base).
func (Hardware) StubBase() uint32 { return isrsBaseAddr() }

// TLSBase returns the address of the tls_emul_segment symbol.
func (Hardware) TLSBase() uint32 { return tlsEmulSegmentAddr() }
