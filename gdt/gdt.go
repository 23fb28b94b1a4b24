// Package gdt manages the Global Descriptor Table.
//
// http://www.osdever.net/bkerndev/Docs/gdt.htm
package gdt

import (
	"errors"
	"math"
	"unsafe"

	"github.com/eddyb/rustic/arch"
)

// Size is the number of slots in the table. Only 0..5 are populated at boot.
const Size = 16

// Selectors of the entries the boot sequence installs.
const (
	SelectorNull       uint16 = 0x00
	SelectorKernelCode uint16 = 0x08
	SelectorKernelData uint16 = 0x10
	SelectorUserCode   uint16 = 0x18
	SelectorUserData   uint16 = 0x20
	SelectorTLS        uint16 = 0x28
)

// ErrAlreadyBuilt is returned by a second Build.
var ErrAlreadyBuilt = errors.New("gdt: table already built")

// Descriptor is one 8-byte segment descriptor, in hardware order.
type Descriptor struct {
	limitLow    uint16
	baseLow     uint16
	baseMiddle  uint8
	access      uint8
	granularity uint8
	baseHigh    uint8
}

// Comptime checks: a descriptor is exactly 8 bytes and the table's byte
// size fits the 16-bit register limit.
var (
	_ = [1]struct{}{}[unsafe.Sizeof(Descriptor{})-8]
	_ = [math.MaxUint16]struct{}{}[math.MaxUint16-unsafe.Sizeof([Size]Descriptor{})]
)

// NewDescriptor encodes base, a 20-bit limit and the access and granularity
// bytes. Only the upper nibble of gran is used; the lower nibble carries
// limit bits 16..19.
func NewDescriptor(base uint32, limit uint32, access uint8, gran uint8) Descriptor {
	return Descriptor{
		baseLow:     uint16(base & 0xFFFF),
		baseMiddle:  uint8(base >> 16),
		baseHigh:    uint8(base >> 24),
		limitLow:    uint16(limit & 0xFFFF),
		granularity: uint8(limit>>16)&0x0F | (gran & 0xF0),
		access:      access,
	}
}

// Encode returns the 8-byte wire layout of a descriptor:
// limit-low(2) base-low(2) base-mid(1) access(1) granularity(1) base-high(1).
func Encode(base uint32, limit uint32, access uint8, gran uint8) [8]byte {
	return NewDescriptor(base, limit, access, gran).Bytes()
}

// Bytes returns the descriptor in memory order.
func (d Descriptor) Bytes() [8]byte {
	return [8]byte{
		byte(d.limitLow),
		byte(d.limitLow >> 8),
		byte(d.baseLow),
		byte(d.baseLow >> 8),
		d.baseMiddle,
		d.access,
		d.granularity,
		d.baseHigh,
	}
}

// Base reassembles the 32-bit base address.
func (d Descriptor) Base() uint32 {
	return uint32(d.baseHigh)<<24 | uint32(d.baseMiddle)<<16 | uint32(d.baseLow)
}

// Limit reassembles the raw 20-bit limit.
func (d Descriptor) Limit() uint32 {
	return uint32(d.granularity&0x0F)<<16 | uint32(d.limitLow)
}

// Access returns the raw access byte.
func (d Descriptor) Access() uint8 { return d.access }

// Granularity returns the raw granularity byte (flags + limit high nibble).
func (d Descriptor) Granularity() uint8 { return d.granularity }

// Table owns the descriptors and the register pointing at them. Both live
// as long as the Table, which the boot code keeps for the kernel's lifetime.
type Table struct {
	cpu     arch.Privileged
	entries [Size]Descriptor
	reg     arch.DescriptorRegister
	built   bool
}

// New returns an unbuilt table bound to cpu.
func New(cpu arch.Privileged) *Table {
	return &Table{cpu: cpu}
}

// Build computes the register from the table's address and byte size. The
// entries start out as null descriptors.
func (t *Table) Build() error {
	if t.built {
		return ErrAlreadyBuilt
	}
	t.reg.Limit = uint16(unsafe.Sizeof(t.entries)) - 1
	t.reg.Base = uint32(uintptr(unsafe.Pointer(&t.entries)))
	t.built = true
	return nil
}

// SetEntry encodes one descriptor in place. An index outside the table is a
// programming error and panics.
func (t *Table) SetEntry(index int, base uint32, limit uint32, access uint8, gran uint8) {
	t.entries[index] = NewDescriptor(base, limit, access, gran)
}

// Load issues lgdt, reloads CS with a far jump straight away so nothing is
// fetched under the stale code segment, then reloads DS/ES/FS/SS with data
// and GS with tls.
func (t *Table) Load(code, data, tls uint16) {
	t.cpu.LoadGDT(t.reg)
	t.cpu.FarJump(code)
	t.cpu.LoadDataSegments(data)
	t.cpu.LoadGS(tls)
}

// Entry returns descriptor i.
func (t *Table) Entry(i int) Descriptor { return t.entries[i] }

// Pointer returns the pseudo-descriptor handed to lgdt.
func (t *Table) Pointer() arch.DescriptorRegister { return t.reg }

// Built reports whether Build has run.
func (t *Table) Built() bool { return t.built }
