package gdt

import "github.com/eddyb/rustic/bitfield"

// Access is the descriptor access byte, least significant bit first.
type Access struct {
	Accessed   bool  `bitfield:",1"`
	ReadWrite  bool  `bitfield:",1"` // readable code / writable data
	Conforming bool  `bitfield:",1"` // conforming code / expand-down data
	Executable bool  `bitfield:",1"`
	CodeData   bool  `bitfield:",1"` // S bit: code/data rather than system
	DPL        uint8 `bitfield:",2"`
	Present    bool  `bitfield:",1"`
}

// Flags is the granularity byte: limit bits 16..19 then the size flags.
type Flags struct {
	LimitHigh uint8 `bitfield:",4"`
	Available bool  `bitfield:",1"`
	Long      bool  `bitfield:",1"`
	Size32    bool  `bitfield:",1"` // D/B: 32-bit segment
	Page      bool  `bitfield:",1"` // G: limit counts 4 KiB pages
}

var byteConfig = &bitfield.Config{NumBits: 8}

// Byte packs the access byte.
func (a Access) Byte() uint8 {
	return uint8(bitfield.MustPack(a, byteConfig))
}

// Byte packs the granularity byte.
func (f Flags) Byte() uint8 {
	return uint8(bitfield.MustPack(f, byteConfig))
}

// DecodeAccess splits an access byte into its fields.
func DecodeAccess(b uint8) Access {
	var a Access
	bitfield.MustUnpack(uint64(b), &a)
	return a
}

// DecodeFlags splits a granularity byte into its fields.
func DecodeFlags(b uint8) Flags {
	var f Flags
	bitfield.MustUnpack(uint64(b), &f)
	return f
}

// FlatAccess is the access byte of a present code or data segment at ring
// dpl. Code is execute-only, data is writable.
func FlatAccess(dpl uint8, code bool) uint8 {
	return Access{
		ReadWrite:  !code,
		Executable: code,
		CodeData:   true,
		DPL:        dpl,
		Present:    true,
	}.Byte()
}

// FlatFlags is the granularity byte of a 32-bit segment whose limit is
// counted in 4 KiB pages.
func FlatFlags() uint8 {
	return Flags{LimitHigh: 0xF, Size32: true, Page: true}.Byte()
}

// Access bytes and granularity of the flat segments installed at boot, as
// FlatAccess and FlatFlags produce them.
const (
	AccessKernelCode uint8 = 0x98 // present, ring 0, code, execute-only
	AccessKernelData uint8 = 0x92 // present, ring 0, data, writable
	AccessUserCode   uint8 = 0xF8 // present, ring 3, code, execute-only
	AccessUserData   uint8 = 0xF2 // present, ring 3, data, writable

	Gran4K32 uint8 = 0xCF // 4 KiB pages, 32-bit, limit high nibble 0xF
)

// FlatLimit spans the whole 4 GiB address space.
const FlatLimit uint32 = 0xFFFFFFFF
