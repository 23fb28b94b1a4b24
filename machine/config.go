package machine

import "github.com/eddyb/rustic/gdt"

// Config is the boot-time layout the bring-up sequence installs.
type Config struct {
	// Selectors loaded into CS, DS/ES/FS/SS and GS once the GDT is live.
	CodeSelector uint16
	DataSelector uint16
	TLSSelector  uint16

	// TLSBase is the base of the TLS emulation segment (entry 5).
	TLSBase uint32

	// StubBase is the address of the entry stub for vector 0; the stub for
	// vector n is at StubBase + n*StubLength.
	StubBase   uint32
	StubLength uint32

	// RemapBase is the vector IRQ 0 is delivered on.
	RemapBase uint8

	// TimerHz is the periodic timer rate the kernel programs.
	TimerHz uint32
}

// DefaultConfig returns the layout of the stock kernel. StubBase and TLSBase
// are link-time addresses, so the bare-metal entry fills them in.
func DefaultConfig() Config {
	return Config{
		CodeSelector: gdt.SelectorKernelCode,
		DataSelector: gdt.SelectorKernelData,
		TLSSelector:  gdt.SelectorTLS,
		StubLength:   10,
		RemapBase:    0x20,
		TimerHz:      100,
	}
}
