package idt

import (
	"errors"
	"fmt"
	"testing"
	"unsafe"

	"github.com/eddyb/rustic/arch"
)

// fakeCPU captures the trap entry and the last lidt operand.
type fakeCPU struct {
	entry func(vector uint8)
	idtr  arch.DescriptorRegister
	lidts int
}

func (c *fakeCPU) Outb(uint16, uint8) {}
func (c *fakeCPU) Inb(uint16) uint8 { return 0 }
func (c *fakeCPU) LoadGDT(arch.DescriptorRegister) {}
func (c *fakeCPU) FarJump(uint16) {}
func (c *fakeCPU) LoadDataSegments(uint16) {}
func (c *fakeCPU) LoadGS(uint16) {}
func (c *fakeCPU) LoadIDT(reg arch.DescriptorRegister) { c.idtr = reg; c.lidts++ }
func (c *fakeCPU) EnableInterrupts() {}
func (c *fakeCPU) DisableInterrupts() {}
func (c *fakeCPU) Halt() {}
func (c *fakeCPU) SetTrapEntry(fn func(vector uint8)) { c.entry = fn }

const (
	testStubBase   uint32 = 0x00101000
	testStubLength uint32 = 10
)

func buildTable(t *testing.T) (*Table, *fakeCPU) {
	t.Helper()
	cpu := &fakeCPU{}
	tbl := New(cpu)
	if err := tbl.Build(testStubBase, testStubLength, 0x08); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return tbl, cpu
}

func TestEncodeGate(t *testing.T) {
	tests := []struct {
		name     string
		handler  uint32
		selector uint16
		flags    uint8
		expected [8]byte
	}{
		{
			name:     "default interrupt gate",
			handler:  0x00101000,
			selector: 0x08,
			flags:    Interrupt32,
			expected: [8]byte{0x00, 0x10, 0x08, 0x00, 0x00, 0xEE, 0x10, 0x00},
		},
		{
			name:     "0x60 forced even when omitted",
			handler:  0xDEADBEEF,
			selector: 0x10,
			flags:    0x0E,
			expected: [8]byte{0xEF, 0xBE, 0x10, 0x00, 0x00, 0x6E, 0xAD, 0xDE},
		},
		{
			name:     "zero",
			expected: [8]byte{0, 0, 0, 0, 0, 0x60, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeGate(tt.handler, tt.selector, tt.flags); got != tt.expected {
				t.Errorf("EncodeGate() = % X, want % X", got, tt.expected)
			}
		})
	}
}

func TestEncodeGateProperty(t *testing.T) {
	handlers := []uint32{0, 1, 0xFFFF, 0x10000, 0x12345678, 0xFFFFFFFF}
	for _, h := range handlers {
		for flags := 0; flags < 256; flags++ {
			g := NewGate(h, 0x08, uint8(flags))
			if g.Flags()&0x60 != 0x60 {
				t.Fatalf("flags 0x%02x: encoded 0x%02x lacks 0x60", flags, g.Flags())
			}
			if g.Flags()&^0x60 != uint8(flags)&^0x60 {
				t.Fatalf("flags 0x%02x: other bits changed to 0x%02x", flags, g.Flags())
			}
			b := g.Bytes()
			if lo := uint32(b[0]) | uint32(b[1])<<8; lo != h&0xFFFF {
				t.Fatalf("handler 0x%08x: low half 0x%04x", h, lo)
			}
			if hi := uint32(b[6]) | uint32(b[7])<<8; hi != h>>16 {
				t.Fatalf("handler 0x%08x: high half 0x%04x", h, hi)
			}
			if b[4] != 0 {
				t.Fatalf("reserved byte = 0x%02x", b[4])
			}
			if g.Handler() != h {
				t.Fatalf("Handler() = 0x%08x, want 0x%08x", g.Handler(), h)
			}
		}
	}
}

func TestAttrByte(t *testing.T) {
	a := Attr{Type: TypeInterrupt32, Present: true}
	if got := a.Byte(); got != Interrupt32 {
		t.Errorf("Byte() = 0x%02x, want 0x%02x", got, Interrupt32)
	}
	if got := DecodeAttr(0xEE); got != (Attr{Type: TypeInterrupt32, DPL: 3, Present: true}) {
		t.Errorf("DecodeAttr(0xEE) = %+v", got)
	}
}

func TestBuild(t *testing.T) {
	tbl, cpu := buildTable(t)

	for v := 0; v < Size; v++ {
		g := tbl.Gate(uint8(v))
		if want := testStubBase + uint32(v)*testStubLength; g.Handler() != want {
			t.Errorf("gate %d handler = 0x%08x, want 0x%08x", v, g.Handler(), want)
		}
		if g.Selector() != 0x08 {
			t.Errorf("gate %d selector = 0x%04x", v, g.Selector())
		}
		if g.Flags() != Interrupt32|0x60 {
			t.Errorf("gate %d flags = 0x%02x", v, g.Flags())
		}
		if tbl.Installed(uint8(v)) {
			t.Errorf("vector %d has a handler after Build", v)
		}
	}

	if cpu.entry == nil {
		t.Fatalf("Build() did not install the trap entry")
	}
	if reg := tbl.Pointer(); reg.Limit != Size*8-1 {
		t.Errorf("limit = %d, want %d", reg.Limit, Size*8-1)
	}
	if size := unsafe.Sizeof(Gate{}); size != 8 {
		t.Errorf("Gate size = %d, want 8", size)
	}

	if err := tbl.Build(0, 0, 0); !errors.Is(err, ErrAlreadyBuilt) {
		t.Errorf("second Build() error = %v, want ErrAlreadyBuilt", err)
	}
}

func TestLoad(t *testing.T) {
	tbl, cpu := buildTable(t)
	tbl.Load()
	if cpu.lidts != 1 || cpu.idtr != tbl.Pointer() {
		t.Errorf("lidt calls = %d with %+v, want 1 with %+v", cpu.lidts, cpu.idtr, tbl.Pointer())
	}
}

func TestDispatch(t *testing.T) {
	tbl, cpu := buildTable(t)

	var got []uint8
	tbl.Register(PageFault, HandlerFunc(func(v uint8) { got = append(got, v) }))
	tbl.Register(0x80, HandlerFunc(func(v uint8) { got = append(got, v) }))

	// Through the installed CPU entry, the way a stub enters.
	cpu.entry(PageFault)
	cpu.entry(0x80)
	cpu.entry(13) // No handler: swallowed

	if len(got) != 2 || got[0] != PageFault || got[1] != 0x80 {
		t.Errorf("dispatched %v, want [14 128]", got)
	}
	if !tbl.Installed(PageFault) || tbl.Installed(13) {
		t.Errorf("Installed() wrong after registration")
	}
}

func TestRegisterOverwrites(t *testing.T) {
	tbl, _ := buildTable(t)

	first, second := 0, 0
	tbl.Register(0x21, HandlerFunc(func(uint8) { first++ }))
	tbl.Register(0x21, HandlerFunc(func(uint8) { second++ }))
	tbl.Dispatch(0x21)

	if first != 0 || second != 1 {
		t.Errorf("first=%d second=%d, want only the second handler to run once", first, second)
	}
}

func ExampleEncodeGate() {
	fmt.Printf("% X\n", EncodeGate(0x00101000, 0x08, Interrupt32))

	// Output:
	// 00 10 08 00 00 EE 10 00
}
