package sim

import (
	"errors"
	"testing"
)

// remap runs the standard PC initialization with primary at 0x20.
func remap(m *Machine) {
	m.Outb(0x20, 0x11)
	m.Outb(0xA0, 0x11)
	m.Outb(0x21, 0x20)
	m.Outb(0xA1, 0x28)
	m.Outb(0x21, 0x04)
	m.Outb(0xA1, 0x02)
	m.Outb(0x21, 0x01)
	m.Outb(0xA1, 0x01)
	m.Outb(0x21, 0xFF)
	m.Outb(0xA1, 0xFF)
}

func TestControllerInit(t *testing.T) {
	m := New()
	remap(m)

	p, s := m.Primary(), m.Secondary()
	if !p.Configured || !s.Configured {
		t.Fatalf("controllers not configured: %+v %+v", p, s)
	}
	if p.Base != 0x20 || s.Base != 0x28 {
		t.Errorf("bases = 0x%02x/0x%02x, want 0x20/0x28", p.Base, s.Base)
	}
	if p.Cascade != 0x04 || s.Cascade != 0x02 {
		t.Errorf("cascade = 0x%02x/0x%02x", p.Cascade, s.Cascade)
	}
	if p.IMR != 0xFF || s.IMR != 0xFF {
		t.Errorf("masks = 0x%02x/0x%02x, want all masked", p.IMR, s.IMR)
	}
}

func TestDelivery(t *testing.T) {
	tests := []struct {
		name       string
		line       uint8
		unmask     [2]uint8 // primary, secondary IMR
		wantVector int      // -1 for nothing delivered
	}{
		{name: "primary line", line: 1, unmask: [2]uint8{0xFD, 0xFF}, wantVector: 0x21},
		{name: "masked primary line", line: 1, unmask: [2]uint8{0xFF, 0xFF}, wantVector: -1},
		{name: "secondary through cascade", line: 12, unmask: [2]uint8{0xFB, 0xEF}, wantVector: 0x2C},
		{name: "secondary with cascade masked", line: 12, unmask: [2]uint8{0xFF, 0xEF}, wantVector: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			remap(m)
			var got []uint8
			m.SetTrapEntry(func(v uint8) { got = append(got, v) })
			m.Outb(0x21, tt.unmask[0])
			m.Outb(0xA1, tt.unmask[1])
			m.EnableInterrupts()

			m.Raise(tt.line)

			if tt.wantVector < 0 {
				if len(got) != 0 {
					t.Errorf("delivered %v, want nothing", got)
				}
				return
			}
			if len(got) != 1 || got[0] != uint8(tt.wantVector) {
				t.Errorf("delivered %v, want [0x%02x]", got, tt.wantVector)
			}
		})
	}
}

func TestInServiceBlocksUntilEOI(t *testing.T) {
	m := New()
	remap(m)
	count := 0
	m.SetTrapEntry(func(uint8) { count++ })
	m.Outb(0x21, 0xFE)
	m.EnableInterrupts()

	m.Raise(0)
	m.Raise(0)
	if count != 1 {
		t.Fatalf("delivered %d times before EOI, want 1", count)
	}
	if m.Primary().ISR != 0x01 {
		t.Fatalf("ISR = 0x%02x, want 0x01", m.Primary().ISR)
	}

	// The latched second request goes through as soon as line 0 retires.
	m.Outb(0x20, 0x20)
	if count != 2 {
		t.Errorf("delivered %d times after EOI, want 2", count)
	}
}

func TestReadISR(t *testing.T) {
	m := New()
	remap(m)
	m.SetTrapEntry(func(uint8) {
		m.Outb(0x20, 0x0B)
		if isr := m.Inb(0x20); isr != 0x08 {
			t.Errorf("ISR in handler = 0x%02x, want 0x08", isr)
		}
		m.Outb(0x20, 0x0A)
		if irr := m.Inb(0x20); irr != 0x00 {
			t.Errorf("IRR in handler = 0x%02x, want 0", irr)
		}
	})
	m.Outb(0x21, 0xF7)
	m.EnableInterrupts()
	m.Raise(3)
}

func TestSpurious(t *testing.T) {
	m := New()
	remap(m)
	var got []uint8
	m.SetTrapEntry(func(v uint8) { got = append(got, v) })

	m.RaiseSpurious(7)
	if m.Primary().ISR != 0 {
		t.Errorf("spurious 7 set ISR 0x%02x", m.Primary().ISR)
	}
	m.RaiseSpurious(15)
	if m.Primary().ISR != 0x04 || m.Secondary().ISR != 0 {
		t.Errorf("spurious 15 ISRs = 0x%02x/0x%02x", m.Primary().ISR, m.Secondary().ISR)
	}
	if len(got) != 2 || got[0] != 0x27 || got[1] != 0x2F {
		t.Errorf("vectors = %v, want [0x27 0x2f]", got)
	}
}

func TestTrapClearsIF(t *testing.T) {
	m := New()
	m.SetTrapEntry(func(uint8) {
		if m.InterruptsEnabled() {
			t.Errorf("IF set inside handler")
		}
	})
	m.EnableInterrupts()
	m.Fault(14)
	if !m.InterruptsEnabled() {
		t.Errorf("IF not restored after handler")
	}
}

func TestHalt(t *testing.T) {
	m := New()
	m.EnableInterrupts()
	if err := m.Run(m.Halt); err != nil {
		t.Errorf("Halt() with IF set: %v", err)
	}
	m.DisableInterrupts()
	if err := m.Run(m.Halt); !errors.Is(err, ErrHalted) {
		t.Errorf("Halt() with IF clear = %v, want ErrHalted", err)
	}
	if !m.Halted() {
		t.Errorf("Halted() = false")
	}
}

func TestUART(t *testing.T) {
	m := New()
	m.Outb(0x3FB, 0x80)
	m.Outb(0x3F8, 0x03)
	m.Outb(0x3F9, 0x00)
	m.Outb(0x3FB, 0x03)
	for _, c := range []byte("ok\n") {
		if m.Inb(0x3FD)&0x20 == 0 {
			t.Fatalf("transmitter not ready")
		}
		m.Outb(0x3F8, c)
	}
	if m.Console() != "ok\n" {
		t.Errorf("Console() = %q", m.Console())
	}
	if m.UARTDivisor() != 3 {
		t.Errorf("divisor = %d, want 3", m.UARTDivisor())
	}
	for _, e := range m.Trace() {
		if isUART(e.Port) && (e.Kind == Out || e.Kind == In) {
			t.Errorf("UART access in trace: %s", e)
		}
	}
}

func TestTimer(t *testing.T) {
	m := New()
	m.Outb(0x43, 0x36)
	m.Outb(0x40, 0x9B)
	m.Outb(0x40, 0x2E)
	if m.TimerMode() != 0x36 || m.TimerDivisor() != 0x2E9B {
		t.Errorf("mode 0x%02x divisor 0x%04x", m.TimerMode(), m.TimerDivisor())
	}
}

func TestKeyboardRefill(t *testing.T) {
	m := New()
	remap(m)
	var codes []uint8
	m.SetTrapEntry(func(uint8) {
		if m.Inb(0x64)&1 != 0 {
			codes = append(codes, m.Inb(0x60))
		}
		m.Outb(0x20, 0x20)
	})
	m.Outb(0x21, 0xFD)
	m.EnableInterrupts()

	m.Key(0x1E, 0x9E, 0x30)
	if len(codes) != 3 || codes[0] != 0x1E || codes[1] != 0x9E || codes[2] != 0x30 {
		t.Errorf("codes = % X, want 1E 9E 30", codes)
	}
}

func TestEOIs(t *testing.T) {
	m := New()
	m.Outb(0xA0, 0x20)
	m.Outb(0x20, 0x20)
	m.Outb(0x20, 0x20)
	if m.EOIs(0x20) != 2 || m.EOIs(0xA0) != 1 {
		t.Errorf("EOIs = %d/%d, want 2/1", m.EOIs(0x20), m.EOIs(0xA0))
	}
	m.ResetTrace()
	if len(m.Trace()) != 0 {
		t.Errorf("trace not reset")
	}
}
