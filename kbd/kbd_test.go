package kbd

import (
	"fmt"
	"strings"
	"testing"

	"github.com/eddyb/rustic/machine"
	"github.com/eddyb/rustic/serial"
	"github.com/eddyb/rustic/sim"
)

type buffer []byte

func (b *buffer) Putc(c byte) { *b = append(*b, c) }

func bootKeyboard(t *testing.T) (*Keyboard, *sim.Machine, *buffer) {
	t.Helper()
	cpu := sim.New()
	m := machine.New(cpu, serial.New(cpu, serial.COM1), machine.DefaultConfig())
	if err := m.Init(); err != nil {
		t.Fatalf("machine Init() error = %v", err)
	}
	out := &buffer{}
	k := New(cpu, out)
	k.Init(m)
	m.SetInterrupts(true)
	return k, cpu, out
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		code    uint8
		shifted bool
		want    byte
		ok      bool
	}{
		{0x1E, false, 'a', true},
		{0x1E, true, 'A', true},
		{0x02, false, '1', true},
		{0x02, true, '!', true},
		{0x1C, false, '\n', true},
		{0x39, false, ' ', true},
		{0x2B, true, '|', true},
		{0x52, false, '0', true},
		{0x1D, false, 0, false}, // Control
		{0x58, false, 0, false}, // F12
		{0x59, false, 0, false},
		{0x7A, false, 0, false},
	}
	for _, tt := range tests {
		c, ok := Translate(tt.code, tt.shifted)
		if c != tt.want || ok != tt.ok {
			t.Errorf("Translate(0x%02x, %v) = %q %v, want %q %v", tt.code, tt.shifted, c, ok, tt.want, tt.ok)
		}
	}
}

func TestTyping(t *testing.T) {
	_, cpu, out := bootKeyboard(t)

	// h, i, shift+1
	cpu.Key(0x23, 0xA3, 0x17, 0x97, 0x2A, 0x02, 0x82, 0xAA)

	if got := string(*out); got != "hi!" {
		t.Errorf("typed %q, want %q", got, "hi!")
	}
}

func TestShift(t *testing.T) {
	k, cpu, _ := bootKeyboard(t)
	cpu.Key(0x36)
	if !k.Shifted() {
		t.Fatalf("right shift press not tracked")
	}
	cpu.Key(0xB6)
	if k.Shifted() {
		t.Errorf("shift still held after release")
	}
}

func TestLocksToggleLEDs(t *testing.T) {
	k, cpu, out := bootKeyboard(t)

	cpu.Key(0x3A, 0xBA)
	if cpu.LEDs() != LEDCaps || k.LEDs() != LEDCaps {
		t.Fatalf("LEDs = 0b%03b/0b%03b after caps lock, want 0b100", cpu.LEDs(), k.LEDs())
	}
	cpu.Key(0x45, 0xC5, 0x46, 0xC6)
	if cpu.LEDs() != LEDCaps|LEDNum|LEDScroll {
		t.Errorf("LEDs = 0b%03b, want 0b111", cpu.LEDs())
	}
	cpu.Key(0x3A, 0xBA)
	if cpu.LEDs() != LEDNum|LEDScroll {
		t.Errorf("LEDs = 0b%03b, want 0b011", cpu.LEDs())
	}

	// The keyboard's acknowledgements come back as codes above the map.
	if len(*out) != 0 {
		t.Errorf("lock keys typed %q", string(*out))
	}
}

func TestLEDCommandConsumesAck(t *testing.T) {
	_, cpu, out := bootKeyboard(t)
	cpu.ResetTrace()

	cpu.Key(0x45, 0xC5)

	// The ACK of 0xED is read before the LED byte goes out.
	var seq []string
	for _, e := range cpu.Trace() {
		switch {
		case e.Kind == sim.Out && e.Port == DataPort:
			seq = append(seq, fmt.Sprintf("out %02x", e.Value))
		case e.Kind == sim.In && e.Port == DataPort:
			seq = append(seq, fmt.Sprintf("in %02x", e.Value))
		}
	}
	want := []string{"in 45", "in c5", "out ed", "in fa", "out 02", "in fa"}
	if strings.Join(seq, " ") != strings.Join(want, " ") {
		t.Errorf("data port traffic = %v, want %v", seq, want)
	}

	if cpu.Inb(StatusPort)&statusOutputFull != 0 {
		t.Errorf("output buffer still holds a byte")
	}
	if cpu.LEDs() != LEDNum || len(*out) != 0 {
		t.Errorf("LEDs = 0b%03b, typed %q", cpu.LEDs(), string(*out))
	}
}

func TestIgnoresEmptyBuffer(t *testing.T) {
	k, cpu, out := bootKeyboard(t)
	k.HandleIRQ(IRQ)
	if len(*out) != 0 || cpu.LEDs() != 0 {
		t.Errorf("handler acted without a pending code")
	}
}
