// Package pit runs channel 0 of the 8253/8254 as the periodic system tick
// and shows a once-a-second spinner on the console.
package pit

import (
	"errors"

	"github.com/eddyb/rustic/arch"
	"github.com/eddyb/rustic/pic"
	"github.com/eddyb/rustic/serial"
)

const (
	Channel0 uint16 = 0x40
	Command  uint16 = 0x43

	// ModeSquareWave selects channel 0, lobyte/hibyte access, mode 3, binary.
	ModeSquareWave uint8 = 0x36

	// BaseFrequency is the input clock in Hz.
	BaseFrequency uint32 = 1193180

	// IRQ is the line channel 0 is wired to.
	IRQ uint8 = 0
)

// ErrFrequency is returned for rates the 16-bit divisor cannot produce.
var ErrFrequency = errors.New("pit: frequency out of range")

// Registrar hooks an IRQ line and unmasks it.
type Registrar interface {
	RegisterIRQ(line uint8, h pic.LineHandler)
}

var spinner = [4]byte{'|', '/', '-', '\\'}

// Timer counts ticks and whole seconds.
type Timer struct {
	ports   arch.Ports
	console serial.Console

	hz     uint32
	ticks  uint32
	phase  uint32 // Ticks into the current second
	second uint8  // Spinner position, 0..3
}

// Divisor returns the reload value for hz.
func Divisor(hz uint32) (uint16, error) {
	if hz == 0 || hz > BaseFrequency {
		return 0, ErrFrequency
	}
	div := BaseFrequency / hz
	if div > 0xFFFF {
		return 0, ErrFrequency
	}
	return uint16(div), nil
}

// New returns a timer that has not been programmed.
func New(ports arch.Ports, console serial.Console) *Timer {
	return &Timer{ports: ports, console: console}
}

// Init programs periodic mode at hz and hooks IRQ 0.
func (t *Timer) Init(reg Registrar, hz uint32) error {
	div, err := Divisor(hz)
	if err != nil {
		return err
	}
	t.hz = hz

	t.ports.Outb(Command, ModeSquareWave)
	t.ports.Outb(Channel0, uint8(div&0xFF))
	t.ports.Outb(Channel0, uint8(div>>8))

	reg.RegisterIRQ(IRQ, t)
	return nil
}

// HandleIRQ advances the clock by one tick.
//
//go:nosplit
func (t *Timer) HandleIRQ(line uint8) {
	t.ticks++
	t.phase++
	if t.phase < t.hz {
		return
	}
	t.phase = 0
	t.console.Putc(spinner[t.second])
	t.second = (t.second + 1) % 4
}

// Ticks returns the number of ticks since Init.
func (t *Timer) Ticks() uint32 { return t.ticks }

// Hz returns the programmed rate.
func (t *Timer) Hz() uint32 { return t.hz }
