// Package kbd is the PS/2 keyboard client: scan code set 1 on IRQ 1, shift
// tracking and the three lock LEDs.
package kbd

import (
	"github.com/eddyb/rustic/arch"
	"github.com/eddyb/rustic/pic"
)

// 8042 ports and status bits
const (
	DataPort   uint16 = 0x60
	StatusPort uint16 = 0x64

	statusOutputFull = 1 << 0
	statusInputFull  = 1 << 1

	cmdSetLEDs uint8 = 0xED
)

// LED bits as the keyboard expects them after 0xED.
const (
	LEDScroll uint8 = 1 << 0
	LEDNum    uint8 = 1 << 1
	LEDCaps   uint8 = 1 << 2
)

// Scan codes with special meaning
const (
	codeLeftShift  = 0x2A
	codeRightShift = 0x36
	codeCapsLock   = 0x3A
	codeNumLock    = 0x45
	codeScrollLock = 0x46

	releaseBit = 0x80

	// MaxCode is the last code the translation maps cover.
	MaxCode = 0x58
)

// IRQ is the keyboard line.
const IRQ uint8 = 1

// Scan code set 1. Zero is a key with no character.
var (
	normalMap = [MaxCode + 1]byte{
		0, 0x1B, '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=', '\b', '\t',
		'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']', '\n', 0, 'a', 's',
		'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`', 0, '\\', 'z', 'x', 'c', 'v',
		'b', 'n', 'm', ',', '.', '/', 0, '*', 0, ' ', 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, '7', '8', '9', '-', '4', '5', '6', '+', '1',
		'2', '3', '0', '.', 0, 0, 0, 0, 0,
	}
	shiftedMap = [MaxCode + 1]byte{
		0, 0x1B, '!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '_', '+', '\b', '\t',
		'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I', 'O', 'P', '{', '}', '\n', 0, 'A', 'S',
		'D', 'F', 'G', 'H', 'J', 'K', 'L', ':', '"', '~', 0, '|', 'Z', 'X', 'C', 'V',
		'B', 'N', 'M', '<', '>', '?', 0, '*', 0, ' ', 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, '7', '8', '9', '-', '4', '5', '6', '+', '1',
		'2', '3', '0', '.', 0, 0, 0, 0, 0,
	}
)

// Translate maps a scan code (without the release bit) to a character.
func Translate(code uint8, shifted bool) (byte, bool) {
	if code > MaxCode {
		return 0, false
	}
	c := normalMap[code]
	if shifted {
		c = shiftedMap[code]
	}
	return c, c != 0
}

// Sink receives translated characters.
type Sink interface {
	Putc(c byte)
}

// Registrar hooks an IRQ line and unmasks it.
type Registrar interface {
	RegisterIRQ(line uint8, h pic.LineHandler)
}

// Keyboard holds the modifier and LED state. It is only touched from the
// IRQ 1 handler once Init has run.
type Keyboard struct {
	ports arch.Ports
	sink  Sink

	shifted bool
	leds    uint8
}

// New returns a keyboard writing characters to sink.
func New(ports arch.Ports, sink Sink) *Keyboard {
	return &Keyboard{ports: ports, sink: sink}
}

// Init hooks IRQ 1. The controller is left in the scan code set the
// firmware selected, which is set 1 on PCs.
func (k *Keyboard) Init(reg Registrar) {
	reg.RegisterIRQ(IRQ, k)
}

// HandleIRQ reads one scan code if the controller has one.
func (k *Keyboard) HandleIRQ(line uint8) {
	if k.ports.Inb(StatusPort)&statusOutputFull == 0 {
		return
	}
	code := k.ports.Inb(DataPort)

	// Top bit set means key up
	if code&releaseBit != 0 {
		code &^= releaseBit
		switch code {
		case codeLeftShift, codeRightShift:
			k.shifted = false
		case codeCapsLock:
			k.ToggleLEDs(LEDCaps)
		case codeNumLock:
			k.ToggleLEDs(LEDNum)
		case codeScrollLock:
			k.ToggleLEDs(LEDScroll)
		default:
			k.key(code)
		}
		return
	}

	switch code {
	case codeLeftShift, codeRightShift:
		k.shifted = true
	}
}

func (k *Keyboard) key(code uint8) {
	if c, ok := Translate(code, k.shifted); ok {
		k.sink.Putc(c)
	}
}

// ToggleLEDs flips the given LED bits and sends the new state.
func (k *Keyboard) ToggleLEDs(bits uint8) {
	k.leds ^= bits

	k.waitInputEmpty()
	k.ports.Outb(DataPort, cmdSetLEDs)
	k.waitOutputFull()
	k.ports.Inb(DataPort) // ACK
	k.ports.Outb(DataPort, k.leds)
}

func (k *Keyboard) waitInputEmpty() {
	for k.ports.Inb(StatusPort)&statusInputFull != 0 {
	}
}

func (k *Keyboard) waitOutputFull() {
	for k.ports.Inb(StatusPort)&statusOutputFull == 0 {
	}
}

// Shifted reports whether a shift key is held.
func (k *Keyboard) Shifted() bool { return k.shifted }

// LEDs returns the LED state last sent.
func (k *Keyboard) LEDs() uint8 { return k.leds }
