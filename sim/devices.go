package sim

import "strings"

const uartBase uint16 = 0x3F8

func isUART(port uint16) bool { return port >= uartBase && port < uartBase+8 }

// uart captures what the kernel prints on COM1. The transmitter is always
// ready.
type uart struct {
	lcr     uint8
	divisor uint16
	out     strings.Builder
	in      []byte
}

func (u *uart) write(reg uint16, v uint8) {
	dlab := u.lcr&0x80 != 0
	switch reg {
	case 0:
		if dlab {
			u.divisor = u.divisor&0xFF00 | uint16(v)
			return
		}
		u.out.WriteByte(v)
	case 1:
		if dlab {
			u.divisor = u.divisor&0x00FF | uint16(v)<<8
		}
	case 3:
		u.lcr = v
	}
}

func (u *uart) read(reg uint16) uint8 {
	switch reg {
	case 0:
		if len(u.in) == 0 {
			return 0
		}
		c := u.in[0]
		u.in = u.in[1:]
		return c
	case 5:
		lsr := uint8(0x60) // THR empty, transmitter idle
		if len(u.in) > 0 {
			lsr |= 0x01
		}
		return lsr
	}
	return 0
}

// Console returns everything written to COM1.
func (m *Machine) Console() string { return m.uart.out.String() }

// ResetConsole clears the captured COM1 output.
func (m *Machine) ResetConsole() { m.uart.out.Reset() }

// Type queues bytes on the COM1 receiver.
func (m *Machine) Type(s string) { m.uart.in = append(m.uart.in, s...) }

// UARTDivisor returns the programmed baud rate divisor.
func (m *Machine) UARTDivisor() uint16 { return m.uart.divisor }

// pit models channel 0 of the 8253 in lobyte/hibyte access mode.
type pit struct {
	mode    uint8
	divisor uint16
	hiNext  bool
}

func (p *pit) write(port uint16, v uint8) {
	if port == 0x43 {
		p.mode = v
		p.hiNext = false
		return
	}
	if p.hiNext {
		p.divisor = p.divisor&0x00FF | uint16(v)<<8
	} else {
		p.divisor = p.divisor&0xFF00 | uint16(v)
	}
	p.hiNext = !p.hiNext
}

// TimerMode returns the last byte written to the timer command port.
func (m *Machine) TimerMode() uint8 { return m.pit.mode }

// TimerDivisor returns the channel 0 reload value.
func (m *Machine) TimerDivisor() uint16 { return m.pit.divisor }

// Tick fires IRQ 0 once.
func (m *Machine) Tick() { m.Raise(0) }

// keyboard models the 8042 output buffer and the LED command.
type keyboard struct {
	m       *Machine
	buffer  []uint8
	ledNext bool
	leds    uint8
}

const kbdAck uint8 = 0xFA

func (k *keyboard) push(code uint8) {
	k.buffer = append(k.buffer, code)
	k.m.Raise(1)
}

func (k *keyboard) write(port uint16, v uint8) {
	if port != 0x60 {
		return
	}
	switch {
	case k.ledNext:
		k.leds = v
		k.ledNext = false
	case v == 0xED:
		k.ledNext = true
	}
	k.push(kbdAck)
}

func (k *keyboard) read(port uint16) uint8 {
	if port == 0x64 {
		// Input buffer is never full; output full while codes are queued.
		if len(k.buffer) > 0 {
			return 0x01
		}
		return 0x00
	}
	if len(k.buffer) == 0 {
		return 0
	}
	c := k.buffer[0]
	k.buffer = k.buffer[1:]
	return c
}

// Key queues scan codes and raises IRQ 1 for each.
func (m *Machine) Key(codes ...uint8) {
	for _, c := range codes {
		m.keyboard.push(c)
	}
}

// LEDs returns the last LED state the keyboard accepted.
func (m *Machine) LEDs() uint8 { return m.keyboard.leds }
