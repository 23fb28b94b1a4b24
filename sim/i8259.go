package sim

// i8259 is one 8259A in the configuration the PC wires it: edge-triggered,
// fully nested, no auto-EOI.
type i8259 struct {
	primary bool

	// ICW state. step is the next ICW expected on the data port (2..4), or
	// 0 once the controller is operational.
	step       int
	needICW4   bool
	single     bool
	base       uint8
	cascade    uint8 // ICW3
	mode       uint8 // ICW4
	configured bool

	imr, irr, isr uint8
	readISR       bool // OCW3 register select
}

func newI8259(primary bool) i8259 {
	// Power-on state is undefined; start fully masked like the BIOS leaves it.
	return i8259{primary: primary, imr: 0xFF}
}

func (c *i8259) writeCommand(v uint8) {
	switch {
	case v&0x10 != 0: // ICW1
		c.step = 2
		c.needICW4 = v&0x01 != 0
		c.single = v&0x02 != 0
		c.imr, c.irr, c.isr = 0, 0, 0
		c.readISR = false
		c.configured = false
	case v&0x18 == 0x08: // OCW3
		if v&0x02 != 0 {
			c.readISR = v&0x01 != 0
		}
	default: // OCW2
		if v&0x20 == 0 {
			return
		}
		if v&0x40 != 0 {
			c.isr &^= 1 << (v & 0x07)
			return
		}
		// Non-specific EOI retires the highest priority bit in service.
		if n, ok := lowestBit(c.isr); ok {
			c.isr &^= 1 << n
		}
	}
}

func (c *i8259) writeData(v uint8) {
	switch c.step {
	case 2:
		c.base = v & 0xF8
		switch {
		case !c.single:
			c.step = 3
		case c.needICW4:
			c.step = 4
		default:
			c.finish()
		}
	case 3:
		c.cascade = v
		if c.needICW4 {
			c.step = 4
		} else {
			c.finish()
		}
	case 4:
		c.mode = v
		c.finish()
	default: // OCW1
		c.imr = v
	}
}

func (c *i8259) finish() {
	c.step = 0
	c.configured = true
}

func (c *i8259) readCommand() uint8 {
	if c.readISR {
		return c.isr
	}
	return c.irr
}

func (c *i8259) readData() uint8 { return c.imr }

// pending returns the highest priority unmasked request that outranks every
// line in service.
func (c *i8259) pending() (uint8, bool) {
	n, ok := lowestBit(c.irr &^ c.imr)
	if !ok {
		return 0, false
	}
	if s, inService := lowestBit(c.isr); inService && s <= n {
		return 0, false
	}
	return n, true
}

// accept moves line n from requested to in service (the INTA cycle).
func (c *i8259) accept(n uint8) {
	c.irr &^= 1 << n
	c.isr |= 1 << n
}

func (c *i8259) state() Controller {
	return Controller{
		Configured: c.configured,
		Base:       c.base,
		Cascade:    c.cascade,
		IMR:        c.imr,
		IRR:        c.irr,
		ISR:        c.isr,
	}
}

func lowestBit(v uint8) (uint8, bool) {
	for n := uint8(0); n < 8; n++ {
		if v&(1<<n) != 0 {
			return n, true
		}
	}
	return 0, false
}
