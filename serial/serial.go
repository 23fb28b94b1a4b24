// Package serial is the low-level diagnostics console: a polled 16550 UART
// on COM1. Nothing here allocates, so it is safe from interrupt context.
package serial

import "github.com/eddyb/rustic/arch"

// COM1 register offsets
const (
	COM1 uint16 = 0x3F8

	regData       = 0 // THR/RBR, divisor low with DLAB
	regIntEnable  = 1 // IER, divisor high with DLAB
	regFIFO       = 2 // FCR
	regLineCtl    = 3 // LCR
	regModemCtl   = 4 // MCR
	regLineStatus = 5 // LSR

	lsrDataReady = 1 << 0
	lsrTHREmpty  = 1 << 5
)

// Console is where every diagnostic of the bring-up layer goes.
type Console interface {
	Putc(c byte)
	Puts(s string)
	PutHex8(v uint8)
	PutHex32(v uint32)
	PutUint32(n uint32)
}

// Port is a UART at a fixed I/O base.
type Port struct {
	ports arch.Ports
	base  uint16
}

// New returns the UART at base. Call Init before the first write.
func New(ports arch.Ports, base uint16) *Port {
	return &Port{ports: ports, base: base}
}

// Init programs 38400 baud, 8N1, FIFOs on.
func (p *Port) Init() {
	p.ports.Outb(p.base+regIntEnable, 0x00) // Disable UART interrupts
	p.ports.Outb(p.base+regLineCtl, 0x80)   // DLAB on
	p.ports.Outb(p.base+regData, 0x03)      // Divisor 3 (lo byte) 38400 baud
	p.ports.Outb(p.base+regIntEnable, 0x00) //           (hi byte)
	p.ports.Outb(p.base+regLineCtl, 0x03)   // 8 bits, no parity, one stop bit
	p.ports.Outb(p.base+regFIFO, 0xC7)      // Enable FIFO, clear, 14-byte threshold
	p.ports.Outb(p.base+regModemCtl, 0x0B)  // DTR/RTS set, OUT2 on
}

//go:nosplit
func (p *Port) Putc(c byte) {
	for p.ports.Inb(p.base+regLineStatus)&lsrTHREmpty == 0 {
		// Wait for the transmit holding register to drain
	}
	p.ports.Outb(p.base+regData, c)
}

// Getc blocks until a byte is received.
func (p *Port) Getc() byte {
	for p.ports.Inb(p.base+regLineStatus)&lsrDataReady == 0 {
	}
	return p.ports.Inb(p.base + regData)
}

//go:nosplit
func (p *Port) Puts(s string) {
	for i := 0; i < len(s); i++ {
		p.Putc(s[i])
	}
}

//go:nosplit
func (p *Port) PutHex8(v uint8) {
	p.Putc(hexDigit(v >> 4))
	p.Putc(hexDigit(v & 0xF))
}

//go:nosplit
func (p *Port) PutHex32(v uint32) {
	for shift := 28; shift >= 0; shift -= 4 {
		p.Putc(hexDigit(uint8(v>>uint(shift)) & 0xF))
	}
}

// PutUint32 outputs n in decimal
//
//go:nosplit
func (p *Port) PutUint32(n uint32) {
	// Buffer for up to 10 digits (uint32 max is 4,294,967,295)
	var buf [10]byte
	count := Uitoa(n, buf[:])
	for i := 0; i < count; i++ {
		p.Putc(buf[i])
	}
}

func hexDigit(d uint8) byte {
	if d < 10 {
		return '0' + d
	}
	return 'A' + d - 10
}

// Uitoa converts a uint32 to its decimal representation in buf.
// Returns the number of digits written
// This is a bare-metal implementation (no fmt package)
//
//go:nosplit
func Uitoa(n uint32, buf []byte) int {
	if n == 0 {
		buf[0] = '0'
		return 1
	}

	// Count digits
	digits := 0
	temp := n
	for temp > 0 {
		digits++
		temp /= 10
	}

	// Write digits from right to left
	idx := digits - 1
	for n > 0 {
		buf[idx] = byte('0' + (n % 10))
		n /= 10
		idx--
	}

	return digits
}
