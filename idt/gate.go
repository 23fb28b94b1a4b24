package idt

import "github.com/eddyb/rustic/bitfield"

// Gate is one 8-byte interrupt gate, in hardware order.
type Gate struct {
	handlerLow  uint16
	selector    uint16
	always0     uint8
	flags       uint8
	handlerHigh uint16
}

// gateDPL3 is ORed into every gate's flags so the gates may be reached from
// ring 3 with int n.
const gateDPL3 uint8 = 0x60

// Attr is the gate type/attribute byte, least significant bit first.
type Attr struct {
	Type    uint8 `bitfield:",4"`
	Storage bool  `bitfield:",1"`
	DPL     uint8 `bitfield:",2"`
	Present bool  `bitfield:",1"`
}

// Gate types for Attr.Type
const (
	TypeTask32      uint8 = 0x5
	TypeInterrupt16 uint8 = 0x6
	TypeTrap16      uint8 = 0x7
	TypeInterrupt32 uint8 = 0xE
	TypeTrap32      uint8 = 0xF
)

// Interrupt32 is a present, ring 0, 32-bit interrupt gate. Interrupt gates
// clear IF on entry, which keeps handlers from being re-entered.
const Interrupt32 uint8 = 0x8E

var byteConfig = &bitfield.Config{NumBits: 8}

// Byte packs the attribute byte.
func (a Attr) Byte() uint8 {
	return uint8(bitfield.MustPack(a, byteConfig))
}

// DecodeAttr splits an attribute byte into its fields.
func DecodeAttr(b uint8) Attr {
	var a Attr
	bitfield.MustUnpack(uint64(b), &a)
	return a
}

// NewGate encodes a gate for handler. flags always gets 0x60 set on top of
// what the caller passes.
func NewGate(handler uint32, selector uint16, flags uint8) Gate {
	return Gate{
		handlerLow:  uint16(handler & 0xFFFF),
		selector:    selector,
		always0:     0,
		flags:       flags | gateDPL3,
		handlerHigh: uint16((handler >> 16) & 0xFFFF),
	}
}

// EncodeGate returns the 8-byte wire layout of a gate:
// handler-low(2) selector(2) zero(1) flags(1) handler-high(2).
func EncodeGate(handler uint32, selector uint16, flags uint8) [8]byte {
	return NewGate(handler, selector, flags).Bytes()
}

// Bytes returns the gate in memory order.
func (g Gate) Bytes() [8]byte {
	return [8]byte{
		byte(g.handlerLow),
		byte(g.handlerLow >> 8),
		byte(g.selector),
		byte(g.selector >> 8),
		g.always0,
		g.flags,
		byte(g.handlerHigh),
		byte(g.handlerHigh >> 8),
	}
}

// Handler reassembles the stub address.
func (g Gate) Handler() uint32 {
	return uint32(g.handlerHigh)<<16 | uint32(g.handlerLow)
}

// Selector returns the code segment selector.
func (g Gate) Selector() uint16 { return g.selector }

// Flags returns the raw attribute byte.
func (g Gate) Flags() uint8 { return g.flags }
