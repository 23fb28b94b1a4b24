//go:build baremetal && 386

package main

import (
	"github.com/eddyb/rustic/arch"
	"github.com/eddyb/rustic/kbd"
	"github.com/eddyb/rustic/machine"
	"github.com/eddyb/rustic/pit"
	"github.com/eddyb/rustic/serial"
)

// Value left in EAX by a multiboot loader.
const multibootBootloaderMagic = 0x2BADB002

// KernelMain is called by _start in lib.S on the boot stack with interrupts
// disabled. It does not return.
//
//go:noinline
func KernelMain(magic, info uint32) {
	hw := arch.Hardware{}

	// Initialize the UART first for early debugging
	console := serial.New(hw, serial.COM1)
	console.Init()
	console.Puts("\r\nrustic: booting\r\n")
	if magic != multibootBootloaderMagic {
		console.Puts("WARNING: bad multiboot magic 0x")
		console.PutHex32(magic)
		console.Puts("\r\n")
	}
	console.Puts("multiboot info at 0x")
	console.PutHex32(info)
	console.Puts("\r\n")

	cfg := machine.DefaultConfig()
	cfg.StubBase = hw.StubBase()
	cfg.StubLength = arch.ISRStubLength
	cfg.TLSBase = hw.TLSBase()

	m := machine.New(hw, console, cfg)
	if err := m.Init(); err != nil {
		fatal(hw, console, err)
	}

	timer := pit.New(hw, console)
	if err := timer.Init(m, cfg.TimerHz); err != nil {
		fatal(hw, console, err)
	}
	keyboard := kbd.New(hw, console)
	keyboard.Init(m)

	console.Puts("Enabling interrupts\r\n")
	for {
		m.WaitForInterrupt()
	}
}

func fatal(cpu arch.Privileged, console serial.Console, err error) {
	console.Puts("ERROR: ")
	console.Puts(err.Error())
	console.Puts("\r\n")
	cpu.DisableInterrupts()
	for {
		cpu.Halt()
	}
}

var bootMagic, bootInfo uint32

// main only keeps KernelMain in the binary; _start calls it directly.
func main() {
	KernelMain(bootMagic, bootInfo)
}
