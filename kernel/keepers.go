//go:build baremetal && 386

package main

import _ "unsafe"

// Symbols only referenced from lib.S, listed so the linker retains them.

//go:linkname isrGoEntry isr_goentry
func isrGoEntry(vector uint32)

var keepers = []interface{}{
	KernelMain,
	isrGoEntry,
}
