//go:build !(baremetal && 386)

package main

import (
	"fmt"
	"os"
)

// The kernel only links for the bare-metal target. Build it with
//
//	GOOS=linux GOARCH=386 go build -tags baremetal ./kernel
//
// and use tools/irqsim to exercise the same code on the host.
func main() {
	fmt.Fprintf(os.Stderr, "kernel: built without the baremetal tag for GOARCH=386\n")
	os.Exit(1)
}
