// Command irqsim boots the interrupt bring-up on a simulated 386 and plays a
// scenario of device interrupts against it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	pngPath := flag.String("png", "", "write a timeline of the run to this PNG file")
	verbose := flag.Bool("v", false, "include port reads in the trace")
	noColor := flag.Bool("no-color", false, "disable colored output")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: irqsim [flags] <scenario.yaml>\n")
		fmt.Fprintf(os.Stderr, "Runs GDT/IDT/PIC bring-up on a simulated machine and replays a scenario\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	if *noColor {
		color.NoColor = true
	}

	file, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening scenario: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	sc, err := Load(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
		os.Exit(1)
	}

	res, err := Run(sc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running scenario: %v\n", err)
		os.Exit(1)
	}

	PrintTrace(os.Stdout, res.Trace, *verbose)
	PrintTables(os.Stdout, res)
	PrintSummary(os.Stdout, res)

	if *pngPath != "" {
		if err := Timeline(res).SavePNG(*pngPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing timeline: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote timeline to %s\n", *pngPath)
	}
}
