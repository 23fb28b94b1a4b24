package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/eddyb/rustic/gdt"
	"github.com/eddyb/rustic/idt"
	"github.com/eddyb/rustic/sim"
)

var (
	traceIndex = color.New(color.FgBlack, color.Bold)
	traceTrap  = color.New(color.FgYellow)
	traceEOI   = color.New(color.FgGreen)
	traceMark  = color.New(color.FgCyan)
	traceLoad  = color.New(color.FgMagenta)
)

func eventColor(e sim.Event) *color.Color {
	switch {
	case e.IsEOI():
		return traceEOI
	case e.Kind == sim.Trap:
		return traceTrap
	case e.Kind == sim.Mark:
		return traceMark
	case e.Kind == sim.LoadGDT, e.Kind == sim.LoadIDT, e.Kind == sim.FarJump,
		e.Kind == sim.LoadData, e.Kind == sim.LoadGS:
		return traceLoad
	}
	return nil
}

// PrintTrace writes one line per event. Port reads are dropped unless
// verbose is set; status polling would drown everything else.
func PrintTrace(w io.Writer, trace []sim.Event, verbose bool) {
	for i, e := range trace {
		if e.Kind == sim.In && !verbose {
			continue
		}
		traceIndex.Fprintf(w, "%4d ", i)
		if c := eventColor(e); c != nil {
			c.Fprintf(w, "%s", e)
		} else {
			fmt.Fprintf(w, "%s", e)
		}
		if e.IsEOI() {
			traceEOI.Fprintf(w, " (eoi)")
		}
		fmt.Fprintln(w)
	}
}

// PrintTables decodes the installed segments and the IRQ 0 gate.
func PrintTables(w io.Writer, res *Result) {
	color.New(color.FgCyan).Fprintf(w, "segments:\n")
	for i, d := range res.Segments {
		if i == 0 {
			fmt.Fprintf(w, "  0x00 null\n")
			continue
		}
		a := gdt.DecodeAccess(d.Access())
		f := gdt.DecodeFlags(d.Granularity())
		kind := "data"
		if a.Executable {
			kind = "code"
		}
		limit := d.Limit()
		if f.Page {
			limit = limit<<12 | 0xFFF
		}
		fmt.Fprintf(w, "  0x%02x %s ring %d base=0x%08x limit=0x%08x 32-bit=%v present=%v\n",
			i*8, kind, a.DPL, d.Base(), limit, f.Size32, a.Present)
	}

	g := res.IRQGate
	attr := idt.DecodeAttr(g.Flags())
	color.New(color.FgCyan).Fprintf(w, "irq 0 gate:")
	fmt.Fprintf(w, " vector 0x%02x handler=0x%08x selector=0x%02x type=0x%x dpl=%d present=%v\n",
		res.RemapBase, g.Handler(), g.Selector(), attr.Type, attr.DPL, attr.Present)
}

// PrintSummary writes the console capture and the router counters.
func PrintSummary(w io.Writer, res *Result) {
	color.New(color.FgCyan).Fprintf(w, "console:\n")
	fmt.Fprintf(w, "%s\n", res.Console)

	s := res.Stats
	color.New(color.FgCyan).Fprintf(w, "dispatched:")
	for line, n := range s.Dispatched {
		if n != 0 {
			fmt.Fprintf(w, " irq%d=%d", line, n)
		}
	}
	fmt.Fprintf(w, "\nspurious=%d no-status=%d unhandled=%d\n", s.Spurious, s.NoStatus, s.Unhandled)
	if res.Halted {
		color.New(color.FgRed, color.Bold).Fprintf(w, "cpu halted\n")
	}
}
