package main

import (
	"fmt"
	"strings"

	"github.com/fogleman/gg"

	"github.com/eddyb/rustic/pic"
	"github.com/eddyb/rustic/sim"
)

const (
	rowHeight   = 20
	columnWidth = 14
	labelWidth  = 72
	margin      = 10
)

// Rows: 16 IRQ lines, then exceptions, then the two EOI ports.
const (
	rowException = pic.Lines + iota
	rowEOIPrimary
	rowEOISecondary
	rowCount
)

type mark struct {
	column int
	row    int
	kind   int
}

const (
	markDelivered = iota
	markHandled
	markEOI
)

// columns keeps the events worth plotting, one column each.
func columns(trace []sim.Event, base uint8) []mark {
	var out []mark
	for _, e := range trace {
		switch {
		case e.Kind == sim.Trap:
			row := rowException
			if n := int(e.Vector) - int(base); n >= 0 && n < pic.Lines {
				row = n
			}
			out = append(out, mark{column: len(out), row: row, kind: markDelivered})
		case e.IsEOI():
			row := rowEOIPrimary
			if e.Port == pic.SecondaryCommand {
				row = rowEOISecondary
			}
			out = append(out, mark{column: len(out), row: row, kind: markEOI})
		case e.Kind == sim.Mark && strings.HasSuffix(e.Label, " handled"):
			var line int
			if _, err := fmt.Sscanf(e.Label, "irq %d handled", &line); err == nil {
				out = append(out, mark{column: len(out), row: line, kind: markHandled})
			}
		}
	}
	return out
}

// Timeline draws delivered interrupts, handler runs and EOIs against time.
func Timeline(res *Result) *gg.Context {
	marks := columns(res.Trace, res.RemapBase)
	w := labelWidth + margin*2 + columnWidth*max(len(marks), 1)
	h := margin*2 + rowHeight*rowCount

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for row := 0; row < rowCount; row++ {
		y := float64(margin + row*rowHeight + rowHeight/2)
		dc.SetRGB(0.85, 0.85, 0.85)
		dc.DrawLine(labelWidth, y, float64(w-margin), y)
		dc.Stroke()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(rowLabel(row), margin, y, 0, 0.5)
	}

	for _, m := range marks {
		x := float64(labelWidth + margin + m.column*columnWidth)
		y := float64(margin + m.row*rowHeight + rowHeight/2)
		switch m.kind {
		case markDelivered:
			dc.SetRGB(0.9, 0.6, 0)
			dc.DrawCircle(x, y, 5)
		case markHandled:
			dc.SetRGB(0, 0.6, 0.8)
			dc.DrawRectangle(x-4, y-4, 8, 8)
		case markEOI:
			dc.SetRGB(0.1, 0.7, 0.2)
			dc.DrawRegularPolygon(3, x, y, 6, 0)
		}
		dc.Fill()
	}
	return dc
}

func rowLabel(row int) string {
	switch row {
	case rowException:
		return "exception"
	case rowEOIPrimary:
		return "eoi 0x20"
	case rowEOISecondary:
		return "eoi 0xa0"
	}
	return fmt.Sprintf("irq %d", row)
}
