package main

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"

	"github.com/eddyb/rustic/gdt"
	"github.com/eddyb/rustic/idt"
	"github.com/eddyb/rustic/kbd"
	"github.com/eddyb/rustic/machine"
	"github.com/eddyb/rustic/pic"
	"github.com/eddyb/rustic/pit"
	"github.com/eddyb/rustic/serial"
	"github.com/eddyb/rustic/sim"
)

// Scenario is one irqsim input file.
type Scenario struct {
	RemapBase  uint8  `yaml:"remap_base"`
	TimerHz    uint32 `yaml:"timer_hz"`
	Timer      bool   `yaml:"timer"`
	Keyboard   bool   `yaml:"keyboard"`
	Interrupts bool   `yaml:"interrupts"`
	Lines      []Line `yaml:"lines"`
	Steps      []Step `yaml:"steps"`
}

// Line attaches a handler that only marks the trace.
type Line struct {
	Line    uint8  `yaml:"line"`
	Trigger string `yaml:"trigger"`
}

// Step is a single stimulus. Exactly one field is set.
type Step struct {
	Tick     int     `yaml:"tick"`
	Raise    *uint8  `yaml:"raise"`
	Spurious *uint8  `yaml:"spurious"`
	Fault    *uint8  `yaml:"fault"`
	Key      []uint8 `yaml:"key"`
	Sti      bool    `yaml:"sti"`
	Cli      bool    `yaml:"cli"`
}

func (s Step) String() string {
	switch {
	case s.Tick > 0:
		return fmt.Sprintf("tick x%d", s.Tick)
	case s.Raise != nil:
		return fmt.Sprintf("raise %d", *s.Raise)
	case s.Spurious != nil:
		return fmt.Sprintf("spurious %d", *s.Spurious)
	case s.Fault != nil:
		return fmt.Sprintf("fault %d", *s.Fault)
	case len(s.Key) > 0:
		return fmt.Sprintf("key % x", s.Key)
	case s.Sti:
		return "sti"
	case s.Cli:
		return "cli"
	}
	return "empty"
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Tick > 0, s.Raise != nil, s.Spurious != nil, s.Fault != nil, len(s.Key) > 0, s.Sti, s.Cli} {
		if set {
			n++
		}
	}
	return n
}

var errScenario = errors.New("irqsim: bad scenario")

// Load decodes and checks a scenario.
func Load(r io.Reader) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	sc := &Scenario{}
	if err := yaml.UnmarshalStrict(data, sc); err != nil {
		return nil, fmt.Errorf("%w: %v", errScenario, err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Scenario) validate() error {
	for _, l := range sc.Lines {
		if l.Line >= pic.Lines {
			return fmt.Errorf("%w: line %d out of range", errScenario, l.Line)
		}
		if _, err := parseTrigger(l.Trigger); err != nil {
			return err
		}
		if sc.Timer && l.Line == pit.IRQ || sc.Keyboard && l.Line == kbd.IRQ {
			return fmt.Errorf("%w: line %d already used by a driver", errScenario, l.Line)
		}
	}
	for i, s := range sc.Steps {
		if s.actions() != 1 {
			return fmt.Errorf("%w: step %d must set exactly one action", errScenario, i)
		}
		if s.Raise != nil && *s.Raise >= pic.Lines {
			return fmt.Errorf("%w: step %d raises line %d", errScenario, i, *s.Raise)
		}
		if s.Spurious != nil && *s.Spurious != 7 && *s.Spurious != 15 {
			return fmt.Errorf("%w: step %d: only lines 7 and 15 can be spurious", errScenario, i)
		}
	}
	return nil
}

func parseTrigger(s string) (pic.Trigger, error) {
	switch s {
	case "", "level":
		return pic.Level, nil
	case "edge":
		return pic.Edge, nil
	}
	return 0, fmt.Errorf("%w: unknown trigger %q", errScenario, s)
}

// Result is what a run leaves behind.
type Result struct {
	Trace     []sim.Event
	Console   string
	Halted    bool
	RemapBase uint8
	Stats     pic.Stats

	// Segments holds the GDT entries the bring-up installed,
	// IRQGate the gate of IRQ 0.
	Segments []gdt.Descriptor
	IRQGate  idt.Gate
}

// bootSegments is the number of GDT entries machine.Init fills in.
const bootSegments = 6

// Run boots a simulated machine with the scenario's drivers and plays its
// steps. A dead halt ends the run early and is reported, not returned.
func Run(sc *Scenario) (*Result, error) {
	cpu := sim.New()
	console := serial.New(cpu, serial.COM1)
	console.Init()

	cfg := machine.DefaultConfig()
	if sc.RemapBase != 0 {
		cfg.RemapBase = sc.RemapBase
	}
	if sc.TimerHz != 0 {
		cfg.TimerHz = sc.TimerHz
	}
	m := machine.New(cpu, console, cfg)
	if err := m.Init(); err != nil {
		return nil, err
	}

	if sc.Timer {
		if err := pit.New(cpu, console).Init(m, cfg.TimerHz); err != nil {
			return nil, err
		}
	}
	if sc.Keyboard {
		kbd.New(cpu, console).Init(m)
	}
	for _, l := range sc.Lines {
		mode, _ := parseTrigger(l.Trigger)
		m.RegisterIRQMode(l.Line, pic.LineHandlerFunc(func(line uint8) {
			cpu.Mark(fmt.Sprintf("irq %d handled", line))
		}), mode)
	}
	m.SetInterrupts(sc.Interrupts)

	err := cpu.Run(func() {
		for _, s := range sc.Steps {
			cpu.Mark(s.String())
			play(cpu, m, s)
		}
	})
	if err != nil && !errors.Is(err, sim.ErrHalted) {
		return nil, err
	}

	res := &Result{
		Trace:     append([]sim.Event(nil), cpu.Trace()...),
		Console:   cpu.Console(),
		Halted:    cpu.Halted(),
		RemapBase: cfg.RemapBase,
		Stats:     m.PIC().Stats(),
		IRQGate:   m.IDT().Gate(cfg.RemapBase),
	}
	for i := 0; i < bootSegments; i++ {
		res.Segments = append(res.Segments, m.GDT().Entry(i))
	}
	return res, nil
}

func play(cpu *sim.Machine, m *machine.Machine, s Step) {
	switch {
	case s.Tick > 0:
		for i := 0; i < s.Tick; i++ {
			cpu.Tick()
		}
	case s.Raise != nil:
		cpu.Raise(*s.Raise)
	case s.Spurious != nil:
		cpu.RaiseSpurious(*s.Spurious)
	case s.Fault != nil:
		cpu.Fault(*s.Fault)
	case len(s.Key) > 0:
		cpu.Key(s.Key...)
	case s.Sti:
		m.SetInterrupts(true)
	case s.Cli:
		m.SetInterrupts(false)
	}
}
