package printer

import (
	"github.com/contrapposto/odyssey/gcode"
	"github.com/contrapposto/odyssey/printfile"
)

// State is the orchestrator's tagged-union PrinterState (spec.md §3). It is
// a sum type over three variants, never a flattened struct of optional
// fields (Design Notes: "Tagged state over inheritance") — callers use a
// type switch to inspect which variant they hold.
type State interface {
	isState()
}

// ShutdownState means no motion controller contact is assumed.
type ShutdownState struct{}

func (ShutdownState) isState() {}

// IdleState means the controller is ready and no job is loaded.
type IdleState struct {
	Physical gcode.PhysicalState
}

func (IdleState) isState() {}

// PrintingState describes an in-progress job.
type PrintingState struct {
	Job      printfile.Metadata
	Layer    uint
	Paused   bool
	Physical gcode.PhysicalState
}

func (PrintingState) isState() {}
