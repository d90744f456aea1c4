package printer

import (
	"github.com/contrapposto/odyssey/display"
	"github.com/contrapposto/odyssey/printfile"
)

// Operation is the orchestrator's inbound command sum type (spec.md §6).
// Like State, it is a tagged union expressed as an interface with one
// concrete struct per variant rather than a single struct of optional
// fields.
type Operation interface {
	isOperation()
}

// StartPrint begins a new job from the sliced file FileData describes.
// Rejected (OperatorRejectionError) while Printing; discarded without a
// log entry while Shutdown.
type StartPrint struct {
	FileData printfile.FileData
}

func (StartPrint) isOperation() {}

// StopPrint cancels the active print and returns to Idle.
type StopPrint struct{}

func (StopPrint) isOperation() {}

// PausePrint pauses the active print after a safety lift.
type PausePrint struct{}

func (PausePrint) isOperation() {}

// ResumePrint resumes a paused print.
type ResumePrint struct{}

func (ResumePrint) isOperation() {}

// ManualMove jogs the Z axis to an absolute height. Valid in Idle, and in
// Printing only while paused (where it is clamped per spec.md §4.4).
type ManualMove struct {
	ZMicrons uint32
}

func (ManualMove) isOperation() {}

// ManualCure toggles the UV source directly. Valid only in Idle.
type ManualCure struct {
	On bool
}

func (ManualCure) isOperation() {}

// ManualHome issues a homing command. Valid only in Idle.
type ManualHome struct{}

func (ManualHome) isOperation() {}

// ManualCommand sends an operator-supplied raw line to the controller.
// Valid only in Idle.
type ManualCommand struct {
	Raw string
}

func (ManualCommand) isOperation() {}

// ManualDisplayLayer decodes and pushes one layer of a sliced file to the
// panel without starting a print. Valid only in Idle.
type ManualDisplayLayer struct {
	FileData   printfile.FileData
	LayerIndex int
}

func (ManualDisplayLayer) isOperation() {}

// ManualDisplayTest pushes a built-in test pattern to the panel. Valid only
// in Idle.
type ManualDisplayTest struct {
	Pattern display.TestPattern
}

func (ManualDisplayTest) isOperation() {}

// QueryState requests an out-of-band status publication. Valid in every
// state.
type QueryState struct{}

func (QueryState) isOperation() {}

// Shutdown requests an orderly transition to Shutdown. Valid in every
// state except Shutdown itself (a no-op there).
type Shutdown struct{}

func (Shutdown) isOperation() {}
