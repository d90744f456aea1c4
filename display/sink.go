package display

import (
	"github.com/sirupsen/logrus"

	conndisplay "github.com/contrapposto/odyssey/conn/display"
)

// Sink is the orchestrator-facing display endpoint (C5). It repacks a
// decoded pixel buffer to the panel's native bit depth and pushes it to a
// conn/display.Drawer.
//
// Per the Open Question on an absent display device (spec.md §9), Sink is
// constructed over an interface so the underlying Drawer is swappable, and
// a write failure is logged and returned to the caller rather than panicking
// the orchestrator — the print continues even if nothing is on the panel to
// look at.
type Sink struct {
	drawer   conndisplay.Drawer
	bitDepth []int
	log      *logrus.Entry
}

// NewSink wraps drawer. bitDepth describes the panel's native packing as in
// spec.md §4.5; a nil or missing drawer is accepted so a headless
// configuration can still run a print to completion.
func NewSink(drawer conndisplay.Drawer, bitDepth []int, log *logrus.Entry) *Sink {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sink{drawer: drawer, bitDepth: bitDepth, log: log.WithField("component", "display")}
}

// Bounds reports the panel's pixel dimensions, or 0,0 if no drawer is
// attached.
func (s *Sink) Bounds() (width, height int) {
	if s.drawer == nil {
		return 0, 0
	}
	return s.drawer.Bounds()
}

// DisplayFrame repacks source (one byte per source-depth pixel) and writes
// it to the panel. Returns nil without writing if no drawer is attached.
func (s *Sink) DisplayFrame(source []byte) error {
	if s.drawer == nil {
		s.log.Debug("no display device attached; dropping frame")
		return nil
	}
	packed := Repack(source, s.bitDepth)
	if err := s.drawer.Draw(packed); err != nil {
		s.log.WithError(err).Error("failed to write frame to display device")
		return err
	}
	return nil
}

// DisplayTest renders and writes one of the built-in test patterns.
func (s *Sink) DisplayTest(pattern TestPattern) error {
	w, h := s.Bounds()
	return s.DisplayFrame(Render(pattern, w, h))
}
