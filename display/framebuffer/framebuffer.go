// Package framebuffer implements conn/display.Drawer over a raw Linux
// framebuffer device node, the one concrete backend the display sink (C5)
// writes to in production.
//
// Grounded on wrapped_framebuffer.rs (original_source): open the device
// path for each write rather than holding it open across the life of the
// process, log on failure, and never treat a missing device as fatal — the
// decision recorded for the Open Question on an absent display device
// (spec.md §9).
package framebuffer

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	conndisplay "github.com/contrapposto/odyssey/conn/display"
)

// Framebuffer writes already-packed frames to a device node (typically
// /dev/fb0 or a loopback file used in development).
type Framebuffer struct {
	path          string
	width, height int
	log           *logrus.Entry
}

var _ conndisplay.Drawer = (*Framebuffer)(nil)

// New returns a Framebuffer targeting path, reporting the panel dimensions
// width x height to callers of Bounds.
func New(path string, width, height int, log *logrus.Entry) *Framebuffer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Framebuffer{path: path, width: width, height: height, log: log.WithField("component", "framebuffer")}
}

func (f *Framebuffer) String() string { return fmt.Sprintf("framebuffer(%s)", f.path) }

// Halt is a no-op: the device node is opened fresh for each Draw, so there
// is no held resource to release.
func (f *Framebuffer) Halt() error { return nil }

func (f *Framebuffer) Bounds() (width, height int) { return f.width, f.height }

// Draw opens the device node for writing and writes frame in full. The
// device is reopened on every call rather than kept open, so that a device
// that disappears and reappears (a development loopback file being
// recreated, a USB-attached panel being reconnected) is tolerated without
// restarting the process.
func (f *Framebuffer) Draw(frame []byte) error {
	out, err := os.OpenFile(f.path, os.O_WRONLY, 0o644)
	if err != nil {
		f.log.WithError(err).WithField("path", f.path).Error("opening framebuffer device")
		return fmt.Errorf("framebuffer: open %s: %w", f.path, err)
	}
	defer out.Close()

	if _, err := out.Write(frame); err != nil {
		f.log.WithError(err).WithField("path", f.path).Error("writing frame")
		return fmt.Errorf("framebuffer: write %s: %w", f.path, err)
	}
	return nil
}
