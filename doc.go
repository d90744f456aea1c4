// Package odyssey is the control firmware for a bottom-up masked
// stereolithography (MSLA) resin 3D printer.
//
// It drives three physical subsystems in lock-step: a motion controller
// reached over a serial line that speaks a G-code dialect, a pixel
// addressable UV LCD mask reached through a raw linear framebuffer, and a UV
// light source toggled through the motion controller. A sliced model file
// plus operator commands drive a long running print that may span hours and
// thousands of layers; the printer remains responsive to pause, resume,
// cancel, manual jog and shutdown throughout.
//
// → broker/ decouples the framing concerns of the physical UART from the
// motion client: a single writer drains an outbound queue, a single reader
// fans inbound lines out to subscribers.
//
// → gcode/ renders operator-configured command templates, sequences them
// against the broker with a flush-send-await protocol, and keeps the
// authoritative PhysicalState in sync.
//
// → printfile/ abstracts the container format of a sliced print job and
// streams per-layer bitmaps and thumbnails on demand.
//
// → display/ repacks a decoded pixel buffer to the panel's native packing
// and writes it to the framebuffer device.
//
// → printer/ is the print orchestrator: the state machine that sequences
// per-layer motion, exposure and synchronization across the above.
package odyssey // import "github.com/contrapposto/odyssey"
