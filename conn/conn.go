// Package conn defines the low-level interfaces shared by the printer's
// physical connections: the UART to the motion controller and the
// framebuffer device backing the display sink.
package conn

// Resource is anything backed by an open OS handle that must be released in
// an orderly fashion when the printer shuts down.
type Resource interface {
	// String returns a name meaningful to an operator, e.g. "/dev/ttyUSB0" or
	// "/dev/fb0".
	String() string
	// Halt releases the underlying handle. It is safe to call more than once.
	Halt() error
}
