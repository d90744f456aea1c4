package display

// TestPattern names one of the built-in diagnostic patterns an operator can
// push to the panel without a loaded print job (spec.md §4.5).
type TestPattern string

const (
	White TestPattern = "white"
	Blank TestPattern = "blank"
)

// Render produces a solid source-depth buffer of the requested pattern
// sized to width*height pixels. Any pattern other than White is treated as
// Blank, per spec.md §4.5.
func Render(pattern TestPattern, width, height int) []byte {
	buf := make([]byte, width*height)
	if pattern == White {
		for i := range buf {
			buf[i] = 0xFF
		}
	}
	return buf
}
