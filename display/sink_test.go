package display

import "testing"

type fakeDrawer struct {
	width, height int
	drawn         [][]byte
	failNext      bool
}

func (f *fakeDrawer) String() string    { return "fake" }
func (f *fakeDrawer) Halt() error       { return nil }
func (f *fakeDrawer) Bounds() (int, int) { return f.width, f.height }
func (f *fakeDrawer) Draw(frame []byte) error {
	if f.failNext {
		f.failNext = false
		return errFakeDraw
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.drawn = append(f.drawn, cp)
	return nil
}

type fakeDrawErr struct{}

func (fakeDrawErr) Error() string { return "draw failed" }

var errFakeDraw error = fakeDrawErr{}

func TestSinkWithNoDrawerDropsFramesWithoutError(t *testing.T) {
	s := NewSink(nil, []int{8}, nil)
	if err := s.DisplayFrame([]byte{0xFF}); err != nil {
		t.Fatalf("DisplayFrame with no drawer should not error: %v", err)
	}
}

func TestSinkRepacksAndDraws(t *testing.T) {
	fd := &fakeDrawer{width: 2, height: 1}
	s := NewSink(fd, []int{8}, nil)
	if err := s.DisplayFrame([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("DisplayFrame: %v", err)
	}
	if len(fd.drawn) != 1 || fd.drawn[0][0] != 0x01 {
		t.Fatalf("unexpected drawn frames: %v", fd.drawn)
	}
}

func TestSinkPropagatesDrawError(t *testing.T) {
	fd := &fakeDrawer{width: 1, height: 1, failNext: true}
	s := NewSink(fd, []int{8}, nil)
	if err := s.DisplayFrame([]byte{0x01}); err == nil {
		t.Fatal("expected DisplayFrame to surface the drawer error")
	}
}
