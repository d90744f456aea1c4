package display

import "testing"

func TestRepackPassthroughAt8Bit(t *testing.T) {
	source := []byte{0x00, 0x7F, 0xFF, 0x10}
	out := Repack(source, []int{8})
	if len(out) != len(source) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(source))
	}
	for i := range source {
		if out[i] != source[i] {
			t.Fatalf("out[%d] = %#x, want %#x", i, out[i], source[i])
		}
	}
}

func TestRepackRGB565AllOnes(t *testing.T) {
	out := Repack([]byte{0xFF, 0xFF, 0xFF}, []int{5, 6, 5})
	want := []byte{0xFF, 0xFF}
	if len(out) != 2 || out[0] != want[0] || out[1] != want[1] {
		t.Fatalf("Repack(all-ones, 5/6/5) = %x, want %x", out, want)
	}
}

func TestRepackRGB565AllZeros(t *testing.T) {
	out := Repack([]byte{0x00, 0x00, 0x00}, []int{5, 6, 5})
	if out[0] != 0x00 || out[1] != 0x00 {
		t.Fatalf("Repack(all-zeros, 5/6/5) = %x, want 00 00", out)
	}
}

func TestRenderTestPatterns(t *testing.T) {
	white := Render(White, 2, 2)
	for _, b := range white {
		if b != 0xFF {
			t.Fatalf("White pattern byte = %#x, want 0xFF", b)
		}
	}

	blank := Render(Blank, 2, 2)
	for _, b := range blank {
		if b != 0x00 {
			t.Fatalf("Blank pattern byte = %#x, want 0x00", b)
		}
	}

	unknown := Render(TestPattern("something-else"), 2, 2)
	for _, b := range unknown {
		if b != 0x00 {
			t.Fatalf("unrecognized pattern should fall back to blank, got %#x", b)
		}
	}
}
