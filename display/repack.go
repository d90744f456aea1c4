// Package display implements the panel sink (spec.md §4.5): it adapts a
// decoded, one-byte-per-pixel bitmap to the panel's native bit packing and
// writes the result to a framebuffer device.
//
// Grounded on display.rs (original_source) for the chunked repack
// algorithm, generalized from a single uniform bit_depth to the
// specification's per-pixel bit_depth list (needed for formats like
// RGB565's 5/6/5 packing, scenario S6).
package display

import "fmt"

const sourceDepth = 8 // decoded layer bitmaps are always one byte per pixel

// Repack converts a source buffer (one byte per pixel at sourceDepth) into
// the panel's native packing described by bitDepth: a chunk of
// sum(bitDepth) bits is assembled from len(bitDepth) consecutive source
// pixels (spec.md §4.5). The common case bitDepth=[8] is a byte-for-byte
// passthrough (P5).
//
// len(source) must be a multiple of len(bitDepth); Repack panics otherwise,
// since a malformed call site is a programming error, not a runtime fault.
func Repack(source []byte, bitDepth []int) []byte {
	k := len(bitDepth)
	if k == 0 {
		panic("display: bitDepth must not be empty")
	}
	if len(source)%k != 0 {
		panic(fmt.Sprintf("display: source length %d is not a multiple of %d pixels per chunk", len(source), k))
	}

	chunkBits := 0
	for _, b := range bitDepth {
		if b <= 0 || b > sourceDepth {
			panic(fmt.Sprintf("display: bit_depth entry %d out of range (0,%d]", b, sourceDepth))
		}
		chunkBits += b
	}
	if chunkBits%8 != 0 {
		panic(fmt.Sprintf("display: bit_depth entries sum to %d bits, not a multiple of 8", chunkBits))
	}
	chunkBytes := chunkBits / 8

	out := make([]byte, 0, len(source)/k*chunkBytes)
	for i := 0; i < len(source); i += k {
		var accumulator uint64
		position := chunkBits
		for j, b := range bitDepth {
			position -= b
			truncated := uint64(source[i+j]) >> (sourceDepth - b)
			accumulator |= truncated << position
		}
		for b := 0; b < chunkBytes; b++ {
			out = append(out, byte(accumulator>>(8*b))&0xFF)
		}
	}
	return out
}
