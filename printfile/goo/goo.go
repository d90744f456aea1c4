// Package goo registers recognition of the .goo binary container format
// without implementing it. The format is a fixed binary header (magic tag
// "DLP" family, 0x07 0x00 0x00 0x00 0x44 0x4C 0x50 0x00) defined at
// filetypes/goo.rs (original_source) that the distilled specification does
// not ask this core to decode; recognizing it lets printfile.Open give a
// precise "unsupported, not unrecognized" error instead of silently trying
// to parse a .goo file as a ZIP.
package goo

import (
	"errors"
	"fmt"
	"os"

	"github.com/contrapposto/odyssey/printfile"
)

// magicTag is the fixed byte sequence goo.rs documents at a known header
// offset for every .goo file version observed in the original source.
var magicTag = []byte{0x07, 0x00, 0x00, 0x00, 0x44, 0x4C, 0x50, 0x00}

const magicOffset = 4 // immediately after the 4-byte version field

// ErrUnsupported is returned by tryOpen, and passed through unchanged by
// printfile.Open, for a recognized .goo file: the container is valid but
// this build carries no decoder for it.
var ErrUnsupported = errors.New("printfile/goo: .goo container recognized but not supported")

func init() {
	printfile.RegisterFormat("goo", tryOpen)
}

func tryOpen(path string) (printfile.PrintFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("printfile/goo: %w", printfile.ErrNotThisFormat)
	}
	defer f.Close()

	header := make([]byte, magicOffset+len(magicTag))
	if _, err := f.Read(header); err != nil {
		return nil, fmt.Errorf("printfile/goo: %w", printfile.ErrNotThisFormat)
	}

	for i, b := range magicTag {
		if header[magicOffset+i] != b {
			return nil, fmt.Errorf("printfile/goo: %w", printfile.ErrNotThisFormat)
		}
	}

	return nil, ErrUnsupported
}
