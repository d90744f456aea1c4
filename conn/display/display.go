// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package display

import (
	"github.com/contrapposto/odyssey/conn"
)

// Drawer represents a context to display a raw, already-packed frame on an
// output device. It is a write-only interface.
//
// Unlike a general purpose image display, a Drawer here does not accept an
// image.Image: the caller has already repacked the pixel buffer to the
// device's native bit depth (see display.Repack), and Drawer's only job is to
// push those bytes to the hardware.
type Drawer interface {
	conn.Resource

	// Bounds returns the panel's pixel dimensions.
	Bounds() (width, height int)
	// Draw writes a full, already-packed frame to the device.
	Draw(frame []byte) error
}
