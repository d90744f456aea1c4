package main

import (
	"fmt"
	"time"

	goserial "github.com/daedaluz/goserial"
)

// readPollInterval bounds how long a read blocks before returning a
// TimeoutError, the cadence at which the broker's reader task re-checks for
// cancellation between lines (broker.Broker.runReader).
const readPollInterval = 500 * time.Millisecond

// standardBaudRates maps configured baud integers to the termios CFlag
// constants goserial.Termios.SetSpeed expects (Daedaluz/goserial's
// port_linux.go enumerates these; only the common subset used by motion
// controllers is wired here).
var standardBaudRates = map[int]goserial.CFlag{
	9600:    goserial.B9600,
	19200:   goserial.B19200,
	38400:   goserial.B38400,
	57600:   goserial.B57600,
	115200:  goserial.B115200,
	230400:  goserial.B230400,
	460800:  goserial.B460800,
	921600:  goserial.B921600,
	1000000: goserial.B1000000,
}

// openSerialPort opens path in raw mode at baud, following the
// open/MakeRaw/SetSpeed sequence goserial's own tests use. Exclusivity and
// buffer-clearing concerns handled by the original Rust implementation's
// tokio_serial setup have no analogue in goserial's lower-level API; the
// device is simply opened fresh, matching this package's one-process,
// one-owner model.
func openSerialPort(path string, baud int) (*goserial.Port, error) {
	speed, ok := standardBaudRates[baud]
	if !ok {
		return nil, fmt.Errorf("odyssey: unsupported baud rate %d", baud)
	}

	opts := goserial.NewOptions().SetReadTimeout(readPollInterval)
	port, err := goserial.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("odyssey: opening serial port %s: %w", path, err)
	}

	if err := port.MakeRaw(); err != nil {
		port.Close()
		return nil, fmt.Errorf("odyssey: setting raw mode on %s: %w", path, err)
	}

	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("odyssey: reading termios for %s: %w", path, err)
	}
	attrs.SetSpeed(speed)
	if err := port.SetAttr(goserial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, fmt.Errorf("odyssey: setting baud rate on %s: %w", path, err)
	}

	return port, nil
}
