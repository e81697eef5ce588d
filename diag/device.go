//go:build !tinygo

package diag

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/tarm/serial"
)

// DefaultBaud is the rate of the target's report UART.
const DefaultBaud = 115200

// Port is a serial connection delivering reports.
type Port struct {
	*Reader
	port io.ReadCloser
}

// serialDevices lists the names of USB serial adapters by platform.
var serialDevices = map[string][]string{
	"windows": {"COM3", "COM4"},
	"darwin":  {"/dev/tty.usbserial", "/dev/tty.usbmodem"},
	"linux":   {"/dev/ttyUSB0", "/dev/ttyACM0"},
}

// Open opens the report stream on the serial device dev at baud
// bits per second. If dev is empty, the usual USB serial adapters
// are tried in turn.
func Open(dev string, baud int) (*Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	devices := serialDevices[runtime.GOOS]
	if dev != "" {
		devices = []string{dev}
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("diag: no serial device for %s", runtime.GOOS)
	}
	return openFirst(devices, func(name string) (io.ReadCloser, error) {
		return serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	})
}

// openFirst returns a Port reading from the first device that opens.
func openFirst(devices []string, open func(name string) (io.ReadCloser, error)) (*Port, error) {
	var errs []error
	for _, name := range devices {
		rc, err := open(name)
		if err == nil {
			return &Port{Reader: NewReader(rc), port: rc}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return nil, fmt.Errorf("diag: %w", errors.Join(errs...))
}

func (p *Port) Close() error {
	return p.port.Close()
}
