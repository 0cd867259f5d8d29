// Package gpio opens Raspberry Pi GPIO lines for the sensor and display
// drivers. Two backends are available: periph (the default, via the kernel
// exposed memory mapped registers under periph.io's host drivers) and rpio
// (direct /dev/gpiomem access). Both address pins by BCM number; periph also
// accepts the symbolic names its registry knows.
package gpio

import (
	"fmt"
	"time"

	"github.com/hygrod/hygrod/drivers/dht"
)

// Driver names accepted in the configuration.
const (
	DriverPeriph = "periph"
	DriverRPIO   = "rpio"
)

// CloseFunc releases backend resources held for an opened line.
type CloseFunc func() error

// OpenLine claims the named pin as a sensor data line using the selected
// backend. An empty driver selects periph.
func OpenLine(driver, pin string) (dht.Line, CloseFunc, error) {
	switch driver {
	case "", DriverPeriph:
		return openPeriphLine(pin)
	case DriverRPIO:
		return openRPIOLine(pin)
	default:
		return nil, nil, fmt.Errorf("unknown gpio driver %q", driver)
	}
}

// OutPin is a single always-output line, as used for the display bus.
type OutPin struct {
	set func(high bool) error
}

// Set drives the line to the given level.
func (p *OutPin) Set(high bool) error {
	return p.set(high)
}

// OpenOutput claims the named pin as an output line using the selected
// backend.
func OpenOutput(driver, pin string) (*OutPin, CloseFunc, error) {
	switch driver {
	case "", DriverPeriph:
		return openPeriphOutput(pin)
	case DriverRPIO:
		return openRPIOOutput(pin)
	default:
		return nil, nil, fmt.Errorf("unknown gpio driver %q", driver)
	}
}

// busyWaitMicros spins on the monotonic clock for at least n microseconds.
// time.Sleep cannot hold microsecond bounds under a general purpose
// scheduler, and the capture loop in the sensor driver depends on not
// yielding between polls.
func busyWaitMicros(n int) {
	deadline := time.Now().Add(time.Duration(n) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}
