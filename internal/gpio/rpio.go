package gpio

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/hygrod/hygrod/drivers/dht"
)

// The rpio backend maps /dev/gpiomem once and keeps it for the process
// lifetime; lines share the mapping, so per line close is a no-op.
var (
	rpioOnce sync.Once
	rpioErr  error
)

func rpioPin(name string) (rpio.Pin, error) {
	number, err := strconv.Atoi(name)
	if err != nil {
		return 0, fmt.Errorf("rpio pins are addressed by BCM number, got %q", name)
	}
	rpioOnce.Do(func() {
		rpioErr = rpio.Open()
	})
	if rpioErr != nil {
		return 0, fmt.Errorf("open /dev/gpiomem: %w", rpioErr)
	}
	return rpio.Pin(number), nil
}

type rpioLine struct {
	pin rpio.Pin
}

func openRPIOLine(name string) (dht.Line, CloseFunc, error) {
	pin, err := rpioPin(name)
	if err != nil {
		return nil, nil, err
	}
	line := &rpioLine{pin: pin}
	if err := line.Input(); err != nil {
		return nil, nil, err
	}
	return line, func() error { return nil }, nil
}

func (l *rpioLine) Input() error {
	l.pin.Input()
	l.pin.PullUp()
	return nil
}

func (l *rpioLine) Output(high bool) error {
	l.pin.Output()
	if high {
		l.pin.High()
	} else {
		l.pin.Low()
	}
	return nil
}

func (l *rpioLine) Read() bool {
	return l.pin.Read() == rpio.High
}

func (l *rpioLine) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (l *rpioLine) WaitMicros(n int) {
	busyWaitMicros(n)
}

func openRPIOOutput(name string) (*OutPin, CloseFunc, error) {
	pin, err := rpioPin(name)
	if err != nil {
		return nil, nil, err
	}
	pin.Output()
	pin.Low()
	out := &OutPin{set: func(high bool) error {
		if high {
			pin.High()
		} else {
			pin.Low()
		}
		return nil
	}}
	return out, func() error { return nil }, nil
}
