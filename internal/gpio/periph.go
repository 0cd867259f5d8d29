package gpio

import (
	"fmt"
	"sync"
	"time"

	periphgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/hygrod/hygrod/drivers/dht"
)

var (
	periphOnce sync.Once
	periphErr  error
)

func periphInit() error {
	periphOnce.Do(func() {
		_, periphErr = host.Init()
	})
	if periphErr != nil {
		return fmt.Errorf("initialise periph host: %w", periphErr)
	}
	return nil
}

func periphPin(name string) (periphgpio.PinIO, error) {
	if err := periphInit(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("no gpio pin named %q", name)
	}
	return pin, nil
}

type periphLine struct {
	pin periphgpio.PinIO
}

func openPeriphLine(name string) (dht.Line, CloseFunc, error) {
	pin, err := periphPin(name)
	if err != nil {
		return nil, nil, err
	}
	line := &periphLine{pin: pin}
	if err := line.Input(); err != nil {
		return nil, nil, err
	}
	return line, func() error { return pin.Halt() }, nil
}

func (l *periphLine) Input() error {
	return l.pin.In(periphgpio.PullUp, periphgpio.NoEdge)
}

func (l *periphLine) Output(high bool) error {
	return l.pin.Out(periphgpio.Level(high))
}

func (l *periphLine) Read() bool {
	return bool(l.pin.Read())
}

func (l *periphLine) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (l *periphLine) WaitMicros(n int) {
	busyWaitMicros(n)
}

func openPeriphOutput(name string) (*OutPin, CloseFunc, error) {
	pin, err := periphPin(name)
	if err != nil {
		return nil, nil, err
	}
	if err := pin.Out(periphgpio.Low); err != nil {
		return nil, nil, fmt.Errorf("drive %s low: %w", name, err)
	}
	out := &OutPin{set: func(high bool) error {
		return pin.Out(periphgpio.Level(high))
	}}
	return out, func() error { return pin.Halt() }, nil
}
