package dht

import "time"

type pulse struct {
	high  bool
	width int // microseconds
}

// scriptLine replays a recorded sensor waveform against the capture loop.
// Virtual time advances only through the waits the device itself performs,
// so a script plays back deterministically regardless of host scheduling.
// The waveform clock restarts whenever the device releases the bus into
// input mode; widths are therefore relative to the release instant. After
// the script is exhausted the line idles high on its pull up.
type scriptLine struct {
	pulses []pulse

	now      int
	released bool
	starts   int // low start signals driven, i.e. bus transactions
	lowHold  time.Duration
	inputErr error
}

func (l *scriptLine) Input() error {
	if l.inputErr != nil {
		return l.inputErr
	}
	l.released = true
	l.now = 0
	return nil
}

func (l *scriptLine) Output(high bool) error {
	l.released = false
	if !high {
		l.starts++
	}
	return nil
}

func (l *scriptLine) Read() bool {
	if !l.released {
		return true
	}
	t := l.now
	for _, p := range l.pulses {
		if t < p.width {
			return p.high
		}
		t -= p.width
	}
	return true
}

func (l *scriptLine) Sleep(d time.Duration) {
	if !l.released {
		l.lowHold = d
		return
	}
	l.now += int(d / time.Microsecond)
}

func (l *scriptLine) WaitMicros(n int) {
	if l.released {
		l.now += n
	}
}

// sensorAck is the waveform prefix of a responding sensor: it grabs the bus
// 10us after release, then signals low 80us and high 80us.
func sensorAck() []pulse {
	return []pulse{{true, 10}, {false, 80}, {true, 80}}
}

// bitPulses renders a frame the way the sensor transmits it: a 50us low
// phase per bit followed by a high pulse of 27us for a 0 and 71us for a 1,
// the documented widths either side of the 40us sample point. A trailing low
// releases the bus back to idle.
func bitPulses(frame [frameSize]byte) []pulse {
	var ps []pulse
	for _, b := range frame {
		for bit := 7; bit >= 0; bit-- {
			ps = append(ps, pulse{false, 50})
			width := 27
			if b&(1<<uint(bit)) != 0 {
				width = 71
			}
			ps = append(ps, pulse{true, width})
		}
	}
	return append(ps, pulse{false, 50})
}

func sensorWaveform(frame [frameSize]byte) []pulse {
	return append(sensorAck(), bitPulses(frame)...)
}
