package dht

import "time"

// Line is the single data line shared by controller and sensor. The
// controller drives it push pull during the start signal and listens through
// a pull up for the rest of the transaction.
//
// Implementations back this with a real GPIO pin (see the gpio adapters) or
// with a scripted waveform in tests.
type Line interface {
	// Input switches the line to input mode with the pull up engaged.
	Input() error

	// Output switches the line to output mode driving the given level.
	Output(high bool) error

	// Read samples the current level. Only meaningful in input mode.
	Read() bool

	// Sleep pauses the calling goroutine for at least d. Used for the
	// millisecond scale protocol phases where scheduler jitter does not
	// matter.
	Sleep(d time.Duration)

	// WaitMicros busy waits for at least n microseconds without yielding.
	// Used inside the capture loop where losing the processor means
	// losing an edge.
	WaitMicros(n int)
}
