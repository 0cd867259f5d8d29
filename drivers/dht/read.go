package dht

import (
	"fmt"
	"time"
)

// Protocol timing, in microseconds unless noted. These encode physical signal
// widths from the data sheet, not policy, and are deliberately not
// configurable.
const (
	lineSettle   = time.Millisecond // pull up settle before the start signal
	releasePulse = 30               // driven high before handing over the bus

	ackWaitMax = 40  // sensor must pull the bus low within this window
	ackLowMax  = 100 // bound on the sensor's nominal 80us low sync pulse
	ackHighMax = 100 // bound on the sensor's nominal 80us high sync pulse

	bitLowMax  = 75 // bound on each bit's nominal 50us low phase
	bitSettle  = 40 // rising edge to sample point; 0 bits are high <=28us, 1 bits >=70us
	bitHighMax = 50 // bound on the high remainder after the sample point
)

// Read performs one request and capture cycle against the sensor. When called
// again before MinSamplingPeriod has elapsed since the previous attempt it
// performs no bus activity at all and returns the stored previous outcome,
// success or failure alike.
//
// A cycle blocks the calling goroutine for the whole transaction: the start
// pulse (20ms for DHT11, 2ms for DHT22) plus at most a few milliseconds of
// capture. The capture section busy polls without yielding, so Read must not
// run anywhere blocking is forbidden. There is no cancellation mid read;
// every exit path is bounded by the timing constants above and leaves the
// line in input mode.
//
// On success the cached temperature and humidity are replaced. On any
// failure they are left untouched and one of the Err values is returned.
// Read never retries internally: retrying faster than MinSamplingPeriod is
// itself a protocol violation.
func (d *Device) Read() error {
	now := d.clock.Now()
	if now.Sub(d.lastAttempt) < MinSamplingPeriod {
		return d.lastResult
	}
	d.lastAttempt = now
	d.frame = [frameSize]byte{}

	err := d.transact()
	if err == nil {
		if d.frame[4] != frameChecksum(d.frame) {
			err = ErrChecksum
		} else {
			d.temperature, d.humidity = decodeFrame(d.model, d.frame)
		}
	}
	d.lastResult = err
	return err
}

// transact runs the handshake and fills d.frame with the captured bits.
func (d *Device) transact() error {
	if err := d.line.Input(); err != nil {
		return fmt.Errorf("%w: %s", ErrBusBusy, err)
	}
	d.line.Sleep(lineSettle)

	// Start signal: hold the bus low long enough for the sensor to notice.
	if err := d.line.Output(false); err != nil {
		d.restoreIdle()
		return fmt.Errorf("%w: %s", ErrBusBusy, err)
	}
	d.line.Sleep(d.model.startPulse())

	// Release: briefly drive high, then hand the bus to the sensor.
	if err := d.line.Output(true); err != nil {
		d.restoreIdle()
		return fmt.Errorf("%w: %s", ErrBusBusy, err)
	}
	d.line.WaitMicros(releasePulse)
	if err := d.line.Input(); err != nil {
		return fmt.Errorf("%w: %s", ErrBusBusy, err)
	}

	// Ack: the sensor grabs the bus, then signals low 80us and high 80us.
	if !d.expectPulse(true, ackWaitMax) {
		return ErrNotDetected
	}
	if !d.expectPulse(false, ackLowMax) {
		return ErrSyncTimeout
	}
	if !d.expectPulse(true, ackHighMax) {
		return ErrTooFrequent
	}

	return d.capture()
}

// capture samples the 40 data bits and packs them most significant bit first
// into the frame buffer.
func (d *Device) capture() error {
	for i := range d.frame {
		var b byte
		for bit := 0; bit < 8; bit++ {
			if !d.expectPulse(false, bitLowMax) {
				return ErrDataTimeout
			}
			d.line.WaitMicros(bitSettle)
			b <<= 1
			if d.line.Read() {
				b |= 1
			}
			if !d.expectPulse(true, bitHighMax) {
				return ErrDataTimeout
			}
		}
		d.frame[i] = b
	}
	return nil
}

// expectPulse busy polls until the line leaves the given level, one
// microsecond per poll, and reports false once boundMicros polls have passed
// with the line still there. The integer poll counter stands in for a wall
// clock deadline on purpose: the bounds are tens of microseconds, and a
// timer read per iteration would distort the very loop it measures.
func (d *Device) expectPulse(level bool, boundMicros int) bool {
	for elapsed := 0; d.line.Read() == level; elapsed++ {
		if elapsed >= boundMicros {
			return false
		}
		d.line.WaitMicros(1)
	}
	return true
}

func (d *Device) restoreIdle() {
	_ = d.line.Input()
}

func frameChecksum(frame [frameSize]byte) byte {
	return frame[0] + frame[1] + frame[2] + frame[3]
}
