package dht

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceFrame is the DHT22 data sheet example: 65.2 %RH and 26.1 C.
var referenceFrame = [frameSize]byte{0x28, 0x02, 0x01, 0x05, 0x2E}

func newTestDevice(model Model, line Line) (*Device, *clock.Mock) {
	mock := clock.NewMock()
	return New(model, line, WithClock(mock)), mock
}

func TestReadDecodesReferenceFrame(t *testing.T) {
	line := &scriptLine{pulses: sensorWaveform(referenceFrame)}
	dev, _ := newTestDevice(DHT22, line)

	require.NoError(t, dev.Read())
	assert.InDelta(t, 65.2, dev.Humidity(), 1e-9)
	assert.InDelta(t, 26.1, dev.Temperature(Celsius), 1e-9)
	assert.Equal(t, byte(0x2E), frameChecksum(referenceFrame))
	assert.True(t, line.released, "line must idle in input mode after a read")
}

func TestReadDecodesDHT11Frame(t *testing.T) {
	frame := [frameSize]byte{45, 0, 23, 0, 68}
	line := &scriptLine{pulses: sensorWaveform(frame)}
	dev, _ := newTestDevice(DHT11, line)

	require.NoError(t, dev.Read())
	assert.InDelta(t, 45, dev.Humidity(), 1e-9)
	assert.InDelta(t, 23, dev.Temperature(Celsius), 1e-9)
}

func TestReadDecodesSignMagnitudeTemperature(t *testing.T) {
	// 0x80 in the temperature high byte flips the sign of the magnitude,
	// it does not fold into it: the frame below is -0.1 C, not -3276.7.
	frame := [frameSize]byte{0x01, 0x90, 0x80, 0x01, 0x12}
	line := &scriptLine{pulses: sensorWaveform(frame)}
	dev, _ := newTestDevice(DHT22, line)

	require.NoError(t, dev.Read())
	assert.InDelta(t, -0.1, dev.Temperature(Celsius), 1e-9)
	assert.InDelta(t, 40.0, dev.Humidity(), 1e-9)
}

func TestReadStartPulsePerModel(t *testing.T) {
	for _, tc := range []struct {
		model Model
		want  time.Duration
	}{
		{DHT11, 20 * time.Millisecond},
		{DHT22, 2 * time.Millisecond},
	} {
		line := &scriptLine{pulses: sensorWaveform(referenceFrame)}
		dev, _ := newTestDevice(tc.model, line)
		_ = dev.Read()
		assert.Equal(t, tc.want, line.lowHold, tc.model.String())
	}
}

func TestReadChecksumMismatch(t *testing.T) {
	good := referenceFrame
	bad := referenceFrame
	bad[4] = 0x2F

	line := &scriptLine{pulses: sensorWaveform(good)}
	dev, mock := newTestDevice(DHT22, line)
	require.NoError(t, dev.Read())

	mock.Add(MinSamplingPeriod)
	line.pulses = sensorWaveform(bad)
	err := dev.Read()
	require.ErrorIs(t, err, ErrChecksum)

	// The corrupt frame must not leak into the cached reading.
	assert.InDelta(t, 65.2, dev.Humidity(), 1e-9)
	assert.InDelta(t, 26.1, dev.Temperature(Celsius), 1e-9)
	assert.True(t, line.released)
}

func TestReadChecksumAcceptsWrappedSum(t *testing.T) {
	// 0xFF+0xFF+0xFF+0xFF = 0x3FC; only the low byte counts.
	frame := [frameSize]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFC}
	line := &scriptLine{pulses: sensorWaveform(frame)}
	dev, _ := newTestDevice(DHT11, line)
	require.NoError(t, dev.Read())
	assert.InDelta(t, 255, dev.Humidity(), 1e-9)
}

func TestReadThrottleReturnsStoredSuccess(t *testing.T) {
	line := &scriptLine{pulses: sensorWaveform(referenceFrame)}
	dev, mock := newTestDevice(DHT22, line)

	require.NoError(t, dev.Read())
	require.Equal(t, 1, line.starts)

	// Within the minimum sampling period: no bus activity, same outcome.
	mock.Add(MinSamplingPeriod - time.Second)
	require.NoError(t, dev.Read())
	assert.Equal(t, 1, line.starts)
	assert.InDelta(t, 65.2, dev.Humidity(), 1e-9)

	mock.Add(time.Second)
	require.NoError(t, dev.Read())
	assert.Equal(t, 2, line.starts)
}

func TestReadThrottleReturnsStoredFailure(t *testing.T) {
	// An unresponsive line: the ack never comes.
	line := &scriptLine{}
	dev, mock := newTestDevice(DHT22, line)

	require.ErrorIs(t, dev.Read(), ErrNotDetected)
	starts := line.starts

	mock.Add(time.Second)
	require.ErrorIs(t, dev.Read(), ErrNotDetected)
	assert.Equal(t, starts, line.starts, "throttled read must not touch the bus")
}

func TestReadBusBusy(t *testing.T) {
	line := &scriptLine{inputErr: errors.New("pin claimed elsewhere")}
	dev, _ := newTestDevice(DHT22, line)

	err := dev.Read()
	require.ErrorIs(t, err, ErrBusBusy)
	assert.Contains(t, err.Error(), "pin claimed elsewhere")
}

// TestReadTimeoutBounds drives each handshake phase exactly to its bound and
// one microsecond past it. At the bound the read must carry on; one past it
// must surface the error belonging to that phase and no other.
func TestReadTimeoutBounds(t *testing.T) {
	// High first bit so widening its pulse cannot flip the sampled value.
	highFirstBit := [frameSize]byte{0x80, 0x00, 0x00, 0x00, 0x80}

	withFirstLowWidth := func(frame [frameSize]byte, width int) []pulse {
		ps := bitPulses(frame)
		ps[0].width = width
		return append(sensorAck(), ps...)
	}
	withFirstHighWidth := func(frame [frameSize]byte, width int) []pulse {
		ps := bitPulses(frame)
		ps[1].width = width
		return append(sensorAck(), ps...)
	}

	cases := []struct {
		name   string
		pulses []pulse
		want   error
	}{
		{
			name:   "ack wait at bound",
			pulses: append([]pulse{{true, 40}, {false, 80}, {true, 80}}, bitPulses(referenceFrame)...),
		},
		{
			name:   "ack wait one past",
			pulses: []pulse{{true, 41}},
			want:   ErrNotDetected,
		},
		{
			name:   "ack low at bound",
			pulses: append([]pulse{{true, 10}, {false, 100}, {true, 80}}, bitPulses(referenceFrame)...),
		},
		{
			name:   "ack low one past",
			pulses: []pulse{{true, 10}, {false, 101}},
			want:   ErrSyncTimeout,
		},
		{
			name:   "ack high at bound",
			pulses: append([]pulse{{true, 10}, {false, 80}, {true, 100}}, bitPulses(referenceFrame)...),
		},
		{
			name:   "ack high one past",
			pulses: []pulse{{true, 10}, {false, 80}, {true, 101}},
			want:   ErrTooFrequent,
		},
		{
			name:   "bit low at bound",
			pulses: withFirstLowWidth(referenceFrame, 75),
		},
		{
			name:   "bit low one past",
			pulses: withFirstLowWidth(referenceFrame, 76),
			want:   ErrDataTimeout,
		},
		{
			// The high bound applies after the 40us sample point.
			name:   "bit high at bound",
			pulses: withFirstHighWidth(highFirstBit, bitSettle+50),
		},
		{
			name:   "bit high one past",
			pulses: withFirstHighWidth(highFirstBit, bitSettle+51),
			want:   ErrDataTimeout,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := &scriptLine{pulses: tc.pulses}
			dev, _ := newTestDevice(DHT22, line)
			err := dev.Read()
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

// TestBitSamplingThreshold pins the 40us sample point against the documented
// pulse widths: 27us highs must read as 0, 71us highs as 1.
func TestBitSamplingThreshold(t *testing.T) {
	zeros := [frameSize]byte{}
	ones := [frameSize]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFC}

	line := &scriptLine{pulses: sensorWaveform(zeros)}
	dev, _ := newTestDevice(DHT11, line)
	require.NoError(t, dev.Read())
	assert.Zero(t, dev.Humidity())
	assert.Zero(t, dev.Temperature(Celsius))

	line = &scriptLine{pulses: sensorWaveform(ones)}
	dev, _ = newTestDevice(DHT11, line)
	require.NoError(t, dev.Read())
	assert.InDelta(t, 255, dev.Humidity(), 1e-9)
	assert.InDelta(t, 255, dev.Temperature(Celsius), 1e-9)
}
