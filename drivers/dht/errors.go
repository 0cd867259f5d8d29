package dht

import "errors"

// The read errors are mutually exclusive: a failed Read returns exactly one
// of them, wrapped with context where available. Discriminate with errors.Is.
var (
	// ErrBusBusy reports that the line could not be claimed or switched
	// between modes.
	ErrBusBusy = errors.New("dht: bus busy")

	// ErrNotDetected reports that no ack pulse arrived within the initial
	// window. The most likely cause is that no sensor is wired to the pin.
	ErrNotDetected = errors.New("dht: sensor not detected")

	// ErrAckTimeout reports an ack pulse that exceeded its expected
	// duration. Kept for taxonomy completeness; the current handshake
	// bounds report ErrSyncTimeout or ErrTooFrequent instead.
	ErrAckTimeout = errors.New("dht: ack pulse too long")

	// ErrSyncTimeout reports that the post-ack sync pulses were missing
	// or mistimed. The sensor answered but the cadence is wrong.
	ErrSyncTimeout = errors.New("dht: sync timeout")

	// ErrDataTimeout reports a bit pulse that overran its bound during
	// the 40 bit capture.
	ErrDataTimeout = errors.New("dht: data timeout")

	// ErrChecksum reports a fully captured frame whose checksum byte does
	// not match. The cached reading is left untouched.
	ErrChecksum = errors.New("dht: checksum mismatch")

	// ErrTooFrequent reports a bus that never settled after the ack,
	// which the sensor exhibits when polled faster than it tolerates.
	ErrTooFrequent = errors.New("dht: reads too frequent")
)
