// Package display drives HD44780 compatible character displays over a four
// bit data bus. The controller receives every byte as two nibbles latched by
// an enable strobe; no busy flag polling is done, fixed settle times are used
// instead, so the bus never needs to read back from the display.
package display

import (
	"fmt"
	"time"
)

// Pin drives a single output line of the display bus.
type Pin interface {
	Set(high bool) error
}

const (
	cmdClear      = 0x01
	cmdEntryMode  = 0x06 // cursor moves right, no display shift
	cmdDisplayOn  = 0x0F // display, cursor and blink enabled
	cmdFunction4b = 0x28 // 4 bit bus, two lines, 5x8 glyphs
	cmdSetDDRAM   = 0x80

	rowStride = 0x40

	strobeHold    = time.Millisecond
	commandSettle = 50 * time.Microsecond
	clearSettle   = 2 * time.Millisecond
	powerOnSettle = 100 * time.Millisecond
)

// Device is one display. Not safe for concurrent use.
type Device struct {
	rs    Pin
	en    Pin
	data  [4]Pin // D4..D7, least significant first
	cols  int
	rows  int
	sleep func(time.Duration)
}

// New returns a Device of the given geometry on the given pins. Init must be
// called before anything is written.
func New(rs, en Pin, data [4]Pin, cols, rows int) *Device {
	if cols <= 0 {
		cols = 16
	}
	if rows <= 0 {
		rows = 2
	}
	return &Device{
		rs:    rs,
		en:    en,
		data:  data,
		cols:  cols,
		rows:  rows,
		sleep: time.Sleep,
	}
}

// Cols returns the number of character columns.
func (d *Device) Cols() int {
	return d.cols
}

// Rows returns the number of character rows.
func (d *Device) Rows() int {
	return d.rows
}

// Init runs the power on sequence: force the controller into four bit mode,
// set the bus function, switch the display on and clear it.
func (d *Device) Init() error {
	d.sleep(powerOnSettle)
	if err := d.rs.Set(false); err != nil {
		return err
	}
	if err := d.en.Set(false); err != nil {
		return err
	}

	// The controller wakes up in 8 bit mode; a lone 0x3 nibble followed by
	// the function set command, sent twice, locks in 4 bit operation.
	if err := d.writeNibble(0x3); err != nil {
		return err
	}
	d.sleep(commandSettle)
	for i := 0; i < 2; i++ {
		if err := d.command(cmdFunction4b); err != nil {
			return err
		}
	}

	if err := d.command(cmdDisplayOn); err != nil {
		return err
	}
	return d.Clear()
}

// Clear wipes the display and returns the cursor home.
func (d *Device) Clear() error {
	if err := d.command(cmdClear); err != nil {
		return err
	}
	d.sleep(clearSettle)
	return d.command(cmdEntryMode)
}

// SetCursor moves the cursor to the given row and column. Positions outside
// the geometry are clamped onto it.
func (d *Device) SetCursor(row, col int) error {
	if row < 0 || row >= d.rows {
		row = 0
	}
	if col < 0 {
		col = 0
	}
	if col >= d.cols {
		col = d.cols - 1
	}
	return d.command(cmdSetDDRAM | byte(row*rowStride+col))
}

// WriteString renders the string at the current cursor position. Characters
// outside the controller's single byte set are replaced with spaces.
func (d *Device) WriteString(text string) error {
	for _, r := range text {
		b := byte(' ')
		if r >= 0x20 && r < 0x7F {
			b = byte(r)
		}
		if err := d.writeByte(true, b); err != nil {
			return err
		}
	}
	return nil
}

// WriteLine positions the cursor at the start of the given row and renders
// the text padded or truncated to the full width, overwriting leftovers of
// the previous frame.
func (d *Device) WriteLine(row int, text string) error {
	if err := d.SetCursor(row, 0); err != nil {
		return err
	}
	if len(text) > d.cols {
		text = text[:d.cols]
	}
	for len(text) < d.cols {
		text += " "
	}
	return d.WriteString(text)
}

func (d *Device) command(b byte) error {
	return d.writeByte(false, b)
}

func (d *Device) writeByte(chardata bool, b byte) error {
	if err := d.rs.Set(chardata); err != nil {
		return err
	}
	if err := d.writeNibble(b >> 4); err != nil {
		return err
	}
	if err := d.writeNibble(b); err != nil {
		return err
	}
	d.sleep(commandSettle)
	return nil
}

// writeNibble puts the low four bits of b onto D4..D7 and strobes enable.
func (d *Device) writeNibble(b byte) error {
	for i, pin := range d.data {
		if err := pin.Set(b&(1<<uint(i)) != 0); err != nil {
			return fmt.Errorf("data line %d: %w", i, err)
		}
	}
	if err := d.en.Set(true); err != nil {
		return err
	}
	d.sleep(strobeHold)
	return d.en.Set(false)
}
