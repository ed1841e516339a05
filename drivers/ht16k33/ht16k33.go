// Package ht16k33 drives the HT16K33 LED matrix/keyscan controller as wired
// on the peripheral boards: four 7-segment digits, each spread across two
// display RAM bytes, and a 3x4 key matrix.
package ht16k33

import (
	"tinygo.org/x/drivers"

	"boardcode-go/drivers/probe"
	"boardcode-go/errcode"
)

// Command bytes.
const (
	CmdOscillatorOn = 0x21
	CmdRowOutput    = 0xA0
	CmdDisplayOn    = 0x81
	CmdDisplayOff   = 0x80
)

// Register layout.
const (
	DigitBase      = 0x02 // first display RAM byte, digit 0 from the left
	DigitBaseRight = 0x08 // first byte of the rightmost digit
	DigitEnd       = 0x0A // one past the last digit byte
	Digits         = 4

	KeyData    = 0x40
	KeyDataLen = 6
)

var (
	Display   = probe.Descriptor{Family: "display", Pool: []uint16{0x70, 0x71, 0x72, 0x73}}
	Keypad    = probe.Descriptor{Family: "keypad", Pool: []uint16{0x74, 0x75, 0x76, 0x77}}
	Expansion = probe.Descriptor{Family: "expansion", Pool: []uint16{0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77}}
)

// Anchor selects which end of the display position indices count from.
type Anchor uint8

const (
	Left Anchor = iota
	Right
)

func (a Anchor) String() string {
	if a == Right {
		return "right"
	}
	return "left"
}

type Device struct {
	bus   drivers.I2C
	addr  uint16
	ready bool

	w [2]byte
	r [KeyDataLen]byte
}

func New(bus drivers.I2C, addr uint16) *Device {
	return &Device{bus: bus, addr: addr}
}

func (d *Device) Addr() uint16 { return d.addr }
func (d *Device) Ready() bool  { return d.ready }

// Initialize wakes the oscillator, selects row output, blanks every digit
// and turns the display on. Any failed step leaves the device not ready.
func (d *Device) Initialize() error {
	d.ready = false
	for _, cmd := range [...]byte{CmdOscillatorOn, CmdRowOutput} {
		if err := d.command(cmd); err != nil {
			return err
		}
	}
	if err := d.clear(); err != nil {
		return err
	}
	if err := d.command(CmdDisplayOn); err != nil {
		return err
	}
	d.ready = true
	return nil
}

// Clear blanks all four digits.
func (d *Device) Clear() error {
	if !d.ready {
		return errNotReady("clear")
	}
	return d.clear()
}

// DisplayChar writes one glyph at pos (0-3) counted from the given anchor.
func (d *Device) DisplayChar(pos int, ch rune, a Anchor) error {
	if !d.ready {
		return errNotReady("display_char")
	}
	if pos < 0 || pos >= Digits {
		return errcode.New(errcode.InvalidPosition, "display_char", "position out of range 0-3")
	}
	g, ok := Lookup(ch)
	if !ok {
		return errcode.New(errcode.UnsupportedCharacter, "display_char", string(ch))
	}
	return d.writeGlyph(digitReg(pos, a), g)
}

// DisplayString clears the display and writes at most four runes of text.
// With alignRight the last rune lands in the rightmost digit. Runes without
// a glyph leave their slot blank.
func (d *Device) DisplayString(text string, alignRight bool) error {
	if !d.ready {
		return errNotReady("display_string")
	}
	if err := d.clear(); err != nil {
		return err
	}
	rs := truncate(text)
	for i := range rs {
		ch, a := rs[i], Left
		if alignRight {
			ch, a = rs[len(rs)-1-i], Right
		}
		g, ok := Lookup(ch)
		if !ok {
			continue
		}
		if err := d.writeGlyph(digitReg(i, a), g); err != nil {
			return err
		}
	}
	return nil
}

// DisplayStringStrict is DisplayString that refuses text containing a rune
// without a glyph. Nothing is written in that case.
func (d *Device) DisplayStringStrict(text string, alignRight bool) error {
	if !d.ready {
		return errNotReady("display_string")
	}
	for _, ch := range truncate(text) {
		if _, ok := Lookup(ch); !ok {
			return errcode.New(errcode.UnsupportedCharacter, "display_string", string(ch))
		}
	}
	return d.DisplayString(text, alignRight)
}

// ReadKey returns the pressed key 1-12, or 0 when no key is down.
func (d *Device) ReadKey() (int, error) {
	if !d.ready {
		return 0, errNotReady("read_key")
	}
	d.w[0] = KeyData
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:]); err != nil {
		return 0, errcode.Ensure(errcode.IoError, "read_key", err)
	}
	return DecodeKey(d.r), nil
}

// DecodeKey maps a key-data snapshot to a key number. Columns are checked
// bit by bit and, within a column, the scan lines at bytes 0, 2 and 4 in
// order; the first set bit wins.
func DecodeKey(data [KeyDataLen]byte) int {
	key := 0
	for _, bit := range [...]byte{0x01, 0x02, 0x04, 0x08} {
		for _, line := range [...]int{0, 2, 4} {
			key++
			if data[line]&bit != 0 {
				return key
			}
		}
	}
	return 0
}

func digitReg(pos int, a Anchor) byte {
	if a == Right {
		return byte(DigitBaseRight - 2*pos)
	}
	return byte(DigitBase + 2*pos)
}

func truncate(text string) []rune {
	rs := []rune(text)
	if len(rs) > Digits {
		rs = rs[:Digits]
	}
	return rs
}

func (d *Device) clear() error {
	for reg := byte(DigitBase); reg < DigitEnd; reg++ {
		if err := d.write(reg, 0); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) writeGlyph(reg byte, g Glyph) error {
	if err := d.write(reg, g[0]); err != nil {
		return err
	}
	return d.write(reg+1, g[1])
}

func (d *Device) write(reg, v byte) error {
	d.w[0], d.w[1] = reg, v
	return errcode.Ensure(errcode.IoError, "ht16k33_write", d.bus.Tx(d.addr, d.w[:2], nil))
}

func (d *Device) command(cmd byte) error {
	d.w[0] = cmd
	return errcode.Ensure(errcode.IoError, "ht16k33_command", d.bus.Tx(d.addr, d.w[:1], nil))
}

func errNotReady(op string) error {
	return errcode.New(errcode.NotInitialized, op, "ht16k33 not initialized")
}
