// Package door drives the curtain/door actuator board. The controller
// exposes a single position register and does not report progress, so a
// write is the whole command.
package door

import (
	"tinygo.org/x/drivers"

	"boardcode-go/drivers/probe"
	"boardcode-go/errcode"
	"boardcode-go/x/mathx"
)

const (
	RegPosition = 0x03

	MinPosition = 0
	MaxPosition = 100
)

// Curtain lists the strapped addresses. Some board revisions do not answer
// reads at all, so 0x1C doubles as the fixed fallback.
var Curtain = probe.Descriptor{Family: "door", Pool: []uint16{0x1C, 0x1D, 0x1E, 0x1F}, Fixed: 0x1C}

type Device struct {
	bus    drivers.I2C
	addr   uint16
	ready  bool
	target int

	w [2]byte
}

func New(bus drivers.I2C, addr uint16) *Device {
	return &Device{bus: bus, addr: addr}
}

func (d *Device) Addr() uint16 { return d.addr }
func (d *Device) Ready() bool  { return d.ready }

// Target is the last position written. The actuator is never read back.
func (d *Device) Target() int { return d.target }

// Initialize homes the actuator by writing position 0.
func (d *Device) Initialize() error {
	d.ready = false
	if err := d.write(MinPosition); err != nil {
		return err
	}
	d.ready, d.target = true, MinPosition
	return nil
}

// SetPosition commands a position, clamped to [0, 100].
func (d *Device) SetPosition(pos int) error {
	if !d.ready {
		return errcode.New(errcode.NotInitialized, "set_position", "door not initialized")
	}
	pos = mathx.Clamp(pos, MinPosition, MaxPosition)
	if err := d.write(pos); err != nil {
		return err
	}
	d.target = pos
	return nil
}

func (d *Device) write(pos int) error {
	d.w[0], d.w[1] = RegPosition, byte(pos)
	return errcode.Ensure(errcode.IoError, "door_write", d.bus.Tx(d.addr, d.w[:2], nil))
}
