// Package pwm drives PCA9685-style 16-channel, 12-bit PWM controllers used
// for the RGB LED and fan boards.
//
// MODE1 is written as zero on initialization, which leaves register
// auto-increment off; every register is therefore written individually.
package pwm

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/pca9685"

	"boardcode-go/drivers/probe"
	"boardcode-go/errcode"
	"boardcode-go/x/mathx"
)

const (
	Channels   = 16
	MaxTick    = 4095
	FanChannel = 0

	// Colour components land on the first three channels.
	ChannelRed   = 0
	ChannelGreen = 1
	ChannelBlue  = 2

	colorOn   = 0x0F
	colorStep = 16
)

var (
	LED = probe.Descriptor{Family: "led", Pool: []uint16{0x60, 0x61, 0x62, 0x63}}
	Fan = probe.Descriptor{Family: "fan", Pool: []uint16{0x64, 0x65, 0x66, 0x67}}
)

// Layout is the register map of one controller.
type Layout struct {
	Mode1       byte
	ChannelBase byte // ON_L of channel 0; each channel spans 4 registers
	AllBase     byte // ON_L of the broadcast quadruplet
}

var DefaultLayout = Layout{
	Mode1:       pca9685.MODE1,
	ChannelBase: pca9685.LEDSTART,
	AllBase:     pca9685.ALLLED,
}

type Device struct {
	bus    drivers.I2C
	addr   uint16
	layout Layout
	ready  bool

	w [2]byte
}

// New binds a controller at addr. Nothing is written until Initialize.
func New(bus drivers.I2C, addr uint16) *Device {
	return &Device{bus: bus, addr: addr, layout: DefaultLayout}
}

func (d *Device) Addr() uint16 { return d.addr }
func (d *Device) Ready() bool  { return d.ready }

// Initialize clears MODE1 then zeroes the broadcast channel. The device is
// Ready only if all five writes succeed.
func (d *Device) Initialize() error {
	d.ready = false
	if err := d.writeReg(d.layout.Mode1, 0); err != nil {
		return err
	}
	if err := d.writeQuad(d.layout.AllBase, 0, 0); err != nil {
		return err
	}
	d.ready = true
	return nil
}

// SetChannel programs the ON and OFF tick of channel ch. Ticks are clamped
// to [0, 4095]; a channel outside 0-15 is rejected.
func (d *Device) SetChannel(ch, on, off int) error {
	if !d.ready {
		return errcode.New(errcode.NotInitialized, "set_channel", "pwm not initialized")
	}
	if ch < 0 || ch >= Channels {
		return errcode.New(errcode.InvalidChannel, "set_channel", "channel out of range 0-15")
	}
	return d.writeQuad(d.layout.ChannelBase+byte(4*ch), on, off)
}

// SetAll programs every channel at once through the broadcast registers.
func (d *Device) SetAll(on, off int) error {
	if !d.ready {
		return errcode.New(errcode.NotInitialized, "set_all", "pwm not initialized")
	}
	return d.writeQuad(d.layout.AllBase, on, off)
}

// SetColor drives channels 0-2 from 8-bit components. All three writes
// must succeed; the first failure is returned.
func (d *Device) SetColor(r, g, b int) error {
	for i, c := range [3]int{r, g, b} {
		on, off := ColorTicks(c)
		if err := d.SetChannel(ChannelRed+i, on, off); err != nil {
			return err
		}
	}
	return nil
}

// SetFanSpeed maps a 0-100 speed onto the duty cycle of channel 0.
func (d *Device) SetFanSpeed(speed int) error {
	on, off := FanTicks(speed)
	return d.SetChannel(FanChannel, on, off)
}

// ColorTicks returns the ON/OFF ticks for a colour component in [0, 255].
func ColorTicks(c int) (on, off int) {
	c = mathx.Clamp(c, 0, 255)
	return colorOn, colorOn + colorStep*c
}

// FanTicks returns the ON/OFF ticks for a speed in [0, 100], rounding to
// the nearest tick.
func FanTicks(speed int) (on, off int) {
	return 0, mathx.Scale(speed, 100, MaxTick)
}

func (d *Device) writeQuad(base byte, on, off int) error {
	onL, onH := mathx.SplitU12(on)
	offL, offH := mathx.SplitU12(off)
	for i, v := range [4]byte{onL, onH, offL, offH} {
		if err := d.writeReg(base+byte(i), v); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) writeReg(reg, v byte) error {
	d.w[0], d.w[1] = reg, v
	return errcode.Ensure(errcode.IoError, "pwm_write", d.bus.Tx(d.addr, d.w[:2], nil))
}
