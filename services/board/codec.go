package board

import (
	"tinygo.org/x/drivers"

	"boardcode-go/drivers/door"
	"boardcode-go/drivers/ht16k33"
	"boardcode-go/drivers/probe"
	"boardcode-go/drivers/pwm"
)

// Codec is what every peripheral codec offers the manager. Family-specific
// operations are reached by type assertion on the instance.
type Codec interface {
	Addr() uint16
	Initialize() error
	Ready() bool
}

var (
	_ Codec = (*pwm.Device)(nil)
	_ Codec = (*ht16k33.Device)(nil)
	_ Codec = (*door.Device)(nil)
)

// Family ties a descriptor to the codec constructor for the chips it finds.
type Family struct {
	Descriptor probe.Descriptor
	New        func(bus drivers.I2C, addr uint16) Codec
}

func (f Family) Name() string { return f.Descriptor.Family }

// Instance is a probed and initialized device. The bus is shared with other
// instances on the same bus number and owned by the manager.
type Instance struct {
	Family string
	Bus    int
	Addr   uint16
	Codec  Codec
}

type slotKey struct {
	family string
	addr   uint16
}

func init() {
	RegisterFamily(Family{Descriptor: pwm.LED, New: func(b drivers.I2C, a uint16) Codec { return pwm.New(b, a) }})
	RegisterFamily(Family{Descriptor: pwm.Fan, New: func(b drivers.I2C, a uint16) Codec { return pwm.New(b, a) }})
	RegisterFamily(Family{Descriptor: ht16k33.Display, New: func(b drivers.I2C, a uint16) Codec { return ht16k33.New(b, a) }})
	RegisterFamily(Family{Descriptor: ht16k33.Keypad, New: func(b drivers.I2C, a uint16) Codec { return ht16k33.New(b, a) }})
	RegisterFamily(Family{Descriptor: ht16k33.Expansion, New: func(b drivers.I2C, a uint16) Codec { return ht16k33.New(b, a) }})
	RegisterFamily(Family{Descriptor: door.Curtain, New: func(b drivers.I2C, a uint16) Codec { return door.New(b, a) }})
}
