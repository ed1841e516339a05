package pwm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers/pca9685"
	"tinygo.org/x/drivers/tester"

	"boardcode-go/errcode"
)

func newTestDevice(t *testing.T, addr uint8) (*Device, *tester.I2CDevice8) {
	t.Helper()
	bus := tester.NewI2CBus(t)
	mock := bus.NewDevice(addr)
	return New(bus, uint16(addr)), mock
}

func ticks(regs [tester.MaxRegisters]uint8, base uint8) (on, off int) {
	on = int(regs[base]) | int(regs[base+1])<<8
	off = int(regs[base+2]) | int(regs[base+3])<<8
	return on, off
}

func TestInitializeClearsModeAndBroadcast(t *testing.T) {
	d, mock := newTestDevice(t, 0x60)
	mock.Registers[pca9685.MODE1] = 0x11
	for i := 0; i < 4; i++ {
		mock.Registers[pca9685.ALLLED+i] = 0xFF
	}

	require.False(t, d.Ready())
	require.NoError(t, d.Initialize())
	require.True(t, d.Ready())

	assert.Zero(t, mock.Registers[pca9685.MODE1])
	on, off := ticks(mock.Registers, pca9685.ALLLED)
	assert.Zero(t, on)
	assert.Zero(t, off)
}

func TestInitializeFailureLeavesNotReady(t *testing.T) {
	d, mock := newTestDevice(t, 0x64)
	mock.Err = errors.New("nack")

	err := d.Initialize()
	require.ErrorIs(t, err, errcode.IoError)
	assert.False(t, d.Ready())

	err = d.SetChannel(0, 0, 100)
	require.ErrorIs(t, err, errcode.NotInitialized)
}

func TestSetChannelMatchesRegisterMap(t *testing.T) {
	d, mock := newTestDevice(t, 0x61)
	require.NoError(t, d.Initialize())

	for ch := 0; ch < Channels; ch++ {
		require.NoError(t, d.SetChannel(ch, ch, 4000-ch))
		onL, _, offL, _ := pca9685.LED(uint8(ch))
		on, off := ticks(mock.Registers, onL)
		assert.Equal(t, ch, on, "channel %d on", ch)
		assert.Equal(t, 4000-ch, off, "channel %d off", ch)
		assert.Equal(t, offL, onL+2)
	}
}

func TestSetChannelClampsTicks(t *testing.T) {
	d, mock := newTestDevice(t, 0x60)
	require.NoError(t, d.Initialize())

	require.NoError(t, d.SetChannel(3, -20, 5000))
	onL, onH, offL, offH := pca9685.LED(3)
	assert.Equal(t, uint8(0), mock.Registers[onL])
	assert.Equal(t, uint8(0), mock.Registers[onH])
	assert.Equal(t, uint8(0xFF), mock.Registers[offL])
	assert.Equal(t, uint8(0x0F), mock.Registers[offH])
}

func TestSetChannelRejectsBadIndex(t *testing.T) {
	d, _ := newTestDevice(t, 0x60)
	require.NoError(t, d.Initialize())

	assert.ErrorIs(t, d.SetChannel(16, 0, 0), errcode.InvalidChannel)
	assert.ErrorIs(t, d.SetChannel(-1, 0, 0), errcode.InvalidChannel)
}

func TestSetAllWritesBroadcast(t *testing.T) {
	d, mock := newTestDevice(t, 0x62)
	require.NoError(t, d.Initialize())

	require.NoError(t, d.SetAll(0, 2048))
	on, off := ticks(mock.Registers, pca9685.ALLLED)
	assert.Equal(t, 0, on)
	assert.Equal(t, 2048, off)
}

func TestColorTicks(t *testing.T) {
	cases := []struct{ c, off int }{
		{0, 15},
		{1, 31},
		{128, 2063},
		{255, 4095},
		{300, 4095},
		{-4, 15},
	}
	for _, c := range cases {
		on, off := ColorTicks(c.c)
		assert.Equal(t, 15, on)
		assert.Equal(t, c.off, off, "component %d", c.c)
	}
}

func TestSetColorDrivesFirstThreeChannels(t *testing.T) {
	d, mock := newTestDevice(t, 0x60)
	require.NoError(t, d.Initialize())

	require.NoError(t, d.SetColor(255, 0, 10))
	for ch, want := range []int{4095, 15, 175} {
		onL, _, _, _ := pca9685.LED(uint8(ch))
		on, off := ticks(mock.Registers, onL)
		assert.Equal(t, 15, on)
		assert.Equal(t, want, off, "channel %d", ch)
	}
}

func TestFanTicksRound(t *testing.T) {
	cases := []struct{ speed, off int }{
		{0, 0},
		{1, 41},
		{33, 1351}, // 1351.35
		{50, 2048},
		{100, 4095},
		{120, 4095},
		{-3, 0},
	}
	for _, c := range cases {
		on, off := FanTicks(c.speed)
		assert.Equal(t, 0, on)
		assert.Equal(t, c.off, off, "speed %d", c.speed)
	}
}

func TestSetFanSpeed(t *testing.T) {
	d, mock := newTestDevice(t, 0x64)
	require.NoError(t, d.Initialize())

	require.NoError(t, d.SetFanSpeed(75))
	onL, _, _, _ := pca9685.LED(FanChannel)
	on, off := ticks(mock.Registers, onL)
	assert.Equal(t, 0, on)
	assert.Equal(t, 3071, off) // 3071.25
}

func TestDescriptorPools(t *testing.T) {
	assert.Equal(t, []uint16{0x60, 0x61, 0x62, 0x63}, LED.Pool)
	assert.Equal(t, []uint16{0x64, 0x65, 0x66, 0x67}, Fan.Pool)
	assert.Zero(t, Fan.Fixed)
}
