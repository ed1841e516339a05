// Package i2cdev is a thin handle over a Linux I2C character device
// (/dev/i2c-N). It covers the byte and register-indexed subset of SMBus
// used by the peripheral codecs and satisfies tinygo.org/x/drivers.I2C so
// the codecs can stay transport agnostic.
//
// A Handle is not safe for concurrent use. Register operations are two
// separate transfers (index write, then data), so an interleaving caller on
// the same address would see torn reads.
package i2cdev

import (
	"tinygo.org/x/drivers"

	"boardcode-go/errcode"
)

// I2CSlaveForce is the ioctl request that binds the handle to an address
// even when a kernel driver has claimed it.
const I2CSlaveForce = 0x0706

// Bus is what the board manager and the probes need from an open bus.
type Bus interface {
	drivers.I2C
	SelectAddress(addr uint16) error
	ReadByte() (byte, error)
	Close() error
}

// conn is the native layer under a Handle.
type conn interface {
	setAddress(addr uint16) error
	read(p []byte) (int, error)
	write(p []byte) (int, error)
	close() error
}

// openConn is swapped out per platform.
var openConn = openDevfs

var _ Bus = (*Handle)(nil)

type Handle struct {
	path string
	c    conn // nil once closed

	addr     uint16
	selected bool

	// Fixed buffers to avoid per-call heap allocations.
	w [2]byte
	r [1]byte
}

// Open opens path read-write. The handle starts with no address selected.
func Open(path string) (*Handle, error) {
	c, err := openConn(path)
	if err != nil {
		return nil, &errcode.E{C: errcode.BusUnavailable, Op: "open", Msg: path, Err: err}
	}
	return newHandle(path, c), nil
}

func newHandle(path string, c conn) *Handle {
	return &Handle{path: path, c: c}
}

// Address returns the selected address, if any.
func (h *Handle) Address() (uint16, bool) { return h.addr, h.selected }

// SelectAddress binds subsequent transfers to addr using I2C_SLAVE_FORCE.
// A rejected select leaves the handle with no address.
func (h *Handle) SelectAddress(addr uint16) error {
	if h.c == nil {
		return errcode.New(errcode.BusNotOpen, "select_address", h.path)
	}
	if err := h.c.setAddress(addr); err != nil {
		h.selected = false
		return h.fail("select_address", err)
	}
	h.addr, h.selected = addr, true
	return nil
}

func (h *Handle) ReadByte() (byte, error) {
	if err := h.ready("read_byte"); err != nil {
		return 0, err
	}
	if err := h.readFull("read_byte", h.r[:1]); err != nil {
		return 0, err
	}
	return h.r[0], nil
}

func (h *Handle) WriteByte(b byte) error {
	if err := h.ready("write_byte"); err != nil {
		return err
	}
	h.w[0] = b
	return h.writeFull("write_byte", h.w[:1])
}

// ReadRegister writes the register index then reads one byte back.
func (h *Handle) ReadRegister(reg byte) (byte, error) {
	if err := h.ready("read_register"); err != nil {
		return 0, err
	}
	h.w[0] = reg
	if err := h.writeFull("read_register", h.w[:1]); err != nil {
		return 0, err
	}
	if err := h.readFull("read_register", h.r[:1]); err != nil {
		return 0, err
	}
	return h.r[0], nil
}

func (h *Handle) WriteRegister(reg, v byte) error {
	if err := h.ready("write_register"); err != nil {
		return err
	}
	h.w[0], h.w[1] = reg, v
	return h.writeFull("write_register", h.w[:2])
}

// ReadBlock reads n consecutive bytes starting at reg.
func (h *Handle) ReadBlock(reg byte, n int) ([]byte, error) {
	if err := h.ready("read_block"); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errcode.New(errcode.InvalidParams, "read_block", "negative length")
	}
	h.w[0] = reg
	if err := h.writeFull("read_block", h.w[:1]); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if err := h.readFull("read_block", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Handle) WriteBlock(reg byte, data []byte) error {
	if err := h.ready("write_block"); err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	return h.writeFull("write_block", buf)
}

// Tx implements drivers.I2C. It reselects when addr differs from the
// current selection, writes w if non-empty, then fills r if non-empty.
func (h *Handle) Tx(addr uint16, w, r []byte) error {
	if h.c == nil {
		return errcode.New(errcode.BusNotOpen, "tx", h.path)
	}
	if !h.selected || h.addr != addr {
		if err := h.SelectAddress(addr); err != nil {
			return err
		}
	}
	if len(w) > 0 {
		if err := h.writeFull("tx", w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		return h.readFull("tx", r)
	}
	return nil
}

// Close releases the descriptor. Safe to call more than once.
func (h *Handle) Close() error {
	if h.c == nil {
		return nil
	}
	c := h.c
	h.c, h.selected = nil, false
	if err := c.close(); err != nil {
		return h.fail("close", err)
	}
	return nil
}

func (h *Handle) ready(op string) error {
	if h.c == nil {
		return errcode.New(errcode.BusNotOpen, op, h.path)
	}
	if !h.selected {
		return errcode.New(errcode.NoAddress, op, h.path)
	}
	return nil
}

func (h *Handle) readFull(op string, p []byte) error {
	n, err := h.c.read(p)
	if err != nil {
		return h.fail(op, err)
	}
	if n != len(p) {
		return &errcode.E{C: errcode.IoError, Op: op, Msg: "short read"}
	}
	return nil
}

func (h *Handle) writeFull(op string, p []byte) error {
	n, err := h.c.write(p)
	if err != nil {
		return h.fail(op, err)
	}
	if n != len(p) {
		return &errcode.E{C: errcode.IoError, Op: op, Msg: "short write"}
	}
	return nil
}

// fail classifies a native error. A descriptor the kernel no longer knows
// reads as a closed bus; everything else is a transfer failure.
func (h *Handle) fail(op string, err error) error {
	c := errcode.MapDriverErr(err)
	if c == errcode.BusUnavailable {
		c = errcode.IoError
	}
	return &errcode.E{C: c, Op: op, Msg: h.path, Err: err}
}
