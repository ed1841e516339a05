package board

import (
	"fmt"
	"io/fs"
	"syscall"
	"testing"

	"go.uber.org/zap/zaptest"

	"boardcode-go/drivers/i2cdev"
	"boardcode-go/errcode"
)

// fakeChip is one device on a fake bus: a flat register file plus the
// command bytes it received.
type fakeChip struct {
	regs     [256]byte
	cmds     []byte
	mute     bool // accepts writes but never answers a bare read
	broken   bool // every transfer fails
	readOnly bool // answers reads, rejects register writes
	reads    int
	onRead   func(c *fakeChip) // called before a register read is served
}

func (c *fakeChip) digits() []byte { return append([]byte(nil), c.regs[0x02:0x0A]...) }

func (c *fakeChip) tick(reg byte) int {
	return int(c.regs[reg+2]) | int(c.regs[reg+3])<<8
}

type fakeBus struct {
	chips    map[uint16]*fakeChip
	selected uint16
	open     bool
	opens    int
	closes   int
	closeErr error
}

var _ i2cdev.Bus = (*fakeBus)(nil)

func (b *fakeBus) SelectAddress(addr uint16) error {
	if !b.open {
		return errcode.New(errcode.BusNotOpen, "select_address", "")
	}
	b.selected = addr
	return nil
}

func (b *fakeBus) ReadByte() (byte, error) {
	c := b.chips[b.selected]
	if !b.open {
		return 0, errcode.BusNotOpen
	}
	if c == nil || c.mute || c.broken {
		return 0, errcode.Wrap(errcode.IoError, "read_byte", syscall.EREMOTEIO)
	}
	return 0, nil
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if !b.open {
		return errcode.BusNotOpen
	}
	b.selected = addr
	c := b.chips[addr]
	if c == nil || c.broken {
		return errcode.Wrap(errcode.IoError, "tx", syscall.EREMOTEIO)
	}
	switch {
	case len(w) == 1 && len(r) > 0:
		c.reads++
		if c.onRead != nil {
			c.onRead(c)
		}
		copy(r, c.regs[w[0]:])
	case len(w) == 1:
		c.cmds = append(c.cmds, w[0])
	case len(w) >= 2:
		if c.readOnly {
			return errcode.Wrap(errcode.IoError, "tx", syscall.EREMOTEIO)
		}
		copy(c.regs[w[0]:], w[1:])
	}
	return nil
}

func (b *fakeBus) Close() error {
	if b.open {
		b.closes++
	}
	b.open = false
	return b.closeErr
}

// world maps bus numbers to fake buses; missing numbers fail to open.
type world struct {
	buses map[int]*fakeBus
}

func newWorld() *world { return &world{buses: map[int]*fakeBus{}} }

func (w *world) bus(n int) *fakeBus {
	b, ok := w.buses[n]
	if !ok {
		b = &fakeBus{chips: map[uint16]*fakeChip{}}
		w.buses[n] = b
	}
	return b
}

func (w *world) chip(n int, addr uint16) *fakeChip {
	c := &fakeChip{}
	w.bus(n).chips[addr] = c
	return c
}

func (w *world) openBus(path string) (i2cdev.Bus, error) {
	var n int
	if _, err := fmt.Sscanf(path, "fake-i2c-%d", &n); err != nil {
		return nil, err
	}
	b, ok := w.buses[n]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	b.open = true
	b.opens++
	return b, nil
}

// balanced reports whether every opened bus was closed exactly once per open.
func (w *world) balanced() bool {
	for _, b := range w.buses {
		if b.opens != b.closes || b.open {
			return false
		}
	}
	return true
}

func (w *world) enumerator() Enumerator {
	return Enumerator{Pattern: "fake-i2c-%d", Open: w.openBus}
}

func newTestManager(t *testing.T, plan Plan, w *world, opts ...Option) *Manager {
	t.Helper()
	base := []Option{WithEnumerator(w.enumerator()), WithLogger(zaptest.NewLogger(t).Sugar())}
	return New(plan, append(base, opts...)...)
}
