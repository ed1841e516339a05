package i2cdev

import (
	"bytes"
	"errors"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardcode-go/errcode"
)

// fakeConn records writes and serves reads from a queue.
type fakeConn struct {
	addrs   []uint16
	writes  [][]byte
	reads   [][]byte
	nack    map[uint16]bool // addresses that fail transfers
	reject  bool            // setAddress fails
	short   bool            // reads return one byte less
	readErr error           // returned by every read when set
	closed  int
	current uint16
}

func (f *fakeConn) setAddress(addr uint16) error {
	if f.reject {
		return syscall.EBUSY
	}
	f.addrs = append(f.addrs, addr)
	f.current = addr
	return nil
}

func (f *fakeConn) read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.nack[f.current] {
		return 0, syscall.EREMOTEIO
	}
	if len(f.reads) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.reads[0])
	f.reads = f.reads[1:]
	if f.short && n > 0 {
		n--
	}
	return n, nil
}

func (f *fakeConn) write(p []byte) (int, error) {
	if f.nack[f.current] {
		return 0, syscall.EREMOTEIO
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeConn) close() error {
	f.closed++
	return nil
}

func TestOpenMissingDeviceIsBusUnavailable(t *testing.T) {
	prev := openConn
	t.Cleanup(func() { openConn = prev })
	openConn = func(path string) (conn, error) {
		return nil, syscall.ENOENT
	}

	h, err := Open("/dev/i2c-42")
	require.Nil(t, h)
	require.ErrorIs(t, err, errcode.BusUnavailable)
}

func TestOperationsNeedAddress(t *testing.T) {
	h := newHandle("/dev/i2c-1", &fakeConn{})

	_, ok := h.Address()
	assert.False(t, ok)

	_, err := h.ReadByte()
	assert.ErrorIs(t, err, errcode.NoAddress)
	assert.ErrorIs(t, h.WriteRegister(0x00, 0x01), errcode.NoAddress)
	_, err = h.ReadBlock(0x40, 6)
	assert.ErrorIs(t, err, errcode.NoAddress)
}

func TestRegisterPrimitives(t *testing.T) {
	fc := &fakeConn{reads: [][]byte{{0x5A}, {1, 2, 3, 4, 5, 6}}}
	h := newHandle("/dev/i2c-5", fc)

	require.NoError(t, h.SelectAddress(0x70))
	addr, ok := h.Address()
	require.True(t, ok)
	require.Equal(t, uint16(0x70), addr)

	v, err := h.ReadRegister(0x03)
	require.NoError(t, err)
	assert.Equal(t, byte(0x5A), v)

	blk, err := h.ReadBlock(0x40, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, blk)

	require.NoError(t, h.WriteRegister(0x02, 0xF8))
	require.NoError(t, h.WriteBlock(0x06, []byte{0x0F, 0x00, 0x1F, 0x00}))
	require.NoError(t, h.WriteByte(0x21))

	assert.Equal(t, [][]byte{
		{0x03},
		{0x40},
		{0x02, 0xF8},
		{0x06, 0x0F, 0x00, 0x1F, 0x00},
		{0x21},
	}, fc.writes)
}

func TestShortReadIsIoError(t *testing.T) {
	fc := &fakeConn{reads: [][]byte{{1, 2, 3, 4, 5, 6}}, short: true}
	h := newHandle("/dev/i2c-0", fc)
	require.NoError(t, h.SelectAddress(0x74))

	_, err := h.ReadBlock(0x40, 6)
	require.ErrorIs(t, err, errcode.IoError)
}

func TestRejectedSelectClearsAddress(t *testing.T) {
	fc := &fakeConn{}
	h := newHandle("/dev/i2c-0", fc)
	require.NoError(t, h.SelectAddress(0x60))

	fc.reject = true
	err := h.SelectAddress(0x61)
	require.ErrorIs(t, err, errcode.IoError)
	_, ok := h.Address()
	assert.False(t, ok)
}

func TestTxReselectsOnlyOnChange(t *testing.T) {
	fc := &fakeConn{reads: [][]byte{{0xAA}}}
	h := newHandle("/dev/i2c-3", fc)

	require.NoError(t, h.Tx(0x60, []byte{0x00, 0x00}, nil))
	require.NoError(t, h.Tx(0x60, []byte{0xFA, 0x00}, nil))
	r := make([]byte, 1)
	require.NoError(t, h.Tx(0x61, []byte{0x00}, r))

	assert.Equal(t, []uint16{0x60, 0x61}, fc.addrs)
	assert.Equal(t, byte(0xAA), r[0])
}

func TestTxSurfacesNack(t *testing.T) {
	fc := &fakeConn{nack: map[uint16]bool{0x1D: true}}
	h := newHandle("/dev/i2c-5", fc)

	err := h.Tx(0x1D, []byte{0x03, 0x00}, nil)
	require.ErrorIs(t, err, errcode.IoError)
	assert.True(t, errors.Is(err, syscall.EREMOTEIO))
}

func TestCloseIsIdempotent(t *testing.T) {
	fc := &fakeConn{}
	h := newHandle("/dev/i2c-2", fc)
	require.NoError(t, h.SelectAddress(0x64))

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, 1, fc.closed)

	assert.ErrorIs(t, h.SelectAddress(0x64), errcode.BusNotOpen)
	_, err := h.ReadByte()
	assert.ErrorIs(t, err, errcode.BusNotOpen)
	assert.ErrorIs(t, h.Tx(0x64, []byte{0}, nil), errcode.BusNotOpen)
}

func TestTracerRecordsTransactions(t *testing.T) {
	fc := &fakeConn{reads: [][]byte{{0x00}}, nack: map[uint16]bool{0x61: true}}
	var buf bytes.Buffer
	tr := NewTracer(newHandle("/dev/i2c-5", fc), "i2c-5", &buf)
	tr.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, tr.SelectAddress(0x60))
	_, err := tr.ReadByte()
	require.NoError(t, err)
	require.Error(t, tr.Tx(0x61, []byte{0x00, 0x00}, nil))
	require.NoError(t, tr.Close())

	dec := NewTraceDecoder(&buf)
	var got []TraceEvent
	for {
		var ev TraceEvent
		if err := dec.Decode(&ev); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, ev)
	}

	require.Len(t, got, 4)
	assert.Equal(t, OpSelect, got[0].Op)
	assert.Equal(t, uint16(0x60), got[0].Addr)
	assert.Equal(t, OpRead, got[1].Op)
	assert.Equal(t, uint16(0x60), got[1].Addr, "read carries the selected address")
	assert.Equal(t, []byte{0x00}, got[1].R)
	assert.Equal(t, OpTx, got[2].Op)
	assert.Equal(t, errcode.IoError, got[2].Code)
	assert.Equal(t, []byte{0x00, 0x00}, got[2].W)
	assert.Equal(t, OpClose, got[3].Op)
	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, "i2c-5", ev.Bus)
	}
}

func TestStaleDescriptorIsBusNotOpen(t *testing.T) {
	fc := &fakeConn{readErr: syscall.EBADF}
	h := newHandle("/dev/i2c-4", fc)
	require.NoError(t, h.SelectAddress(0x64))

	_, err := h.ReadByte()
	require.ErrorIs(t, err, errcode.BusNotOpen)
	assert.ErrorIs(t, err, syscall.EBADF)

	fc.readErr = syscall.EACCES
	_, err = h.ReadByte()
	assert.ErrorIs(t, err, errcode.IoError)
}

func TestTracerReadFollowsSelection(t *testing.T) {
	fc := &fakeConn{reads: [][]byte{{0x01}}, nack: map[uint16]bool{0x65: true}}
	var buf bytes.Buffer
	tr := NewTracer(newHandle("/dev/i2c-1", fc), "i2c-1", &buf)

	require.NoError(t, tr.SelectAddress(0x64))
	_, err := tr.ReadByte()
	require.NoError(t, err)
	require.NoError(t, tr.SelectAddress(0x65))
	_, err = tr.ReadByte()
	require.Error(t, err)

	dec := NewTraceDecoder(&buf)
	var reads []TraceEvent
	for {
		var ev TraceEvent
		if dec.Decode(&ev) != nil {
			break
		}
		if ev.Op == OpRead {
			reads = append(reads, ev)
		}
	}
	require.Len(t, reads, 2)
	assert.Equal(t, uint16(0x64), reads[0].Addr)
	assert.Equal(t, uint16(0x65), reads[1].Addr)
	assert.Equal(t, errcode.IoError, reads[1].Code)
}

func TestTraceEventString(t *testing.T) {
	ev := TraceEvent{
		Seq:  3,
		At:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Bus:  "i2c-5",
		Op:   OpTx,
		Addr: 0x70,
		W:    []byte{0x40},
		R:    []byte{0x00, 0x04},
		Code: errcode.IoError,
	}
	assert.Equal(t, "3 2024-01-02T03:04:05Z i2c-5 tx     addr=0x70 w=[40] r=[00 04] io_error", ev.String())
}
