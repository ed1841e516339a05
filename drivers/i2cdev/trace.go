package i2cdev

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"boardcode-go/errcode"
	"boardcode-go/x/conv"
)

// TraceOp names the bus primitive a TraceEvent records.
type TraceOp string

const (
	OpSelect TraceOp = "select"
	OpRead   TraceOp = "read"
	OpTx     TraceOp = "tx"
	OpClose  TraceOp = "close"
)

// TraceEvent is one bus transaction. Integer keys keep the stream compact.
type TraceEvent struct {
	Seq  uint64       `cbor:"1,keyasint"`
	At   time.Time    `cbor:"2,keyasint"`
	Bus  string       `cbor:"3,keyasint,omitempty"`
	Op   TraceOp      `cbor:"4,keyasint"`
	Addr uint16       `cbor:"5,keyasint"`
	W    []byte       `cbor:"6,keyasint,omitempty"`
	R    []byte       `cbor:"7,keyasint,omitempty"`
	Code errcode.Code `cbor:"8,keyasint,omitempty"`
}

var (
	traceEncMode cbor.EncMode
	traceDecMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	traceEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("i2cdev: trace encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	traceDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("i2cdev: trace decoder mode: %v", err))
	}
}

// String renders the event on one line, bytes in hex.
func (e TraceEvent) String() string {
	s := fmt.Sprintf("%d %s %s %-6s addr=%s", e.Seq, e.At.Format(time.RFC3339Nano), e.Bus, e.Op, conv.AddrHex(e.Addr))
	if len(e.W) > 0 {
		s += " w=[" + conv.BytesHex(e.W) + "]"
	}
	if len(e.R) > 0 {
		s += " r=[" + conv.BytesHex(e.R) + "]"
	}
	if e.Code != "" {
		s += " " + string(e.Code)
	}
	return s
}

// NewTraceDecoder reads back a stream written by a Tracer.
func NewTraceDecoder(r io.Reader) *cbor.Decoder {
	return traceDecMode.NewDecoder(r)
}

// Tracer wraps a Bus and records every transaction to w as a CBOR sequence.
// Encoding failures never fail the transaction.
type Tracer struct {
	Bus
	name string
	now  func() time.Time

	mu   sync.Mutex
	enc  *cbor.Encoder
	seq  uint64
	addr uint16 // last address selected on the wrapped bus
}

var _ Bus = (*Tracer)(nil)

// NewTracer records transactions on b under the given bus name.
func NewTracer(b Bus, name string, w io.Writer) *Tracer {
	return &Tracer{Bus: b, name: name, now: time.Now, enc: traceEncMode.NewEncoder(w)}
}

func (t *Tracer) SelectAddress(addr uint16) error {
	err := t.Bus.SelectAddress(addr)
	t.mu.Lock()
	t.addr = 0
	if err == nil {
		t.addr = addr
	}
	t.mu.Unlock()
	t.record(OpSelect, addr, nil, nil, err)
	return err
}

func (t *Tracer) ReadByte() (byte, error) {
	b, err := t.Bus.ReadByte()
	var r []byte
	if err == nil {
		r = []byte{b}
	}
	t.mu.Lock()
	addr := t.addr
	t.mu.Unlock()
	t.record(OpRead, addr, nil, r, err)
	return b, err
}

func (t *Tracer) Tx(addr uint16, w, r []byte) error {
	err := t.Bus.Tx(addr, w, r)
	t.mu.Lock()
	t.addr = addr
	t.mu.Unlock()
	var got []byte
	if err == nil && len(r) > 0 {
		got = append([]byte(nil), r...)
	}
	t.record(OpTx, addr, w, got, err)
	return err
}

func (t *Tracer) Close() error {
	err := t.Bus.Close()
	t.record(OpClose, 0, nil, nil, err)
	return err
}

func (t *Tracer) record(op TraceOp, addr uint16, w, r []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	ev := TraceEvent{
		Seq:  t.seq,
		At:   t.now().UTC(),
		Bus:  t.name,
		Op:   op,
		Addr: addr,
		W:    append([]byte(nil), w...),
		R:    r,
	}
	if err != nil {
		ev.Code = errcode.Of(err)
	}
	_ = t.enc.Encode(ev)
}
