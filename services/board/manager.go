// Package board discovers the peripherals of one board and exposes the
// board-level operations on them.
//
// A Manager is single-threaded: the scan, the operations and Close must not
// run concurrently. It owns every bus it keeps open; non-matching buses are
// closed during the scan.
package board

import (
	"context"
	"io"
	"os"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"boardcode-go/drivers/door"
	"boardcode-go/drivers/ht16k33"
	"boardcode-go/drivers/i2cdev"
	"boardcode-go/drivers/pwm"
	"boardcode-go/errcode"
	"boardcode-go/events"
	"boardcode-go/services/config"
	"boardcode-go/x/conv"
)

type Manager struct {
	plan Plan
	enum Enumerator
	log  *zap.SugaredLogger
	hub  *events.Hub

	buses   map[int]i2cdev.Bus
	slots   map[slotKey]*Instance
	closers []io.Closer
}

type Option func(*Manager)

func WithLogger(l *zap.SugaredLogger) Option { return func(m *Manager) { m.log = l } }
func WithEvents(h *events.Hub) Option        { return func(m *Manager) { m.hub = h } }
func WithEnumerator(e Enumerator) Option     { return func(m *Manager) { m.enum = e } }

// New returns an idle manager for plan. Call Scan to find devices.
func New(plan Plan, opts ...Option) *Manager {
	m := &Manager{
		plan:  plan,
		log:   zap.NewNop().Sugar(),
		buses: make(map[int]i2cdev.Bus),
		slots: make(map[slotKey]*Instance),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With("board", plan.Name)
	return m
}

// NewFromConfig builds the plan and enumerator described by cfg. When a
// trace path is configured the trace file is owned by the manager.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Manager, error) {
	plan, err := PlanFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	enum := Enumerator{Pattern: cfg.DevicePattern}
	var trace *os.File
	if cfg.Trace.Path != "" {
		trace, err = os.Create(cfg.Trace.Path)
		if err != nil {
			return nil, errors.Wrap(err, "creating bus trace")
		}
		enum.Trace = trace
	}
	m := New(plan, append([]Option{WithEnumerator(enum)}, opts...)...)
	if trace != nil {
		m.closers = append(m.closers, trace)
	}
	return m, nil
}

func (m *Manager) Plan() Plan { return m.plan }

// Scan probes the plan's buses. It may be called again: resolved devices are
// kept, held buses are reused and no (family, address) is added twice.
// NotFound is returned only when the manager holds no device at all.
func (m *Manager) Scan(ctx context.Context) error {
	fb := m.plan.Fallback
	var held i2cdev.Bus

	for _, n := range m.plan.Buses.Order() {
		if err := ctx.Err(); err != nil {
			if held != nil {
				m.closeBus(fb.Bus, held)
			}
			return err
		}
		if !m.plan.RetainAll && m.resolved() {
			break
		}
		bus, owned := m.buses[n]
		if !owned {
			b, err := m.enum.OpenBus(n)
			if err != nil {
				m.log.Debugw("bus unavailable", "bus", n, "error", err)
				continue
			}
			bus = b
		}
		found := m.probeBus(n, bus)
		switch {
		case owned:
		case found > 0:
			m.buses[n] = bus
		case fb != nil && n == fb.Bus && !m.has(fb.Family):
			held = bus
		default:
			m.closeBus(n, bus)
		}
	}

	if fb != nil && !m.has(fb.Family) {
		m.applyFallback(held)
	} else if held != nil {
		m.closeBus(fb.Bus, held)
	}

	if len(m.slots) == 0 {
		return errcode.New(errcode.NotFound, "scan", "no device found for board "+m.plan.Name)
	}
	for _, fam := range m.plan.Families {
		if !m.has(fam) {
			m.log.Warnw("family not found", "family", fam)
		}
	}
	return nil
}

func (m *Manager) probeBus(n int, bus i2cdev.Bus) int {
	found := 0
	for _, name := range m.plan.Families {
		fam, ok := LookupFamily(name)
		if !ok {
			m.log.Errorw("unknown family", "family", name)
			continue
		}
		if m.plan.RetainAll {
			for _, addr := range fam.Descriptor.DetectAll(bus) {
				if inst, dup := m.slots[slotKey{name, addr}]; dup {
					if inst.Bus != n {
						m.log.Debugw("address already held on another bus", "family", name, "bus", n, "addr", conv.AddrHex(addr), "held_bus", inst.Bus)
					}
					continue
				}
				if m.attach(fam, n, bus, addr) {
					found++
				}
			}
			continue
		}
		if m.has(name) {
			continue
		}
		addr, err := fam.Descriptor.Detect(bus, 0)
		if err != nil {
			m.log.Debugw("probe miss", "family", name, "bus", n)
			continue
		}
		if m.attach(fam, n, bus, addr) {
			found++
		}
	}
	return found
}

// attach initializes the codec at addr and records the instance. An
// initialization failure leaves the family unresolved on this bus.
func (m *Manager) attach(fam Family, n int, bus i2cdev.Bus, addr uint16) bool {
	codec := fam.New(bus, addr)
	if err := codec.Initialize(); err != nil {
		m.log.Warnw("initialize failed", "family", fam.Name(), "bus", n, "addr", conv.AddrHex(addr), "error", err)
		return false
	}
	inst := &Instance{Family: fam.Name(), Bus: n, Addr: addr, Codec: codec}
	m.slots[slotKey{inst.Family, addr}] = inst
	m.log.Infow("device ready", "family", inst.Family, "bus", n, "addr", conv.AddrHex(addr))
	m.publish(inst, events.StateReady)
	return true
}

func (m *Manager) applyFallback(held i2cdev.Bus) {
	fb := m.plan.Fallback
	fam, ok := LookupFamily(fb.Family)
	if !ok {
		m.log.Errorw("unknown fallback family", "family", fb.Family)
		if held != nil {
			m.closeBus(fb.Bus, held)
		}
		return
	}
	bus, owned := m.buses[fb.Bus]
	if !owned {
		bus = held
	}
	if bus == nil {
		b, err := m.enum.OpenBus(fb.Bus)
		if err != nil {
			m.log.Warnw("fallback bus unavailable", "bus", fb.Bus, "error", err)
			return
		}
		bus = b
	}
	m.log.Infow("using fixed address", "family", fb.Family, "bus", fb.Bus, "addr", conv.AddrHex(fb.Addr))
	desc := fam.Descriptor
	desc.Fixed = fb.Addr
	addr, err := desc.Force(bus)
	if err == nil && m.attach(fam, fb.Bus, bus, addr) {
		m.buses[fb.Bus] = bus
		return
	}
	if err != nil {
		m.log.Warnw("fixed address select failed", "bus", fb.Bus, "error", err)
	}
	if !owned {
		m.closeBus(fb.Bus, bus)
	}
}

func (m *Manager) closeBus(n int, bus i2cdev.Bus) error {
	err := bus.Close()
	if err != nil {
		m.log.Warnw("bus close failed", "bus", n, "error", err)
	}
	return err
}

func (m *Manager) has(family string) bool {
	for k := range m.slots {
		if k.family == family {
			return true
		}
	}
	return false
}

func (m *Manager) resolved() bool {
	for _, fam := range m.plan.Families {
		if !m.has(fam) {
			return false
		}
	}
	return true
}

func (m *Manager) publish(inst *Instance, state events.DeviceState) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(&events.Message{
		Topic: events.DeviceTopic(m.plan.Name, inst.Family, inst.Addr),
		Payload: events.DeviceEvent{
			Board:  m.plan.Name,
			Family: inst.Family,
			Bus:    inst.Bus,
			Addr:   inst.Addr,
			State:  state,
		},
		Retained: true,
	})
}

// Instances returns the held devices ordered by bus, address and family.
func (m *Manager) Instances() []Instance {
	out := make([]Instance, 0, len(m.slots))
	for _, inst := range m.slots {
		out = append(out, *inst)
	}
	slices.SortFunc(out, func(a, b Instance) int {
		switch {
		case a.Bus != b.Bus:
			return a.Bus - b.Bus
		case a.Addr != b.Addr:
			return int(a.Addr) - int(b.Addr)
		case a.Family < b.Family:
			return -1
		case a.Family > b.Family:
			return 1
		}
		return 0
	})
	return out
}

// Close releases every device and bus. Safe to call more than once; board
// operations afterwards report NotFound.
func (m *Manager) Close() error {
	var err error
	for _, inst := range m.Instances() {
		m.publish(&inst, events.StateReleased)
	}
	clear(m.slots)

	nums := make([]int, 0, len(m.buses))
	for n := range m.buses {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	for _, n := range nums {
		err = multierr.Append(err, m.closeBus(n, m.buses[n]))
		delete(m.buses, n)
	}
	for _, c := range m.closers {
		err = multierr.Append(err, c.Close())
	}
	m.closers = nil
	return err
}

// pick returns the instance at addr among families, or, when addr is 0, the
// lowest-addressed one, favouring addresses accepted by prefer.
func (m *Manager) pick(op string, addr uint16, prefer func(uint16) bool, families ...string) (*Instance, error) {
	var best *Instance
	better := func(inst *Instance) bool {
		if best == nil {
			return true
		}
		if prefer != nil && prefer(inst.Addr) != prefer(best.Addr) {
			return prefer(inst.Addr)
		}
		if inst.Addr != best.Addr {
			return inst.Addr < best.Addr
		}
		return inst.Bus < best.Bus
	}
	for _, fam := range families {
		if addr != 0 {
			if inst, ok := m.slots[slotKey{fam, addr}]; ok {
				return inst, nil
			}
			continue
		}
		for k, inst := range m.slots {
			if k.family == fam && better(inst) {
				best = inst
			}
		}
	}
	if best == nil {
		msg := "no device"
		if addr != 0 {
			msg += " at " + conv.AddrHex(addr)
		}
		return nil, errcode.New(errcode.NotFound, op, msg)
	}
	return best, nil
}

func codecOf[T Codec](inst *Instance, op string) (T, error) {
	c, ok := inst.Codec.(T)
	if !ok {
		var zero T
		return zero, errcode.New(errcode.Unsupported, op, inst.Family+" device does not support "+op)
	}
	return c, nil
}

var (
	ledFamilies     = []string{"led"}
	fanFamilies     = []string{"fan"}
	doorFamilies    = []string{"door"}
	displayFamilies = []string{"display", "expansion"}
	keyFamilies     = []string{"keypad", "expansion", "display"}
)

// SetLEDColor drives the R, G and B channels of the LED controller.
// Components are clamped to [0, 255].
func (m *Manager) SetLEDColor(r, g, b int) error { return m.SetLEDColorAt(0, r, g, b) }

func (m *Manager) SetLEDColorAt(addr uint16, r, g, b int) error {
	const op = "set_led_color"
	inst, err := m.pick(op, addr, nil, ledFamilies...)
	if err != nil {
		return err
	}
	d, err := codecOf[*pwm.Device](inst, op)
	if err != nil {
		return err
	}
	return d.SetColor(r, g, b)
}

// DisplayString shows text on the display, at most four characters.
func (m *Manager) DisplayString(text string, alignRight bool) error {
	return m.DisplayStringAt(0, text, alignRight)
}

func (m *Manager) DisplayStringAt(addr uint16, text string, alignRight bool) error {
	d, err := m.display("display_string", addr)
	if err != nil {
		return err
	}
	return d.DisplayString(text, alignRight)
}

// DisplayStringStrictAt is DisplayStringAt that rejects the whole text with
// UnsupportedCharacter when any of its first four runes has no glyph.
func (m *Manager) DisplayStringStrictAt(addr uint16, text string, alignRight bool) error {
	d, err := m.display("display_string_strict", addr)
	if err != nil {
		return err
	}
	return d.DisplayStringStrict(text, alignRight)
}

func (m *Manager) display(op string, addr uint16) (*ht16k33.Device, error) {
	inst, err := m.pick(op, addr, ht16k33.Display.Contains, displayFamilies...)
	if err != nil {
		return nil, err
	}
	return codecOf[*ht16k33.Device](inst, op)
}

// SetFanSpeed sets the fan duty cycle; level is clamped to [0, 100].
func (m *Manager) SetFanSpeed(level int) error { return m.SetFanSpeedAt(0, level) }

func (m *Manager) SetFanSpeedAt(addr uint16, level int) error {
	const op = "set_fan_speed"
	inst, err := m.pick(op, addr, nil, fanFamilies...)
	if err != nil {
		return err
	}
	d, err := codecOf[*pwm.Device](inst, op)
	if err != nil {
		return err
	}
	return d.SetFanSpeed(level)
}

// SetDoorPosition commands the actuator; pos is clamped to [0, 100].
func (m *Manager) SetDoorPosition(pos int) error { return m.SetDoorPositionAt(0, pos) }

func (m *Manager) SetDoorPositionAt(addr uint16, pos int) error {
	const op = "set_door_position"
	inst, err := m.pick(op, addr, nil, doorFamilies...)
	if err != nil {
		return err
	}
	d, err := codecOf[*door.Device](inst, op)
	if err != nil {
		return err
	}
	return d.SetPosition(pos)
}

// GetKey reads the keypad: 1-12, or 0 when no key is pressed.
func (m *Manager) GetKey() (int, error) { return m.GetKeyAt(0) }

func (m *Manager) GetKeyAt(addr uint16) (int, error) {
	const op = "get_key"
	inst, err := m.pick(op, addr, ht16k33.Keypad.Contains, keyFamilies...)
	if err != nil {
		return 0, err
	}
	d, err := codecOf[*ht16k33.Device](inst, op)
	if err != nil {
		return 0, err
	}
	return d.ReadKey()
}
