package board

import (
	"context"
	"time"

	"boardcode-go/drivers/ht16k33"
	"boardcode-go/errcode"
	"boardcode-go/events"
	"boardcode-go/x/conv"
)

// WatchKeys polls the keypad at addr (0 = default keypad) every interval
// and reports press and release transitions. Each transition is published
// on the events hub, when one is configured, and passed to fn when non-nil.
//
// It blocks until ctx is done and runs on the caller's goroutine; nothing
// else may use the manager meanwhile. Read failures are logged and polling
// continues.
func (m *Manager) WatchKeys(ctx context.Context, addr uint16, every time.Duration, fn func(events.KeyEvent)) error {
	if every <= 0 {
		return errcode.New(errcode.InvalidParams, "watch_keys", "poll interval must be positive")
	}
	inst, err := m.pick("watch_keys", addr, ht16k33.Keypad.Contains, keyFamilies...)
	if err != nil {
		return err
	}
	addr = inst.Addr

	t := time.NewTicker(every)
	defer t.Stop()

	last := 0
	for {
		key, err := m.GetKeyAt(addr)
		switch {
		case err != nil:
			m.log.Warnw("key read failed", "addr", conv.AddrHex(addr), "error", err)
		case key != last:
			if last != 0 {
				m.emitKey(events.KeyEvent{Board: m.plan.Name, Addr: addr, Key: last, Pressed: false}, fn)
			}
			if key != 0 {
				m.emitKey(events.KeyEvent{Board: m.plan.Name, Addr: addr, Key: key, Pressed: true}, fn)
			}
			last = key
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (m *Manager) emitKey(ev events.KeyEvent, fn func(events.KeyEvent)) {
	m.log.Debugw("key transition", "addr", conv.AddrHex(ev.Addr), "key", ev.Key, "pressed", ev.Pressed)
	if m.hub != nil {
		m.hub.Publish(&events.Message{Topic: events.KeyTopic(ev.Board, ev.Addr), Payload: ev})
	}
	if fn != nil {
		fn(ev)
	}
}
