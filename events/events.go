// Package events is a small in-process pub/sub hub for device lifecycle and
// key transitions. Topics are token paths; subscriptions may use "+" for one
// token and a trailing "#" for the rest. Retained messages are replayed to
// new subscribers.
package events

import (
	"sync"

	"boardcode-go/x/conv"
)

const (
	Single = "+"
	Multi  = "#"
)

type Topic []string

func (t Topic) String() string {
	s := ""
	for i, tok := range t {
		if i > 0 {
			s += "/"
		}
		s += tok
	}
	return s
}

// Match reports whether the concrete topic t matches the pattern p.
func (t Topic) Match(p Topic) bool {
	for i, tok := range p {
		if tok == Multi {
			return true
		}
		if i >= len(t) {
			return false
		}
		if tok != Single && tok != t[i] {
			return false
		}
	}
	return len(t) == len(p)
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

type Subscription struct {
	pattern Topic
	ch      chan *Message
	hub     *Hub
}

func (s *Subscription) Topic() Topic             { return s.pattern }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.hub.unsubscribe(s) }

type Hub struct {
	mu       sync.Mutex
	subs     []*Subscription
	retained map[string]*Message
	qLen     int
}

// NewHub creates a hub with the given per-subscription queue length.
func NewHub(queueLen int) *Hub {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Hub{retained: make(map[string]*Message), qLen: queueLen}
}

// Subscribe registers pattern and replays matching retained messages.
func (h *Hub) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{pattern: pattern, ch: make(chan *Message, h.qLen), hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, sub)
	for _, m := range h.retained {
		if m.Topic.Match(pattern) {
			deliver(sub, m)
		}
	}
	return sub
}

// Publish fans msg out to matching subscribers. A retained message with a
// nil payload clears the retained value for its topic.
func (h *Hub) Publish(msg *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if msg.Topic.Match(sub.pattern) {
			deliver(sub, msg)
		}
	}
	if !msg.Retained {
		return
	}
	key := msg.Topic.String()
	if msg.Payload == nil {
		delete(h.retained, key)
		return
	}
	h.retained[key] = msg
}

// Retained returns the retained message on topic, if any.
func (h *Hub) Retained(topic Topic) (*Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.retained[topic.String()]
	return m, ok
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// deliver never blocks; a full queue drops its oldest message.
func deliver(sub *Subscription, m *Message) {
	select {
	case sub.ch <- m:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- m:
	default:
	}
}

// Domain topics.

const (
	DeviceRoot = "device"
	KeyRoot    = "key"
)

type DeviceState string

const (
	StateReady    DeviceState = "ready"
	StateReleased DeviceState = "released"
)

// DeviceEvent is retained on DeviceTopic while the instance is held.
type DeviceEvent struct {
	Board  string
	Family string
	Bus    int
	Addr   uint16
	State  DeviceState
}

// KeyEvent is published on KeyTopic when the decoded key changes.
type KeyEvent struct {
	Board   string
	Addr    uint16
	Key     int // 1-12; on release, the key that was let go
	Pressed bool
}

func DeviceTopic(board, family string, addr uint16) Topic {
	return Topic{DeviceRoot, board, family, conv.AddrHex(addr)}
}

func KeyTopic(board string, addr uint16) Topic {
	return Topic{KeyRoot, board, conv.AddrHex(addr)}
}
