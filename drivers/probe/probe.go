// Package probe locates peripherals on a bus by trying candidate addresses.
//
// A candidate "answers" when the address can be selected and a single byte
// read completes. Devices that NACK surface as a failed read; that failure is
// local to the candidate and only becomes NotFound once the pool is exhausted.
package probe

import (
	"boardcode-go/errcode"
)

// Selector is the subset of a bus handle the probes use.
type Selector interface {
	SelectAddress(addr uint16) error
	ReadByte() (byte, error)
}

// Descriptor describes where a peripheral family may live.
// Values are immutable package data owned by the codec packages.
type Descriptor struct {
	Family string
	Pool   []uint16
	Fixed  uint16 // 0 = no fixed-address override
}

// Answers reports whether a device responds at addr. On success addr stays
// selected on s.
func Answers(s Selector, addr uint16) bool {
	if err := s.SelectAddress(addr); err != nil {
		return false
	}
	_, err := s.ReadByte()
	return err == nil
}

// Detect returns the first answering address of pool, in declared order.
// A non-zero known address is checked alone and the pool is never scanned.
func Detect(s Selector, pool []uint16, known uint16) (uint16, error) {
	if known != 0 {
		if Answers(s, known) {
			return known, nil
		}
		return 0, errcode.New(errcode.NotFound, "detect", "no answer at known address")
	}
	for _, addr := range pool {
		if Answers(s, addr) {
			return addr, nil
		}
	}
	return 0, errcode.New(errcode.NotFound, "detect", "pool exhausted")
}

// DetectAll returns every answering address of pool, in declared order.
// An empty result is not an error.
func DetectAll(s Selector, pool []uint16) []uint16 {
	var found []uint16
	for _, addr := range pool {
		if Answers(s, addr) {
			found = append(found, addr)
		}
	}
	return found
}

// Fixed selects addr without a verification read. The caller trusts the
// device's initialization write instead.
func Fixed(s Selector, addr uint16) (uint16, error) {
	if addr == 0 {
		return 0, errcode.New(errcode.NotFound, "fixed", "no fixed address")
	}
	if err := s.SelectAddress(addr); err != nil {
		return 0, err
	}
	return addr, nil
}

func (d Descriptor) Detect(s Selector, known uint16) (uint16, error) {
	addr, err := Detect(s, d.Pool, known)
	if err != nil {
		return 0, &errcode.E{C: errcode.NotFound, Op: "detect", Msg: d.Family, Err: err}
	}
	return addr, nil
}

func (d Descriptor) DetectAll(s Selector) []uint16 { return DetectAll(s, d.Pool) }

// Force applies the descriptor's fixed-address override.
func (d Descriptor) Force(s Selector) (uint16, error) { return Fixed(s, d.Fixed) }

// Contains reports whether addr is in the pool or is the fixed address.
func (d Descriptor) Contains(addr uint16) bool {
	if addr != 0 && addr == d.Fixed {
		return true
	}
	for _, a := range d.Pool {
		if a == addr {
			return true
		}
	}
	return false
}
