package board

import (
	"boardcode-go/drivers/door"
	"boardcode-go/errcode"
	"boardcode-go/services/config"
)

// BusSelection decides which bus numbers a plan scans, in which order.
type BusSelection struct {
	Fixed  *int // scan only this bus
	First  int
	Last   int
	Prefer *int // tried first, then First..Last in order
}

// Order returns the bus numbers to try.
func (s BusSelection) Order() []int {
	if s.Fixed != nil {
		return []int{*s.Fixed}
	}
	order := make([]int, 0, max(s.Last-s.First+2, 1))
	if s.Prefer != nil {
		order = append(order, *s.Prefer)
	}
	for n := s.First; n <= s.Last; n++ {
		if s.Prefer != nil && n == *s.Prefer {
			continue
		}
		order = append(order, n)
	}
	return order
}

// Fallback forces Family onto Bus at Addr when the scan finds nothing.
// The address is selected without a verification read.
type Fallback struct {
	Family string
	Bus    int
	Addr   uint16
}

// Plan is the discovery recipe of one board.
//
// First-match plans resolve each family once and stop scanning as soon as
// every family is resolved. Retain-all plans scan every bus and keep every
// answering address.
type Plan struct {
	Name      string
	Buses     BusSelection
	Families  []string // probe order on each bus
	RetainAll bool
	Fallback  *Fallback
}

func intp(n int) *int { return &n }

var (
	// E1 carries the LED driver and the 4-digit display, both on bus 5.
	E1 = Plan{
		Name:     "e1",
		Buses:    BusSelection{Fixed: intp(5)},
		Families: []string{"led", "display"},
	}
	// E2 carries the fan controller somewhere on buses 0-5.
	E2 = Plan{
		Name:     "e2",
		Buses:    BusSelection{First: 0, Last: 5},
		Families: []string{"fan"},
	}
	// E3 carries the curtain actuator. Bus 5 is the usual home and the
	// actuator may not answer reads, hence the fixed fallback.
	E3 = Plan{
		Name:     "e3",
		Buses:    BusSelection{First: 0, Last: 5, Prefer: intp(5)},
		Families: []string{"door"},
		Fallback: &Fallback{Family: "door", Bus: 5, Addr: door.Curtain.Fixed},
	}
	// S1 is the keypad/LED expansion board; any number of chips on any bus.
	S1 = Plan{
		Name:      "s1",
		Buses:     BusSelection{First: 0, Last: 99},
		Families:  []string{"expansion", "led"},
		RetainAll: true,
	}
)

func init() {
	for _, p := range []Plan{E1, E2, E3, S1} {
		RegisterPlan(p)
	}
}

// PlanFromConfig starts from the registered plan for cfg.Board and applies
// the configured bus selection, retain-all flag and fallback.
func PlanFromConfig(cfg *config.Config) (Plan, error) {
	p, ok := LookupPlan(cfg.Board)
	if !ok {
		return Plan{}, errcode.New(errcode.NotFound, "plan", "unknown board "+cfg.Board)
	}
	p.Buses = BusSelection{
		Fixed:  cfg.Buses.Fixed,
		First:  cfg.Buses.First,
		Last:   cfg.Buses.Last,
		Prefer: cfg.Buses.Prefer,
	}
	p.RetainAll = cfg.RetainAll
	if cfg.Fallback.Bus != nil && cfg.Fallback.Addr != 0 {
		fam := p.Families[0]
		if p.Fallback != nil {
			fam = p.Fallback.Family
		}
		p.Fallback = &Fallback{Family: fam, Bus: *cfg.Fallback.Bus, Addr: cfg.Fallback.Addr}
	} else {
		p.Fallback = nil
	}
	return p, nil
}
