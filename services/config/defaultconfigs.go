package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: board name as given on the command line.
// Val: raw YAML overlaid on baseConfig.
// -----------------------------------------------------------------------------

// LED + display board: both chips sit on bus 5.
const cfgE1 = `
buses:
  fixed: 5
`

// Fan board: first bus 0-5 with a controller wins.
const cfgE2 = `
buses:
  first: 0
  last: 5
`

// Curtain board: bus 5 first; its controller may not answer reads, so it is
// forced at 0x1C on bus 5 when the scan comes up empty.
const cfgE3 = `
buses:
  first: 0
  last: 5
  prefer: 5
fallback:
  bus: 5
  addr: 0x1C
`

// Keypad/LED expansion: every chip on every bus.
const cfgS1 = `
buses:
  first: 0
  last: 99
retain_all: true
`

var embeddedConfigs = map[string][]byte{
	"e1": []byte(cfgE1),
	"e2": []byte(cfgE2),
	"e3": []byte(cfgE3),
	"s1": []byte(cfgS1),
}
