package ht16k33

// Glyph is the segment pattern of one digit, split over two RAM bytes.
type Glyph [2]byte

var glyphs = map[rune]Glyph{
	'0': {0xF8, 0x01},
	'1': {0x30, 0x00},
	'2': {0xD8, 0x02},
	'3': {0x78, 0x02},
	'4': {0x30, 0x03},
	'5': {0x68, 0x03},
	'6': {0xE8, 0x03},
	'7': {0x38, 0x00},
	'8': {0xF8, 0x03},
	'9': {0x78, 0x03},
	'A': {0xB8, 0x03},
	'B': {0xE0, 0x03},
	'C': {0xC8, 0x01},
	'D': {0xF0, 0x02},
	'E': {0xC8, 0x03},
	'F': {0x88, 0x03},
	'-': {0x00, 0x02},
	'_': {0x00, 0x00},
}

// Lookup returns the glyph for ch. Letters are case-sensitive.
func Lookup(ch rune) (Glyph, bool) {
	g, ok := glyphs[ch]
	return g, ok
}
