package mathx

// RoundDiv returns floor((a + b/2)/b), classic rounding for positives.
func RoundDiv[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

// Scale maps v in [0, inMax] onto [0, outMax] with rounding. v is clamped first.
func Scale(v, inMax, outMax int) int {
	if inMax <= 0 || outMax <= 0 {
		return 0
	}
	v = Clamp(v, 0, inMax)
	return int(RoundDiv(uint32(v)*uint32(outMax), uint32(inMax)))
}
