package state

const (
	MaxVtime uint8 = 0xff
	MinVtime uint8 = 0x00
)

// TicksToVtime compresses a duration into the RFC 3626 mantissa/exponent
// byte. cref is the number of ticks in 1/16 of the reference unit. The
// relative value is rounded up, the mantissa is truncated.
func TicksToVtime(t Tick, cref Tick) uint8 {
	if cref <= 0 {
		cref = 1
	}
	rel := (16*t + cref - 1) / cref
	b := 0
	for rel >= Tick(1)<<(b+1) {
		b++
	}
	if b < 4 {
		return MinVtime
	}
	b -= 4
	a := (rel - Tick(1)<<(b+4)) >> b
	if a == 16 {
		b++
		a = 0
	}
	if b > 15 {
		return MaxVtime
	}
	return uint8(a*16) + uint8(b)
}

// VtimeToTicks expands a vtime byte back to ticks.
func VtimeToTicks(v uint8, cref Tick) Tick {
	if cref <= 0 {
		cref = 1
	}
	a := Tick(v >> 4)
	b := int(v & 0xf)
	return (cref * ((16 + a) << b)) / 16
}
