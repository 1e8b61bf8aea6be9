package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickUndefined(t *testing.T) {
	assert.False(t, TickUndefined.Defined())
	assert.True(t, Tick(0).Defined())
	assert.Equal(t, TickUndefined, TickUndefined.Add(10))
	assert.Equal(t, Tick(15), Tick(5).Add(10))
	assert.Equal(t, Tick(9), Expired(10))
}

func TestUndefOrdering(t *testing.T) {
	assert.True(t, LargeUndefLess(5, TickUndefined))
	assert.False(t, LargeUndefLess(TickUndefined, 5))
	assert.False(t, LargeUndefLess(TickUndefined, TickUndefined))
	assert.True(t, LargeUndefLess(4, 5))
	assert.True(t, LargeUndefLessEq(5, 5))
	assert.True(t, LargeUndefLessEq(TickUndefined, TickUndefined))

	assert.True(t, SmallUndefLess(TickUndefined, 5))
	assert.False(t, SmallUndefLess(5, TickUndefined))
	assert.True(t, SmallUndefLess(-3, 5))

	assert.Equal(t, Tick(3), MinTick(3, TickUndefined))
	assert.Equal(t, Tick(3), MinTick(TickUndefined, 3))
	assert.Equal(t, Tick(2), MinTick(3, 2))
	assert.Equal(t, TickUndefined, MinTick(TickUndefined, TickUndefined))
}

func TestWakeupUpdate(t *testing.T) {
	w := NoWakeup()
	w.Update(WakeupCondition{Hard: TickUndefined, Soft: 10})
	w.Update(WakeupCondition{Hard: 20, Soft: 15})
	w.Update(WakeupCondition{Hard: TickUndefined, Soft: TickUndefined})
	assert.Equal(t, WakeupCondition{Hard: 20, Soft: 10}, w)
}

func TestVtimeKnownValues(t *testing.T) {
	const cref = 16
	assert.Equal(t, uint8(0x00), TicksToVtime(16, cref))
	assert.Equal(t, uint8(0x10), TicksToVtime(17, cref))
	assert.Equal(t, uint8(0x01), TicksToVtime(32, cref))
	assert.Equal(t, Tick(16), VtimeToTicks(0x00, cref))
	assert.Equal(t, Tick(17), VtimeToTicks(0x10, cref))
	assert.Equal(t, Tick(32), VtimeToTicks(0x01, cref))

	// too short to be represented
	assert.Equal(t, MinVtime, TicksToVtime(1, cref))
	// saturates
	assert.Equal(t, MaxVtime, TicksToVtime(1<<40, cref))
	assert.Equal(t, Tick(cref*(31<<15)/16), VtimeToTicks(MaxVtime, cref))
}

func TestVtimeWallClock(t *testing.T) {
	cref := DefaultProtocolCfg(1000).Cref
	v := TicksToVtime(7000, cref)
	assert.Equal(t, uint8(0xc6), v)
	got := VtimeToTicks(v, cref)
	assert.InDelta(t, 7000, float64(got), 7000/16)
}

func TestVtimeMonotone(t *testing.T) {
	for _, cref := range []Tick{1, 16, 62} {
		prev := Tick(0)
		for ticks := cref; ticks < 2000*cref; ticks += max(cref/4, 1) {
			got := VtimeToTicks(TicksToVtime(ticks, cref), cref)
			assert.GreaterOrEqual(t, got, prev, "cref=%d ticks=%d", cref, ticks)
			assert.LessOrEqual(t, got, ticks+cref, "cref=%d ticks=%d", cref, ticks)
			prev = got
		}
	}
}

func TestVtimeZeroCref(t *testing.T) {
	assert.Equal(t, TicksToVtime(40, 1), TicksToVtime(40, 0))
	assert.Equal(t, VtimeToTicks(0x21, 1), VtimeToTicks(0x21, -5))
}

func TestSeqnoCmp(t *testing.T) {
	assert.Equal(t, 0, SeqnoCmp(5, 5))
	assert.Equal(t, 1, SeqnoCmp(6, 5))
	assert.Equal(t, -1, SeqnoCmp(5, 6))
	assert.Equal(t, 1, SeqnoCmp(0, 0xffff))
	assert.Equal(t, -1, SeqnoCmp(0xffff, 0))
	assert.Equal(t, 1, SeqnoCmp(0, 0x8001))
	assert.Equal(t, -1, SeqnoCmp(0, 0x7fff))
}

func TestSeqnoConsistent(t *testing.T) {
	for _, a := range []uint16{0, 1, 100, 0x7fff, 0x8000, 0xfffe, 0xffff} {
		for d := 0; d < 1<<16; d += 97 {
			b := a + uint16(d)
			if b-a == seqnoHalf {
				continue
			}
			assert.Equal(t, -SeqnoCmp(b, a), SeqnoCmp(a, b), "a=%d b=%d", a, b)
			want := -1
			switch {
			case d == 0:
				want = 0
			case d > int(seqnoHalf):
				want = 1
			}
			assert.Equal(t, want, SeqnoCmp(a, b), "a=%d b=%d", a, b)
			assert.Equal(t, want < 0, SeqnoLt(a, b), "a=%d b=%d", a, b)
			assert.Equal(t, want <= 0, SeqnoLe(a, b), "a=%d b=%d", a, b)
			assert.Equal(t, want > 0, SeqnoGt(a, b), "a=%d b=%d", a, b)
			assert.Equal(t, want >= 0, SeqnoGe(a, b), "a=%d b=%d", a, b)
		}
	}
}
