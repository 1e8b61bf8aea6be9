package state

import "math"

// Tick is the protocol clock. It only increases.
type Tick int64

// TickUndefined means "not set / no deadline".
const TickUndefined Tick = math.MinInt64

func (t Tick) Defined() bool {
	return t != TickUndefined
}

// Add keeps undefined ticks undefined.
func (t Tick) Add(d Tick) Tick {
	if t == TickUndefined {
		return TickUndefined
	}
	return t + d
}

// Expired returns a tick that is already in the past relative to now.
func Expired(now Tick) Tick {
	return now - 1
}

// LargeUndefLess compares a < b where undefined is +inf.
func LargeUndefLess(a, b Tick) bool {
	if a == TickUndefined {
		return false
	}
	if b == TickUndefined {
		return true
	}
	return a < b
}

// LargeUndefLessEq compares a <= b where undefined is +inf.
func LargeUndefLessEq(a, b Tick) bool {
	return !LargeUndefLess(b, a)
}

// SmallUndefLess compares a < b where undefined is -inf.
func SmallUndefLess(a, b Tick) bool {
	if b == TickUndefined {
		return false
	}
	if a == TickUndefined {
		return true
	}
	return a < b
}

// MinTick returns the earlier of the two, undefined being +inf.
func MinTick(a, b Tick) Tick {
	if LargeUndefLess(b, a) {
		return b
	}
	return a
}

// WakeupCondition holds the two deadlines an engine asks for: Hard, where
// it must run without a buffer, and Soft, where it wants a transmit buffer.
type WakeupCondition struct {
	Hard Tick
	Soft Tick
}

func NoWakeup() WakeupCondition {
	return WakeupCondition{Hard: TickUndefined, Soft: TickUndefined}
}

func (w *WakeupCondition) Update(o WakeupCondition) {
	w.Hard = MinTick(w.Hard, o.Hard)
	w.Soft = MinTick(w.Soft, o.Soft)
}
