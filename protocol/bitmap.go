package protocol

import (
	"math/bits"

	"github.com/encodeous/opera/state"
)

// Bitmap is a set of colors in [0, NbColorMax).
type Bitmap [state.BitmapSize]byte

func (b *Bitmap) Set(c int) {
	if c >= 0 && c < state.NbColorMax {
		b[c/8] |= 1 << (c % 8)
	}
}

func (b *Bitmap) Clear(c int) {
	if c >= 0 && c < state.NbColorMax {
		b[c/8] &^= 1 << (c % 8)
	}
}

func (b *Bitmap) Has(c int) bool {
	return c >= 0 && c < state.NbColorMax && b[c/8]&(1<<(c%8)) != 0
}

func (b Bitmap) Union(o Bitmap) Bitmap {
	for i := range b {
		b[i] |= o[i]
	}
	return b
}

// Difference returns b minus o.
func (b Bitmap) Difference(o Bitmap) Bitmap {
	for i := range b {
		b[i] &^= o[i]
	}
	return b
}

// FirstClear returns the lowest color >= from that is not in the set, or -1.
func (b *Bitmap) FirstClear(from int) int {
	for c := max(from, 0); c < state.NbColorMax; c++ {
		if !b.Has(c) {
			return c
		}
	}
	return -1
}

// Colors lists the members in increasing order.
func (b *Bitmap) Colors() []int {
	var res []int
	for i, v := range b {
		for v != 0 {
			j := bits.TrailingZeros8(v)
			res = append(res, i*8+j)
			v &^= 1 << j
		}
	}
	return res
}

// size is the encoded length with trailing zero bytes trimmed.
func (b *Bitmap) size() int {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return n
}

func (b *Bitmap) encode(w *Writer) {
	n := b.size()
	w.U8(uint8(n))
	w.Data(b[:n])
}

func (b *Bitmap) decode(r *Reader) bool {
	*b = Bitmap{}
	n := int(r.U8())
	if n > len(b) {
		return false
	}
	copy(b[:], r.Data(n))
	return true
}
