package state

import (
	"slices"
)

type Pair[Ty1, Ty2 any] struct {
	V1 Ty1
	V2 Ty2
}

// Ordered is implemented by values with a total order, such as NodeId.
type Ordered[T any] interface {
	Compare(o T) int
}

// MakeSortedPair puts the smaller value first, so that an undirected pair
// has one representation.
func MakeSortedPair[T Ordered[T]](a, b T) Pair[T, T] {
	if a.Compare(b) <= 0 {
		return Pair[T, T]{a, b}
	}
	return Pair[T, T]{b, a}
}

// SortPairs orders pairs by V1, then V2.
func SortPairs[T1 Ordered[T1], T2 Ordered[T2]](pairs []Pair[T1, T2]) {
	slices.SortFunc(pairs, func(a, b Pair[T1, T2]) int {
		if c := a.V1.Compare(b.V1); c != 0 {
			return c
		}
		return a.V2.Compare(b.V2)
	})
}
