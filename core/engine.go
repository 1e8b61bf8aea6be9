package core

import (
	"github.com/encodeous/opera/state"
)

// Tristate updates a flag only when it is not Unchanged.
type Tristate int8

const (
	Unchanged Tristate = iota
	Yes
	No
)

func (t Tristate) apply(v *bool) {
	switch t {
	case Yes:
		*v = true
	case No:
		*v = false
	}
}

// notices are raised by one engine and dispatched synchronously by the
// Opera to the others

type notice interface {
	isNotice()
}

type neighborChanged struct {
	addr     state.NodeId
	old, new NeighborState
	index    int
}

type topologyChanged struct {
	tree *Tree
}

// treeChanged reports that addr became (or stopped being) the parent or a
// child of tree
type treeChanged struct {
	tree     *Tree
	addr     state.NodeId
	isParent Tristate
	isChild  Tristate
}

type neighborDisappeared struct {
	addr state.NodeId
}

// treeStable is raised when a non-root node first sees its subtree stable
type treeStable struct {
	tree *Tree
}

// myTreeFlagsChanged is raised at the root of a colored tree
type myTreeFlagsChanged struct {
	tree  *Tree
	flags uint8
}

type serenaStop struct{}

type coloringFinished struct {
	nbColor int
}

func (neighborChanged) isNotice()     {}
func (topologyChanged) isNotice()     {}
func (treeChanged) isNotice()         {}
func (neighborDisappeared) isNotice() {}
func (treeStable) isNotice()          {}
func (myTreeFlagsChanged) isNotice()  {}
func (serenaStop) isNotice()          {}
func (coloringFinished) isNotice()    {}

type engineHost interface {
	Log(event Event, desc string, args ...any)
	notify(n notice)
	treeBeingColored(t *Tree) bool
}

// engine is embedded by the three protocol engines
type engine struct {
	*state.Base
	host engineHost
}

func (e *engine) log(ev Event, desc string, args ...any) {
	e.host.Log(ev, desc, args...)
}

func (e *engine) notify(n notice) {
	e.host.notify(n)
}
