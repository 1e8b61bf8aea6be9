package core

import "fmt"

type Event int

// trace events

const (
	NeighborStateChanged Event = iota
	TreeDiscovered
	ParentChanged
	ChildAdded
	ChildRemoved
	TreeExpired
	ParentLost
	TopologyChanged
	TreeBecameStable
	TreeSeqAdvanced
	SerenaStarted
	SerenaStopped
	ColorSelected
	ColoringFinished
	MessageSent
	MessageIgnored
	CommandReceived
	EngineReset
)

// warn events

const (
	MalformedMessage Event = iota + 1000
	UnknownMessageType
	UnusedBytes
	NeighborTableFull
	TreeTableFull
	ChildTableFull
	EnergyClassClamped
	ParentSeqnoRegression
	ChildHigherSeqno
	ChildChangedParent
	TTLExhausted
	BufferTooSmall
	GenerateFailed
	UnknownColorNeighbor
	NoTopology
	InconsistentTopology
	UnexpectedNbColor
	UncoloredNeighbor
	ColorOutOfRange
	NoColorAvailable
	SerenaOnRoot
	NotColoredRoot
	NotRoot
)

var eventNames = map[Event]string{
	NeighborStateChanged: "NeighborStateChanged",
	TreeDiscovered:       "TreeDiscovered",
	ParentChanged:        "ParentChanged",
	ChildAdded:           "ChildAdded",
	ChildRemoved:         "ChildRemoved",
	TreeExpired:          "TreeExpired",
	ParentLost:           "ParentLost",
	TopologyChanged:      "TopologyChanged",
	TreeBecameStable:     "TreeBecameStable",
	TreeSeqAdvanced:      "TreeSeqAdvanced",
	SerenaStarted:        "SerenaStarted",
	SerenaStopped:        "SerenaStopped",
	ColorSelected:        "ColorSelected",
	ColoringFinished:     "ColoringFinished",
	MessageSent:          "MessageSent",
	MessageIgnored:       "MessageIgnored",
	CommandReceived:      "CommandReceived",
	EngineReset:          "EngineReset",

	MalformedMessage:      "MalformedMessage",
	UnknownMessageType:    "UnknownMessageType",
	UnusedBytes:           "UnusedBytes",
	NeighborTableFull:     "NeighborTableFull",
	TreeTableFull:         "TreeTableFull",
	ChildTableFull:        "ChildTableFull",
	EnergyClassClamped:    "EnergyClassClamped",
	ParentSeqnoRegression: "ParentSeqnoRegression",
	ChildHigherSeqno:      "ChildHigherSeqno",
	ChildChangedParent:    "ChildChangedParent",
	TTLExhausted:          "TTLExhausted",
	BufferTooSmall:        "BufferTooSmall",
	GenerateFailed:        "GenerateFailed",
	UnknownColorNeighbor:  "UnknownColorNeighbor",
	NoTopology:            "NoTopology",
	InconsistentTopology:  "InconsistentTopology",
	UnexpectedNbColor:     "UnexpectedNbColor",
	UncoloredNeighbor:     "UncoloredNeighbor",
	ColorOutOfRange:       "ColorOutOfRange",
	NoColorAvailable:      "NoColorAvailable",
	SerenaOnRoot:          "SerenaOnRoot",
	NotColoredRoot:        "NotColoredRoot",
	NotRoot:               "NotRoot",
}

func (e Event) String() string {
	if s, ok := eventNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

func (e Event) IsWarning() bool {
	return e >= 1000
}
