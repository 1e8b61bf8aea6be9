package core

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/opera/state"
	"github.com/stretchr/testify/assert"
)

func TestLogHostLimitsWarnings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := New(state.NewBase(id(1), testCfg(), 1), NewLogHost(logger, time.Hour))
	o.Start()

	for range 3 {
		o.PacketReceived([]byte{'Z', 0}, 255)
	}
	o.PacketReceived([]byte{'Q', 0}, 255)

	assert.Equal(t, uint32(4), o.Diag.Warnings, "every warning is counted")
	assert.Equal(t, 2, strings.Count(buf.String(), "UnknownMessageType"))
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	o.Log(CommandReceived, "command")
	o.Log(CommandReceived, "command")
	assert.Equal(t, 2, strings.Count(buf.String(), "CommandReceived"))
	assert.Contains(t, buf.String(), "level=DEBUG")
}

// heldWarnings counts the keys still stored, expired ones included.
func heldWarnings(h *LogHost) uint64 {
	m := h.seen.Metrics()
	return m.Insertions - m.Evictions
}

func TestLogHostSweep(t *testing.T) {
	h := NewLogHost(slog.New(slog.DiscardHandler), time.Millisecond)
	for seq := range 2000 {
		h.Log(ParentSeqnoRegression, "parent sent an older stc", "seq", seq)
	}
	assert.LessOrEqual(t, heldWarnings(h), uint64(maxWarningKeys))

	time.Sleep(20 * time.Millisecond)
	h.Sweep()
	assert.Zero(t, heldWarnings(h))

	h.Log(ParentSeqnoRegression, "parent sent an older stc", "seq", 1)
	assert.Equal(t, uint64(1), heldWarnings(h))
}

func TestLogHostCapacity(t *testing.T) {
	var buf bytes.Buffer
	h := NewLogHost(slog.New(slog.NewTextHandler(&buf, nil)), time.Hour)
	for addr := range 3 * maxWarningKeys {
		h.Log(UnknownColorNeighbor, "color message from outside the topology", "addr", addr)
	}
	assert.Equal(t, uint64(maxWarningKeys), heldWarnings(h))
	assert.Equal(t, 3*maxWarningKeys, strings.Count(buf.String(), "UnknownColorNeighbor"))
}

func TestNopHost(t *testing.T) {
	o := New(state.NewBase(id(1), testCfg(), 1), nil)
	o.Start()
	o.PacketReceived([]byte{'Z', 0}, 255)
	assert.Equal(t, uint32(1), o.Diag.Warnings)
}

func TestEventNames(t *testing.T) {
	assert.Equal(t, "TreeExpired", TreeExpired.String())
	assert.Equal(t, "NotRoot", NotRoot.String())
	assert.Equal(t, "Event(500)", Event(500).String())
	assert.True(t, MalformedMessage.IsWarning())
	assert.False(t, EngineReset.IsWarning())
	for e := range eventNames {
		assert.NotEmpty(t, e.String())
	}
}
