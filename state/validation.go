package state

import (
	"fmt"
	"net/netip"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"
)

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func BindValidator(s string) error {
	_, err := netip.ParseAddrPort(s)
	return err
}

func GroupValidator(s string) error {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return err
	}
	if !ap.Addr().Is4() || !ap.Addr().IsMulticast() {
		return fmt.Errorf("%s is not an IPv4 multicast group", s)
	}
	return nil
}

func AddressValidator(id NodeId) error {
	if id == Undefined || id == Broadcast {
		return fmt.Errorf("address %s is reserved", id)
	}
	return nil
}

// ProtocolValidator checks the relations between timers that the engines
// rely on.
func ProtocolValidator(p *ProtocolCfg) error {
	if p.TicksPerSecond <= 0 || p.Cref <= 0 {
		return fmt.Errorf("clock resolution must be positive")
	}
	checks := []struct {
		name     string
		interval Tick
		hold     Tick
		jitter   Tick
	}{
		{"hello", p.Eond.HelloInterval, p.Eond.HoldTime, p.Eond.Jitter},
		{"stc", p.Eostc.StcInterval, p.Eostc.TreeHoldTime, p.Eostc.Jitter},
		{"color", p.Serena.ColorInterval, p.Serena.ColorInterval, p.Serena.Jitter},
	}
	for _, c := range checks {
		if c.interval <= 0 {
			return fmt.Errorf("%s interval must be at least one tick", c.name)
		}
		if c.hold < c.interval {
			return fmt.Errorf("%s hold time %d is shorter than its interval %d", c.name, c.hold, c.interval)
		}
		if c.jitter < 0 || (c.jitter > 0 && c.jitter >= c.interval) {
			return fmt.Errorf("%s jitter %d must be smaller than the interval %d", c.name, c.jitter, c.interval)
		}
	}
	if p.Eostc.StabilityTime < 0 {
		return fmt.Errorf("stability time must not be negative")
	}
	if !slices.Contains([]PriorityMode{PriorityTree, PriorityFixed, Priority2Hop}, p.Serena.PriorityMode) {
		return fmt.Errorf("unknown priority mode %q", p.Serena.PriorityMode)
	}
	if p.Serena.FixedPriority == PriorityNone {
		return fmt.Errorf("fixed priority must be at least 1")
	}
	if !p.Serena.LongPriority && p.Serena.FixedPriority > 0xff {
		return fmt.Errorf("fixed priority %d does not fit in a byte, enable long_priority", p.Serena.FixedPriority)
	}
	if p.EnergyClass >= EnergyClassNb {
		return fmt.Errorf("energy class %d out of range [0, %d)", p.EnergyClass, EnergyClassNb)
	}
	if p.TransmitRateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if p.Eond.PwrLow > p.Eond.PwrHigh {
		return fmt.Errorf("pwr_low %d is above pwr_high %d", p.Eond.PwrLow, p.Eond.PwrHigh)
	}
	return nil
}

func NodeConfigValidator(cfg *NodeCfg) error {
	if err := AddressValidator(cfg.Id); err != nil {
		return err
	}
	if !slices.Contains(PresetNames(), cfg.Preset) {
		return fmt.Errorf("unknown preset %q, expected one of %v", cfg.Preset, PresetNames())
	}
	if cfg.Clock != ClockTime && cfg.Clock != ClockCycle {
		return fmt.Errorf("unknown clock %q", cfg.Clock)
	}
	if cfg.Clock == ClockCycle && cfg.CycleLength < time.Millisecond {
		return fmt.Errorf("cycle_length %s is too short", cfg.CycleLength)
	}
	if !slices.Contains([]RootRole{RootNone, RootPlain, RootColored}, cfg.Root) {
		return fmt.Errorf("unknown root role %q", cfg.Root)
	}
	if cfg.Root == RootColored && cfg.PlainTrees {
		return fmt.Errorf("colored root requested but colored trees are disabled")
	}
	if err := GroupValidator(cfg.Transport.Group); err != nil {
		return fmt.Errorf("transport.group: %w", err)
	}
	if err := BindValidator(cfg.Control); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return fmt.Errorf("log_path: %w", err)
		}
	}
	p := cfg.Protocol()
	return ProtocolValidator(&p)
}
