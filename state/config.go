package state

import (
	"time"
)

type PriorityMode string

const (
	PriorityTree  PriorityMode = "tree"  // descendant count in the colored tree
	PriorityFixed PriorityMode = "fixed" // FixedPriority
	Priority2Hop  PriorityMode = "2hop"  // 1-hop + estimated 2-hop neighbor count
)

type ClockMode string

const (
	// ClockTime drives the protocol from wall-clock milliseconds.
	ClockTime ClockMode = "time"
	// ClockCycle advances the protocol by one tick per MAC cycle.
	ClockCycle ClockMode = "cycle"
)

type RootRole string

const (
	RootNone    RootRole = ""
	RootPlain   RootRole = "plain"
	RootColored RootRole = "colored"
)

type EondCfg struct {
	HelloInterval Tick
	HoldTime      Tick
	Jitter        Tick
	// a new neighbor needs at least PwrHigh, a known one is dropped below PwrLow
	PwrLow  uint8
	PwrHigh uint8
	// neighbor state only regresses during an expiration sweep
	DelayedUpdate bool
	// start with a small neighbor table and double it up to MaxNeighbor
	Elastic bool
}

type EostcCfg struct {
	StcInterval   Tick
	TreeHoldTime  Tick
	StabilityTime Tick
	Jitter        Tick
	Colored       bool
}

type SerenaCfg struct {
	ColorInterval Tick
	Jitter        Tick
	PriorityMode  PriorityMode
	FixedPriority uint32
	// priorities are sent as u32 instead of u8
	LongPriority bool
	// a Color message for the current colored tree starts coloring
	StartOnColor bool
	SoftStop     bool
}

// ProtocolCfg is the engine configuration, expressed in ticks.
type ProtocolCfg struct {
	TicksPerSecond    Tick
	Cref              Tick
	Eond              EondCfg
	Eostc             EostcCfg
	Serena            SerenaCfg
	EondStartDelay    Tick
	EostcStartDelay   Tick
	TransmitRateLimit int
	EnergyClass       uint8
}

// DefaultProtocolCfg returns the default parameters for a wall-clock driven
// node with the given resolution.
func DefaultProtocolCfg(ticksPerSecond Tick) ProtocolCfg {
	ms := func(v int64) Tick {
		return Tick(v) * ticksPerSecond / 1000
	}
	return ProtocolCfg{
		TicksPerSecond: ticksPerSecond,
		Cref:           max(ticksPerSecond/16, 1),
		Eond: EondCfg{
			HelloInterval: ms(2000),
			HoldTime:      ms(7000),
			Jitter:        ms(500),
			DelayedUpdate: true,
		},
		Eostc: EostcCfg{
			StcInterval:   ms(5000),
			TreeHoldTime:  ms(17500),
			StabilityTime: ms(20000),
			Jitter:        ms(500),
			Colored:       true,
		},
		Serena: SerenaCfg{
			ColorInterval: ms(2000),
			Jitter:        ms(500),
			PriorityMode:  PriorityTree,
			FixedPriority: 1,
			StartOnColor:  true,
		},
	}
}

// TimingCfg holds the YAML-facing durations. Zero values take the preset.
type TimingCfg struct {
	HelloInterval   time.Duration `yaml:"hello_interval,omitempty"`
	HoldTime        time.Duration `yaml:"hold_time,omitempty"`
	StcInterval     time.Duration `yaml:"stc_interval,omitempty"`
	TreeHoldTime    time.Duration `yaml:"tree_hold_time,omitempty"`
	StabilityTime   time.Duration `yaml:"stability_time,omitempty"`
	ColorInterval   time.Duration `yaml:"color_interval,omitempty"`
	Jitter          time.Duration `yaml:"jitter,omitempty"`
	EondStartDelay  time.Duration `yaml:"eond_start_delay,omitempty"`
	EostcStartDelay time.Duration `yaml:"eostc_start_delay,omitempty"`
}

type TransportCfg struct {
	Group     string `yaml:"group,omitempty"`     // multicast group:port
	Interface string `yaml:"interface,omitempty"` // empty = system default
	Power     uint8  `yaml:"power,omitempty"`     // reported receive power for every frame
	// deliver our own datagrams back, needed to run several nodes on one host
	Loopback bool `yaml:"loopback,omitempty"`
}

// NodeCfg represents local node-level configuration (node.yaml)
type NodeCfg struct {
	Id            NodeId        `yaml:"id"`
	Preset        string        `yaml:"preset,omitempty"`
	Clock         ClockMode     `yaml:"clock,omitempty"`
	CycleLength   time.Duration `yaml:"cycle_length,omitempty"`
	Root          RootRole      `yaml:"root,omitempty"`
	Timing        TimingCfg     `yaml:"timing,omitempty"`
	PwrLow        uint8         `yaml:"pwr_low,omitempty"`
	PwrHigh       uint8         `yaml:"pwr_high,omitempty"`
	EnergyClass   uint8         `yaml:"energy_class,omitempty"`
	RateLimit     int           `yaml:"rate_limit,omitempty"`
	PriorityMode  PriorityMode  `yaml:"priority_mode,omitempty"`
	FixedPriority uint32        `yaml:"fixed_priority,omitempty"`
	LongPriority  bool          `yaml:"long_priority,omitempty"`
	SoftStop      bool          `yaml:"soft_stop,omitempty"`
	Elastic       bool          `yaml:"elastic_table,omitempty"`
	DelayedUpdate *bool         `yaml:"delayed_update,omitempty"`
	StartOnColor  *bool         `yaml:"start_on_color,omitempty"`
	PlainTrees    bool          `yaml:"plain_trees_only,omitempty"`
	Transport     TransportCfg  `yaml:"transport,omitempty"`
	Control       string        `yaml:"control,omitempty"`  // control socket bind address
	LogPath       string        `yaml:"log_path,omitempty"` // if not empty, opera will also write to this file
}

const (
	DefaultGroup   = "239.77.80.82:7575"
	DefaultControl = "127.0.0.1:7576"
	DefaultCycle   = 100 * time.Millisecond
)

type preset struct {
	clock     ClockMode
	timing    TimingCfg
	rateLimit int
}

// presets are expressed in ticks of their clock; cycle presets are scaled by
// the cycle length in ExpandConfig.
var presets = map[string]preset{
	"default": {
		clock: ClockTime,
		timing: TimingCfg{
			HelloInterval: 2 * time.Second,
			HoldTime:      7 * time.Second,
			StcInterval:   5 * time.Second,
			TreeHoldTime:  17500 * time.Millisecond,
			StabilityTime: 20 * time.Second,
			ColorInterval: 2 * time.Second,
			Jitter:        500 * time.Millisecond,
		},
	},
	"ocari": {
		clock: ClockCycle,
		timing: TimingCfg{
			HelloInterval: 5,
			HoldTime:      17,
			StcInterval:   5,
			TreeHoldTime:  17,
			StabilityTime: 20,
			ColorInterval: 5,
		},
		rateLimit: 1,
	},
}

func PresetNames() []string {
	return []string{"default", "ocari"}
}

// ExpandConfig fills every unset field from the selected preset.
func ExpandConfig(cfg *NodeCfg) {
	if cfg.Preset == "" {
		cfg.Preset = "default"
	}
	p, ok := presets[cfg.Preset]
	if !ok {
		return // rejected by the validator
	}
	if cfg.Clock == "" {
		cfg.Clock = p.clock
	}
	if (cfg.Clock == ClockCycle || p.clock == ClockCycle) && cfg.CycleLength == 0 {
		cfg.CycleLength = DefaultCycle
	}
	scale := time.Duration(1)
	if p.clock == ClockCycle {
		scale = cfg.CycleLength
	}
	fill := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v * scale
		}
	}
	t := &cfg.Timing
	fill(&t.HelloInterval, p.timing.HelloInterval)
	fill(&t.HoldTime, p.timing.HoldTime)
	fill(&t.StcInterval, p.timing.StcInterval)
	fill(&t.TreeHoldTime, p.timing.TreeHoldTime)
	fill(&t.StabilityTime, p.timing.StabilityTime)
	fill(&t.ColorInterval, p.timing.ColorInterval)
	fill(&t.Jitter, p.timing.Jitter)
	if cfg.RateLimit == 0 {
		cfg.RateLimit = p.rateLimit
	}
	if cfg.PriorityMode == "" {
		cfg.PriorityMode = PriorityTree
	}
	if cfg.FixedPriority == 0 {
		cfg.FixedPriority = 1
	}
	if cfg.Transport.Group == "" {
		cfg.Transport.Group = DefaultGroup
	}
	if cfg.Transport.Power == 0 {
		cfg.Transport.Power = 0xff
	}
	if cfg.Control == "" {
		cfg.Control = DefaultControl
	}
}

// TickLength is the wall-clock duration of one protocol tick.
func (cfg *NodeCfg) TickLength() time.Duration {
	if cfg.Clock == ClockCycle {
		if cfg.CycleLength <= 0 {
			return DefaultCycle
		}
		return cfg.CycleLength
	}
	return time.Millisecond
}

func (cfg *NodeCfg) Ticks(d time.Duration) Tick {
	return Tick(d / cfg.TickLength())
}

// Protocol converts the node configuration into engine parameters.
func (cfg *NodeCfg) Protocol() ProtocolCfg {
	p := DefaultProtocolCfg(Tick(time.Second / cfg.TickLength()))
	if cfg.Clock == ClockCycle {
		p.Cref = 16
	}
	t := cfg.Timing
	p.Eond.HelloInterval = cfg.Ticks(t.HelloInterval)
	p.Eond.HoldTime = cfg.Ticks(t.HoldTime)
	p.Eond.Jitter = cfg.Ticks(t.Jitter)
	p.Eond.PwrLow = cfg.PwrLow
	p.Eond.PwrHigh = cfg.PwrHigh
	p.Eond.Elastic = cfg.Elastic
	if cfg.DelayedUpdate != nil {
		p.Eond.DelayedUpdate = *cfg.DelayedUpdate
	}
	p.Eostc.StcInterval = cfg.Ticks(t.StcInterval)
	p.Eostc.TreeHoldTime = cfg.Ticks(t.TreeHoldTime)
	p.Eostc.StabilityTime = cfg.Ticks(t.StabilityTime)
	p.Eostc.Jitter = cfg.Ticks(t.Jitter)
	p.Eostc.Colored = !cfg.PlainTrees
	p.Serena.ColorInterval = cfg.Ticks(t.ColorInterval)
	p.Serena.Jitter = cfg.Ticks(t.Jitter)
	p.Serena.PriorityMode = cfg.PriorityMode
	p.Serena.FixedPriority = cfg.FixedPriority
	p.Serena.LongPriority = cfg.LongPriority
	p.Serena.SoftStop = cfg.SoftStop
	if cfg.StartOnColor != nil {
		p.Serena.StartOnColor = *cfg.StartOnColor
	}
	p.EondStartDelay = cfg.Ticks(t.EondStartDelay)
	p.EostcStartDelay = cfg.Ticks(t.EostcStartDelay)
	p.TransmitRateLimit = cfg.RateLimit
	p.EnergyClass = cfg.EnergyClass
	return p
}
