package sim

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/encodeous/opera/state"
	"github.com/goccy/go-yaml"
	"github.com/samber/lo"
)

// NodeSpec is one simulated node. Unset fields take the topology defaults.
type NodeSpec struct {
	Id          state.NodeId   `yaml:"id"`
	Root        state.RootRole `yaml:"root,omitempty"`
	EnergyClass uint8          `yaml:"energy_class,omitempty"`
	Preset      string         `yaml:"preset,omitempty"`
}

// LinkSpec overrides the quality of the link between two nodes.
type LinkSpec struct {
	From   state.NodeId `yaml:"from"`
	To     state.NodeId `yaml:"to"`
	Power  *uint8       `yaml:"power,omitempty"`
	Loss   *float64     `yaml:"loss,omitempty"`
	OneWay bool         `yaml:"one_way,omitempty"`
}

// Topology is the content of topology.yaml.
type Topology struct {
	Preset string     `yaml:"preset,omitempty"`
	Seed   uint64     `yaml:"seed,omitempty"`
	Power  uint8      `yaml:"power,omitempty"`
	Loss   float64    `yaml:"loss,omitempty"`
	Nodes  []NodeSpec `yaml:"nodes"`
	Graph  []string   `yaml:"graph"`
	Links  []LinkSpec `yaml:"links,omitempty"`
}

const DefaultPower = 255

func LoadTopology(path string) (*Topology, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTopology(file)
}

func ParseTopology(data []byte) (*Topology, error) {
	t := &Topology{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	if t.Preset == "" {
		t.Preset = "ocari"
	}
	if t.Power == 0 {
		t.Power = DefaultPower
	}
	if t.Seed == 0 {
		t.Seed = 1
	}
	return t, t.Validate()
}

func (t *Topology) ids() []state.NodeId {
	return lo.Map(t.Nodes, func(n NodeSpec, _ int) state.NodeId { return n.Id })
}

func (t *Topology) Validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("topology has no nodes")
	}
	if dup := lo.FindDuplicates(t.ids()); len(dup) > 0 {
		return fmt.Errorf("duplicate nodes: %v", dup)
	}
	for _, n := range t.Nodes {
		if err := state.AddressValidator(n.Id); err != nil {
			return err
		}
	}
	if t.Loss < 0 || t.Loss >= 1 {
		return fmt.Errorf("loss %v must be in [0, 1)", t.Loss)
	}
	for _, l := range t.Links {
		if !lo.Contains(t.ids(), l.From) || !lo.Contains(t.ids(), l.To) {
			return fmt.Errorf("link %s-%s references an unknown node", l.From, l.To)
		}
		if l.Loss != nil && (*l.Loss < 0 || *l.Loss > 1) {
			return fmt.Errorf("link %s-%s: loss %v must be in [0, 1]", l.From, l.To, *l.Loss)
		}
	}
	_, err := ParseGraph(t.Graph, t.ids())
	return err
}

// NodeConfig returns the expanded configuration of a simulated node.
func (t *Topology) NodeConfig(n NodeSpec) (state.NodeCfg, error) {
	cfg := state.NodeCfg{
		Id:          n.Id,
		Preset:      lo.Ternary(n.Preset != "", n.Preset, t.Preset),
		Root:        n.Root,
		EnergyClass: n.EnergyClass,
	}
	state.ExpandConfig(&cfg)
	if err := state.NodeConfigValidator(&cfg); err != nil {
		return cfg, fmt.Errorf("node %s: %w", n.Id, err)
	}
	return cfg, nil
}

// Build creates the network described by the topology. Roots are started
// immediately.
func (t *Topology) Build(logger *slog.Logger) (*Network, error) {
	edges, err := ParseGraph(t.Graph, t.ids())
	if err != nil {
		return nil, err
	}
	net := NewNetwork(logger, t.Seed)
	for _, spec := range t.Nodes {
		cfg, err := t.NodeConfig(spec)
		if err != nil {
			return nil, err
		}
		node := net.AddNode(spec.Id, cfg.Protocol())
		if cfg.Root != state.RootNone {
			if err := node.Opera.StartEostc(cfg.Root == state.RootColored); err != nil {
				return nil, fmt.Errorf("node %s: %w", spec.Id, err)
			}
		}
	}
	def := Link{Power: t.Power, Loss: t.Loss}
	for _, e := range edges {
		net.Connect(e.V1, e.V2, def)
	}
	for _, l := range t.Links {
		link := def
		if cur, ok := net.LinkOf(l.From, l.To); ok {
			link = cur
		}
		if l.Power != nil {
			link.Power = *l.Power
		}
		if l.Loss != nil {
			link.Loss = *l.Loss
		}
		if l.OneWay {
			net.ConnectDirected(l.From, l.To, link)
		} else {
			net.Connect(l.From, l.To, link)
		}
	}
	return net, nil
}
