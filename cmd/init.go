package cmd

import (
	"encoding/binary"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/encodeous/opera/sim"
	"github.com/encodeous/opera/state"
	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [id]",
	Short: "Create a node configuration",
	Long:  `Creates node.yaml. Without an id, a random short id is picked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 {
			return cmd.Usage()
		}
		var id state.NodeId
		if len(args) == 1 {
			var err error
			id, err = state.ParseNodeId(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
		} else {
			u := uuid.New()
			id = state.NodeIdFromShort(binary.BigEndian.Uint16(u[:2]) | 1)
		}

		preset, _ := cmd.Flags().GetString("preset")
		root, _ := cmd.Flags().GetString("root")
		nodeCfg := state.NodeCfg{
			Id:     id,
			Preset: preset,
			Root:   state.RootRole(root),
		}
		check := nodeCfg
		state.ExpandConfig(&check)
		if err := state.NodeConfigValidator(&check); err != nil {
			return err
		}

		ncfg, err := yaml.Marshal(&nodeCfg)
		if err != nil {
			return err
		}
		outPath, _ := cmd.Flags().GetString("output")
		if err := os.WriteFile(outPath, ncfg, 0600); err != nil {
			return err
		}
		fmt.Printf("created %s for node %s\n", outPath, id)
		return nil
	},
	GroupID: "init",
}

var topologyCmd = &cobra.Command{
	Use:   "topology [line|star|ring] [nodes]",
	Short: "Create a simulator topology",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return cmd.Usage()
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 2 || n > 0xfffe {
			return fmt.Errorf("invalid node count %q", args[1])
		}
		t, err := generateTopology(args[0], n)
		if err != nil {
			return err
		}
		t.Preset, _ = cmd.Flags().GetString("preset")
		t.Seed, _ = cmd.Flags().GetUint64("seed")
		t.Loss, _ = cmd.Flags().GetFloat64("loss")

		out, err := yaml.Marshal(t)
		if err != nil {
			return err
		}
		outPath, _ := cmd.Flags().GetString("output")
		return os.WriteFile(outPath, out, 0600)
	},
	GroupID: "init",
}

// generateTopology lays out n nodes with ids 1..n. Node 1 is the colored
// root.
func generateTopology(shape string, n int) (*sim.Topology, error) {
	ids := lo.Map(lo.Range(n), func(i int, _ int) state.NodeId {
		return state.NodeIdFromShort(uint16(i + 1))
	})
	names := lo.Map(ids, func(id state.NodeId, _ int) string { return id.String() })
	t := &sim.Topology{
		Nodes: lo.Map(ids, func(id state.NodeId, i int) sim.NodeSpec {
			return sim.NodeSpec{Id: id, Root: lo.Ternary(i == 0, state.RootColored, state.RootNone)}
		}),
	}
	pairs := func(a, b []string) []string {
		return lo.Map(lo.Zip2(a, b), func(p lo.Tuple2[string, string], _ int) string {
			return p.A + ", " + p.B
		})
	}
	switch shape {
	case "line":
		t.Graph = pairs(names[:n-1], names[1:])
	case "ring":
		if n < 3 {
			return nil, fmt.Errorf("a ring needs at least 3 nodes")
		}
		t.Graph = pairs(names, append(slices.Clone(names[1:]), names[0]))
	case "star":
		t.Graph = []string{
			"leaves = " + lo.Reduce(names[2:], func(acc, s string, _ int) string { return acc + ", " + s }, names[1]),
			names[0] + ", leaves",
		}
	default:
		return nil, fmt.Errorf("unknown shape %q", shape)
	}
	return t, nil
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", DefaultNodeConfigPath, "node config output file path")
	newCmd.Flags().StringP("preset", "p", "default", fmt.Sprintf("timing preset %v", state.PresetNames()))
	newCmd.Flags().StringP("root", "r", "", "start a tree from this node: plain or colored")

	rootCmd.AddCommand(topologyCmd)
	topologyCmd.Flags().StringP("output", "o", DefaultTopologyPath, "topology output file path")
	topologyCmd.Flags().StringP("preset", "p", "ocari", "timing preset of every node")
	topologyCmd.Flags().Uint64("seed", 1, "random seed")
	topologyCmd.Flags().Float64("loss", 0, "frame loss probability of every link")
}
