package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/encodeous/opera/sim"
	"github.com/encodeous/opera/state"
	"github.com/encodeous/tint"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim [topology.yaml]",
	Short: "Simulate a network",
	Long: `Runs every node of a topology in one process on a shared cycle clock and
prints the trees and colors they converged to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := DefaultTopologyPath
		if len(args) == 1 {
			path = args[0]
		}
		t, err := sim.LoadTopology(path)
		if err != nil {
			return err
		}
		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			CustomPrefix: "sim",
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))
		net, err := t.Build(logger)
		if err != nil {
			return err
		}

		ticks, _ := cmd.Flags().GetUint64("ticks")
		untilColored, _ := cmd.Flags().GetBool("until-colored")
		if untilColored {
			if !net.RunUntil(state.Tick(ticks), net.Colored) {
				logger.Warn("network did not finish coloring", "ticks", ticks)
			}
		} else {
			net.Run(state.Tick(ticks))
		}

		printSummary(t, net)
		if net.Colored() {
			if err := net.CheckColoring(); err != nil {
				return err
			}
		}
		return nil
	},
	GroupID: "tools",
}

func printSummary(t *sim.Topology, net *sim.Network) {
	root, hasRoot := lo.Find(t.Nodes, func(n sim.NodeSpec) bool { return n.Root != state.RootNone })
	colored := root.Root == state.RootColored

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "tick %d, colorings %d\n", net.Now, net.Colorings)
	_, _ = fmt.Fprintln(w, "NODE\tPARENT\tCOLOR\tNEIGHBOR COLORS\tSENT\tRECV\tLOST")
	for _, n := range net.Nodes() {
		parent := "-"
		if hasRoot {
			if n.Id == root.Id {
				parent = "root"
			} else if p, ok := net.Parent(n.Id, root.Id, colored); ok {
				parent = p.String()
			}
		}
		color := "-"
		if n.Color != state.NoColor {
			color = fmt.Sprint(n.Color)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%d\t%d\n", n.Id, parent, color, n.NeighborColors, n.Sent, n.Received, n.Lost)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().Uint64P("ticks", "t", 3000, "number of cycles to simulate")
	simCmd.Flags().BoolP("until-colored", "u", true, "stop once every node has a color")
	simCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}
