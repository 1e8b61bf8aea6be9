package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const (
	DefaultNodeConfigPath = "node.yaml"
	DefaultTopologyPath   = "topology.yaml"
)

var nodeConfigPath = DefaultNodeConfigPath

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "opera",
	Short: "Opera wireless mesh control plane",
	Long: `Opera discovers neighbors, builds spanning trees towards strategic nodes and
colors the network so that no two nodes within two hops share a transmission slot.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize Opera",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "op",
		Title: "Opera Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "tools",
		Title: "Tools",
	})
	rootCmd.PersistentFlags().StringVarP(&nodeConfigPath, "node-config", "n", nodeConfigPath, "node-specific config")
}
