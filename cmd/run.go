package cmd

import (
	"log/slog"

	"github.com/encodeous/opera/node"
	"github.com/encodeous/opera/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run opera",
	Long:  `This will run opera on the current host, exchanging frames over UDP multicast on the local link.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opt := node.Options{Level: slog.LevelInfo}
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			opt.Level = slog.LevelDebug
		}
		opt.Timestamps, _ = cmd.Flags().GetBool("timestamps")
		logPath, _ := cmd.Flags().GetString("log")
		return node.Bootstrap(nodeConfigPath, logPath, opt)
	},
	GroupID: "op",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().Bool("timestamps", false, "Prefix log lines with the time")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
	runCmd.Flags().BoolVar(&state.DBG_trace, "trace", false, "Write a runtime trace to trace.out")
	runCmd.Flags().BoolVar(&state.DBG_debug, "pprof", false, "Serve pprof and /debug/metrics on :6060")
	runCmd.Flags().BoolVarP(&state.DBG_log_frames, "lframe", "f", false, "Write every frame to the console")
	runCmd.Flags().BoolVarP(&state.DBG_log_commands, "lcmd", "c", false, "Write control commands to the console")
}
