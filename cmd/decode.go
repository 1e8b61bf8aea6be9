package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/encodeous/opera/protocol"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex...]",
	Short: "Decode frames",
	Long:  `Prints the messages of hex encoded frames, one frame per argument or per line of stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		long, _ := cmd.Flags().GetBool("long-priority")
		codec := protocol.ColorCodec{LongPriority: long}
		if len(args) != 0 {
			for _, a := range args {
				if err := decodeLine(codec, a); err != nil {
					return err
				}
			}
			return nil
		}
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) == "" {
				continue
			}
			if err := decodeLine(codec, sc.Text()); err != nil {
				return err
			}
		}
		return sc.Err()
	},
	GroupID: "tools",
}

func decodeLine(codec protocol.ColorCodec, s string) error {
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	buf, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid frame %q: %w", s, err)
	}
	fmt.Println(codec.Dump(buf))
	return nil
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().Bool("long-priority", false, "priorities in Color messages are 32 bits")
}
