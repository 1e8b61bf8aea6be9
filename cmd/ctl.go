package cmd

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/encodeous/opera/core"
	"github.com/encodeous/opera/node"
	"github.com/encodeous/opera/state"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type argKind int

const (
	argNone argKind = iota
	argU16
	argBool
	argFilter
)

type ctlCommand struct {
	code byte
	arg  argKind
}

var ctlCommands = map[string]ctlCommand{
	"version":               {core.CmdGetVersion, argNone},
	"ping":                  {core.CmdAreYouThere, argNone},
	"reset":                 {core.CmdReset, argNone},
	"set-blocked":           {core.CmdSetBlocked, argBool},
	"get-blocked":           {core.CmdGetBlocked, argNone},
	"set-hello-interval":    {core.CmdSetHelloInterval, argU16},
	"get-hello-interval":    {core.CmdGetHelloInterval, argNone},
	"set-hold-time":         {core.CmdSetHoldTime, argU16},
	"get-hold-time":         {core.CmdGetHoldTime, argNone},
	"set-eond-start-delay":  {core.CmdSetEondStartDelay, argU16},
	"get-eond-start-delay":  {core.CmdGetEondStartDelay, argNone},
	"set-energy-class":      {core.CmdSetEnergyClass, argU16},
	"get-energy-class":      {core.CmdGetEnergyClass, argNone},
	"set-stc-interval":      {core.CmdSetStcInterval, argU16},
	"get-stc-interval":      {core.CmdGetStcInterval, argNone},
	"set-tree-hold-time":    {core.CmdSetTreeHoldTime, argU16},
	"get-tree-hold-time":    {core.CmdGetTreeHoldTime, argNone},
	"set-stability-time":    {core.CmdSetStabilityTime, argU16},
	"get-stability-time":    {core.CmdGetStabilityTime, argNone},
	"start-root":            {core.CmdStartEostcRoot, argU16},
	"stop-root":             {core.CmdStopEostcRoot, argNone},
	"get-root":              {core.CmdGetEostcRoot, argNone},
	"set-eostc-start-delay": {core.CmdSetEostcStartDelay, argU16},
	"get-eostc-start-delay": {core.CmdGetEostcStartDelay, argNone},
	"set-my-tree":           {core.CmdSetMyTree, argU16},
	"get-my-tree":           {core.CmdGetMyTree, argNone},
	"get-tree-seq":          {core.CmdGetTreeSeq, argNone},
	"inc-tree-seq":          {core.CmdIncTreeSeq, argNone},
	"set-color-interval":    {core.CmdSetColorInterval, argU16},
	"get-color-interval":    {core.CmdGetColorInterval, argNone},
	"set-rate-limit":        {core.CmdSetRateLimit, argU16},
	"get-rate-limit":        {core.CmdGetRateLimit, argNone},
	"set-filter":            {core.CmdSetFilter, argFilter},
	"get-filter":            {core.CmdGetFilter, argNone},
}

// ctlPayload builds the request for a named command, or decodes a raw hex
// request.
func ctlPayload(name string, args []string) ([]byte, error) {
	if name == "raw" {
		if len(args) != 1 {
			return nil, fmt.Errorf("raw takes one hex argument")
		}
		return hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
	}
	c, ok := ctlCommands[name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	payload := []byte{c.code}
	switch c.arg {
	case argNone:
		if len(args) != 0 {
			return nil, fmt.Errorf("%s takes no arguments", name)
		}
	case argBool:
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes true or false", name)
		}
		v, err := strconv.ParseBool(args[0])
		if err != nil {
			return nil, err
		}
		payload = append(payload, lo.Ternary[byte](v, 1, 0))
	case argU16:
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes one value", name)
		}
		v, err := strconv.ParseUint(args[0], 0, 16)
		if err != nil {
			return nil, err
		}
		payload = binary.BigEndian.AppendUint16(payload, uint16(v))
	case argFilter:
		if len(args) == 0 {
			return nil, fmt.Errorf("%s takes a mode and addresses", name)
		}
		mode, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil {
			return nil, err
		}
		payload = append(payload, byte(mode))
		for _, a := range args[1:] {
			id, err := state.ParseNodeId(a)
			if err != nil {
				return nil, err
			}
			payload = binary.BigEndian.AppendUint16(payload, id.Short())
		}
	}
	return payload, nil
}

var ctlCmd = &cobra.Command{
	Use:   "ctl [command] [args...]",
	Short: "Send a command to a running node",
	Long: fmt.Sprintf(`Sends one request to the control socket of a running node and prints the
reply. Commands: raw <hex>, %s.`, strings.Join(slices.Sorted(maps.Keys(ctlCommands)), ", ")),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := ctlPayload(args[0], args[1:])
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		code, res, err := node.SendCommand(ctx, addr, payload)
		if err != nil {
			return err
		}
		fmt.Printf("code 0x%02x", code)
		if len(res) == 2 {
			fmt.Printf(" value %d", binary.BigEndian.Uint16(res))
		} else if len(res) > 0 {
			fmt.Printf(" result %x", res)
		}
		fmt.Println()
		return nil
	},
	GroupID: "op",
}

func init() {
	rootCmd.AddCommand(ctlCmd)
	ctlCmd.Flags().StringP("addr", "a", state.DefaultControl, "control socket address")
	ctlCmd.Flags().Duration("timeout", time.Second, "reply timeout")
}
