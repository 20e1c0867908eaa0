package main

import (
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Call a method and print the device's result",
		Example: `  devrpc call turnOnLed '{"on":true}' -u u1 -d d1
  DEVRPC_TRANSPORT=redis devrpc call getSensors --broker-url redis://localhost:6379/0 -u u1 -d d1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return errors.Trace(err)
			}
			c, err := a.dialClient(cmd.Context())
			if err != nil {
				return errors.Trace(err)
			}
			defer c.Disconnect(false)

			resp, err := c.Call(cmd.Context(), args[0], params)
			if err != nil {
				a.logger.Error("rpc call failed", zap.String("method", args[0]), zap.Error(err))
				return errors.Trace(err)
			}
			return printJSON(cmd, resp.Result)
		},
	}
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return errors.Annotate(err, "decode result")
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return errors.Trace(err)
}
