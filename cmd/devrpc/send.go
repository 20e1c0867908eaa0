package main

import (
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/mrjvadi/go-device-rpc/methods"
	"github.com/mrjvadi/go-device-rpc/rpc"
)

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <method> [params-json]",
		Short: "Publish a request without waiting for a response",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return errors.Trace(err)
			}
			req, err := rpc.NewRequest(a.cfg.DeviceID, args[0], params, methods.Default.Validate)
			if err != nil {
				return errors.Trace(err)
			}
			c, err := a.dialClient(cmd.Context())
			if err != nil {
				return errors.Trace(err)
			}
			c.SendCommand(req)
			// A graceful disconnect lets the publish flush.
			c.Disconnect(false)
			return nil
		},
	}
}
