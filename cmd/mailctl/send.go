package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailarchive/backend/internal/app"
	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/service"
)

func newSendCmd(c *cli) *cobra.Command {
	var (
		sender domain.Sender
		req    service.OutboundRequest
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message through the configured relay and archive the sent copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			r, err := app.NewRelay(ctx, c.cfg.Relay)
			if err != nil {
				return err
			}

			comps, err := c.components(ctx)
			if err != nil {
				return err
			}
			defer comps.Close()

			msg, err := comps.Dispatcher(r).Send(ctx, sender, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s (transport id %s)\n", msg.ID, msg.TransportID())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&sender.Address, "from", "", "Sender address")
	flags.StringVar(&sender.Name, "from-name", "", "Sender display name")
	flags.StringVar(&req.To, "to", "", "Recipient address")
	flags.StringVar(&req.Subject, "subject", "", "Subject")
	flags.StringVar(&req.Text, "text", "", "Plain text body")
	flags.StringVar(&req.HTML, "html", "", "HTML body")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
