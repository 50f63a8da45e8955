package cli

import (
	"fmt"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/spf13/cobra"
)

func NewDiscoverCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <uri>",
		Short: "Print the inbox of a remote resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fed, err := activitypub.NewFederation(opts.Conf, nil)
			if err != nil {
				return err
			}
			inbox, err := fed.Loader.DiscoverInbox(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), inbox)
			return err
		},
	}
}
