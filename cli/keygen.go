package cli

import (
	"fmt"

	"github.com/deemkeen/fedwire/util"
	"github.com/spf13/cobra"
)

func NewKeygenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create the actor key if missing and print its public half",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := util.LoadOrCreateKeypair(util.KeyPath(opts.Conf))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), pair.Public)
			return err
		},
	}
}
