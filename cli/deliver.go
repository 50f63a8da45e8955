package cli

import (
	"errors"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/spf13/cobra"
)

// NewDeliverCommand posts an activity to explicit targets and prints the report.
func NewDeliverCommand(opts *RootOptions) *cobra.Command {
	var allowLocalhost, unsigned bool

	cmd := &cobra.Command{
		Use:   "deliver <file|-> <target>...",
		Short: "Deliver an activity to the given targets",
		Long: `Deliver an activity to the given targets and print the delivery report.

The command exits non-zero when any target failed; the report is printed
either way.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			activity, err := readActivity(cmd, args[0])
			if err != nil {
				return err
			}

			var signer *activitypub.Signer
			if !unsigned {
				if signer, _, err = loadSigner(opts.Conf); err != nil {
					return err
				}
			}
			fed, err := activitypub.NewFederation(opts.Conf, signer)
			if err != nil {
				return err
			}

			allow := allowLocalhost || opts.Conf.Federation.AllowLocalhost
			report, err := fed.Dispatcher.DeliverToAll(cmd.Context(), activity, args[1:], allow)
			if report != nil {
				if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
					return werr
				}
			}
			var partial *activitypub.SomeDeliveriesFailedError
			if errors.As(err, &partial) {
				return partial
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&allowLocalhost, "allow-localhost", false, "permit delivery to localhost targets")
	cmd.Flags().BoolVar(&unsigned, "unsigned", false, "send without an HTTP signature")

	return cmd
}
