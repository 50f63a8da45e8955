package cli

import (
	"github.com/deemkeen/fedwire/activitypub"
	"github.com/spf13/cobra"
)

type audienceOptions struct {
	depth            int
	fetchRelated     bool
	relatedDepth     int
	relatedTargeting bool
	address          bool
}

// NewAudienceCommand prints the audience of an activity read from a file or stdin.
func NewAudienceCommand(opts *RootOptions) *cobra.Command {
	aopts := &audienceOptions{}

	cmd := &cobra.Command{
		Use:   "audience [file|-]",
		Short: "Resolve the audience of an activity",
		Long: `Resolve the audience of an activity read from a file or stdin.

With --address the activity is printed with the resolved audience appended
to its cc instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			activity, err := readActivity(cmd, path)
			if err != nil {
				return err
			}

			ropts := activitypub.ResolveOptionsFromConfig(opts.Conf)
			flags := cmd.Flags()
			if flags.Changed("depth") {
				ropts.MaxDepth = aopts.depth
			}
			if flags.Changed("fetch") {
				ropts.FetchRelated = aopts.fetchRelated
			}
			if flags.Changed("related-depth") {
				ropts.RelatedFetchDepth = aopts.relatedDepth
			}
			if flags.Changed("related-targeting") {
				ropts.RelatedTargeting = aopts.relatedTargeting
			}

			var fetcher activitypub.ObjectFetcher
			if ropts.FetchRelated {
				fed, err := activitypub.NewFederation(opts.Conf, nil)
				if err != nil {
					return err
				}
				fetcher = fed.Loader
			}
			resolver := activitypub.NewResolver(fetcher)

			if aopts.address {
				return writeJSON(cmd.OutOrStdout(), resolver.ClientAddress(cmd.Context(), activity, ropts))
			}
			audience := resolver.ResolveAudience(cmd.Context(), activity, ropts)
			if audience == nil {
				audience = []string{}
			}
			return writeJSON(cmd.OutOrStdout(), audience)
		},
	}

	cmd.Flags().IntVar(&aopts.depth, "depth", 1, "how many levels of embedded nodes to walk")
	cmd.Flags().BoolVar(&aopts.fetchRelated, "fetch", false, "dereference related nodes given by URI")
	cmd.Flags().IntVar(&aopts.relatedDepth, "related-depth", -1, "fetch budget for related nodes, negative means --depth")
	cmd.Flags().BoolVar(&aopts.relatedTargeting, "related-targeting", true, "include the targeting fields of related nodes")
	cmd.Flags().BoolVar(&aopts.address, "address", false, "print the activity with the audience added to cc")

	return cmd
}
