// Package cli holds the fedwire command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/deemkeen/fedwire/util"
	"github.com/spf13/cobra"
)

// RootOptions holds state shared by every command.
type RootOptions struct {
	LogLevel string
	Conf     *util.AppConfig

	// loadConf is replaced in tests.
	loadConf func() (*util.AppConfig, error)
}

// NewRootCommand builds the command tree. Without a subcommand it serves.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{loadConf: util.ReadConf})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           util.Name,
		Short:         "ActivityPub federation engine",
		Long:          "Resolves audiences, discovers inboxes and delivers activities to the fediverse.",
		Version:       util.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.loadConf()
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}
			level := conf.Conf.LogLevel
			if opts.LogLevel != "" {
				level = opts.LogLevel
			}
			util.SetupLogging(level, conf.Conf.LogPretty)
			opts.Conf = conf
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAudienceCommand(opts))
	cmd.AddCommand(NewDiscoverCommand(opts))
	cmd.AddCommand(NewDeliverCommand(opts))
	cmd.AddCommand(NewKeygenCommand(opts))

	return cmd
}

// readActivity loads a JSON object from path, or stdin when path is "-" or empty.
func readActivity(cmd *cobra.Command, path string) (activitypub.Object, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var activity activitypub.Object
	if err := json.NewDecoder(r).Decode(&activity); err != nil {
		return nil, fmt.Errorf("%w: %v", activitypub.ErrMalformedActivity, err)
	}
	if activity == nil {
		return nil, fmt.Errorf("%w: not a JSON object", activitypub.ErrMalformedActivity)
	}
	return activity, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadSigner returns the actor key signer, creating the key on first use.
func loadSigner(conf *util.AppConfig) (*activitypub.Signer, *util.RsaKeyPair, error) {
	pair, err := util.LoadOrCreateKeypair(util.KeyPath(conf))
	if err != nil {
		return nil, nil, err
	}
	signer, err := activitypub.NewSigner(pair.Private, conf.BaseURL()+"/actor#main-key")
	if err != nil {
		return nil, nil, err
	}
	return signer, pair, nil
}
