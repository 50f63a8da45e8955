package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/deemkeen/fedwire/db"
	"github.com/deemkeen/fedwire/util"
	"github.com/deemkeen/fedwire/web"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (outbox, inbox, public log)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	conf := opts.Conf
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := db.OpenStores(conf)
	if err != nil {
		return err
	}
	defer stores.Close()

	signer, pair, err := loadSigner(conf)
	if err != nil {
		return err
	}

	fed, err := activitypub.NewFederation(conf, signer)
	if err != nil {
		return err
	}

	outbox := activitypub.NewOutbox(stores.Activities, fed.Resolver, fed.Dispatcher, conf)
	inbox := activitypub.NewInbox(stores.Inbox, activitypub.KeywordFilter(conf.Federation.BlockedWords))

	log.Debug().Msg("Serve: configuration\n" + util.PrettyPrint(conf))
	log.Info().
		Str("storage", conf.Conf.Storage).
		Int("audienceDepth", conf.Federation.AudienceDepth).
		Bool("fetchRelated", conf.Federation.FetchRelated).
		Bool("signDeliveries", conf.Federation.SignDeliveries).
		Bool("verifyInboxSignatures", conf.Federation.VerifyInboxSignatures).
		Msg("Serve: federation configured")

	srv := web.NewServer(conf, outbox, inbox, pair.Public)
	if conf.Federation.VerifyInboxSignatures {
		srv.WithVerifier(activitypub.NewSignatureVerifier(fed.Loader))
	}
	return srv.Run(ctx)
}
