package main

import (
	"context"
	"os"

	"github.com/deemkeen/fedwire/cli"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("fedwire: command failed")
		os.Exit(1)
	}
}
