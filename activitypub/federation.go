package activitypub

import (
	"github.com/deemkeen/fedwire/util"
)

// Federation bundles the outbound components built from one configuration.
type Federation struct {
	Fetcher    *Fetcher
	Loader     *ResourceLoader
	Resolver   *Resolver
	Dispatcher *Dispatcher
}

// NewFederation wires fetcher, parser, resolver and dispatcher. signer may be
// nil, in which case deliveries are unsigned.
func NewFederation(conf *util.AppConfig, signer *Signer) (*Federation, error) {
	fetcher := NewFetcher(conf.HttpTimeout(), conf.Federation.MaxRedirects, conf.Federation.UserAgent)
	parser, err := NewParser(fetcher.ContextClient())
	if err != nil {
		return nil, err
	}
	loader := NewResourceLoader(fetcher, parser)
	if !conf.Federation.SignDeliveries {
		signer = nil
	}
	return &Federation{
		Fetcher:    fetcher,
		Loader:     loader,
		Resolver:   NewResolver(loader),
		Dispatcher: NewDispatcher(loader, fetcher, signer, conf.Federation.MaxConcurrentDeliveries),
	}, nil
}
