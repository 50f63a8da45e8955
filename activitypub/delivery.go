package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/deemkeen/fedwire/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// InboxDiscoverer resolves a target URI to its inbox.
type InboxDiscoverer interface {
	DiscoverInbox(ctx context.Context, target string) (string, error)
}

// Dispatcher delivers one activity to many targets concurrently. Each target
// fails on its own; nothing a target does cancels its siblings.
type Dispatcher struct {
	discoverer  InboxDiscoverer
	fetcher     *Fetcher
	signer      *Signer
	concurrency int
}

// NewDispatcher returns a Dispatcher. signer may be nil for unsigned POSTs.
// A concurrency of zero or less starts every target at once.
func NewDispatcher(discoverer InboxDiscoverer, fetcher *Fetcher, signer *Signer, concurrency int) *Dispatcher {
	return &Dispatcher{
		discoverer:  discoverer,
		fetcher:     fetcher,
		signer:      signer,
		concurrency: concurrency,
	}
}

// DeliverToAll POSTs activity to the inbox of every target. The report is
// always returned; the error is a *SomeDeliveriesFailedError when any target
// failed. The public collection counts as delivered and is never fetched.
func (d *Dispatcher) DeliverToAll(ctx context.Context, activity Object, targets []string, allowLocalhost bool) (*domain.DeliveryReport, error) {
	body, err := json.Marshal(activity)
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		delivered []string
		failures  []domain.DeliveryFailure
	)
	record := func(target string, failure *domain.DeliveryFailure) {
		mu.Lock()
		defer mu.Unlock()
		if failure != nil {
			failures = append(failures, *failure)
			return
		}
		delivered = append(delivered, target)
	}

	var g errgroup.Group
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}
	seen := map[string]bool{}
	for _, target := range targets {
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true
		if IsPublic(target) {
			record(target, nil)
			continue
		}
		g.Go(func() error {
			record(target, d.deliverOne(ctx, target, body, allowLocalhost))
			return nil
		})
	}
	g.Wait()

	sort.Strings(delivered)
	sort.Slice(failures, func(i, j int) bool { return failures[i].Target < failures[j].Target })
	report := domain.NewDeliveryReport(delivered, failures)

	log.Info().Int("delivered", len(report.Delivered)).Int("failed", len(report.Failures)).
		Str("activity", ID(activity)).Msg("Delivery: batch complete")
	if report.HasFailures() {
		return report, &SomeDeliveriesFailedError{Report: report}
	}
	return report, nil
}

// deliverOne returns nil on success.
func (d *Dispatcher) deliverOne(ctx context.Context, target string, body []byte, allowLocalhost bool) *domain.DeliveryFailure {
	inbox, err := d.discoverer.DiscoverInbox(ctx, target)
	if err != nil {
		failure := &domain.DeliveryFailure{Target: target, Kind: domain.InboxDiscoveryFailed, Message: err.Error()}
		var ferr *FederationError
		if errors.As(err, &ferr) {
			failure.Kind = ferr.Kind
			failure.StatusCode = ferr.StatusCode
			failure.Body = ferr.Body
		}
		log.Warn().Err(err).Str("target", target).Msg("Delivery: inbox discovery failed")
		return failure
	}

	if !allowLocalhost && isLocalhost(inbox) {
		log.Warn().Str("target", target).Str("inbox", inbox).Msg("Delivery: refusing localhost inbox")
		return &domain.DeliveryFailure{
			Target:  target,
			Inbox:   inbox,
			Kind:    domain.PolicyBlocked,
			Message: "will not deliver to localhost",
		}
	}

	var sign func(*http.Request, []byte) error
	if d.signer != nil {
		sign = d.signer.Sign
	}
	resp, err := d.fetcher.Post(ctx, inbox, ContentTypeLD, body, sign)
	if err != nil {
		log.Warn().Err(err).Str("inbox", inbox).Msg("Delivery: POST failed")
		return &domain.DeliveryFailure{
			Target:  target,
			Inbox:   inbox,
			Kind:    domain.DeliveryRequestFailed,
			Message: err.Error(),
		}
	}
	if !resp.OK() {
		log.Warn().Int("status", resp.StatusCode).Str("inbox", inbox).Msg("Delivery: inbox rejected activity")
		return &domain.DeliveryFailure{
			Target:     target,
			Inbox:      inbox,
			Kind:       domain.DeliveryErrorResponse,
			Message:    "inbox responded with an error",
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	log.Debug().Str("target", target).Str("inbox", inbox).Msg("Delivery: delivered")
	return nil
}

// isLocalhost matches the localhost name and its subdomains. Loopback
// addresses given as IPs are not matched.
func isLocalhost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	return host == "localhost" || strings.HasSuffix(host, ".localhost")
}
