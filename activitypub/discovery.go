package activitypub

import (
	"context"
	"strings"

	"github.com/deemkeen/fedwire/domain"
	"github.com/rs/zerolog/log"
	"github.com/tomnomnom/linkheader"
)

// ResourceLoader fetches remote nodes and parses them.
type ResourceLoader struct {
	Fetcher *Fetcher
	Parser  *Parser
}

func NewResourceLoader(fetcher *Fetcher, parser *Parser) *ResourceLoader {
	return &ResourceLoader{Fetcher: fetcher, Parser: parser}
}

// FetchObject GETs uri and parses a 2xx body. Failures are *FederationError.
func (l *ResourceLoader) FetchObject(ctx context.Context, uri string) (Object, error) {
	resp, err := l.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	return l.parse(resp)
}

func (l *ResourceLoader) get(ctx context.Context, uri string) (*Response, error) {
	resp, err := l.Fetcher.Get(ctx, uri)
	if err != nil {
		return nil, &FederationError{Kind: domain.TargetRequestFailed, URL: uri, Err: err}
	}
	if !resp.OK() {
		return nil, &FederationError{
			Kind:       domain.TargetRequestFailed,
			URL:        uri,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}
	return resp, nil
}

func (l *ResourceLoader) parse(resp *Response) (Object, error) {
	obj, err := l.Parser.Parse(resp.Body, resp.Header.Get("Content-Type"), resp.URL)
	if err != nil {
		return nil, &FederationError{Kind: domain.TargetParseFailed, URL: resp.URL, Err: err}
	}
	return obj, nil
}

// DiscoverInbox finds the inbox of target. The Link header wins over the body,
// which wins over the inbox of the target's actor.
func (l *ResourceLoader) DiscoverInbox(ctx context.Context, target string) (string, error) {
	resp, err := l.get(ctx, target)
	if err != nil {
		return "", err
	}

	if inbox := linkInbox(resp); inbox != "" {
		return inbox, nil
	}

	obj, err := l.parse(resp)
	if err != nil {
		return "", err
	}
	if inbox := firstRef(obj["inbox"], resp.URL); inbox != "" {
		return inbox, nil
	}

	var actorErr error
	for _, actor := range refs(obj["actor"]) {
		if embedded, ok := actor.(map[string]any); ok {
			if inbox := firstRef(embedded["inbox"], resp.URL); inbox != "" {
				return inbox, nil
			}
			continue
		}
		uri, ok := actor.(string)
		if !ok || uri == "" {
			continue
		}
		actorURI, err := resolveReference(resp.URL, uri)
		if err != nil {
			continue
		}
		actorObj, err := l.FetchObject(ctx, actorURI)
		if err != nil {
			log.Debug().Err(err).Str("actor", actorURI).Msg("Discovery: failed to fetch actor")
			actorErr = err
			continue
		}
		if inbox := firstRef(actorObj["inbox"], actorURI); inbox != "" {
			return inbox, nil
		}
	}

	if actorErr != nil {
		return "", &FederationError{Kind: domain.InboxDiscoveryFailed, URL: target, Err: actorErr}
	}
	return "", &FederationError{Kind: domain.InboxDiscoveryFailed, URL: target, Err: ErrInboxNotFound}
}

// linkInbox returns the first Link header entry with an inbox relation.
func linkInbox(resp *Response) string {
	values := resp.Header.Values("Link")
	if len(values) == 0 {
		return ""
	}

	var candidates []string
	for _, link := range linkheader.ParseMultiple(values) {
		for _, rel := range strings.Fields(link.Rel) {
			if rel == LDPInbox || strings.EqualFold(rel, "inbox") {
				if resolved, err := resolveReference(resp.URL, link.URL); err == nil {
					candidates = append(candidates, resolved)
				}
				break
			}
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) > 1 {
		log.Warn().Str("target", resp.URL).Strs("ignored", candidates[1:]).
			Msg("Discovery: multiple inbox links, using the first")
	}
	return candidates[0]
}

func firstRef(v any, base string) string {
	for _, id := range RefIDs(v) {
		if resolved, err := resolveReference(base, id); err == nil {
			return resolved
		}
	}
	return ""
}
