package activitypub

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ObjectFetcher retrieves a remote node by URI.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, uri string) (Object, error)
}

// ResolveOptions controls audience resolution.
type ResolveOptions struct {
	// MaxDepth is how many levels of nested members are expanded. 0 returns
	// only the node's own audience.
	MaxDepth int
	// FetchRelated allows fetching related nodes (object, target, inReplyTo,
	// tag) that are referenced only by URI.
	FetchRelated bool
	// RelatedFetchDepth bounds how many levels may fetch. Negative means
	// MaxDepth.
	RelatedFetchDepth int
	// RelatedTargeting includes the addressing of related nodes.
	RelatedTargeting bool
}

func DefaultResolveOptions() ResolveOptions {
	return ResolveOptions{MaxDepth: 1, RelatedFetchDepth: -1, RelatedTargeting: true}
}

// TargetedAudience returns the URIs in to, bto, cc and bcc.
func TargetedAudience(o Object) []string {
	set := newURISet()
	for _, field := range targetingFields {
		for _, id := range RefIDs(o[field]) {
			set.add(id)
		}
	}
	return set.list()
}

// Resolver computes the transitive audience of a node.
type Resolver struct {
	fetcher ObjectFetcher
}

// NewResolver returns a Resolver. fetcher may be nil when related nodes are
// never fetched.
func NewResolver(fetcher ObjectFetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

type member struct {
	value   any
	related bool
}

// ResolveAudience returns the deduplicated URIs of o's audience. The audience
// of a node is its targeted addressees, its actor and attributedTo, and its
// related nodes. Each level of depth adds the audience of every member that is
// available as a node, fetching URI-only related nodes when allowed. Fetch
// failures only drop that branch. The result grows monotonically with depth.
func (r *Resolver) ResolveAudience(ctx context.Context, o Object, opts ResolveOptions) []string {
	fetchBudget := opts.RelatedFetchDepth
	if fetchBudget < 0 {
		fetchBudget = opts.MaxDepth
	}
	set := newURISet()
	r.resolve(ctx, o, false, opts.MaxDepth, fetchBudget, opts, set)
	return set.list()
}

func (r *Resolver) resolve(ctx context.Context, o Object, asRelated bool, depth, fetchBudget int, opts ResolveOptions, set *uriSet) {
	members := localAudience(o, asRelated && !opts.RelatedTargeting)
	for _, m := range members {
		set.add(refID(m.value))
	}
	if depth <= 0 {
		return
	}

	for _, m := range members {
		var node Object
		switch v := m.value.(type) {
		case map[string]any:
			node = v
		case string:
			if !m.related || !opts.FetchRelated || fetchBudget <= 0 || IsPublic(v) || r.fetcher == nil {
				continue
			}
			fetched, err := r.fetcher.FetchObject(ctx, v)
			if err != nil {
				log.Debug().Err(err).Str("uri", v).Msg("Audience: skipping unfetchable related node")
				continue
			}
			node = fetched
		default:
			continue
		}
		r.resolve(ctx, node, m.related, depth-1, fetchBudget-1, opts, set)
	}
}

func localAudience(o Object, skipTargeting bool) []member {
	var members []member
	if !skipTargeting {
		for _, field := range targetingFields {
			for _, v := range refs(o[field]) {
				members = append(members, member{value: v})
			}
		}
	}
	for _, field := range provenanceFields {
		for _, v := range refs(o[field]) {
			members = append(members, member{value: v})
		}
	}
	related := objectRelated
	if IsActivity(o) {
		related = append(append([]string{}, activityRelated...), objectRelated...)
	}
	for _, field := range related {
		for _, v := range refs(o[field]) {
			members = append(members, member{value: v, related: true})
		}
	}
	return members
}

// ClientAddress returns a copy of activity with its resolved audience
// appended to cc. URIs it already addresses are not repeated.
func (r *Resolver) ClientAddress(ctx context.Context, activity Object, opts ResolveOptions) Object {
	return appendCC(activity, r.ResolveAudience(ctx, activity, opts))
}

func appendCC(activity Object, extra []string) Object {
	out := Clone(activity)
	existing := newURISet()
	for _, id := range TargetedAudience(out) {
		existing.add(id)
	}
	cc := refs(out["cc"])
	for _, uri := range extra {
		if existing.add(uri) {
			cc = append(cc, uri)
		}
	}
	if len(cc) > 0 {
		out["cc"] = cc
	}
	return out
}

type uriSet struct {
	seen  map[string]bool
	order []string
}

func newURISet() *uriSet {
	return &uriSet{seen: map[string]bool{}}
}

func (s *uriSet) add(uri string) bool {
	if uri == "" || s.seen[uri] {
		return false
	}
	s.seen[uri] = true
	s.order = append(s.order, uri)
	return true
}

func (s *uriSet) list() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
