package activitypub

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/piprate/json-gold/ld"
	"github.com/rs/zerolog/log"
)

//go:embed activitystreams.jsonld
var activityStreamsContext []byte

// Well-known context URLs that resolve to the embedded ActivityStreams context.
var preloadedContexts = []string{
	"https://www.w3.org/ns/activitystreams",
	"http://www.w3.org/ns/activitystreams",
	"https://www.w3.org/ns/activitystreams.jsonld",
	"http://www.w3.org/ns/activitystreams.jsonld",
}

// Parser turns fetched bodies into compacted ActivityStreams nodes. Plain JSON
// is taken as is, JSON-LD is compacted against the ActivityStreams context and
// HTML is read for RDFa.
type Parser struct {
	client  *http.Client
	context map[string]any
	preload map[string]any
}

// NewParser builds a Parser. client is used for remote JSON-LD contexts other
// than ActivityStreams; nil means http.DefaultClient.
func NewParser(client *http.Client) (*Parser, error) {
	var doc map[string]any
	if err := json.Unmarshal(activityStreamsContext, &doc); err != nil {
		return nil, fmt.Errorf("invalid embedded context: %w", err)
	}
	preload := make(map[string]any, len(preloadedContexts))
	for _, u := range preloadedContexts {
		preload[u] = doc
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Parser{
		client:  client,
		context: map[string]any{"@context": ActivityStreamsContext},
		preload: preload,
	}, nil
}

// Parse dispatches on the media type of contentType. requestURL is the base
// for relative references and the RDFa subject.
func (p *Parser) Parse(body []byte, contentType, requestURL string) (Object, error) {
	switch mediaType(contentType) {
	case "application/json":
		return parseJSON(body)
	case "application/ld+json", "application/activity+json":
		return p.parseJSONLD(body, requestURL)
	case "text/html", "application/xhtml+xml":
		return parseRDFa(body, requestURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedContentType, contentType)
	}
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func parseJSON(body []byte) (Object, error) {
	var obj Object
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("invalid JSON: not an object")
	}
	if _, ok := obj["inbox"]; !ok {
		for _, alias := range []string{"ldp:inbox", LDPInbox} {
			if v, ok := obj[alias]; ok {
				obj["inbox"] = v
				break
			}
		}
	}
	return obj, nil
}

// parseJSONLD expands with requestURL as base, then compacts with no base so
// absolute ids are kept as they are.
func (p *Parser) parseJSONLD(body []byte, requestURL string) (Object, error) {
	obj, err := parseJSON(body)
	if err != nil {
		return nil, err
	}
	if _, ok := obj["@context"]; !ok {
		return obj, nil
	}

	loader := p.newLoader()
	proc := ld.NewJsonLdProcessor()

	expandOpts := ld.NewJsonLdOptions(requestURL)
	expandOpts.DocumentLoader = loader
	expanded, err := proc.Expand(map[string]any(obj), expandOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to expand JSON-LD: %w", err)
	}

	compactOpts := ld.NewJsonLdOptions("")
	compactOpts.DocumentLoader = loader
	compacted, err := proc.Compact(expanded, p.context, compactOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to compact JSON-LD: %w", err)
	}
	if graph, ok := compacted["@graph"].([]any); ok && len(graph) == 1 {
		if node, ok := graph[0].(map[string]any); ok {
			node["@context"] = compacted["@context"]
			compacted = node
		}
	}
	return compacted, nil
}

// newLoader returns a document loader scoped to a single parse. Loaded
// contexts are cached only for the lifetime of that call.
func (p *Parser) newLoader() *contextLoader {
	return &contextLoader{
		preload: p.preload,
		cache:   map[string]*ld.RemoteDocument{},
		next:    ld.NewDefaultDocumentLoader(p.client),
	}
}

type contextLoader struct {
	preload map[string]any
	mu      sync.Mutex
	cache   map[string]*ld.RemoteDocument
	next    ld.DocumentLoader
}

func (l *contextLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if doc, ok := l.preload[u]; ok {
		return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if doc, ok := l.cache[u]; ok {
		return doc, nil
	}
	log.Debug().Str("url", u).Msg("Parser: loading remote JSON-LD context")
	doc, err := l.next.LoadDocument(u)
	if err != nil {
		return nil, err
	}
	l.cache[u] = doc
	return doc, nil
}
