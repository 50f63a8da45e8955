package activitypub

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// RDFa terms recognised when reading HTML. Anything else is ignored.
var rdfaTerms = map[string]string{
	"https://www.w3.org/ns/activitystreams#actor":        "actor",
	"https://www.w3.org/ns/activitystreams#attributedTo": "attributedTo",
	"https://www.w3.org/ns/activitystreams#object":       "object",
	"https://www.w3.org/ns/activitystreams#target":       "target",
	"https://www.w3.org/ns/activitystreams#inReplyTo":    "inReplyTo",
	"https://www.w3.org/ns/activitystreams#tag":          "tag",
	"https://www.w3.org/ns/activitystreams#to":           "to",
	"https://www.w3.org/ns/activitystreams#bto":          "bto",
	"https://www.w3.org/ns/activitystreams#cc":           "cc",
	"https://www.w3.org/ns/activitystreams#bcc":          "bcc",
	"https://www.w3.org/ns/activitystreams#outbox":       "outbox",
	"https://www.w3.org/ns/activitystreams#name":         "name",
	"https://www.w3.org/ns/activitystreams#content":      "content",
	"https://www.w3.org/ns/activitystreams#published":    "published",
	LDPInbox: "inbox",
}

var rdfaPrefixes = map[string]string{
	"as":  "https://www.w3.org/ns/activitystreams#",
	"ldp": "http://www.w3.org/ns/ldp#",
}

type triple struct {
	subject, predicate, object string
}

type rdfaState struct {
	base     *url.URL
	vocab    string
	prefixes map[string]string
	subject  string
}

// parseRDFa extracts the triples about requestURL from an HTML document.
func parseRDFa(body []byte, requestURL string) (Object, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid HTML: %w", err)
	}
	base, err := url.Parse(requestURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}

	var triples []triple
	walkRDFa(doc, rdfaState{base: base, prefixes: rdfaPrefixes, subject: base.String()}, &triples)

	obj := Object{"id": base.String()}
	for _, t := range triples {
		if t.subject != base.String() {
			continue
		}
		if t.predicate == "type" {
			appendValue(obj, "type", t.object)
			continue
		}
		if term, ok := rdfaTerms[t.predicate]; ok {
			appendValue(obj, term, t.object)
		}
	}
	return obj, nil
}

func appendValue(obj Object, key, value string) {
	switch existing := obj[key].(type) {
	case nil:
		obj[key] = value
	case string:
		if existing != value {
			obj[key] = []any{existing, value}
		}
	case []any:
		for _, v := range existing {
			if v == value {
				return
			}
		}
		obj[key] = append(existing, value)
	}
}

func walkRDFa(n *html.Node, st rdfaState, out *[]triple) {
	if n.Type == html.ElementNode {
		st = st.enter(n, out)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkRDFa(c, st, out)
	}
}

// enter emits the triples of one element and returns the state its children see.
func (st rdfaState) enter(n *html.Node, out *[]triple) rdfaState {
	attrs := map[string]string{}
	for _, a := range n.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}

	if n.Data == "base" {
		if href, ok := attrs["href"]; ok {
			if u, err := st.base.Parse(href); err == nil {
				st.base = u
			}
		}
	}
	if vocab, ok := attrs["vocab"]; ok {
		st.vocab = vocab
	}
	if prefix, ok := attrs["prefix"]; ok {
		st.prefixes = withPrefixes(st.prefixes, prefix)
	}

	if about, ok := attrs["about"]; ok {
		st.subject = st.resolve(about)
	}

	object := st.objectRef(attrs)
	child := st

	if rel, ok := attrs["rel"]; ok && object != "" {
		for _, p := range strings.Fields(rel) {
			if iri := st.expand(p); iri != "" {
				*out = append(*out, triple{st.subject, iri, object})
			}
		}
	}

	if prop, ok := attrs["property"]; ok {
		value := object
		if value == "" {
			if content, ok := attrs["content"]; ok {
				value = content
			} else {
				value = strings.TrimSpace(textContent(n))
			}
		}
		for _, p := range strings.Fields(prop) {
			if iri := st.expand(p); iri != "" {
				*out = append(*out, triple{st.subject, iri, value})
			}
		}
		if _, typed := attrs["typeof"]; typed && object != "" {
			child.subject = object
		}
	} else if typeof, ok := attrs["typeof"]; ok {
		subject := st.subject
		if _, hasAbout := attrs["about"]; !hasAbout && object != "" {
			subject = object
			child.subject = object
		}
		for _, t := range strings.Fields(typeof) {
			if iri := st.expand(t); iri != "" {
				*out = append(*out, triple{subject, "type", strings.TrimPrefix(iri, rdfaPrefixes["as"])})
			}
		}
	}
	return child
}

func (st rdfaState) objectRef(attrs map[string]string) string {
	for _, key := range []string{"resource", "href", "src"} {
		if v, ok := attrs[key]; ok {
			return st.resolve(v)
		}
	}
	return ""
}

func (st rdfaState) resolve(ref string) string {
	if iri := st.curie(ref); iri != "" {
		return iri
	}
	u, err := st.base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// expand maps a term, CURIE or absolute IRI to an absolute IRI. Bare terms
// need a vocabulary; without one they are HTML link types and yield "".
func (st rdfaState) expand(term string) string {
	if iri := st.curie(term); iri != "" {
		return iri
	}
	if strings.Contains(term, "://") {
		return term
	}
	if st.vocab != "" && !strings.Contains(term, ":") {
		return st.vocab + term
	}
	return ""
}

func (st rdfaState) curie(term string) string {
	term = strings.TrimSuffix(strings.TrimPrefix(term, "["), "]")
	prefix, ref, ok := strings.Cut(term, ":")
	if !ok || strings.HasPrefix(ref, "//") {
		return ""
	}
	if ns, ok := st.prefixes[prefix]; ok {
		return ns + ref
	}
	return ""
}

func withPrefixes(current map[string]string, decl string) map[string]string {
	next := make(map[string]string, len(current))
	for k, v := range current {
		next[k] = v
	}
	fields := strings.Fields(decl)
	for i := 0; i+1 < len(fields); i += 2 {
		next[strings.TrimSuffix(fields[i], ":")] = fields[i+1]
	}
	return next
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
