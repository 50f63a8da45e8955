package activitypub

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultMaxBodyBytes = 2 << 20

// Response is a fully read HTTP response. URL is the address that produced
// it, after any redirects.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher performs outbound requests. Redirects are followed by hand so the
// final response of an over-long chain can be reported.
type Fetcher struct {
	Client       *http.Client
	MaxRedirects int
	UserAgent    string
	MaxBodyBytes int64
}

func NewFetcher(timeout time.Duration, maxRedirects int, userAgent string) *Fetcher {
	return &Fetcher{
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		MaxRedirects: maxRedirects,
		UserAgent:    userAgent,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

// ContextClient returns a client for JSON-LD context documents. It shares the
// fetcher's timeout but follows up to MaxRedirects redirects itself.
func (f *Fetcher) ContextClient() *http.Client {
	limit := f.MaxRedirects
	return &http.Client{
		Timeout: f.Client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > limit {
				return fmt.Errorf("stopped after %d redirects loading %s", limit, req.URL)
			}
			return nil
		},
	}
}

// Get fetches rawURL with the linked-data Accept header, following up to
// MaxRedirects redirects.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	current := rawURL
	for hops := 0; ; hops++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", AcceptLinkedData)

		resp, err := f.do(req)
		if err != nil {
			return nil, err
		}
		if !isRedirect(resp.StatusCode) {
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return resp, nil
		}
		if hops >= f.MaxRedirects {
			return nil, &TooManyRedirectsError{Last: resp, Hops: hops}
		}
		next, err := resolveReference(current, location)
		if err != nil {
			return nil, fmt.Errorf("bad redirect location %q: %w", location, err)
		}
		log.Debug().Str("from", current).Str("to", next).Msg("Fetcher: following redirect")
		current = next
	}
}

// Post sends body to rawURL. sign, when non-nil, runs after headers are set.
func (f *Fetcher) Post(ctx context.Context, rawURL, contentType string, body []byte, sign func(*http.Request, []byte) error) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", ContentTypeActivity)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	if sign != nil {
		if err := sign(req, body); err != nil {
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
	}
	return f.do(req)
}

func (f *Fetcher) do(req *http.Request) (*Response, error) {
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveReference(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
