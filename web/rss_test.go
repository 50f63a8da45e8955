package web

import (
	"encoding/xml"
	"net/http"
	"strings"
	"testing"

	"github.com/deemkeen/fedwire/activitypub"
)

func TestGetRSS(t *testing.T) {
	conf := testConfig()
	activities := []activitypub.Object{
		{
			"id":        "https://fedwire.example/activities/1",
			"type":      "Create",
			"actor":     "https://fedwire.example/actor",
			"published": "2026-01-02T03:04:05.123Z",
			"object":    map[string]any{"type": "Note", "content": "first <b>post</b>", "summary": "cw"},
		},
		{
			"id":   "https://fedwire.example/activities/2",
			"type": "Like",
		},
	}

	rss, err := GetRSS(conf, activities)
	if err != nil {
		t.Fatalf("GetRSS failed: %v", err)
	}

	var doc struct {
		Channel struct {
			Title string `xml:"title"`
			Link  string `xml:"link"`
			Items []struct {
				Title       string `xml:"title"`
				Link        string `xml:"link"`
				Description string `xml:"description"`
				GUID        string `xml:"guid"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal([]byte(rss), &doc); err != nil {
		t.Fatalf("RSS is not valid XML: %v", err)
	}
	if doc.Channel.Link != "https://fedwire.example/public/feed" {
		t.Errorf("channel link = %q, want the feed URL", doc.Channel.Link)
	}
	if len(doc.Channel.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(doc.Channel.Items))
	}

	first := doc.Channel.Items[0]
	if first.Title != "Create Note" {
		t.Errorf("title = %q, want %q", first.Title, "Create Note")
	}
	if first.Link != "https://fedwire.example/activities/1" {
		t.Errorf("link = %q, want the activity id", first.Link)
	}
	if first.Description != "cw" {
		t.Errorf("description = %q, want %q", first.Description, "cw")
	}
	if doc.Channel.Items[1].Title != "Like" {
		t.Errorf("title = %q, want %q", doc.Channel.Items[1].Title, "Like")
	}
}

func TestActivityTitle(t *testing.T) {
	tests := []struct {
		name     string
		activity activitypub.Object
		expected string
	}{
		{"bare activity", activitypub.Object{"type": "Announce"}, "Announce"},
		{"named object", activitypub.Object{"type": "Create", "object": map[string]any{"type": "Article", "name": "Hello"}}, "Create: Hello"},
		{"typed object", activitypub.Object{"type": "Create", "object": map[string]any{"type": "Note"}}, "Create Note"},
		{"untyped", activitypub.Object{}, "Activity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := activityTitle(tt.activity); got != tt.expected {
				t.Errorf("activityTitle(%v) = %q, want %q", tt.activity, got, tt.expected)
			}
		})
	}
}

func TestHandleFeed(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	h := srv.Handler()
	postPublic(t, h, 2)

	w := do(t, h, "GET", "/public/feed", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /public/feed = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("Content-Type = %q, want application/rss+xml", ct)
	}
	if n := strings.Count(w.Body.String(), "<item>"); n != 2 {
		t.Errorf("feed has %d items, want 2", n)
	}
}
