package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const publicNote = `{"type":"Note","content":"hello","attributedTo":"https://fedwire.example/actor",
	"to":["https://www.w3.org/ns/activitystreams#Public"],"cc":["https://bob.example/"]}`

func TestPostOutboxCreatesActivity(t *testing.T) {
	srv, deliverer := newTestServer(t, testConfig())
	h := srv.Handler()

	w := do(t, h, "POST", "/outbox", publicNote, map[string]string{"Content-Type": "application/activity+json"})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /outbox = %d, want 201: %s", w.Code, w.Body.String())
	}
	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "https://fedwire.example/activities/") {
		t.Errorf("Location = %q, want a minted activity URL", location)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/activity+json") {
		t.Errorf("Content-Type = %q, want application/activity+json", ct)
	}

	body := decodeBody(t, w)
	if body["type"] != "Create" || body["id"] != location {
		t.Errorf("body type=%v id=%v, want Create %s", body["type"], body["id"], location)
	}

	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	if len(deliverer.targets) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(deliverer.targets))
	}
	found := false
	for _, target := range deliverer.targets[0] {
		if target == "https://bob.example/" {
			found = true
		}
	}
	if !found {
		t.Errorf("targets = %v, want to include https://bob.example/", deliverer.targets[0])
	}
}

func TestPostOutboxMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "hello"},
		{"array", `[{"type":"Note"}]`},
		{"empty", ""},
	}

	srv, _ := newTestServer(t, testConfig())
	h := srv.Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, "POST", "/outbox", tt.body, nil); w.Code != http.StatusBadRequest {
				t.Errorf("POST /outbox %q = %d, want 400", tt.body, w.Code)
			}
		})
	}
}

func TestPostTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	h := srv.Handler()
	body := `{"type":"Note","content":"` + strings.Repeat("x", maxActivityBytes) + `"}`

	tests := []struct {
		name    string
		path    string
		chunked bool
	}{
		{"outbox with length", "/outbox", false},
		{"outbox chunked", "/outbox", true},
		{"inbox with length", "/inbox", false},
		{"inbox chunked", "/inbox", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, strings.NewReader(body))
			req.RemoteAddr = "192.0.2.1:1234"
			if tt.chunked {
				req.Body = io.NopCloser(strings.NewReader(body))
				req.ContentLength = -1
				req.TransferEncoding = []string{"chunked"}
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != http.StatusRequestEntityTooLarge {
				t.Fatalf("POST %s = %d, want 413", tt.path, w.Code)
			}
			if !strings.Contains(w.Body.String(), "Request body too large") {
				t.Errorf("unexpected body: %s", w.Body.String())
			}
		})
	}
}

func TestGetActivity(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	h := srv.Handler()

	w := do(t, h, "POST", "/outbox", publicNote, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /outbox = %d, want 201", w.Code)
	}
	location := w.Header().Get("Location")
	path := strings.TrimPrefix(location, "https://fedwire.example")

	w = do(t, h, "GET", path, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s = %d, want 200", path, w.Code)
	}
	if link := w.Header().Get("Link"); !strings.Contains(link, "http://www.w3.org/ns/ldp#inbox") {
		t.Errorf("Link = %q, want ldp#inbox relation", link)
	}
	if body := decodeBody(t, w); body["id"] != location {
		t.Errorf("id = %v, want %s", body["id"], location)
	}
}

func TestGetActivityNotFound(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"invalid uuid", "/activities/not-a-uuid"},
		{"unknown uuid", "/activities/6f1c1a3e-8a51-4c43-9a3b-0d7a0f0e2b11"},
	}

	srv, _ := newTestServer(t, testConfig())
	h := srv.Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, "GET", tt.path, "", nil); w.Code != http.StatusNotFound {
				t.Errorf("GET %s = %d, want 404", tt.path, w.Code)
			}
		})
	}
}

func TestRecentNewestFirst(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	h := srv.Handler()

	var ids []string
	for i := 0; i < 3; i++ {
		w := do(t, h, "POST", "/outbox", `{"type":"Note","content":"n"}`, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("POST /outbox = %d, want 201", w.Code)
		}
		ids = append(ids, w.Header().Get("Location"))
	}

	w := do(t, h, "GET", "/recent", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /recent = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	items := body["orderedItems"].([]any)
	if len(items) != 3 || body["totalItems"] != float64(3) {
		t.Fatalf("recent has %d items (totalItems %v), want 3", len(items), body["totalItems"])
	}
	for i, item := range items {
		want := ids[len(ids)-1-i]
		if got := item.(map[string]any)["id"]; got != want {
			t.Errorf("orderedItems[%d] = %v, want %s", i, got, want)
		}
	}
}

func TestRecentEmpty(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	w := do(t, srv.Handler(), "GET", "/recent", "", nil)
	if !strings.Contains(w.Body.String(), `"orderedItems":[]`) {
		t.Errorf("empty recent = %s, want empty orderedItems array", w.Body.String())
	}
}
