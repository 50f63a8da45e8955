package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
)

// stubVerifier accepts requests whose Signature header is "valid".
type stubVerifier struct {
	bodies []string
}

func (v *stubVerifier) Verify(_ context.Context, req *http.Request, body []byte) (string, error) {
	v.bodies = append(v.bodies, string(body))
	if req.Header.Get("Signature") != "valid" {
		return "", errors.New("bad signature")
	}
	return "https://remote.example/actor", nil
}

func TestPostInbox(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"new notification", `{"id":"https://remote.example/a/1","type":"Like"}`, http.StatusCreated},
		{"duplicate id", `{"id":"https://remote.example/a/1","type":"Like"}`, http.StatusConflict},
		{"without id", `{"type":"Announce"}`, http.StatusCreated},
		{"numeric id", `{"id":7,"type":"Like"}`, http.StatusBadRequest},
		{"not an object", `"Like"`, http.StatusBadRequest},
		{"blocked word", `{"type":"Create","object":{"type":"Note","content":"Buy CHEAP pills"}}`, http.StatusBadRequest},
	}

	conf := testConfig()
	conf.Federation.BlockedWords = []string{"cheap"}
	srv, _ := newTestServer(t, conf)
	h := srv.Handler()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/inbox", tt.body, map[string]string{"Content-Type": "application/ld+json"})
			if w.Code != tt.expectedStatus {
				t.Errorf("POST /inbox %s = %d, want %d: %s", tt.body, w.Code, tt.expectedStatus, w.Body.String())
			}
			if w.Code == http.StatusCreated && w.Header().Get("Location") == "" {
				t.Error("created notification has no Location header")
			}
		})
	}
}

func TestPostInboxMintsURN(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	w := do(t, srv.Handler(), "POST", "/inbox", `{"type":"Follow"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /inbox = %d, want 201", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "urn:uuid:") {
		t.Errorf("Location = %q, want urn:uuid: prefix", loc)
	}
}

func TestGetInboxListsNotifications(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	h := srv.Handler()

	for _, id := range []string{"https://remote.example/1", "https://remote.example/2"} {
		if w := do(t, h, "POST", "/inbox", `{"id":"`+id+`","type":"Like"}`, nil); w.Code != http.StatusCreated {
			t.Fatalf("POST /inbox = %d, want 201", w.Code)
		}
	}

	w := do(t, h, "GET", "/inbox", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /inbox = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/ld+json") {
		t.Errorf("Content-Type = %q, want application/ld+json", ct)
	}
	body := decodeBody(t, w)
	items := body["ldp:contains"].([]any)
	if len(items) != 2 {
		t.Fatalf("ldp:contains has %d items, want 2", len(items))
	}
	if got := items[0].(map[string]any)["id"]; got != "https://remote.example/2" {
		t.Errorf("first item = %v, want newest https://remote.example/2", got)
	}
}

func TestPostInboxVerifiesSignatures(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	verifier := &stubVerifier{}
	h := srv.WithVerifier(verifier).Handler()

	tests := []struct {
		name      string
		id        string
		signature string
		want      int
	}{
		{"unsigned", "https://remote.example/a/1", "", http.StatusUnauthorized},
		{"bad signature", "https://remote.example/a/2", "forged", http.StatusUnauthorized},
		{"valid signature", "https://remote.example/a/3", "valid", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"id":"` + tt.id + `","type":"Like"}`
			header := map[string]string{"Content-Type": "application/activity+json"}
			if tt.signature != "" {
				header["Signature"] = tt.signature
			}
			w := do(t, h, "POST", "/inbox", body, header)
			if w.Code != tt.want {
				t.Fatalf("POST /inbox = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if last := verifier.bodies[len(verifier.bodies)-1]; last != body {
				t.Errorf("verifier saw body %q, want %q", last, body)
			}
		})
	}

	items, _ := decodeBody(t, do(t, h, "GET", "/inbox", "", nil))["ldp:contains"].([]any)
	if len(items) != 1 {
		t.Errorf("stored %d notifications, want only the signed one", len(items))
	}
}
