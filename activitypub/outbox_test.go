package activitypub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deemkeen/fedwire/db"
	"github.com/deemkeen/fedwire/domain"
	"github.com/deemkeen/fedwire/util"
)

// recordingDeliverer captures what the outbox asks to deliver.
type recordingDeliverer struct {
	mu       sync.Mutex
	activity Object
	targets  []string
	failures []domain.DeliveryFailure
}

func (r *recordingDeliverer) DeliverToAll(_ context.Context, activity Object, targets []string, _ bool) (*domain.DeliveryReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activity = activity
	r.targets = targets
	report := domain.NewDeliveryReport(nil, r.failures)
	if report.HasFailures() {
		return report, &SomeDeliveriesFailedError{Report: report}
	}
	return report, nil
}

func setupTestStore(t *testing.T, namespace string) domain.Store {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database.Store(namespace)
}

func newTestOutbox(t *testing.T, deliverer Deliverer) *Outbox {
	t.Helper()
	conf := &util.AppConfig{}
	conf.Conf.SslDomain = "fedwire.example"
	conf.Federation.AudienceDepth = 1
	conf.Federation.RelatedTargeting = true
	return NewOutbox(setupTestStore(t, db.NamespaceActivities), NewResolver(nil), deliverer, conf)
}

func TestOutboxSubmitWrapsObject(t *testing.T) {
	deliverer := &recordingDeliverer{}
	outbox := newTestOutbox(t, deliverer)

	note := `{"type":"Note","id":"https://evil.example/spoof","content":"hi","attributedTo":"https://fedwire.example/alice",
		"to":["https://www.w3.org/ns/activitystreams#Public"],"cc":"https://bob.example/","bcc":"https://secret.example/","bto":"https://hidden.example/"}`
	sub, err := outbox.Submit(context.Background(), []byte(note))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !strings.HasPrefix(sub.ID, "https://fedwire.example/activities/") {
		t.Errorf("ID = %q, want server-minted id", sub.ID)
	}
	if sub.Activity["type"] != "Create" {
		t.Errorf("type = %v, want Create", sub.Activity["type"])
	}
	if sub.Activity["actor"] != "https://fedwire.example/alice" {
		t.Errorf("actor = %v, want attributedTo", sub.Activity["actor"])
	}
	if _, err := time.Parse(time.RFC3339Nano, sub.Activity["published"].(string)); err != nil {
		t.Errorf("published not RFC3339: %v", err)
	}
	if _, ok := sub.Activity["bcc"]; ok {
		t.Error("bcc must not be stored")
	}

	stored, found, err := outbox.Get(sub.ID)
	if err != nil || !found {
		t.Fatalf("stored activity missing: found=%v err=%v", found, err)
	}
	if _, ok := stored["bcc"]; ok {
		t.Error("bcc persisted")
	}
	if _, ok := deliverer.activity["bcc"]; ok {
		t.Error("bcc delivered")
	}

	for name, activity := range map[string]Object{"stored": stored, "delivered": deliverer.activity} {
		object, ok := activity["object"].(map[string]any)
		if !ok {
			t.Fatalf("%s object = %v, want embedded Note", name, activity["object"])
		}
		for _, field := range []string{"bto", "bcc"} {
			if _, ok := object[field]; ok {
				t.Errorf("%s object keeps %s", name, field)
			}
		}
		if object["id"] != sub.ID+"#object" {
			t.Errorf("%s object id = %v, want %s#object", name, object["id"], sub.ID)
		}
	}

	for _, want := range []string{"https://secret.example/", "https://bob.example/", "https://fedwire.example/alice", PublicCollection} {
		if !isSubset([]string{want}, deliverer.targets) {
			t.Errorf("targets %v missing %s", deliverer.targets, want)
		}
	}
}

func TestOutboxSubmitKeepsActivity(t *testing.T) {
	outbox := newTestOutbox(t, &recordingDeliverer{})
	sub, err := outbox.Submit(context.Background(), []byte(`{"type":"Like","id":"client-id","actor":"https://fedwire.example/alice","object":"https://remote.example/notes/1"}`))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sub.Activity["type"] != "Like" {
		t.Errorf("type = %v, want Like", sub.Activity["type"])
	}
	if sub.ID == "client-id" || sub.Activity["id"] != sub.ID {
		t.Errorf("client id not replaced: %v", sub.Activity["id"])
	}
}

func TestOutboxSubmitMalformed(t *testing.T) {
	outbox := newTestOutbox(t, &recordingDeliverer{})
	for _, body := range []string{``, `{`, `[]`, `"note"`} {
		if _, err := outbox.Submit(context.Background(), []byte(body)); !errors.Is(err, ErrMalformedActivity) {
			t.Errorf("Submit(%q) error = %v, want ErrMalformedActivity", body, err)
		}
	}
}

func TestOutboxRecordsDeliveryFailures(t *testing.T) {
	deliverer := &recordingDeliverer{failures: []domain.DeliveryFailure{
		{Target: "https://down.example/", Kind: domain.DeliveryRequestFailed, Message: "connection refused"},
	}}
	outbox := newTestOutbox(t, deliverer)

	sub, err := outbox.Submit(context.Background(), []byte(`{"type":"Note","cc":"https://down.example/"}`))
	if err != nil {
		t.Fatalf("partial delivery must not fail the submission: %v", err)
	}
	if len(sub.Report.Failures) != 1 {
		t.Errorf("report failures = %v", sub.Report.Failures)
	}

	stored, _, _ := outbox.Get(sub.ID)
	failures, ok := stored[DeliveryFailuresKey].([]any)
	if !ok || len(failures) != 1 {
		t.Fatalf("stored failures = %v", stored[DeliveryFailuresKey])
	}
	if failures[0].(map[string]any)["kind"] != string(domain.DeliveryRequestFailed) {
		t.Errorf("stored failure = %v", failures[0])
	}
}

func TestOutboxRecentAndPublic(t *testing.T) {
	outbox := newTestOutbox(t, &recordingDeliverer{})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	outbox.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	bodies := []string{
		`{"type":"Note","to":"as:Public","content":"one"}`,
		`{"type":"Note","to":"https://bob.example/","content":"private"}`,
		`{"type":"Note","cc":"https://www.w3.org/ns/activitystreams#Public","content":"three"}`,
	}
	for _, b := range bodies {
		if _, err := outbox.Submit(context.Background(), []byte(b)); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := outbox.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d items", len(recent))
	}
	if content(recent[0]) != "three" || content(recent[1]) != "private" {
		t.Errorf("Recent order = %s, %s", content(recent[0]), content(recent[1]))
	}

	public, err := outbox.Public()
	if err != nil {
		t.Fatal(err)
	}
	if len(public) != 2 || content(public[0]) != "three" || content(public[1]) != "one" {
		t.Errorf("Public returned %d items", len(public))
	}
}

func content(activity Object) string {
	obj, _ := activity["object"].(map[string]any)
	s, _ := obj["content"].(string)
	return s
}

func TestWrapInCreate(t *testing.T) {
	note := decode(t, `{"type":"Note","attributedTo":"A","to":["B"],"bto":"C","cc":"D","bcc":"E"}`)
	create := WrapInCreate(note)
	if create["type"] != "Create" || create["actor"] != "A" {
		t.Errorf("unexpected wrapper %v", create)
	}
	for _, field := range []string{"to", "bto", "cc", "bcc"} {
		if _, ok := create[field]; !ok {
			t.Errorf("%s not copied", field)
		}
	}
	if create["object"].(map[string]any)["type"] != "Note" {
		t.Error("object not embedded")
	}
}
