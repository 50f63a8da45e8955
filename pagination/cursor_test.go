package pagination

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func item(published, id string) map[string]any {
	return map[string]any{"published": published, "id": id}
}

// sortedLog has a timestamp tie between b and c to exercise the id tie-break.
func sortedLog() []map[string]any {
	items := []map[string]any{
		item("2024-01-01T10:00:00Z", "https://x.example/activities/a"),
		item("2024-01-02T10:00:00Z", "https://x.example/activities/b"),
		item("2024-01-02T10:00:00Z", "https://x.example/activities/c"),
		item("2024-01-03T10:00:00Z", "https://x.example/activities/d"),
		item("2024-01-04T10:00:00Z", "https://x.example/activities/e"),
	}
	Sort(items)
	return items
}

func ids(items []map[string]any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it["id"].(string))
	}
	return out
}

func TestParseCursorRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty object", `{}`},
		{"both and and or", `{"and": [], "or": []}`},
		{"leaf at top level", `{"published": {"lt": "2024-01-01T00:00:00Z"}}`},
		{"multi key leaf", `{"and": [{"published": {"lt": "x"}, "id": {"lt": "y"}}]}`},
		{"multi operator leaf", `{"or": [{"id": {"lt": "x", "equals": "y"}}]}`},
		{"unknown operator", `{"or": [{"id": {"gt": "x"}}]}`},
		{"and not an array", `{"and": {"id": {"lt": "x"}}}`},
		{"and null", `{"and": null}`},
		{"empty and", `{"and": []}`},
		{"empty or", `{"or": []}`},
		{"nested empty or", `{"and": [{"or": []}]}`},
		{"clause not an object", `{"and": [1]}`},
		{"not json", `{"and": [`},
		{"array top level", `[]`},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCursor([]byte(tt.input))
			if err == nil {
				t.Fatalf("ParseCursor(%s) should fail", tt.input)
			}
			if !errors.Is(err, ErrMalformedCursor) {
				t.Errorf("Expected ErrMalformedCursor, got %v", err)
			}
		})
	}
}

func TestParseCursorValid(t *testing.T) {
	f, err := ParseCursor([]byte(`{"or": [{"published": {"lt": "2024-01-02T10:00:00Z"}}, {"and": [{"published": {"equals": "2024-01-02T10:00:00Z"}}, {"id": {"lt": "https://x.example/activities/c"}}]}]}`))
	if err != nil {
		t.Fatalf("ParseCursor failed: %v", err)
	}
	if f.Kind != KindOr || len(f.Clauses) != 2 {
		t.Fatalf("Unexpected parse result: %+v", f)
	}
	if f.Clauses[1].Kind != KindAnd || f.Clauses[1].Clauses[1].Prop != "id" {
		t.Errorf("Nested clause parsed incorrectly: %+v", f.Clauses[1])
	}
}

func TestMatchesShortCircuit(t *testing.T) {
	it := item("2024-01-02T10:00:00Z", "b")

	tests := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{"empty or", Or(), false},
		{"empty and", And(), true},
		{"or first true", Or(Equals("id", "b"), Lt("id", "a")), true},
		{"or none true", Or(Equals("id", "z"), Lt("id", "a")), false},
		{"and all true", And(Equals("id", "b"), Lt("id", "c")), true},
		{"and one false", And(Equals("id", "b"), Lt("id", "a")), false},
		{"missing prop", Or(Equals("name", "b")), false},
		{"type mismatch", Or(Equals("id", 1.0)), false},
		{"timestamps chronological", Or(Lt("published", "2024-01-02T11:00:00+01:00")), false},
		{"timestamps equal across zones", Or(Equals("published", "2024-01-02T11:00:00+01:00")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(it); got != tt.expected {
				t.Errorf("Matches() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMatchesNumbers(t *testing.T) {
	f, err := ParseCursor([]byte(`{"and": [{"rank": {"lt": 5}}]}`))
	if err != nil {
		t.Fatalf("ParseCursor failed: %v", err)
	}
	if !f.Matches(map[string]any{"rank": 4.0}) {
		t.Error("4 should be less than 5")
	}
	if f.Matches(map[string]any{"rank": 5.0}) {
		t.Error("5 should not be less than 5")
	}
}

func TestSortBreaksTiesByID(t *testing.T) {
	got := ids(sortedLog())
	want := []string{
		"https://x.example/activities/e",
		"https://x.example/activities/d",
		"https://x.example/activities/c",
		"https://x.example/activities/b",
		"https://x.example/activities/a",
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Sort order = %v, want %v", got, want)
	}
}

func TestPageWalksWholeLogWithoutGapsOrRepeats(t *testing.T) {
	for size := 1; size <= 6; size++ {
		t.Run(fmt.Sprintf("size %d", size), func(t *testing.T) {
			log := sortedLog()
			var seen []string
			var cursor *Filter
			for pages := 0; pages < 10; pages++ {
				page, next := Page(log, cursor, size)
				seen = append(seen, ids(page)...)
				if next == nil {
					break
				}
				// cursors travel through the query string as JSON
				raw, err := json.Marshal(next)
				if err != nil {
					t.Fatalf("Marshal cursor: %v", err)
				}
				parsed, err := ParseCursor(raw)
				if err != nil {
					t.Fatalf("ParseCursor(%s): %v", raw, err)
				}
				cursor = &parsed
			}
			if fmt.Sprint(seen) != fmt.Sprint(ids(log)) {
				t.Errorf("Pages yielded %v, want %v", seen, ids(log))
			}
		})
	}
}

func TestNextCursorSelectsStrictlyAfter(t *testing.T) {
	log := sortedLog()
	for i, last := range log {
		cursor := NextCursor(last)
		var after []string
		for _, it := range log {
			if cursor.Matches(it) {
				after = append(after, it["id"].(string))
			}
		}
		want := ids(log[i+1:])
		if fmt.Sprint(after) != fmt.Sprint(want) {
			t.Errorf("After %s got %v, want %v", last["id"], after, want)
		}
	}
}

func TestPageFirstPageWithoutCursor(t *testing.T) {
	page, next := Page(sortedLog(), nil, 2)
	if len(page) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(page))
	}
	if next == nil {
		t.Fatal("Expected a next cursor")
	}
	if next.Kind != KindOr {
		t.Errorf("Next cursor should be an or expression, got %v", next.Kind)
	}
}

func TestPageLastPageHasNoNext(t *testing.T) {
	page, next := Page(sortedLog(), nil, 5)
	if len(page) != 5 {
		t.Fatalf("Expected 5 items, got %d", len(page))
	}
	if next != nil {
		t.Errorf("Expected no next cursor, got %+v", next)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	original := NextCursor(item("2024-01-02T10:00:00Z", "b"))
	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"or":[{"published":{"lt":"2024-01-02T10:00:00Z"}},{"and":[{"published":{"equals":"2024-01-02T10:00:00Z"}},{"id":{"lt":"b"}}]}]}`
	if string(raw) != want {
		t.Errorf("Marshal = %s, want %s", raw, want)
	}
}
