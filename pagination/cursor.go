// Package pagination implements keyset pagination over the public activity
// log. A cursor is a small boolean expression ("and"/"or" of "lt"/"equals"
// comparisons) that selects every item strictly after the last item of the
// previous page in (published, id) descending order.
package pagination

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrMalformedCursor = errors.New("malformed cursor")

const (
	PropPublished = "published"
	PropID        = "id"
)

type Kind int

const (
	KindAnd Kind = iota + 1
	KindOr
	KindCompare
)

type Op string

const (
	OpLessThan Op = "lt"
	OpEquals   Op = "equals"
)

// Filter is either a compound expression (KindAnd, KindOr) over Clauses or a
// single comparison of Prop against Value.
type Filter struct {
	Kind    Kind
	Clauses []Filter
	Prop    string
	Op      Op
	Value   any
}

func And(clauses ...Filter) Filter { return Filter{Kind: KindAnd, Clauses: clauses} }
func Or(clauses ...Filter) Filter  { return Filter{Kind: KindOr, Clauses: clauses} }

func Lt(prop string, value any) Filter {
	return Filter{Kind: KindCompare, Prop: prop, Op: OpLessThan, Value: value}
}

func Equals(prop string, value any) Filter {
	return Filter{Kind: KindCompare, Prop: prop, Op: OpEquals, Value: value}
}

// ParseCursor decodes a serialized cursor. The top level must be a single
// "and" or "or" expression; anything else wraps ErrMalformedCursor.
func ParseCursor(data []byte) (Filter, error) {
	var f Filter
	if err := json.Unmarshal(data, &f); err != nil {
		if errors.Is(err, ErrMalformedCursor) {
			return Filter{}, err
		}
		return Filter{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	if f.Kind != KindAnd && f.Kind != KindOr {
		return Filter{}, fmt.Errorf("%w: cursor must be an \"and\" or \"or\" expression", ErrMalformedCursor)
	}
	return f, nil
}

func (f Filter) MarshalJSON() ([]byte, error) {
	switch f.Kind {
	case KindAnd:
		return json.Marshal(map[string][]Filter{"and": nonNil(f.Clauses)})
	case KindOr:
		return json.Marshal(map[string][]Filter{"or": nonNil(f.Clauses)})
	case KindCompare:
		return json.Marshal(map[string]map[Op]any{f.Prop: {f.Op: f.Value}})
	default:
		return nil, fmt.Errorf("%w: unknown filter kind %d", ErrMalformedCursor, f.Kind)
	}
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return fmt.Errorf("%w: filter must be a JSON object", ErrMalformedCursor)
	}
	if len(fields) != 1 {
		return fmt.Errorf("%w: filter must have exactly one key, got %d", ErrMalformedCursor, len(fields))
	}

	for key, raw := range fields {
		switch key {
		case "and", "or":
			if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
				return fmt.Errorf("%w: %q must be an array", ErrMalformedCursor, key)
			}
			var clauses []Filter
			if err := json.Unmarshal(raw, &clauses); err != nil {
				return err
			}
			if len(clauses) == 0 {
				return fmt.Errorf("%w: %q must not be empty", ErrMalformedCursor, key)
			}
			f.Kind = KindOr
			if key == "and" {
				f.Kind = KindAnd
			}
			f.Clauses = clauses
		default:
			var cmp map[Op]json.RawMessage
			if err := json.Unmarshal(raw, &cmp); err != nil || len(cmp) != 1 {
				return fmt.Errorf("%w: comparison on %q must have exactly one operator", ErrMalformedCursor, key)
			}
			for op, rawValue := range cmp {
				if op != OpLessThan && op != OpEquals {
					return fmt.Errorf("%w: unknown operator %q", ErrMalformedCursor, op)
				}
				var value any
				if err := json.Unmarshal(rawValue, &value); err != nil {
					return fmt.Errorf("%w: %v", ErrMalformedCursor, err)
				}
				f.Kind = KindCompare
				f.Prop = key
				f.Op = op
				f.Value = value
			}
		}
	}
	return nil
}

// Matches evaluates the filter against item with short-circuit semantics.
func (f Filter) Matches(item map[string]any) bool {
	switch f.Kind {
	case KindOr:
		for _, c := range f.Clauses {
			if c.Matches(item) {
				return true
			}
		}
		return false
	case KindAnd:
		for _, c := range f.Clauses {
			if !c.Matches(item) {
				return false
			}
		}
		return true
	case KindCompare:
		v, ok := item[f.Prop]
		if !ok {
			return false
		}
		c, ok := compare(v, f.Value)
		if !ok {
			return false
		}
		if f.Op == OpLessThan {
			return c < 0
		}
		return c == 0
	}
	return false
}

// NextCursor selects every item strictly after last in (published, id) order.
func NextCursor(last map[string]any) Filter {
	return Or(
		Lt(PropPublished, last[PropPublished]),
		And(
			Equals(PropPublished, last[PropPublished]),
			Lt(PropID, last[PropID]),
		),
	)
}

// Sort orders items by (published, id) descending, in place.
func Sort(items []map[string]any) {
	sort.SliceStable(items, func(i, j int) bool {
		return less(items[j], items[i])
	})
}

// Page returns up to size items matching cursor (all items when cursor is
// nil) and the cursor for the following page, nil when nothing is left.
// items must already be sorted with Sort.
func Page(items []map[string]any, cursor *Filter, size int) ([]map[string]any, *Filter) {
	if size < 1 {
		size = 1
	}
	page := make([]map[string]any, 0, size)
	for _, item := range items {
		if cursor != nil && !cursor.Matches(item) {
			continue
		}
		if len(page) == size {
			next := NextCursor(page[len(page)-1])
			return page, &next
		}
		page = append(page, item)
	}
	return page, nil
}

func less(a, b map[string]any) bool {
	if c, ok := compare(a[PropPublished], b[PropPublished]); ok && c != 0 {
		return c < 0
	}
	c, _ := compare(a[PropID], b[PropID])
	return c < 0
}

// compare orders two JSON scalar values. Strings that both parse as RFC 3339
// timestamps compare chronologically. ok is false for incomparable values.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		if at, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return at.Compare(bt), true
			}
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func nonNil(clauses []Filter) []Filter {
	if clauses == nil {
		return []Filter{}
	}
	return clauses
}
