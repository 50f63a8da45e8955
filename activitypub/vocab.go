package activitypub

import (
	"strings"
)

const (
	ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"
	PublicCollection       = "https://www.w3.org/ns/activitystreams#Public"
	LDPInbox               = "http://www.w3.org/ns/ldp#inbox"
	LDPContains            = "http://www.w3.org/ns/ldp#contains"

	ContentTypeActivity = "application/activity+json"
	ContentTypeLD       = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	// AcceptLinkedData is sent on every outbound GET.
	AcceptLinkedData = `application/ld+json; profile="https://www.w3.org/ns/activitystreams", application/activity+json, application/json;q=0.9, text/html;q=0.8`
)

// Object is a decoded node in compacted ActivityStreams form.
type Object = map[string]any

var activityTypes = map[string]bool{
	"Accept": true, "Add": true, "Announce": true, "Arrive": true, "Block": true,
	"Create": true, "Delete": true, "Dislike": true, "Flag": true, "Follow": true,
	"Ignore": true, "Invite": true, "Join": true, "Leave": true, "Like": true,
	"Listen": true, "Move": true, "Offer": true, "Question": true, "Reject": true,
	"Read": true, "Remove": true, "TentativeReject": true, "TentativeAccept": true,
	"Travel": true, "Undo": true, "Update": true, "View": true,
}

var (
	targetingFields  = []string{"to", "bto", "cc", "bcc"}
	provenanceFields = []string{"actor", "attributedTo"}
	activityRelated  = []string{"object", "target"}
	objectRelated    = []string{"inReplyTo", "tag"}
)

// IsPublic reports whether uri names the special public collection.
func IsPublic(uri string) bool {
	switch uri {
	case PublicCollection, "as:Public", "Public":
		return true
	}
	return false
}

// Types returns the type values of o, which may be a string or a list.
func Types(o Object) []string {
	var types []string
	for _, v := range refs(o["type"]) {
		if s, ok := v.(string); ok {
			types = append(types, strings.TrimPrefix(s, "as:"))
		}
	}
	return types
}

// IsActivity reports whether any of o's types is an ActivityStreams activity.
func IsActivity(o Object) bool {
	for _, t := range Types(o) {
		if activityTypes[t] {
			return true
		}
	}
	return false
}

// ID returns the node's "id" (or "@id") when it is a string.
func ID(o Object) string {
	if id, ok := o["id"].(string); ok {
		return id
	}
	if id, ok := o["@id"].(string); ok {
		return id
	}
	return ""
}

// refs flattens a property value that may be absent, single or a list.
func refs(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// refID is the URI a property value points at: the string itself or an
// embedded node's id. Embedded nodes without an id yield "".
func refID(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		return ID(val)
	}
	return ""
}

// RefIDs returns every URI referenced by a property value.
func RefIDs(v any) []string {
	var ids []string
	for _, r := range refs(v) {
		if id := refID(r); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone deep-copies a decoded JSON value.
func Clone(o Object) Object {
	if o == nil {
		return nil
	}
	return cloneValue(o).(Object)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// StripHidden removes the blind addressing fields from o and from any
// objects embedded in its object property.
func StripHidden(o Object) {
	delete(o, "bto")
	delete(o, "bcc")
	for _, v := range refs(o["object"]) {
		if embedded, ok := v.(map[string]any); ok {
			StripHidden(embedded)
		}
	}
}
