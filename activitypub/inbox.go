package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/deemkeen/fedwire/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InboxFilter may reject an incoming notification, for example as spam.
type InboxFilter func(ctx context.Context, activity Object) error

// Inbox stores notifications received from other servers.
type Inbox struct {
	store  domain.Store
	filter InboxFilter
	mu     sync.Mutex
}

// NewInbox returns an Inbox. filter may be nil.
func NewInbox(store domain.Store, filter InboxFilter) *Inbox {
	return &Inbox{store: store, filter: filter}
}

// Receive validates and stores one notification and returns its id. A
// notification without an id is given a urn:uuid one.
func (i *Inbox) Receive(ctx context.Context, body []byte) (string, error) {
	activity, err := parseJSON(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedActivity, err)
	}
	if raw, ok := activity["id"]; ok {
		if _, isString := raw.(string); !isString {
			return "", fmt.Errorf("%w: id must be a string", ErrMalformedActivity)
		}
	}

	if i.filter != nil {
		if err := i.filter(ctx, activity); err != nil {
			log.Info().Err(err).Str("id", ID(activity)).Msg("Inbox: notification rejected")
			return "", fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}

	id := ID(activity)
	if id == "" {
		id = "urn:uuid:" + uuid.New().String()
		activity["id"] = id
	}

	data, err := json.Marshal(activity)
	if err != nil {
		return "", err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	exists, err := i.store.Has(id)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if err := i.store.Set(id, data); err != nil {
		return "", err
	}

	log.Info().Str("id", id).Strs("types", Types(activity)).Msg("Inbox: stored notification")
	return id, nil
}

// Items returns up to limit notifications, newest first.
func (i *Inbox) Items(limit int) ([]Object, error) {
	keys, err := i.store.Keys()
	if err != nil {
		return nil, err
	}
	var items []Object
	for k := len(keys) - 1; k >= 0 && (limit <= 0 || len(items) < limit); k-- {
		data, found, err := i.store.Get(keys[k])
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		var item Object
		if err := json.Unmarshal(data, &item); err != nil {
			log.Warn().Err(err).Str("id", keys[k]).Msg("Inbox: skipping unreadable item")
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// KeywordFilter rejects notifications whose content or summary contains any
// of the given words.
func KeywordFilter(words []string) InboxFilter {
	return func(_ context.Context, activity Object) error {
		for _, node := range []Object{activity, embeddedObject(activity)} {
			for _, field := range []string{"content", "summary", "name"} {
				text, _ := node[field].(string)
				for _, w := range words {
					if w != "" && strings.Contains(strings.ToLower(text), strings.ToLower(w)) {
						return fmt.Errorf("contains blocked word %q", w)
					}
				}
			}
		}
		return nil
	}
}

func embeddedObject(activity Object) Object {
	if obj, ok := activity["object"].(map[string]any); ok {
		return obj
	}
	return Object{}
}
