package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deemkeen/fedwire/domain"
	"github.com/deemkeen/fedwire/pagination"
	"github.com/deemkeen/fedwire/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DeliveryFailuresKey is set on a stored activity whose delivery partly failed.
const DeliveryFailuresKey = "fedwire:deliveryFailures"

// Deliverer sends an activity to a list of targets.
type Deliverer interface {
	DeliverToAll(ctx context.Context, activity Object, targets []string, allowLocalhost bool) (*domain.DeliveryReport, error)
}

// ResolveOptionsFromConfig maps the federation settings onto ResolveOptions.
func ResolveOptionsFromConfig(conf *util.AppConfig) ResolveOptions {
	return ResolveOptions{
		MaxDepth:          conf.Federation.AudienceDepth,
		FetchRelated:      conf.Federation.FetchRelated,
		RelatedFetchDepth: conf.Federation.RelatedFetchDepth,
		RelatedTargeting:  conf.Federation.RelatedTargeting,
	}
}

// Submission is the result of posting to the outbox.
type Submission struct {
	ID       string
	Activity Object
	Report   *domain.DeliveryReport
}

// Outbox accepts client activities, stores them and federates them.
type Outbox struct {
	store          domain.Store
	resolver       *Resolver
	deliverer      Deliverer
	baseURL        string
	opts           ResolveOptions
	allowLocalhost bool
	now            func() time.Time
	mu             sync.Mutex
}

func NewOutbox(store domain.Store, resolver *Resolver, deliverer Deliverer, conf *util.AppConfig) *Outbox {
	return &Outbox{
		store:          store,
		resolver:       resolver,
		deliverer:      deliverer,
		baseURL:        conf.BaseURL(),
		opts:           ResolveOptionsFromConfig(conf),
		allowLocalhost: conf.Federation.AllowLocalhost,
		now:            time.Now,
	}
}

// Submit handles one client POST. Non-activities are wrapped in a Create. The
// client's id is replaced, the activity is stored without bto/bcc and then
// delivered to its resolved audience. Delivery failures are recorded on the
// stored activity but do not fail the submission.
func (o *Outbox) Submit(ctx context.Context, body []byte) (*Submission, error) {
	obj, err := parseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedActivity, err)
	}

	activity := obj
	if !IsActivity(obj) {
		activity = WrapInCreate(obj)
	}

	id := o.mintID()
	activity["id"] = id
	if created, ok := activity["object"].(map[string]any); ok && hasType(activity, "Create") {
		created["id"] = id + "#object"
	}
	activity["published"] = o.now().UTC().Format(time.RFC3339Nano)
	if _, ok := activity["@context"]; !ok {
		activity["@context"] = ActivityStreamsContext
	}

	targets := o.resolver.ResolveAudience(ctx, activity, o.opts)

	stored := Clone(activity)
	StripHidden(stored)
	if err := o.save(id, stored); err != nil {
		return nil, err
	}
	log.Info().Str("id", id).Strs("types", Types(stored)).Int("targets", len(targets)).Msg("Outbox: stored activity")

	report, err := o.deliverer.DeliverToAll(ctx, stored, targets, o.allowLocalhost)
	var partial *SomeDeliveriesFailedError
	switch {
	case errors.As(err, &partial):
		withFailures := Clone(stored)
		withFailures[DeliveryFailuresKey] = report.Failures
		if err := o.save(id, withFailures); err != nil {
			log.Error().Err(err).Str("id", id).Msg("Outbox: failed to record delivery failures")
		}
	case err != nil:
		log.Error().Err(err).Str("id", id).Msg("Outbox: delivery aborted")
	}

	return &Submission{ID: id, Activity: stored, Report: report}, nil
}

// WrapInCreate returns a Create whose object is obj. Addressing is copied
// and attributedTo becomes the actor.
func WrapInCreate(obj Object) Object {
	create := Object{
		"@context": ActivityStreamsContext,
		"type":     "Create",
		"object":   obj,
	}
	for _, field := range targetingFields {
		if v, ok := obj[field]; ok {
			create[field] = cloneValue(v)
		}
	}
	if v, ok := obj["attributedTo"]; ok {
		create["actor"] = cloneValue(v)
	}
	return create
}

func (o *Outbox) mintID() string {
	return fmt.Sprintf("%s/activities/%s", o.baseURL, uuid.New().String())
}

// ActivityURL is the public URL of a stored activity key.
func (o *Outbox) ActivityURL(uuidPart string) string {
	return fmt.Sprintf("%s/activities/%s", o.baseURL, uuidPart)
}

func (o *Outbox) save(id string, activity Object) error {
	data, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Set(id, data)
}

// Get loads a stored activity by id.
func (o *Outbox) Get(id string) (Object, bool, error) {
	data, found, err := o.store.Get(id)
	if err != nil || !found {
		return nil, found, err
	}
	var activity Object
	if err := json.Unmarshal(data, &activity); err != nil {
		return nil, false, err
	}
	return activity, true, nil
}

// Recent returns up to limit stored activities, newest first.
func (o *Outbox) Recent(limit int) ([]Object, error) {
	keys, err := o.store.Keys()
	if err != nil {
		return nil, err
	}
	var items []Object
	for i := len(keys) - 1; i >= 0 && (limit <= 0 || len(items) < limit); i-- {
		activity, found, err := o.Get(keys[i])
		if err != nil {
			return nil, err
		}
		if found {
			items = append(items, activity)
		}
	}
	return items, nil
}

// Public returns every publicly addressed activity in page order.
func (o *Outbox) Public() ([]Object, error) {
	all, err := o.Recent(0)
	if err != nil {
		return nil, err
	}
	var public []Object
	for _, activity := range all {
		if isPubliclyAddressed(activity) {
			public = append(public, activity)
		}
	}
	pagination.Sort(public)
	return public, nil
}

func hasType(o Object, want string) bool {
	for _, t := range Types(o) {
		if t == want {
			return true
		}
	}
	return false
}

func isPubliclyAddressed(activity Object) bool {
	for _, id := range TargetedAudience(activity) {
		if IsPublic(id) {
			return true
		}
	}
	return false
}
