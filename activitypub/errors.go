package activitypub

import (
	"errors"
	"fmt"

	"github.com/deemkeen/fedwire/domain"
)

var (
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrInboxNotFound         = errors.New("no inbox found")
	ErrMalformedActivity     = errors.New("malformed activity")
	ErrDuplicateID           = errors.New("activity id already exists")
	ErrRejected              = errors.New("activity rejected")
)

// FederationError classifies a failed remote interaction.
type FederationError struct {
	Kind       domain.FailureKind
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *FederationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FederationError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err wraps a FederationError of the given kind.
func IsKind(err error, kind domain.FailureKind) bool {
	var ferr *FederationError
	return errors.As(err, &ferr) && ferr.Kind == kind
}

// TooManyRedirectsError is returned when a GET exceeds the redirect limit.
// Last holds the final redirect response.
type TooManyRedirectsError struct {
	Last *Response
	Hops int
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("stopped after %d redirects at %s", e.Hops, e.Last.URL)
}

// SomeDeliveriesFailedError accompanies a report with at least one failure.
type SomeDeliveriesFailedError struct {
	Report *domain.DeliveryReport
}

func (e *SomeDeliveriesFailedError) Error() string {
	return fmt.Sprintf("%d of %d deliveries failed",
		len(e.Report.Failures), len(e.Report.Failures)+len(e.Report.Delivered))
}
