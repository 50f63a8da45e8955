package domain

import "fmt"

// FailureKind classifies why a single target did not receive an activity.
type FailureKind string

const (
	TargetRequestFailed   FailureKind = "TargetRequestFailed"
	TargetParseFailed     FailureKind = "TargetParseFailed"
	InboxDiscoveryFailed  FailureKind = "InboxDiscoveryFailed"
	DeliveryRequestFailed FailureKind = "DeliveryRequestFailed"
	DeliveryErrorResponse FailureKind = "DeliveryErrorResponse"
	PolicyBlocked         FailureKind = "PolicyBlocked"
)

// DeliveryFailure records one target that could not be delivered to.
type DeliveryFailure struct {
	Target     string      `json:"target"`
	Inbox      string      `json:"inbox,omitempty"`
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message"`
	StatusCode int         `json:"status,omitempty"`
	Body       string      `json:"body,omitempty"`
}

func (f DeliveryFailure) String() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s %s (%d): %s", f.Kind, f.Target, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("%s %s: %s", f.Kind, f.Target, f.Message)
}

// DeliveryReport is the outcome of one batch delivery. Delivered and Failures
// are disjoint. A report is built once and handed to the caller; nothing
// mutates it afterwards.
type DeliveryReport struct {
	Delivered []string          `json:"delivered"`
	Failures  []DeliveryFailure `json:"failures"`
}

func NewDeliveryReport(delivered []string, failures []DeliveryFailure) *DeliveryReport {
	d := make([]string, len(delivered))
	copy(d, delivered)
	f := make([]DeliveryFailure, len(failures))
	copy(f, failures)
	return &DeliveryReport{Delivered: d, Failures: f}
}

func (r *DeliveryReport) HasFailures() bool {
	return len(r.Failures) > 0
}

// FailuresByKind returns the failed targets of the given kind.
func (r *DeliveryReport) FailuresByKind(kind FailureKind) []DeliveryFailure {
	var out []DeliveryFailure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
