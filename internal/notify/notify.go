// Package notify delivers user-visible notifications.
//
// A notification carries a stable ID. Delivering again under the same ID
// replaces the earlier notification instead of stacking a second one.
package notify

import "context"

// Outcome reports what happened to a delivery attempt
type Outcome int

const (
	// Delivered means the user can see the notification
	Delivered Outcome = iota
	// Suppressed means the channel silently dropped it (permission denied, disabled)
	Suppressed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// Notification is a single message shown to the user
type Notification struct {
	ID    string
	Title string
	Body  string
}

// Notifier is a delivery channel
type Notifier interface {
	// Permitted reports whether notifications may currently be shown
	Permitted() bool
	// Deliver shows n, replacing any earlier notification with the same ID
	Deliver(ctx context.Context, n Notification) (Outcome, error)
}
