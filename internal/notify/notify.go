package notify

import "context"

// Notifier relays a finished summary to an external destination.
// Delivery failures are for logs, never request errors.
type Notifier interface {
	Deliver(ctx context.Context, userID, message string) error
	Close() error
}

type multi []Notifier

// Multi fans a delivery out to every notifier and returns the first
// error, after attempting all.
func Multi(notifiers ...Notifier) Notifier {
	return multi(notifiers)
}

func (m multi) Deliver(ctx context.Context, userID, message string) error {
	var first error
	for _, n := range m {
		if err := n.Deliver(ctx, userID, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multi) Close() error {
	var first error
	for _, n := range m {
		if err := n.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
