/*
Package notify delivers rendered tickets to passengers.

PURPOSE:
  Delivery is fire-and-forget from the booking core's point of view: a
  booking is confirmed whether or not the e-mail goes out. Failures are
  logged and counted, never surfaced to the booking flow.

SEE ALSO:
  - ticket: produces the attachment delivered here
*/
package notify

import (
	"context"
	"time"

	"github.com/transitrail/booking-engine/logging"
)

// Delivery is one outbound message with an optional attachment.
type Delivery struct {
	To         string
	Subject    string
	Body       string
	Attachment []byte
	Filename   string
}

// Notifier sends a single delivery synchronously.
type Notifier interface {
	Send(ctx context.Context, d Delivery) error
}

// =============================================================================
// LOG NOTIFIER - default transport when no mail gateway is configured
// =============================================================================

// LogNotifier records deliveries in the log instead of sending them. It
// stands in for the mail gateway in development and tests.
type LogNotifier struct {
	Log logging.Logger
}

func (n *LogNotifier) Send(_ context.Context, d Delivery) error {
	n.Log.Info("ticket delivery",
		"to", d.To,
		"subject", d.Subject,
		"attachment_bytes", len(d.Attachment),
	)
	return nil
}

// =============================================================================
// ASYNC DISPATCHER - fire-and-forget wrapper
// =============================================================================

// AsyncDispatcher runs deliveries in their own goroutine with a bounded
// timeout. The caller never observes the outcome; failures are logged and
// reported through OnFailure.
type AsyncDispatcher struct {
	Notifier  Notifier
	Log       logging.Logger
	Timeout   time.Duration
	OnFailure func() // optional hook, e.g. a metrics counter
}

// Dispatch queues d for delivery and returns immediately.
func (a *AsyncDispatcher) Dispatch(d Delivery) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := a.Notifier.Send(ctx, d); err != nil {
			a.Log.Error("ticket delivery failed", "to", d.To, "error", err)
			if a.OnFailure != nil {
				a.OnFailure()
			}
		}
	}()
}
