package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fimon/risk"
	"fimon/snapshot"
)

// ErrNotConfigured is returned by a notifier that lacks the settings needed
// to deliver anything.
var ErrNotConfigured = errors.New("notifier not configured")

// Message is what a channel delivers for one change set.
type Message struct {
	Subject     string
	Body        string
	Host        string
	Root        string
	At          time.Time
	Changes     snapshot.ChangeSet
	Withheld    int
	Assessments map[string]risk.Assessment
}

// AllClear reports whether the message announces a return to the baseline.
func (m Message) AllClear() bool {
	return m.Changes.Empty() && m.Withheld == 0
}

// Notifier delivers a message over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}

// Stopper is implemented by notifiers that can cut short an ongoing
// notification when their channel is switched off.
type Stopper interface {
	Stop()
}

// TransportError wraps a delivery failure on a channel.
type TransportError struct {
	Channel string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
