// Package notifier delivers matched postings to chat integrations.
//
// Delivery is best effort: a failed call returns a *NotifyError and the
// caller decides what to do with the posting. Nothing here retries.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/williampepple1/listing-notifier/pkg/models"
)

// Notifier sends one matched posting
type Notifier interface {
	Notify(ctx context.Context, posting models.Posting) error
}

// Announcer sends lifecycle messages next to posting alerts
type Announcer interface {
	SendStartup(ctx context.Context, keywords []string, interval time.Duration) error
	SendError(ctx context.Context, cause error) error
}

// NotifyError is returned when a destination rejects or never receives a message
type NotifyError struct {
	Destination string
	PostingURL  string
	StatusCode  int
	Err         error
}

func (e *NotifyError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notify %s for %s: status %d: %v", e.Destination, e.PostingURL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("notify %s for %s: %v", e.Destination, e.PostingURL, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// PartialError is returned by Multi when some destinations took the posting
// and others did not
type PartialError struct {
	Delivered int
	Failed    int
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("delivered to %d of %d destinations: %v", e.Delivered, e.Delivered+e.Failed, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Multi sends every posting to each notifier in turn
type Multi []Notifier

// Notify tries all notifiers. It returns the joined errors when none
// delivered and a *PartialError when at least one did.
func (m Multi) Notify(ctx context.Context, posting models.Posting) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, posting); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if delivered := len(m) - len(errs); delivered > 0 {
		return &PartialError{Delivered: delivered, Failed: len(errs), Err: errors.Join(errs...)}
	}
	return errors.Join(errs...)
}
