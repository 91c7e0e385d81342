// Package notifications delivers customer-facing payment reminders.
//
// The Notifier interface decouples the dunning processor from the
// delivery channel. The default implementation writes structured log
// lines; a production deployment swaps in an email or messaging
// provider behind the same interface.
package notifications

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Reminder carries everything a delivery channel needs to render a
// past-due payment notice.
type Reminder struct {
	Contact       string
	TenantName    string
	InvoiceNumber string
	AmountCents   int64
	Currency      string
	Attempt       int
}

// AmountDisplay renders the amount for a human reader.
func (r Reminder) AmountDisplay() string {
	return fmt.Sprintf("%.2f %s", float64(r.AmountCents)/100, r.Currency)
}

// Notifier sends payment reminders. SendReminder returns an error when
// delivery could not be confirmed; the caller decides whether to retry.
type Notifier interface {
	SendReminder(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the log instead of delivering them.
// Used in development and as a safe default.
type LogNotifier struct {
	log *logrus.Entry
}

// NewLogNotifier creates a log-backed Notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logrus.WithField("component", "notifier")}
}

func (n *LogNotifier) SendReminder(ctx context.Context, r Reminder) error {
	n.log.WithFields(logrus.Fields{
		"contact": r.Contact,
		"tenant":  r.TenantName,
		"invoice": r.InvoiceNumber,
		"amount":  r.AmountDisplay(),
		"attempt": r.Attempt,
	}).Info("payment reminder sent")
	return nil
}

// RecordingNotifier captures reminders in memory and can be told to
// fail, for exercising dunning behavior in tests.
type RecordingNotifier struct {
	mu       sync.Mutex
	sent     []Reminder
	FailWith error
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) SendReminder(ctx context.Context, r Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FailWith != nil {
		return n.FailWith
	}
	n.sent = append(n.sent, r)
	return nil
}

// Sent returns a copy of the reminders delivered so far.
func (n *RecordingNotifier) Sent() []Reminder {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Reminder, len(n.sent))
	copy(out, n.sent)
	return out
}
