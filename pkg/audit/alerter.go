package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Alerter delivers operator alerts for failures that need human
// attention, beyond the durable audit trail.
type Alerter interface {
	NotifyError(ctx context.Context, subject, detail string)
	NotifyCritical(ctx context.Context, subject, detail string)
}

// LogAlerter emits alerts as structured log lines. Suitable for
// deployments where log aggregation drives paging.
type LogAlerter struct {
	log *logrus.Entry
}

// NewLogAlerter creates an Alerter backed by logrus.
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{log: logrus.WithField("component", "alerter")}
}

func (a *LogAlerter) NotifyError(ctx context.Context, subject, detail string) {
	a.log.WithFields(logrus.Fields{
		"subject": subject,
		"detail":  detail,
	}).Error("operational alert")
}

func (a *LogAlerter) NotifyCritical(ctx context.Context, subject, detail string) {
	a.log.WithFields(logrus.Fields{
		"subject": subject,
		"detail":  detail,
	}).Error("critical operational alert")
}
