// Package notify delivers "registration approved" notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/warranty-keeper/internal/model"
	"go.uber.org/zap"
)

// TopicApproved is the queue topic approval events are published on.
const TopicApproved = "registration.approved"

// LogNotifier writes approvals to the log.
type LogNotifier struct {
	log *zap.Logger
	now func() time.Time
}

// NewLogNotifier constructs a log sink notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log, now: time.Now}
}

// NotifyApproved logs the registration id and the approval time.
func (n *LogNotifier) NotifyApproved(_ context.Context, r model.Registration) error {
	n.log.Info("warranty registration approved",
		zap.Int64("registration_id", r.ID),
		zap.Time("timestamp", n.now()),
	)
	return nil
}

// Publisher puts a message body on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) (string, error)
}

// QueueNotifier publishes an ApprovedEvent for downstream consumers.
type QueueNotifier struct {
	pub   Publisher
	topic string
	now   func() time.Time
}

// NewQueueNotifier constructs a notifier publishing on TopicApproved.
func NewQueueNotifier(pub Publisher) *QueueNotifier {
	return &QueueNotifier{pub: pub, topic: TopicApproved, now: time.Now}
}

// NotifyApproved publishes the event.
func (n *QueueNotifier) NotifyApproved(ctx context.Context, r model.Registration) error {
	body, err := json.Marshal(model.ApprovedEvent{
		RegistrationID: r.ID,
		ProductKey:     r.ProductKey,
		SerialNumber:   r.SerialNumber,
		OwnerID:        r.OwnerID,
		ApprovedAt:     n.now().UTC(),
	})
	if err != nil {
		return err
	}
	if _, err := n.pub.Publish(ctx, n.topic, body); err != nil {
		return fmt.Errorf("publish %s: %w", n.topic, err)
	}
	return nil
}

// Notifier is what Multi fans out to.
type Notifier interface {
	NotifyApproved(ctx context.Context, r model.Registration) error
}

// Multi calls every notifier and joins their errors.
type Multi []Notifier

// NotifyApproved never stops early; one sink failing does not starve the rest.
func (m Multi) NotifyApproved(ctx context.Context, r model.Registration) error {
	var errz []error
	for _, n := range m {
		if err := n.NotifyApproved(ctx, r); err != nil {
			errz = append(errz, err)
		}
	}
	return errors.Join(errz...)
}
