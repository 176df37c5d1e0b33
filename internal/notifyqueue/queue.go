package notifyqueue

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"alertrules/internal/domain"
)

// Job is one action dispatch group waiting for asynchronous delivery.
// Params: future key, callback, route (channel/template or webhook url), and notification.
// Returns: queue unit consumed by delivery workers.
type Job struct {
	ID           string              `json:"id"`
	Key          string              `json:"key"`
	Callback     string              `json:"callback"`
	Channel      string              `json:"channel,omitempty"`
	Template     string              `json:"template,omitempty"`
	URL          string              `json:"url,omitempty"`
	Notification domain.Notification `json:"notification"`
	CreatedAt    time.Time           `json:"created_at"`
}

// DLQReason identifies why a job was moved to the dead-letter stream.
type DLQReason string

const (
	// DLQReasonPermanentError marks non-retryable processing failures.
	DLQReasonPermanentError DLQReason = "permanent_error"
	// DLQReasonMaxDeliverExceeded marks retries exhausted by queue max deliver policy.
	DLQReasonMaxDeliverExceeded DLQReason = "max_deliver_exceeded"
)

// DLQEntry is dead-letter payload for notify queue failures.
type DLQEntry struct {
	Job           Job       `json:"job"`
	Reason        DLQReason `json:"reason"`
	Error         string    `json:"error"`
	Attempts      uint64    `json:"attempts"`
	MaxDeliver    int       `json:"max_deliver"`
	Subject       string    `json:"subject"`
	FailedAt      time.Time `json:"failed_at"`
	OriginalMsgID string    `json:"original_msg_id,omitempty"`
}

// BuildJobID derives the dedupe id of one dispatch group.
// The same event re-processed after a crash yields the same id for the same
// future key, so JetStream drops the duplicate publish inside its window.
// Params: event id and future key.
// Returns: hex SHA1 of both.
func BuildJobID(eventID, futureKey string) string {
	sum := sha1.Sum([]byte(eventID + "\x00" + futureKey))
	return hex.EncodeToString(sum[:])
}

// Producer enqueues dispatch jobs.
type Producer interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

// Handler delivers one job; permanent errors are dead-lettered, others redelivered.
type Handler func(ctx context.Context, job Job) error
