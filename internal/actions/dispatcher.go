package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"alertrules/internal/clock"
	"alertrules/internal/domain"
	"alertrules/internal/metrics"
	"alertrules/internal/notify"
	"alertrules/internal/notifyqueue"
	"alertrules/internal/permanent"
	"alertrules/internal/rules"

	"github.com/google/uuid"
)

// Sender delivers rendered notifications; implemented by notify.Dispatcher.
type Sender interface {
	Send(ctx context.Context, channel, templateName string, notification domain.Notification) (notify.SendResult, error)
	SendWebhook(ctx context.Context, url string, notification domain.Notification) error
}

// Dispatcher runs the side effect of each merged future group once.
// With a producer configured, groups are queued and delivered by the notify
// worker; otherwise they are sent inline.
type Dispatcher struct {
	sender   Sender
	producer notifyqueue.Producer
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDispatcher creates action dispatcher.
// Params: sender, optional queue producer, clock, and logger.
// Returns: dispatcher.
func NewDispatcher(sender Sender, producer notifyqueue.Producer, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, producer: producer, clock: clk, logger: logger}
}

// DispatchAll dispatches every group; one failing group does not stop the rest.
// Params: merged groups for one event.
// Returns: joined dispatch errors.
func (d *Dispatcher) DispatchAll(ctx context.Context, groups []rules.FutureGroup) error {
	var errs []error
	for _, group := range groups {
		if err := d.Dispatch(ctx, group); err != nil {
			d.logger.Error("action dispatch failed",
				"key", group.Key,
				"event_id", group.Event.EventID,
				"group_id", group.Event.GroupID,
				"rule_ids", group.RuleIDs(),
				"error", err.Error(),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatch delivers or enqueues one future group.
func (d *Dispatcher) Dispatch(ctx context.Context, group rules.FutureGroup) error {
	job, err := d.BuildJob(group)
	if err != nil {
		metrics.ActionDispatchTotal.WithLabelValues(group.Callback, "failed").Inc()
		return err
	}
	if d.producer != nil {
		if err := d.producer.Enqueue(ctx, job); err != nil {
			metrics.ActionDispatchTotal.WithLabelValues(group.Callback, "failed").Inc()
			return err
		}
		metrics.ActionDispatchTotal.WithLabelValues(group.Callback, "queued").Inc()
		return nil
	}
	if err := d.Deliver(ctx, job); err != nil {
		metrics.ActionDispatchTotal.WithLabelValues(group.Callback, "failed").Inc()
		return err
	}
	metrics.ActionDispatchTotal.WithLabelValues(group.Callback, "sent").Inc()
	return nil
}

// Deliver performs the side effect of one job; it is also the notify worker handler.
func (d *Dispatcher) Deliver(ctx context.Context, job notifyqueue.Job) error {
	if d.sender == nil {
		return permanent.Errorf("no notification sender configured for %s", job.Key)
	}
	switch job.Callback {
	case CallbackNotify:
		_, err := d.sender.Send(ctx, job.Channel, job.Template, job.Notification)
		return err
	case CallbackWebhook:
		return d.sender.SendWebhook(ctx, job.URL, job.Notification)
	default:
		return permanent.Errorf("unsupported action callback %q", job.Callback)
	}
}

// BuildJob turns one group into a queue job with a deterministic id.
// Params: merged future group.
// Returns: job or error when the group carries no route.
func (d *Dispatcher) BuildJob(group rules.FutureGroup) (notifyqueue.Job, error) {
	if len(group.Futures) == 0 {
		return notifyqueue.Job{}, fmt.Errorf("future group %q is empty", group.Key)
	}
	kwargs := group.Futures[0].Kwargs
	job := notifyqueue.Job{
		ID:           notifyqueue.BuildJobID(group.Event.EventID, group.Key),
		Key:          group.Key,
		Callback:     group.Callback,
		Channel:      kwargString(kwargs, "channel"),
		Template:     kwargString(kwargs, "template"),
		URL:          kwargString(kwargs, "url"),
		Notification: BuildNotification(group, d.clock),
		CreatedAt:    d.clock.Now(),
	}
	switch job.Callback {
	case CallbackNotify:
		if job.Channel == "" || job.Template == "" {
			return notifyqueue.Job{}, fmt.Errorf("future group %q has no channel/template", group.Key)
		}
	case CallbackWebhook:
		if job.URL == "" {
			return notifyqueue.Job{}, fmt.Errorf("future group %q has no url", group.Key)
		}
	}
	return job, nil
}

// BuildNotification lists every contributing rule of one group.
// Params: merged group and clock for the notification timestamp.
// Returns: notification payload; ID is random, Key is the dispatch key.
func BuildNotification(group rules.FutureGroup, clk clock.Clock) domain.Notification {
	event := group.Event
	ids := group.RuleIDs()
	labels := make([]string, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, future := range group.Futures {
		if _, ok := seen[future.RuleID]; ok {
			continue
		}
		seen[future.RuleID] = struct{}{}
		labels = append(labels, future.RuleLabel)
	}
	title := strings.Join(labels, ", ")
	if title == "" {
		title = "alert"
	}
	return domain.Notification{
		ID:          uuid.NewString(),
		Key:         group.Key,
		ProjectID:   event.ProjectID,
		GroupID:     event.GroupID,
		EventID:     event.EventID,
		Environment: event.Environment,
		Level:       event.Level,
		Title:       title,
		Message:     event.Message,
		RuleIDs:     ids,
		RuleLabels:  labels,
		Tags:        event.Tags,
		Timestamp:   clk.Now(),
	}
}

func kwargString(kwargs map[string]any, key string) string {
	value, _ := kwargs[key].(string)
	return value
}
