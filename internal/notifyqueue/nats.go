package notifyqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"alertrules/internal/config"
	"alertrules/internal/metrics"
	"alertrules/internal/permanent"

	"github.com/nats-io/nats.go"
)

const (
	notifyStreamMaxAge    = 24 * time.Hour
	notifyDLQStreamMaxAge = 7 * 24 * time.Hour
	dedupeHeader          = "Nats-Msg-Id"
)

// NATSProducer publishes dispatch jobs into the notify work-queue stream.
type NATSProducer struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewNATSProducer creates JetStream producer for the notify queue.
// Params: queue config from notify section.
// Returns: initialized producer or setup error.
func NewNATSProducer(cfg config.NotifyQueue) (*NATSProducer, error) {
	nc, js, err := openQueue(cfg)
	if err != nil {
		return nil, err
	}
	return &NATSProducer{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Enqueue publishes one job; the job id is used as JetStream dedupe id.
func (p *NATSProducer) Enqueue(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notify job: %w", err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = body
	if id := strings.TrimSpace(job.ID); id != "" {
		msg.Header.Set(dedupeHeader, id)
	}
	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish notify job: %w", err)
	}
	return nil
}

// Close closes producer NATS connection.
func (p *NATSProducer) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	p.nc.Close()
	return nil
}

// NATSWorker consumes notify jobs through a durable queue-group consumer.
type NATSWorker struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	sub       *nats.Subscription
	logger    *slog.Logger
	handler   Handler
	cfg       config.NotifyQueue
	nackDelay time.Duration
}

// NewNATSWorker starts queue consumer for dispatch jobs.
// Params: queue config, logger, and per-job handler.
// Returns: running worker or setup error.
func NewNATSWorker(cfg config.NotifyQueue, logger *slog.Logger, handler Handler) (*NATSWorker, error) {
	if handler == nil {
		return nil, errors.New("notify worker handler is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	nc, js, err := openQueue(cfg)
	if err != nil {
		return nil, err
	}

	worker := &NATSWorker{
		nc:        nc,
		js:        js,
		logger:    logger,
		handler:   handler,
		cfg:       cfg,
		nackDelay: time.Duration(cfg.NackDelayMS) * time.Millisecond,
	}
	sub, err := js.QueueSubscribe(cfg.Subject, cfg.DeliverGroup, worker.handle,
		nats.BindStream(cfg.Stream),
		nats.Durable(cfg.ConsumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(time.Duration(cfg.AckWaitSec)*time.Second),
		nats.MaxDeliver(cfg.MaxDeliver),
		nats.MaxAckPending(cfg.MaxAckPending),
		nats.DeliverAll(),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue subscribe notify %q/%q: %w", cfg.Subject, cfg.DeliverGroup, err)
	}
	worker.sub = sub
	return worker, nil
}

func (w *NATSWorker) handle(message *nats.Msg) {
	if message == nil {
		return
	}
	var job Job
	if err := json.Unmarshal(message.Data, &job); err != nil {
		w.logger.Warn("notify job decode failed", "subject", message.Subject, "error", err.Error())
		metrics.NotifyQueueJobsTotal.WithLabelValues("drop").Inc()
		_ = message.Ack()
		return
	}

	err := w.handler(context.Background(), job)
	if err == nil {
		metrics.NotifyQueueJobsTotal.WithLabelValues("ok").Inc()
		_ = message.Ack()
		return
	}
	w.logger.Error("notify job failed", "job_id", job.ID, "key", job.Key, "error", err.Error())

	attempts := deliveryAttempts(message)
	reason := failureReason(err, attempts, w.cfg.MaxDeliver)
	if reason == "" {
		metrics.NotifyQueueJobsTotal.WithLabelValues("retry").Inc()
		w.nak(message)
		return
	}
	if w.cfg.DLQ {
		if dlqErr := w.publishDLQ(message, job, reason, err, attempts); dlqErr != nil {
			w.logger.Error("notify dlq publish failed", "job_id", job.ID, "reason", reason, "error", dlqErr.Error())
			w.nak(message)
			return
		}
		metrics.NotifyQueueJobsTotal.WithLabelValues("dlq").Inc()
	} else {
		metrics.NotifyQueueJobsTotal.WithLabelValues("drop").Inc()
	}
	_ = message.Ack()
}

func (w *NATSWorker) nak(message *nats.Msg) {
	if w.nackDelay > 0 {
		_ = message.NakWithDelay(w.nackDelay)
		return
	}
	_ = message.Nak()
}

// failureReason decides whether a failed job leaves the queue.
// Params: handler error, delivery attempt, and max deliver config.
// Returns: DLQ reason, or empty when the job should be redelivered.
func failureReason(err error, attempts uint64, maxDeliver int) DLQReason {
	if permanent.Is(err) {
		return DLQReasonPermanentError
	}
	if maxDeliver > 0 && attempts >= uint64(maxDeliver) {
		return DLQReasonMaxDeliverExceeded
	}
	return ""
}

// Close drains worker subscription and closes NATS connection.
func (w *NATSWorker) Close() error {
	if w == nil || w.nc == nil {
		return nil
	}
	if w.sub != nil {
		if err := w.sub.Drain(); err != nil {
			w.nc.Close()
			return err
		}
	}
	w.nc.Close()
	return nil
}

func ensureStream(js nats.JetStreamContext, name, subject string, retention nats.RetentionPolicy, maxAge time.Duration) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %q: %w", name, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Retention: retention,
		Storage:   nats.FileStorage,
		MaxAge:    maxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", name, err)
	}
	return nil
}

// openQueue connects and ensures the queue (and optional DLQ) streams exist.
func openQueue(cfg config.NotifyQueue) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(strings.Join(cfg.URL, ","))
	if err != nil {
		return nil, nil, fmt.Errorf("connect notify queue nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream init for notify queue: %w", err)
	}
	if err := ensureStream(js, cfg.Stream, cfg.Subject, nats.WorkQueuePolicy, notifyStreamMaxAge); err != nil {
		nc.Close()
		return nil, nil, err
	}
	if cfg.DLQ {
		if err := ensureStream(js, cfg.DLQStream, cfg.DLQSubject, nats.LimitsPolicy, notifyDLQStreamMaxAge); err != nil {
			nc.Close()
			return nil, nil, err
		}
	}
	return nc, js, nil
}

// deliveryAttempts returns JetStream delivery count, at least 1.
func deliveryAttempts(message *nats.Msg) uint64 {
	metadata, err := message.Metadata()
	if err != nil || metadata == nil || metadata.NumDelivered == 0 {
		return 1
	}
	return metadata.NumDelivered
}

func (w *NATSWorker) publishDLQ(message *nats.Msg, job Job, reason DLQReason, cause error, attempts uint64) error {
	entry := DLQEntry{
		Job:           job,
		Reason:        reason,
		Error:         strings.TrimSpace(cause.Error()),
		Attempts:      attempts,
		MaxDeliver:    w.cfg.MaxDeliver,
		Subject:       message.Subject,
		FailedAt:      time.Now().UTC(),
		OriginalMsgID: strings.TrimSpace(message.Header.Get(dedupeHeader)),
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal notify dlq entry: %w", err)
	}
	msg := nats.NewMsg(w.cfg.DLQSubject)
	msg.Data = body
	if job.ID != "" {
		msg.Header.Set(dedupeHeader, job.ID+":dlq:"+string(reason)+":"+strconv.FormatUint(attempts, 10))
	}
	if _, err := w.js.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish notify dlq entry: %w", err)
	}
	return nil
}
