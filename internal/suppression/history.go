package suppression

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"alertrules/internal/config"

	"github.com/nats-io/nats.go"
)

// FireRecord is one fire-history entry written after a successful TryFire.
// Params: fire id, rule/subject/event identity, evaluation path, and time.
// Returns: append-only audit unit.
type FireRecord struct {
	ID        string    `json:"id"`
	RuleID    int64     `json:"rule_id"`
	ProjectID int64     `json:"project_id"`
	GroupID   int64     `json:"group_id"`
	EventID   string    `json:"event_id"`
	Path      string    `json:"path"`
	FiredAt   time.Time `json:"fired_at"`
}

// HistoryRecorder persists fire-history entries.
type HistoryRecorder interface {
	Record(ctx context.Context, record FireRecord) error
	Close() error
}

// MemoryHistory keeps the most recent fire records in a bounded slice.
type MemoryHistory struct {
	mu      sync.Mutex
	limit   int
	records []FireRecord
}

// NewMemoryHistory creates bounded in-memory history.
// Params: max retained records (1000 when <=0).
// Returns: memory recorder.
func NewMemoryHistory(limit int) *MemoryHistory {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryHistory{limit: limit}
}

// Record appends one record and drops the oldest beyond limit.
func (h *MemoryHistory) Record(_ context.Context, record FireRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	if overflow := len(h.records) - h.limit; overflow > 0 {
		h.records = append([]FireRecord(nil), h.records[overflow:]...)
	}
	return nil
}

// Records returns a copy of retained records, oldest first.
func (h *MemoryHistory) Records() []FireRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]FireRecord(nil), h.records...)
}

// Close releases nothing.
func (h *MemoryHistory) Close() error {
	return nil
}

// NATSHistory publishes fire records into a JetStream stream, one subject per project.
type NATSHistory struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	subjectPrefix string
}

// NewNATSHistory connects and ensures the history stream exists.
// Params: NATS state settings with history stream/subject names.
// Returns: history recorder or setup error.
func NewNATSHistory(settings config.NATSStateConfig) (*NATSHistory, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats history: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for history: %w", err)
	}
	if _, err := js.StreamInfo(settings.HistoryStream); err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open history stream %q: %w", settings.HistoryStream, err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      settings.HistoryStream,
			Subjects:  []string{settings.HistorySubject + ".>"},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			MaxAge:    settings.HistoryMaxAge,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create history stream %q: %w", settings.HistoryStream, err)
		}
	}
	return &NATSHistory{nc: nc, js: js, subjectPrefix: settings.HistorySubject}, nil
}

// Record publishes one fire record; the record id is the dedupe header.
func (h *NATSHistory) Record(ctx context.Context, record FireRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal fire record: %w", err)
	}
	msg := nats.NewMsg(h.subjectPrefix + "." + strconv.FormatInt(record.ProjectID, 10))
	msg.Data = body
	if record.ID != "" {
		msg.Header.Set("Nats-Msg-Id", record.ID)
	}
	if _, err := h.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish fire record: %w", err)
	}
	return nil
}

// Close closes NATS connection.
func (h *NATSHistory) Close() error {
	if h == nil || h.nc == nil {
		return nil
	}
	h.nc.Close()
	return nil
}
