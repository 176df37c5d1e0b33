package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GroupStatus is lifecycle status of the subject an event belongs to.
// Params: constants "unresolved", "resolved", "ignored".
// Returns: status used for actionable checks.
type GroupStatus string

const (
	// GroupStatusUnresolved marks an open subject.
	GroupStatusUnresolved GroupStatus = "unresolved"
	// GroupStatusResolved marks a closed subject.
	GroupStatusResolved GroupStatus = "resolved"
	// GroupStatusIgnored marks a muted subject.
	GroupStatusIgnored GroupStatus = "ignored"
)

// GroupInfo carries subject metadata attached to one event.
// Params: status, first-seen time, occurrence count, and priority label.
// Returns: read-only subject snapshot for filters.
type GroupInfo struct {
	Status    GroupStatus `json:"status,omitempty"`
	FirstSeen time.Time   `json:"first_seen"`
	TimesSeen int64       `json:"times_seen"`
	Priority  string      `json:"priority,omitempty"`
}

// Event is normalized incoming error/occurrence event.
// Params: identity, project/subject ids, attributes, tags, and subject snapshot.
// Returns: validated event payload for rule processing.
type Event struct {
	EventID      string            `json:"event_id"`
	OccurrenceID string            `json:"occurrence_id,omitempty"`
	ProjectID    int64             `json:"project_id"`
	GroupID      int64             `json:"group_id"`
	DT           int64             `json:"dt"`
	Environment  string            `json:"environment,omitempty"`
	Level        string            `json:"level,omitempty"`
	Message      string            `json:"message,omitempty"`
	Platform     string            `json:"platform,omitempty"`
	Release      string            `json:"release,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Group        GroupInfo         `json:"group"`
}

// EventState holds transition flags computed once per event.
// Params: new/regression/new-environment/reappeared/escalated markers.
// Returns: immutable state passed to every condition evaluator.
type EventState struct {
	IsNew                 bool `json:"is_new"`
	IsRegression          bool `json:"is_regression"`
	IsNewGroupEnvironment bool `json:"is_new_group_environment"`
	HasReappeared         bool `json:"has_reappeared"`
	HasEscalated          bool `json:"has_escalated"`
}

// Envelope is one ingest unit: event plus its transition flags.
type Envelope struct {
	Event Event      `json:"event"`
	State EventState `json:"state"`
}

// EventTime converts milliseconds unix timestamp into UTC time.
// Params: event timestamp in unix milliseconds.
// Returns: converted UTC time.
func (e Event) EventTime() time.Time {
	return time.UnixMilli(e.DT).UTC()
}

// IsActionable reports whether rules may fire for the event subject.
// Params: none.
// Returns: false for resolved or ignored subjects.
func (e Event) IsActionable() bool {
	switch e.Group.Status {
	case "", GroupStatusUnresolved:
		return true
	default:
		return false
	}
}

// Tag returns one tag value with well-known attributes as fallbacks.
// Params: tag key.
// Returns: value and presence flag.
func (e Event) Tag(key string) (string, bool) {
	if value, ok := e.Tags[key]; ok {
		return value, true
	}
	switch key {
	case "environment":
		return e.Environment, e.Environment != ""
	case "level":
		return e.Level, e.Level != ""
	case "release":
		return e.Release, e.Release != ""
	}
	return "", false
}

// DecodeEnvelope decodes and validates one envelope payload.
// Params: JSON document bytes.
// Returns: validated envelope or decode/validation error.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := envelope.Event.Validate(); err != nil {
		return Envelope{}, err
	}
	return envelope, nil
}

// DecodeEnvelopesReader decodes one JSON array of envelopes from stream.
// Params: reader positioned at the array.
// Returns: validated envelopes or decode/validation error.
func DecodeEnvelopesReader(reader *json.Decoder) ([]Envelope, error) {
	var envelopes []Envelope
	if err := reader.Decode(&envelopes); err != nil {
		return nil, fmt.Errorf("decode envelope batch: %w", err)
	}
	if len(envelopes) == 0 {
		return nil, errors.New("envelope batch must contain at least one envelope")
	}
	for i := range envelopes {
		if err := envelopes[i].Event.Validate(); err != nil {
			return nil, fmt.Errorf("envelope[%d]: %w", i, err)
		}
	}
	return envelopes, nil
}

// Validate validates one event against the contract.
// Params: event fields parsed from transport.
// Returns: validation error when schema is violated.
func (e Event) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return errors.New("event_id is required")
	}
	if e.ProjectID <= 0 {
		return errors.New("project_id must be >0")
	}
	if e.GroupID <= 0 {
		return errors.New("group_id must be >0")
	}
	if e.DT <= 0 {
		return errors.New("dt must be >0")
	}
	switch e.Group.Status {
	case "", GroupStatusUnresolved, GroupStatusResolved, GroupStatusIgnored:
	default:
		return fmt.Errorf("unsupported group status %q", e.Group.Status)
	}
	if e.Group.TimesSeen < 0 {
		return errors.New("group.times_seen must be >=0")
	}
	return nil
}
