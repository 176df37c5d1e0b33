package buffer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const keyVersion = "v1"

// ErrMalformedKey indicates a buffer field that does not decode into Key.
var ErrMalformedKey = errors.New("malformed buffer key")

// Key identifies one pending slow evaluation.
// Params: owning rule, subject (issue group), and condition groups to re-evaluate.
// Returns: structured key with an explicit string codec.
type Key struct {
	OwnerID           int64
	SubjectID         int64
	ConditionGroupIDs []int64
}

// Encode renders key as "v1:<owner>:<subject>:<g1,g2,...>".
func (k Key) Encode() string {
	groups := make([]string, 0, len(k.ConditionGroupIDs))
	for _, id := range k.ConditionGroupIDs {
		groups = append(groups, strconv.FormatInt(id, 10))
	}
	return keyVersion + ":" +
		strconv.FormatInt(k.OwnerID, 10) + ":" +
		strconv.FormatInt(k.SubjectID, 10) + ":" +
		strings.Join(groups, ",")
}

// DecodeKey parses one encoded buffer field.
// Params: field produced by Key.Encode.
// Returns: decoded key or ErrMalformedKey.
func DecodeKey(field string) (Key, error) {
	parts := strings.Split(field, ":")
	if len(parts) != 4 || parts[0] != keyVersion {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedKey, field)
	}
	owner, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || owner <= 0 {
		return Key{}, fmt.Errorf("%w: owner in %q", ErrMalformedKey, field)
	}
	subject, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || subject <= 0 {
		return Key{}, fmt.Errorf("%w: subject in %q", ErrMalformedKey, field)
	}
	if parts[3] == "" {
		return Key{}, fmt.Errorf("%w: no condition groups in %q", ErrMalformedKey, field)
	}
	rawGroups := strings.Split(parts[3], ",")
	groups := make([]int64, 0, len(rawGroups))
	for _, raw := range rawGroups {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Key{}, fmt.Errorf("%w: condition group in %q", ErrMalformedKey, field)
		}
		groups = append(groups, id)
	}
	return Key{OwnerID: owner, SubjectID: subject, ConditionGroupIDs: groups}, nil
}

// Payload points back at the event that caused the entry.
type Payload struct {
	EventID      string `json:"event_id"`
	OccurrenceID string `json:"occurrence_id,omitempty"`
}

func (p Payload) encode() (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode buffer payload: %w", err)
	}
	return string(body), nil
}

func decodePayload(raw string) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Payload{}, fmt.Errorf("decode buffer payload: %w", err)
	}
	if strings.TrimSpace(payload.EventID) == "" {
		return Payload{}, errors.New("decode buffer payload: event_id is empty")
	}
	return payload, nil
}

// Entry is one drained buffer row.
// Params: decoded key, payload, the raw field used for deletion, and the
// lease token of the drain that returned it.
// Returns: unit consumed by the delayed processor.
type Entry struct {
	Key     Key
	Payload Payload
	Field   string
	Lease   string
}

// leaseOf returns the drain lease shared by entries, or "" for none.
func leaseOf(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	return entries[0].Lease
}
