package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()

	envelope, err := DecodeEnvelope([]byte(validEnvelopeJSON("e1")))
	require.NoError(t, err)
	require.Equal(t, "e1", envelope.Event.EventID)
	require.Equal(t, int64(7), envelope.Event.GroupID)
	require.True(t, envelope.State.IsNew)
}

func TestDecodeEnvelopesReader(t *testing.T) {
	t.Parallel()

	payload := "[" + validEnvelopeJSON("e1") + "," + validEnvelopeJSON("e2") + "]"
	envelopes, err := DecodeEnvelopesReader(json.NewDecoder(strings.NewReader(payload)))
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
}

func TestDecodeEnvelopesReaderRejectsEmptyBatch(t *testing.T) {
	t.Parallel()

	_, err := DecodeEnvelopesReader(json.NewDecoder(strings.NewReader("[]")))
	require.Error(t, err)
}

func TestEventValidateRejectsMissingIdentity(t *testing.T) {
	t.Parallel()

	cases := map[string]Event{
		"event_id":   {ProjectID: 1, GroupID: 1, DT: 1},
		"project_id": {EventID: "e", GroupID: 1, DT: 1},
		"group_id":   {EventID: "e", ProjectID: 1, DT: 1},
		"dt":         {EventID: "e", ProjectID: 1, GroupID: 1},
		"status":     {EventID: "e", ProjectID: 1, GroupID: 1, DT: 1, Group: GroupInfo{Status: "odd"}},
	}
	for name, event := range cases {
		require.Error(t, event.Validate(), name)
	}
}

func TestIsActionable(t *testing.T) {
	t.Parallel()

	require.True(t, Event{}.IsActionable())
	require.True(t, Event{Group: GroupInfo{Status: GroupStatusUnresolved}}.IsActionable())
	require.False(t, Event{Group: GroupInfo{Status: GroupStatusResolved}}.IsActionable())
	require.False(t, Event{Group: GroupInfo{Status: GroupStatusIgnored}}.IsActionable())
}

func TestTagFallsBackToAttributes(t *testing.T) {
	t.Parallel()

	event := Event{Environment: "prod", Tags: map[string]string{"level": "fatal"}, Level: "error"}
	value, ok := event.Tag("environment")
	require.True(t, ok)
	require.Equal(t, "prod", value)
	value, _ = event.Tag("level")
	require.Equal(t, "fatal", value)
	_, ok = event.Tag("missing")
	require.False(t, ok)
}

func validEnvelopeJSON(eventID string) string {
	return `{"event":{"event_id":"` + eventID + `","project_id":1,"group_id":7,"dt":1739876543210,"level":"error","environment":"prod","tags":{"host":"a"},"group":{"status":"unresolved","times_seen":3}},"state":{"is_new":true}}`
}
