package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"alertrules/internal/domain"
)

const maxPooledBatchCapacity = 4096

// Transport labels used in ingest metrics and logs.
const (
	TransportHTTP  = "http"
	TransportNATS  = "nats"
	TransportKafka = "kafka"
)

// EventSink receives decoded envelopes from ingest interfaces.
// Params: request context and validated envelope.
// Returns: processing error; transports retry or reject on error.
type EventSink interface {
	Push(ctx context.Context, envelope domain.Envelope) error
}

// batchEventSink is optionally implemented by sinks that process batches at once.
type batchEventSink interface {
	PushBatch(ctx context.Context, envelopes []domain.Envelope) error
}

type decodeScratch struct {
	envelopes []domain.Envelope
}

var decodeScratchPool = sync.Pool{
	New: func() any {
		return &decodeScratch{envelopes: make([]domain.Envelope, 0, 16)}
	},
}

// decodeEnvelopePayload auto-detects batch vs single payload.
// Params: raw JSON bytes with one object or array.
// Returns: validated envelopes; the slice is owned by the caller.
func decodeEnvelopePayload(raw []byte) ([]domain.Envelope, error) {
	scratch := acquireDecodeScratch()
	defer releaseDecodeScratch(scratch)
	envelopes, err := decodeEnvelopePayloadInto(raw, scratch)
	if err != nil {
		return nil, err
	}
	return append([]domain.Envelope(nil), envelopes...), nil
}

func decodeEnvelopePayloadInto(raw []byte, scratch *decodeScratch) ([]domain.Envelope, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	if payload[0] == '[' {
		decoder := json.NewDecoder(bytes.NewReader(payload))
		envelopes, err := domain.DecodeEnvelopesReader(decoder)
		if err != nil {
			return nil, err
		}
		if err := ensureJSONEOF(decoder); err != nil {
			return nil, err
		}
		scratch.envelopes = append(scratch.envelopes[:0], envelopes...)
		return scratch.envelopes, nil
	}
	envelope, err := domain.DecodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	scratch.envelopes = append(scratch.envelopes[:0], envelope)
	return scratch.envelopes, nil
}

func acquireDecodeScratch() *decodeScratch {
	return decodeScratchPool.Get().(*decodeScratch)
}

func releaseDecodeScratch(scratch *decodeScratch) {
	if scratch == nil {
		return
	}
	for i := range scratch.envelopes {
		scratch.envelopes[i] = domain.Envelope{}
	}
	if cap(scratch.envelopes) > maxPooledBatchCapacity {
		scratch.envelopes = make([]domain.Envelope, 0, 16)
	} else {
		scratch.envelopes = scratch.envelopes[:0]
	}
	decodeScratchPool.Put(scratch)
}

// ensureJSONEOF rejects trailing tokens after a decoded JSON payload.
// Params: decoder positioned after primary decode.
// Returns: nil on EOF or error on trailing tokens.
func ensureJSONEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode trailing json: %w", err)
	}
	return errors.New("unexpected trailing json tokens")
}

// pushEnvelopes sends envelopes to sink with optional batch support.
// Params: context, event sink, and envelope slice.
// Returns: first push error or nil.
func pushEnvelopes(ctx context.Context, sink EventSink, envelopes []domain.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	if batchSink, ok := sink.(batchEventSink); ok {
		return batchSink.PushBatch(ctx, envelopes)
	}
	for _, envelope := range envelopes {
		if err := sink.Push(ctx, envelope); err != nil {
			return err
		}
	}
	return nil
}
