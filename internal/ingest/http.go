package ingest

import (
	"io"
	"log/slog"
	"net/http"

	"alertrules/internal/metrics"
)

// HTTPHandler decodes JSON envelopes and forwards them to sink.
// Params: sink receives validated envelopes, max body limits payload size.
// Returns: HTTP handler for ingest endpoint.
type HTTPHandler struct {
	sink        EventSink
	maxBodySize int64
	logger      *slog.Logger
}

// NewHTTPHandler creates ingest HTTP handler.
// Params: sink, max request body size in bytes, and optional logger.
// Returns: configured handler.
func NewHTTPHandler(sink EventSink, maxBodySize int64, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{sink: sink, maxBodySize: maxBodySize, logger: logger}
}

// ServeHTTP handles one incoming envelope or envelope batch.
// Params: HTTP request/response writer pair.
// Returns: 202 on success, 400 on malformed payload, 503 when sink fails.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.maxBodySize > 0 {
		request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	}
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues(TransportHTTP, "rejected").Inc()
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	envelopes, err := decodeEnvelopePayload(body)
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues(TransportHTTP, "rejected").Inc()
		h.logger.Debug("http ingest decode failed", "error", err.Error())
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	if err := pushEnvelopes(request.Context(), h.sink, envelopes); err != nil {
		metrics.IngestEventsTotal.WithLabelValues(TransportHTTP, "failed").Add(float64(len(envelopes)))
		h.logger.Error("http ingest push failed", "envelopes", len(envelopes), "error", err.Error())
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	metrics.IngestEventsTotal.WithLabelValues(TransportHTTP, "accepted").Add(float64(len(envelopes)))
	writer.WriteHeader(http.StatusAccepted)
}
