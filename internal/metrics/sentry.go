package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	// HTTP status code threshold for considering a request successful
	successStatusCodeThreshold = http.StatusBadRequest
)

// SentryMetrics records request and generation spans in Sentry
type SentryMetrics struct {
	enabled bool
}

// NewSentryMetrics creates a new Sentry metrics client
func NewSentryMetrics() *SentryMetrics {
	return &SentryMetrics{
		enabled: true, // spans are dropped by the SDK when Sentry is not initialized
	}
}

// RecordAPIRequest records API request metrics
func (m *SentryMetrics) RecordAPIRequest(ctx context.Context, endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "api.request")
	defer span.Finish()

	span.SetTag("endpoint", endpoint)
	span.SetTag("status_code", strconv.Itoa(statusCode))
	span.SetTag("success", strconv.FormatBool(statusCode < successStatusCodeThreshold))

	span.SetData("duration_ms", duration.Milliseconds())
	span.SetData("endpoint", endpoint)
	span.SetData("status_code", statusCode)

	if statusCode < successStatusCodeThreshold {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}

	span.Description = fmt.Sprintf("API Request: %s", endpoint)
}

// RecordGeneration tags the request transaction and adds a generation span
func (m *SentryMetrics) RecordGeneration(ctx context.Context, stats GenerationStats) {
	if !m.enabled {
		return
	}

	if transaction := sentry.TransactionFromContext(ctx); transaction != nil {
		transaction.SetTag("melody.model", stats.Model)
		transaction.SetTag("melody.strategy", stats.Strategy)
		transaction.SetData("melody.steps", stats.Steps)
		transaction.SetData("melody.events", stats.Events)
	}

	span := sentry.StartSpan(ctx, "melody.generation")
	defer span.Finish()

	span.SetTag("model", stats.Model)
	span.SetTag("strategy", stats.Strategy)
	span.SetTag("success", strconv.FormatBool(stats.Success))
	if stats.StopReason != "" {
		span.SetTag("stop_reason", stats.StopReason)
	}
	if stats.ErrorKind != "" {
		span.SetTag("error_kind", stats.ErrorKind)
	}

	span.SetData("duration_ms", stats.Duration.Milliseconds())
	span.SetData("steps", stats.Steps)
	span.SetData("events", stats.Events)
	span.SetData("dropped_events", stats.DroppedEvents)

	if stats.Success {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}

	span.Description = fmt.Sprintf("Melody Generation: %s", stats.Model)
}
