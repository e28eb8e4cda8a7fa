package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrMode      = "mode"
	attrAccount   = "account"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	pendingAuthFlows    metric.Int64UpDownCounter

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// OAuth metrics
	oauthFlowsTotal     metric.Int64Counter
	tokenExchangesTotal metric.Int64Counter

	// Watcher lifecycle metrics
	cronRegistrationsTotal    metric.Int64Counter
	queryEditsTotal           metric.Int64Counter
	notificationChecksTotal   metric.Int64Counter
	notificationCheckDuration metric.Float64Histogram
	messagesMatchedTotal      metric.Int64Counter

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.pendingAuthFlows, err = meter.Int64UpDownCounter(
		"pending_auth_flows",
		metric.WithDescription("Number of authorization flows awaiting callback"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending_auth_flows gauge: %w", err)
	}

	// Google API Metrics
	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	// OAuth Metrics
	m.oauthFlowsTotal, err = meter.Int64Counter(
		"oauth_flows_total",
		metric.WithDescription("Total number of completed OAuth authorization flows"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_flows_total counter: %w", err)
	}

	m.tokenExchangesTotal, err = meter.Int64Counter(
		"oauth_token_exchanges_total",
		metric.WithDescription("Total number of authorization code exchanges"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_exchanges_total counter: %w", err)
	}

	// Watcher lifecycle Metrics
	m.cronRegistrationsTotal, err = meter.Int64Counter(
		"cron_registrations_total",
		metric.WithDescription("Total number of cron schedule registrations"),
		metric.WithUnit("{registration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cron_registrations_total counter: %w", err)
	}

	m.queryEditsTotal, err = meter.Int64Counter(
		"query_edits_total",
		metric.WithDescription("Total number of query editor accesses"),
		metric.WithUnit("{access}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query_edits_total counter: %w", err)
	}

	m.notificationChecksTotal, err = meter.Int64Counter(
		"notification_checks_total",
		metric.WithDescription("Total number of scheduled notification checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification_checks_total counter: %w", err)
	}

	m.notificationCheckDuration, err = meter.Float64Histogram(
		"notification_check_duration_seconds",
		metric.WithDescription("Notification check duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification_check_duration_seconds histogram: %w", err)
	}

	m.messagesMatchedTotal, err = meter.Int64Counter(
		"gmail_messages_matched_total",
		metric.WithDescription("Total number of Gmail messages matched by notification checks"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_messages_matched_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (gmail, cloudscheduler, pubsub)
//   - operation: Operation type (get, create, update, search, etc.)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthFlow records a completed OAuth authorization flow with result.
// Result should be one of: "success", "failure", "denied"
func (m *Metrics) RecordOAuthFlow(ctx context.Context, result string) {
	if m.oauthFlowsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.oauthFlowsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTokenExchange records an authorization code exchange attempt with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordTokenExchange(ctx context.Context, result string) {
	if m.tokenExchangesTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.tokenExchangesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCronRegistration records a cron schedule registration attempt with result.
// Result should be one of: "success", "error"
func (m *Metrics) RecordCronRegistration(ctx context.Context, result string) {
	if m.cronRegistrationsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.cronRegistrationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordQueryEdit records a query editor access.
//
// Parameters:
//   - mode: Access mode ("view" for form rendering, "update" for saves)
//   - result: Result status ("success" or "error")
func (m *Metrics) RecordQueryEdit(ctx context.Context, mode, result string) {
	if m.queryEditsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMode, mode),
		attribute.String(attrResult, result),
	}

	m.queryEditsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotificationCheck records a scheduled notification check with status and duration.
func (m *Metrics) RecordNotificationCheck(ctx context.Context, status string, duration time.Duration) {
	if m.notificationChecksTotal == nil || m.notificationCheckDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}

	m.notificationChecksTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.notificationCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordNotificationCheckForAccount records a notification check with account info.
// This is the detailed version that includes account information when detailedLabels is enabled.
//
// Parameters:
//   - status: Result status ("success" or "error")
//   - account: User email the check ran for (only included if detailedLabels is true)
//   - duration: Time taken for the check
func (m *Metrics) RecordNotificationCheckForAccount(ctx context.Context, status, account string, duration time.Duration) {
	if m.notificationChecksTotal == nil || m.notificationCheckDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.notificationChecksTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.notificationCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// AddMessagesMatched adds to the count of Gmail messages matched by checks.
func (m *Metrics) AddMessagesMatched(ctx context.Context, count int64) {
	if m.messagesMatchedTotal == nil {
		return // Instrumentation not initialized
	}

	m.messagesMatchedTotal.Add(ctx, count)
}

// IncrementPendingAuthFlows increments the pending authorization flows counter.
func (m *Metrics) IncrementPendingAuthFlows(ctx context.Context) {
	if m.pendingAuthFlows == nil {
		return // Instrumentation not initialized
	}

	m.pendingAuthFlows.Add(ctx, 1)
}

// DecrementPendingAuthFlows decrements the pending authorization flows counter.
func (m *Metrics) DecrementPendingAuthFlows(ctx context.Context) {
	if m.pendingAuthFlows == nil {
		return // Instrumentation not initialized
	}

	m.pendingAuthFlows.Add(ctx, -1)
}
