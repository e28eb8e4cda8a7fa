// Package instrumentation provides comprehensive OpenTelemetry instrumentation
// for the gmailnotifier service.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, OAuth flows, and Google API calls
//   - Distributed tracing for request flows and API calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - pending_auth_flows: Gauge of authorization flows awaiting callback
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Google API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API operation durations
//
// OAuth Metrics:
//   - oauth_flows_total: Counter of completed authorization flows by result
//   - oauth_token_exchanges_total: Counter of authorization code exchanges by result
//
// Watcher Lifecycle Metrics:
//   - cron_registrations_total: Counter of cron schedule registrations by result
//   - query_edits_total: Counter of query editor accesses by mode and result
//   - notification_checks_total: Counter of scheduled notification checks by status
//   - notification_check_duration_seconds: Histogram of notification check durations
//   - gmail_messages_matched_total: Counter of Gmail messages matched by checks
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling (http.<handler>)
//   - Google API calls (google.<service>.<action>)
//   - OAuth token operations
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: gmailnotifier)
//   - GOOGLE_CLOUD_PROJECT: Cloud project used as a resource attribute
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "gmailnotifier",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "POST", "/setCron", 200, time.Since(start))
//
//	// Record a Google API operation
//	recorder.RecordGoogleAPIOperation(ctx, "gmail", "search", "success", time.Since(start))
//
//	// Record a cron registration
//	recorder.RecordCronRegistration(ctx, "success")
package instrumentation
