package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// OperationRecord captures all information about a handler operation for audit
// logging. This provides an audit trail for every state-changing operation:
// credential stores, cron registrations, query updates, and notification checks.
//
// # Privacy Considerations
//
// The UserEmail field contains PII. When logging, consider:
//   - Using UserDomain() to get only the domain for metrics/general logs
//   - Only logging full email in audit-specific log streams
//   - Ensuring audit logs have appropriate access controls
type OperationRecord struct {
	// Operation name (oauth2callback, set_cron, set_edit_query, notify_check)
	Operation string

	// User identity (from OAuth)
	UserEmail string

	// Target information for Google services
	ServiceName string // Google service (gmail, cloudscheduler, pubsub)
	Action      string // Action type (get, create, update, search)

	// Scheduler resources touched by the operation
	JobID   string
	TopicID string

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// UserDomain returns the domain portion of the user's email for lower-cardinality logging.
func (r *OperationRecord) UserDomain() string {
	return ExtractUserDomain(r.UserEmail)
}

// Status returns "success" or "error" based on the Success field.
func (r *OperationRecord) Status() string {
	if r.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for structured logging.
// This provides a consistent set of fields for all operation logs.
//
// # Cardinality
//
// This function uses cardinality-controlled values (user_domain)
// for metrics-compatible logging. For full audit logging, use LogAuditAttrs.
func (r *OperationRecord) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("operation", r.Operation),
		slog.String("user_domain", r.UserDomain()),
		slog.Duration("duration", r.Duration),
		slog.Bool("success", r.Success),
	}

	// Add optional fields only if present
	if r.ServiceName != "" {
		attrs = append(attrs, slog.String("service", r.ServiceName))
	}
	if r.Action != "" {
		attrs = append(attrs, slog.String("action", r.Action))
	}
	if r.JobID != "" {
		attrs = append(attrs, slog.String("job", r.JobID))
	}
	if r.TopicID != "" {
		attrs = append(attrs, slog.String("topic", r.TopicID))
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}

	return attrs
}

// LogAuditAttrs returns slog attributes for full audit logging.
// This includes the full user email for compliance/audit purposes.
//
// # Security Warning
//
// This method includes PII (full email). Ensure audit logs are:
//   - Stored securely with appropriate access controls
//   - Not exposed to general monitoring dashboards
//   - Retained according to compliance requirements
func (r *OperationRecord) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("operation", r.Operation),
		slog.String("user", r.UserEmail),
		slog.Duration("duration", r.Duration),
		slog.Bool("success", r.Success),
	}

	// Add all optional fields
	if r.ServiceName != "" {
		attrs = append(attrs, slog.String("service", r.ServiceName))
	}
	if r.Action != "" {
		attrs = append(attrs, slog.String("action", r.Action))
	}
	if r.JobID != "" {
		attrs = append(attrs, slog.String("job", r.JobID))
	}
	if r.TopicID != "" {
		attrs = append(attrs, slog.String("topic", r.TopicID))
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", r.SpanID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}

	return attrs
}

// NewOperationRecord creates a new OperationRecord with timing started.
// Call Complete() when the operation finishes.
func NewOperationRecord(operation string) *OperationRecord {
	return &OperationRecord{
		Operation: operation,
		StartTime: time.Now(),
	}
}

// WithUser sets the user identity information.
func (r *OperationRecord) WithUser(email string) *OperationRecord {
	r.UserEmail = email
	return r
}

// WithTarget sets the Google service and action.
func (r *OperationRecord) WithTarget(serviceName, action string) *OperationRecord {
	r.ServiceName = serviceName
	r.Action = action
	return r
}

// WithSchedule sets the scheduler job and topic identifiers.
func (r *OperationRecord) WithSchedule(jobID, topicID string) *OperationRecord {
	r.JobID = jobID
	r.TopicID = topicID
	return r
}

// WithSpanContext extracts trace context from the current span.
func (r *OperationRecord) WithSpanContext(ctx context.Context) *OperationRecord {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.TraceID = span.SpanContext().TraceID().String()
		r.SpanID = span.SpanContext().SpanID().String()
	}
	return r
}

// Complete marks the operation as completed and calculates duration.
// Returns the same OperationRecord for method chaining.
func (r *OperationRecord) Complete(success bool, err error) *OperationRecord {
	r.Duration = time.Since(r.StartTime)
	r.Success = success
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// CompleteWithError marks the operation as failed with the given error.
func (r *OperationRecord) CompleteWithError(err error) *OperationRecord {
	return r.Complete(false, err)
}

// CompleteSuccess marks the operation as successful.
func (r *OperationRecord) CompleteSuccess() *OperationRecord {
	return r.Complete(true, nil)
}

// AuditLogger provides structured audit logging for handler operations.
// It wraps slog.Logger with convenience methods for logging state changes.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, PII is not included in logs (anonymized identifiers are used instead).
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: false,
		enabled:    true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// SetIncludePII sets whether to include full email addresses in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogOperation logs a handler operation using the standard log attributes.
// This is suitable for general operational logging with cardinality controls.
// If the logger is configured with IncludePII, full user emails are logged;
// otherwise, only domain-based anonymized identifiers are used.
func (al *AuditLogger) LogOperation(r *OperationRecord) {
	if !al.enabled {
		return
	}

	// Choose between PII and anonymized logging based on configuration
	var attrs []slog.Attr
	if al.includePII {
		attrs = r.LogAuditAttrs()
	} else {
		attrs = r.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if r.Success {
		al.logger.Info("operation_completed", args...)
	} else {
		al.logger.Warn("operation_failed", args...)
	}
}

// LogAudit logs a handler operation with full audit details.
// This includes PII (full email addresses) for compliance/audit purposes.
// SECURITY: Ensure audit logs are routed to secure storage with appropriate access controls.
//
// Note: This method respects the enabled flag but always includes PII when called,
// regardless of the IncludePII configuration. Use LogOperation for
// configuration-aware logging.
func (al *AuditLogger) LogAudit(r *OperationRecord) {
	if !al.enabled {
		return
	}

	attrs := r.LogAuditAttrs()
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	al.logger.Info("operation_audit", args...)
}
