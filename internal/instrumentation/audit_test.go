package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const (
	testEmail  = "jane@example.com"
	testDomain = "example.com"
	testJobID  = "gmail-check-jane"
	testTopic  = "gmail-notify-jane"
)

func TestOperationRecord_NewAndComplete(t *testing.T) {
	r := NewOperationRecord("set_cron")

	// Verify initial state
	if r.Operation != "set_cron" {
		t.Errorf("Operation = %q, want %q", r.Operation, "set_cron")
	}
	if r.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	// Complete the record - duration should be calculated from StartTime
	r.CompleteSuccess()

	if !r.Success {
		t.Error("Success should be true")
	}
	// Duration is calculated from StartTime, so it should be >= 0
	// We don't check for > 0 as the test may complete instantly
	if r.Duration < 0 {
		t.Error("Duration should not be negative")
	}
	if r.Error != "" {
		t.Errorf("Error should be empty, got %q", r.Error)
	}
}

func TestOperationRecord_CompleteWithError(t *testing.T) {
	r := NewOperationRecord("oauth2callback")
	err := errors.New("token exchange failed")

	r.CompleteWithError(err)

	if r.Success {
		t.Error("Success should be false")
	}
	if r.Error != "token exchange failed" {
		t.Errorf("Error = %q, want %q", r.Error, "token exchange failed")
	}
}

func TestOperationRecord_WithUser(t *testing.T) {
	r := NewOperationRecord("set_cron")
	r.WithUser(testEmail)

	if r.UserEmail != testEmail {
		t.Errorf("UserEmail = %q, want %q", r.UserEmail, testEmail)
	}
}

func TestOperationRecord_WithTarget(t *testing.T) {
	r := NewOperationRecord("notify_check")
	r.WithTarget(ServiceGmail, ActionSearch)

	if r.ServiceName != ServiceGmail {
		t.Errorf("ServiceName = %q, want %q", r.ServiceName, ServiceGmail)
	}
	if r.Action != ActionSearch {
		t.Errorf("Action = %q, want %q", r.Action, ActionSearch)
	}
}

func TestOperationRecord_WithSchedule(t *testing.T) {
	r := NewOperationRecord("set_cron")
	r.WithSchedule(testJobID, testTopic)

	if r.JobID != testJobID {
		t.Errorf("JobID = %q, want %q", r.JobID, testJobID)
	}
	if r.TopicID != testTopic {
		t.Errorf("TopicID = %q, want %q", r.TopicID, testTopic)
	}
}

func TestOperationRecord_WithSpanContext_NoSpan(t *testing.T) {
	r := NewOperationRecord("set_cron")
	r.WithSpanContext(context.Background())

	if r.TraceID != "" {
		t.Errorf("TraceID should be empty without a span, got %q", r.TraceID)
	}
	if r.SpanID != "" {
		t.Errorf("SpanID should be empty without a span, got %q", r.SpanID)
	}
}

func TestOperationRecord_UserDomain(t *testing.T) {
	r := NewOperationRecord("test")
	r.UserEmail = testEmail

	if domain := r.UserDomain(); domain != testDomain {
		t.Errorf("UserDomain() = %q, want %q", domain, testDomain)
	}
}

func TestOperationRecord_Status(t *testing.T) {
	r := NewOperationRecord("test")

	r.Success = true
	if status := r.Status(); status != StatusSuccess {
		t.Errorf("Status() = %q, want %q", status, StatusSuccess)
	}

	r.Success = false
	if status := r.Status(); status != StatusError {
		t.Errorf("Status() = %q, want %q", status, StatusError)
	}
}

func TestOperationRecord_LogAttrs(t *testing.T) {
	r := NewOperationRecord("set_cron")
	r.WithUser(testEmail).
		WithTarget(ServiceScheduler, ActionCreate).
		WithSchedule(testJobID, testTopic).
		CompleteSuccess()

	attrs := r.LogAttrs()

	attrMap := make(map[string]slog.Attr, len(attrs))
	for _, attr := range attrs {
		attrMap[attr.Key] = attr
	}

	if _, ok := attrMap["user"]; ok {
		t.Error("LogAttrs should not include the full email")
	}
	if got := attrMap["user_domain"].Value.String(); got != testDomain {
		t.Errorf("user_domain = %q, want %q", got, testDomain)
	}
	if got := attrMap["job"].Value.String(); got != testJobID {
		t.Errorf("job = %q, want %q", got, testJobID)
	}
	if got := attrMap["topic"].Value.String(); got != testTopic {
		t.Errorf("topic = %q, want %q", got, testTopic)
	}
}

func TestOperationRecord_LogAuditAttrs(t *testing.T) {
	r := NewOperationRecord("oauth2callback")
	r.WithUser(testEmail).
		WithTarget(ServiceGmail, ActionGet).
		CompleteSuccess()

	attrs := r.LogAuditAttrs()

	attrMap := make(map[string]slog.Attr, len(attrs))
	for _, attr := range attrs {
		attrMap[attr.Key] = attr
	}

	if got := attrMap["user"].Value.String(); got != testEmail {
		t.Errorf("user = %q, want full email %q", got, testEmail)
	}
	if got := attrMap["service"].Value.String(); got != ServiceGmail {
		t.Errorf("service = %q, want %q", got, ServiceGmail)
	}
}

func newBufferedLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestAuditLogger_LogOperation_Success(t *testing.T) {
	logger, buf := newBufferedLogger()
	al := NewAuditLogger(logger)

	r := NewOperationRecord("set_cron").WithUser(testEmail)
	r.CompleteSuccess()

	al.LogOperation(r)

	out := buf.String()
	if !strings.Contains(out, "operation_completed") {
		t.Errorf("expected 'operation_completed' in output, got %q", out)
	}
	if strings.Contains(out, testEmail) {
		t.Errorf("full email should not appear without IncludePII, got %q", out)
	}
	if !strings.Contains(out, testDomain) {
		t.Errorf("expected user domain in output, got %q", out)
	}
}

func TestAuditLogger_LogOperation_Failure(t *testing.T) {
	logger, buf := newBufferedLogger()
	al := NewAuditLogger(logger)

	r := NewOperationRecord("set_cron").WithUser(testEmail)
	r.CompleteWithError(errors.New("registration failed"))

	al.LogOperation(r)

	out := buf.String()
	if !strings.Contains(out, "operation_failed") {
		t.Errorf("expected 'operation_failed' in output, got %q", out)
	}
	if !strings.Contains(out, "registration failed") {
		t.Errorf("expected error message in output, got %q", out)
	}
}

func TestAuditLogger_LogOperation_IncludePII(t *testing.T) {
	logger, buf := newBufferedLogger()
	al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{
		Enabled:    true,
		IncludePII: true,
	})

	r := NewOperationRecord("oauth2callback").WithUser(testEmail)
	r.CompleteSuccess()

	al.LogOperation(r)

	if !strings.Contains(buf.String(), testEmail) {
		t.Errorf("expected full email with IncludePII, got %q", buf.String())
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	logger, buf := newBufferedLogger()
	al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{
		Enabled: false,
	})

	r := NewOperationRecord("set_cron").WithUser(testEmail)
	r.CompleteSuccess()

	al.LogOperation(r)
	al.LogAudit(r)

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got %q", buf.String())
	}
}

func TestAuditLogger_LogAudit_AlwaysIncludesPII(t *testing.T) {
	logger, buf := newBufferedLogger()
	al := NewAuditLogger(logger) // IncludePII defaults to false

	r := NewOperationRecord("set_edit_query").WithUser(testEmail)
	r.CompleteSuccess()

	al.LogAudit(r)

	out := buf.String()
	if !strings.Contains(out, "operation_audit") {
		t.Errorf("expected 'operation_audit' in output, got %q", out)
	}
	if !strings.Contains(out, testEmail) {
		t.Errorf("LogAudit should always include the full email, got %q", out)
	}
}

func TestAuditLogger_NilLogger(t *testing.T) {
	al := NewAuditLogger(nil)

	r := NewOperationRecord("set_cron")
	r.CompleteSuccess()

	// Should fall back to slog.Default and not panic
	al.LogOperation(r)
}
