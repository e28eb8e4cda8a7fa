package server

import (
	"fmt"
	"net/http"

	"github.com/teemow/gmailnotifier/internal/instrumentation"
	"github.com/teemow/gmailnotifier/internal/logging"
)

// HandleSetCron registers the recurring Gmail check for an email address:
// it verifies a stored credential exists, ensures the delivery topic, creates
// or updates the scheduler job, and records the registration time as the
// initial last-run marker.
//
// The email is user-supplied here, so a credential on file is a hard
// precondition: scheduling checks for an address that never authorized would
// only produce failing runs.
func (h *Handlers) HandleSetCron(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartHandlerSpan(r.Context(), "setCron")
	defer span.End()

	if r.Method != http.MethodGet {
		http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	email := r.URL.Query().Get("emailAddress")
	if !validateEmailParam(w, email) {
		return
	}
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithAccount(instrumentation.ExtractUserDomain(email)).
		Build()...)

	record := instrumentation.NewOperationRecord("setCron").
		WithUser(email).
		WithTarget(instrumentation.ServiceScheduler, instrumentation.ActionCreate).
		WithSpanContext(ctx)

	// Absence and lookup failure surface identically to the client; the log
	// entry carries the difference.
	if _, err := h.store.GetCredential(ctx, email); err != nil {
		h.metrics.RecordCronRegistration(ctx, instrumentation.StatusError)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "setCron", fmt.Errorf("failed to load credential for %s: %w", logging.AnonymizeEmail(email), err))
		return
	}

	registeredAt := h.now()
	if err := h.registrar.EnsureSchedule(ctx, email, registeredAt); err != nil {
		h.metrics.RecordCronRegistration(ctx, instrumentation.StatusError)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "setCron", fmt.Errorf("failed to register schedule for %s: %w", logging.AnonymizeEmail(email), err))
		return
	}

	if err := h.store.SaveLastRun(ctx, email, registeredAt); err != nil {
		h.metrics.RecordCronRegistration(ctx, instrumentation.StatusError)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "setCron", fmt.Errorf("failed to record registration time for %s: %w", logging.AnonymizeEmail(email), err))
		return
	}

	h.metrics.RecordCronRegistration(ctx, instrumentation.StatusSuccess)
	h.audit.LogOperation(record.CompleteSuccess())
	instrumentation.SetSpanSuccess(span)
	h.logger.Info("schedule registered",
		logging.Handler("setCron"),
		logging.UserHash(email),
	)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(msgCronInitialized))
}
