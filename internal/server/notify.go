package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/teemow/gmailnotifier/internal/instrumentation"
	"github.com/teemow/gmailnotifier/internal/logging"
	"github.com/teemow/gmailnotifier/internal/scheduler"
	"github.com/teemow/gmailnotifier/internal/store"
)

// pushEnvelope is the Pub/Sub push delivery wrapper around the scheduled
// job's payload.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// HandleNotify processes one scheduled check delivered via Pub/Sub push: it
// decodes the job payload and runs the notification check for that user.
// Responds 204 so the subscription acks the message; upstream failures get
// the generic 500 and the message is redelivered.
func (h *Handlers) HandleNotify(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartHandlerSpan(r.Context(), "notify")
	defer span.End()

	if r.Method != http.MethodPost {
		http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	var envelope pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		http.Error(w, "Invalid push envelope", http.StatusBadRequest)
		return
	}

	payload, err := scheduler.DecodePayload(envelope.Message.Data)
	if err != nil {
		h.logger.Warn("push message with undecodable payload",
			logging.Handler("notify"),
			logging.Err(err),
		)
		http.Error(w, "Invalid message payload", http.StatusBadRequest)
		return
	}
	email := payload.EmailAddress
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithAccount(instrumentation.ExtractUserDomain(email)).
		Build()...)

	record := instrumentation.NewOperationRecord("notify").
		WithUser(email).
		WithTarget(instrumentation.ServiceGmail, instrumentation.ActionSearch).
		WithSpanContext(ctx)

	start := h.now()
	matched, err := h.RunCheck(ctx, email)
	duration := h.now().Sub(start)
	if err != nil {
		h.metrics.RecordNotificationCheck(ctx, instrumentation.StatusError, duration)
		h.metrics.RecordNotificationCheckForAccount(ctx, instrumentation.StatusError, instrumentation.ExtractUserDomain(email), duration)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "notify", err)
		return
	}

	h.metrics.RecordNotificationCheck(ctx, instrumentation.StatusSuccess, duration)
	h.metrics.RecordNotificationCheckForAccount(ctx, instrumentation.StatusSuccess, instrumentation.ExtractUserDomain(email), duration)
	h.audit.LogOperation(record.CompleteSuccess())
	instrumentation.SetSpanSuccess(span)
	h.logger.Info("check completed",
		logging.Handler("notify"),
		logging.UserHash(email),
		slog.Int("matched", matched),
	)

	w.WriteHeader(http.StatusNoContent)
}

// RunCheck performs one notification check for the given email: list the
// messages matching the stored query that arrived after the recorded
// last-run time, then advance the marker to the start of this check.
// Returns the number of matching messages.
//
// No stored query means there is nothing to check; that is a successful
// no-op, and the last-run marker stays put. The marker only advances after
// a completed search, so a failed check re-covers the same window on the
// next run rather than silently skipping it.
func (h *Handlers) RunCheck(ctx context.Context, email string) (int, error) {
	start := h.now()

	stored, err := h.store.GetQuery(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Debug("no stored query, skipping check", logging.UserHash(email))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load query for %s: %w", logging.AnonymizeEmail(email), err)
	}

	token, err := h.store.GetCredential(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("failed to load credential for %s: %w", logging.AnonymizeEmail(email), err)
	}

	mail, err := h.newMail(ctx, h.oauth.TokenSource(ctx, token))
	if err != nil {
		return 0, fmt.Errorf("failed to build gmail client: %w", err)
	}

	since, err := h.store.GetLastRun(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("failed to load last run for %s: %w", logging.AnonymizeEmail(email), err)
	}

	msgs, err := mail.SearchSince(ctx, stored.Query, since)
	if err != nil {
		return 0, fmt.Errorf("failed to search messages for %s: %w", logging.AnonymizeEmail(email), err)
	}

	if len(msgs) > 0 {
		h.logger.Info("matching messages found",
			logging.UserHash(email),
			slog.Int("count", len(msgs)),
		)
		h.metrics.AddMessagesMatched(ctx, int64(len(msgs)))
	}

	if err := h.store.SaveLastRun(ctx, email, start); err != nil {
		return 0, fmt.Errorf("failed to record run for %s: %w", logging.AnonymizeEmail(email), err)
	}

	return len(msgs), nil
}
