package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/teemow/gmailnotifier/internal/instrumentation"
	"github.com/teemow/gmailnotifier/internal/logging"
	"github.com/teemow/gmailnotifier/internal/store"
)

// HandleSetEditQuery serves the query editor on GET and saves an updated
// query on POST. Other methods get 405.
func (h *Handlers) HandleSetEditQuery(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveQueryEditor(w, r)
	case http.MethodPost:
		h.saveQuery(w, r)
	default:
		http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

// serveQueryEditor renders the editor form, pre-filled with the stored query
// when one exists. A missing query is not an error; the page says so and the
// form starts empty.
func (h *Handlers) serveQueryEditor(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartHandlerSpan(r.Context(), "setEditQuery")
	defer span.End()

	email := r.URL.Query().Get("emailAddress")
	if !validateEmailParam(w, email) {
		return
	}
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithAccount(instrumentation.ExtractUserDomain(email)).
		Build()...)

	// The editor is only served for addresses that completed authorization.
	if _, err := h.store.GetCredential(ctx, email); err != nil {
		h.metrics.RecordQueryEdit(ctx, instrumentation.EditModeView, instrumentation.StatusError)
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "setEditQuery", fmt.Errorf("failed to load credential for %s: %w", logging.AnonymizeEmail(email), err))
		return
	}

	data := editorData{Email: email}
	stored, err := h.store.GetQuery(ctx, email)
	switch {
	case err == nil:
		data.HasQuery = true
		data.Query = stored.Query
		data.LastUpdated = stored.LastUpdated.Format(time.RFC1123)
	case errors.Is(err, store.ErrNotFound):
		// First visit: nothing saved yet.
	default:
		h.metrics.RecordQueryEdit(ctx, instrumentation.EditModeView, instrumentation.StatusError)
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "setEditQuery", fmt.Errorf("failed to load query for %s: %w", logging.AnonymizeEmail(email), err))
		return
	}

	h.metrics.RecordQueryEdit(ctx, instrumentation.EditModeView, instrumentation.StatusSuccess)
	instrumentation.SetSpanSuccess(span)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := editorTmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render editor page", logging.Err(err))
	}
}

// saveQuery overwrites the stored query for the submitted email. The write
// path does not trust a bare client-supplied address: the email must have a
// stored credential, otherwise the request is refused with 403 and nothing
// is written.
func (h *Handlers) saveQuery(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartHandlerSpan(r.Context(), "setEditQuery")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	email := r.PostFormValue("emailAddress")
	if !validateEmailParam(w, email) {
		return
	}
	query := r.PostFormValue("query")
	if query == "" {
		http.Error(w, msgNoQuery, http.StatusBadRequest)
		return
	}
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithAccount(instrumentation.ExtractUserDomain(email)).
		Build()...)

	record := instrumentation.NewOperationRecord("setEditQuery").
		WithUser(email).
		WithTarget(instrumentation.ServiceGmail, instrumentation.ActionUpdate).
		WithSpanContext(ctx)

	authorized, err := h.store.HasCredential(ctx, email)
	if err != nil {
		h.metrics.RecordQueryEdit(ctx, instrumentation.EditModeUpdate, instrumentation.StatusError)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "setEditQuery", fmt.Errorf("failed to check credential for %s: %w", logging.AnonymizeEmail(email), err))
		return
	}
	if !authorized {
		h.logger.Warn("query update refused: no credential on file",
			logging.Handler("setEditQuery"),
			logging.UserHash(email),
		)
		h.metrics.RecordQueryEdit(ctx, instrumentation.EditModeUpdate, instrumentation.StatusError)
		h.audit.LogOperation(record.CompleteWithError(errors.New("no credential on file")))
		http.Error(w, msgNotAuthorized, http.StatusForbidden)
		return
	}

	if err := h.store.SaveQuery(ctx, email, query, h.now()); err != nil {
		h.metrics.RecordQueryEdit(ctx, instrumentation.EditModeUpdate, instrumentation.StatusError)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "setEditQuery", fmt.Errorf("failed to save query for %s: %w", logging.AnonymizeEmail(email), err))
		return
	}

	h.metrics.RecordQueryEdit(ctx, instrumentation.EditModeUpdate, instrumentation.StatusSuccess)
	h.audit.LogOperation(record.CompleteSuccess())
	instrumentation.SetSpanSuccess(span)
	h.logger.Info("query updated",
		logging.Handler("setEditQuery"),
		logging.UserHash(email),
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := querySavedTmpl.Execute(w, querySavedData{Email: email, Query: query}); err != nil {
		h.logger.Error("failed to render confirmation page", logging.Err(err))
	}
}
