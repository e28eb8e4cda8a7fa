package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailnotifier/internal/instrumentation"
	"github.com/teemow/gmailnotifier/internal/logging"
	"github.com/teemow/gmailnotifier/internal/store"
)

// User-facing response bodies. The exact strings are part of the HTTP
// contract; clients and tests match on them.
const (
	msgNoEmail          = "No emailAddress specified."
	msgInvalidEmail     = "Invalid emailAddress."
	msgCronInitialized  = "Cron initialized!"
	msgNoQuery          = "No query specified."
	msgInvalidState     = "Invalid state parameter"
	msgMissingCode      = "Missing authorization code"
	msgAuthDenied       = "Authorization failed"
	msgNotAuthorized    = "No authorization on file for this email address."
	msgMethodNotAllowed = "Method not allowed"
	msgServerError      = "Something went wrong; check the server logs."
)

// OAuthExchanger is the part of the OAuth client the handlers use.
type OAuthExchanger interface {
	// AuthCodeURL builds the provider consent URL carrying the state parameter.
	AuthCodeURL(state string) string

	// Exchange redeems an authorization code for a token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// TokenSource wraps a stored token with automatic refresh.
	TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource
}

// MailClient is the per-credential Gmail surface the handlers use.
type MailClient interface {
	// Profile returns the authenticated user's email address.
	Profile(ctx context.Context) (string, error)

	// SearchSince lists messages matching query received after the given time.
	SearchSince(ctx context.Context, query string, after time.Time) ([]*gmailapi.Message, error)
}

// MailClientFactory builds a MailClient bound to a user credential.
type MailClientFactory func(ctx context.Context, ts oauth2.TokenSource) (MailClient, error)

// ScheduleRegistrar ensures the delivery topic and recurring check job exist
// for a user.
type ScheduleRegistrar interface {
	EnsureSchedule(ctx context.Context, email string, registeredAt time.Time) error
}

// Handlers bundles the HTTP entry points with their collaborators. Every
// request is an independent cycle over the shared store, OAuth client, and
// registrar; handler steps run strictly sequentially with no retries.
type Handlers struct {
	oauth     OAuthExchanger
	store     store.Store
	registrar ScheduleRegistrar
	newMail   MailClientFactory
	states    *StateRegistry
	metrics   *instrumentation.Metrics
	audit     *instrumentation.AuditLogger
	logger    *slog.Logger
	now       func() time.Time
}

// HandlersConfig configures the handler set. OAuth, Store, Registrar, and
// MailClient are required; the rest default sensibly.
type HandlersConfig struct {
	OAuth      OAuthExchanger
	Store      store.Store
	Registrar  ScheduleRegistrar
	MailClient MailClientFactory

	// States holds outstanding OAuth state parameters. Defaults to a fresh
	// registry with DefaultStateTTL.
	States *StateRegistry

	// Metrics may be nil; a no-op recorder is used.
	Metrics *instrumentation.Metrics

	// Audit may be nil; a non-PII audit logger on Logger is used.
	Audit *instrumentation.AuditLogger

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewHandlers validates the configuration and builds the handler set.
func NewHandlers(cfg HandlersConfig) (*Handlers, error) {
	if cfg.OAuth == nil {
		return nil, fmt.Errorf("oauth client is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Registrar == nil {
		return nil, fmt.Errorf("schedule registrar is required")
	}
	if cfg.MailClient == nil {
		return nil, fmt.Errorf("mail client factory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &instrumentation.Metrics{} // no-op recorder
	}
	if cfg.States == nil {
		cfg.States = NewStateRegistry(DefaultStateTTL, cfg.Logger, cfg.Metrics)
	}
	if cfg.Audit == nil {
		cfg.Audit = instrumentation.NewAuditLogger(cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Handlers{
		oauth:     cfg.OAuth,
		store:     cfg.Store,
		registrar: cfg.Registrar,
		newMail:   cfg.MailClient,
		states:    cfg.States,
		metrics:   cfg.Metrics,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// serverError logs the detailed failure and answers with the generic 500
// body. Upstream detail never reaches the client.
func (h *Handlers) serverError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	handlerLogger(ctx, h.logger).Error("request failed",
		logging.Operation(operation),
		logging.Err(err),
	)
	http.Error(w, msgServerError, http.StatusInternalServerError)
}

// HandleOAuth2Init starts the authorization flow: it registers a fresh
// single-use state parameter and redirects to the provider consent page
// requesting offline access with a forced consent prompt.
func (h *Handlers) HandleOAuth2Init(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartHandlerSpan(r.Context(), "oauth2init")
	defer span.End()

	if r.Method != http.MethodGet {
		http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	state, err := h.states.Issue()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "oauth2init", fmt.Errorf("failed to issue state parameter: %w", err))
		return
	}

	instrumentation.SetSpanSuccess(span)
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleOAuth2Callback completes the authorization flow. Strictly in order:
// validate the state parameter, exchange the code, resolve the authenticated
// email via the Gmail profile, persist the credential under that email, then
// confirm with links to the follow-up endpoints. Nothing is persisted unless
// every step before it succeeded, so the flow is all-or-nothing from the
// caller's perspective.
func (h *Handlers) HandleOAuth2Callback(w http.ResponseWriter, r *http.Request) {
	ctx, span := instrumentation.StartHandlerSpan(r.Context(), "oauth2callback")
	defer span.End()

	if r.Method != http.MethodGet {
		http.Error(w, msgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	// The provider reports consent denial via the error parameter.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Warn("authorization denied by provider",
			logging.Handler("oauth2callback"),
			slog.String("provider_error", errParam),
		)
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthResultDenied)
		http.Error(w, msgAuthDenied, http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" || !h.states.Consume(state) {
		h.logger.Warn("callback with invalid or replayed state",
			logging.Handler("oauth2callback"),
		)
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthResultFailure)
		http.Error(w, msgInvalidState, http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthResultFailure)
		http.Error(w, msgMissingCode, http.StatusBadRequest)
		return
	}

	record := instrumentation.NewOperationRecord("oauth2callback").
		WithTarget(instrumentation.ServiceGmail, instrumentation.ActionGet).
		WithSpanContext(ctx)

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.metrics.RecordTokenExchange(ctx, instrumentation.StatusError)
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthResultFailure)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "oauth2callback", fmt.Errorf("failed to exchange authorization code: %w", err))
		return
	}
	h.metrics.RecordTokenExchange(ctx, instrumentation.StatusSuccess)

	// The email under which the credential is stored comes from the identity
	// provider, never from request input.
	mail, err := h.newMail(ctx, h.oauth.TokenSource(ctx, token))
	if err != nil {
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthResultFailure)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "oauth2callback", fmt.Errorf("failed to build gmail client: %w", err))
		return
	}

	email, err := mail.Profile(ctx)
	if err != nil {
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthResultFailure)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "oauth2callback", fmt.Errorf("failed to resolve profile: %w", err))
		return
	}
	record.WithUser(email)

	if err := h.store.SaveCredential(ctx, email, token); err != nil {
		h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthResultFailure)
		h.audit.LogOperation(record.CompleteWithError(err))
		instrumentation.SetSpanError(span, err)
		h.serverError(ctx, w, "oauth2callback", fmt.Errorf("failed to save credential for %s: %w", logging.AnonymizeEmail(email), err))
		return
	}

	h.metrics.RecordOAuthFlow(ctx, instrumentation.OAuthResultSuccess)
	h.audit.LogOperation(record.CompleteSuccess())
	instrumentation.SetSpanSuccess(span)
	h.logger.Info("credential stored",
		logging.Handler("oauth2callback"),
		logging.UserHash(email),
	)

	data := confirmationData{
		Email:    email,
		CronURL:  "/setCron?emailAddress=" + url.QueryEscape(email),
		QueryURL: "/setEditQuery?emailAddress=" + url.QueryEscape(email),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := confirmationTmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render confirmation page", logging.Err(err))
	}
}

// validateEmailParam applies the minimal validation handlers perform on
// user-supplied addresses. It writes the appropriate 400 response and returns
// false when the value is unusable. The two failure bodies are distinct so
// callers can tell "forgot the parameter" from "not an email".
func validateEmailParam(w http.ResponseWriter, email string) bool {
	if email == "" {
		http.Error(w, msgNoEmail, http.StatusBadRequest)
		return false
	}
	if !strings.Contains(email, "@") {
		http.Error(w, msgInvalidEmail, http.StatusBadRequest)
		return false
	}
	return true
}
