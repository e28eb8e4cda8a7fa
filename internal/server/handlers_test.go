package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailnotifier/internal/store"
	"github.com/teemow/gmailnotifier/internal/store/memory"
)

const testUserEmail = "jane.doe@example.com"

// fakeOAuth implements OAuthExchanger against a canned token.
type fakeOAuth struct {
	exchangeErr   error
	exchangedCode string
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?access_type=offline&prompt=consent&state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	f.exchangedCode = code
	return &oauth2.Token{
		AccessToken:  "ya29.test-access",
		RefreshToken: "1//test-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeOAuth) TokenSource(_ context.Context, token *oauth2.Token) oauth2.TokenSource {
	return oauth2.StaticTokenSource(token)
}

// fakeMail implements MailClient and records what it was asked.
type fakeMail struct {
	email      string
	profileErr error
	messages   []*gmailapi.Message
	searchErr  error
	gotQuery   string
	gotAfter   time.Time
}

func (f *fakeMail) Profile(_ context.Context) (string, error) {
	if f.profileErr != nil {
		return "", f.profileErr
	}
	return f.email, nil
}

func (f *fakeMail) SearchSince(_ context.Context, query string, after time.Time) ([]*gmailapi.Message, error) {
	f.gotQuery = query
	f.gotAfter = after
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.messages, nil
}

// fakeRegistrar implements ScheduleRegistrar and records calls.
type fakeRegistrar struct {
	err      error
	calls    int
	gotEmail string
	gotAt    time.Time
}

func (f *fakeRegistrar) EnsureSchedule(_ context.Context, email string, registeredAt time.Time) error {
	f.calls++
	f.gotEmail = email
	f.gotAt = registeredAt
	return f.err
}

// failingStore wraps a real store, failing selected operations.
type failingStore struct {
	store.Store
	saveCredentialErr error
	getCredentialErr  error
	hasCredentialErr  error
	saveQueryErr      error
	getQueryErr       error
	saveLastRunErr    error
	getLastRunErr     error
}

func (f *failingStore) SaveCredential(ctx context.Context, email string, token *oauth2.Token) error {
	if f.saveCredentialErr != nil {
		return f.saveCredentialErr
	}
	return f.Store.SaveCredential(ctx, email, token)
}

func (f *failingStore) GetCredential(ctx context.Context, email string) (*oauth2.Token, error) {
	if f.getCredentialErr != nil {
		return nil, f.getCredentialErr
	}
	return f.Store.GetCredential(ctx, email)
}

func (f *failingStore) HasCredential(ctx context.Context, email string) (bool, error) {
	if f.hasCredentialErr != nil {
		return false, f.hasCredentialErr
	}
	return f.Store.HasCredential(ctx, email)
}

func (f *failingStore) SaveQuery(ctx context.Context, email, query string, updatedAt time.Time) error {
	if f.saveQueryErr != nil {
		return f.saveQueryErr
	}
	return f.Store.SaveQuery(ctx, email, query, updatedAt)
}

func (f *failingStore) GetQuery(ctx context.Context, email string) (*store.StoredQuery, error) {
	if f.getQueryErr != nil {
		return nil, f.getQueryErr
	}
	return f.Store.GetQuery(ctx, email)
}

func (f *failingStore) SaveLastRun(ctx context.Context, email string, at time.Time) error {
	if f.saveLastRunErr != nil {
		return f.saveLastRunErr
	}
	return f.Store.SaveLastRun(ctx, email, at)
}

func (f *failingStore) GetLastRun(ctx context.Context, email string) (time.Time, error) {
	if f.getLastRunErr != nil {
		return time.Time{}, f.getLastRunErr
	}
	return f.Store.GetLastRun(ctx, email)
}

// testEnv wires a handler set against fakes and an in-memory store.
type testEnv struct {
	handlers  *Handlers
	oauth     *fakeOAuth
	mail      *fakeMail
	mailErr   error
	registrar *fakeRegistrar
	store     store.Store
	now       time.Time
}

func newTestEnv(t *testing.T, st store.Store) *testEnv {
	t.Helper()

	if st == nil {
		mem := memory.NewStore()
		t.Cleanup(func() { _ = mem.Close() })
		st = mem
	}

	env := &testEnv{
		oauth:     &fakeOAuth{},
		mail:      &fakeMail{email: testUserEmail},
		registrar: &fakeRegistrar{},
		store:     st,
		now:       time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandlers(HandlersConfig{
		OAuth:     env.oauth,
		Store:     st,
		Registrar: env.registrar,
		MailClient: func(_ context.Context, _ oauth2.TokenSource) (MailClient, error) {
			if env.mailErr != nil {
				return nil, env.mailErr
			}
			return env.mail, nil
		},
		States: NewStateRegistry(DefaultStateTTL, logger, nil),
		Logger: logger,
		Now:    func() time.Time { return env.now },
	})
	require.NoError(t, err)
	env.handlers = h

	return env
}

func issueState(t *testing.T, env *testEnv) string {
	t.Helper()
	state, err := env.handlers.states.Issue()
	require.NoError(t, err)
	return state
}

func bodyText(rr *httptest.ResponseRecorder) string {
	return strings.TrimSpace(rr.Body.String())
}

func TestNewHandlers_Validation(t *testing.T) {
	st := memory.NewStore()
	t.Cleanup(func() { _ = st.Close() })

	factory := func(_ context.Context, _ oauth2.TokenSource) (MailClient, error) {
		return &fakeMail{}, nil
	}

	tests := []struct {
		name        string
		mutate      func(*HandlersConfig)
		errContains string
	}{
		{
			name:        "missing oauth",
			mutate:      func(c *HandlersConfig) { c.OAuth = nil },
			errContains: "oauth client is required",
		},
		{
			name:        "missing store",
			mutate:      func(c *HandlersConfig) { c.Store = nil },
			errContains: "store is required",
		},
		{
			name:        "missing registrar",
			mutate:      func(c *HandlersConfig) { c.Registrar = nil },
			errContains: "schedule registrar is required",
		},
		{
			name:        "missing mail client factory",
			mutate:      func(c *HandlersConfig) { c.MailClient = nil },
			errContains: "mail client factory is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := HandlersConfig{
				OAuth:      &fakeOAuth{},
				Store:      st,
				Registrar:  &fakeRegistrar{},
				MailClient: factory,
			}
			tt.mutate(&cfg)

			_, err := NewHandlers(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestHandleOAuth2Init_RedirectsToConsent(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := httptest.NewRecorder()
	env.handlers.HandleOAuth2Init(rr, httptest.NewRequest(http.MethodGet, "/oauth2init", nil))

	require.Equal(t, http.StatusFound, rr.Code)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.example.com", loc.Host)
	assert.Equal(t, "offline", loc.Query().Get("access_type"))
	assert.Equal(t, "consent", loc.Query().Get("prompt"))

	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.True(t, env.handlers.states.Consume(state), "redirect state must be registered")
}

func TestHandleOAuth2Init_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := httptest.NewRecorder()
	env.handlers.HandleOAuth2Init(rr, httptest.NewRequest(http.MethodPost, "/oauth2init", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandleOAuth2Callback_StoresCredential(t *testing.T) {
	env := newTestEnv(t, nil)
	state := issueState(t, env)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=auth-code-1&state="+url.QueryEscape(state), nil)
	env.handlers.HandleOAuth2Callback(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	body := rr.Body.String()
	assert.Contains(t, body, testUserEmail)
	assert.Contains(t, body, "/setCron?emailAddress=jane.doe%40example.com")
	assert.Contains(t, body, "/setEditQuery?emailAddress=jane.doe%40example.com")

	assert.Equal(t, "auth-code-1", env.oauth.exchangedCode)

	token, err := env.store.GetCredential(context.Background(), testUserEmail)
	require.NoError(t, err)
	assert.Equal(t, "ya29.test-access", token.AccessToken)
	assert.Equal(t, "1//test-refresh", token.RefreshToken)
}

func TestHandleOAuth2Callback_EscapesPlusAddress(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mail.email = "jane+alerts@example.com"
	state := issueState(t, env)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=c&state="+url.QueryEscape(state), nil)
	env.handlers.HandleOAuth2Callback(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/setCron?emailAddress=jane%2Balerts%40example.com")
}

func TestHandleOAuth2Callback_ProviderError(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?error=access_denied", nil)
	env.handlers.HandleOAuth2Callback(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgAuthDenied, bodyText(rr))
	// The provider error string is logged, never echoed back.
	assert.NotContains(t, rr.Body.String(), "access_denied")
}

func TestHandleOAuth2Callback_InvalidState(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, state := range []string{"", "never-issued"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=c&state="+state, nil)
		env.handlers.HandleOAuth2Callback(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, msgInvalidState, bodyText(rr))
	}
}

func TestHandleOAuth2Callback_StateIsSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	state := issueState(t, env)
	target := "/oauth2callback?code=c&state=" + url.QueryEscape(state)

	rr := httptest.NewRecorder()
	env.handlers.HandleOAuth2Callback(rr, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	// Replaying the callback with the consumed state must be rejected.
	rr = httptest.NewRecorder()
	env.handlers.HandleOAuth2Callback(rr, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgInvalidState, bodyText(rr))
}

func TestHandleOAuth2Callback_MissingCode(t *testing.T) {
	env := newTestEnv(t, nil)
	state := issueState(t, env)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?state="+url.QueryEscape(state), nil)
	env.handlers.HandleOAuth2Callback(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgMissingCode, bodyText(rr))
}

func TestHandleOAuth2Callback_ExchangeFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.oauth.exchangeErr = errors.New("invalid_grant")
	state := issueState(t, env)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=c&state="+url.QueryEscape(state), nil)
	env.handlers.HandleOAuth2Callback(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgServerError, bodyText(rr))
	// The upstream error never reaches the client.
	assert.NotContains(t, rr.Body.String(), "invalid_grant")
}

func TestHandleOAuth2Callback_ProfileFailure_NothingPersisted(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mail.profileErr = errors.New("profile unavailable")
	state := issueState(t, env)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=c&state="+url.QueryEscape(state), nil)
	env.handlers.HandleOAuth2Callback(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgServerError, bodyText(rr))

	ok, err := env.store.HasCredential(context.Background(), testUserEmail)
	require.NoError(t, err)
	assert.False(t, ok, "credential must not be persisted when the email is unresolved")
}

func TestHandleOAuth2Callback_SaveFailure(t *testing.T) {
	mem := memory.NewStore()
	t.Cleanup(func() { _ = mem.Close() })
	env := newTestEnv(t, &failingStore{Store: mem, saveCredentialErr: errors.New("disk full")})
	state := issueState(t, env)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?code=c&state="+url.QueryEscape(state), nil)
	env.handlers.HandleOAuth2Callback(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgServerError, bodyText(rr))

	ok, err := mem.HasCredential(context.Background(), testUserEmail)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandleOAuth2Callback_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := httptest.NewRecorder()
	env.handlers.HandleOAuth2Callback(rr, httptest.NewRequest(http.MethodPost, "/oauth2callback", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
