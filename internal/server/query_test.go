package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gmailnotifier/internal/store"
	"github.com/teemow/gmailnotifier/internal/store/memory"
)

func getEditor(env *testEnv, email string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	target := "/setEditQuery"
	if email != "" {
		target += "?emailAddress=" + url.QueryEscape(email)
	}
	env.handlers.HandleSetEditQuery(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func postQuery(env *testEnv, form url.Values) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/setEditQuery", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	env.handlers.HandleSetEditQuery(rr, req)
	return rr
}

func TestHandleSetEditQuery_GetValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := getEditor(env, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgNoEmail, bodyText(rr))

	rr = getEditor(env, "not-an-email")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgInvalidEmail, bodyText(rr))
}

func TestHandleSetEditQuery_GetWithoutCredential(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := getEditor(env, testUserEmail)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgServerError, bodyText(rr))
}

func TestHandleSetEditQuery_GetWithoutQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	saveTestCredential(t, env, testUserEmail)

	rr := getEditor(env, testUserEmail)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	body := rr.Body.String()
	assert.Contains(t, body, "No query set yet.")
	assert.Contains(t, body, `name="emailAddress" value="jane.doe@example.com"`)
	assert.Contains(t, body, `method="POST"`)
}

func TestHandleSetEditQuery_GetWithStoredQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	saveTestCredential(t, env, testUserEmail)
	require.NoError(t, env.store.SaveQuery(context.Background(), testUserEmail, "from:billing is:unread", env.now))

	rr := getEditor(env, testUserEmail)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "from:billing is:unread")
	assert.Contains(t, body, "Current query")
	assert.NotContains(t, body, "No query set yet.")
}

func TestHandleSetEditQuery_GetEscapesQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	saveTestCredential(t, env, testUserEmail)
	require.NoError(t, env.store.SaveQuery(context.Background(), testUserEmail, `<script>alert(1)</script>`, env.now))

	rr := getEditor(env, testUserEmail)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, rr.Body.String(), "&lt;script&gt;")
}

func TestHandleSetEditQuery_GetQueryLookupFailure(t *testing.T) {
	mem := memory.NewStore()
	t.Cleanup(func() { _ = mem.Close() })
	env := newTestEnv(t, &failingStore{Store: mem, getQueryErr: errors.New("table locked")})
	saveTestCredential(t, env, testUserEmail)

	rr := getEditor(env, testUserEmail)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgServerError, bodyText(rr))
}

func TestHandleSetEditQuery_PostValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := postQuery(env, url.Values{"query": {"is:unread"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgNoEmail, bodyText(rr))

	rr = postQuery(env, url.Values{"emailAddress": {"nope"}, "query": {"is:unread"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgInvalidEmail, bodyText(rr))

	rr = postQuery(env, url.Values{"emailAddress": {testUserEmail}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, msgNoQuery, bodyText(rr))
}

func TestHandleSetEditQuery_PostWithoutCredential(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := postQuery(env, url.Values{
		"emailAddress": {testUserEmail},
		"query":        {"is:unread"},
	})

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, msgNotAuthorized, bodyText(rr))

	// The refused write must leave no trace.
	_, err := env.store.GetQuery(context.Background(), testUserEmail)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleSetEditQuery_PostOverwritesQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	saveTestCredential(t, env, testUserEmail)
	require.NoError(t, env.store.SaveQuery(context.Background(), testUserEmail, "old-query", env.now.Add(-time.Hour)))

	rr := postQuery(env, url.Values{
		"emailAddress": {testUserEmail},
		"query":        {"from:alerts is:important"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "from:alerts is:important")
	assert.Contains(t, body, testUserEmail)

	stored, err := env.store.GetQuery(context.Background(), testUserEmail)
	require.NoError(t, err)
	assert.Equal(t, "from:alerts is:important", stored.Query)
	assert.Equal(t, env.now, stored.LastUpdated)
}

func TestHandleSetEditQuery_PostSaveFailure(t *testing.T) {
	mem := memory.NewStore()
	t.Cleanup(func() { _ = mem.Close() })
	env := newTestEnv(t, &failingStore{Store: mem, saveQueryErr: errors.New("disk full")})
	saveTestCredential(t, env, testUserEmail)

	rr := postQuery(env, url.Values{
		"emailAddress": {testUserEmail},
		"query":        {"is:unread"},
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgServerError, bodyText(rr))
}

func TestHandleSetEditQuery_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := httptest.NewRecorder()
	env.handlers.HandleSetEditQuery(rr, httptest.NewRequest(http.MethodDelete, "/setEditQuery", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, msgMethodNotAllowed, bodyText(rr))
}
