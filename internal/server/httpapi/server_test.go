package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/auth"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	registered *services.RegisterInput
	err        error

	gotUserID int64
	gotArgs   []string
}

func (f *fakeAccounts) Register(_ context.Context, in services.RegisterInput) (*models.User, error) {
	f.registered = &in
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: 1, UserName: in.Username, Email: in.Email}, nil
}

func (f *fakeAccounts) Login(_ context.Context, email, password string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "signed-token", nil
}

func (f *fakeAccounts) Profile(_ context.Context, userID int64) (*services.Profile, error) {
	f.gotUserID = userID
	if f.err != nil {
		return nil, f.err
	}
	return &services.Profile{Username: "alice", Email: "alice@example.com"}, nil
}

func (f *fakeAccounts) UpdateUsername(_ context.Context, userID int64, current, username string) error {
	f.gotUserID, f.gotArgs = userID, []string{current, username}
	return f.err
}

func (f *fakeAccounts) UpdateEmail(_ context.Context, userID int64, current, email, token string) error {
	f.gotUserID, f.gotArgs = userID, []string{current, email, token}
	return f.err
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, userID int64, current, password string) error {
	f.gotUserID, f.gotArgs = userID, []string{current, password}
	return f.err
}

type testEnv struct {
	srv      *Server
	accounts *fakeAccounts
	tokens   *auth.Manager
	clock    *clock.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fc := clock.Fake(time.Now())
	m, err := auth.NewManager([]byte("secret"), "HS256", auth.DefaultValidity, fc)
	require.NoError(t, err)
	accounts := &fakeAccounts{}
	return &testEnv{
		srv:      NewServer(":0", logging.Nop(), accounts, m, auth.DefaultValidity),
		accounts: accounts,
		tokens:   m,
		clock:    fc,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) bearer(t *testing.T, userID int64) func(*http.Request) {
	t.Helper()
	tok, err := e.tokens.Create(userID)
	require.NoError(t, err)
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func (e *testEnv) cookie(t *testing.T, userID int64) func(*http.Request) {
	t.Helper()
	tok, err := e.tokens.Create(userID)
	require.NoError(t, err)
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: tok}) }
}

const registerBody = `{"user_data":{"username":"carol","email":"carol@example.com","password":"pw"},
	"token_data":{"token":"0123456789abcdef0123456789abcdef","action":"register"}}`

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister_Created(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/register", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, services.RegisterInput{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "pw",
		Token:    "0123456789abcdef0123456789abcdef",
		Action:   "register",
	}, *e.accounts.registered)
}

func TestRegister_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{common.ErrTokenNotFound, http.StatusNotFound},
		{common.ErrTokenMismatch, http.StatusBadRequest},
		{common.ErrTokenExpired, http.StatusUnauthorized},
		{common.ErrUnknownAction, http.StatusBadRequest},
		{errors.Join(errors.New("error creating user"), common.ErrDuplicateEmail), http.StatusBadRequest},
		{errors.Join(errors.New("publish"), common.ErrConnection), http.StatusServiceUnavailable},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			e := newTestEnv(t)
			e.accounts.err = tt.err

			rec := e.do(t, http.MethodPost, "/register", registerBody)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"detail"`)
		})
	}
}

func TestRegister_ValidationFailure(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/register",
		`{"user_data":{"username":"carol","email":"not-an-email","password":"pw"},"token_data":{"token":"t","action":"register"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, e.accounts.registered)

	rec = e.do(t, http.MethodPost, "/register", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_SetsCookieAndReturnsToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"access_token":"signed-token"}`, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, common.AccessTokenCookieName, cookies[0].Name)
	assert.Equal(t, "signed-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLogin_WrongCredentials(t *testing.T) {
	e := newTestEnv(t)
	e.accounts.err = common.ErrorUnauthorized

	rec := e.do(t, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestShowUserData_CookieAndBearer(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/show/user_data", "", e.cookie(t, 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"alice","email":"alice@example.com"}`, rec.Body.String())
	assert.Equal(t, int64(7), e.accounts.gotUserID)

	rec = e.do(t, http.MethodGet, "/show/user_data", "", e.bearer(t, 9))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(9), e.accounts.gotUserID)
}

func TestAuthenticatedRoutes_RejectBadTokens(t *testing.T) {
	e := newTestEnv(t)
	expired := e.bearer(t, 7)
	e.clock.Advance(31 * 24 * time.Hour)

	cases := map[string][]func(*http.Request){
		"missing": nil,
		"garbage": {func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") }},
		"scheme":  {func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }},
		"expired": {expired},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, "/show/user_data", "", opts...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"detail"`)
		})
	}
	assert.Zero(t, e.accounts.gotUserID)
}

func TestShowUserData_NotFound(t *testing.T) {
	e := newTestEnv(t)
	e.accounts.err = common.ErrorNotFound

	rec := e.do(t, http.MethodGet, "/show/user_data", "", e.bearer(t, 7))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateRoutes(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPatch, "/update/username", `{"current_username":"alice","new_username":"alice2"}`, e.bearer(t, 3))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice", "alice2"}, e.accounts.gotArgs)

	rec = e.do(t, http.MethodPatch, "/update/email",
		`{"current_email":"a@example.com","new_email":"b@example.com","email_token":"tok"}`, e.bearer(t, 3))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "tok"}, e.accounts.gotArgs)

	rec = e.do(t, http.MethodPatch, "/update/password", `{"current_password":"old","new_password":"new"}`, e.bearer(t, 3))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"old", "new"}, e.accounts.gotArgs)
	assert.Equal(t, int64(3), e.accounts.gotUserID)
}

func TestUpdateRoutes_ErrorMapping(t *testing.T) {
	tests := []struct {
		path   string
		body   string
		err    error
		status int
	}{
		{"/update/username", `{"current_username":"x","new_username":"y"}`, common.ErrInvalidUserData, http.StatusBadRequest},
		{"/update/email", `{"current_email":"a@example.com","new_email":"b@example.com","email_token":"t"}`, common.ErrDuplicateEmail, http.StatusBadRequest},
		{"/update/email", `{"current_email":"a@example.com","new_email":"b@example.com","email_token":"t"}`, common.ErrTokenNotFound, http.StatusNotFound},
		{"/update/password", `{"current_password":"x","new_password":"y"}`, common.ErrWrongPassword, http.StatusBadRequest},
		{"/update/email", `{"current_email":"a@example.com","new_email":"bad","email_token":"t"}`, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := newTestEnv(t)
			e.accounts.err = tt.err
			rec := e.do(t, http.MethodPatch, tt.path, tt.body, e.bearer(t, 1))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRun_ReturnsWhenListenFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	s := NewServer(busy.Addr().String(), logging.Nop(), &fakeAccounts{}, nil, time.Hour)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the listener failed")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", logging.Nop(), &fakeAccounts{}, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
