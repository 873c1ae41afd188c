package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/logging"
	"github.com/dmitrijs2005/ecomauth/internal/server/models"
	"github.com/dmitrijs2005/ecomauth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuth records the arguments it was called with and answers with ok
// unless a test sets a different result.
type fakeAuth struct {
	result *services.Result

	roleUser *models.User
	roleErr  error
	accepted []string

	username, password   string
	oldPassword, newPass string
	authorization, token string
	email                string
	page, perPage        int
	updatedID            int64
	created              services.NewUser
	updated              services.UserUpdate
	calls                []string

	// When set, ForgotPassword closes forgotStarted and then blocks until
	// forgotRelease is closed.
	forgotStarted, forgotRelease chan struct{}
}

func (f *fakeAuth) answer(call string) *services.Result {
	f.calls = append(f.calls, call)
	if f.result != nil {
		return f.result
	}
	return services.Success(map[string]string{"call": call})
}

func (f *fakeAuth) Login(_ context.Context, username, password string) *services.Result {
	f.username, f.password = username, password
	return f.answer("login")
}

func (f *fakeAuth) GetRefreshToken(_ context.Context, authorization string) *services.Result {
	f.authorization = authorization
	return f.answer("refresh")
}

func (f *fakeAuth) GetUserInfo(_ context.Context, authorization string) *services.Result {
	f.authorization = authorization
	return f.answer("me")
}

func (f *fakeAuth) ChangePassword(_ context.Context, username, oldPassword, newPassword string) *services.Result {
	f.username, f.oldPassword, f.newPass = username, oldPassword, newPassword
	return f.answer("change")
}

func (f *fakeAuth) ForgotPassword(_ context.Context, email string) *services.Result {
	f.email = email
	if f.forgotStarted != nil {
		close(f.forgotStarted)
		<-f.forgotRelease
	}
	return f.answer("forgot")
}

func (f *fakeAuth) ResetPassword(_ context.Context, token, newPassword string) *services.Result {
	f.token, f.newPass = token, newPassword
	return f.answer("reset")
}

func (f *fakeAuth) RequireRole(_ context.Context, authorization string, accepted ...string) (*models.User, error) {
	f.authorization = authorization
	f.accepted = accepted
	return f.roleUser, f.roleErr
}

func (f *fakeAuth) CreateUser(_ context.Context, in services.NewUser) *services.Result {
	f.created = in
	return f.answer("create")
}

func (f *fakeAuth) UpdateUser(_ context.Context, id int64, upd services.UserUpdate) *services.Result {
	f.updatedID, f.updated = id, upd
	return f.answer("update")
}

func (f *fakeAuth) ListUsers(_ context.Context, page, perPage int) *services.Result {
	f.page, f.perPage = page, perPage
	return f.answer("list")
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Message string          `json:"message"`
		Payload json.RawMessage `json:"payload"`
	} `json:"error"`
}

func newTestServer(fa *fakeAuth) *HTTPServer {
	return NewHTTPServer("127.0.0.1:0", logging.Nop(), fa, fakePinger{})
}

func do(t *testing.T, s *HTTPServer, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func adminUser() *models.User {
	now := time.Now()
	return &models.User{ID: 1, Email: "admin@example.com", IsActive: true, ApprovedAt: &now,
		Role: &models.Role{ID: 1, Name: "Admin"}}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeAuth{})
	rec, _ := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s = NewHTTPServer("", logging.Nop(), &fakeAuth{}, fakePinger{err: errors.New("down")})
	rec, _ = do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogin(t *testing.T) {
	t.Run("username", func(t *testing.T) {
		fa := &fakeAuth{}
		rec, env := do(t, newTestServer(fa), http.MethodPost, "/api/v1/auth/login",
			`{"username":"a@example.com","password":"pw"}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, env.Success)
		assert.Equal(t, "a@example.com", fa.username)
		assert.Equal(t, "pw", fa.password)
	})

	t.Run("email field", func(t *testing.T) {
		fa := &fakeAuth{}
		do(t, newTestServer(fa), http.MethodPost, "/api/v1/auth/login",
			`{"email":"b@example.com","password":"pw"}`, nil)
		assert.Equal(t, "b@example.com", fa.username)
	})

	t.Run("failure status is used", func(t *testing.T) {
		fa := &fakeAuth{result: services.Failure(http.StatusUnauthorized, common.ErrAuthentication.Error(), nil)}
		rec, env := do(t, newTestServer(fa), http.MethodPost, "/api/v1/auth/login",
			`{"username":"a@example.com","password":"bad"}`, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, env.Success)
		require.NotNil(t, env.Error)
		assert.Equal(t, "the username or password is incorrect", env.Error.Message)
		assert.NotContains(t, rec.Body.String(), "status")
	})

	t.Run("malformed body", func(t *testing.T) {
		fa := &fakeAuth{}
		rec, env := do(t, newTestServer(fa), http.MethodPost, "/api/v1/auth/login", `{"username":`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.NotEmpty(t, env.Error.Message)
		assert.Empty(t, fa.calls)
	})
}

func TestTokenRoutesPassAuthorizationHeader(t *testing.T) {
	for _, path := range []string{"/api/v1/auth/refresh", "/api/v1/auth/me"} {
		fa := &fakeAuth{}
		rec, _ := do(t, newTestServer(fa), http.MethodGet, path, "",
			map[string]string{"Authorization": "Bearer abc"})

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "Bearer abc", fa.authorization, path)
	}
}

func TestChangePassword(t *testing.T) {
	fa := &fakeAuth{result: services.Failure(http.StatusBadRequest, "ExpiredPasswordError",
		map[string]int{"remaining_days": 1})}
	rec, env := do(t, newTestServer(fa), http.MethodPost, "/api/v1/auth/change-password",
		`{"username":"a@example.com","old_password":"old","new_password":"new"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "a@example.com", fa.username)
	assert.Equal(t, "old", fa.oldPassword)
	assert.Equal(t, "new", fa.newPass)
	require.NotNil(t, env.Error)
	assert.JSONEq(t, `{"remaining_days":1}`, string(env.Error.Payload))
}

func TestForgotPassword(t *testing.T) {
	fa := &fakeAuth{}
	rec, _ := do(t, newTestServer(fa), http.MethodPost, "/api/v1/auth/forgot-password",
		`{"email":"a@example.com"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@example.com", fa.email)
}

func TestResetPassword_TokenSources(t *testing.T) {
	t.Run("header wins", func(t *testing.T) {
		fa := &fakeAuth{}
		do(t, newTestServer(fa), http.MethodPost, "/api/v1/auth/reset-password",
			`{"token":"from-body","new_password":"New#Password123"}`,
			map[string]string{common.ResetTokenHeaderName: "from-header"})

		assert.Equal(t, "from-header", fa.token)
		assert.Equal(t, "New#Password123", fa.newPass)
	})

	t.Run("body fallback", func(t *testing.T) {
		fa := &fakeAuth{}
		do(t, newTestServer(fa), http.MethodPost, "/api/v1/auth/reset-password",
			`{"token":"from-body","new_password":"x"}`, nil)

		assert.Equal(t, "from-body", fa.token)
	})
}

func TestUsersRoutes_RoleGate(t *testing.T) {
	tests := []struct {
		name    string
		roleErr error
		status  int
		message string
	}{
		{"missing token", common.ErrMissingToken, http.StatusUnauthorized, "missing token"},
		{"inactive user", common.ErrInvalidTokenHeader, http.StatusUnauthorized, "invalid token header"},
		{"wrong role", common.ErrMissingRole, http.StatusForbidden, common.ErrMissingRole.Error()},
		{"store failure", errors.New("db down"), http.StatusInternalServerError,
			"The server encountered an internal error and was unable to complete your request."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAuth{roleErr: tt.roleErr}
			rec, env := do(t, newTestServer(fa), http.MethodGet, "/api/v1/users", "", nil)

			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.message, env.Error.Message)
			assert.Empty(t, fa.calls, "handler must not run")
			assert.Equal(t, []string{"Admin"}, fa.accepted)
		})
	}
}

func TestUsersRoutes_Admin(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		fa := &fakeAuth{roleUser: adminUser()}
		rec, _ := do(t, newTestServer(fa), http.MethodGet, "/api/v1/users?page=3&per_page=5", "",
			map[string]string{"Authorization": "Bearer admin"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, fa.page)
		assert.Equal(t, 5, fa.perPage)
	})

	t.Run("create", func(t *testing.T) {
		r := services.Success(map[string]any{"id": 7})
		r.Status = http.StatusCreated
		fa := &fakeAuth{roleUser: adminUser(), result: r}
		rec, _ := do(t, newTestServer(fa), http.MethodPost, "/api/v1/users",
			`{"first_name":"Jane","email":"jane@example.com","password":"Secret#Pass123","role":"Business User"}`, nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "jane@example.com", fa.created.Email)
		assert.Equal(t, "Business User", fa.created.Role)
	})

	t.Run("update", func(t *testing.T) {
		fa := &fakeAuth{roleUser: adminUser()}
		rec, _ := do(t, newTestServer(fa), http.MethodPatch, "/api/v1/users/42",
			`{"is_active":false}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(42), fa.updatedID)
		require.NotNil(t, fa.updated.IsActive)
		assert.False(t, *fa.updated.IsActive)
		assert.Nil(t, fa.updated.Email)
	})

	t.Run("list bad paging", func(t *testing.T) {
		for _, q := range []string{"page=abc", "per_page=x", "page=99999999999999999999"} {
			fa := &fakeAuth{roleUser: adminUser()}
			rec, env := do(t, newTestServer(fa), http.MethodGet, "/api/v1/users?"+q, "", nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
			require.NotNil(t, env.Error, q)
			assert.Empty(t, fa.calls, q)
		}
	})

	t.Run("update bad id", func(t *testing.T) {
		fa := &fakeAuth{roleUser: adminUser()}
		rec, _ := do(t, newTestServer(fa), http.MethodPatch, "/api/v1/users/abc", `{}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, fa.calls)
	})
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := newTestServer(&fakeAuth{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_WaitsForInFlightRequests(t *testing.T) {
	fa := &fakeAuth{forgotStarted: make(chan struct{}), forgotRelease: make(chan struct{})}
	s := newTestServer(fa)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	status := make(chan int, 1)
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/api/v1/auth/forgot-password",
			"application/json", strings.NewReader(`{"email":"a@x.com"}`))
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()

	select {
	case <-fa.forgotStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the handler")
	}
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a request was still being handled")
	case <-time.After(100 * time.Millisecond):
	}

	close(fa.forgotRelease)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, http.StatusOK, <-status)
}
