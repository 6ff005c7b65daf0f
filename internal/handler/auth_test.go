package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shoplane/accounts/config"
	"github.com/shoplane/accounts/internal/dto"
	"github.com/shoplane/accounts/internal/middleware"
	"github.com/shoplane/accounts/internal/service"
	"github.com/shoplane/accounts/internal/testutil"
)

type testServer struct {
	engine *gin.Engine
	users  *testutil.FakeUserStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dto.RegisterValidators()

	users := testutil.NewFakeUserStore()
	tokens := testutil.NewFakeTokenStore()

	tokenSvc := service.NewTokenService(config.JWTConfig{
		Secret:        "handler-test-secret",
		AccessTTL:     20 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		RotateRefresh: true,
		Issuer:        "accounts-test",
	}, tokens)
	accounts := service.NewAccountService(
		users,
		service.NewDefaultVerifier(users),
		tokenSvc,
		service.NewUsernameGenerator(),
	)

	authHandler := NewAuthHandler(accounts)
	userHandler := NewUserHandler(accounts)
	jwtMw := middleware.NewJWTMiddleware(tokenSvc, users)

	engine := gin.New()
	v1 := engine.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	protected := auth.Group("")
	protected.Use(jwtMw.RequireAuth())
	protected.POST("/logout", authHandler.Logout)
	protected.GET("/logout", authHandler.Logout)
	protected.POST("/logout-all", authHandler.LogoutAll)

	profile := v1.Group("/profile")
	profile.Use(jwtMw.RequireAuth())
	profile.GET("", userHandler.Profile)
	profile.PATCH("", userHandler.UpdateProfile)

	usersGroup := v1.Group("/users")
	usersGroup.Use(jwtMw.RequireAuth(), jwtMw.RequireStaff())
	usersGroup.GET("", userHandler.List)

	return &testServer{engine: engine, users: users}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func (s *testServer) register(t *testing.T, email, password string) dto.UserResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":      email,
		"password":   password,
		"first_name": "Bob",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var user dto.UserResponse
	decode(t, rec, &user)
	return user
}

func (s *testServer) login(t *testing.T, identifier, password string) dto.LoginResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"identifier": identifier,
		"password":   password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp dto.LoginResponse
	decode(t, rec, &resp)
	return resp
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)

	user := srv.register(t, "bob@x.com", "secret1")
	if matched := regexp.MustCompile(`^bob_[a-z0-9]{6}$`).MatchString(user.Username); !matched {
		t.Errorf("username = %q, want bob_ plus six characters", user.Username)
	}

	login := srv.login(t, "bob@x.com", "secret1")
	if login.Access == "" || login.Refresh == "" {
		t.Fatal("login returned an empty token")
	}

	// Profile with the access token
	rec := srv.do(t, http.MethodGet, "/api/v1/profile", login.Access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var profile dto.UserResponse
	decode(t, rec, &profile)
	if profile.Email != "bob@x.com" {
		t.Errorf("profile email = %q, want bob@x.com", profile.Email)
	}

	// Logout with the refresh token in the body
	rec = srv.do(t, http.MethodPost, "/api/v1/auth/logout", login.Access, gin.H{"refresh": login.Refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// The revoked refresh token can no longer be exchanged
	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh": login.Refresh})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout: status = %d, want 401, body = %s", rec.Code, rec.Body.String())
	}

	// The access token stays usable until it expires
	rec = srv.do(t, http.MethodGet, "/api/v1/profile", login.Access, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("profile after logout: status = %d, want 200", rec.Code)
	}
}

func TestRefreshRotationFlow(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "bob@x.com", "secret1")
	login := srv.login(t, "bob@x.com", "secret1")

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh": login.Refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rotated dto.RefreshResponse
	decode(t, rec, &rotated)
	if rotated.Access == "" || rotated.Refresh == "" {
		t.Fatal("rotation must return a fresh pair")
	}

	// The replaced refresh token is burned
	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh": login.Refresh})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("replayed refresh: status = %d, want 401", rec.Code)
	}

	// The replacement is accepted
	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh": rotated.Refresh})
	if rec.Code != http.StatusOK {
		t.Errorf("rotated refresh: status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutViaQueryString(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "bob@x.com", "secret1")
	login := srv.login(t, "bob@x.com", "secret1")

	rec := srv.do(t, http.MethodGet, "/api/v1/auth/logout?refresh="+login.Refresh, login.Access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout via query: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh": login.Refresh})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout: status = %d, want 401", rec.Code)
	}
}

func TestLogoutWithoutToken(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "bob@x.com", "secret1")
	login := srv.login(t, "bob@x.com", "secret1")

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/logout", login.Access, gin.H{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("logout without refresh: status = %d, want 400", rec.Code)
	}
}

func TestLogoutAllFlow(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "bob@x.com", "secret1")

	first := srv.login(t, "bob@x.com", "secret1")
	second := srv.login(t, "bob@x.com", "secret1")

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/logout-all", first.Access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout-all: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	for i, refresh := range []string{first.Refresh, second.Refresh} {
		rec = srv.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh": refresh})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("session %d refresh after logout-all: status = %d, want 401", i, rec.Code)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{name: "missing email", body: gin.H{"password": "secret1"}},
		{name: "invalid email", body: gin.H{"email": "not-an-email", "password": "secret1"}},
		{name: "missing password", body: gin.H{"email": "bob@x.com"}},
		{name: "short password", body: gin.H{"email": "bob@x.com", "password": "five5"}},
		{name: "bad mobile", body: gin.H{"email": "bob@x.com", "password": "secret1", "mobile": "12345"}},
		{name: "bad pin code", body: gin.H{"email": "bob@x.com", "password": "secret1", "pin_code": "12ab56"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "bob@x.com", "secret1")

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    "BOB@x.com",
		"password": "secret1",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: status = %d, want 409, body = %s", rec.Code, rec.Body.String())
	}
}

func TestLoginFailures(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "bob@x.com", "secret1")

	tests := []struct {
		name       string
		identifier string
		password   string
		want       int
	}{
		{name: "wrong password", identifier: "bob@x.com", password: "wrong66", want: http.StatusUnauthorized},
		{name: "unknown user", identifier: "ghost@x.com", password: "secret1", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
				"identifier": tt.identifier,
				"password":   tt.password,
			})
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestLoginByUsername(t *testing.T) {
	srv := newTestServer(t)
	user := srv.register(t, "bob@x.com", "secret1")

	login := srv.login(t, user.Username, "secret1")
	if login.User.ID != user.ID {
		t.Errorf("login by username resolved user %d, want %d", login.User.ID, user.ID)
	}
}

func TestProtectedRoutesRejectBadTokens(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		bearer string
		header string
	}{
		{name: "no header"},
		{name: "garbage token", bearer: "not.a.token"},
		{name: "malformed header", header: "Token abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.engine.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestDisabledAccountLockedOutImmediately(t *testing.T) {
	srv := newTestServer(t)
	user := srv.register(t, "bob@x.com", "secret1")
	login := srv.login(t, "bob@x.com", "secret1")

	srv.users.Deactivate(user.ID)

	// Even an unexpired access token is rejected once the account is off
	rec := srv.do(t, http.MethodGet, "/api/v1/profile", login.Access, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("profile with disabled account: status = %d, want 401", rec.Code)
	}

	// And a fresh login reports the disabled state
	rec = srv.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"identifier": "bob@x.com",
		"password":   "secret1",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("login with disabled account: status = %d, want 403, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUserListRequiresStaff(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "bob@x.com", "secret1")
	login := srv.login(t, "bob@x.com", "secret1")

	rec := srv.do(t, http.MethodGet, "/api/v1/users", login.Access, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("list as non-staff: status = %d, want 403", rec.Code)
	}
}

func TestUserListAsStaff(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		srv.register(t, fmt.Sprintf("user%d@x.com", i), "secret1")
	}

	admin := srv.register(t, "admin@x.com", "secret1")
	srv.users.Promote(admin.ID)
	login := srv.login(t, "admin@x.com", "secret1")

	rec := srv.do(t, http.MethodGet, "/api/v1/users", login.Access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list as staff: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Total int64              `json:"total"`
		Data  []dto.UserResponse `json:"data"`
	}
	decode(t, rec, &body)
	if body.Total != 4 {
		t.Errorf("total = %d, want 4", body.Total)
	}
	if len(body.Data) != 4 {
		t.Errorf("data length = %d, want 4", len(body.Data))
	}
}

func TestUpdateProfileFlow(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "bob@x.com", "secret1")
	login := srv.login(t, "bob@x.com", "secret1")

	rec := srv.do(t, http.MethodPatch, "/api/v1/profile", login.Access, gin.H{
		"first_name": "Robert",
		"mobile":     "9876543210",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var updated dto.UserResponse
	decode(t, rec, &updated)
	if updated.FirstName != "Robert" {
		t.Errorf("first name = %q, want Robert", updated.FirstName)
	}
	if updated.Mobile != "9876543210" {
		t.Errorf("mobile = %q, want 9876543210", updated.Mobile)
	}

	// Invalid mobile is rejected at the binding layer
	rec = srv.do(t, http.MethodPatch, "/api/v1/profile", login.Access, gin.H{"mobile": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid mobile: status = %d, want 400", rec.Code)
	}
}
