package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/adapter/outbound/memory"
	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/port/inbound"
)

// captureMailer records verification links.
type captureMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, _ *auth.User, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		t.Fatal("no verification email sent")
	}
	u, err := url.Parse(m.links[len(m.links)-1])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("token")
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuthOptions() AuthOptions {
	return AuthOptions{
		Secret:                   "test-secret",
		BaseURL:                  "http://localhost:4000",
		CookieDomain:             ".voltig.dev",
		CookieCacheMaxAge:        5 * time.Minute,
		Password:                 auth.DefaultPasswordPolicy,
		TrustedOrigins:           []string{"voltig://", "http://localhost:3000"},
		RequireEmailVerification: true,
		AutoSignIn:               true,
	}
}

type authEnv struct {
	svc      *AuthService
	users    *memory.UserStore
	sessions *memory.MemorySessionStore
	mailer   *captureMailer
}

func newAuthEnv(t *testing.T, opts AuthOptions) *authEnv {
	t.Helper()
	users := memory.NewUserStore()
	sessions := memory.NewSessionStore()
	mailer := &captureMailer{}
	svc := NewAuthService(users, session.NewSessionService(sessions, session.Config{}), mailer, opts, testLogger())
	return &authEnv{svc: svc, users: users, sessions: sessions, mailer: mailer}
}

// signUpVerified registers a user and follows the verification link.
func (e *authEnv) signUpVerified(t *testing.T, email, password string) *auth.User {
	t.Helper()
	ctx := context.Background()
	if _, _, err := e.svc.SignUp(ctx, SignUpInput{Name: "Ada", Email: email, Password: password}, session.Metadata{}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	user, _, err := e.svc.VerifyEmail(ctx, e.mailer.lastToken(t), session.Metadata{})
	if err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}
	return user
}

func TestAuthService_SignUpRequiresVerification(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())
	ctx := context.Background()

	user, sess, err := env.svc.SignUp(ctx, SignUpInput{Name: " Ada ", Email: "Ada@Example.COM", Password: "password123"}, session.Metadata{})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if sess != nil {
		t.Error("SignUp() created a session before verification")
	}
	if user.Email != "ada@example.com" || user.Name != "Ada" || user.EmailVerified {
		t.Errorf("SignUp() user = %+v", user)
	}
	if env.mailer.count() != 1 {
		t.Errorf("verification emails = %d, want 1", env.mailer.count())
	}

	_, err = env.svc.SignIn(ctx, SignInInput{Email: "ada@example.com", Password: "password123"}, session.Metadata{})
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("SignIn() before verification error = %v, want ErrEmailNotVerified", err)
	}
	if env.mailer.count() != 2 {
		t.Errorf("verification emails = %d, want 2 after unverified sign-in", env.mailer.count())
	}
}

func TestAuthService_SignUpErrors(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())
	ctx := context.Background()
	if _, _, err := env.svc.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@example.com", Password: "password123"}, session.Metadata{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		in       SignUpInput
		wantCode string
	}{
		{"duplicate email", SignUpInput{Name: "B", Email: "ADA@example.com", Password: "password123"}, "USER_ALREADY_EXISTS"},
		{"invalid email", SignUpInput{Name: "B", Email: "not-an-email", Password: "password123"}, "INVALID_EMAIL"},
		{"short password", SignUpInput{Name: "B", Email: "b@example.com", Password: "short"}, "PASSWORD_TOO_SHORT"},
		{"long password", SignUpInput{Name: "B", Email: "b@example.com", Password: strings.Repeat("x", 21)}, "PASSWORD_TOO_LONG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.svc.SignUp(ctx, tt.in, session.Metadata{})
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("SignUp() error = %v, want AuthError", err)
			}
			if authErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", authErr.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthService_SignIn(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())
	ctx := context.Background()
	user := env.signUpVerified(t, "ada@example.com", "password123")

	info, err := env.svc.SignIn(ctx, SignInInput{Email: "ada@example.com", Password: "password123"},
		session.Metadata{IPAddress: "203.0.113.7", UserAgent: "test"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if info.User.ID != user.ID || info.Session.UserID != user.ID {
		t.Errorf("SignIn() info = %+v", info)
	}
	if info.Session.IPAddress != "203.0.113.7" {
		t.Errorf("session IP = %q", info.Session.IPAddress)
	}

	for _, in := range []SignInInput{
		{Email: "ada@example.com", Password: "wrong-password"},
		{Email: "nobody@example.com", Password: "password123"},
	} {
		if _, err := env.svc.SignIn(ctx, in, session.Metadata{}); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("SignIn(%s) error = %v, want ErrInvalidCredentials", in.Email, err)
		}
	}
}

func TestAuthService_VerifyEmail(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())
	ctx := context.Background()
	if _, _, err := env.svc.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@example.com", Password: "password123"}, session.Metadata{}); err != nil {
		t.Fatal(err)
	}

	user, sess, err := env.svc.VerifyEmail(ctx, env.mailer.lastToken(t), session.Metadata{})
	if err != nil {
		t.Fatalf("VerifyEmail() error = %v", err)
	}
	if !user.EmailVerified {
		t.Error("VerifyEmail() user not verified")
	}
	if sess == nil {
		t.Error("VerifyEmail() with auto sign-in returned no session")
	}
	stored, _ := env.users.GetUserByEmail(ctx, "ada@example.com")
	if !stored.EmailVerified {
		t.Error("stored user not marked verified")
	}

	if _, _, err := env.svc.VerifyEmail(ctx, "garbage", session.Metadata{}); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyEmail(garbage) error = %v, want ErrInvalidToken", err)
	}
}

func TestAuthService_VerifyEmailExpired(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())
	token, err := env.svc.signer.verificationToken("ada@example.com", time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.svc.VerifyEmail(context.Background(), token, session.Metadata{}); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("VerifyEmail() error = %v, want ErrTokenExpired", err)
	}
}

func TestAuthService_ResolveSession(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())
	ctx := context.Background()
	env.signUpVerified(t, "ada@example.com", "password123")
	info, err := env.svc.SignIn(ctx, SignInInput{Email: "ada@example.com", Password: "password123"}, session.Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	signed := env.svc.signer.signValue(info.Session.Token)

	t.Run("cookie", func(t *testing.T) {
		h := http.Header{"Cookie": {SessionTokenCookie + "=" + signed}}
		got := env.svc.ResolveSession(ctx, h)
		if got == nil || got.User.Email != "ada@example.com" {
			t.Fatalf("ResolveSession() = %+v", got)
		}
	})

	t.Run("bearer", func(t *testing.T) {
		h := http.Header{"Authorization": {"Bearer " + signed}}
		if env.svc.ResolveSession(ctx, h) == nil {
			t.Fatal("ResolveSession() with bearer = nil")
		}
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		h := http.Header{"Cookie": {SessionTokenCookie + "=" + info.Session.Token}}
		if env.svc.ResolveSession(ctx, h) != nil {
			t.Fatal("ResolveSession() accepted an unsigned token")
		}
	})

	t.Run("tampered signature rejected", func(t *testing.T) {
		h := http.Header{"Cookie": {SessionTokenCookie + "=" + signed + "x"}}
		if env.svc.ResolveSession(ctx, h) != nil {
			t.Fatal("ResolveSession() accepted a tampered token")
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		if env.svc.ResolveSession(ctx, http.Header{}) != nil {
			t.Fatal("ResolveSession() without credentials != nil")
		}
	})

	t.Run("session data cookie skips the store", func(t *testing.T) {
		data, err := env.svc.signer.sessionDataToken(info, time.Now(), time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		fake := &session.Info{
			Session: &session.Session{Token: "other", ExpiresAt: time.Now().Add(time.Hour)},
			User:    info.User,
		}
		foreign, _ := env.svc.signer.sessionDataToken(fake, time.Now(), time.Minute)

		h := http.Header{"Cookie": {SessionTokenCookie + "=" + signed + "; " + SessionDataCookie + "=" + data}}
		got, cached := env.svc.resolve(ctx, h)
		if got == nil || !cached {
			t.Errorf("resolve() cached = %v, want true", cached)
		}

		h = http.Header{"Cookie": {SessionTokenCookie + "=" + signed + "; " + SessionDataCookie + "=" + foreign}}
		got, cached = env.svc.resolve(ctx, h)
		if got == nil || cached {
			t.Errorf("resolve() with data cookie for another token cached = %v, want false", cached)
		}
	})

	t.Run("signed out", func(t *testing.T) {
		if err := env.svc.SignOut(ctx, info.Session.Token); err != nil {
			t.Fatal(err)
		}
		h := http.Header{"Cookie": {SessionTokenCookie + "=" + signed}}
		if env.svc.ResolveSession(ctx, h) != nil {
			t.Fatal("ResolveSession() after SignOut() != nil")
		}
	})
}

// doAuth sends one request through Handle.
func doAuth(t *testing.T, svc *AuthService, method, target, body string, cookies []*http.Cookie, header http.Header) *inbound.Response {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		r.Header[k] = v
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	resp, err := svc.Handle(r.Context(), r)
	if err != nil {
		t.Fatalf("Handle(%s %s) error = %v", method, target, err)
	}
	return resp
}

// responseCookies parses the live cookies set by resp.
func responseCookies(t *testing.T, resp *inbound.Response) []*http.Cookie {
	t.Helper()
	var out []*http.Cookie
	for _, line := range resp.Header.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			t.Fatalf("ParseSetCookie(%q): %v", line, err)
		}
		if c.MaxAge >= 0 {
			out = append(out, c)
		}
	}
	return out
}

func decodeBody(t *testing.T, resp *inbound.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(resp.Body, &m); err != nil {
		t.Fatalf("decode %s: %v", resp.Body, err)
	}
	return m
}

func TestAuthService_HandleFlow(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())
	svc := env.svc

	resp := doAuth(t, svc, http.MethodPost, "/api/auth/sign-up/email",
		`{"name":"Ada","email":"ada@example.com","password":"password123"}`, nil, nil)
	if resp.Status != http.StatusOK {
		t.Fatalf("sign-up status = %d body = %s", resp.Status, resp.Body)
	}
	body := decodeBody(t, resp)
	if body["token"] != nil {
		t.Errorf("sign-up token = %v, want null", body["token"])
	}

	resp = doAuth(t, svc, http.MethodPost, "/api/auth/sign-in/email",
		`{"email":"ada@example.com","password":"password123"}`, nil, nil)
	if resp.Status != http.StatusForbidden || decodeBody(t, resp)["code"] != "EMAIL_NOT_VERIFIED" {
		t.Fatalf("unverified sign-in = %d %s", resp.Status, resp.Body)
	}

	resp = doAuth(t, svc, http.MethodGet, "/api/auth/verify-email?token="+env.mailer.lastToken(t), "", nil, nil)
	if resp.Status != http.StatusOK {
		t.Fatalf("verify-email status = %d body = %s", resp.Status, resp.Body)
	}
	if len(responseCookies(t, resp)) != 2 {
		t.Errorf("verify-email cookies = %v, want session token and data", resp.Header.Values("Set-Cookie"))
	}

	resp = doAuth(t, svc, http.MethodPost, "/api/auth/sign-in/email",
		`{"email":"ada@example.com","password":"password123"}`, nil, nil)
	if resp.Status != http.StatusOK {
		t.Fatalf("sign-in status = %d body = %s", resp.Status, resp.Body)
	}
	cookies := responseCookies(t, resp)
	var tokenCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == SessionTokenCookie {
			tokenCookie = c
		}
		if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
			t.Errorf("cookie %s attributes = %+v", c.Name, c)
		}
	}
	if tokenCookie == nil {
		t.Fatal("sign-in did not set the session token cookie")
	}

	resp = doAuth(t, svc, http.MethodGet, "/api/auth/get-session", "", []*http.Cookie{tokenCookie}, nil)
	body = decodeBody(t, resp)
	user, _ := body["user"].(map[string]any)
	if user["email"] != "ada@example.com" {
		t.Errorf("get-session user = %v", body["user"])
	}

	resp = doAuth(t, svc, http.MethodPost, "/api/auth/sign-out", "", []*http.Cookie{tokenCookie}, nil)
	if decodeBody(t, resp)["success"] != true {
		t.Errorf("sign-out body = %s", resp.Body)
	}
	if len(resp.Header.Values("Set-Cookie")) != 2 {
		t.Errorf("sign-out should clear both cookies, got %v", resp.Header.Values("Set-Cookie"))
	}

	resp = doAuth(t, svc, http.MethodGet, "/api/auth/get-session", "", []*http.Cookie{tokenCookie}, nil)
	if string(resp.Body) != "null" {
		t.Errorf("get-session after sign-out = %s, want null", resp.Body)
	}
}

func TestAuthService_HandleVerifyEmailRedirect(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())
	ctx := context.Background()
	if _, _, err := env.svc.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@example.com", Password: "password123"}, session.Metadata{}); err != nil {
		t.Fatal(err)
	}

	resp := doAuth(t, env.svc, http.MethodGet,
		"/api/auth/verify-email?callbackURL=http%3A%2F%2Flocalhost%3A3000%2Fdone&token="+env.mailer.lastToken(t), "", nil, nil)
	if resp.Status != http.StatusFound || resp.Header.Get("Location") != "http://localhost:3000/done" {
		t.Errorf("redirect = %d %q", resp.Status, resp.Header.Get("Location"))
	}

	resp = doAuth(t, env.svc, http.MethodGet,
		"/api/auth/verify-email?callbackURL=http%3A%2F%2Flocalhost%3A3000%2Fdone&token=bad", "", nil, nil)
	if got := resp.Header.Get("Location"); got != "http://localhost:3000/done?error=INVALID_TOKEN" {
		t.Errorf("error redirect Location = %q", got)
	}
}

func TestAuthService_HandleErrors(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		header     http.Header
		wantStatus int
		wantCode   string
	}{
		{"unknown route", http.MethodGet, "/api/auth/nope", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"wrong method", http.MethodGet, "/api/auth/sign-in/email", "", nil, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"malformed json", http.MethodPost, "/api/auth/sign-in/email", "{", nil, http.StatusBadRequest, "INVALID_JSON"},
		{"missing fields", http.MethodPost, "/api/auth/sign-in/email", `{"email":"a@b.co"}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"untrusted origin", http.MethodPost, "/api/auth/sign-in/email", `{}`,
			http.Header{"Origin": {"https://evil.example"}}, http.StatusForbidden, "INVALID_ORIGIN"},
		{"missing verification token", http.MethodGet, "/api/auth/verify-email", "", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doAuth(t, env.svc, tt.method, tt.target, tt.body, nil, tt.header)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", resp.Status, tt.wantStatus, resp.Body)
			}
			if got := decodeBody(t, resp)["code"]; got != tt.wantCode {
				t.Errorf("code = %v, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestAuthService_HandleOK(t *testing.T) {
	t.Parallel()

	env := newAuthEnv(t, testAuthOptions())
	resp := doAuth(t, env.svc, http.MethodGet, "/api/auth/ok", "", nil, nil)
	if resp.Status != http.StatusOK || decodeBody(t, resp)["ok"] != true {
		t.Errorf("ok = %d %s", resp.Status, resp.Body)
	}

	resp = doAuth(t, env.svc, http.MethodPost, "/api/auth/send-verification-email",
		`{"email":"unknown@example.com"}`, nil, http.Header{"Origin": {"voltig://app"}})
	if resp.Status != http.StatusOK || decodeBody(t, resp)["status"] != true {
		t.Errorf("send-verification-email = %d %s", resp.Status, resp.Body)
	}
	if env.mailer.count() != 0 {
		t.Error("mail sent for an unknown address")
	}
}

func TestAuthService_ProductionCookies(t *testing.T) {
	t.Parallel()

	opts := testAuthOptions()
	opts.Production = true
	svc := newAuthEnv(t, opts).svc

	c := svc.cookie(SessionTokenCookie, "v", 60)
	if c.SameSite != http.SameSiteNoneMode || !c.Secure || c.Domain != ".voltig.dev" || !c.HttpOnly {
		t.Errorf("production cookie = %+v", c)
	}
}

func TestAuthService_TrustedOrigins(t *testing.T) {
	t.Parallel()

	svc := newAuthEnv(t, testAuthOptions()).svc
	tests := map[string]bool{
		"http://localhost:4000":  true,
		"http://localhost:3000/": true,
		"voltig://callback":      true,
		"http://localhost:3005":  false,
		"https://evil.example":   false,
	}
	for origin, want := range tests {
		if got := svc.isTrustedOrigin(origin); got != want {
			t.Errorf("isTrustedOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}

func TestSigner_VerifyValue(t *testing.T) {
	t.Parallel()

	s := signer{secret: []byte("k")}
	signed := s.signValue("abc")
	if v, err := s.verifyValue(signed); err != nil || v != "abc" {
		t.Errorf("verifyValue() = %q, %v", v, err)
	}
	other := signer{secret: []byte("other")}
	if _, err := other.verifyValue(signed); err == nil {
		t.Error("verifyValue() accepted a value signed with another secret")
	}
	if _, err := s.verifyValue("nodot"); err == nil {
		t.Error("verifyValue() accepted an unsigned value")
	}
}
