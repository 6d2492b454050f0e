package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/ctxkey"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/domain/validation"
	"github.com/voltigdev/voltig-turbo/internal/port/inbound"
)

// maxAuthBody caps auth request bodies.
const maxAuthBody = 64 << 10

var authValidator = validation.NewInputValidator()

// Handle serves one auth provider request. Client errors are rendered as
// responses; the returned error is reserved for internal failures.
func (s *AuthService) Handle(ctx context.Context, r *http.Request) (*inbound.Response, error) {
	route, ok := strings.CutPrefix(r.URL.Path, AuthBasePath)
	if !ok {
		return errorResponse(ErrAuthNotFound), nil
	}

	if r.Method == http.MethodPost {
		if origin := r.Header.Get("Origin"); origin != "" && !s.isTrustedOrigin(origin) {
			return errorResponse(ErrInvalidOrigin), nil
		}
	}

	var (
		resp *inbound.Response
		err  error
	)
	switch route {
	case "/ok":
		resp, err = s.routeGet(r, func() (*inbound.Response, error) {
			return jsonResponse(http.StatusOK, map[string]bool{"ok": true}), nil
		})
	case "/get-session":
		resp, err = s.routeGet(r, func() (*inbound.Response, error) { return s.handleGetSession(ctx, r) })
	case "/sign-up/email":
		resp, err = s.routePost(r, func() (*inbound.Response, error) { return s.handleSignUp(ctx, r) })
	case "/sign-in/email":
		resp, err = s.routePost(r, func() (*inbound.Response, error) { return s.handleSignIn(ctx, r) })
	case "/sign-out":
		resp, err = s.routePost(r, func() (*inbound.Response, error) { return s.handleSignOut(ctx, r) })
	case "/verify-email":
		resp, err = s.routeGet(r, func() (*inbound.Response, error) { return s.handleVerifyEmail(ctx, r) })
	case "/send-verification-email":
		resp, err = s.routePost(r, func() (*inbound.Response, error) { return s.handleSendVerification(ctx, r) })
	default:
		return errorResponse(ErrAuthNotFound), nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return errorResponse(authErr), nil
	}
	return resp, err
}

func (s *AuthService) routeGet(r *http.Request, fn func() (*inbound.Response, error)) (*inbound.Response, error) {
	if r.Method != http.MethodGet {
		return nil, ErrAuthMethod
	}
	return fn()
}

func (s *AuthService) routePost(r *http.Request, fn func() (*inbound.Response, error)) (*inbound.Response, error) {
	if r.Method != http.MethodPost {
		return nil, ErrAuthMethod
	}
	return fn()
}

func (s *AuthService) handleGetSession(ctx context.Context, r *http.Request) (*inbound.Response, error) {
	info, cached := s.resolve(ctx, r.Header)
	if info == nil {
		return jsonResponse(http.StatusOK, nil), nil
	}
	resp := jsonResponse(http.StatusOK, info)
	if !cached {
		if err := s.setSessionDataCookie(resp, info); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (s *AuthService) handleSignUp(ctx context.Context, r *http.Request) (*inbound.Response, error) {
	var in SignUpInput
	if err := decodeAuthBody(r, &in); err != nil {
		return nil, err
	}
	user, sess, err := s.SignUp(ctx, in, requestMetadata(ctx, r))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return jsonResponse(http.StatusOK, map[string]any{"token": nil, "user": user}), nil
	}
	resp := jsonResponse(http.StatusOK, map[string]any{"token": sess.Token, "user": user})
	if err := s.setSessionCookies(resp, &session.Info{Session: sess, User: user}); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *AuthService) handleSignIn(ctx context.Context, r *http.Request) (*inbound.Response, error) {
	var in SignInInput
	if err := decodeAuthBody(r, &in); err != nil {
		return nil, err
	}
	info, err := s.SignIn(ctx, in, requestMetadata(ctx, r))
	if err != nil {
		return nil, err
	}
	var redirectURL any
	if in.CallbackURL != "" {
		redirectURL = in.CallbackURL
	}
	resp := jsonResponse(http.StatusOK, map[string]any{
		"redirect": in.CallbackURL != "",
		"token":    info.Session.Token,
		"url":      redirectURL,
		"user":     info.User,
	})
	if err := s.setSessionCookies(resp, info); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *AuthService) handleSignOut(ctx context.Context, r *http.Request) (*inbound.Response, error) {
	if err := s.SignOut(ctx, s.sessionToken(r.Header)); err != nil {
		return nil, err
	}
	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	s.clearSessionCookies(resp)
	return resp, nil
}

func (s *AuthService) handleVerifyEmail(ctx context.Context, r *http.Request) (*inbound.Response, error) {
	q := r.URL.Query()
	callbackURL := q.Get("callbackURL")
	token := q.Get("token")
	if token == "" {
		return nil, badRequest("VALIDATION_ERROR", "Missing token")
	}

	user, sess, err := s.VerifyEmail(ctx, token, requestMetadata(ctx, r))
	if err != nil {
		var authErr *AuthError
		if callbackURL != "" && errors.As(err, &authErr) {
			return redirectResponse(withQuery(callbackURL, "error", authErr.Code)), nil
		}
		return nil, err
	}

	var resp *inbound.Response
	if callbackURL != "" {
		resp = redirectResponse(callbackURL)
	} else {
		resp = jsonResponse(http.StatusOK, map[string]any{"status": true, "user": user})
	}
	if sess != nil {
		if err := s.setSessionCookies(resp, &session.Info{Session: sess, User: user}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (s *AuthService) handleSendVerification(ctx context.Context, r *http.Request) (*inbound.Response, error) {
	var in struct {
		Email       string `json:"email" validate:"required"`
		CallbackURL string `json:"callbackURL,omitempty"`
	}
	if err := decodeAuthBody(r, &in); err != nil {
		return nil, err
	}
	if err := s.SendVerificationEmail(ctx, in.Email, in.CallbackURL); err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, map[string]bool{"status": true}), nil
}

// setSessionCookies writes the signed session token and, when enabled,
// the session data cache cookie.
func (s *AuthService) setSessionCookies(resp *inbound.Response, info *session.Info) error {
	maxAge := int(time.Until(info.Session.ExpiresAt).Seconds())
	addCookie(resp, s.cookie(SessionTokenCookie, s.signer.signValue(info.Session.Token), maxAge))
	return s.setSessionDataCookie(resp, info)
}

func (s *AuthService) setSessionDataCookie(resp *inbound.Response, info *session.Info) error {
	if s.opts.CookieCacheMaxAge <= 0 {
		return nil
	}
	data, err := s.signer.sessionDataToken(info, s.now(), s.opts.CookieCacheMaxAge)
	if err != nil {
		return err
	}
	addCookie(resp, s.cookie(SessionDataCookie, data, int(s.opts.CookieCacheMaxAge.Seconds())))
	return nil
}

func (s *AuthService) clearSessionCookies(resp *inbound.Response) {
	addCookie(resp, s.cookie(SessionTokenCookie, "", -1))
	addCookie(resp, s.cookie(SessionDataCookie, "", -1))
}

// cookie builds an auth cookie. Production cookies are cross-site, secure
// and shared across the cookie domain.
func (s *AuthService) cookie(name, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.opts.Production {
		c.SameSite = http.SameSiteNoneMode
		c.Secure = true
		c.Domain = s.opts.CookieDomain
	}
	return c
}

// decodeAuthBody decodes a JSON body and validates its struct tags.
// Unknown fields are ignored.
func decodeAuthBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAuthBody))
	if err != nil {
		return fmt.Errorf("reading auth body: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest("INVALID_JSON", "Invalid JSON body")
	}
	if err := authValidator.Struct(dst); err != nil {
		var verr *validation.ValidationError
		if errors.As(err, &verr) {
			return badRequest("VALIDATION_ERROR", strings.TrimPrefix(verr.Error(), "validation error: "))
		}
		return badRequest("VALIDATION_ERROR", "Invalid body")
	}
	return nil
}

// requestMetadata describes the client for a new session.
func requestMetadata(ctx context.Context, r *http.Request) session.Metadata {
	ip, _ := ctx.Value(ctxkey.ClientIPKey{}).(string)
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
	}
	return session.Metadata{IPAddress: ip, UserAgent: r.UserAgent()}
}

func jsonResponse(status int, v any) *inbound.Response {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal authentication error","code":"AUTH_FAILURE"}`)
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &inbound.Response{Status: status, Header: h, Body: body}
}

func errorResponse(e *AuthError) *inbound.Response {
	return jsonResponse(e.Status, map[string]string{"error": e.Message, "code": e.Code})
}

func redirectResponse(location string) *inbound.Response {
	h := make(http.Header)
	h.Set("Location", location)
	return &inbound.Response{Status: http.StatusFound, Header: h}
}

func addCookie(resp *inbound.Response, c *http.Cookie) {
	resp.Header.Add("Set-Cookie", c.String())
}

// withQuery appends key=value to a URL, leaving unparseable URLs as-is.
func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
