package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/config"
	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/logging"
)

// AuthBasePath is the mount point of the auth provider endpoints.
const AuthBasePath = "/api/auth"

// AuthOptions configures the AuthService.
type AuthOptions struct {
	// Secret signs session cookies and verification tokens.
	Secret string
	// BaseURL is the public API origin used in verification links.
	BaseURL string
	// Production enables cross-site secure cookies scoped to CookieDomain.
	Production bool
	// CookieDomain is set on auth cookies in production.
	CookieDomain string
	// CookieCacheMaxAge is the lifetime of the session data cookie.
	// Zero disables the cookie cache.
	CookieCacheMaxAge time.Duration
	// Password bounds password length at sign-up.
	Password auth.PasswordPolicy
	// TrustedOrigins may call state-changing endpoints from a browser.
	TrustedOrigins []string
	// RequireEmailVerification blocks sign-in until the email is verified.
	RequireEmailVerification bool
	// AutoSignIn creates a session when an email is verified.
	AutoSignIn bool
}

// AuthOptionsFromConfig derives AuthOptions from the server configuration.
func AuthOptionsFromConfig(cfg *config.Config) AuthOptions {
	return AuthOptions{
		Secret:                   cfg.Auth.Secret,
		BaseURL:                  cfg.ResolvedBaseURL(),
		Production:               cfg.IsProduction(),
		CookieDomain:             cfg.Auth.CookieDomain,
		CookieCacheMaxAge:        config.MustDuration(cfg.Auth.CookieCacheMaxAge, 5*time.Minute),
		Password:                 auth.PasswordPolicy{MinLength: cfg.Auth.MinPasswordLength, MaxLength: cfg.Auth.MaxPasswordLength},
		TrustedOrigins:           cfg.Auth.TrustedOrigins,
		RequireEmailVerification: true,
		AutoSignIn:               true,
	}
}

// SignUpInput is the body of an email sign-up.
type SignUpInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Email       string  `json:"email" validate:"required"`
	Password    string  `json:"password" validate:"required"`
	Image       *string `json:"image,omitempty" validate:"omitempty,url"`
	CallbackURL string  `json:"callbackURL,omitempty"`
}

// SignInInput is the body of an email sign-in.
type SignInInput struct {
	Email       string `json:"email" validate:"required"`
	Password    string `json:"password" validate:"required"`
	RememberMe  *bool  `json:"rememberMe,omitempty"`
	CallbackURL string `json:"callbackURL,omitempty"`
}

// AuthService implements email/password authentication with database
// sessions and email verification.
type AuthService struct {
	users    auth.UserStore
	sessions *session.SessionService
	mailer   Mailer
	signer   signer
	opts     AuthOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(users auth.UserStore, sessions *session.SessionService, mailer Mailer, opts AuthOptions, logger *slog.Logger) *AuthService {
	if opts.Password.MinLength == 0 {
		opts.Password = auth.DefaultPasswordPolicy
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		signer:   signer{secret: []byte(opts.Secret)},
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SignUp registers a user with a credential account. When email
// verification is required no session is created and a verification
// email is sent instead.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput, meta session.Metadata) (*auth.User, *session.Session, error) {
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return nil, nil, badRequest("INVALID_EMAIL", "Invalid email")
	}
	if err := s.opts.Password.Check(in.Password); err != nil {
		return nil, nil, passwordError(err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}
	userID, err := auth.NewID()
	if err != nil {
		return nil, nil, err
	}
	accountID, err := auth.NewID()
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	user := &auth.User{
		ID:        userID,
		Name:      strings.TrimSpace(in.Name),
		Email:     email,
		Image:     in.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := &auth.Account{
		ID:           accountID,
		UserID:       userID,
		ProviderID:   auth.ProviderCredential,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user, account); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return nil, nil, ErrUserExists
		}
		return nil, nil, fmt.Errorf("creating user: %w", err)
	}
	logging.Auth(s.logger, user.ID).Info("user signed up")

	if s.opts.RequireEmailVerification {
		if err := s.sendVerification(ctx, user, in.CallbackURL); err != nil {
			return nil, nil, err
		}
		return user, nil, nil
	}

	sess, err := s.sessions.Create(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// SignIn checks credentials and starts a session. Unverified users get a
// fresh verification email and ErrEmailNotVerified.
func (s *AuthService) SignIn(ctx context.Context, in SignInInput, meta session.Metadata) (*session.Info, error) {
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return nil, badRequest("INVALID_EMAIL", "Invalid email")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, auth.ErrUserNotFound) {
		// Hash anyway so unknown emails take as long as wrong passwords.
		_, _ = auth.HashPassword(in.Password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	account, err := s.users.GetCredentialAccount(ctx, user.ID)
	if errors.Is(err, auth.ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	ok, err := auth.VerifyPassword(in.Password, account.PasswordHash)
	if err != nil || !ok {
		logging.Auth(s.logger, user.ID).Warn("sign-in failed", "reason", "invalid password")
		return nil, ErrInvalidCredentials
	}

	if s.opts.RequireEmailVerification && !user.EmailVerified {
		if err := s.sendVerification(ctx, user, in.CallbackURL); err != nil {
			return nil, err
		}
		return nil, ErrEmailNotVerified
	}

	sess, err := s.sessions.Create(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	logging.Auth(s.logger, user.ID).Info("user signed in")
	return &session.Info{Session: sess, User: user}, nil
}

// SignOut ends the session identified by token. Unknown tokens are ignored.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// VerifyEmail marks the email in token as verified. With AutoSignIn a
// session is returned as well.
func (s *AuthService) VerifyEmail(ctx context.Context, token string, meta session.Metadata) (*auth.User, *session.Session, error) {
	email, err := s.signer.parseVerificationToken(token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, fmt.Errorf("looking up user: %w", err)
	}

	if !user.EmailVerified {
		if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
			return nil, nil, fmt.Errorf("verifying email: %w", err)
		}
		user.EmailVerified = true
		logging.Auth(s.logger, user.ID).Info("email verified")
	}

	if !s.opts.AutoSignIn {
		return user, nil, nil
	}
	sess, err := s.sessions.Create(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// SendVerificationEmail resends the verification link. Unknown and already
// verified addresses succeed silently.
func (s *AuthService) SendVerificationEmail(ctx context.Context, email, callbackURL string) error {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return badRequest("INVALID_EMAIL", "Invalid email")
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}
	if user.EmailVerified {
		return nil
	}
	return s.sendVerification(ctx, user, callbackURL)
}

func (s *AuthService) sendVerification(ctx context.Context, user *auth.User, callbackURL string) error {
	token, err := s.signer.verificationToken(user.Email, s.now())
	if err != nil {
		return err
	}
	q := url.Values{"token": {token}}
	if callbackURL != "" {
		q.Set("callbackURL", callbackURL)
	}
	link := s.opts.BaseURL + AuthBasePath + "/verify-email?" + q.Encode()
	if err := s.mailer.SendVerificationEmail(ctx, user, link); err != nil {
		return fmt.Errorf("sending verification email: %w", err)
	}
	return nil
}

// ResolveSession returns the signed-in session for a request, or nil.
// The signed session token comes from the session cookie or a Bearer
// Authorization header. A valid session data cookie for the same token
// is used without a store lookup.
func (s *AuthService) ResolveSession(ctx context.Context, header http.Header) *session.Info {
	info, _ := s.resolve(ctx, header)
	return info
}

// resolve reports whether the result came from the session data cookie.
func (s *AuthService) resolve(ctx context.Context, header http.Header) (*session.Info, bool) {
	token := s.sessionToken(header)
	if token == "" {
		return nil, false
	}

	if s.opts.CookieCacheMaxAge > 0 {
		if data := cookieValue(header, SessionDataCookie); data != "" {
			if info, ok := s.signer.parseSessionData(data, token); ok {
				return info, true
			}
		}
	}

	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			logging.FromContext(ctx).Error("session lookup failed", "error", err)
		}
		return nil, false
	}
	user, err := s.users.GetUser(ctx, sess.UserID)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			logging.FromContext(ctx).Error("session user lookup failed", "error", err)
		}
		return nil, false
	}
	return &session.Info{Session: sess, User: user}, false
}

// sessionToken extracts and verifies the signed session token.
func (s *AuthService) sessionToken(header http.Header) string {
	signed := cookieValue(header, SessionTokenCookie)
	if signed == "" {
		if bearer, ok := strings.CutPrefix(header.Get("Authorization"), "Bearer "); ok {
			signed = strings.TrimSpace(bearer)
		}
	}
	if signed == "" {
		return ""
	}
	if unescaped, err := url.QueryUnescape(signed); err == nil {
		signed = unescaped
	}
	token, err := s.signer.verifyValue(signed)
	if err != nil {
		return ""
	}
	return token
}

// isTrustedOrigin reports whether origin may call state-changing endpoints.
// Entries ending in "://" trust every origin of that scheme.
func (s *AuthService) isTrustedOrigin(origin string) bool {
	origin = strings.TrimRight(origin, "/")
	if base, err := url.Parse(s.opts.BaseURL); err == nil && origin == base.Scheme+"://"+base.Host {
		return true
	}
	for _, trusted := range s.opts.TrustedOrigins {
		if strings.HasSuffix(trusted, "://") {
			if strings.HasPrefix(origin, trusted) {
				return true
			}
			continue
		}
		if origin == strings.TrimRight(trusted, "/") {
			return true
		}
	}
	return false
}

// passwordError maps a password policy failure to a client error.
func passwordError(err error) *AuthError {
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort):
		return badRequest("PASSWORD_TOO_SHORT", "Password too short")
	case errors.Is(err, auth.ErrPasswordTooLong):
		return badRequest("PASSWORD_TOO_LONG", "Password too long")
	default:
		return badRequest("INVALID_PASSWORD", "Invalid password")
	}
}

// cookieValue returns the named cookie from a request header.
func cookieValue(header http.Header, name string) string {
	for _, line := range header.Values("Cookie") {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == name {
				return c.Value
			}
		}
	}
	return ""
}
