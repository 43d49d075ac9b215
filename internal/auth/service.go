package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"spendwise/internal/log"
	"spendwise/internal/metrics"
	"spendwise/internal/models"
	"spendwise/internal/storage"
)

var (
	// ErrUsernameTaken is returned by Register when the username exists.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrInvalidCredentials is returned by Login for any failed password check.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrOAuthFailure is returned when the external sign-in cannot be completed.
	ErrOAuthFailure = errors.New("google login failed")
	// ErrOAuthDisabled is returned when no Google client is configured.
	ErrOAuthDisabled = errors.New("google login is not configured")
	// ErrUnauthenticated is returned by Authenticate for unknown or expired sessions.
	ErrUnauthenticated = errors.New("not authenticated")
)

const (
	// RememberDuration is the lifetime of a "remember me" session.
	RememberDuration = 31 * 24 * time.Hour
	// SessionDuration is the lifetime of an ordinary session.
	SessionDuration = 24 * time.Hour
)

// Auth attempt methods used as metric labels.
const (
	MethodPassword = "password"
	MethodGoogle   = "google"
	MethodRegister = "register"
)

// Identity is the result of a successful Authenticate call.
type Identity struct {
	User    *models.User
	Session models.Session
	// Renewed is set when the session expiry moved forward during the call.
	Renewed bool
}

// Service implements local accounts, Google sign-in and DB-backed sessions.
type Service struct {
	db      *storage.DB
	google  *GoogleProvider
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a Service. google may be nil when OAuth is not configured.
func NewService(db *storage.DB, google *GoogleProvider, m *metrics.Metrics) *Service {
	return &Service{db: db, google: google, metrics: m, now: time.Now}
}

// GoogleEnabled reports whether Google sign-in is available.
func (s *Service) GoogleEnabled() bool {
	return s.google != nil
}

// Register creates a local account.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAuth)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.metrics.AuthAttempt(MethodRegister, metrics.OutcomeFailure)
		return nil, fmt.Errorf("%w: username and password are required", models.ErrValidation)
	}

	exists, err := s.db.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		s.metrics.AuthAttempt(MethodRegister, metrics.OutcomeFailure)
		return nil, ErrUsernameTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.db.CreateUser(ctx, username, hash)
	if errors.Is(err, storage.ErrConflict) {
		s.metrics.AuthAttempt(MethodRegister, metrics.OutcomeFailure)
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.AuthAttempt(MethodRegister, metrics.OutcomeSuccess)
	logger.Info("User registered", log.FieldOperation, log.OpRegister, log.FieldUserID, user.ID)
	return user, nil
}

// Login verifies a username and password and opens a session.
func (s *Service) Login(ctx context.Context, username, password string, remember bool) (*models.Session, error) {
	user, err := s.db.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, storage.ErrNotFound) {
		s.metrics.AuthAttempt(MethodPassword, metrics.OutcomeFailure)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.HasPassword() || !CheckPassword(password, user.PasswordHash) {
		s.metrics.AuthAttempt(MethodPassword, metrics.OutcomeFailure)
		return nil, ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, user.ID, remember)
	if err != nil {
		return nil, err
	}

	s.metrics.AuthAttempt(MethodPassword, metrics.OutcomeSuccess)
	log.FromContext(ctx).WithComponent(log.ComponentAuth).
		Info("User logged in", log.FieldOperation, log.OpLogin, log.FieldUserID, user.ID)
	return session, nil
}

// AuthCodeURL returns the Google authorization URL for state.
func (s *Service) AuthCodeURL(ctx context.Context, state, redirectURL string) (string, error) {
	if s.google == nil {
		return "", ErrOAuthDisabled
	}
	u, err := s.google.AuthCodeURL(ctx, state, redirectURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOAuthFailure, err)
	}
	return u, nil
}

// OAuthLogin completes the Google flow. Users are matched on their Google
// subject and created on first sight. Nothing is written unless the provider
// asserts a verified email.
func (s *Service) OAuthLogin(ctx context.Context, code, redirectURL string, remember bool) (*models.Session, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAuth)

	if s.google == nil {
		return nil, ErrOAuthDisabled
	}
	if code == "" {
		s.metrics.AuthAttempt(MethodGoogle, metrics.OutcomeFailure)
		return nil, fmt.Errorf("%w: missing authorization code", ErrOAuthFailure)
	}

	info, err := s.google.Exchange(ctx, code, redirectURL)
	if err != nil {
		s.metrics.AuthAttempt(MethodGoogle, metrics.OutcomeFailure)
		return nil, fmt.Errorf("%w: %v", ErrOAuthFailure, err)
	}
	if !info.EmailVerified || info.Subject == "" {
		s.metrics.AuthAttempt(MethodGoogle, metrics.OutcomeFailure)
		return nil, fmt.Errorf("%w: email not verified", ErrOAuthFailure)
	}

	user, err := s.db.GetUserByGoogleID(ctx, info.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		user, err = s.createOAuthUser(ctx, info)
		if err == nil {
			logger.Info("User registered via Google", log.FieldOperation, log.OpOAuth, log.FieldUserID, user.ID)
		}
	}
	if err != nil {
		s.metrics.AuthAttempt(MethodGoogle, metrics.OutcomeFailure)
		return nil, fmt.Errorf("%w: %v", ErrOAuthFailure, err)
	}

	session, err := s.createSession(ctx, user.ID, remember)
	if err != nil {
		return nil, err
	}

	s.metrics.AuthAttempt(MethodGoogle, metrics.OutcomeSuccess)
	logger.Info("User logged in via Google", log.FieldOperation, log.OpOAuth, log.FieldUserID, user.ID)
	return session, nil
}

// Logout deletes the session; unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.db.DeleteSession(ctx, token)
}

// Authenticate resolves a session token to its user. Remembered sessions in
// the second half of their lifetime are renewed.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	now := s.now()
	info, err := s.db.ValidateSessionWithInfo(ctx, token, now)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}

	id := &Identity{
		User: info.User,
		Session: models.Session{
			Token:      token,
			UserID:     info.User.ID,
			ExpiresAt:  info.ExpiresAt,
			Remembered: info.Remembered,
		},
	}

	if info.Remembered && info.ExpiresAt.Sub(now) < RememberDuration/2 {
		newExpiresAt := now.Add(RememberDuration)
		if err := s.db.RenewSession(ctx, token, newExpiresAt); err != nil {
			log.FromContext(ctx).WithComponent(log.ComponentAuth).
				Warn("Failed to renew session", log.FieldUserID, info.User.ID, log.FieldError, err)
		} else {
			id.Session.ExpiresAt = newExpiresAt
			id.Renewed = true
		}
	}

	return id, nil
}

// CleanExpiredSessions purges sessions that are past their expiry.
func (s *Service) CleanExpiredSessions(ctx context.Context) (int64, error) {
	return s.db.CleanExpiredSessions(ctx, s.now())
}

func (s *Service) createSession(ctx context.Context, userID int64, remember bool) (*models.Session, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	lifetime := SessionDuration
	if remember {
		lifetime = RememberDuration
	}

	session := &models.Session{
		Token:      token,
		UserID:     userID,
		ExpiresAt:  s.now().Add(lifetime),
		Remembered: remember,
	}
	if err := s.db.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *Service) createOAuthUser(ctx context.Context, info *UserInfo) (*models.User, error) {
	base := usernameBase(info)
	username := base
	for n := 2; ; n++ {
		exists, err := s.db.UsernameExists(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("check username: %w", err)
		}
		if !exists {
			break
		}
		username = base + strconv.Itoa(n)
	}
	return s.db.CreateOAuthUser(ctx, username, info.Email, info.Subject)
}

// usernameBase picks a display name for a new Google account.
func usernameBase(info *UserInfo) string {
	for _, candidate := range []string{info.GivenName, info.Name, localPart(info.Email)} {
		if name := strings.TrimSpace(candidate); name != "" {
			return name
		}
	}
	return "user"
}

func localPart(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
