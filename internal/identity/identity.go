// Package identity signs users in and out and turns a request into an
// access.Principal.
package identity

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/Joseda-hg/plantcare/internal/model"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionName = "plantcare_session"
	keyEmail    = "email"

	sessionMaxAge = 86400 * 7
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordRequired   = errors.New("password is required")
)

// UserStore is implemented by *db.Store.
type UserStore interface {
	EnsureRoles(ctx context.Context, names ...string) error
	CreateUser(ctx context.Context, email, passwordHash string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	SetPassword(ctx context.Context, userID int64, passwordHash string) error
	AddUserToRole(ctx context.Context, userID int64, role string) error
}

type Service struct {
	users    UserStore
	sessions sessions.Store
	logger   *slog.Logger
}

// New builds a Service whose cookies are signed and encrypted with keys
// derived from secret.
func New(users UserStore, secret string, secure bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	store := sessions.NewCookieStore(sessionKey(secret), sessionKey(secret+"encryption"))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Service{users: users, sessions: store, logger: logger.With("module", "identity")}
}

// Principal resolves the caller of r. Roles are read from the store on every
// call so that a revoked role takes effect immediately. Any failure yields
// the anonymous principal.
func (s *Service) Principal(r *http.Request) access.Principal {
	session, err := s.sessions.Get(r, SessionName)
	if err != nil {
		return access.AnonymousPrincipal
	}
	email, _ := session.Values[keyEmail].(string)
	if email == "" {
		return access.AnonymousPrincipal
	}

	user, err := s.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Warn("resolve principal failed", "email", email, "error", err)
		}
		return access.AnonymousPrincipal
	}
	return principalFor(user)
}

func (s *Service) Login(w http.ResponseWriter, r *http.Request, email, password string) (access.Principal, error) {
	user, err := s.Authenticate(r.Context(), email, password)
	if err != nil {
		return access.AnonymousPrincipal, err
	}

	session, _ := s.sessions.Get(r, SessionName)
	session.Values[keyEmail] = user.Email
	if err := session.Save(r, w); err != nil {
		return access.AnonymousPrincipal, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("user signed in", "email", user.Email)
	return principalFor(user), nil
}

func (s *Service) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.sessions.Get(r, SessionName)
	delete(session.Values, keyEmail)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// Authenticate checks a password without touching any session.
func (s *Service) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		// Keep the timing of unknown addresses close to a wrong password.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// AddUser creates an account with the User role, plus Admin when admin is set.
func (s *Service) AddUser(ctx context.Context, email, password string, admin bool) (model.User, error) {
	return addUser(ctx, s.users, email, password, admin)
}

func (s *Service) ResetPassword(ctx context.Context, email, password string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.users.SetPassword(ctx, user.ID, hash)
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrPasswordRequired
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func principalFor(user model.User) access.Principal {
	return access.Principal{Authenticated: true, Email: user.Email, Roles: user.Roles}
}

func sessionKey(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("plantcare-dummy-password"), bcrypt.MinCost)
