// Package auth runs the account flows: login, registration, logout and
// profile refresh. Every flow that changes who is signed in goes through
// session.Context so views learn about it from the session signal.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/logging"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/session"
)

// ErrMissingCredentials is returned when the username or password is blank.
var ErrMissingCredentials = errors.New("username and password are required")

// Backend is the part of the API the account flows use.
type Backend interface {
	Login(ctx context.Context, username, password string) (*api.LoginResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*model.User, error)
	Me(ctx context.Context, token string) (*model.User, error)
}

// Service runs the account flows against the backend.
type Service struct {
	backend Backend
	session *session.Context
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a Service.
func NewService(backend Backend, sess *session.Context, logger *zap.Logger) *Service {
	return &Service{
		backend: backend,
		session: sess,
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
}

// Login authenticates and, on success, signs the user in. The returned
// user is the snapshot now stored in the session.
func (s *Service) Login(ctx context.Context, username, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.User{}, ErrMissingCredentials
	}

	resp, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return model.User{}, fmt.Errorf("logging in as %s: %w", username, err)
	}

	user := resp.User
	if err := s.session.SignIn(resp.AccessToken, user); err != nil {
		return model.User{}, fmt.Errorf("storing session: %w", err)
	}

	s.logger.Info("signed in",
		zap.String("username", user.Username),
		zap.Bool("admin", user.IsAdmin()),
	)
	return user, nil
}

// Register creates an account. It does not sign the new user in.
func (s *Service) Register(ctx context.Context, req api.RegisterRequest) (model.User, error) {
	if err := validateRegistration(req); err != nil {
		return model.User{}, err
	}

	user, err := s.backend.Register(ctx, req)
	if err != nil {
		return model.User{}, fmt.Errorf("registering %s: %w", req.Username, err)
	}

	s.logger.Info("registered account",
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)
	return *user, nil
}

func validateRegistration(req api.RegisterRequest) error {
	var missing []string
	if strings.TrimSpace(req.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	switch req.Role {
	case model.RoleTenant, model.RoleOwner:
		return nil
	default:
		return fmt.Errorf("role must be %q or %q", model.RoleTenant, model.RoleOwner)
	}
}

// Logout clears the session and tells every view.
func (s *Service) Logout() error {
	if err := s.session.SignOut(); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	s.logger.Info("signed out")
	return nil
}

// RefreshProfile re-reads the signed-in user from /users/me and replaces
// the stored snapshot. A 401 means the token is no longer accepted and
// signs the user out.
func (s *Service) RefreshProfile(ctx context.Context) (model.User, error) {
	token := s.session.Token()
	if token == "" {
		return model.User{}, session.ErrNotFound
	}

	user, err := s.backend.Me(ctx, token)
	if err != nil {
		if api.IsUnauthorized(err) {
			s.expire("profile refresh rejected")
		}
		return model.User{}, fmt.Errorf("refreshing profile: %w", err)
	}

	if err := s.session.UpdateUser(*user); err != nil {
		return model.User{}, fmt.Errorf("storing profile: %w", err)
	}
	return *user, nil
}

// CheckExpiry signs out when the stored token has expired. It reports
// whether it did.
func (s *Service) CheckExpiry() bool {
	token := s.session.Token()
	if token == "" || !Expired(token, s.now()) {
		return false
	}
	s.expire("token expired")
	return true
}

// Expire signs out after the backend rejected the stored token.
func (s *Service) Expire(reason string) {
	s.expire(reason)
}

func (s *Service) expire(reason string) {
	s.logger.Warn("session expired", zap.String("reason", reason))
	if err := s.session.SignOut(); err != nil {
		s.logger.Error("clearing expired session", zap.Error(err))
	}
}
