// Package auth implements vendor accounts and the cookie session used by the
// web app: bcrypt passwords and random session tokens stored server side.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vowpact/internal/config"
	"vowpact/internal/contract"
	"vowpact/internal/logging"
	"vowpact/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionExpired     = errors.New("session expired")
	ErrNoSession          = errors.New("not logged in")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidInput       = errors.New("invalid registration")
)

const minPasswordLen = 4

// Backend is the persistence the auth service needs.
type Backend interface {
	store.UserStore
	store.SessionStore
}

// Registration is the input to Register.
type Registration struct {
	Email        string              `json:"email"`
	Password     string              `json:"password"`
	Name         string              `json:"name"`
	BusinessName string              `json:"business_name"`
	VendorType   contract.VendorType `json:"vendor_type"`
	Phone        string              `json:"phone,omitempty"`
}

func (r *Registration) normalize() {
	r.Email = store.NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.BusinessName = strings.TrimSpace(r.BusinessName)
	r.Phone = strings.TrimSpace(r.Phone)
	if r.VendorType == "" {
		r.VendorType = contract.VendorOther
	}
}

func (r *Registration) validate() error {
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		return fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(r.Password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !r.VendorType.Valid() {
		return fmt.Errorf("%w: unknown vendor type %q", ErrInvalidInput, r.VendorType)
	}
	return nil
}

// Service issues and resolves sessions.
type Service struct {
	backend Backend
	audit   *logging.AuditLogger
	ttl     time.Duration
	cost    int
	now     func() time.Time
	newID   func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithAudit records logins and registrations to the audit trail.
func WithAudit(a *logging.AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

// NewService creates an auth service with sessions lasting ttl.
func NewService(backend Backend, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		ttl:     ttl,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	return s
}

// Register creates a vendor account.
func (s *Service) Register(ctx context.Context, reg Registration) (*store.User, error) {
	reg.normalize()
	if err := reg.validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &store.User{
		ID:           s.newID(),
		Email:        reg.Email,
		Name:         reg.Name,
		BusinessName: reg.BusinessName,
		VendorType:   reg.VendorType,
		Phone:        reg.Phone,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.backend.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	logging.Auth("registered %s (%s)", u.Email, u.ID)
	s.audit.SessionEvent(logging.AuditRegistered, u.ID, "", true)
	return u, nil
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string, meta SessionMeta) (*store.Session, *store.User, error) {
	u, err := s.backend.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logging.AuthWarn("login failed for unknown email %s", store.NormalizeEmail(email))
			s.audit.SessionEvent(logging.AuditLoginFail, "", meta.IPAddress, false)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logging.AuthWarn("login failed for %s", u.Email)
		s.audit.SessionEvent(logging.AuditLoginFail, u.ID, meta.IPAddress, false)
		return nil, nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	sess := &store.Session{
		Token:     s.newID(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	}
	if err := s.backend.SaveSession(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("save session: %w", err)
	}
	logging.Auth("login %s", u.Email)
	s.audit.SessionEvent(logging.AuditLogin, u.ID, meta.IPAddress, true)
	return sess, u, nil
}

// Logout ends the session. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sess, err := s.backend.GetSession(ctx, token)
	if err == nil {
		s.audit.SessionEvent(logging.AuditLogout, sess.UserID, sess.IPAddress, true)
	}
	return s.backend.DeleteSession(ctx, token)
}

// Resolve returns the user behind token. Expired sessions are deleted.
func (s *Service) Resolve(ctx context.Context, token string) (*store.User, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	sess, err := s.backend.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	if sess.Expired(s.now()) {
		if err := s.backend.DeleteSession(ctx, token); err != nil {
			logging.AuthWarn("failed to delete expired session: %v", err)
		}
		return nil, ErrSessionExpired
	}
	u, err := s.backend.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return u, nil
}

// PurgeExpired removes all expired sessions.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	return s.backend.PurgeExpiredSessions(ctx, s.now())
}

// EnsureDemoUser creates the configured demo vendor if it does not exist.
func (s *Service) EnsureDemoUser(ctx context.Context, demo config.DemoUserConfig) (*store.User, error) {
	if !demo.Enabled {
		return nil, nil
	}
	if u, err := s.backend.GetUserByEmail(ctx, demo.Email); err == nil {
		return u, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	u, err := s.Register(ctx, Registration{
		Email:        demo.Email,
		Password:     demo.Password,
		Name:         demo.Name,
		BusinessName: demo.BusinessName,
		VendorType:   contract.VendorType(demo.VendorType),
	})
	if err != nil {
		return nil, fmt.Errorf("seed demo user: %w", err)
	}
	logging.Boot("seeded demo user %s", u.Email)
	return u, nil
}
