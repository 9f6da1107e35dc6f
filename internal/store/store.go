// Package store persists contracts, vendor accounts and login sessions.
//
// Two backends implement Store: flat JSON files (the default) and SQLite.
// Contracts are mutated only through UpdateContract so that read-modify-write
// cycles are atomic with respect to other writers in the same process.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"vowpact/internal/config"
	"vowpact/internal/contract"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	ErrClosed    = errors.New("store is closed")
)

// User is a vendor account.
type User struct {
	ID           string              `json:"id"`
	Email        string              `json:"email"`
	Name         string              `json:"name"`
	BusinessName string              `json:"business_name"`
	VendorType   contract.VendorType `json:"vendor_type"`
	Phone        string              `json:"phone,omitempty"`
	PasswordHash string              `json:"password_hash"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Session is a logged-in browser, keyed by the cookie token.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ContractFilter narrows ListContracts.
type ContractFilter struct {
	OwnerID        string
	Statuses       []contract.Status // empty means all non-deleted (or all with IncludeDeleted)
	IncludeDeleted bool
}

// Matches reports whether c passes the filter.
func (f ContractFilter) Matches(c *contract.Contract) bool {
	if f.OwnerID != "" && c.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, st := range f.Statuses {
			if c.Status == st {
				return true
			}
		}
		return false
	}
	return f.IncludeDeleted || c.Status != contract.StatusDeleted
}

// UpdateFunc mutates a contract in place. Returning an error aborts the write.
type UpdateFunc func(c *contract.Contract) error

// ContractStore persists contracts.
type ContractStore interface {
	CreateContract(ctx context.Context, c *contract.Contract) error
	GetContract(ctx context.Context, id string) (*contract.Contract, error)
	GetContractByShareToken(ctx context.Context, token string) (*contract.Contract, error)
	ListContracts(ctx context.Context, f ContractFilter) ([]*contract.Contract, error)
	UpdateContract(ctx context.Context, id string, fn UpdateFunc) (*contract.Contract, error)
}

// UserStore persists vendor accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	ContractStore
	UserStore
	SessionStore
	Close() error
}

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "json":
		s, err := OpenJSON(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		if cfg.Watch {
			if err := s.Watch(ctx); err != nil {
				s.Close()
				return nil, fmt.Errorf("watch data dir: %w", err)
			}
		}
		return s, nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.DatabasePath())
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// sortContracts orders newest-updated first, ties broken by ID.
func sortContracts(list []*contract.Contract) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func cloneSession(s *Session) *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
