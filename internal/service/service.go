// Package service implements contract operations on behalf of a logged-in
// vendor or a client holding a share link. Every state change goes through
// the contract state machine inside a single store update.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vowpact/internal/contract"
	"vowpact/internal/generate"
	"vowpact/internal/logging"
	"vowpact/internal/render"
	"vowpact/internal/richtext"
	"vowpact/internal/signature"
	"vowpact/internal/store"

	"github.com/google/uuid"
)

var (
	// ErrNotFound covers missing contracts and contracts owned by someone else.
	ErrNotFound = store.ErrNotFound
	// ErrSignatureRejected wraps every signature validation failure.
	ErrSignatureRejected = errors.New("signature rejected")
	// ErrUnavailable is returned when an optional backend is not configured.
	ErrUnavailable = errors.New("feature not configured")
)

// Drafter produces contract text. *generate.Generator implements it.
type Drafter interface {
	Generate(ctx context.Context, req generate.Request) (*generate.Result, error)
}

// Deps wires a Service.
type Deps struct {
	Store     store.ContractStore
	Generator Drafter
	PDF       render.PDFRenderer
	Audit     *logging.AuditLogger
	Limits    signature.Limits
	BaseURL   string // public origin used to build share links
	Paper     string
}

// Service is the contract application service.
type Service struct {
	store   store.ContractStore
	gen     Drafter
	pdf     render.PDFRenderer
	audit   *logging.AuditLogger
	limits  signature.Limits
	baseURL string
	paper   string

	now   func() time.Time
	newID func() string
}

// New creates a Service.
func New(d Deps) *Service {
	limits := d.Limits
	if limits == (signature.Limits{}) {
		limits = signature.DefaultLimits
	}
	return &Service{
		store:   d.Store,
		gen:     d.Generator,
		pdf:     d.PDF,
		audit:   d.Audit,
		limits:  limits,
		baseURL: strings.TrimRight(d.BaseURL, "/"),
		paper:   d.Paper,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// ShareURL returns the public link a client uses to review and sign c.
func (s *Service) ShareURL(c *contract.Contract) string {
	return s.baseURL + "/api/share/" + c.ShareToken
}

func (s *Service) newShareToken() string {
	return strings.ReplaceAll(s.newID(), "-", "") + strings.ReplaceAll(s.newID(), "-", "")[:8]
}

// owned loads id and hides contracts belonging to other vendors.
func (s *Service) owned(ctx context.Context, user *store.User, id string) (*contract.Contract, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil || c.OwnerID != user.ID {
		return nil, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	return c, nil
}

// update runs fn on an owned contract inside a store update.
func (s *Service) update(ctx context.Context, user *store.User, id string, fn store.UpdateFunc) (*contract.Contract, error) {
	return s.store.UpdateContract(ctx, id, func(c *contract.Contract) error {
		if user == nil || c.OwnerID != user.ID {
			return fmt.Errorf("contract %s: %w", id, ErrNotFound)
		}
		return fn(c)
	})
}

// prepareDraft normalizes d, fills vendor defaults from user, cleans the
// body and validates.
func prepareDraft(d *contract.Draft, user *store.User) error {
	if user != nil {
		if d.VendorType == "" {
			d.VendorType = user.VendorType
		}
		if strings.TrimSpace(d.Vendor.Name) == "" {
			d.Vendor.Name = user.BusinessName
			if d.Vendor.Name == "" {
				d.Vendor.Name = user.Name
			}
		}
		if strings.TrimSpace(d.Vendor.Email) == "" {
			d.Vendor.Email = user.Email
		}
		if strings.TrimSpace(d.Vendor.Phone) == "" {
			d.Vendor.Phone = user.Phone
		}
	}
	d.Normalize()
	body, err := richtext.Normalize(d.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", contract.ErrInvalid, err)
	}
	d.Body = body
	return d.Validate()
}

func actorID(user *store.User) string {
	if user == nil {
		return ""
	}
	return user.ID
}

func (s *Service) record(t logging.AuditEventType, actor string, c *contract.Contract) {
	s.audit.ContractEvent(t, actor, c.ID, string(c.Status), c.Version)
}
