package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"vowpact/internal/contract"
	"vowpact/internal/generate"
	"vowpact/internal/logging"
	"vowpact/internal/store"
)

// ListOptions narrows List.
type ListOptions struct {
	Status         contract.Status // empty means every live status
	IncludeDeleted bool
}

// GenerateOptions steer AI drafting.
type GenerateOptions struct {
	Tone         string `json:"tone,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	// Version, when set, must match the stored version at save time.
	Version int `json:"version,omitempty"`
}

// Create stores a new draft owned by user.
func (s *Service) Create(ctx context.Context, user *store.User, d contract.Draft) (*contract.Contract, error) {
	if user == nil {
		return nil, fmt.Errorf("create contract: %w", ErrNotFound)
	}
	if err := prepareDraft(&d, user); err != nil {
		return nil, err
	}
	c := contract.New(s.newID(), user.ID, s.newShareToken(), d, s.now())
	if err := s.store.CreateContract(ctx, c); err != nil {
		return nil, fmt.Errorf("create contract: %w", err)
	}
	s.record(logging.AuditContractCreated, user.ID, c)
	logging.Contracts("created %s %q for %s", c.ID, c.Title, user.Email)
	return c, nil
}

// Get returns one of user's contracts, deleted ones included.
func (s *Service) Get(ctx context.Context, user *store.User, id string) (*contract.Contract, error) {
	return s.owned(ctx, user, id)
}

// List returns user's contracts, newest first.
func (s *Service) List(ctx context.Context, user *store.User, opts ListOptions) ([]*contract.Contract, error) {
	if user == nil {
		return nil, nil
	}
	f := store.ContractFilter{OwnerID: user.ID, IncludeDeleted: opts.IncludeDeleted}
	if opts.Status != "" {
		if !opts.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", contract.ErrUnknownStatus, opts.Status)
		}
		f.Statuses = []contract.Status{opts.Status}
	}
	return s.store.ListContracts(ctx, f)
}

// Update replaces the editable fields of a draft. version 0 skips the
// concurrency check.
func (s *Service) Update(ctx context.Context, user *store.User, id string, version int, d contract.Draft) (*contract.Contract, error) {
	if err := prepareDraft(&d, user); err != nil {
		return nil, err
	}
	c, err := s.update(ctx, user, id, func(c *contract.Contract) error {
		if err := c.CanEdit(); err != nil {
			return err
		}
		if err := c.CheckVersion(version); err != nil {
			return err
		}
		d.Apply(c, s.now())
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.ContractsWarn("update %s refused: %v", id, err)
		}
		return nil, err
	}
	s.record(logging.AuditContractUpdated, user.ID, c)
	logging.Contracts("updated %s to v%d", c.ID, c.Version)
	return c, nil
}

// Delete soft-deletes a contract. Signed contracts may be deleted too; the
// record and its audit trail remain.
func (s *Service) Delete(ctx context.Context, user *store.User, id string) (*contract.Contract, error) {
	c, err := s.update(ctx, user, id, func(c *contract.Contract) error {
		if err := c.CanDelete(); err != nil {
			return err
		}
		return c.Transition(contract.StatusDeleted, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.record(logging.AuditContractDeleted, user.ID, c)
	logging.Contracts("deleted %s", c.ID)
	return c, nil
}

// Generate drafts the body of an existing draft with the configured
// generator and saves it. An empty title is filled as well.
func (s *Service) Generate(ctx context.Context, user *store.User, id string, opts GenerateOptions) (*contract.Contract, *generate.Result, error) {
	if s.gen == nil {
		return nil, nil, fmt.Errorf("generate: %w", ErrUnavailable)
	}
	current, err := s.owned(ctx, user, id)
	if err != nil {
		return nil, nil, err
	}
	if err := current.CanGenerate(); err != nil {
		return nil, nil, err
	}
	if err := current.CheckVersion(opts.Version); err != nil {
		return nil, nil, err
	}

	req := generate.RequestFromDraft(contract.DraftOf(current))
	applyOptions(&req, opts)
	res, err := s.gen.Generate(ctx, req)
	if err != nil {
		logging.GenerateError("generate %s: %v", id, err)
		return nil, nil, fmt.Errorf("generate contract: %w", err)
	}

	// The generator ran without the store lock; refuse to overwrite edits
	// made in the meantime.
	seen := current.Version
	c, err := s.update(ctx, user, id, func(c *contract.Contract) error {
		if err := c.CanGenerate(); err != nil {
			return err
		}
		if err := c.CheckVersion(seen); err != nil {
			return err
		}
		d := contract.DraftOf(c)
		d.Body = res.HTML
		if d.Title == "" {
			d.Title = res.Title
		}
		d.Apply(c, s.now())
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.record(logging.AuditContractGenerated, user.ID, c)
	logging.Generate("generated %d sections for %s in %v", len(res.Sections), c.ID, res.Duration)
	return c, res, nil
}

// Preview drafts contract text for d without saving anything.
func (s *Service) Preview(ctx context.Context, user *store.User, d contract.Draft, opts GenerateOptions) (*generate.Result, error) {
	if s.gen == nil {
		return nil, fmt.Errorf("preview: %w", ErrUnavailable)
	}
	if user != nil && d.VendorType == "" {
		d.VendorType = user.VendorType
	}
	if user != nil && strings.TrimSpace(d.Vendor.Name) == "" {
		d.Vendor.Name = user.BusinessName
	}
	d.Normalize()
	req := generate.RequestFromDraft(d)
	applyOptions(&req, opts)
	res, err := s.gen.Generate(ctx, req)
	if err != nil {
		logging.GenerateError("preview for %s: %v", actorID(user), err)
		return nil, fmt.Errorf("preview contract: %w", err)
	}
	logging.GenerateDebug("preview for %s: %d sections", actorID(user), len(res.Sections))
	return res, nil
}

func applyOptions(req *generate.Request, opts GenerateOptions) {
	if t := strings.TrimSpace(opts.Tone); t != "" {
		req.Tone = t
	}
	if in := strings.TrimSpace(opts.Instructions); in != "" {
		if req.Instructions != "" {
			req.Instructions += "\n"
		}
		req.Instructions += in
	}
}

// Duplicate copies a live contract into a new draft for the same owner.
// The signature and signing evidence are not carried over.
func (s *Service) Duplicate(ctx context.Context, user *store.User, id string) (*contract.Contract, error) {
	src, err := s.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if src.Status == contract.StatusDeleted {
		return nil, contract.ErrDeleted
	}
	d := contract.DraftOf(src)
	d.Title = copyTitle(d.Title)
	if err := prepareDraft(&d, user); err != nil {
		return nil, err
	}
	c := contract.New(s.newID(), user.ID, s.newShareToken(), d, s.now())
	if err := s.store.CreateContract(ctx, c); err != nil {
		return nil, fmt.Errorf("duplicate contract: %w", err)
	}
	s.audit.Log(logging.AuditEvent{
		EventType:  logging.AuditContractDuplicated,
		ActorID:    user.ID,
		ContractID: c.ID,
		Status:     string(c.Status),
		Version:    c.Version,
		Success:    true,
		Fields:     map[string]interface{}{"source": src.ID},
	})
	logging.Contracts("duplicated %s into %s", src.ID, c.ID)
	return c, nil
}

func copyTitle(title string) string {
	const suffix = " (copy)"
	limit := contract.MaxTitleLen - utf8.RuneCountInString(suffix)
	if r := []rune(title); len(r) > limit {
		title = strings.TrimSpace(string(r[:limit]))
	}
	return title + suffix
}

// History returns the audit trail of one of user's contracts.
func (s *Service) History(ctx context.Context, user *store.User, id string) ([]logging.AuditEvent, error) {
	if _, err := s.owned(ctx, user, id); err != nil {
		return nil, err
	}
	events, err := s.audit.History(id)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return events, nil
}
