package contract

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a contract.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusSigned  Status = "signed"
	StatusDeleted Status = "deleted"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotEditable       = errors.New("contract is not editable")
	ErrAlreadySigned     = errors.New("contract is already signed")
	ErrDeleted           = errors.New("contract has been deleted")
	ErrVersionConflict   = errors.New("contract was modified concurrently")
	ErrUnknownStatus     = errors.New("unknown status")
)

// transitions is the full state machine. Deleted is terminal.
var transitions = map[Status][]Status{
	StatusDraft:  {StatusSigned, StatusDeleted},
	StatusSigned: {StatusDeleted},
}

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSigned, StatusDeleted:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanEdit reports whether content changes are allowed.
func (c *Contract) CanEdit() error {
	switch c.Status {
	case StatusDraft:
		return nil
	case StatusDeleted:
		return ErrDeleted
	case StatusSigned:
		return fmt.Errorf("%w: signed contracts are immutable", ErrNotEditable)
	}
	return fmt.Errorf("%w: %q", ErrUnknownStatus, c.Status)
}

// CanSign reports whether a signature may be attached.
func (c *Contract) CanSign() error {
	switch c.Status {
	case StatusDraft:
		return nil
	case StatusSigned:
		return ErrAlreadySigned
	case StatusDeleted:
		return ErrDeleted
	}
	return fmt.Errorf("%w: %q", ErrUnknownStatus, c.Status)
}

// CanDelete reports whether the contract may be soft-deleted.
func (c *Contract) CanDelete() error {
	if c.Status == StatusDeleted {
		return ErrDeleted
	}
	if !c.Status.CanTransition(StatusDeleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusDeleted)
	}
	return nil
}

// CanGenerate reports whether AI generation may replace the body.
func (c *Contract) CanGenerate() error {
	return c.CanEdit()
}

// Transition moves the contract to next, stamping the matching timestamp.
func (c *Contract) Transition(next Status, now time.Time) error {
	if !c.Status.CanTransition(next) {
		if c.Status == StatusDeleted {
			return ErrDeleted
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}
	c.Status = next
	switch next {
	case StatusSigned:
		c.SignedAt = &now
	case StatusDeleted:
		c.DeletedAt = &now
	}
	c.touch(now)
	return nil
}

// Attach records sig and transitions the contract to signed. The content
// hash is computed here so it always reflects the signed content.
func (c *Contract) Attach(sig Signature, now time.Time) error {
	if err := c.CanSign(); err != nil {
		return err
	}
	sig.SignedAt = now
	sig.ContentHash = c.ContentHash()
	c.Signature = &sig
	return c.Transition(StatusSigned, now)
}

// CheckVersion fails when expected is set and differs from the stored version.
func (c *Contract) CheckVersion(expected int) error {
	if expected > 0 && expected != c.Version {
		return fmt.Errorf("%w: have version %d, got %d", ErrVersionConflict, c.Version, expected)
	}
	return nil
}

func (c *Contract) touch(now time.Time) {
	c.Version++
	c.UpdatedAt = now
}
