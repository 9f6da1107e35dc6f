package contract

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid contract")

// Draft carries user-editable fields for create and update.
type Draft struct {
	Title        string     `json:"title"`
	VendorType   VendorType `json:"vendor_type"`
	Vendor       Party      `json:"vendor"`
	Client       Party      `json:"client"`
	Event        Event      `json:"event"`
	Items        []LineItem `json:"items"`
	DepositCents int64      `json:"deposit_cents"`
	Currency     string     `json:"currency"`
	Body         string     `json:"body"`
	Notes        string     `json:"notes"`
}

// MaxTitleLen is the longest title, in characters.
const MaxTitleLen = 200

// Line item bounds. MaxTotalCents keeps every sum well inside int64.
const (
	MaxQuantity       = 1_000_000
	MaxUnitPriceCents = 100_000_000_000
	MaxTotalCents     = 1_000_000_000_000_000
)

const (
	maxBodyLen = 200_000
	maxItems   = 100
)

// Normalize trims whitespace and fills defaults.
func (d *Draft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.Client.Name = strings.TrimSpace(d.Client.Name)
	d.Client.Email = strings.TrimSpace(d.Client.Email)
	d.Vendor.Name = strings.TrimSpace(d.Vendor.Name)
	d.Vendor.Email = strings.TrimSpace(d.Vendor.Email)
	d.Event.Venue = strings.TrimSpace(d.Event.Venue)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	if d.Currency == "" {
		d.Currency = DefaultCurrency
	}
	if d.VendorType == "" {
		d.VendorType = VendorOther
	}
}

// Validate returns an error wrapping ErrInvalid describing the first problem.
func (d *Draft) Validate() error {
	if d.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if utf8.RuneCountInString(d.Title) > MaxTitleLen {
		return fmt.Errorf("%w: title longer than %d characters", ErrInvalid, MaxTitleLen)
	}
	if !d.VendorType.Valid() {
		return fmt.Errorf("%w: unknown vendor type %q", ErrInvalid, d.VendorType)
	}
	if d.Client.Name == "" {
		return fmt.Errorf("%w: client name is required", ErrInvalid)
	}
	if d.Client.Email != "" {
		if _, err := mail.ParseAddress(d.Client.Email); err != nil {
			return fmt.Errorf("%w: client email: %v", ErrInvalid, err)
		}
	}
	if d.Event.Date != "" {
		if _, err := time.Parse(DateLayout, d.Event.Date); err != nil {
			return fmt.Errorf("%w: event date must be YYYY-MM-DD", ErrInvalid)
		}
	}
	if d.Event.GuestCount < 0 {
		return fmt.Errorf("%w: guest count cannot be negative", ErrInvalid)
	}
	if len(d.Items) > maxItems {
		return fmt.Errorf("%w: more than %d line items", ErrInvalid, maxItems)
	}
	var total int64
	for i, li := range d.Items {
		if strings.TrimSpace(li.Description) == "" {
			return fmt.Errorf("%w: item %d has no description", ErrInvalid, i+1)
		}
		if li.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalid, i+1)
		}
		if li.Quantity > MaxQuantity {
			return fmt.Errorf("%w: item %d quantity above %d", ErrInvalid, i+1, MaxQuantity)
		}
		if li.UnitPriceCents < 0 {
			return fmt.Errorf("%w: item %d price cannot be negative", ErrInvalid, i+1)
		}
		if li.UnitPriceCents > MaxUnitPriceCents {
			return fmt.Errorf("%w: item %d price too large", ErrInvalid, i+1)
		}
		total += li.AmountCents()
		if total > MaxTotalCents {
			return fmt.Errorf("%w: total too large", ErrInvalid)
		}
	}
	if d.DepositCents < 0 {
		return fmt.Errorf("%w: deposit cannot be negative", ErrInvalid)
	}
	if d.DepositCents > MaxTotalCents {
		return fmt.Errorf("%w: deposit too large", ErrInvalid)
	}
	if d.DepositCents > total && len(d.Items) > 0 {
		return fmt.Errorf("%w: deposit exceeds total", ErrInvalid)
	}
	if len(d.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalid)
	}
	if len(d.Body) > maxBodyLen {
		return fmt.Errorf("%w: body too large", ErrInvalid)
	}
	return nil
}

// Apply copies the draft fields onto c and bumps its version.
func (d *Draft) Apply(c *Contract, now time.Time) {
	c.Title = d.Title
	c.VendorType = d.VendorType
	c.Vendor = d.Vendor
	c.Client = d.Client
	c.Event = d.Event
	c.Items = append([]LineItem(nil), d.Items...)
	c.DepositCents = d.DepositCents
	c.Currency = d.Currency
	c.Body = d.Body
	c.Notes = d.Notes
	c.touch(now)
}

// New creates a draft contract owned by ownerID.
func New(id, ownerID, shareToken string, d Draft, now time.Time) *Contract {
	c := &Contract{
		ID:         id,
		OwnerID:    ownerID,
		Status:     StatusDraft,
		ShareToken: shareToken,
		CreatedAt:  now,
	}
	d.Apply(c, now)
	return c
}

// DraftOf returns the editable fields of c.
func DraftOf(c *Contract) Draft {
	return Draft{
		Title:        c.Title,
		VendorType:   c.VendorType,
		Vendor:       c.Vendor,
		Client:       c.Client,
		Event:        c.Event,
		Items:        append([]LineItem(nil), c.Items...),
		DepositCents: c.DepositCents,
		Currency:     c.Currency,
		Body:         c.Body,
		Notes:        c.Notes,
	}
}
