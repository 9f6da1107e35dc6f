// Package contract defines the vendor/client service contract and the rules
// that govern its lifecycle.
package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// VendorType identifies the kind of wedding vendor authoring a contract.
type VendorType string

const (
	VendorPhotographer VendorType = "photographer"
	VendorCaterer      VendorType = "caterer"
	VendorFlorist      VendorType = "florist"
	VendorPlanner      VendorType = "planner"
	VendorVenue        VendorType = "venue"
	VendorMusic        VendorType = "music"
	VendorBaker        VendorType = "baker"
	VendorOther        VendorType = "other"
)

// VendorTypes lists every supported vendor type.
var VendorTypes = []VendorType{
	VendorPhotographer, VendorCaterer, VendorFlorist, VendorPlanner,
	VendorVenue, VendorMusic, VendorBaker, VendorOther,
}

// Valid reports whether v is a known vendor type.
func (v VendorType) Valid() bool {
	for _, known := range VendorTypes {
		if v == known {
			return true
		}
	}
	return false
}

// Label returns a human-readable name ("Photographer").
func (v VendorType) Label() string {
	if v == "" {
		return "Vendor"
	}
	s := string(v)
	return strings.ToUpper(s[:1]) + s[1:]
}

// Party is one side of the contract.
type Party struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Event describes the wedding the services are for.
type Event struct {
	Date       string `json:"date,omitempty"` // YYYY-MM-DD
	Venue      string `json:"venue,omitempty"`
	GuestCount int    `json:"guest_count,omitempty"`
}

// ParsedDate returns the event date, or the zero time if unset or malformed.
func (e Event) ParsedDate() time.Time {
	t, err := time.Parse(DateLayout, e.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DateLayout is the wire format of Event.Date.
const DateLayout = "2006-01-02"

// LineItem is a billable service.
type LineItem struct {
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// AmountCents returns quantity times unit price.
func (li LineItem) AmountCents() int64 {
	return int64(li.Quantity) * li.UnitPriceCents
}

// Signature is the client's captured signature plus the evidence recorded
// alongside it.
type Signature struct {
	SignerName   string    `json:"signer_name"`
	SignerEmail  string    `json:"signer_email,omitempty"`
	ImageDataURL string    `json:"image_data_url"`
	SignedAt     time.Time `json:"signed_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	ContentHash  string    `json:"content_hash"`
}

// Contract is a service agreement between a vendor and a client.
type Contract struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	VendorType   VendorType `json:"vendor_type"`
	Vendor       Party      `json:"vendor"`
	Client       Party      `json:"client"`
	Event        Event      `json:"event"`
	Items        []LineItem `json:"items,omitempty"`
	DepositCents int64      `json:"deposit_cents"`
	Currency     string     `json:"currency"`
	Body         string     `json:"body"`
	Notes        string     `json:"notes,omitempty"`
	Status       Status     `json:"status"`
	ShareToken   string     `json:"share_token"`
	Signature    *Signature `json:"signature,omitempty"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SignedAt     *time.Time `json:"signed_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// TotalCents sums all line items.
func (c *Contract) TotalCents() int64 {
	var total int64
	for _, li := range c.Items {
		total += li.AmountCents()
	}
	return total
}

// BalanceCents is the total less the deposit, never negative.
func (c *Contract) BalanceCents() int64 {
	b := c.TotalCents() - c.DepositCents
	if b < 0 {
		return 0
	}
	return b
}

// ContentHash fingerprints everything the client agrees to. The signature
// itself is excluded so the hash can be computed before it is attached.
func (c *Contract) ContentHash() string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	write(c.Title, string(c.VendorType))
	write(c.Vendor.Name, c.Vendor.Email, c.Vendor.Phone)
	write(c.Client.Name, c.Client.Email, c.Client.Phone)
	write(c.Event.Date, c.Event.Venue, fmt.Sprint(c.Event.GuestCount))
	for _, li := range c.Items {
		write(li.Description, fmt.Sprint(li.Quantity), fmt.Sprint(li.UnitPriceCents))
	}
	write(fmt.Sprint(c.DepositCents), c.Currency, c.Body)
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a deep copy.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Items != nil {
		cp.Items = append([]LineItem(nil), c.Items...)
	}
	if c.Signature != nil {
		sig := *c.Signature
		cp.Signature = &sig
	}
	if c.SignedAt != nil {
		t := *c.SignedAt
		cp.SignedAt = &t
	}
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

// FormatMoney renders cents as "USD 1,234.50".
func FormatMoney(cents int64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprint(whole)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, b.String(), frac)
}

// DefaultCurrency applies when a draft omits one.
const DefaultCurrency = "USD"
