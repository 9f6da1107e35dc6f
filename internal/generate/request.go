package generate

import (
	"fmt"
	"strings"

	"vowpact/internal/contract"
)

// Request describes the contract to draft.
type Request struct {
	Title        string              `json:"title"`
	VendorType   contract.VendorType `json:"vendor_type"`
	Vendor       contract.Party      `json:"vendor"`
	Client       contract.Party      `json:"client"`
	Event        contract.Event      `json:"event"`
	Items        []contract.LineItem `json:"items"`
	DepositCents int64               `json:"deposit_cents"`
	Currency     string              `json:"currency"`
	Tone         string              `json:"tone,omitempty"`         // e.g. "friendly", "formal"
	Instructions string              `json:"instructions,omitempty"` // free-form additions from the vendor
}

// RequestFromDraft builds a request from a contract draft.
func RequestFromDraft(d contract.Draft) Request {
	return Request{
		Title:        d.Title,
		VendorType:   d.VendorType,
		Vendor:       d.Vendor,
		Client:       d.Client,
		Event:        d.Event,
		Items:        append([]contract.LineItem(nil), d.Items...),
		DepositCents: d.DepositCents,
		Currency:     d.Currency,
		Instructions: d.Notes,
	}
}

// Validate checks the fields every prompt depends on.
func (r *Request) Validate() error {
	if !r.VendorType.Valid() {
		return fmt.Errorf("%w: unknown vendor type %q", ErrInvalidRequest, r.VendorType)
	}
	if strings.TrimSpace(r.Client.Name) == "" {
		return fmt.Errorf("%w: client name is required", ErrInvalidRequest)
	}
	return nil
}

func (r *Request) currency() string {
	if r.Currency == "" {
		return contract.DefaultCurrency
	}
	return r.Currency
}

func (r *Request) totalCents() int64 {
	var total int64
	for _, li := range r.Items {
		total += li.AmountCents()
	}
	return total
}

// DefaultTitle is used when the vendor left the title empty.
func (r *Request) DefaultTitle() string {
	if r.Title != "" {
		return r.Title
	}
	title := r.VendorType.Label() + " Services Agreement"
	if r.Client.Name != "" {
		title += " for " + r.Client.Name
	}
	return title
}

// facts renders the request as "key: value" lines shared by every prompt.
func (r *Request) facts() string {
	var b strings.Builder
	line := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	line("vendor_type", r.VendorType.Label())
	line("vendor", r.Vendor.Name)
	line("client", r.Client.Name)
	line("event_date", r.Event.Date)
	line("venue", r.Event.Venue)
	if r.Event.GuestCount > 0 {
		line("guests", fmt.Sprint(r.Event.GuestCount))
	}
	for _, li := range r.Items {
		line("item", fmt.Sprintf("%s x%d @ %s", li.Description, li.Quantity, contract.FormatMoney(li.UnitPriceCents, r.currency())))
	}
	line("total", contract.FormatMoney(r.totalCents(), r.currency()))
	line("deposit", contract.FormatMoney(r.DepositCents, r.currency()))
	line("tone", r.Tone)
	line("instructions", r.Instructions)
	return b.String()
}
