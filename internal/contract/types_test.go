package contract

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	cases := map[int64]string{
		0:         "USD 0.00",
		5:         "USD 0.05",
		123450:    "USD 1,234.50",
		100000000: "USD 1,000,000.00",
		-2550:     "USD -25.50",
	}
	for cents, want := range cases {
		assert.Equal(t, want, FormatMoney(cents, ""), "cents=%d", cents)
	}
	assert.Equal(t, "EUR 10.00", FormatMoney(1000, "EUR"))
}

func TestContract_Totals(t *testing.T) {
	c := &Contract{
		Items: []LineItem{
			{Description: "Centerpieces", Quantity: 12, UnitPriceCents: 4500},
			{Description: "Bridal bouquet", Quantity: 1, UnitPriceCents: 25000},
		},
		DepositCents: 30000,
	}
	assert.EqualValues(t, 79000, c.TotalCents())
	assert.EqualValues(t, 49000, c.BalanceCents())

	c.DepositCents = 100000
	assert.EqualValues(t, 0, c.BalanceCents())
}

func TestContract_ContentHashTracksTerms(t *testing.T) {
	c := &Contract{Title: "A", Body: "<p>x</p>"}
	h1 := c.ContentHash()
	assert.Len(t, h1, 64)
	assert.Equal(t, h1, c.ContentHash())

	c.Body = "<p>y</p>"
	assert.NotEqual(t, h1, c.ContentHash())

	// Signing metadata does not influence the hash.
	c.Body = "<p>x</p>"
	c.Signature = &Signature{SignerName: "someone"}
	assert.Equal(t, h1, c.ContentHash())
}

func TestContract_CloneIsDeep(t *testing.T) {
	now := time.Unix(10, 0)
	orig := &Contract{
		ID:        "c1",
		Items:     []LineItem{{Description: "x", Quantity: 1}},
		Signature: &Signature{SignerName: "Ana"},
		SignedAt:  &now,
	}
	cp := orig.Clone()
	require.Empty(t, cmp.Diff(orig, cp))

	cp.Items[0].Description = "changed"
	cp.Signature.SignerName = "Ben"
	assert.Equal(t, "x", orig.Items[0].Description)
	assert.Equal(t, "Ana", orig.Signature.SignerName)
}

func TestDraft_Validate(t *testing.T) {
	base := func() Draft {
		return Draft{
			Title:      "Floral design",
			VendorType: VendorFlorist,
			Client:     Party{Name: "Casey"},
			Items:      []LineItem{{Description: "Arch", Quantity: 1, UnitPriceCents: 90000}},
		}
	}
	cases := []struct {
		name   string
		mutate func(d *Draft)
		want   string
	}{
		{"ok", func(d *Draft) {}, ""},
		{"no title", func(d *Draft) { d.Title = "  " }, "title is required"},
		{"long title", func(d *Draft) { d.Title = strings.Repeat("x", 201) }, "title longer"},
		{"multibyte title at limit", func(d *Draft) { d.Title = strings.Repeat("é", MaxTitleLen) }, ""},
		{"long multibyte title", func(d *Draft) { d.Title = strings.Repeat("é", MaxTitleLen+1) }, "title longer"},
		{"bad vendor", func(d *Draft) { d.VendorType = "astronaut" }, "unknown vendor type"},
		{"no client", func(d *Draft) { d.Client.Name = "" }, "client name"},
		{"bad email", func(d *Draft) { d.Client.Email = "nope" }, "client email"},
		{"bad date", func(d *Draft) { d.Event.Date = "12/06/2027" }, "YYYY-MM-DD"},
		{"zero qty", func(d *Draft) { d.Items[0].Quantity = 0 }, "quantity"},
		{"huge qty", func(d *Draft) { d.Items[0].Quantity = MaxQuantity + 1 }, "quantity above"},
		{"huge price", func(d *Draft) { d.Items[0].UnitPriceCents = 1 << 40 }, "price too large"},
		{"max item", func(d *Draft) {
			d.Items[0].Quantity = MaxQuantity
			d.Items[0].UnitPriceCents = MaxUnitPriceCents
		}, "total too large"},
		{"huge deposit without items", func(d *Draft) {
			d.Items = nil
			d.DepositCents = MaxTotalCents + 1
		}, "deposit too large"},
		{"deposit too big", func(d *Draft) { d.DepositCents = 100000 }, "deposit exceeds"},
		{"bad currency", func(d *Draft) { d.Currency = "dollars" }, "currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := base()
			tc.mutate(&d)
			d.Normalize()
			err := d.Validate()
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDraftRoundTrip(t *testing.T) {
	d := Draft{
		Title:      "Catering",
		VendorType: VendorCaterer,
		Client:     Party{Name: "Dee"},
		Event:      Event{Date: "2027-09-01", GuestCount: 120},
		Items:      []LineItem{{Description: "Plated dinner", Quantity: 120, UnitPriceCents: 6500}},
		Currency:   "USD",
	}
	c := New("id", "owner", "share", d, time.Unix(0, 0))
	if diff := cmp.Diff(d, DraftOf(c)); diff != "" {
		t.Fatalf("DraftOf mismatch (-want +got):\n%s", diff)
	}
}
