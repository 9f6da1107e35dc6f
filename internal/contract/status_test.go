package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraftContract(t *testing.T) *Contract {
	t.Helper()
	d := Draft{
		Title:      "Wedding photography",
		VendorType: VendorPhotographer,
		Client:     Party{Name: "Ana & Ben", Email: "ana@example.com"},
		Event:      Event{Date: "2027-06-12", Venue: "Old Mill"},
		Items:      []LineItem{{Description: "Full day coverage", Quantity: 1, UnitPriceCents: 350000}},
		Body:       "<p>Terms</p>",
	}
	d.Normalize()
	require.NoError(t, d.Validate())
	return New("c1", "u1", "tok", d, time.Unix(1000, 0))
}

func TestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusSigned, true},
		{StatusDraft, StatusDeleted, true},
		{StatusSigned, StatusDeleted, true},
		{StatusSigned, StatusDraft, false},
		{StatusDeleted, StatusDraft, false},
		{StatusDeleted, StatusSigned, false},
		{StatusDraft, StatusDraft, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to))
		})
	}
}

func TestContract_NewIsDraftVersionOne(t *testing.T) {
	c := newDraftContract(t)
	assert.Equal(t, StatusDraft, c.Status)
	assert.Equal(t, 1, c.Version)
	assert.Equal(t, "USD", c.Currency)
	assert.NoError(t, c.CanEdit())
	assert.NoError(t, c.CanSign())
	assert.NoError(t, c.CanDelete())
}

func TestContract_SignedIsImmutable(t *testing.T) {
	c := newDraftContract(t)
	now := time.Unix(2000, 0)
	require.NoError(t, c.Attach(Signature{SignerName: "Ana"}, now))

	assert.Equal(t, StatusSigned, c.Status)
	require.NotNil(t, c.SignedAt)
	assert.Equal(t, now, *c.SignedAt)
	assert.Equal(t, c.ContentHash(), c.Signature.ContentHash)
	assert.Equal(t, 2, c.Version)

	assert.ErrorIs(t, c.CanEdit(), ErrNotEditable)
	assert.ErrorIs(t, c.CanGenerate(), ErrNotEditable)
	assert.ErrorIs(t, c.Attach(Signature{SignerName: "Again"}, now), ErrAlreadySigned)
	assert.NoError(t, c.CanDelete())
}

func TestContract_DeletedIsTerminal(t *testing.T) {
	c := newDraftContract(t)
	require.NoError(t, c.Transition(StatusDeleted, time.Unix(3000, 0)))
	require.NotNil(t, c.DeletedAt)

	assert.ErrorIs(t, c.CanEdit(), ErrDeleted)
	assert.ErrorIs(t, c.CanSign(), ErrDeleted)
	assert.ErrorIs(t, c.CanDelete(), ErrDeleted)
	assert.ErrorIs(t, c.Transition(StatusSigned, time.Now()), ErrDeleted)
}

func TestContract_InvalidTransition(t *testing.T) {
	c := newDraftContract(t)
	require.NoError(t, c.Attach(Signature{SignerName: "Ana"}, time.Now()))
	err := c.Transition(StatusDraft, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestContract_CheckVersion(t *testing.T) {
	c := newDraftContract(t)
	assert.NoError(t, c.CheckVersion(0))
	assert.NoError(t, c.CheckVersion(1))
	assert.ErrorIs(t, c.CheckVersion(7), ErrVersionConflict)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("signed")
	require.NoError(t, err)
	assert.Equal(t, StatusSigned, st)

	_, err = ParseStatus("archived")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}
