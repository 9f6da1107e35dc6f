package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vowpact/internal/config"
	"vowpact/internal/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient echoes the section key and tracks concurrency.
type fakeClient struct {
	mu       sync.Mutex
	prompts  []string
	inFlight int32
	peak     int32
	delay    time.Duration
	answer   func(section string) (string, error)
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, _, user string) (string, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	section, _ := parseFacts(user)["section"].(string)
	if f.answer != nil {
		return f.answer(section)
	}
	return "Clause for " + section + ".", nil
}

func photoRequest() Request {
	return Request{
		VendorType:   contract.VendorPhotographer,
		Vendor:       contract.Party{Name: "Golden Hour Photography"},
		Client:       contract.Party{Name: "Sam & Alex"},
		Event:        contract.Event{Date: "2026-09-12", Venue: "Orchard Barn", GuestCount: 90},
		Items:        []contract.LineItem{{Description: "Full day coverage", Quantity: 1, UnitPriceCents: 350000}},
		DepositCents: 100000,
		Currency:     "USD",
	}
}

func TestGenerate_AssemblesSectionsInOrder(t *testing.T) {
	fc := &fakeClient{delay: 5 * time.Millisecond}
	g := NewGenerator(fc, 3, time.Second)

	res, err := g.Generate(context.Background(), photoRequest())
	require.NoError(t, err)

	want := SectionsFor(contract.VendorPhotographer)
	require.Len(t, res.Sections, len(want))
	for i, s := range want {
		assert.Equal(t, s.Key, res.Sections[i].Key)
		assert.Equal(t, "Clause for "+s.Key+".", res.Sections[i].Text)
	}
	assert.True(t, strings.HasPrefix(res.Markdown, "## 1. Services\n\nClause for services."))
	assert.Contains(t, res.Markdown, "## 2. Image Ownership and Usage")
	assert.Contains(t, res.HTML, "<h2>1. Services</h2>")
	assert.Equal(t, "Photographer Services Agreement for Sam & Alex", res.Title)
	assert.LessOrEqual(t, atomic.LoadInt32(&fc.peak), int32(3))

	require.NotEmpty(t, fc.prompts)
	assert.Contains(t, fc.prompts[0], "client: Sam & Alex")
	assert.Contains(t, fc.prompts[0], "total: USD 3,500.00")
}

func TestGenerate_RespectsConcurrencyOne(t *testing.T) {
	fc := &fakeClient{delay: 2 * time.Millisecond}
	_, err := NewGenerator(fc, 0, time.Second).Generate(context.Background(), photoRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fc.peak))
}

func TestGenerate_Errors(t *testing.T) {
	t.Run("invalid request", func(t *testing.T) {
		req := photoRequest()
		req.Client.Name = " "
		_, err := NewGenerator(&fakeClient{}, 1, 0).Generate(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)

		req = photoRequest()
		req.VendorType = "juggler"
		_, err = NewGenerator(&fakeClient{}, 1, 0).Generate(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("empty completion", func(t *testing.T) {
		fc := &fakeClient{answer: func(section string) (string, error) {
			if section == "payment" {
				return "```\n```", nil
			}
			return "ok", nil
		}}
		_, err := NewGenerator(fc, 2, 0).Generate(context.Background(), photoRequest())
		assert.ErrorIs(t, err, ErrEmptyCompletion)
	})

	t.Run("provider error", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		fc := &fakeClient{answer: func(string) (string, error) { return "", boom }}
		_, err := NewGenerator(fc, 2, 0).Generate(context.Background(), photoRequest())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("timeout", func(t *testing.T) {
		fc := &fakeClient{delay: time.Second}
		_, err := NewGenerator(fc, 1, 20*time.Millisecond).Generate(context.Background(), photoRequest())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSectionsFor(t *testing.T) {
	keys := func(v contract.VendorType) []string {
		var out []string
		for _, s := range SectionsFor(v) {
			out = append(out, s.Key)
		}
		return out
	}
	assert.Equal(t, []string{"services", "headcount", "food_safety", "payment", "cancellation", "liability", "force_majeure"}, keys(contract.VendorCaterer))
	assert.Equal(t, []string{"services", "substitutions", "payment", "cancellation", "liability", "force_majeure"}, keys(contract.VendorFlorist))
	assert.Equal(t, []string{"services", "payment", "cancellation", "liability", "force_majeure"}, keys(contract.VendorOther))
}

func TestCleanSection(t *testing.T) {
	assert.Equal(t, "Body text.", cleanSection("```markdown\n## Services\nBody text.\n```", "Services"))
	assert.Equal(t, "## Other\nBody", cleanSection("## Other\nBody", "Services"))
}

func TestTemplateClient_RendersFacts(t *testing.T) {
	g := NewGenerator(NewTemplateClient(), 4, time.Second)
	res, err := g.Generate(context.Background(), photoRequest())
	require.NoError(t, err)

	assert.Contains(t, res.Markdown, "Golden Hour Photography will provide photographer services to Sam & Alex on 2026-09-12 at Orchard Barn.")
	assert.Contains(t, res.Markdown, "- Full day coverage x1 @ USD 3,500.00")
	assert.Contains(t, res.Markdown, "A non-refundable deposit of USD 1,000.00")
	assert.Contains(t, res.Markdown, "retains copyright")
	assert.NotContains(t, res.Markdown, "<no value>")

	again, err := g.Generate(context.Background(), photoRequest())
	require.NoError(t, err)
	assert.Equal(t, res.Markdown, again.Markdown)
}

func TestTemplateClient_MissingVendorUsesDefault(t *testing.T) {
	req := photoRequest()
	req.Vendor.Name = ""
	req.Event = contract.Event{}
	res, err := NewGenerator(NewTemplateClient(), 1, 0).Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, res.Markdown, "The Vendor will provide photographer services to Sam & Alex.")
	assert.NotContains(t, res.Markdown, "<no value>")
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(context.Background(), config.LLMConfig{Provider: "template"})
	require.NoError(t, err)
	assert.IsType(t, &TemplateClient{}, c)

	_, err = NewClient(context.Background(), config.LLMConfig{Provider: "gemini"})
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.LLMConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestRequestFromDraft(t *testing.T) {
	d := contract.Draft{Title: "T", VendorType: contract.VendorBaker, Client: contract.Party{Name: "C"}, Notes: "three tiers"}
	r := RequestFromDraft(d)
	assert.Equal(t, "T", r.DefaultTitle())
	assert.Equal(t, "three tiers", r.Instructions)
	assert.NoError(t, r.Validate())
}
