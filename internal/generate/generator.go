package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vowpact/internal/config"
	"vowpact/internal/logging"
	"vowpact/internal/richtext"

	"golang.org/x/sync/errgroup"
)

const systemPrompt = `You draft clauses for wedding vendor service contracts.
Write plain, friendly but precise language a couple can understand.
Answer with the clause text only, in markdown paragraphs or bullet lists.
Do not add a heading, a signature block, or placeholders in brackets.
Use only the facts provided; do not invent prices, dates or names.`

// SectionText is the generated text of one section.
type SectionText struct {
	Key     string `json:"key"`
	Heading string `json:"heading"`
	Text    string `json:"text"`
}

// Result is a generated contract body.
type Result struct {
	Title    string        `json:"title"`
	Markdown string        `json:"markdown"`
	HTML     string        `json:"html"`
	Sections []SectionText `json:"sections"`
	Duration time.Duration `json:"duration"`
}

// Generator drafts contract bodies section by section.
type Generator struct {
	client         LLMClient
	maxConcurrency int
	timeout        time.Duration
}

// NewGenerator wraps client. maxConcurrency <= 0 means one section at a time.
func NewGenerator(client LLMClient, maxConcurrency int, timeout time.Duration) *Generator {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Generator{client: client, maxConcurrency: maxConcurrency, timeout: timeout}
}

// NewGeneratorFromConfig builds the client selected by cfg and wraps it.
func NewGeneratorFromConfig(ctx context.Context, cfg *config.Config) (*Generator, error) {
	client, err := NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	return NewGenerator(client, cfg.LLM.MaxConcurrency, cfg.GetLLMTimeout()), nil
}

// Generate drafts every section for req and assembles the document.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	sections := SectionsFor(req.VendorType)
	texts := make([]SectionText, len(sections))
	facts := req.facts()

	logging.Generate("generating %d sections for %s contract (concurrency %d)", len(sections), req.VendorType, g.maxConcurrency)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxConcurrency)
	for i, sec := range sections {
		i, sec := i, sec
		eg.Go(func() error {
			text, err := g.client.CompleteWithSystem(egCtx, systemPrompt, sectionPrompt(sec, facts))
			if err != nil {
				return fmt.Errorf("section %s: %w", sec.Key, err)
			}
			text = cleanSection(text, sec.Heading)
			if text == "" {
				return fmt.Errorf("section %s: %w", sec.Key, ErrEmptyCompletion)
			}
			texts[i] = SectionText{Key: sec.Key, Heading: sec.Heading, Text: text}
			logging.GenerateDebug("section %s done (%d chars)", sec.Key, len(text))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logging.GenerateError("generation failed: %v", err)
		return nil, err
	}

	md := Assemble(texts)
	html, err := richtext.MarkdownToHTML(md)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Title:    req.DefaultTitle(),
		Markdown: md,
		HTML:     html,
		Sections: texts,
		Duration: time.Since(start),
	}
	logging.Generate("generated %d sections in %v", len(texts), res.Duration)
	return res, nil
}

func sectionPrompt(sec Section, facts string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "section: %s\n", sec.Key)
	fmt.Fprintf(&b, "heading: %s\n", sec.Heading)
	fmt.Fprintf(&b, "task: %s\n", sec.Instruction)
	b.WriteString("\nFacts:\n")
	b.WriteString(facts)
	return b.String()
}

// cleanSection strips code fences and a repeated heading from model output.
func cleanSection(text, heading string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```markdown")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	first, rest, _ := strings.Cut(text, "\n")
	if h := strings.TrimSpace(strings.TrimLeft(first, "#")); strings.HasPrefix(first, "#") && strings.EqualFold(h, heading) {
		text = strings.TrimSpace(rest)
	}
	return text
}

// Assemble joins sections into one markdown document, numbered in order.
func Assemble(sections []SectionText) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %d. %s\n\n%s", i+1, s.Heading, s.Text)
	}
	return b.String()
}
