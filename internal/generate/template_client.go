package generate

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
)

// TemplateClient answers section prompts from built-in clause templates.
// It needs no network access and always returns the same text for the same
// prompt, which makes it the offline provider and the test double.
type TemplateClient struct {
	templates map[string]*template.Template
	fallback  *template.Template
}

var clauseTemplates = map[string]string{
	"services": `{{.vendor | or "The Vendor"}} will provide {{lower (.vendor_type | or "wedding")}} services to {{.client}}{{with .event_date}} on {{.}}{{end}}{{with .venue}} at {{.}}{{end}}.{{with .guests}} The event is expected to host {{.}} guests.{{end}}
{{range .items}}
- {{.}}{{end}}`,
	"payment": `The total fee for the services is {{.total}}. A non-refundable deposit of {{.deposit}} is due on signing to reserve the date. The remaining balance is due no later than fourteen (14) days before the event.`,
	"cancellation": `If {{.client}} cancels, the deposit is retained by {{.vendor | or "the Vendor"}}. Cancellations within thirty (30) days of the event owe the full fee. The date may be moved once, subject to availability, without penalty.`,
	"liability": `{{.vendor | or "The Vendor"}}'s total liability under this agreement is limited to the amounts paid by {{.client}}.`,
	"force_majeure": `Neither party is liable for failure to perform caused by events beyond its reasonable control, including severe weather, natural disaster, or government order. Amounts paid will be credited toward a rescheduled date.`,
	"usage_rights": `{{.vendor | or "The Photographer"}} retains copyright in all images. {{.client}} receives a personal, non-commercial license to print and share the images. {{.vendor | or "The Photographer"}} may use images for portfolio and marketing.`,
	"delivery": `Edited images will be delivered through an online gallery within eight (8) weeks of the event.`,
	"headcount": `{{.client}} will confirm the final guest count fourteen (14) days before the event{{with .guests}} (currently estimated at {{.}}){{end}}. Charges are based on the confirmed count or the actual count, whichever is greater.`,
	"food_safety": `{{.client}} must disclose guest allergies in writing. Food is prepared under applicable food safety standards. For safety reasons leftover food may not be removed from the venue.`,
	"substitutions": `Flowers are natural products subject to seasonal availability. {{.vendor | or "The Florist"}} may substitute flowers of equal or greater value while preserving the agreed style and palette.`,
	"venue_rules": `Access to the venue begins at the agreed setup time. Decorations may not damage walls or fixtures. Amplified music ends at the venue curfew and the space must be cleared afterwards.`,
	"performance": `The performance includes the agreed set time with reasonable breaks. {{.client}} will provide safe access to power near the performance area.`,
	"design": `The final design will be approved in writing thirty (30) days before the event. Once the cake is delivered and set up, responsibility passes to {{.client}} and the venue.`,
	"coordination": `Planning includes scheduled meetings, coordination with the other vendors, and management of the event timeline on the day.`,
}

const fallbackTemplate = `{{.task}}`

var templateFuncs = template.FuncMap{
	"lower": strings.ToLower,
	// or returns def when v is empty: {{.vendor | or "The Vendor"}}.
	"or": func(def string, v interface{}) string {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
		return def
	},
}

// NewTemplateClient parses the built-in clause templates.
func NewTemplateClient() *TemplateClient {
	c := &TemplateClient{templates: make(map[string]*template.Template, len(clauseTemplates))}
	for key, src := range clauseTemplates {
		c.templates[key] = template.Must(template.New(key).Funcs(templateFuncs).Option("missingkey=zero").Parse(src))
	}
	c.fallback = template.Must(template.New("fallback").Parse(fallbackTemplate))
	return c
}

func (c *TemplateClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem ignores the system prompt and fills the template named
// by the prompt's "section:" line with its "key: value" facts.
func (c *TemplateClient) CompleteWithSystem(ctx context.Context, _, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data := parseFacts(userPrompt)
	key, _ := data["section"].(string)
	tmpl, ok := c.templates[key]
	if !ok {
		tmpl = c.fallback
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s clause: %w", key, err)
	}
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// parseFacts reads "key: value" lines. Repeated "item" keys collect into
// a list under "items".
func parseFacts(prompt string) map[string]interface{} {
	data := map[string]interface{}{}
	var items []string
	for _, line := range strings.Split(prompt, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || strings.ContainsAny(k, " \t") {
			continue
		}
		if k == "item" {
			items = append(items, v)
			continue
		}
		if _, seen := data[k]; !seen {
			data[k] = v
		}
	}
	data["items"] = items
	return data
}
