// Package render turns contracts into printable HTML, PDF via headless
// Chrome, and styled terminal output for the CLI.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"vowpact/internal/contract"
	"vowpact/internal/richtext"
)

//go:embed templates/contract.html.tmpl
var contractTemplate string

var docTemplate = template.Must(template.New("contract").Funcs(template.FuncMap{
	"money": contract.FormatMoney,
	"date": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return ""
		}
		return t.UTC().Format("January 2, 2006 15:04 MST")
	},
	"eventDate": func(e contract.Event) string {
		if d := e.ParsedDate(); !d.IsZero() {
			return d.Format("Monday, January 2, 2006")
		}
		return e.Date
	},
}).Parse(contractTemplate))

// Paper sizes understood by the print stylesheet.
const (
	PaperLetter = "letter"
	PaperA4     = "a4"
)

// Options tune the printable document.
type Options struct {
	Paper    string // letter (default) or a4
	ShareURL string // printed under the title for unsigned drafts
}

type docLineItem struct {
	contract.LineItem
	Amount int64
}

type docView struct {
	C         *contract.Contract
	Items     []docLineItem
	Total     int64
	Balance   int64
	Body      template.HTML
	Signature *contract.Signature
	SigImage  template.URL
	Hash      string
	Paper     string
	ShareURL  string
	IsSigned  bool
	IsDeleted bool
}

// HTML renders c as a standalone printable HTML document.
func HTML(c *contract.Contract, opts Options) (string, error) {
	v := docView{
		C:         c,
		Total:     c.TotalCents(),
		Balance:   c.BalanceCents(),
		Body:      template.HTML(richtext.Sanitize(c.Body)),
		Signature: c.Signature,
		Hash:      c.ContentHash(),
		Paper:     pageSize(opts.Paper),
		ShareURL:  opts.ShareURL,
		IsSigned:  c.Status == contract.StatusSigned,
		IsDeleted: c.Status == contract.StatusDeleted,
	}
	for _, li := range c.Items {
		v.Items = append(v.Items, docLineItem{LineItem: li, Amount: li.AmountCents()})
	}
	if c.Signature != nil {
		v.Hash = c.Signature.ContentHash
		if isPNGDataURL(c.Signature.ImageDataURL) {
			v.SigImage = template.URL(c.Signature.ImageDataURL)
		}
	}

	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render contract %s: %w", c.ID, err)
	}
	return buf.String(), nil
}

func pageSize(paper string) string {
	switch strings.ToLower(paper) {
	case PaperA4:
		return "A4"
	default:
		return "letter"
	}
}

// isPNGDataURL guards the one place a data: URL is trusted in the template.
func isPNGDataURL(s string) bool {
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	return !strings.ContainsAny(s[len(prefix):], "\"'<> \n")
}
