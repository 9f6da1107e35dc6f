package render

import (
	"fmt"
	"strings"

	"vowpact/internal/contract"
	"vowpact/internal/richtext"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Palette for CLI output.
var (
	ColorInk     = lipgloss.Color("#101F38")
	ColorAccent  = lipgloss.Color("#8BC34A")
	ColorMuted   = lipgloss.Color("#8a94a6")
	ColorWarning = lipgloss.Color("#FFC107")
	ColorDanger  = lipgloss.Color("#e53935")

	badgeBase = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("#ffffff"))

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
)

// StatusBadge renders a colored status label.
func StatusBadge(s contract.Status) string {
	style := badgeBase
	switch s {
	case contract.StatusDraft:
		style = style.Background(ColorWarning).Foreground(ColorInk)
	case contract.StatusSigned:
		style = style.Background(ColorAccent).Foreground(ColorInk)
	case contract.StatusDeleted:
		style = style.Background(ColorDanger)
	default:
		style = style.Background(ColorMuted)
	}
	return style.Render(strings.ToUpper(string(s)))
}

// Markdown renders a contract summary plus body as markdown.
func Markdown(c *contract.Contract) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	fmt.Fprintf(&b, "**Status:** %s  \n", c.Status)
	fmt.Fprintf(&b, "**Vendor:** %s (%s)  \n", orDash(c.Vendor.Name), c.VendorType.Label())
	fmt.Fprintf(&b, "**Client:** %s", orDash(c.Client.Name))
	if c.Client.Email != "" {
		fmt.Fprintf(&b, " <%s>", c.Client.Email)
	}
	b.WriteString("  \n")
	if c.Event.Date != "" || c.Event.Venue != "" {
		fmt.Fprintf(&b, "**Event:** %s %s  \n", c.Event.Date, c.Event.Venue)
	}
	fmt.Fprintf(&b, "**Version:** %d, updated %s\n\n", c.Version, c.UpdatedAt.UTC().Format("2006-01-02 15:04"))

	if len(c.Items) > 0 {
		b.WriteString("| Service | Qty | Amount |\n|---|---:|---:|\n")
		for _, li := range c.Items {
			fmt.Fprintf(&b, "| %s | %d | %s |\n", escapeCell(li.Description), li.Quantity, contract.FormatMoney(li.AmountCents(), c.Currency))
		}
		fmt.Fprintf(&b, "| **Total** | | **%s** |\n", contract.FormatMoney(c.TotalCents(), c.Currency))
		if c.DepositCents > 0 {
			fmt.Fprintf(&b, "| Deposit | | %s |\n", contract.FormatMoney(c.DepositCents, c.Currency))
		}
		b.WriteString("\n")
	}

	if body := richtext.PlainText(c.Body); body != "" {
		b.WriteString("---\n\n")
		b.WriteString(body)
		b.WriteString("\n\n")
	}

	if c.Signature != nil {
		fmt.Fprintf(&b, "---\n\nSigned by **%s** on %s  \nContent hash `%s`\n",
			c.Signature.SignerName, c.Signature.SignedAt.UTC().Format("2006-01-02 15:04 MST"), c.Signature.ContentHash)
	}
	return b.String()
}

// Terminal renders c for a terminal of the given width.
func Terminal(c *contract.Contract, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := r.Render(Markdown(c))
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return StatusBadge(c.Status) + "\n" + out, nil
}

// Table renders contracts as an aligned list for the CLI.
func Table(list []*contract.Contract) string {
	if len(list) == 0 {
		return mutedStyle.Render("no contracts")
	}
	cols := []struct {
		title string
		width int
		cell  func(c *contract.Contract) string
	}{
		{"ID", 10, func(c *contract.Contract) string { return shortID(c.ID) }},
		{"STATUS", 9, func(c *contract.Contract) string { return string(c.Status) }},
		{"TITLE", 36, func(c *contract.Contract) string { return c.Title }},
		{"CLIENT", 20, func(c *contract.Contract) string { return c.Client.Name }},
		{"EVENT", 10, func(c *contract.Contract) string { return c.Event.Date }},
		{"TOTAL", 16, func(c *contract.Contract) string { return contract.FormatMoney(c.TotalCents(), c.Currency) }},
	}

	var b strings.Builder
	for i, col := range cols {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(headerStyle.Width(col.width).Render(col.title))
	}
	b.WriteString("\n")
	for _, c := range list {
		for i, col := range cols {
			if i > 0 {
				b.WriteString(" ")
			}
			cell := truncate(col.cell(c), col.width)
			style := lipgloss.NewStyle().Width(col.width)
			if col.title == "STATUS" {
				style = style.Foreground(statusColor(c.Status))
			}
			b.WriteString(style.Render(cell))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusColor(s contract.Status) lipgloss.Color {
	switch s {
	case contract.StatusSigned:
		return ColorAccent
	case contract.StatusDeleted:
		return ColorDanger
	default:
		return ColorWarning
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
