package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vowpact/internal/contract"
	"vowpact/internal/logging"
	"vowpact/internal/render"
	"vowpact/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	listOwner    string
	listStatus   string
	listAll      bool
	exportOutput string
	exportHTML   bool
	showWidth    int
)

var contractsCmd = &cobra.Command{
	Use:     "contracts",
	Aliases: []string{"c"},
	Short:   "Inspect and export contracts",
}

var contractsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contracts",
	Long: `Lists contracts newest first. Deleted contracts are hidden unless --all
or --status deleted is given.

Example:
  vowpact contracts list --owner demo@vowpact.local --status signed`,
	Args: cobra.NoArgs,
	RunE: runContractsList,
}

var contractsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Render a contract in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractsShow,
}

var contractsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a contract to PDF (or HTML with --html)",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractsExport,
}

func init() {
	contractsListCmd.Flags().StringVar(&listOwner, "owner", "", "Only contracts of this vendor email")
	contractsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (draft, signed, deleted)")
	contractsListCmd.Flags().BoolVar(&listAll, "all", false, "Include deleted contracts")

	contractsShowCmd.Flags().IntVar(&showWidth, "width", 0, "Wrap width (default: terminal width)")

	contractsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: contract-<id>.pdf)")
	contractsExportCmd.Flags().BoolVar(&exportHTML, "html", false, "Write the printable HTML instead of PDF")

	contractsCmd.AddCommand(contractsListCmd)
	contractsCmd.AddCommand(contractsShowCmd)
	contractsCmd.AddCommand(contractsExportCmd)
}

func runContractsList(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	f := store.ContractFilter{IncludeDeleted: listAll}
	if listStatus != "" {
		st, err := contract.ParseStatus(listStatus)
		if err != nil {
			return err
		}
		f.Statuses = []contract.Status{st}
	}
	if listOwner != "" {
		u, err := a.store.GetUserByEmail(ctx, listOwner)
		if err != nil {
			return fmt.Errorf("owner %s: %w", listOwner, err)
		}
		f.OwnerID = u.ID
	}

	list, err := a.store.ListContracts(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.Table(list))
	return nil
}

// ownedContract loads id and its owner so service calls run with the
// owner's permissions.
func ownedContract(ctx context.Context, a *app, id string) (*contract.Contract, *store.User, error) {
	c, err := a.store.GetContract(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("contract %s: %w", id, err)
	}
	owner, err := a.store.GetUser(ctx, c.OwnerID)
	if err != nil {
		return nil, nil, fmt.Errorf("owner of %s: %w", id, err)
	}
	return c, owner, nil
}

func runContractsShow(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.store.GetContract(ctx, args[0])
	if err != nil {
		return fmt.Errorf("contract %s: %w", args[0], err)
	}
	width := showWidth
	if width <= 0 {
		width = terminalWidth()
	}
	out, err := render.Terminal(c, width)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	if c.Status == contract.StatusDraft {
		fmt.Fprintf(cmd.OutOrStdout(), "\nShare link: %s\n", a.contracts.ShareURL(c))
	}
	return nil
}

func runContractsExport(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id := args[0]
	_, owner, err := ownedContract(ctx, a, id)
	if err != nil {
		return err
	}

	var data []byte
	ext := ".pdf"
	if exportHTML {
		doc, _, err := a.contracts.ExportHTML(ctx, owner, id)
		if err != nil {
			return err
		}
		data = []byte(doc)
		ext = ".html"
	} else {
		data, _, err = a.contracts.ExportPDF(ctx, owner, id)
		if err != nil {
			return err
		}
	}

	out := exportOutput
	if out == "" {
		out = "contract-" + shortID(id) + ext
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("exported contract", zap.String("id", id), zap.String("file", out), zap.Int("bytes", len(data)))
	logging.CLI("exported %s to %s (%d bytes)", id, out, len(data))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
	return nil
}

// cmdContext returns the command context, or Background when run outside
// Execute (as in tests).
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		return w
	}
	return 80
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
