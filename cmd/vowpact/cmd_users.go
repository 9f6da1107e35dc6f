package main

import (
	"fmt"
	"strings"

	"vowpact/internal/auth"
	"vowpact/internal/contract"
	"vowpact/internal/logging"
	"vowpact/internal/render"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	userEmail      string
	userName       string
	userBusiness   string
	userVendorType string
	userPassword   string
	userPhone      string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage vendor accounts",
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a vendor account",
	Long: `Creates a vendor account that can log in to the web app.

Example:
  vowpact users add --email jo@petals.test --name "Jo" --business "Petal & Stem" \
    --vendor-type florist --password secret`,
	Args: cobra.NoArgs,
	RunE: runUsersAdd,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vendor accounts",
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

func init() {
	usersAddCmd.Flags().StringVar(&userEmail, "email", "", "Login email (required)")
	usersAddCmd.Flags().StringVar(&userName, "name", "", "Contact name (required)")
	usersAddCmd.Flags().StringVar(&userBusiness, "business", "", "Business name shown on contracts")
	usersAddCmd.Flags().StringVar(&userVendorType, "vendor-type", string(contract.VendorOther),
		"Vendor type ("+vendorTypeList()+")")
	usersAddCmd.Flags().StringVar(&userPassword, "password", "", "Password (required)")
	usersAddCmd.Flags().StringVar(&userPhone, "phone", "", "Phone number")
	usersAddCmd.MarkFlagRequired("email")
	usersAddCmd.MarkFlagRequired("name")
	usersAddCmd.MarkFlagRequired("password")

	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)
}

func vendorTypeList() string {
	names := make([]string, len(contract.VendorTypes))
	for i, v := range contract.VendorTypes {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	vt := contract.VendorType(strings.ToLower(strings.TrimSpace(userVendorType)))
	if !vt.Valid() {
		return fmt.Errorf("unknown vendor type %q (valid: %s)", userVendorType, vendorTypeList())
	}
	u, err := a.auth.Register(ctx, auth.Registration{
		Email:        userEmail,
		Password:     userPassword,
		Name:         userName,
		BusinessName: userBusiness,
		VendorType:   vt,
		Phone:        userPhone,
	})
	if err != nil {
		return err
	}
	logger.Info("created vendor", zap.String("id", u.ID), zap.String("email", u.Email))
	logging.CLI("created vendor %s (%s)", u.Email, u.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", u.Email, u.ID)
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(users) == 0 {
		fmt.Fprintln(out, "no vendor accounts")
		return nil
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(render.ColorAccent)
	cell := func(w int) lipgloss.Style { return lipgloss.NewStyle().Width(w) }
	fmt.Fprintln(out, lipgloss.JoinHorizontal(lipgloss.Top,
		header.Width(32).Render("EMAIL"),
		header.Width(24).Render("BUSINESS"),
		header.Width(14).Render("TYPE"),
		header.Render("CREATED"),
	))
	for _, u := range users {
		fmt.Fprintln(out, lipgloss.JoinHorizontal(lipgloss.Top,
			cell(32).Render(u.Email),
			cell(24).Render(orDash(u.BusinessName)),
			cell(14).Render(string(u.VendorType)),
			u.CreatedAt.Format("2006-01-02"),
		))
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
