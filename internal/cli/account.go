package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clubejota/clube/internal/domain"
)

// ─── Accounts ───────────────────────────────────────────────────────────────
// Profiles live in the account directory; the ledger only ever reads them.

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountAddCmd)

	accountAddCmd.Flags().String("id", "", "Account ID (default: a new UUID)")
	accountAddCmd.Flags().String("email", "", "E-mail used to match payment exports")
	accountAddCmd.Flags().String("name", "", "Full name")
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage account profiles",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or update an account profile",
	Args:  cobra.NoArgs,
	RunE:  runAccountAdd,
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	if strings.TrimSpace(email) == "" {
		return errors.New("--email is required")
	}
	if id == "" {
		id = uuid.NewString()
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p := domain.Profile{AccountID: id, Email: email, FullName: name}
	if err := a.db.UpsertProfile(cmd.Context(), p); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✅ Account %s saved (%s)\n", id, strings.ToLower(strings.TrimSpace(email)))
	return nil
}
