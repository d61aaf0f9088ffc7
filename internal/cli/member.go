package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/clubejota/clube/internal/domain"
)

func init() {
	rootCmd.AddCommand(memberCmd)
	memberCmd.AddCommand(memberActivateCmd)
	memberCmd.AddCommand(memberDeactivateCmd)
	memberCmd.AddCommand(memberSummaryCmd)
	memberCmd.AddCommand(memberHistoryCmd)
	memberCmd.AddCommand(memberCreditCmd)
	memberCmd.AddCommand(memberDebitCmd)
	memberCmd.AddCommand(memberListCmd)
	memberCmd.AddCommand(memberFindCmd)

	memberHistoryCmd.Flags().IntP("limit", "n", 0, "Maximum transactions to show (default 20)")
	memberCreditCmd.Flags().StringP("description", "d", "", "Transaction description")
	memberCreditCmd.Flags().String("rate", "", "Cashback rate (default [policy].cashback_rate)")
	memberDebitCmd.Flags().StringP("description", "d", "", "Transaction description")
	memberDebitCmd.Flags().Bool("qualifying", false, "Count the debit toward the member's tier")
}

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Operate on member accounts",
}

// ─── member activate / deactivate ───────────────────────────────────────────

var memberActivateCmd = &cobra.Command{
	Use:   "activate ACCOUNT_ID",
	Short: "Start an account's membership",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		acct, err := a.ledger.Activate(cmd.Context(), args[0], actor())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✅ %s is now a member (%s, balance %s)\n",
			acct.AccountID, acct.Tier, domain.FormatBRL(acct.Balance))
		return nil
	},
}

var memberDeactivateCmd = &cobra.Command{
	Use:   "deactivate ACCOUNT_ID",
	Short: "End an account's membership and forfeit its balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		acct, err := a.ledger.Deactivate(cmd.Context(), args[0], actor())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✅ %s is no longer a member (balance %s)\n",
			acct.AccountID, domain.FormatBRL(acct.Balance))
		return nil
	},
}

// ─── member summary / history / list ────────────────────────────────────────

var memberSummaryCmd = &cobra.Command{
	Use:   "summary ACCOUNT_ID",
	Short: "Show balance, totals and tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		acct, err := a.ledger.GetSummary(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Account:\t%s\n", acct.AccountID)
		if acct.FullName != "" {
			fmt.Fprintf(w, "Name:\t%s\n", acct.FullName)
		}
		fmt.Fprintf(w, "Member:\t%t\n", acct.IsMember)
		fmt.Fprintf(w, "Tier:\t%s (%d qualifying)\n", acct.Tier, acct.QualifyingActivityCount)
		if next, at, ok := a.ledger.Tiers().Next(acct.Tier); ok && acct.IsMember {
			fmt.Fprintf(w, "Next tier:\t%s in %d\n", next, at-acct.QualifyingActivityCount)
		}
		fmt.Fprintf(w, "Balance:\t%s\n", domain.FormatBRL(acct.Balance))
		fmt.Fprintf(w, "Credits:\t%s\n", domain.FormatBRL(acct.TotalCredits))
		fmt.Fprintf(w, "Debits:\t%s\n", domain.FormatBRL(acct.TotalDebits))
		if acct.MemberSince != nil {
			fmt.Fprintf(w, "Since:\t%s\n", acct.MemberSince.Local().Format("02/01/2006"))
		}
		return w.Flush()
	},
}

var memberHistoryCmd = &cobra.Command{
	Use:   "history ACCOUNT_ID",
	Short: "List transactions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tKIND\tAMOUNT\tCASHBACK\tSOURCE\tDESCRIPTION")
		n := 0
		for tx, err := range a.ledger.ListTransactions(cmd.Context(), args[0], limit) {
			if err != nil {
				return err
			}
			amount := domain.FormatBRL(tx.Amount)
			if tx.Kind == domain.KindDebit {
				amount = "-" + amount
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				tx.CreatedAt.Local().Format("02/01/2006 15:04"), tx.Kind, amount,
				domain.FormatBRL(tx.CashbackAmount), tx.Source, tx.Description)
			n++
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(os.Stdout, "No transactions.")
		}
		return nil
	},
}

var memberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active members",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		members, err := a.ledger.ListMembers(cmd.Context())
		if err != nil {
			return err
		}
		if len(members) == 0 {
			fmt.Fprintln(os.Stdout, "No members yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tNAME\tTIER\tBALANCE")
		for _, m := range members {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.AccountID, m.FullName, m.Tier, domain.FormatBRL(m.Balance))
		}
		return w.Flush()
	},
}

var memberFindCmd = &cobra.Command{
	Use:   "find EMAIL",
	Short: "Look up the accounts registered under an e-mail",
	Long: `Look up the accounts registered under an e-mail and show whether each
is already a member. Use the account ID with "member activate".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.ledger.FindByEmail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tNAME\tE-MAIL\tMEMBER\tTIER\tBALANCE")
		for _, acct := range accounts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", acct.AccountID, acct.FullName, acct.Email,
				acct.IsMember, acct.Tier, domain.FormatBRL(acct.Balance))
		}
		return w.Flush()
	},
}

// ─── member credit / debit ──────────────────────────────────────────────────

var memberCreditCmd = &cobra.Command{
	Use:   "credit ACCOUNT_ID AMOUNT",
	Short: "Credit an amount plus cashback",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmountArg(args[1])
		if err != nil {
			return err
		}
		desc, _ := cmd.Flags().GetString("description")
		rateFlag, _ := cmd.Flags().GetString("rate")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rate := a.ledger.CashbackRate()
		if rateFlag != "" {
			if rate, err = decimal.NewFromString(rateFlag); err != nil {
				return fmt.Errorf("invalid --rate %q: %w", rateFlag, err)
			}
		}
		res, err := a.ledger.Credit(cmd.Context(), args[0], amount, desc, domain.SourceManual, actor(), rate)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✅ Credited %s (+%s cashback). Balance: %s\n",
			domain.FormatBRL(res.Transaction.BaseAmount), domain.FormatBRL(res.Transaction.CashbackAmount),
			domain.FormatBRL(res.Balance))
		return nil
	},
}

var memberDebitCmd = &cobra.Command{
	Use:   "debit ACCOUNT_ID AMOUNT",
	Short: "Debit an amount from the balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmountArg(args[1])
		if err != nil {
			return err
		}
		desc, _ := cmd.Flags().GetString("description")
		qualifying, _ := cmd.Flags().GetBool("qualifying")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.ledger.Debit(cmd.Context(), args[0], amount, desc, qualifying, actor())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✅ Debited %s. Balance: %s\n", domain.FormatBRL(amount), domain.FormatBRL(res.Balance))
		if res.Promotion != nil {
			fmt.Fprintf(os.Stdout, "🎉 %s promoted from %s to %s\n", res.Promotion.AccountID, res.Promotion.From, res.Promotion.To)
		} else if res.TierChanged {
			fmt.Fprintf(os.Stdout, "   Tier is now %s\n", res.Tier)
		}
		return nil
	},
}

// parseAmountArg accepts "100.50" as well as Brazilian "R$ 1.234,56".
func parseAmountArg(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, ",R$") {
		return domain.ParseAmount(s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidAmount, s)
	}
	return d, nil
}
