package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/clubejota/clube/internal/domain"
)

// ─── Import ─────────────────────────────────────────────────────────────────
// Without --commit the export is only previewed: nothing is written.

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().Bool("commit", false, "Apply the credits after previewing")
	importCmd.Flags().String("rate", "", "Cashback rate (default [policy].cashback_rate)")
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Reconcile a PagBank payment export against member accounts",
	Long: `Parse a PagBank CSV export, match each approved payment to an active
member by e-mail and preview the credits. With --commit the credits are
applied and a result report is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	commit, _ := cmd.Flags().GetBool("commit")
	rateFlag, _ := cmd.Flags().GetString("rate")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

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

	b, err := a.importer.PreviewExport(cmd.Context(), actor(), f, rate)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tE-MAIL\tNAME\tBASE\tCASHBACK\tTOTAL")
	for _, it := range b.Items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", it.Row, it.Email, it.FullName,
			domain.FormatBRL(it.BaseAmount), domain.FormatBRL(it.CashbackAmount), domain.FormatBRL(it.TotalAmount))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d item(s), total %s (cashback %s at %s), %d row(s) skipped\n",
		len(b.Items), domain.FormatBRL(b.TotalAmount), domain.FormatBRL(b.TotalCashback),
		b.Rate.String(), b.Skipped)
	for _, email := range b.Unresolved {
		fmt.Fprintf(os.Stdout, "⚠️  No active member for %s\n", email)
	}

	if !commit {
		fmt.Fprintln(os.Stdout, "\nPreview only. Re-run with --commit to apply.")
		return nil
	}

	res, err := a.importer.Commit(cmd.Context(), b, actor())
	if res != nil {
		fmt.Fprintf(os.Stdout, "\nProcessed %d, succeeded %d, failed %d, credited %s\n",
			res.Processed, res.Succeeded, res.Failed, domain.FormatBRL(res.TotalCredited))
		if res.NotAttempted > 0 {
			fmt.Fprintf(os.Stdout, "⚠️  %d item(s) not attempted\n", res.NotAttempted)
		}
		for _, re := range res.Errors {
			fmt.Fprintf(os.Stdout, "❌ row %d %s: %s\n", re.Row, re.Email, re.Reason)
		}
	}
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return res.Err()
	}
	return nil
}
