// Package importer reconciles a payment export against member accounts in
// two phases. Preview resolves rows and computes credits without writing
// anything. Commit applies a previewed batch, one ledger credit per item,
// and reports exactly what happened.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clubejota/clube/internal/app/cashback"
	"github.com/clubejota/clube/internal/app/executor"
	"github.com/clubejota/clube/internal/app/ledger"
	"github.com/clubejota/clube/internal/domain"
	"github.com/clubejota/clube/internal/infra/observability"
)

// Ledger is the part of the account ledger the importer drives.
type Ledger interface {
	Peek(ctx context.Context, accountID string) (domain.MemberAccount, error)
	Credit(ctx context.Context, accountID string, base decimal.Decimal, description string,
		source domain.Source, actor string, rate decimal.Decimal) (ledger.CreditResult, error)
}

// Config controls row filtering.
type Config struct {
	// ApprovedStatuses are lower-case substrings; a row with a non-empty
	// status is imported only when it contains one of them.
	ApprovedStatuses []string
}

// DefaultConfig returns the statuses PagBank and common gateways use for
// settled payments.
func DefaultConfig() Config {
	return Config{ApprovedStatuses: []string{"aprovad", "approved", "settled"}}
}

// Deps are the importer's collaborators. Tracer and Logger are optional.
type Deps struct {
	Ledger    Ledger
	Directory domain.AccountDirectory
	Gate      domain.AuthorizationGate
	Executor  *executor.Executor
	Tracer    *observability.Tracer
	Logger    *slog.Logger
}

// Importer is the ReconciliationImporter.
type Importer struct {
	cfg    Config
	ledger Ledger
	dir    domain.AccountDirectory
	gate   domain.AuthorizationGate
	exec   *executor.Executor
	tracer *observability.Tracer
	log    *slog.Logger
	now    func() time.Time
}

// New builds an importer.
func New(cfg Config, deps Deps) (*Importer, error) {
	if deps.Ledger == nil || deps.Directory == nil || deps.Gate == nil {
		return nil, errors.New("importer: ledger, directory and gate are required")
	}
	statuses := cfg.ApprovedStatuses
	if len(statuses) == 0 {
		statuses = DefaultConfig().ApprovedStatuses
	}
	cfg.ApprovedStatuses = make([]string, 0, len(statuses))
	for _, s := range statuses {
		cfg.ApprovedStatuses = append(cfg.ApprovedStatuses, strings.ToLower(strings.TrimSpace(s)))
	}
	if deps.Executor == nil {
		deps.Executor = executor.New(executor.DefaultConfig(), deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Importer{
		cfg:    cfg,
		ledger: deps.Ledger,
		dir:    deps.Directory,
		gate:   deps.Gate,
		exec:   deps.Executor,
		tracer: deps.Tracer,
		log:    deps.Logger.With("component", "importer"),
		now:    time.Now,
	}, nil
}

// ─── Batch ──────────────────────────────────────────────────────────────────

// Item is one resolved row ready to be credited.
type Item struct {
	Row            int             `json:"row"`
	Email          string          `json:"email"`
	AccountID      string          `json:"account_id"`
	FullName       string          `json:"full_name"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	CashbackAmount decimal.Decimal `json:"cashback_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// Batch is the outcome of Preview. It is never persisted.
type Batch struct {
	ID            string          `json:"id"`
	Items         []Item          `json:"items"`
	Unresolved    []string        `json:"unresolved_emails"`
	Skipped       int             `json:"skipped"`
	Rate          decimal.Decimal `json:"cashback_rate"`
	TotalBase     decimal.Decimal `json:"total_base"`
	TotalCashback decimal.Decimal `json:"total_cashback"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Result is the authoritative report of a commit. Field names follow the
// admin client's contract.
type Result struct {
	Processed        int               `json:"processed"`
	Succeeded        int               `json:"succeeded"`
	Failed           int               `json:"failed"`
	TotalCredited    decimal.Decimal   `json:"totalCredited"`
	UnresolvedEmails []string          `json:"unresolvedEmails"`
	NotAttempted     int               `json:"notAttempted,omitempty"`
	Errors           []domain.RowError `json:"errors,omitempty"`
}

// Err returns a *domain.PartialImportError when any row failed.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &domain.PartialImportError{Rows: r.Errors}
}

// ─── Preview ────────────────────────────────────────────────────────────────

// PreviewExport authorizes actor, then parses r and previews it.
func (im *Importer) PreviewExport(ctx context.Context, actor string, r io.Reader, rate decimal.Decimal) (*Batch, error) {
	if err := im.authorize(ctx, actor); err != nil {
		return nil, err
	}
	rows, err := ParseExport(r)
	if err != nil {
		return nil, err
	}
	return im.preview(ctx, actor, rows, rate)
}

// Preview resolves rows to active members and computes their credits. It
// performs no writes, so calling it twice on the same input yields the same
// batch content.
func (im *Importer) Preview(ctx context.Context, actor string, rows []Row, rate decimal.Decimal) (*Batch, error) {
	if err := im.authorize(ctx, actor); err != nil {
		return nil, err
	}
	return im.preview(ctx, actor, rows, rate)
}

func (im *Importer) preview(ctx context.Context, actor string, rows []Row, rate decimal.Decimal) (*Batch, error) {
	if err := cashback.ValidateRate(rate); err != nil {
		return nil, err
	}

	b := &Batch{
		ID:            uuid.NewString(),
		Items:         []Item{},
		Unresolved:    []string{},
		Rate:          rate,
		TotalBase:     decimal.Zero,
		TotalCashback: decimal.Zero,
		TotalAmount:   decimal.Zero,
		CreatedBy:     actor,
		CreatedAt:     im.now().UTC(),
	}
	resolved := make(map[string]*domain.Profile)
	unresolved := make(map[string]bool)

	for _, row := range rows {
		if !im.approved(row.Status) {
			b.Skipped++
			continue
		}
		base, err := domain.ParseAmount(row.NetAmount)
		if err != nil || domain.ValidateAmount(base) != nil || row.Email == "" {
			b.Skipped++
			continue
		}

		email := strings.ToLower(strings.TrimSpace(row.Email))
		p, seen := resolved[email]
		if !seen && !unresolved[email] {
			p, err = im.resolve(ctx, email)
			if err != nil {
				return nil, err
			}
			resolved[email] = p
		}
		if p == nil {
			if !unresolved[email] {
				unresolved[email] = true
				b.Unresolved = append(b.Unresolved, email)
			}
			continue
		}

		bonus, total, err := cashback.SplitAt(base, rate)
		if err != nil {
			b.Skipped++
			continue
		}
		b.Items = append(b.Items, Item{
			Row:            row.Line,
			Email:          email,
			AccountID:      p.AccountID,
			FullName:       p.FullName,
			BaseAmount:     base,
			CashbackAmount: bonus,
			TotalAmount:    total,
		})
		b.TotalBase = b.TotalBase.Add(base)
		b.TotalCashback = b.TotalCashback.Add(bonus)
		b.TotalAmount = b.TotalAmount.Add(total)
	}

	observability.ImportRows.WithLabelValues("preview", "resolved").Add(float64(len(b.Items)))
	observability.ImportRows.WithLabelValues("preview", "unresolved").Add(float64(len(b.Unresolved)))
	observability.ImportRows.WithLabelValues("preview", "skipped").Add(float64(b.Skipped))
	im.log.Info("import previewed", "batch", b.ID, "actor", actor, "rows", len(rows),
		"items", len(b.Items), "unresolved", len(b.Unresolved), "skipped", b.Skipped,
		"total", b.TotalAmount.StringFixedBank(2))
	return b, nil
}

func (im *Importer) approved(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return true
	}
	for _, ok := range im.cfg.ApprovedStatuses {
		if strings.Contains(s, ok) {
			return true
		}
	}
	return false
}

// resolve returns the first active member registered under email, or nil.
// Lookup failures other than "not found" are infrastructure errors.
func (im *Importer) resolve(ctx context.Context, email string) (*domain.Profile, error) {
	profiles, err := im.dir.ResolveByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", domain.ErrStoreUnavailable, email, err)
	}
	for _, p := range profiles {
		acct, err := im.ledger.Peek(ctx, p.AccountID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if acct.IsMember {
			return &p, nil
		}
	}
	return nil, nil
}

// ─── Commit ─────────────────────────────────────────────────────────────────

// Commit credits every item of b. Rejected items (for example a member
// deactivated since the preview) are counted as failed and the rest go on.
// An infrastructure failure stops items that have not started and is
// returned together with the partial result. Committed credits are never
// rolled back.
func (im *Importer) Commit(ctx context.Context, b *Batch, actor string) (*Result, error) {
	if err := im.authorize(ctx, actor); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := im.tracer.StartSpan(ctx, "import.commit", map[string]string{
		"batch": b.ID, "items": strconv.Itoa(len(b.Items)),
	})

	description := "Importação PagBank - " + im.now().Format("02/01/2006")
	credited := make([]decimal.Decimal, len(b.Items))
	jobs := make([]executor.Job, len(b.Items))
	for i, item := range b.Items {
		jobs[i] = executor.Job{
			Key: item.AccountID,
			Run: func(ctx context.Context) error {
				res, err := im.ledger.Credit(ctx, item.AccountID, item.BaseAmount, description,
					domain.SourceImport, actor, b.Rate)
				if err == nil {
					credited[i] = res.Transaction.Amount
				}
				return err
			},
		}
	}
	results := im.exec.Run(ctx, jobs, func(err error) bool { return !domain.IsRejection(err) })

	res := &Result{
		TotalCredited:    decimal.Zero,
		UnresolvedEmails: append([]string{}, b.Unresolved...),
	}
	var fatal error
	for i, r := range results {
		item := b.Items[i]
		switch {
		case !r.Started():
			res.NotAttempted++
		case r.Err == nil:
			res.Processed++
			res.Succeeded++
			res.TotalCredited = res.TotalCredited.Add(credited[i])
		default:
			res.Processed++
			res.Failed++
			res.Errors = append(res.Errors, domain.RowError{
				Row: item.Row, Email: item.Email, AccountID: item.AccountID, Reason: r.Err.Error(),
			})
			if fatal == nil && !domain.IsRejection(r.Err) {
				fatal = r.Err
			}
		}
	}
	if fatal == nil && res.NotAttempted > 0 {
		fatal = ctx.Err()
	}

	outcome := "complete"
	switch {
	case fatal != nil:
		outcome = "fatal"
	case res.Failed > 0:
		outcome = "partial"
	}
	observability.ImportCommits.WithLabelValues(outcome).Inc()
	observability.ImportCommitDuration.Observe(time.Since(start).Seconds())
	observability.ImportRows.WithLabelValues("commit", "succeeded").Add(float64(res.Succeeded))
	observability.ImportRows.WithLabelValues("commit", "failed").Add(float64(res.Failed))
	im.tracer.EndSpan(span, fatal)

	im.log.Info("import committed", "batch", b.ID, "actor", actor, "outcome", outcome,
		"processed", res.Processed, "succeeded", res.Succeeded, "failed", res.Failed,
		"not_attempted", res.NotAttempted, "credited", res.TotalCredited.StringFixedBank(2))

	if fatal != nil {
		return res, fmt.Errorf("import aborted after %d of %d items: %w", res.Processed, len(b.Items), fatal)
	}
	return res, nil
}

func (im *Importer) authorize(ctx context.Context, actor string) error {
	ok, err := im.gate.CanAdminister(ctx, actor)
	if err != nil {
		return fmt.Errorf("authorization check: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrNotAuthorized, actor)
	}
	return nil
}
