// Package ledger implements the member account ledger: activation,
// credits with cashback, debits with tier progression, summaries and the
// transaction history.
//
// Every mutation on an account runs under that account's in-process lock and
// inside one store transaction, so the summary update and the appended
// Transaction become visible together. Mutations on different accounts
// never share a lock.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clubejota/clube/internal/app/cashback"
	"github.com/clubejota/clube/internal/app/tier"
	"github.com/clubejota/clube/internal/domain"
	"github.com/clubejota/clube/internal/infra/observability"
)

// DefaultHistoryLimit bounds ListTransactions when the caller passes no limit.
const DefaultHistoryLimit = 20

const dateLayout = "02/01/2006"

// Config is the ledger policy.
type Config struct {
	// ResetOnReactivate zeroes balance, totals, activity count and tier when
	// a former member is activated again. When false those are resumed.
	ResetOnReactivate bool
	HistoryPageSize   int
}

// DefaultConfig returns the club's standard policy.
func DefaultConfig() Config {
	return Config{
		ResetOnReactivate: true,
		HistoryPageSize:   50,
	}
}

// Observer is told the current tier of an account after every read or
// write that may have changed it.
type Observer interface {
	Observe(ctx context.Context, accountID string, current domain.Tier) (*domain.PromotionEvent, error)
}

// Deps are the ledger's collaborators. Cashback, Tiers, Observer and Logger
// are optional; Cashback defaults to cashback.DefaultRate.
type Deps struct {
	Store     domain.LedgerStore
	Directory domain.AccountDirectory
	Gate      domain.AuthorizationGate
	Cashback  *cashback.Calculator
	Tiers     *tier.Engine
	Observer  Observer
	Logger    *slog.Logger
}

// Ledger is the AccountLedger.
type Ledger struct {
	cfg      Config
	store    domain.LedgerStore
	dir      domain.AccountDirectory
	gate     domain.AuthorizationGate
	cashback cashback.Calculator
	tiers    *tier.Engine
	observer Observer
	log      *slog.Logger
	locks    *keyedMutex

	now   func() time.Time
	newID func() string
}

// New validates the policy and builds a ledger.
func New(cfg Config, deps Deps) (*Ledger, error) {
	if deps.Store == nil || deps.Directory == nil || deps.Gate == nil {
		return nil, errors.New("ledger: store, directory and gate are required")
	}
	calc := deps.Cashback
	if calc == nil {
		c, err := cashback.New(cashback.DefaultRate)
		if err != nil {
			return nil, err
		}
		calc = &c
	}
	if deps.Tiers == nil {
		deps.Tiers = tier.MustDefault()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = DefaultConfig().HistoryPageSize
	}
	return &Ledger{
		cfg:      cfg,
		store:    deps.Store,
		dir:      deps.Directory,
		gate:     deps.Gate,
		cashback: *calc,
		tiers:    deps.Tiers,
		observer: deps.Observer,
		log:      deps.Logger.With("component", "ledger"),
		locks:    newKeyedMutex(),
		now:      time.Now,
		newID:    newTransactionID,
	}, nil
}

// newTransactionID returns a UUIDv7, which sorts by creation time.
func newTransactionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// CashbackRate returns the configured default rate.
func (l *Ledger) CashbackRate() decimal.Decimal { return l.cashback.Rate() }

// Tiers returns the tier policy in use.
func (l *Ledger) Tiers() *tier.Engine { return l.tiers }

// ─── Results ────────────────────────────────────────────────────────────────

// CreditResult is returned by Credit.
type CreditResult struct {
	Balance     decimal.Decimal    `json:"balance"`
	Transaction domain.Transaction `json:"transaction"`
}

// DebitResult is returned by Debit.
type DebitResult struct {
	Balance     decimal.Decimal        `json:"balance"`
	Tier        domain.Tier            `json:"tier"`
	TierChanged bool                   `json:"tier_changed"`
	Transaction domain.Transaction     `json:"transaction"`
	Promotion   *domain.PromotionEvent `json:"promotion,omitempty"`
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Activate makes the account an active bronze member.
func (l *Ledger) Activate(ctx context.Context, accountID, actor string) (domain.MemberAccount, error) {
	acct, err := l.mutate(ctx, "activate", accountID, actor, func(a *domain.MemberAccount) (*domain.Transaction, error) {
		if a.IsMember {
			return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyMember, a.AccountID)
		}
		now := l.now().UTC()
		a.IsMember = true
		if l.cfg.ResetOnReactivate || a.MemberSince == nil {
			a.Balance = decimal.Zero
			a.TotalCredits = decimal.Zero
			a.TotalDebits = decimal.Zero
			a.QualifyingActivityCount = 0
			a.Tier = l.tiers.Base()
			a.MemberSince = &now
		} else {
			a.Tier = l.tiers.TierFor(a.QualifyingActivityCount)
		}
		a.UpdatedAt = now
		return nil, nil
	})
	if err != nil {
		return domain.MemberAccount{}, err
	}
	l.log.Info("member activated", "account", accountID, "actor", actor, "tier", acct.Tier)
	l.observe(ctx, acct)
	return acct, nil
}

// Deactivate ends the membership. Any remaining balance is forfeited through
// a non-qualifying debit so the balance identity keeps holding; totals and
// history stay for audit.
func (l *Ledger) Deactivate(ctx context.Context, accountID, actor string) (domain.MemberAccount, error) {
	acct, err := l.mutate(ctx, "deactivate", accountID, actor, func(a *domain.MemberAccount) (*domain.Transaction, error) {
		if !a.IsMember {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotMember, a.AccountID)
		}
		now := l.now().UTC()
		a.IsMember = false
		a.UpdatedAt = now
		if !a.Balance.IsPositive() {
			return nil, nil
		}
		forfeit := a.Balance
		a.Balance = decimal.Zero
		a.TotalDebits = a.TotalDebits.Add(forfeit)
		return &domain.Transaction{
			ID:          l.newID(),
			Kind:        domain.KindDebit,
			Amount:      forfeit,
			Description: "Saldo zerado na desativação - " + now.Format(dateLayout),
			Source:      domain.SourceManual,
			CreatedBy:   actor,
			CreatedAt:   now,
		}, nil
	})
	if err != nil {
		return domain.MemberAccount{}, err
	}
	l.log.Info("member deactivated", "account", accountID, "actor", actor)
	return acct, nil
}

// ─── Credits and Debits ─────────────────────────────────────────────────────

// Credit adds base plus its cashback at rate to an active member's balance.
func (l *Ledger) Credit(ctx context.Context, accountID string, base decimal.Decimal, description string,
	source domain.Source, actor string, rate decimal.Decimal) (CreditResult, error) {
	err := domain.ValidateAmount(base)
	if err != nil {
		l.record("credit", err)
		return CreditResult{}, err
	}
	if source == "" {
		source = domain.SourceManual
	}
	if !source.Valid() {
		return CreditResult{}, fmt.Errorf("ledger: unknown transaction source %q", source)
	}
	calc := l.cashback
	if !rate.Equal(calc.Rate()) {
		if calc, err = cashback.New(rate); err != nil {
			l.record("credit", err)
			return CreditResult{}, err
		}
	}
	bonus, amount, err := calc.Split(base)
	if err != nil {
		l.record("credit", err)
		return CreditResult{}, err
	}

	var rec domain.Transaction
	acct, err := l.mutate(ctx, "credit", accountID, actor, func(a *domain.MemberAccount) (*domain.Transaction, error) {
		if !a.IsMember {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotMember, a.AccountID)
		}
		now := l.now().UTC()
		a.Balance = a.Balance.Add(amount)
		a.TotalCredits = a.TotalCredits.Add(amount)
		a.LastCreditAt = &now
		a.UpdatedAt = now

		desc := description
		if desc == "" {
			desc = "Crédito - " + now.Format(dateLayout)
		}
		rec = domain.Transaction{
			ID:             l.newID(),
			AccountID:      a.AccountID,
			Kind:           domain.KindCredit,
			Amount:         amount,
			BaseAmount:     base,
			CashbackAmount: bonus,
			Description:    desc,
			Source:         source,
			CreatedBy:      actor,
			CreatedAt:      now,
		}
		return &rec, nil
	})
	if err != nil {
		return CreditResult{}, err
	}
	observability.LedgerAmount.WithLabelValues(string(domain.KindCredit)).Add(amount.InexactFloat64())
	l.log.Info("credit applied", "account", accountID, "actor", actor, "source", source,
		"base", base.StringFixedBank(2), "cashback", bonus.StringFixedBank(2), "balance", acct.Balance.StringFixedBank(2))
	return CreditResult{Balance: acct.Balance, Transaction: rec}, nil
}

// Debit spends amount from an active member's balance. Qualifying debits
// count toward tier progression.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal, description string,
	qualifying bool, actor string) (DebitResult, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		l.record("debit", err)
		return DebitResult{}, err
	}

	var (
		rec     domain.Transaction
		oldTier domain.Tier
	)
	acct, err := l.mutate(ctx, "debit", accountID, actor, func(a *domain.MemberAccount) (*domain.Transaction, error) {
		if !a.IsMember {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotMember, a.AccountID)
		}
		if amount.GreaterThan(a.Balance) {
			return nil, fmt.Errorf("%w: requested %s, available %s", domain.ErrInsufficientBalance,
				domain.FormatBRL(amount), domain.FormatBRL(a.Balance))
		}
		now := l.now().UTC()
		oldTier = a.Tier
		a.Balance = a.Balance.Sub(amount)
		a.TotalDebits = a.TotalDebits.Add(amount)
		if qualifying {
			a.QualifyingActivityCount++
			a.Tier = l.tiers.TierFor(a.QualifyingActivityCount)
		}
		a.UpdatedAt = now

		desc := description
		if desc == "" {
			desc = "Débito - " + now.Format(dateLayout)
		}
		rec = domain.Transaction{
			ID:           l.newID(),
			AccountID:    a.AccountID,
			Kind:         domain.KindDebit,
			Amount:       amount,
			IsQualifying: qualifying,
			Description:  desc,
			Source:       domain.SourceManual,
			CreatedBy:    actor,
			CreatedAt:    now,
		}
		return &rec, nil
	})
	if err != nil {
		return DebitResult{}, err
	}
	observability.LedgerAmount.WithLabelValues(string(domain.KindDebit)).Add(amount.InexactFloat64())

	res := DebitResult{
		Balance:     acct.Balance,
		Tier:        acct.Tier,
		TierChanged: acct.Tier != oldTier,
		Transaction: rec,
	}
	res.Promotion = l.observe(ctx, acct)
	l.log.Info("debit applied", "account", accountID, "actor", actor, "qualifying", qualifying,
		"amount", amount.StringFixedBank(2), "balance", acct.Balance.StringFixedBank(2), "tier", acct.Tier)
	return res, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// GetOrCreateShadowAccount returns the stored summary, seeding a non-member
// zero record the first time an account known to the directory is read.
func (l *Ledger) GetOrCreateShadowAccount(ctx context.Context, accountID string) (domain.MemberAccount, error) {
	acct, err := l.store.GetAccount(ctx, accountID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return domain.MemberAccount{}, storeErr(err)
	}
	if _, err := l.dir.Get(ctx, accountID); err != nil {
		return domain.MemberAccount{}, storeErr(err)
	}
	seed := domain.ShadowAccount(accountID)
	seed.Tier = l.tiers.Base()
	seed.UpdatedAt = l.now().UTC()
	acct, err = l.store.EnsureAccount(ctx, seed)
	if err != nil {
		return domain.MemberAccount{}, storeErr(err)
	}
	return acct, nil
}

// Peek returns the summary without seeding anything. An account known to
// the directory but never read yet comes back as an unsaved shadow record.
func (l *Ledger) Peek(ctx context.Context, accountID string) (domain.MemberAccount, error) {
	acct, err := l.store.GetAccount(ctx, accountID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return domain.MemberAccount{}, storeErr(err)
	}
	p, err := l.dir.Get(ctx, accountID)
	if err != nil {
		return domain.MemberAccount{}, storeErr(err)
	}
	acct = domain.ShadowAccount(accountID)
	acct.Tier = l.tiers.Base()
	acct.Email = p.Email
	acct.FullName = p.FullName
	return acct, nil
}

// GetSummary returns the current snapshot and reports its tier to the
// observer.
func (l *Ledger) GetSummary(ctx context.Context, accountID string) (domain.MemberAccount, error) {
	acct, err := l.GetOrCreateShadowAccount(ctx, accountID)
	if err != nil {
		return domain.MemberAccount{}, err
	}
	l.observe(ctx, acct)
	return acct, nil
}

// ListMembers returns every active member.
func (l *Ledger) ListMembers(ctx context.Context) ([]domain.MemberAccount, error) {
	members, err := l.store.ListMembers(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	observability.ActiveMembers.Set(float64(len(members)))
	return members, nil
}

// FindByEmail returns every account the directory registers under email,
// with its membership state. Nothing is seeded, so looking an e-mail up
// before activating leaves no trace.
func (l *Ledger) FindByEmail(ctx context.Context, email string) ([]domain.MemberAccount, error) {
	profiles, err := l.dir.ResolveByEmail(ctx, email)
	if err != nil {
		return nil, storeErr(err)
	}
	var out []domain.MemberAccount
	for _, p := range profiles {
		acct, err := l.Peek(ctx, p.AccountID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		acct.Email = p.Email
		acct.FullName = p.FullName
		out = append(out, acct)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no account registered under %s", domain.ErrAccountNotFound, email)
	}
	return out, nil
}

// ListTransactions yields up to limit transactions, newest first. Pages are
// fetched lazily and every range starts a fresh query. History written under
// the deprecated owner column is served when the canonical column has none.
func (l *Ledger) ListTransactions(ctx context.Context, accountID string, limit int) iter.Seq2[domain.Transaction, error] {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return func(yield func(domain.Transaction, error) bool) {
		q := domain.TransactionQuery{AccountID: accountID, Owner: domain.OwnerCanonical}
		remaining := limit
		for remaining > 0 {
			q.Limit = min(remaining, l.cfg.HistoryPageSize)
			page, err := l.store.ListTransactions(ctx, q)
			if err != nil {
				yield(domain.Transaction{}, storeErr(err))
				return
			}
			if len(page) == 0 && q.After == nil && q.Owner == domain.OwnerCanonical {
				q.Owner = domain.OwnerLegacy
				page, err = l.store.ListTransactions(ctx, q)
				if err != nil {
					yield(domain.Transaction{}, storeErr(err))
					return
				}
				if len(page) > 0 {
					observability.LegacyOwnerReads.Inc()
					l.log.Warn("history read through legacy owner field",
						"account", accountID, "field", domain.OwnerLegacy.String())
				}
			}
			for _, t := range page {
				if !yield(t, nil) {
					return
				}
			}
			remaining -= len(page)
			if len(page) < q.Limit {
				return
			}
			last := page[len(page)-1]
			q.After = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	}
}

// ─── Internals ──────────────────────────────────────────────────────────────

// mutate authorizes actor, makes sure the summary exists and applies fn
// under the account lock.
func (l *Ledger) mutate(ctx context.Context, op, accountID, actor string, fn domain.MutateFunc) (domain.MemberAccount, error) {
	acct, err := l.mutateLocked(ctx, accountID, actor, fn)
	l.record(op, err)
	if err != nil && domain.IsRejection(err) {
		l.log.Debug("ledger operation rejected", "op", op, "account", accountID, "actor", actor, "error", err)
	}
	return acct, err
}

func (l *Ledger) mutateLocked(ctx context.Context, accountID, actor string, fn domain.MutateFunc) (domain.MemberAccount, error) {
	if err := l.authorize(ctx, actor); err != nil {
		return domain.MemberAccount{}, err
	}
	if _, err := l.GetOrCreateShadowAccount(ctx, accountID); err != nil {
		return domain.MemberAccount{}, err
	}

	unlock := l.locks.Lock(accountID)
	defer unlock()

	acct, err := l.store.Mutate(ctx, accountID, fn)
	if err != nil {
		return domain.MemberAccount{}, storeErr(err)
	}
	return acct, nil
}

func (l *Ledger) authorize(ctx context.Context, actor string) error {
	ok, err := l.gate.CanAdminister(ctx, actor)
	if err != nil {
		return fmt.Errorf("authorization check: %w", storeErr(err))
	}
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrNotAuthorized, actor)
	}
	return nil
}

// observe forwards the tier to the observer. A failure there never undoes
// a committed mutation, so it is only logged.
func (l *Ledger) observe(ctx context.Context, acct domain.MemberAccount) *domain.PromotionEvent {
	if l.observer == nil {
		return nil
	}
	ev, err := l.observer.Observe(ctx, acct.AccountID, acct.Tier)
	if err != nil {
		l.log.Warn("tier observation failed", "account", acct.AccountID, "error", err)
		return nil
	}
	return ev
}

func (l *Ledger) record(op string, err error) {
	observability.LedgerOperations.WithLabelValues(op, Outcome(err)).Inc()
}

// Outcome names the precondition an error violated, for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotMember):
		return "not_member"
	case errors.Is(err, domain.ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

// storeErr keeps domain errors as they are and marks anything else coming
// out of a collaborator as an infrastructure failure.
func storeErr(err error) error {
	if err == nil || domain.IsRejection(err) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
