// Package reconcile finds and applies the invoice or bank line each imported
// bank transaction settles.
package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// maxSearchVariants bounds the party searches issued per transaction.
const maxSearchVariants = 3

const defaultPaymentMode = 2

// Orchestrator runs the match tiers against the ERP and records results.
type Orchestrator struct {
	erp      ERP
	storage  storage.Repository
	matcher  *matcher.Matcher
	settings Settings
	logger   *slog.Logger
}

// NewOrchestrator creates a new orchestrator. repo may be nil for lookups
// that never touch stored transactions.
func NewOrchestrator(erp ERP, repo storage.Repository, m *matcher.Matcher, settings Settings, logger *slog.Logger) *Orchestrator {
	if m == nil {
		m = matcher.NewMatcher(matcher.DefaultConfig())
	}
	if settings.PaymentModeID == 0 {
		settings.PaymentModeID = defaultPaymentMode
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		erp:      erp,
		storage:  repo,
		matcher:  m,
		settings: settings,
		logger:   logger,
	}
}

// NewFromConfig wires an orchestrator from the application config.
func NewFromConfig(cfg *config.Config, erp ERP, repo storage.Repository, logger *slog.Logger) (*Orchestrator, error) {
	mc, err := MatcherConfig(cfg.Matching)
	if err != nil {
		return nil, err
	}
	settings := Settings{
		BankAccountID: cfg.Dolibarr.BankAccountID,
		PaymentModeID: cfg.Dolibarr.PaymentModeID,
	}
	return NewOrchestrator(erp, repo, matcher.NewMatcher(mc), settings, logger), nil
}

// MatcherConfig maps the matching section onto scoring defaults. Zero values
// keep the default.
func MatcherConfig(mc config.MatchingConfig) (matcher.Config, error) {
	cfg := matcher.DefaultConfig()

	if mc.AmountTolerance != "" {
		tol, err := decimal.NewFromString(mc.AmountTolerance)
		if err != nil {
			return cfg, fmt.Errorf("invalid amount_tolerance %q: %w", mc.AmountTolerance, err)
		}
		if tol.IsNegative() {
			return cfg, fmt.Errorf("amount_tolerance must not be negative: %s", mc.AmountTolerance)
		}
		cfg.AmountTolerance = tol
	}
	if mc.DateToleranceDays > 0 {
		cfg.DateToleranceDays = mc.DateToleranceDays
	}
	if mc.ConfidentNameSimilarity > 0 {
		cfg.ConfidentNameSimilarity = mc.ConfidentNameSimilarity
	}
	if mc.WeakNameSimilarity > 0 {
		cfg.WeakNameSimilarity = mc.WeakNameSimilarity
	}
	if mc.InvoiceMinScore > 0 {
		cfg.InvoiceMinScore = mc.InvoiceMinScore
	}
	if mc.BestMatchMinScore > 0 {
		cfg.BestMatchMinScore = mc.BestMatchMinScore
	}
	return cfg, nil
}

// Matcher returns the scoring engine in use
func (o *Orchestrator) Matcher() *matcher.Matcher {
	return o.matcher
}

// ToTransaction converts a stored transaction for scoring.
func ToTransaction(t *storage.ImportedTransaction) matcher.Transaction {
	return matcher.Transaction{
		ID:     t.ID,
		Date:   t.Date,
		Amount: t.Amount,
		Label:  t.Label,
	}
}
