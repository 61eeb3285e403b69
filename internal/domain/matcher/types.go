package matcher

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds matcher configuration
type Config struct {
	AmountTolerance   decimal.Decimal // Default: 0.01
	DateToleranceDays int             // Default: 7

	ConfidentNameSimilarity float64 // Default: 70
	WeakNameSimilarity      float64 // Default: 50
	MismatchNameSimilarity  float64 // Below this the invoice belongs to someone else. Default: 30

	InvoiceMinScore       int // Raw score an invoice needs to be kept (>=). Default: 30
	BankLineMinScore      int // Raw score a bank line needs to be kept (>). Default: 30
	BestMatchMinScore     int // Score the overall best must exceed. Default: 50
	MaxInvoiceCandidates  int // Default: 5
	MaxBankLineCandidates int // Default: 3
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AmountTolerance:         decimal.New(1, -2),
		DateToleranceDays:       7,
		ConfidentNameSimilarity: 70,
		WeakNameSimilarity:      50,
		MismatchNameSimilarity:  30,
		InvoiceMinScore:         30,
		BankLineMinScore:        30,
		BestMatchMinScore:       50,
		MaxInvoiceCandidates:    5,
		MaxBankLineCandidates:   3,
	}
}

// InvoiceKind tells customer invoices from supplier invoices.
type InvoiceKind string

const (
	KindCustomer InvoiceKind = "customer"
	KindSupplier InvoiceKind = "supplier"
)

// KindFor returns the invoice kind a transaction can settle: money coming in
// pays customer invoices, money going out pays supplier invoices.
func KindFor(amount decimal.Decimal) InvoiceKind {
	if amount.IsPositive() {
		return KindCustomer
	}
	return KindSupplier
}

// Valid reports whether k is a known kind.
func (k InvoiceKind) Valid() bool {
	return k == KindCustomer || k == KindSupplier
}

// Transaction is one bank statement line.
type Transaction struct {
	ID         int64
	Date       time.Time
	Amount     decimal.Decimal // Positive = inflow
	Label      string
	InvoiceRef string // Optional, pre-extracted by the caller
}

// Invoice is a customer or supplier invoice as reported by the ERP.
type Invoice struct {
	ID          int64
	Kind        InvoiceKind
	Ref         string
	RefSupplier string
	RefExt      string
	TotalHT     decimal.Decimal
	TotalTTC    decimal.Decimal
	RemainToPay *decimal.Decimal // nil when the ERP reports no outstanding balance
	PartyID     int64
	PartyName   string
	DueDate     *time.Time
	Paid        bool // Explicit paid flag from the ERP
}

// Total is the principal comparison figure: net (HT) for supplier invoices,
// falling back to gross when net is missing, and gross (TTC) for customer
// invoices. Always non-negative.
func (i Invoice) Total() decimal.Decimal {
	if i.Kind == KindSupplier {
		if !i.TotalHT.IsZero() {
			return i.TotalHT.Abs()
		}
		return i.TotalTTC.Abs()
	}
	return i.TotalTTC.Abs()
}

// Remaining is the outstanding balance, or Total when the ERP did not report
// one.
func (i Invoice) Remaining() decimal.Decimal {
	if i.RemainToPay == nil {
		return i.Total()
	}
	return i.RemainToPay.Abs()
}

// AlreadyPaid reports whether nothing is left to pay on the invoice.
func (i Invoice) AlreadyPaid() bool {
	return i.Paid || i.Remaining().IsZero()
}

// MatchAmount is the figure a transaction is compared against: the
// outstanding balance, or the total once the invoice is fully paid.
func (i Invoice) MatchAmount() decimal.Decimal {
	if i.AlreadyPaid() {
		return i.Total()
	}
	return i.Remaining()
}

// References returns the non-empty references the invoice is known by.
func (i Invoice) References() []string {
	refs := make([]string, 0, 3)
	for _, r := range []string{i.Ref, i.RefSupplier, i.RefExt} {
		if r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}

// BankLine is an entry already recorded on an ERP bank account.
type BankLine struct {
	ID        int64
	AccountID int64
	Date      time.Time
	Amount    decimal.Decimal
	Label     string
}

// TargetKind identifies what a candidate points at.
type TargetKind string

const (
	TargetInvoice  TargetKind = "invoice"
	TargetBankLine TargetKind = "bank_line"
)

// MatchCandidate is one scored (transaction, target) pair. Exactly one of
// Invoice or BankLine is set, according to Target.
type MatchCandidate struct {
	Target     TargetKind
	Invoice    *Invoice
	BankLine   *BankLine
	Score      int // Never negative
	Reasons    []string
	AmountDiff decimal.Decimal

	raw int
}

// RawScore is the score before negative values are floored at zero. Ranking
// and thresholds use it.
func (c MatchCandidate) RawScore() int {
	return c.raw
}

// InvoiceKind returns the kind of the matched invoice, or "" for bank lines.
func (c MatchCandidate) InvoiceKind() InvoiceKind {
	if c.Invoice == nil {
		return ""
	}
	return c.Invoice.Kind
}

func newCandidate(target TargetKind, raw int, reasons []string, diff decimal.Decimal) MatchCandidate {
	return MatchCandidate{
		Target:     target,
		Score:      max(0, raw),
		Reasons:    reasons,
		AmountDiff: diff,
		raw:        raw,
	}
}
