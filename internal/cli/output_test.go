package cli

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

func TestPrintReconcileSummary(t *testing.T) {
	result := &reconcile.Result{
		Processed: 3,
		Matched:   1,
		Errors:    1,
		Skipped:   1,
		DryRun:    true,
		Outcomes: []reconcile.Outcome{
			{
				TransactionID: 1,
				Label:         "VIR ACME IN2501-0007",
				Amount:        decimal.RequireFromString("120"),
				Best: &matcher.MatchCandidate{
					Target:  matcher.TargetInvoice,
					Invoice: &matcher.Invoice{Ref: "IN2501-0007"},
					Score:   95,
				},
			},
			{TransactionID: 2, Label: "CB SHOP", Amount: decimal.RequireFromString("-9.5")},
			{TransactionID: 3, Label: "PRLV X", Amount: decimal.RequireFromString("-40"), Error: "erp down"},
		},
	}

	var buf bytes.Buffer
	PrintReconcileSummary(&buf, result)
	out := buf.String()

	assert.Contains(t, out, "MATCH #1")
	assert.Contains(t, out, "120.00")
	assert.Contains(t, out, "-> IN2501-0007 (score 95)")
	assert.NotContains(t, out, "CB SHOP")
	assert.Contains(t, out, "ERR   #3")
	assert.Contains(t, out, "erp down")
	assert.Contains(t, out, "Processed=3 Matched=1 Applied=0 Skipped=1 Errors=1")
	assert.Contains(t, out, "Re-run with -apply")
}

func TestPrintImportSummary(t *testing.T) {
	result := &storage.ImportResult{
		Imported:   []*storage.ImportedTransaction{{ID: 1}, {ID: 2}},
		Duplicates: []storage.Duplicate{{}},
		Errors:     []string{"row 4: missing date"},
	}

	var buf bytes.Buffer
	PrintImportSummary(&buf, "releve.csv", result)

	assert.Contains(t, buf.String(), "Imported releve.csv: 2 new, 1 duplicates, 1 errors")
	assert.Contains(t, buf.String(), "row 4: missing date")
}

func TestReconcileFlags_Options(t *testing.T) {
	tests := []struct {
		name        string
		flags       ReconcileFlags
		wantPayment bool
	}{
		{"dry run never creates payments", ReconcileFlags{CreatePayment: true}, false},
		{"apply with payments", ReconcileFlags{Apply: true, CreatePayment: true}, true},
		{"apply without payments", ReconcileFlags{Apply: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.flags.Options()
			assert.Equal(t, tt.flags.Apply, opts.Apply)
			assert.Equal(t, tt.wantPayment, opts.CreatePayment)
			assert.Equal(t, "cli", opts.ReconciledBy)
		})
	}
}
