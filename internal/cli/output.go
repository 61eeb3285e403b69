package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// PrintHeader prints the application header
func PrintHeader(dryRun bool) {
	mode := "APPLY"
	if dryRun {
		mode = "DRY-RUN"
	}
	fmt.Printf("bankrecon: auto-reconcile (%s mode)\n\n", mode)
}

// PrintImportSummary prints what an import stored
func PrintImportSummary(w io.Writer, filename string, result *storage.ImportResult) {
	fmt.Fprintf(w, "Imported %s: %d new, %d duplicates", filename, len(result.Imported), len(result.Duplicates))
	if len(result.Errors) > 0 {
		fmt.Fprintf(w, ", %d errors", len(result.Errors))
	}
	fmt.Fprintln(w)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  - %s\n", e)
	}
	fmt.Fprintln(w)
}

// PrintReconcileSummary prints one line per matched transaction and the
// totals.
func PrintReconcileSummary(w io.Writer, result *reconcile.Result) {
	for _, o := range result.Outcomes {
		switch {
		case o.Error != "":
			fmt.Fprintf(w, "  ERR   #%-5d %10s  %s: %s\n", o.TransactionID, o.Amount.StringFixed(2), o.Label, o.Error)
		case o.Best == nil:
			continue
		default:
			status := "MATCH"
			if o.Applied {
				status = "DONE "
			}
			target := "bank line"
			if o.Best.Invoice != nil {
				target = o.Best.Invoice.Ref
			}
			fmt.Fprintf(w, "  %s #%-5d %10s  %s -> %s (score %d)\n",
				status, o.TransactionID, o.Amount.StringFixed(2), o.Label, target, o.Best.Score)
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Processed=%d Matched=%d Applied=%d Skipped=%d Errors=%d\n",
		result.Processed, result.Matched, result.Applied, result.Skipped, result.Errors)
	if result.DryRun && result.Matched > 0 {
		fmt.Fprintln(w, "\nDry run: nothing was written. Re-run with -apply to reconcile.")
	}
}

// PrintStats prints the stored transaction totals
func PrintStats(w io.Writer, stats *storage.TransactionStats) {
	fmt.Fprintf(w, "\nAll transactions: %d", stats.TotalCount)
	for _, s := range []storage.TransactionStatus{storage.StatusPending, storage.StatusReconciled, storage.StatusIgnored} {
		fmt.Fprintf(w, " | %s=%d", s, stats.ByStatus[s].Count)
	}
	fmt.Fprintf(w, "\nPending: credits %s (%d), debits %s (%d)\n",
		stats.PendingCredit.StringFixed(2), stats.CreditCount,
		stats.PendingDebit.StringFixed(2), stats.DebitCount)
}

// ProgressPrinter redraws a progress line on terminals and stays silent
// otherwise.
type ProgressPrinter struct {
	w       io.Writer
	enabled bool
	drawn   bool
}

// NewProgressPrinter creates a printer writing to f.
func NewProgressPrinter(f *os.File) *ProgressPrinter {
	return &ProgressPrinter{w: f, enabled: term.IsTerminal(int(f.Fd()))}
}

// Update draws p. It matches reconcile.ProgressFunc.
func (p *ProgressPrinter) Update(pr reconcile.Progress) {
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.w, "\r%d/%d transactions, %d matched, %d applied, %d errors",
		pr.Done, pr.Total, pr.Matched, pr.Applied, pr.Errors)
	p.drawn = true
}

// Done ends the progress line.
func (p *ProgressPrinter) Done() {
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}
