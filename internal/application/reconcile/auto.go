package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

// AutoReconcile looks up the best match for every pending transaction and,
// when opts.Apply is set, applies the ones above threshold. A best match on
// an existing ERP bank line is applied too; it only marks the transaction
// reconciled and writes nothing to the ERP. Transactions are independent: a
// failure is counted and the run moves on. Only a cancelled context stops
// the run early, and no apply starts once it is cancelled.
func (o *Orchestrator) AutoReconcile(ctx context.Context, opts Options, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	result := &Result{DryRun: !opts.Apply, Outcomes: []Outcome{}}

	pending, err := o.storage.ListPending(opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	o.logger.Info("starting auto-reconcile",
		"pending", len(pending),
		"dry_run", result.DryRun,
		"create_payment", opts.CreatePayment,
	)

	// Bank lines are shared by every transaction of the run.
	lines := o.bankLines(ctx)

	for i, stored := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tx := ToTransaction(stored)
		outcome := Outcome{TransactionID: tx.ID, Label: tx.Label, Amount: tx.Amount}
		result.Processed++

		s, err := o.suggest(ctx, tx, lines)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			outcome.Error = err.Error()
			result.Errors++
		case s.Best == nil:
			result.Skipped++
		default:
			outcome.Best = s.Best
			result.Matched++
			if opts.Apply {
				if err := ctx.Err(); err != nil {
					result.Outcomes = append(result.Outcomes, outcome)
					return result, err
				}
				if err := o.applyBest(ctx, stored.ID, s.Best, opts); err != nil {
					o.logger.Warn("auto-apply failed", "tx_id", tx.ID, "error", err)
					outcome.Error = err.Error()
					result.Errors++
				} else {
					outcome.Applied = true
					result.Applied++
				}
			}
		}
		result.Outcomes = append(result.Outcomes, outcome)

		if progress != nil {
			progress(Progress{
				Done:    i + 1,
				Total:   len(pending),
				Matched: result.Matched,
				Applied: result.Applied,
				Errors:  result.Errors,
			})
		}
	}

	o.logger.Info("auto-reconcile finished",
		"processed", result.Processed,
		"matched", result.Matched,
		"applied", result.Applied,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

func (o *Orchestrator) applyBest(ctx context.Context, txID int64, best *matcher.MatchCandidate, opts Options) error {
	req := ApplyRequest{
		TransactionID: txID,
		CreatePayment: opts.CreatePayment,
		ReconciledBy:  opts.ReconciledBy,
	}
	if req.ReconciledBy == "" {
		req.ReconciledBy = "auto"
	}

	switch best.Target {
	case matcher.TargetInvoice:
		req.InvoiceID = best.Invoice.ID
		req.InvoiceType = string(best.Invoice.Kind)
	case matcher.TargetBankLine:
		req.InvoiceID = best.BankLine.ID
		req.InvoiceType = TargetBankLine
	default:
		return fmt.Errorf("unknown match target %q", best.Target)
	}

	_, err := o.Apply(ctx, req)
	return err
}
