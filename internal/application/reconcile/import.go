package reconcile

import (
	"fmt"

	"github.com/eshaffer321/bankrecon/internal/adapters/ingest"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// Import stores parsed statement rows. Rows already imported are reported
// as duplicates by the repository.
func (o *Orchestrator) Import(filename string, rows []ingest.Row) (*storage.ImportResult, error) {
	news := make([]storage.NewTransaction, 0, len(rows))
	for _, r := range rows {
		news = append(news, storage.NewTransaction{
			Date:    r.Date,
			Label:   r.Label,
			Amount:  r.Amount,
			RawData: r.RawJSON(),
		})
	}

	result, err := o.storage.ImportTransactions(filename, news)
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", filename, err)
	}

	o.logger.Info("statement imported",
		"file", filename,
		"rows", len(rows),
		"imported", len(result.Imported),
		"duplicates", len(result.Duplicates),
		"errors", len(result.Errors),
	)
	return result, nil
}
