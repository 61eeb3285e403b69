package dolibarr

import (
	"context"
	"fmt"
	"net/url"

	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

const bankAccountsEndpoint = "bankaccounts"

// ListBankAccounts returns the bank accounts defined in Dolibarr
func (c *Client) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	q := url.Values{}
	q.Set("sortfield", "t.rowid")
	q.Set("sortorder", "ASC")
	q.Set("limit", "100")

	var raw []bankAccountJSON
	if err := c.list(ctx, bankAccountsEndpoint, q, &raw); err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}

	accounts := make([]BankAccount, 0, len(raw))
	for _, j := range raw {
		accounts = append(accounts, j.toAccount())
	}
	return accounts, nil
}

// ListBankLines returns the entries recorded on one bank account
func (c *Client) ListBankLines(ctx context.Context, accountID int64) ([]matcher.BankLine, error) {
	var raw []bankLineJSON
	endpoint := fmt.Sprintf("%s/%d/lines", bankAccountsEndpoint, accountID)
	if err := c.list(ctx, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to list lines of bank account %d: %w", accountID, err)
	}

	lines := make([]matcher.BankLine, 0, len(raw))
	for _, j := range raw {
		lines = append(lines, j.toBankLine(accountID))
	}
	return lines, nil
}

// AddBankLine creates an entry on a bank account and returns its id
func (c *Client) AddBankLine(ctx context.Context, accountID int64, req BankLineRequest) (int64, error) {
	endpoint := fmt.Sprintf("%s/%d/lines", bankAccountsEndpoint, accountID)
	id, err := c.create(ctx, endpoint, req.body())
	if err != nil {
		return 0, fmt.Errorf("failed to add bank line to account %d: %w", accountID, err)
	}
	c.logger.Info("bank line created", "account_id", accountID, "line_id", id, "amount", req.Amount.StringFixed(2))
	return id, nil
}
