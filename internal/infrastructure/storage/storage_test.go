package storage

import (
	"bytes"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	tmpDB := createTempDB(t)
	t.Cleanup(func() { os.Remove(tmpDB) })

	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTransactionHash(t *testing.T) {
	a := TransactionHash(day(2024, 3, 15), "  vir sepa acme ", dec("-120.5"))
	b := TransactionHash(day(2024, 3, 15), "VIR SEPA ACME", dec("-120.50"))

	assert.Equal(t, a, b, "label case, surrounding spaces and amount scale should not matter")
	assert.Len(t, a, 32)

	c := TransactionHash(day(2024, 3, 16), "VIR SEPA ACME", dec("-120.50"))
	assert.NotEqual(t, a, c)
}

func TestStorage_ImportTransactions_Dedup(t *testing.T) {
	// Arrange
	store := newTestStorage(t)
	rows := []NewTransaction{
		{Date: day(2024, 3, 15), Label: "VIR SEPA ACME", Amount: dec("120.00")},
		{Date: day(2024, 3, 16), Label: "PRLV SEPA EDF", Amount: dec("-45.10")},
	}

	// Act
	first, err := store.ImportTransactions("march.csv", rows)
	require.NoError(t, err)
	second, err := store.ImportTransactions("march-again.csv", append(rows, NewTransaction{
		Date: day(2024, 3, 17), Label: "CB CARREFOUR", Amount: dec("-12.30"),
	}))
	require.NoError(t, err)

	// Assert
	assert.Len(t, first.Imported, 2)
	assert.Empty(t, first.Duplicates)

	assert.Len(t, second.Imported, 1)
	require.Len(t, second.Duplicates, 2)
	assert.Equal(t, first.Imported[0].ID, second.Duplicates[0].ExistingID)
	assert.Equal(t, StatusPending, second.Duplicates[0].ExistingStatus)
	assert.NotEmpty(t, first.BatchID)
	assert.NotEqual(t, first.BatchID, second.BatchID)
}

func TestStorage_ImportTransactions_DuplicateWithinFile(t *testing.T) {
	store := newTestStorage(t)
	row := NewTransaction{Date: day(2024, 3, 15), Label: "VIR SEPA ACME", Amount: dec("120.00")}

	result, err := store.ImportTransactions("march.csv", []NewTransaction{row, row})
	require.NoError(t, err)

	assert.Len(t, result.Imported, 1)
	assert.Len(t, result.Duplicates, 1)
}

func TestStorage_ImportTransactions_MissingDate(t *testing.T) {
	store := newTestStorage(t)

	result, err := store.ImportTransactions("bad.csv", []NewTransaction{{Label: "NO DATE", Amount: dec("1")}})
	require.NoError(t, err)

	assert.Empty(t, result.Imported)
	assert.Len(t, result.Errors, 1)
}

func TestStorage_GetTransaction(t *testing.T) {
	store := newTestStorage(t)
	result, err := store.ImportTransactions("march.csv", []NewTransaction{
		{Date: day(2024, 3, 15), Label: "VIR SEPA ACME", Amount: dec("-120.50"), RawData: `{"Libelle":"VIR SEPA ACME"}`},
	})
	require.NoError(t, err)

	got, err := store.GetTransaction(result.Imported[0].ID)
	require.NoError(t, err)

	assert.Equal(t, "VIR SEPA ACME", got.Label)
	assert.True(t, dec("-120.50").Equal(got.Amount))
	assert.True(t, day(2024, 3, 15).Equal(got.Date))
	assert.Equal(t, "march.csv", got.ImportFile)
	assert.Equal(t, `{"Libelle":"VIR SEPA ACME"}`, got.RawData)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.MatchedInvoiceID)

	_, err = store.GetTransaction(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_ListPending_OrderedByDate(t *testing.T) {
	store := newTestStorage(t)
	_, err := store.ImportTransactions("f.csv", []NewTransaction{
		{Date: day(2024, 3, 20), Label: "C", Amount: dec("3")},
		{Date: day(2024, 3, 1), Label: "A", Amount: dec("1")},
		{Date: day(2024, 3, 10), Label: "B", Amount: dec("2")},
	})
	require.NoError(t, err)

	pending, err := store.ListPending(0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "A", pending[0].Label)
	assert.Equal(t, "B", pending[1].Label)
	assert.Equal(t, "C", pending[2].Label)

	limited, err := store.ListPending(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStorage_StatusLifecycle(t *testing.T) {
	// Arrange
	store := newTestStorage(t)
	result, err := store.ImportTransactions("f.csv", []NewTransaction{
		{Date: day(2024, 3, 15), Label: "VIR ACME", Amount: dec("120")},
		{Date: day(2024, 3, 16), Label: "FRAIS", Amount: dec("-3")},
	})
	require.NoError(t, err)
	txID := result.Imported[0].ID
	feeID := result.Imported[1].ID
	paymentID := int64(77)

	// Act: reconcile
	err = store.MarkReconciled(txID, Reconciliation{
		InvoiceID:   42,
		InvoiceType: "customer",
		InvoiceRef:  "IN2403-0012",
		PartyName:   "ACME",
		PaymentID:   &paymentID,
	})
	require.NoError(t, err)

	got, err := store.GetTransaction(txID)
	require.NoError(t, err)
	assert.Equal(t, StatusReconciled, got.Status)
	require.NotNil(t, got.MatchedInvoiceID)
	assert.Equal(t, int64(42), *got.MatchedInvoiceID)
	assert.Equal(t, "IN2403-0012", got.MatchedInvoiceRef)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, paymentID, *got.PaymentID)
	assert.NotNil(t, got.ReconciledAt)
	assert.Equal(t, "system", got.ReconciledBy)

	// Reconciling twice is rejected
	err = store.MarkReconciled(txID, Reconciliation{InvoiceID: 43})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Ignore, then reconcile is rejected
	require.NoError(t, store.MarkIgnored(feeID, "bank fees"))
	err = store.MarkReconciled(feeID, Reconciliation{InvoiceID: 1})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Reset clears the match
	require.NoError(t, store.ResetTransaction(txID))
	got, err = store.GetTransaction(txID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.MatchedInvoiceID)
	assert.Nil(t, got.PaymentID)
	assert.Nil(t, got.ReconciledAt)
	assert.Empty(t, got.MatchedInvoiceRef)

	require.NoError(t, store.ResetTransaction(feeID))
	got, err = store.GetTransaction(feeID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.IgnoreReason)

	// Unknown ids
	assert.ErrorIs(t, store.MarkReconciled(999, Reconciliation{}), ErrNotFound)
	assert.ErrorIs(t, store.MarkIgnored(999, ""), ErrNotFound)
	assert.ErrorIs(t, store.ResetTransaction(999), ErrNotFound)
}

func TestStorage_ClaimTransaction(t *testing.T) {
	// Arrange
	store := newTestStorage(t)
	result, err := store.ImportTransactions("f.csv", []NewTransaction{
		{Date: day(2024, 3, 15), Label: "VIR ACME", Amount: dec("120")},
	})
	require.NoError(t, err)
	id := result.Imported[0].ID

	// Act
	claimed, err := store.ClaimTransaction(id)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StatusApplying, claimed.Status)
	assert.Equal(t, "VIR ACME", claimed.Label)

	_, err = store.ClaimTransaction(id)
	assert.ErrorIs(t, err, ErrInvalidTransition, "a claimed transaction cannot be claimed again")
	assert.ErrorIs(t, store.MarkIgnored(id, "x"), ErrInvalidTransition)
	assert.ErrorIs(t, store.ResetTransaction(id), ErrInvalidTransition)

	pending, err := store.ListPending(0)
	require.NoError(t, err)
	assert.Empty(t, pending, "claimed transactions are not pending")

	require.NoError(t, store.ReleaseTransaction(id))
	got, err := store.GetTransaction(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.ErrorIs(t, store.ReleaseTransaction(id), ErrInvalidTransition)

	_, err = store.ClaimTransaction(id)
	require.NoError(t, err)
	require.NoError(t, store.MarkReconciled(id, Reconciliation{InvoiceID: 42, InvoiceType: "customer"}))
	got, err = store.GetTransaction(id)
	require.NoError(t, err)
	assert.Equal(t, StatusReconciled, got.Status)

	_, err = store.ClaimTransaction(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_ClaimTransaction_Concurrent(t *testing.T) {
	store := newTestStorage(t)
	result, err := store.ImportTransactions("f.csv", []NewTransaction{
		{Date: day(2024, 3, 15), Label: "VIR ACME", Amount: dec("120")},
	})
	require.NoError(t, err)
	id := result.Imported[0].ID

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = store.ClaimTransaction(id)
		}(i)
	}
	close(start)
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Equal(t, 1, won)
}

func TestStorage_RecoverClaims(t *testing.T) {
	// Arrange
	store := newTestStorage(t)
	result, err := store.ImportTransactions("f.csv", []NewTransaction{
		{Date: day(2024, 3, 15), Label: "VIR ACME", Amount: dec("120")},
		{Date: day(2024, 3, 16), Label: "VIR BETA", Amount: dec("80")},
	})
	require.NoError(t, err)
	unpaid := result.Imported[0].ID
	paid := result.Imported[1].ID
	_, err = store.ClaimTransaction(unpaid)
	require.NoError(t, err)
	_, err = store.ClaimTransaction(paid)
	require.NoError(t, err)
	_, err = store.AddPayment(&PaymentRecord{
		PaymentID: 9, InvoiceID: 4, InvoiceType: "customer", Amount: dec("80"),
		PaidAt: day(2024, 3, 16), TransactionID: &paid,
	})
	require.NoError(t, err)

	// Act
	released, kept, err := store.RecoverClaims()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, []int64{paid}, kept)

	got, _ := store.GetTransaction(unpaid)
	assert.Equal(t, StatusPending, got.Status)
	got, _ = store.GetTransaction(paid)
	assert.Equal(t, StatusApplying, got.Status, "a claim with a recorded payment is never released automatically")
}

func TestStorage_ListTransactions_ByStatus(t *testing.T) {
	store := newTestStorage(t)
	result, err := store.ImportTransactions("f.csv", []NewTransaction{
		{Date: day(2024, 3, 15), Label: "A", Amount: dec("1")},
		{Date: day(2024, 3, 16), Label: "B", Amount: dec("2")},
	})
	require.NoError(t, err)
	require.NoError(t, store.MarkIgnored(result.Imported[1].ID, ""))

	all, err := store.ListTransactions(TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ignored, err := store.ListTransactions(TransactionFilter{Status: StatusIgnored})
	require.NoError(t, err)
	require.Len(t, ignored, 1)
	assert.Equal(t, "B", ignored[0].Label)
}

func TestStorage_TransactionStats(t *testing.T) {
	store := newTestStorage(t)
	result, err := store.ImportTransactions("f.csv", []NewTransaction{
		{Date: day(2024, 3, 15), Label: "IN 1", Amount: dec("100.10")},
		{Date: day(2024, 3, 16), Label: "IN 2", Amount: dec("50.20")},
		{Date: day(2024, 3, 17), Label: "OUT 1", Amount: dec("-30.05")},
		{Date: day(2024, 3, 18), Label: "OUT 2", Amount: dec("-9.95")},
	})
	require.NoError(t, err)
	require.NoError(t, store.MarkIgnored(result.Imported[3].ID, "fees"))

	stats, err := store.TransactionStats()
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalCount)
	assert.True(t, dec("110.30").Equal(stats.TotalAmount))
	assert.Equal(t, 3, stats.ByStatus[StatusPending].Count)
	assert.Equal(t, 1, stats.ByStatus[StatusIgnored].Count)
	assert.True(t, dec("150.30").Equal(stats.PendingCredit))
	assert.True(t, dec("-30.05").Equal(stats.PendingDebit))
	assert.Equal(t, 2, stats.CreditCount)
	assert.Equal(t, 1, stats.DebitCount)
}

func TestStorage_Payments(t *testing.T) {
	// Arrange
	store := newTestStorage(t)
	result, err := store.ImportTransactions("f.csv", []NewTransaction{
		{Date: day(2024, 3, 15), Label: "VIR ACME", Amount: dec("120")},
	})
	require.NoError(t, err)
	txID := result.Imported[0].ID

	p1 := &PaymentRecord{
		PaymentID:        501,
		InvoiceID:        42,
		InvoiceType:      "customer",
		InvoiceRef:       "IN2403-0012",
		PartyName:        "ACME",
		Amount:           dec("120"),
		PaidAt:           day(2024, 3, 15),
		AccountID:        1,
		TransactionID:    &txID,
		TransactionLabel: "VIR ACME",
	}
	p2 := &PaymentRecord{
		PaymentID:   502,
		InvoiceID:   43,
		InvoiceType: "supplier",
		Amount:      dec("80.40"),
		PaidAt:      day(2024, 4, 2),
	}

	// Act
	id1, err := store.AddPayment(p1)
	require.NoError(t, err)
	_, err = store.AddPayment(p2)
	require.NoError(t, err)

	// Assert
	all, err := store.ListPayments(PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(502), all[0].PaymentID, "most recent first")
	assert.Equal(t, "IN2403-0012", all[1].InvoiceRef)
	require.NotNil(t, all[1].TransactionID)
	assert.Equal(t, txID, *all[1].TransactionID)

	from := day(2024, 4, 1)
	april, err := store.ListPayments(PaymentFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, april, 1)
	assert.Equal(t, int64(43), april[0].InvoiceID)

	byInvoice, err := store.ListPayments(PaymentFilter{InvoiceID: 42})
	require.NoError(t, err)
	assert.Len(t, byInvoice, 1)

	require.NoError(t, store.CancelPayment(id1, "wrong invoice"))
	assert.ErrorIs(t, store.CancelPayment(id1, "again"), ErrInvalidTransition)
	assert.ErrorIs(t, store.CancelPayment(999, ""), ErrNotFound)

	cancelled, err := store.ListPayments(PaymentFilter{Status: PaymentCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "wrong invoice", cancelled[0].CancelReason)
	assert.NotNil(t, cancelled[0].CancelledAt)

	stats, err := store.PaymentStatistics()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCreated)
	assert.Equal(t, 1, stats.TotalCancelled)
	assert.True(t, dec("80.40").Equal(stats.TotalAmount))
	assert.Equal(t, 2, stats.TodayCount)
}

func TestStorage_AddBankLine(t *testing.T) {
	store := newTestStorage(t)

	line := &BankLineRecord{LineID: 900, AccountID: 1, Amount: dec("-45.10"), Date: day(2024, 3, 16), Label: "EDF"}
	id, err := store.AddBankLine(line)
	require.NoError(t, err)

	assert.NotZero(t, id)
	assert.Equal(t, "VIR", line.Type)
	assert.Equal(t, PaymentCreated, line.Status)
}

func TestStorage_AuditLog(t *testing.T) {
	store := newTestStorage(t)
	result, err := store.ImportTransactions("f.csv", []NewTransaction{
		{Date: day(2024, 3, 15), Label: "A", Amount: dec("1")},
	})
	require.NoError(t, err)
	id := result.Imported[0].ID

	require.NoError(t, store.MarkIgnored(id, "duplicate statement"))
	require.NoError(t, store.ResetTransaction(id))

	actions, err := store.ListActions("transaction", id, 10)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionTransactionReset, actions[0].ActionType)
	assert.Equal(t, ActionTransactionIgnored, actions[1].ActionType)
	assert.Equal(t, "duplicate statement", actions[1].Details["reason"])
	assert.Equal(t, "system", actions[1].UserName)

	all, err := store.ListActions("", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3, "import is logged too")
}

func TestMockRepository_MatchesStorageSemantics(t *testing.T) {
	mock := NewMockRepository()
	row := NewTransaction{Date: day(2024, 3, 15), Label: "VIR ACME", Amount: dec("120")}

	result, err := mock.ImportTransactions("f.csv", []NewTransaction{row, row})
	require.NoError(t, err)
	assert.Len(t, result.Imported, 1)
	assert.Len(t, result.Duplicates, 1)

	id := result.Imported[0].ID
	require.NoError(t, mock.MarkIgnored(id, "x"))
	assert.ErrorIs(t, mock.MarkReconciled(id, Reconciliation{InvoiceID: 1}), ErrInvalidTransition)
	require.NoError(t, mock.ResetTransaction(id))
	require.NoError(t, mock.MarkReconciled(id, Reconciliation{InvoiceID: 1}))

	require.NoError(t, mock.ResetTransaction(id))
	claimed, err := mock.ClaimTransaction(id)
	require.NoError(t, err)
	assert.Equal(t, StatusApplying, claimed.Status)
	_, err = mock.ClaimTransaction(id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, mock.ResetTransaction(id), ErrInvalidTransition)
	require.NoError(t, mock.ReleaseTransaction(id))

	_, err = mock.GetTransaction(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_AuditFailureIsLoggedNotReturned(t *testing.T) {
	// Arrange
	store := newTestStorage(t)
	var logs bytes.Buffer
	store.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	res, err := store.ImportTransactions("releve.csv", []NewTransaction{
		{Date: day(2025, 1, 15), Label: "CB CARREFOUR", Amount: dec("-12.00")},
	})
	require.NoError(t, err)
	require.Len(t, res.Imported, 1)
	id := res.Imported[0].ID
	_, err = store.db.Exec("DROP TABLE user_actions")
	require.NoError(t, err)

	// Act
	err = store.MarkIgnored(id, "private")

	// Assert
	require.NoError(t, err, "the status change committed; the audit row is best effort")
	tx, err := store.GetTransaction(id)
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, tx.Status)
	assert.Contains(t, logs.String(), "failed to write audit log")
	assert.Contains(t, logs.String(), "level=WARN")
}
