package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

// fakeERP is an in-memory ERP with call recording and error injection.
type fakeERP struct {
	mu sync.Mutex

	byRef         map[string]*matcher.Invoice
	parties       map[string][]dolibarr.Party // search name -> results
	partyByID     map[int64]dolibarr.Party
	partyInvoices map[int64][]matcher.Invoice
	invoices      map[int64]*matcher.Invoice
	bankLines     []matcher.BankLine
	unpaid        map[matcher.InvoiceKind][]matcher.Invoice

	nextPaymentID int64
	nextID        int64

	searched        []string
	payments        []dolibarr.PaymentRequest
	createdParties  []dolibarr.PartyRequest
	createdInvoices []dolibarr.SupplierInvoiceRequest
	createdLines    []dolibarr.BankLineRequest
	lineAccounts    []int64
	refLookups      int
	bankLineCalls   int

	FindErr       error
	SearchErr     error
	GetInvoiceErr error
	PaymentErr    error
	BankLinesErr  error
	AddLineErr    error
	ListErr       error

	// paymentGate, when set, holds AddPayment until it is closed.
	paymentGate    chan struct{}
	paymentEntered chan struct{}
}

func newFakeERP() *fakeERP {
	return &fakeERP{
		byRef:         map[string]*matcher.Invoice{},
		parties:       map[string][]dolibarr.Party{},
		partyByID:     map[int64]dolibarr.Party{},
		partyInvoices: map[int64][]matcher.Invoice{},
		invoices:      map[int64]*matcher.Invoice{},
		unpaid:        map[matcher.InvoiceKind][]matcher.Invoice{},
		nextPaymentID: 100,
		nextID:        500,
	}
}

var _ ERP = (*fakeERP)(nil)

func (f *fakeERP) paymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}

func (f *fakeERP) addInvoice(inv matcher.Invoice) *matcher.Invoice {
	f.invoices[inv.ID] = &inv
	return &inv
}

func (f *fakeERP) FindInvoiceByReference(_ context.Context, ref string) (*matcher.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refLookups++
	if f.FindErr != nil {
		return nil, f.FindErr
	}
	return f.byRef[ref], nil
}

func (f *fakeERP) SearchParties(_ context.Context, name string) ([]dolibarr.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, name)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	return f.parties[name], nil
}

func (f *fakeERP) GetParty(_ context.Context, id int64) (*dolibarr.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.partyByID[id]
	if !ok {
		return nil, dolibarr.ErrNotFound
	}
	return &p, nil
}

func (f *fakeERP) CreateParty(_ context.Context, req dolibarr.PartyRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdParties = append(f.createdParties, req)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeERP) ListPartyInvoices(_ context.Context, partyID int64, kind matcher.InvoiceKind, _ bool) ([]matcher.Invoice, error) {
	var out []matcher.Invoice
	for _, inv := range f.partyInvoices[partyID] {
		if inv.Kind == kind {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeERP) GetInvoice(_ context.Context, kind matcher.InvoiceKind, id int64) (*matcher.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetInvoiceErr != nil {
		return nil, f.GetInvoiceErr
	}
	inv, ok := f.invoices[id]
	if !ok || inv.Kind != kind {
		return nil, dolibarr.ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (f *fakeERP) ListBankLines(_ context.Context, _ int64) ([]matcher.BankLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bankLineCalls++
	if f.BankLinesErr != nil {
		return nil, f.BankLinesErr
	}
	return f.bankLines, nil
}

func (f *fakeERP) AddPayment(_ context.Context, _ matcher.InvoiceKind, _ int64, req dolibarr.PaymentRequest) (int64, error) {
	if f.paymentGate != nil {
		if f.paymentEntered != nil {
			f.paymentEntered <- struct{}{}
		}
		<-f.paymentGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PaymentErr != nil {
		return 0, f.PaymentErr
	}
	f.payments = append(f.payments, req)
	f.nextPaymentID++
	return f.nextPaymentID, nil
}

// CreateSupplierInvoice also registers the draft so it can be paid.
func (f *fakeERP) CreateSupplierInvoice(_ context.Context, req dolibarr.SupplierInvoiceRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdInvoices = append(f.createdInvoices, req)
	f.nextID++
	f.invoices[f.nextID] = &matcher.Invoice{
		ID:          f.nextID,
		Kind:        matcher.KindSupplier,
		Ref:         fmt.Sprintf("(PROV%d)", f.nextID),
		RefSupplier: req.RefSupplier,
		TotalHT:     req.TotalHT,
		TotalTTC:    req.TotalHT.Add(req.TotalVAT),
		PartyID:     req.PartyID,
	}
	return f.nextID, nil
}

func (f *fakeERP) AddBankLine(_ context.Context, accountID int64, req dolibarr.BankLineRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddLineErr != nil {
		return 0, f.AddLineErr
	}
	f.createdLines = append(f.createdLines, req)
	f.lineAccounts = append(f.lineAccounts, accountID)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeERP) ListInvoices(_ context.Context, kind matcher.InvoiceKind, _ string, _ int) ([]matcher.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.unpaid[kind], nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
