package dto

import (
	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

// InvoiceResponse is an ERP invoice as shown next to a candidate.
type InvoiceResponse struct {
	ID          int64  `json:"id"`
	Kind        string `json:"type"`
	Ref         string `json:"ref"`
	RefSupplier string `json:"ref_supplier,omitempty"`
	RefExt      string `json:"ref_ext,omitempty"`
	TotalHT     string `json:"total_ht"`
	TotalTTC    string `json:"total_ttc"`
	Remaining   string `json:"remain_to_pay"`
	PartyID     int64  `json:"thirdparty_id,omitempty"`
	PartyName   string `json:"thirdparty_name,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Paid        bool   `json:"paid"`
}

// BankLineResponse is an existing ERP bank line.
type BankLineResponse struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"account_id"`
	Date      string `json:"date"`
	Amount    string `json:"amount"`
	Label     string `json:"label"`
}

// CandidateResponse is one scored match.
type CandidateResponse struct {
	Target     string            `json:"target"`
	Invoice    *InvoiceResponse  `json:"invoice,omitempty"`
	BankLine   *BankLineResponse `json:"bank_line,omitempty"`
	Score      int               `json:"score"`
	Reasons    []string          `json:"reasons"`
	AmountDiff string            `json:"amount_diff"`
}

// NewCandidateResponse converts a match candidate. Nil in, nil out.
func NewCandidateResponse(c *matcher.MatchCandidate) *CandidateResponse {
	if c == nil {
		return nil
	}
	r := &CandidateResponse{
		Target:     string(c.Target),
		Score:      c.Score,
		Reasons:    c.Reasons,
		AmountDiff: c.AmountDiff.StringFixed(2),
	}
	if r.Reasons == nil {
		r.Reasons = []string{}
	}
	if c.Invoice != nil {
		ir := newInvoiceResponse(c.Invoice)
		r.Invoice = &ir
	}
	if bl := c.BankLine; bl != nil {
		r.BankLine = &BankLineResponse{
			ID:        bl.ID,
			AccountID: bl.AccountID,
			Date:      bl.Date.Format(dateLayout),
			Amount:    bl.Amount.StringFixed(2),
			Label:     bl.Label,
		}
	}
	return r
}

func newInvoiceResponse(inv *matcher.Invoice) InvoiceResponse {
	ir := InvoiceResponse{
		ID:          inv.ID,
		Kind:        string(inv.Kind),
		Ref:         inv.Ref,
		RefSupplier: inv.RefSupplier,
		RefExt:      inv.RefExt,
		TotalHT:     inv.TotalHT.StringFixed(2),
		TotalTTC:    inv.TotalTTC.StringFixed(2),
		Remaining:   inv.Remaining().StringFixed(2),
		PartyID:     inv.PartyID,
		PartyName:   inv.PartyName,
		Paid:        inv.AlreadyPaid(),
	}
	if inv.DueDate != nil {
		ir.DueDate = inv.DueDate.Format(dateLayout)
	}
	return ir
}

func newCandidates(cs []matcher.MatchCandidate) []CandidateResponse {
	out := make([]CandidateResponse, 0, len(cs))
	for i := range cs {
		out = append(out, *NewCandidateResponse(&cs[i]))
	}
	return out
}

// MatchesResponse lists the candidates for one transaction.
type MatchesResponse struct {
	Transaction  TransactionResponse `json:"transaction"`
	Counterparty string              `json:"counterparty,omitempty"`
	InvoiceRef   string              `json:"invoice_ref,omitempty"`
	Source       string              `json:"source,omitempty"`
	Party        *dolibarr.Party     `json:"party,omitempty"`
	Invoices     []CandidateResponse `json:"invoices"`
	BankLines    []CandidateResponse `json:"bank_lines"`
	Best         *CandidateResponse  `json:"best_match,omitempty"`
}

// NewMatchesResponse converts a suggestion for tx.
func NewMatchesResponse(tx TransactionResponse, s *reconcile.Suggestion) MatchesResponse {
	return MatchesResponse{
		Transaction:  tx,
		Counterparty: s.Counterparty,
		InvoiceRef:   s.InvoiceRef,
		Source:       string(s.Source),
		Party:        s.Party,
		Invoices:     newCandidates(s.Invoices),
		BankLines:    newCandidates(s.BankLines),
		Best:         NewCandidateResponse(s.Best),
	}
}

// ReconcileResponse describes an applied match.
type ReconcileResponse struct {
	TransactionID  int64  `json:"transaction_id"`
	InvoiceID      int64  `json:"invoice_id"`
	InvoiceType    string `json:"invoice_type"`
	InvoiceRef     string `json:"invoice_ref,omitempty"`
	PartyName      string `json:"thirdparty_name,omitempty"`
	PaymentID      *int64 `json:"payment_id,omitempty"`
	BankLineID     *int64 `json:"bank_line_id,omitempty"`
	Amount         string `json:"amount"`
	AlreadyPaid    bool   `json:"already_paid"`
	PaymentSkipped bool   `json:"payment_skipped"`
}

// NewReconcileResponse converts an apply result.
func NewReconcileResponse(r *reconcile.ApplyResult) ReconcileResponse {
	return ReconcileResponse{
		TransactionID:  r.TransactionID,
		InvoiceID:      r.InvoiceID,
		InvoiceType:    r.InvoiceType,
		InvoiceRef:     r.InvoiceRef,
		PartyName:      r.PartyName,
		PaymentID:      r.PaymentID,
		BankLineID:     r.BankLineID,
		Amount:         r.Amount.StringFixed(2),
		AlreadyPaid:    r.AlreadyPaid,
		PaymentSkipped: r.PaymentSkipped,
	}
}

// BatchItemResponse is the outcome of one batch entry.
type BatchItemResponse struct {
	TransactionID int64              `json:"transaction_id"`
	Success       bool               `json:"success"`
	Result        *ReconcileResponse `json:"result,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// BatchResponse summarizes a batch reconcile.
type BatchResponse struct {
	Results      []BatchItemResponse `json:"results"`
	SuccessCount int                 `json:"success_count"`
	ErrorCount   int                 `json:"error_count"`
}

// NewBatchResponse converts a batch result.
func NewBatchResponse(b *reconcile.BatchResult) BatchResponse {
	r := BatchResponse{
		Results:      make([]BatchItemResponse, 0, len(b.Items)),
		SuccessCount: b.Succeeded,
		ErrorCount:   b.Failed,
	}
	for _, it := range b.Items {
		item := BatchItemResponse{
			TransactionID: it.Request.TransactionID,
			Success:       it.Result != nil,
			Error:         it.Error,
		}
		if it.Result != nil {
			rr := NewReconcileResponse(it.Result)
			item.Result = &rr
		}
		r.Results = append(r.Results, item)
	}
	return r
}

// StatementMatchResponse is the lookup of one statement row.
type StatementMatchResponse struct {
	ID        int64               `json:"id"`
	Date      string              `json:"date"`
	Label     string              `json:"label"`
	Amount    string              `json:"amount"`
	Invoices  []CandidateResponse `json:"invoices"`
	BankLines []CandidateResponse `json:"bank_lines"`
	Best      *CandidateResponse  `json:"best_match,omitempty"`
}

// MatchStatementResponse answers a stateless statement match.
type MatchStatementResponse struct {
	Transactions []StatementMatchResponse `json:"matched_transactions"`
	Count        int                      `json:"count"`
	Matched      int                      `json:"matched"`
}

// NewMatchStatementResponse converts statement matches.
func NewMatchStatementResponse(ms []reconcile.StatementMatch) MatchStatementResponse {
	r := MatchStatementResponse{
		Transactions: make([]StatementMatchResponse, 0, len(ms)),
		Count:        len(ms),
	}
	for i := range ms {
		m := &ms[i]
		if m.Best != nil {
			r.Matched++
		}
		r.Transactions = append(r.Transactions, StatementMatchResponse{
			ID:        m.Transaction.ID,
			Date:      m.Transaction.Date.Format(dateLayout),
			Label:     m.Transaction.Label,
			Amount:    m.Transaction.Amount.StringFixed(2),
			Invoices:  newCandidates(m.Invoices),
			BankLines: newCandidates(m.BankLines),
			Best:      NewCandidateResponse(m.Best),
		})
	}
	return r
}

// InvoiceListResponse lists ERP invoices of one kind.
type InvoiceListResponse struct {
	Type     string            `json:"type"`
	Status   string            `json:"status"`
	Invoices []InvoiceResponse `json:"invoices"`
	Count    int               `json:"count"`
}

// NewInvoiceListResponse converts an ERP invoice listing.
func NewInvoiceListResponse(kind, status string, invoices []matcher.Invoice) InvoiceListResponse {
	r := InvoiceListResponse{
		Type:     kind,
		Status:   status,
		Invoices: make([]InvoiceResponse, 0, len(invoices)),
		Count:    len(invoices),
	}
	for i := range invoices {
		r.Invoices = append(r.Invoices, newInvoiceResponse(&invoices[i]))
	}
	return r
}

// BankAccountListResponse lists the ERP bank accounts.
type BankAccountListResponse struct {
	Accounts []dolibarr.BankAccount `json:"accounts"`
	Count    int                    `json:"count"`
}
