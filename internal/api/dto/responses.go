package dto

import (
	"time"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/domain/labels"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string            `json:"status"` // ok or degraded
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{},
	}
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// LabelPreviewResponse shows what the label parser reads from a label.
type LabelPreviewResponse struct {
	Label        string         `json:"label"`
	Counterparty string         `json:"counterparty,omitempty"`
	InvoiceRef   string         `json:"invoice_ref,omitempty"`
	Period       *labels.Period `json:"period,omitempty"`
	Variants     []string       `json:"search_variants"`
}

// PartySearchResponse is returned by the party search.
type PartySearchResponse struct {
	Query   string           `json:"query"`
	Parties []dolibarr.Party `json:"parties"`
	Count   int              `json:"count"`
}

// StatsResponse holds transaction statistics.
type StatsResponse struct {
	ByStatus      map[string]StatusTotalsResponse `json:"by_status"`
	TotalCount    int                             `json:"total_count"`
	TotalAmount   string                          `json:"total_amount"`
	PendingCredit string                          `json:"pending_credits"`
	PendingDebit  string                          `json:"pending_debits"`
	CreditCount   int                             `json:"pending_credit_count"`
	DebitCount    int                             `json:"pending_debit_count"`
}

// StatusTotalsResponse is the count and sum for one status.
type StatusTotalsResponse struct {
	Count int    `json:"count"`
	Total string `json:"total"`
}

// PaymentStatsResponse holds payment history statistics.
type PaymentStatsResponse struct {
	TotalCreated   int    `json:"total_created"`
	TotalCancelled int    `json:"total_cancelled"`
	TotalAmount    string `json:"total_amount"`
	TodayCount     int    `json:"today_count"`
}
