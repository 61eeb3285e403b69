package extractor

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/domain/labels"
	"github.com/eshaffer321/bankrecon/internal/domain/reference"
)

var totalsTolerance = decimal.New(2, -2)

// Preview is extracted invoice data checked and normalized for review
// before anything is written to the ERP.
type Preview struct {
	Invoice       *InvoiceData    `json:"invoice"`
	NormalizedRef string          `json:"normalized_ref,omitempty"`
	Period        *labels.Period  `json:"period,omitempty"`
	Date          *time.Time      `json:"date,omitempty"`
	TotalTTC      decimal.Decimal `json:"total_ttc"`
	Warnings      []string        `json:"warnings,omitempty"`
}

// NewPreview normalizes the reference, reads the billing period from it
// (falling back to the invoice date) and cross-checks the totals.
func NewPreview(inv *InvoiceData) Preview {
	p := Preview{Invoice: inv}
	if inv == nil {
		return p
	}

	if inv.SupplierName == "" {
		p.Warnings = append(p.Warnings, "supplier name missing")
	}
	if inv.InvoiceRef == "" {
		p.Warnings = append(p.Warnings, "invoice reference missing")
	} else {
		p.NormalizedRef = reference.Normalize(inv.InvoiceRef)
	}

	if d, ok := parseInvoiceDate(inv.InvoiceDate); ok {
		p.Date = &d
	} else if inv.InvoiceDate != "" {
		p.Warnings = append(p.Warnings, "unreadable invoice date "+inv.InvoiceDate)
	}

	if period, ok := labels.PeriodFromReference(p.NormalizedRef); ok {
		p.Period = &period
	} else if period, ok := labels.PeriodFromLabel(inv.InvoiceRef); ok {
		p.Period = &period
	} else if p.Date != nil {
		period := labels.PeriodOf(*p.Date)
		p.Period = &period
	}

	computed := inv.AmountHT.Add(inv.TVAAmount)
	switch {
	case inv.AmountTTC.IsZero() && inv.AmountHT.IsZero():
		p.Warnings = append(p.Warnings, "no amounts found")
	case inv.AmountTTC.IsZero():
		p.TotalTTC = computed
	default:
		p.TotalTTC = inv.AmountTTC
		if !inv.AmountHT.IsZero() && inv.AmountTTC.Sub(computed).Abs().GreaterThan(totalsTolerance) {
			p.Warnings = append(p.Warnings, "net plus VAT does not equal gross total")
		}
	}
	return p
}

func parseInvoiceDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"02/01/2006", "2006-01-02", "02-01-2006", "02.01.2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
