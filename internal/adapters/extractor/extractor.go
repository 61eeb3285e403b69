// Package extractor reads structured fields from invoice documents (PDF)
// with a generative model.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
)

var (
	// ErrNoAPIKey is returned when the selected provider has no key.
	ErrNoAPIKey = errors.New("extractor: no API key configured")

	// ErrEmptyDocument is returned for empty uploads.
	ErrEmptyDocument = errors.New("extractor: empty document")

	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("extractor: empty response from model")
)

// Extractor turns an invoice document into InvoiceData
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (*InvoiceData, error)
}

// InvoiceData is what the model reads off an invoice. Amounts are zero when
// absent.
type InvoiceData struct {
	SupplierName string          `json:"supplier_name"`
	InvoiceRef   string          `json:"invoice_ref"`
	InvoiceDate  string          `json:"invoice_date"` // DD/MM/YYYY as printed
	AmountHT     decimal.Decimal `json:"amount_ht"`
	AmountTTC    decimal.Decimal `json:"amount_ttc"`
	TVAAmount    decimal.Decimal `json:"tva_amount"`
	TVARate      decimal.Decimal `json:"tva_rate"`
	Address      string          `json:"address"`
	ZipCode      string          `json:"zip_code"`
	Town         string          `json:"town"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	Description  string          `json:"description"`
	PaymentTerms string          `json:"payment_terms"`
}

const prompt = `Read this invoice and extract the following fields as strict JSON:
{
  "supplier_name": "supplier (issuer) name",
  "invoice_ref": "invoice number",
  "invoice_date": "date as DD/MM/YYYY",
  "amount_ht": net amount excluding tax as a number,
  "amount_ttc": gross amount including tax as a number,
  "tva_amount": VAT amount as a number,
  "tva_rate": VAT rate in percent as a number,
  "address": "supplier street address",
  "zip_code": "postal code",
  "town": "town",
  "email": "email if present",
  "phone": "phone if present",
  "description": "short description of goods or services",
  "payment_terms": "payment terms if present"
}
Use null for anything not on the document. Answer with the JSON object only.`

// New builds the extractor for the configured provider (gemini or openai).
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Extractor, error) {
	key := cfg.GetAPIKey(cfg.Extractor.APIKey, cfg.ExtractorKeyEnvVars()...)
	if key == "" {
		return nil, ErrNoAPIKey
	}

	switch strings.ToLower(cfg.Extractor.Provider) {
	case "openai":
		return NewOpenAIExtractor(key, cfg.Extractor.Model, logger), nil
	case "", "gemini":
		return NewGeminiExtractor(ctx, key, cfg.Extractor.Model, logger)
	default:
		return nil, fmt.Errorf("unknown extractor provider %q", cfg.Extractor.Provider)
	}
}

// mimeType sniffs scanned images; everything else is sent as PDF.
func mimeType(data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "application/pdf"
}

// unwrapJSON strips markdown fences and any prose around the JSON object.
func unwrapJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// decodeInvoice parses the model's JSON. Numbers may come back as JSON
// numbers or as strings with a comma decimal mark.
func decodeInvoice(raw string) (*InvoiceData, error) {
	var fields struct {
		SupplierName *string         `json:"supplier_name"`
		InvoiceRef   json.RawMessage `json:"invoice_ref"`
		InvoiceDate  *string         `json:"invoice_date"`
		AmountHT     json.RawMessage `json:"amount_ht"`
		AmountTTC    json.RawMessage `json:"amount_ttc"`
		TVAAmount    json.RawMessage `json:"tva_amount"`
		TVARate      json.RawMessage `json:"tva_rate"`
		Address      *string         `json:"address"`
		ZipCode      json.RawMessage `json:"zip_code"`
		Town         *string         `json:"town"`
		Email        *string         `json:"email"`
		Phone        json.RawMessage `json:"phone"`
		Description  *string         `json:"description"`
		PaymentTerms *string         `json:"payment_terms"`
	}
	if err := json.Unmarshal([]byte(unwrapJSON(raw)), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	return &InvoiceData{
		SupplierName: str(fields.SupplierName),
		InvoiceRef:   text(fields.InvoiceRef),
		InvoiceDate:  str(fields.InvoiceDate),
		AmountHT:     number(fields.AmountHT),
		AmountTTC:    number(fields.AmountTTC),
		TVAAmount:    number(fields.TVAAmount),
		TVARate:      number(fields.TVARate),
		Address:      str(fields.Address),
		ZipCode:      text(fields.ZipCode),
		Town:         str(fields.Town),
		Email:        str(fields.Email),
		Phone:        text(fields.Phone),
		Description:  str(fields.Description),
		PaymentTerms: str(fields.PaymentTerms),
	}, nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// text reads a field that models sometimes emit as a number (zip codes,
// phone numbers, numeric invoice refs).
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}

func number(raw json.RawMessage) decimal.Decimal {
	s := text(raw)
	if s == "" {
		return decimal.Zero
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", "€", "", "%", "").Replace(s)
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
