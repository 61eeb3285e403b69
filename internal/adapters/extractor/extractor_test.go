package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/eshaffer321/bankrecon/internal/domain/labels"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
)

var pdf = []byte("%PDF-1.4 fake invoice")

const modelJSON = `{
  "supplier_name": "ACME SARL",
  "invoice_ref": "FAC25010042",
  "invoice_date": "15/01/2025",
  "amount_ht": 1000,
  "amount_ttc": "1 200,00",
  "tva_amount": "200.00",
  "tva_rate": 20,
  "address": "1 rue de la Paix",
  "zip_code": 75002,
  "town": "Paris",
  "email": null,
  "phone": "+33 1 23 45 67 89",
  "description": "Consulting",
  "payment_terms": "30 days"
}`

func TestUnwrapJSON(t *testing.T) {
	tests := map[string]string{
		"plain":         `{"a":1}`,
		"json fence":    "```json\n{\"a\":1}\n```",
		"bare fence":    "```\n{\"a\":1}\n```",
		"prose around":  "Here is the data:\n{\"a\":1}\nHope it helps",
		"single line":   "```json{\"a\":1}```",
		"padded":        "  \n{\"a\":1}\n  ",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, `{"a":1}`, unwrapJSON(in))
		})
	}
}

func TestDecodeInvoice(t *testing.T) {
	inv, err := decodeInvoice("```json\n" + modelJSON + "\n```")

	require.NoError(t, err)
	assert.Equal(t, "ACME SARL", inv.SupplierName)
	assert.Equal(t, "FAC25010042", inv.InvoiceRef)
	assert.True(t, decimal.NewFromInt(1000).Equal(inv.AmountHT))
	assert.True(t, decimal.NewFromInt(1200).Equal(inv.AmountTTC))
	assert.True(t, decimal.NewFromInt(200).Equal(inv.TVAAmount))
	assert.True(t, decimal.NewFromInt(20).Equal(inv.TVARate))
	assert.Equal(t, "75002", inv.ZipCode)
	assert.Equal(t, "", inv.Email)
	assert.Equal(t, "30 days", inv.PaymentTerms)

	_, err = decodeInvoice("I could not read the document")
	assert.Error(t, err)
}

type fakeModels struct {
	text      string
	err       error
	gotModel  string
	gotParts  []*genai.Part
	gotConfig *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotParts = contents[0].Parts
	f.gotConfig = cfg
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestGeminiExtractor(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fake := &fakeModels{text: modelJSON}
		ex := newGeminiExtractor(fake, "", nil)

		inv, err := ex.Extract(context.Background(), "acme.pdf", pdf)

		require.NoError(t, err)
		assert.Equal(t, "ACME SARL", inv.SupplierName)
		assert.Equal(t, DefaultGeminiModel, fake.gotModel)
		require.Len(t, fake.gotParts, 2)
		assert.Equal(t, "application/pdf", fake.gotParts[1].InlineData.MIMEType)
		assert.Equal(t, pdf, fake.gotParts[1].InlineData.Data)
		assert.Equal(t, "application/json", fake.gotConfig.ResponseMIMEType)
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := newGeminiExtractor(&fakeModels{}, "m", nil).Extract(context.Background(), "x.pdf", nil)
		assert.ErrorIs(t, err, ErrEmptyDocument)
	})

	t.Run("empty answer", func(t *testing.T) {
		_, err := newGeminiExtractor(&fakeModels{}, "m", nil).Extract(context.Background(), "x.pdf", pdf)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("api error", func(t *testing.T) {
		_, err := newGeminiExtractor(&fakeModels{err: errors.New("quota")}, "m", nil).Extract(context.Background(), "x.pdf", pdf)
		assert.ErrorContains(t, err, "quota")
	})
}

func TestOpenAIExtractor(t *testing.T) {
	var got ChatCompletionRequest
	var rawContent []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			ChatCompletionRequest
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = body.ChatCompletionRequest
		require.NoError(t, json.Unmarshal(body.Messages[1].Content, &rawContent))

		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": modelJSON}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	ex := NewOpenAIExtractor("sk-test", "", nil)
	ex.baseURL = srv.URL

	inv, err := ex.Extract(context.Background(), "acme.pdf", pdf)

	require.NoError(t, err)
	assert.Equal(t, "ACME SARL", inv.SupplierName)
	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, rawContent, 2)
	assert.Equal(t, "file", rawContent[1]["type"])
	file := rawContent[1]["file"].(map[string]any)
	assert.Equal(t, "acme.pdf", file["filename"])
	assert.True(t, strings.HasPrefix(file["file_data"].(string), "data:application/pdf;base64,"))
}

func TestOpenAIExtractor_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid file","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	ex := NewOpenAIExtractor("sk-test", "gpt-4o", nil)
	ex.baseURL = srv.URL

	_, err := ex.Extract(context.Background(), "acme.pdf", pdf)

	assert.ErrorContains(t, err, "Invalid file")
}

func TestNew(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_APIKEY", "")

	cfg := config.Default()
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)

	cfg.Extractor.Provider = "openai"
	cfg.Extractor.APIKey = "sk-test"
	ex, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIExtractor{}, ex)

	cfg.Extractor.Provider = "mistral"
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewPreview(t *testing.T) {
	t.Run("complete invoice", func(t *testing.T) {
		inv, err := decodeInvoice(modelJSON)
		require.NoError(t, err)

		p := NewPreview(inv)

		assert.Equal(t, "FAC2501-0042", p.NormalizedRef)
		require.NotNil(t, p.Period)
		assert.Equal(t, labels.Period{Month: "01", Year: "25"}, *p.Period)
		require.NotNil(t, p.Date)
		assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), *p.Date)
		assert.True(t, decimal.NewFromInt(1200).Equal(p.TotalTTC))
		assert.Empty(t, p.Warnings)
	})

	t.Run("gaps and inconsistent totals", func(t *testing.T) {
		p := NewPreview(&InvoiceData{
			InvoiceDate: "03/2025",
			AmountHT:    decimal.NewFromInt(100),
			TVAAmount:   decimal.NewFromInt(20),
			AmountTTC:   decimal.NewFromInt(130),
		})

		assert.Contains(t, p.Warnings, "supplier name missing")
		assert.Contains(t, p.Warnings, "invoice reference missing")
		assert.Contains(t, p.Warnings, "net plus VAT does not equal gross total")
		assert.Nil(t, p.Period)
	})

	t.Run("gross computed when missing", func(t *testing.T) {
		p := NewPreview(&InvoiceData{
			SupplierName: "X",
			InvoiceRef:   "2025-17",
			InvoiceDate:  "2025-03-04",
			AmountHT:     decimal.NewFromInt(100),
			TVAAmount:    decimal.NewFromInt(20),
		})

		assert.True(t, decimal.NewFromInt(120).Equal(p.TotalTTC))
		require.NotNil(t, p.Period)
		assert.Equal(t, labels.Period{Month: "03", Year: "25"}, *p.Period)
	})
}
