package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// contentGenerator is the part of the genai client the extractor uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor sends the document inline to a Gemini model.
type GeminiExtractor struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

// NewGeminiExtractor creates a Gemini-backed extractor
func NewGeminiExtractor(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGeminiExtractor(client.Models, model, logger), nil
}

func newGeminiExtractor(models contentGenerator, model string, logger *slog.Logger) *GeminiExtractor {
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiExtractor{models: models, model: model, logger: logger}
}

// Extract implements Extractor
func (g *GeminiExtractor) Extract(ctx context.Context, filename string, data []byte) (*InvoiceData, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType(data),
						Data:     data,
					},
				},
			},
		},
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}

	g.logger.Info("extracting invoice", "file", filename, "model", g.model, "bytes", len(data))
	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, ErrEmptyResponse
	}

	inv, err := decodeInvoice(raw)
	if err != nil {
		g.logger.Warn("unparseable model response", "file", filename, "response", truncate(raw, 200))
		return nil, err
	}
	g.logger.Info("invoice extracted", "file", filename, "supplier", inv.SupplierName, "invoice_ref", inv.InvoiceRef)
	return inv, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
