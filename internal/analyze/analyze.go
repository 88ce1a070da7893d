// Package analyze wraps the document-understanding model behind the narrow
// capability the pipeline consumes. Analysis is best-effort: expected no-op
// conditions return (nil, nil), real failures return an error the caller
// logs without failing the document.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/vertexai/genai"

	"github.com/ocrcheck/pipeline/internal/models"
)

const (
	// Inputs shorter than this carry too little signal to classify.
	minTextLength = 10

	// Aggregated OCR text is truncated before submission to stay inside the
	// model's context window.
	maxTextLength = 15000
)

const systemPrompt = `You are an expert analyst for scanned business documents.
You are given the OCR text of a document (and sometimes the first page image).
Extract the requested information and respond with a single JSON object only.

{
  "category": "one of: contract, invoice, quote, delivery-note, report, minutes, notice, application, certificate, resume, other",
  "category_confidence": 0.95,
  "summary": "2-3 sentence summary of the document",
  "tags": ["tag1", "tag2", "tag3"],
  "entities": {
    "people": ["name1"],
    "organizations": ["org1"],
    "dates": ["2024-01-01"],
    "amounts": ["$1,000"],
    "addresses": ["address1"],
    "references": ["document or reference numbers"]
  },
  "language": "en",
  "document_date": "document date in YYYY-MM-DD, or null if unknown",
  "key_points": ["key point 1", "key point 2"]
}`

const textPrompt = `Below is the OCR text of a scanned document. Analyze it and
respond in the specified JSON format. Where the OCR text is garbled, infer the
intended content from context.

--- OCR TEXT ---
%s
--- END OF TEXT ---`

const visionPrompt = `Analyze this document image. The OCR text below is
provided as a reference; prefer the image where they disagree. Respond in the
specified JSON format.

--- OCR TEXT (reference) ---
%s
--- END OF TEXT ---`

// Config holds the analyzer settings. An unset ProjectID or Enabled=false
// yields a disabled analyzer whose Analyze is a no-op.
type Config struct {
	Enabled   bool
	ProjectID string
	Region    string
	Model     string
}

// Analyzer calls the generative model and parses its structured response.
type Analyzer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// New constructs an Analyzer. Disabled configuration is not an error: the
// returned Analyzer simply skips every request.
func New(ctx context.Context, cfg Config) (*Analyzer, error) {
	if !cfg.Enabled || cfg.ProjectID == "" {
		slog.Info("document analysis disabled", "enabled", cfg.Enabled, "projectConfigured", cfg.ProjectID != "")
		return &Analyzer{}, nil
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = "gemini-1.5-pro"
	}
	model := client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		// Force JSON output; the parser rejects anything else anyway.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &Analyzer{client: client, model: model}, nil
}

// Analyze submits the aggregated document text, preferring an image-grounded
// request when a first page raster is available. Returns (nil, nil) for the
// expected skip conditions: analyzer disabled or text too short.
func (a *Analyzer) Analyze(ctx context.Context, text string, pageImage []byte) (*models.AnalysisResult, error) {
	if a.model == nil {
		return nil, nil
	}
	if len(strings.TrimSpace(text)) < minTextLength {
		slog.Info("analysis skipped, text too short", "length", len(text))
		return nil, nil
	}

	text = truncateText(text, maxTextLength)

	var parts []genai.Part
	if len(pageImage) > 0 {
		parts = []genai.Part{
			genai.Blob{MIMEType: "image/png", Data: pageImage},
			genai.Text(fmt.Sprintf(visionPrompt, text)),
		}
	} else {
		parts = []genai.Part{genai.Text(fmt.Sprintf(textPrompt, text))}
	}

	resp, err := a.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := extractText(resp)
	if raw == "" {
		return nil, fmt.Errorf("empty model response")
	}
	return parseResult(raw)
}

func (a *Analyzer) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// extractText concatenates the text parts of the first candidate, stripping
// markdown fences the model sometimes wraps around JSON.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return stripFences(sb.String())
}

// truncateText caps the text at limit bytes without splitting a multi-byte
// rune at the cut.
func truncateText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseResult decodes the model response into the closed metadata schema.
// A response that is not valid JSON or lacks the category discriminator is a
// failure; the caller continues without metadata.
func parseResult(raw string) (*models.AnalysisResult, error) {
	var res models.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	if res.Category == "" {
		return nil, fmt.Errorf("analysis response missing category field")
	}
	res.Raw = json.RawMessage(raw)
	return &res, nil
}
