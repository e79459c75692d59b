package advisory

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel      = "gemini-3-flash-preview"
	DefaultGeminiAPIVersion = "v1beta"
)

// GeminiClient implements Oracle on the hosted generative model.
type GeminiClient struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewGeminiClient builds a client for the Gemini API. An empty baseURL uses
// the SDK default endpoint; tests point it at a local fake.
func NewGeminiClient(ctx context.Context, baseURL, model, apiKey string, log *zap.Logger) (*GeminiClient, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	if log == nil {
		log = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: DefaultGeminiAPIVersion,
		},
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, log: log}, nil
}

func summaryPrompt(offence string) string {
	return fmt.Sprintf(`Explain if "%s" is a bailable offence under Kenyan law (Constitution of Kenya 2010). `+
		`Keep it simple for a family member. Mention typical bail ranges if applicable. `+
		`Format as a brief friendly summary.`, offence)
}

func eligibilityPrompt(offence string) string {
	return fmt.Sprintf(`Is the offence "%s" generally bailable in Kenya? If the bail amount is provided as part of context, `+
		`suggest if it is within a reasonable range for this offence. Answer in a structured JSON.`, offence)
}

var eligibilitySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"isBailable":         {Type: genai.TypeBoolean},
		"reason":             {Type: genai.TypeString},
		"legalReference":     {Type: genai.TypeString},
		"suggestedBailRange": {Type: genai.TypeString},
	},
	Required: []string{"isBailable", "reason", "legalReference"},
}

// =============================================================================
// ORACLE
// =============================================================================

func (c *GeminiClient) Summarize(ctx context.Context, offence string) (string, error) {
	noThinking := int32(0)
	return c.generate(ctx, summaryPrompt(offence), &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: &noThinking},
	})
}

func (c *GeminiClient) AssessEligibility(ctx context.Context, offence string) (Eligibility, error) {
	text, err := c.generate(ctx, eligibilityPrompt(offence), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   eligibilitySchema,
	})
	if err != nil {
		return Eligibility{}, err
	}
	return ParseEligibility([]byte(text))
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("oracle unavailable: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		text.WriteString(p.Text)
	}
	c.log.Debug("oracle answered", zap.String("model", c.model), zap.Int("chars", text.Len()))
	return text.String(), nil
}
