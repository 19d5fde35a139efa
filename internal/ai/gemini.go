package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements GuideProvider using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider initializes a new Gemini client.
// apiKey should be provided from environment variables.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Use Gemini 2.0 Flash for low latency and cost efficiency.
	model := client.GenerativeModel("gemini-2.0-flash")

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"

	// Narrations should read warmly but stay grounded in the catalog facts.
	model.SetTemperature(0.6)

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() {
	p.client.Close()
}

// SiteIntro generates a spoken-guide introduction for one waypoint.
func (p *GeminiProvider) SiteIntro(ctx context.Context, req SiteRequest) (*SiteIntro, error) {
	prompt := buildGuidePrompt(req)

	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	// Extract text from the response parts.
	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}

	// Clean up potential markdown formatting (though json mode should handle this, safety first).
	cleanJSON := cleanJSONString(responseText.String())

	var result SiteIntro
	if err := json.Unmarshal([]byte(cleanJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, cleanJSON)
	}

	return &result, nil
}

// buildGuidePrompt constructs the instructions for the AI.
func buildGuidePrompt(req SiteRequest) string {
	lang := req.Language
	if lang == "" {
		lang = "zh-TW"
	}
	nameLocal := req.NameLocal
	if nameLocal == "" {
		nameLocal = "UNKNOWN"
	}
	description := req.Description
	if description == "" {
		description = "NONE"
	}

	return fmt.Sprintf(`Role: You are a calm, knowledgeable on-site guide for a Buddhist pilgrimage trail.
Site:
- Name: %s
- Local Name: %s
- Catalog Facts: %s

Task: Write a narration a visitor hears while standing at this site.

RULES:
1. Write in language "%s".
2. Ground every claim in the Catalog Facts above. If the facts are thin, speak about the atmosphere and general Buddhist practice instead of inventing history.
3. Keep the body to 2-3 short paragraphs suitable for text-to-speech.
4. Etiquette must be concrete (dress, photography, silence, offerings), not generic.

Respond with JSON exactly matching:
{"title": "...", "body": "...", "etiquette": "..."}`, req.Name, nameLocal, description, lang)
}

// cleanJSONString strips markdown code fences the model may wrap around JSON.
func cleanJSONString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
