package coverscan

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini model used when none is configured
const DefaultModel = "gemini-1.5-flash"

const coverPrompt = `You are looking at the cover of a book.
Read the cover and answer with one JSON object with the keys
"title" (string), "subtitle" (string), "authors" (array of strings, each "First Last"),
"isbn" (string, digits only), "year" (number) and "publisher" (string).
Use an empty string, empty array or 0 for anything not printed on the cover.
Do not guess.`

// GeminiClient reads covers with a Gemini model
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// Gemini returns a factory opening GeminiClients for modelName
func Gemini(modelName string) ModelFactory {
	if modelName == "" {
		modelName = DefaultModel
	}
	return func(ctx context.Context, apiKey string) (Model, error) {
		return NewGeminiClient(ctx, apiKey, modelName)
	}
}

// NewGeminiClient creates a client for one API key
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key must not be empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)

	return &GeminiClient{client: client, model: model, name: modelName}, nil
}

// Describe sends the cover with the extraction prompt and returns the raw
// JSON answer
func (c *GeminiClient) Describe(ctx context.Context, img *Image) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.ImageData(img.Format(), img.Data), genai.Text(coverPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from gemini")
	}
	return b.String(), nil
}

func (c *GeminiClient) Name() string {
	return c.name
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}
