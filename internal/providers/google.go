package providers

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// GoogleClient summarizes through the Gemini API using the Google Gen AI SDK.
type GoogleClient struct {
	client *genai.Client
}

// NewGoogleClient creates a Gemini summarization client.
func NewGoogleClient(apiKey string) (*GoogleClient, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GoogleClient{client: client}, nil
}

// Name implements Client.
func (c *GoogleClient) Name() string { return "google" }

// Summarize implements Client.
func (c *GoogleClient) Summarize(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		MaxOutputTokens: MaxSummaryTokens,
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("google: empty generation response")
	}
	return text, nil
}
