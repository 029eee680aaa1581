// Package providers implements the summarization clients for Anthropic,
// OpenAI and Google models. Each client exposes the narrow Summarize surface
// the context manager consumes; streaming chat lives outside this core.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/quill/internal/models"
)

// Client generates a summary from a prompt on a specific model.
type Client interface {
	// Summarize runs the prompt against the model and returns the text.
	Summarize(ctx context.Context, model, prompt string) (string, error)

	// Name identifies the provider.
	Name() string
}

// MaxSummaryTokens bounds summary responses across providers.
const MaxSummaryTokens = 2048

// CredentialSource resolves an API key for a provider name.
type CredentialSource func(provider string) (string, error)

// StaticCredentials resolves keys from a fixed map.
func StaticCredentials(keys map[string]string) CredentialSource {
	return func(provider string) (string, error) {
		key, ok := keys[provider]
		if !ok || strings.TrimSpace(key) == "" {
			return "", fmt.Errorf("no credential for provider %q", provider)
		}
		return key, nil
	}
}

// Factory builds per-model clients, resolving the provider through the model
// catalog and credentials through the source. Clients are cached per
// provider.
type Factory struct {
	catalog *models.Catalog
	creds   CredentialSource
	cache   map[models.Provider]Client
}

// NewFactory creates a client factory.
func NewFactory(catalog *models.Catalog, creds CredentialSource) *Factory {
	if catalog == nil {
		catalog = models.DefaultCatalog
	}
	return &Factory{
		catalog: catalog,
		creds:   creds,
		cache:   make(map[models.Provider]Client),
	}
}

// ClientFor resolves the client for a model id.
func (f *Factory) ClientFor(model string) (Client, error) {
	provider, ok := f.catalog.ProviderFor(model)
	if !ok {
		return nil, fmt.Errorf("unknown provider for model %q", model)
	}
	if client, ok := f.cache[provider]; ok {
		return client, nil
	}

	key, err := f.creds(string(provider))
	if err != nil {
		return nil, err
	}

	var client Client
	switch provider {
	case models.ProviderAnthropic:
		client, err = NewAnthropicClient(key)
	case models.ProviderOpenAI:
		client, err = NewOpenAIClient(key)
	case models.ProviderGoogle:
		client, err = NewGoogleClient(key)
	default:
		return nil, fmt.Errorf("no client implementation for provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	f.cache[provider] = client
	return client, nil
}
