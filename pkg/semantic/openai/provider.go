// Package openai implements the semantic provider contracts on the OpenAI
// API: similarity via embedding cosine, summarization and tagging via chat
// completions.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// embeddingModels maps configurable model names to the client's enum.
var embeddingModels = map[string]openai.EmbeddingModel{
	"text-embedding-ada-002":  openai.AdaEmbeddingV2,
	"text-search-ada-doc-001": openai.AdaSearchDocument,
	"text-similarity-ada-001": openai.AdaSimilarity,
}

// Provider implements semantic.Provider using the OpenAI API.
type Provider struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	chatModel      string
	maxSummaryLen  int
}

// Config is the configuration for the OpenAI semantic provider.
// APIKey: OpenAI API key (required)
// EmbeddingModel: embedding model name, defaults to AdaEmbeddingV2
// ChatModel: chat model for summarize/tagify, defaults to "gpt-4o-mini"
// BaseURL: API base URL, defaults to the OpenAI official address
type Config struct {
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	BaseURL        string
	MaxSummaryLen  int
}

// NewProvider creates an OpenAI-backed semantic provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("semantic/openai: api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	embeddingModel := openai.AdaEmbeddingV2
	if cfg.EmbeddingModel != "" {
		m, ok := embeddingModels[cfg.EmbeddingModel]
		if !ok {
			return nil, fmt.Errorf("semantic/openai: unsupported embedding model %q", cfg.EmbeddingModel)
		}
		embeddingModel = m
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	maxSummaryLen := cfg.MaxSummaryLen
	if maxSummaryLen == 0 {
		maxSummaryLen = 280
	}

	return &Provider{
		client:         openai.NewClientWithConfig(clientCfg),
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
		maxSummaryLen:  maxSummaryLen,
	}, nil
}

// Similarity embeds both texts and returns their cosine similarity mapped
// into [0, 1]. Empty input yields 0 without an API call.
func (p *Provider) Similarity(ctx context.Context, a, b string) (float64, error) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{a, b},
		Model: p.embeddingModel,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic/openai: %w", err)
	}
	if len(resp.Data) < 2 {
		return 0, errors.New("semantic/openai: embedding response incomplete")
	}

	cos := cosine(resp.Data[0].Embedding, resp.Data[1].Embedding)
	// Cosine lands in [-1, 1]; the similarity contract wants [0, 1].
	return math.Max(0, math.Min(1, (cos+1)/2)), nil
}

// Summarize asks the chat model for a single bounded-length summary of the
// texts. An empty input list returns an empty string without an API call.
func (p *Provider) Summarize(ctx context.Context, texts []string) (string, error) {
	var nonEmpty []string
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	if len(nonEmpty) == 0 {
		return "", nil
	}

	prompt := fmt.Sprintf(
		"Condense the following %d memory fragments into one self-contained sentence of at most %d characters. Preserve names, dates, and preferences. Reply with the sentence only.\n\n- %s",
		len(nonEmpty), p.maxSummaryLen, strings.Join(nonEmpty, "\n- "))

	out, err := p.chat(ctx, prompt)
	if err != nil {
		return "", err
	}
	if runes := []rune(out); len(runes) > p.maxSummaryLen {
		out = string(runes[:p.maxSummaryLen])
	}
	return out, nil
}

// Tagify asks the chat model for a comma-separated tag list.
func (p *Provider) Tagify(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(
		"Extract at most 8 short topic tags from the following memory. Reply with the tags only, comma separated, lowercase.\n\n%s", text)

	out, err := p.chat(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, tag := range strings.Split(out, ",") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

func (p *Provider) chat(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.chatModel,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("semantic/openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("semantic/openai: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
