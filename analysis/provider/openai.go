package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/chat-topics/analysis"
)

const (
	defaultCompletionModel = "gpt-4o-mini"
	defaultEmbeddingModel  = "text-embedding-3-small"
	defaultEmbeddingDim    = 1536
	defaultMaxOutputTokens = 2500
)

func newClient(cfg Config) openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}

// openAICompletion implements analysis.CompletionProvider on the OpenAI
// Responses API.
type openAICompletion struct {
	client          *openai.Client
	model           string
	maxOutputTokens int64
}

func newOpenAICompletion(cfg Config) *openAICompletion {
	model := cfg.Model
	if model == "" {
		model = defaultCompletionModel
	}
	maxTokens := int64(cfg.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}
	client := newClient(cfg)
	return &openAICompletion{
		client:          &client,
		model:           model,
		maxOutputTokens: maxTokens,
	}
}

// Invoke sends the role-tagged prompt segments and returns the output text
// plus usage metadata. Failures come back classified for the retry layer.
func (p *openAICompletion) Invoke(ctx context.Context, prompt analysis.Prompt) (string, analysis.CompletionMeta, error) {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(prompt))
	for _, seg := range prompt {
		items = append(items, responses.ResponseInputItemParamOfMessage(seg.Content, roleFor(seg.Role)))
	}

	params := responses.ResponseNewParams{
		Model:           p.model,
		MaxOutputTokens: openai.Int(p.maxOutputTokens),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: items,
		},
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return "", analysis.CompletionMeta{}, classifyOpenAIError(err)
	}

	meta := analysis.CompletionMeta{
		Model:            string(resp.Model),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	return resp.OutputText(), meta, nil
}

func roleFor(role string) responses.EasyInputMessageRole {
	switch role {
	case "system":
		return responses.EasyInputMessageRoleSystem
	case "developer":
		return responses.EasyInputMessageRoleDeveloper
	case "assistant":
		return responses.EasyInputMessageRoleAssistant
	default:
		return responses.EasyInputMessageRoleUser
	}
}

// openAIEmbedding implements analysis.EmbeddingProvider on the OpenAI
// embeddings endpoint.
type openAIEmbedding struct {
	client *openai.Client
	model  string
	dim    int
}

func newOpenAIEmbedding(cfg Config) *openAIEmbedding {
	model := cfg.EmbeddingModel
	if model == "" {
		model = defaultEmbeddingModel
	}
	dim := cfg.EmbeddingDimension
	if dim <= 0 {
		dim = defaultEmbeddingDim
	}
	client := newClient(cfg)
	return &openAIEmbedding{client: &client, model: model, dim: dim}
}

// Embed returns one vector per input text, in order.
func (p *openAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("Embed: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(out) {
			return nil, fmt.Errorf("Embed: embedding index %d out of range", i)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// Dimension reports the configured vector size.
func (p *openAIEmbedding) Dimension() int { return p.dim }

// classifyOpenAIError maps SDK failures onto the analysis error taxonomy so
// the retry layer can dispatch on class instead of provider details.
func classifyOpenAIError(err error) error {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		// Transport-level failure; let the generic classifier look at it.
		return err
	}

	var class analysis.ErrorClass
	switch {
	case apierr.StatusCode == 401:
		class = analysis.ErrClassAuth
	case apierr.StatusCode == 403:
		class = analysis.ErrClassPermission
	case apierr.StatusCode == 404:
		class = analysis.ErrClassNotFound
	case apierr.StatusCode == 408:
		class = analysis.ErrClassTimeout
	case apierr.StatusCode == 429:
		class = analysis.ErrClassRateLimit
	case apierr.StatusCode >= 500:
		class = analysis.ErrClassServer
	case apierr.StatusCode >= 400:
		class = analysis.ErrClassBadRequest
	default:
		class = analysis.ErrClassUnknown
	}
	return &analysis.ProviderError{Class: class, Err: err}
}
