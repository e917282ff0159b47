package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sagacraft/saga-engine/pkg/models"
)

// OpenAIConfig holds configuration for the OpenAI-compatible provider.
type OpenAIConfig struct {
	Endpoint       string // Base URL, e.g. "https://api.openai.com/v1"
	Model          string // Chat model, e.g. "gpt-4o"
	EmbeddingModel string // Embedding model, e.g. "text-embedding-3-small"
	APIKey         string // Optional for local endpoints
	Timeout        time.Duration
}

// OpenAIProvider evaluates entity pairs against any OpenAI-compatible
// endpoint. The chat channel estimates content signals and a relationship
// recommendation; the embedding channel measures semantic similarity.
type OpenAIProvider struct {
	client         *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
	logger         *zap.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider backed by an OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
		logger:         logger.Named("evidence-openai"),
	}, nil
}

// Model returns the chat model identifier.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Evaluate implements Provider. Each channel fails independently: losing the
// embedding only downgrades the method, losing both channels is an error.
func (p *OpenAIProvider) Evaluate(ctx context.Context, source, target EntityRef, saga SagaContext) (*Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	signals := make(map[models.FeatureType]float64)

	similarity, embErr := p.EmbedPair(ctx, source, target)
	if embErr != nil {
		p.logger.Warn("embedding channel failed, omitting semantic similarity",
			zap.Int64("source_entity_id", source.ID),
			zap.Int64("target_entity_id", target.ID),
			zap.Error(embErr))
	} else {
		signals[models.FeatureTypeSemanticSimilarity] = similarity
	}

	payload, chatErr := p.contentSignals(ctx, source, target, saga)
	if chatErr != nil {
		p.logger.Warn("chat channel failed, omitting content signals",
			zap.Int64("source_entity_id", source.ID),
			zap.Int64("target_entity_id", target.ID),
			zap.Error(chatErr))
	} else {
		payload.mergeInto(signals)
	}

	if embErr != nil && chatErr != nil {
		return nil, classifyMessage(chatErr.Error(), chatErr, p.model)
	}

	eval := &Evaluation{
		RawSignals: signals,
		Method:     models.SuggestionMethodContent,
		Model:      p.model,
	}
	if chatErr == nil {
		eval.SuggestedType = payload.SuggestedType
		eval.SuggestedStrength = payload.SuggestedStrength
		eval.Reasoning = payload.Reasoning
	}
	eval.Method = deriveMethod(chatErr == nil, embErr == nil)
	return eval, nil
}

// EmbedPair embeds both entity descriptions and returns their cosine
// similarity mapped into [0, 1]. It also implements Embedder so providers
// without an embedding API can borrow this channel.
func (p *OpenAIProvider) EmbedPair(ctx context.Context, source, target EntityRef) (float64, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: []string{embeddingText(source), embeddingText(target)},
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Data) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(resp.Data))
	}
	cos := cosineSimilarity(resp.Data[0].Embedding, resp.Data[1].Embedding)
	// Cosine lands in [-1, 1]; signals are raw but non-negative.
	return (cos + 1) / 2, nil
}

func embeddingText(e EntityRef) string {
	parts := []string{e.Name}
	if e.Kind != "" {
		parts = append(parts, e.Kind)
	}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	return strings.Join(parts, ". ")
}

// contentSignals asks the chat model for raw signal estimates and a
// recommendation.
func (p *OpenAIProvider) contentSignals(ctx context.Context, source, target EntityRef, saga SagaContext) (*evaluationPayload, error) {
	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: pairEvaluationSystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: BuildPairEvaluationPrompt(source, target, saga)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	p.logger.Debug("pair evaluation completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return parseEvaluationPayload(resp.Choices[0].Message.Content)
}

// cosineSimilarity computes the cosine of the angle between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
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

// ============================================================================
// Shared Payload Handling
// ============================================================================

// evaluationPayload mirrors the JSON shape both chat providers are prompted
// to produce.
type evaluationPayload struct {
	Signals struct {
		CoOccurrence        *float64 `json:"co_occurrence"`
		TimelineProximity   *float64 `json:"timeline_proximity"`
		SharedLocation      *float64 `json:"shared_location"`
		SharedFaction       *float64 `json:"shared_faction"`
		AttributeSimilarity *float64 `json:"attribute_similarity"`
		NetworkCentrality   *float64 `json:"network_centrality"`
	} `json:"signals"`
	SuggestedType     string `json:"suggested_type"`
	SuggestedStrength *int   `json:"suggested_strength"`
	Reasoning         string `json:"reasoning"`
}

// parseEvaluationPayload extracts and decodes the payload from a raw model
// response.
func parseEvaluationPayload(response string) (*evaluationPayload, error) {
	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return nil, NewError(ErrorTypeInvalidResponse, "response contained no JSON", false, err)
	}
	var payload evaluationPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, NewError(ErrorTypeInvalidResponse, "response JSON did not match the expected shape", false, err)
	}
	return &payload, nil
}

// mergeInto copies present, finite signals into the raw-signal map. A signal
// the model omitted or mangled is dropped, never zero-filled.
func (p *evaluationPayload) mergeInto(signals map[models.FeatureType]float64) {
	put := func(t models.FeatureType, v *float64) {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return
		}
		signals[t] = *v
	}
	put(models.FeatureTypeCoOccurrence, p.Signals.CoOccurrence)
	put(models.FeatureTypeTimelineProximity, p.Signals.TimelineProximity)
	put(models.FeatureTypeSharedLocation, p.Signals.SharedLocation)
	put(models.FeatureTypeSharedFaction, p.Signals.SharedFaction)
	put(models.FeatureTypeAttributeSimilarity, p.Signals.AttributeSimilarity)
	put(models.FeatureTypeNetworkCentrality, p.Signals.NetworkCentrality)
}

// deriveMethod maps channel availability to the suggestion method: both
// channels corroborating is hybrid, the embedding channel alone is semantic,
// content signals alone is content.
func deriveMethod(hasContent, hasSemantic bool) models.SuggestionMethod {
	switch {
	case hasContent && hasSemantic:
		return models.SuggestionMethodHybrid
	case hasSemantic:
		return models.SuggestionMethodSemantic
	default:
		return models.SuggestionMethodContent
	}
}
