package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/sagacraft/saga-engine/pkg/models"
)

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	Model   string // e.g. "claude-sonnet-4-5"
	APIKey  string
	Timeout time.Duration
}

// AnthropicProvider evaluates entity pairs with the Anthropic Messages API.
// Anthropic has no embedding endpoint, so the semantic channel is delegated to
// an optional Embedder (typically the OpenAI-compatible embedding client);
// without one the provider only ever produces content-method evaluations.
type AnthropicProvider struct {
	client   *anthropic.Client
	model    string
	embedder Embedder
	timeout  time.Duration
	logger   *zap.Logger
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider backed by the Anthropic API.
func NewAnthropicProvider(cfg AnthropicConfig, embedder Embedder, logger *zap.Logger) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &AnthropicProvider{
		client:   anthropic.NewClient(cfg.APIKey),
		model:    cfg.Model,
		embedder: embedder,
		timeout:  cfg.Timeout,
		logger:   logger.Named("evidence-anthropic"),
	}, nil
}

// Model returns the chat model identifier.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Evaluate implements Provider.
func (p *AnthropicProvider) Evaluate(ctx context.Context, source, target EntityRef, saga SagaContext) (*Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	signals := make(map[models.FeatureType]float64)

	embErr := fmt.Errorf("no embedder configured")
	if p.embedder != nil {
		var similarity float64
		similarity, embErr = p.embedder.EmbedPair(ctx, source, target)
		if embErr != nil {
			p.logger.Warn("embedding channel failed, omitting semantic similarity",
				zap.Int64("source_entity_id", source.ID),
				zap.Int64("target_entity_id", target.ID),
				zap.Error(embErr))
		} else {
			signals[models.FeatureTypeSemanticSimilarity] = similarity
		}
	}

	payload, chatErr := p.contentSignals(ctx, source, target, saga)
	if chatErr != nil {
		p.logger.Warn("chat channel failed, omitting content signals",
			zap.Int64("source_entity_id", source.ID),
			zap.Int64("target_entity_id", target.ID),
			zap.Error(chatErr))
		if p.embedder == nil || embErr != nil {
			return nil, classifyMessage(chatErr.Error(), chatErr, p.model)
		}
	} else {
		payload.mergeInto(signals)
	}

	eval := &Evaluation{
		RawSignals: signals,
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

func (p *AnthropicProvider) contentSignals(ctx context.Context, source, target EntityRef, saga SagaContext) (*evaluationPayload, error) {
	prompt := BuildPairEvaluationPrompt(source, target, saga)
	start := time.Now()

	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(p.model),
		System:    pairEvaluationSystemMessage,
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		return nil, err
	}

	text := ""
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text = *block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	p.logger.Debug("pair evaluation completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return parseEvaluationPayload(text)
}
