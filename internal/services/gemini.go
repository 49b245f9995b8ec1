package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"alfredoptarigan/consultant-matcher/internal/logger"
)

const maxEmbedChars = 40000

type GeminiService interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, prompt string, strict bool) (string, error)
}

type geminiService struct {
	client     *genai.Client
	modelName  string
	embedModel string
	maxRetries int
	log        *zap.Logger
}

func NewGeminiService(ctx context.Context, apiKey, model, embedModel string, maxRetries int, log *zap.Logger) (GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if maxRetries < 1 {
		maxRetries = 1
	}

	return &geminiService{
		client:     client,
		modelName:  model,
		embedModel: embedModel,
		maxRetries: maxRetries,
		log:        logger.OrNop(log).With(zap.String("ai_provider", "gemini"), zap.String("ai_model", model)),
	}, nil
}

// Encode implements GeminiService.
func (g *geminiService) Encode(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxEmbedChars {
		text = string([]rune(text)[:min(utf8.RuneCountInString(text), maxEmbedChars)])
	}

	var values []float32
	err := g.withRetry(ctx, "embed", func() error {
		result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
		if err != nil {
			return fmt.Errorf("failed to generate embedding: %w", err)
		}
		if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
			return fmt.Errorf("empty embedding result")
		}
		values = result.Embeddings[0].Values
		return nil
	})
	return values, err
}

// Complete implements GeminiService. An answer without text is returned as an
// empty string so the caller can apply its own fallback.
func (g *geminiService) Complete(ctx context.Context, prompt string, strict bool) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.3),
		MaxOutputTokens: 4096,
	}
	if strict {
		config.Temperature = genai.Ptr[float32](0)
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = scoringSchema
	}

	var text string
	err := g.withRetry(ctx, "generate", func() error {
		resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
		if err != nil {
			return fmt.Errorf("failed to generate text: %w", err)
		}
		if resp == nil {
			return fmt.Errorf("no response generated (nil response)")
		}
		text = resp.Text()
		if text == "" {
			g.log.Warn("gemini response without text", zap.Int("candidates", len(resp.Candidates)), zap.Bool("strict", strict))
		}
		return nil
	})
	return text, err
}

func (g *geminiService) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if attempt == g.maxRetries {
			break
		}

		g.log.Warn("gemini call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", g.maxRetries, lastErr)
}

var scoringSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"profile_id":      {Type: genai.TypeString},
			"score":           {Type: genai.TypeNumber},
			"matching_skills": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"missing_skills":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"reasoning":       {Type: genai.TypeString},
		},
		Required: []string{"profile_id", "score", "matching_skills", "missing_skills", "reasoning"},
	},
}
