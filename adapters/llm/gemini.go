package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultMaxTokens      = 2048
	defaultTimeoutSeconds = 60
)

// Config carries the Gemini adapter settings. Zero values fall back to
// documented defaults; only the API key is required.
type Config struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// Gemini implements both repositories.ChatCompleter and
// repositories.VisionAnalyzer over the Gemini API. Each call is a single
// request and a single response; failures surface immediately so the
// caller can degrade the conversation instead of stalling it.
type Gemini struct {
	client  *genai.Client
	logger  *zap.Logger
	model   string
	config  *genai.GenerateContentConfig
	timeout time.Duration
}

func NewGemini(ctx context.Context, cfg Config, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	timeoutSeconds := cfg.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &Gemini{
		client: client,
		logger: logger,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(temperature),
			MaxOutputTokens: int32(maxTokens),
		},
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// Complete sends one chat completion request and returns the reply text.
func (g *Gemini) Complete(ctx context.Context, req repositories.ChatRequest) (string, error) {
	var contents []*genai.Content
	for _, msg := range req.History {
		var role genai.Role = genai.RoleUser
		if msg.Role == repositories.AssistantRole {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Input, genai.RoleUser))

	return g.generate(ctx, systemText(req.SystemPrompt, req.Context), contents)
}

// AnalyzeImage sends one vision request with the image inline.
func (g *Gemini) AnalyzeImage(ctx context.Context, req repositories.VisionRequest) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.ImageData, req.ImageMIME),
		genai.NewPartFromText(req.Input),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	return g.generate(ctx, req.SystemPrompt, contents)
}

func (g *Gemini) generate(ctx context.Context, system string, contents []*genai.Content) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := *g.config
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	start := time.Now()
	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, &config)
	if err != nil {
		return "", &domain.ServiceError{Service: "gemini", Body: err.Error()}
	}
	g.logger.Debug("gemini call completed",
		zap.String("model", g.model),
		zap.Duration("elapsed", time.Since(start)))

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", domain.ErrEmptyResponse
	}
	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", domain.ErrEmptyResponse
	}
	return text, nil
}

func systemText(prompt, contextText string) string {
	if contextText == "" {
		return prompt
	}
	return prompt + "\n\n" + contextText
}
