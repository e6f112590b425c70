package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ppiankov/astproof/internal/util"
	"github.com/ppiankov/astproof/internal/worker"
)

const predictMaxRetries = 3

// retrySleepFunc is the sleep used between retries (injectable for tests)
var retrySleepFunc = time.Sleep

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
type OpenAIProvider struct {
	name    string
	client  *openai.Client
	config  Config
	limiter *worker.Limiter
	hostKey string
	logger  *zap.Logger
}

// NewOpenAIProvider creates a provider reported under name
func NewOpenAIProvider(name string, config Config, logger *zap.Logger) (*OpenAIProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}

	hostKey, err := worker.HostKey(clientConfig.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &OpenAIProvider{
		name:    name,
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		limiter: worker.NewLimiter(config.RequestsPerSecond, config.Burst),
		hostKey: hostKey,
		logger:  logger,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// IsAvailable checks the endpoint by listing models
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	if err := p.limiter.Wait(ctx, p.hostKey); err != nil {
		return false
	}
	if _, err := p.client.ListModels(ctx); err != nil {
		p.logger.Warn("LLM availability check failed",
			zap.String("provider", p.name),
			zap.String("host", p.hostKey),
			zap.Error(err))
		return false
	}
	return true
}

// Predict asks the model for exclusion candidates in one source file
func (p *OpenAIProvider) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	prompt := req.Prompt
	truncated := false
	if prompt == "" {
		prompt, truncated = BuildPrompt(req.File, req.Source, p.config.MaxSourceBytes)
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.config.Model
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 2000
	}

	chatReq := openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := p.completeWithRetry(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", p.name)
	}

	ids, err := ParseIdentifiers(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.File, err)
	}

	p.logger.Debug("prediction received",
		zap.String("file", req.File),
		zap.String("model", modelName),
		zap.Int("identifiers", len(ids)),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Bool("truncated", truncated))

	return &PredictResponse{
		Identifiers: ids,
		Model:       modelName,
		TokensUsed:  resp.Usage.TotalTokens,
		Truncated:   truncated,
	}, nil
}

// completeWithRetry retries rate limits and server errors with exponential backoff
func (p *OpenAIProvider) completeWithRetry(ctx context.Context, chatReq openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	for attempt := 0; attempt < predictMaxRetries; attempt++ {
		if err := p.limiter.Wait(ctx, p.hostKey); err != nil {
			return resp, err
		}

		resp, err = p.complete(ctx, chatReq)
		if err == nil || !isRetryable(err) {
			return resp, err
		}
		if attempt < predictMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			p.logger.Debug("retrying LLM request", zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(err))
			retrySleepFunc(backoff)
		}
	}
	return resp, err
}

func (p *OpenAIProvider) complete(ctx context.Context, chatReq openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}
	return p.client.CreateChatCompletion(ctx, chatReq)
}

// isRetryable reports transient failures: 429 and 5xx responses
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}
