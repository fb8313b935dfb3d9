package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/prometheus"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const previewLength = 500

var (
	ErrGenerationFailed   = errors.New("failed to generate analysis")
	ErrMissingDescription = errors.New("description is required")
	ErrEmptyCompletion    = errors.New("completion has no content")
)

// ParseError reports model output that is not a JSON object.
type ParseError struct {
	Preview string
	Err     error
}

func (parseError *ParseError) Error() string {
	return "failed to parse analysis response: " + parseError.Err.Error()
}

func (parseError *ParseError) Unwrap() error {
	return parseError.Err
}

type Settings struct {
	BaseURL             string
	APIKey              string
	Model               string
	Organization        string
	Timeout             time.Duration
	Temperature         float64
	MaxTokens           int64
	PromptMaxTokens     int64
	RetryAttempts       uint
	RetryBackoffMin     time.Duration
	RetryBackoffMax     time.Duration
	IntervalCB          uint32
	ConsecutiveFailures uint32
}

type Client struct {
	Client         *openai.Client
	Settings       Settings
	CircuitBreaker *gobreaker.CircuitBreaker[string]
}

func NewClient() *Client {
	return NewClientWithSettings(Settings{
		BaseURL:             config.Conf.OpenAIBaseURL,
		APIKey:              config.Conf.OpenAIAPIKey,
		Model:               config.Conf.OpenAIModel,
		Organization:        config.Conf.AnalysisOrganization,
		Timeout:             time.Duration(config.Conf.OpenAITimeout) * time.Second,
		Temperature:         config.Conf.OpenAITemperature,
		MaxTokens:           config.Conf.OpenAIMaxTokens,
		PromptMaxTokens:     config.Conf.OpenAIPromptMaxTokens,
		RetryAttempts:       config.Conf.OpenAIRetryMaxAttempts,
		RetryBackoffMin:     time.Duration(config.Conf.OpenAIRetryBackoffMin) * time.Second,
		RetryBackoffMax:     time.Duration(config.Conf.OpenAIRetryBackoffMax) * time.Second,
		IntervalCB:          config.Conf.OpenAIIntervalCB,
		ConsecutiveFailures: config.Conf.OpenAIConsecutiveFailuresCB,
	})
}

func NewClientWithSettings(settings Settings) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(settings.APIKey),
		option.WithBaseURL(settings.BaseURL),
		option.WithRequestTimeout(settings.Timeout),
		option.WithMaxRetries(0),
	}

	client := openai.NewClient(opts...)

	cbSettings := circuitbreak.NewSettings(
		"LLMClient",
		circuitbreak.LLMService,
		settings.IntervalCB,
		settings.ConsecutiveFailures,
	)
	// Client errors say nothing about the health of the service.
	cbSettings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled) || !retryable(err)
	}

	return &Client{
		Client:         &client,
		Settings:       settings,
		CircuitBreaker: gobreaker.NewCircuitBreaker[string](cbSettings),
	}
}

// Analyze asks the model for a structured assessment of transcript.
func (client *Client) Analyze(ctx context.Context, transcript string) (*Analysis, error) {
	data := analysisPromptData{Organization: client.Settings.Organization, Transcript: transcript}

	system, err := render("analysis_system.tmpl", data)
	if err != nil {
		return nil, err
	}

	user, err := render("analysis_user.tmpl", data)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(client.Settings.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(client.Settings.Temperature),
		MaxTokens:   openai.Int(client.Settings.MaxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	content, err := client.complete(ctx, "analysis", params)
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("Analysis response received", zap.Int("content_length", len(content)))

	return ParseAnalysis(content)
}

// ParseAnalysis decodes model output. The output must be a JSON object.
func ParseAnalysis(content string) (*Analysis, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, &ParseError{Preview: Preview(content), Err: errors.New("response is not a JSON object")}
	}

	var analysis Analysis

	err := json.Unmarshal([]byte(trimmed), &analysis)
	if err != nil {
		logging.Logger.Error("[ParseAnalysis] Failed to parse model response",
			zap.String("error", err.Error()),
			zap.String("preview", Preview(content)),
		)

		return nil, &ParseError{Preview: Preview(content), Err: err}
	}

	return &analysis, nil
}

// GenerateAgentPrompt writes an Arabic voice-agent script for a call scenario.
func (client *Client) GenerateAgentPrompt(ctx context.Context, description, scenarioType string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", ErrMissingDescription
	}

	if strings.TrimSpace(scenarioType) == "" {
		scenarioType = defaultScenarioType
	}

	data := agentPromptData{
		Organization: client.Settings.Organization,
		ScenarioType: scenarioType,
		Description:  description,
	}

	system, err := render("agent_system.tmpl", data)
	if err != nil {
		return "", err
	}

	user, err := render("agent_user.tmpl", data)
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(client.Settings.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(client.Settings.Temperature),
		MaxTokens:   openai.Int(client.Settings.PromptMaxTokens),
	}

	return client.complete(ctx, "agent_prompt", params)
}

func (client *Client) complete(ctx context.Context, operation string, params openai.ChatCompletionNewParams) (string, error) {
	start := time.Now()

	content, err := client.CircuitBreaker.Execute(func() (string, error) {
		return client.doCompletion(ctx, operation, params)
	})

	prometheus.LLMRequestDuration.WithLabelValues(operation).Observe(prometheus.Since(start))

	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	return content, nil
}

func (client *Client) doCompletion(
	ctx context.Context,
	operation string,
	params openai.ChatCompletionNewParams,
) (string, error) {
	var content string

	err := retry.Do(
		func() error {
			completion, err := client.Client.Chat.Completions.New(ctx, params)
			if err != nil {
				logging.Logger.Warn("[doCompletion] Chat completion request failed",
					zap.String("operation", operation),
					zap.String("error", err.Error()),
				)

				return err
			}

			if len(completion.Choices) == 0 {
				return ErrEmptyCompletion
			}

			content = completion.Choices[0].Message.Content

			return nil
		},
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.Attempts(max(client.Settings.RetryAttempts, 1)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(client.Settings.RetryBackoffMin),
		retry.MaxDelay(client.Settings.RetryBackoffMax),
	)
	if err != nil {
		logging.Logger.Error("Chat completion failed after all retry attempts",
			zap.String("operation", operation),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	return content, nil
}

// retryable is true for transport failures, rate limits and server errors.
func retryable(err error) bool {
	if errors.Is(err, ErrEmptyCompletion) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}

	return true
}

// Preview returns at most the first 500 characters of content.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}

	return string([]rune(content)[:previewLength])
}

// Ping lists the provider's models, bypassing the breaker.
func (client *Client) Ping(ctx context.Context) error {
	_, err := client.Client.Models.List(ctx)
	return err
}
