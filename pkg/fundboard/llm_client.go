package fundboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

const (
	defaultAIBaseURL        = "https://api.openai.com/v1"
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultOpenAIModel      = "gpt-3.5-turbo"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
	defaultGeminiModel      = "gemini-2.0-flash"
	defaultAnthropicTokens  = 4096
	defaultLLMTemperature   = 0.7
	analysisLLMTimeout      = 90 * time.Second
	chatLLMTimeout          = 60 * time.Second
	probeLLMTimeout         = 15 * time.Second
	maxPromptDebugLogLength = 2000
)

// PromptMessage is one message sent to a model.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single chat completion call against a user-configured model.
type CompletionRequest struct {
	Model       AIModel
	Messages    []PromptMessage
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
	Logger      *slog.Logger
}

// CompletionResult carries the reply text. Empty Content is a valid result.
type CompletionResult struct {
	Model   string
	Content string
}

var llmComplete = requestCompletion
var anthropicComplete = requestAnthropicCompletion
var geminiComplete = requestGeminiCompletion

func temperature(v float64) *float64 {
	return &v
}

// ResolveCompletionsEndpoint returns {baseURL}/chat/completions. An empty base
// means the OpenAI API; exactly one trailing slash is dropped.
func ResolveCompletionsEndpoint(baseURL string) string {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultAIBaseURL
	}
	base = strings.TrimSuffix(base, "/")
	return base + "/chat/completions"
}

func validateEndpoint(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid baseUrl: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid baseUrl scheme: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("invalid baseUrl host")
	}
	return nil
}

func providerOf(model AIModel) string {
	provider := strings.ToLower(strings.TrimSpace(model.Provider))
	if provider == "" {
		return ProviderOpenAI
	}
	return provider
}

func modelNameOf(model AIModel) string {
	if name := strings.TrimSpace(model.Name); name != "" {
		return name
	}
	switch providerOf(model) {
	case ProviderAnthropic:
		return defaultAnthropicModel
	case ProviderGemini:
		return defaultGeminiModel
	default:
		return defaultOpenAIModel
	}
}

// requestCompletion dispatches on the model's provider and classifies every
// failure as an LLM error carrying the upstream message.
func requestCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	if req.Logger == nil {
		req.Logger = slog.Default()
	}

	var (
		result CompletionResult
		err    error
	)
	switch providerOf(req.Model) {
	case ProviderAnthropic:
		result, err = anthropicComplete(ctx, req)
	case ProviderGemini:
		result, err = geminiComplete(ctx, req)
	case ProviderOpenAI:
		result, err = requestOpenAICompletion(ctx, req)
	default:
		return CompletionResult{}, configurationError("unsupported provider: " + req.Model.Provider)
	}
	if err != nil {
		return CompletionResult{}, llmError(err)
	}
	return result, nil
}

func requestOpenAICompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	endpoint := ResolveCompletionsEndpoint(req.Model.BaseURL)
	if err := validateEndpoint(endpoint); err != nil {
		return CompletionResult{}, configurationError(err.Error())
	}
	model := modelNameOf(req.Model)
	logPromptDebug(req.Logger, endpoint, model, req.Messages)

	client := openai.NewClient(
		openaioption.WithAPIKey(strings.TrimSpace(req.Model.APIKey)),
		openaioption.WithBaseURL(strings.TrimSuffix(endpoint, "chat/completions")),
		openaioption.WithMaxRetries(0),
	)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		req.Logger.Warn("llm request failed", "endpoint", endpoint, "model", model, "duration_ms", time.Since(start).Milliseconds(), "err", err)
		return CompletionResult{}, err
	}
	req.Logger.Info("llm request completed", "endpoint", endpoint, "model", model, "duration_ms", time.Since(start).Milliseconds())

	result := CompletionResult{Model: firstNonEmpty(resp.Model, model)}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
	}
	return result, nil
}

func requestAnthropicCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	model := modelNameOf(req.Model)
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(strings.TrimSpace(req.Model.APIKey)),
		anthropicoption.WithMaxRetries(0),
	}
	endpoint := "https://api.anthropic.com"
	if base := strings.TrimSpace(req.Model.BaseURL); base != "" {
		endpoint = strings.TrimSuffix(base, "/")
		if err := validateEndpoint(endpoint); err != nil {
			return CompletionResult{}, configurationError(err.Error())
		}
		opts = append(opts, anthropicoption.WithBaseURL(endpoint+"/"))
	}
	logPromptDebug(req.Logger, endpoint, model, req.Messages)
	client := anthropic.NewClient(opts...)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResult{}, err
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return CompletionResult{Model: firstNonEmpty(string(msg.Model), model), Content: sb.String()}, nil
}

func requestGeminiCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	model := modelNameOf(req.Model)
	clientConfig, err := buildGeminiClientConfig(req.Model.BaseURL, req.Model.APIKey)
	if err != nil {
		return CompletionResult{}, configurationError(err.Error())
	}
	logPromptDebug(req.Logger, clientConfig.HTTPOptions.BaseURL, model, req.Messages)

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("create gemini client failed: %w", err)
	}

	config := &genai.GenerateContentConfig{}
	var contents []*genai.Content
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	response, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("gemini generate content failed: %w", err)
	}
	return CompletionResult{
		Model:   firstNonEmpty(strings.TrimSpace(response.ModelVersion), model),
		Content: response.Text(),
	}, nil
}

// buildGeminiClientConfig splits a base URL such as
// https://host/prefix/v1beta into the SDK's base URL and API version.
func buildGeminiClientConfig(baseURL, apiKey string) (*genai.ClientConfig, error) {
	endpoint := strings.TrimSpace(baseURL)
	if endpoint == "" {
		endpoint = defaultGeminiBaseURL
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid gemini endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid gemini endpoint scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid gemini endpoint host")
	}

	apiVersion := "v1beta"
	var prefix []string
	path := strings.Trim(parsed.Path, "/")
	if path != "" {
		segments := strings.Split(path, "/")
		prefix = segments
		for idx, segment := range segments {
			if strings.HasPrefix(strings.ToLower(segment), "v1") {
				apiVersion = segment
				prefix = segments[:idx]
				break
			}
		}
	}

	base := fmt.Sprintf("%s://%s/", parsed.Scheme, parsed.Host)
	if joined := strings.Trim(strings.Join(prefix, "/"), "/"); joined != "" {
		base += joined + "/"
	}
	return &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    base,
			APIVersion: apiVersion,
		},
	}, nil
}

// llmError classifies err as ErrCodeLLM unless it is already structured.
func llmError(err error) error {
	var structured *Error
	if errors.As(err, &structured) {
		return err
	}
	return WrapError(ErrCodeLLM, upstreamLLMMessage(err), err)
}

func upstreamLLMMessage(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return strings.TrimSpace(apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "ai upstream timeout; try a faster model or retry later"
	}
	return err.Error()
}

func logPromptDebug(logger *slog.Logger, endpoint, model string, messages []PromptMessage) {
	if logger == nil || !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for i, m := range messages {
		logger.Debug("llm prompt",
			"endpoint", endpoint,
			"model", model,
			"index", i,
			"role", m.Role,
			"content", truncateRunes(m.Content, maxPromptDebugLogLength),
		)
	}
}
