package fundboard

import (
	"context"
	"errors"
	"strings"
)

const probeMessage = "Hi"

// ConnectionResult reports a successful model probe.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Model   string `json:"model"`
	Reply   string `json:"reply"`
}

// TestConnection sends a tiny prompt to a model configuration that has not
// necessarily been saved yet.
func (c *Core) TestConnection(ctx context.Context, model AIModel) (*ConnectionResult, error) {
	if strings.TrimSpace(model.APIKey) == "" {
		return nil, invalidInput("API Key is required")
	}
	if _, ok := validProviders[strings.ToLower(strings.TrimSpace(model.Provider))]; !ok {
		return nil, invalidInput("unsupported provider: " + model.Provider)
	}

	result, err := llmComplete(ctx, CompletionRequest{
		Model:     model,
		Messages:  []PromptMessage{{Role: RoleUser, Content: probeMessage}},
		MaxTokens: 5,
		Timeout:   c.probeTimeout,
		Logger:    c.logger,
	})
	if err != nil {
		msg := err.Error()
		var structured *Error
		if errors.As(err, &structured) {
			msg = structured.Message
		}
		return nil, WrapError(ErrCodeLLM, "Connection failed: "+msg, err)
	}
	return &ConnectionResult{
		Success: true,
		Message: "Connection successful",
		Model:   firstNonEmpty(result.Model, modelNameOf(model)),
		Reply:   result.Content,
	}, nil
}
