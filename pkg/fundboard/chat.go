package fundboard

import (
	"context"
	"strings"
)

const (
	emptyChatReply     = "No response from AI"
	maxChatMessageSize = 32 << 10
)

// ChatReply is the assistant side of one chat turn.
type ChatReply struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat runs one chat turn with the user's active model. The user message and
// reply are saved to chat history on a best-effort basis.
func (c *Core) Chat(ctx context.Context, userID int64, message string) (*ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, invalidInput("message is required")
	}
	if len(message) > maxChatMessageSize {
		return nil, invalidInput("message is too long")
	}

	settings, err := c.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	model, err := ResolveActiveModel(settings)
	if err != nil {
		return nil, err
	}

	result, err := llmComplete(ctx, CompletionRequest{
		Model:       model,
		Messages:    BuildChatMessages(settings.SystemPrompt, message),
		Temperature: temperature(defaultLLMTemperature),
		Timeout:     c.chatTimeout,
		Logger:      c.logger.With("user_id", userID),
	})
	if err != nil {
		c.logger.Error("chat: llm call failed", "user_id", userID, "err", err)
		return nil, err
	}

	reply := result.Content
	if strings.TrimSpace(reply) == "" {
		reply = emptyChatReply
	}

	c.saveChatTurn(ctx, userID, message, reply)
	return &ChatReply{Role: RoleAssistant, Content: reply}, nil
}

// BuildChatMessages returns [system?, user]; the system message is present
// only when systemPrompt is non-empty.
func BuildChatMessages(systemPrompt, message string) []PromptMessage {
	messages := make([]PromptMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, PromptMessage{Role: RoleSystem, Content: systemPrompt})
	}
	return append(messages, PromptMessage{Role: RoleUser, Content: message})
}

// saveChatTurn persists the turn; failures are logged and dropped.
func (c *Core) saveChatTurn(ctx context.Context, userID int64, message, reply string) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("chat: saving history panicked", "user_id", userID, "panic", p)
		}
	}()
	if err := c.appendChatTurn(context.WithoutCancel(ctx), userID, message, reply); err != nil {
		c.logger.Warn("chat: failed to save chat history", "user_id", userID, "err", err)
	}
}
