package fundboard

import (
	"context"
	"strings"
	"time"
)

const (
	sentimentNewsQuery = "A股 市场情绪 宏观分析 最新"
	sentimentNewsLimit = 3
)

// SentimentReport is a market-wide sentiment summary.
type SentimentReport struct {
	Model       string     `json:"model"`
	Result      string     `json:"result"`
	Sources     []NewsItem `json:"sources"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// MarketSentiment asks the active model for a market sentiment read based on
// the latest macro headlines, using the user's market sentiment prompt.
func (c *Core) MarketSentiment(ctx context.Context, userID int64) (*SentimentReport, error) {
	settings, err := c.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	searchKey := strings.TrimSpace(settings.SearchAPIKey)
	if searchKey == "" {
		return nil, configurationError("missing search credential: configure the search API key in settings")
	}
	model, err := ResolveActiveModel(settings)
	if err != nil {
		return nil, err
	}

	news := c.searchNewsBestEffort(ctx, NewsQuery{Query: sentimentNewsQuery, APIKey: searchKey, Limit: sentimentNewsLimit})

	result, err := llmComplete(ctx, CompletionRequest{
		Model:       model,
		Messages:    BuildChatMessages(settings.MarketSentimentPrompt, composeSentimentPrompt(news.Items)),
		Temperature: temperature(defaultLLMTemperature),
		Timeout:     c.analysisTimeout,
		Logger:      c.logger.With("user_id", userID),
	})
	if err != nil {
		return nil, err
	}
	reply := result.Content
	if strings.TrimSpace(reply) == "" {
		reply = emptyAnalysisReply
	}
	return &SentimentReport{
		Model:       firstNonEmpty(result.Model, modelNameOf(model)),
		Result:      reply,
		Sources:     news.Items,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
