package fundboard

import (
	"context"
	"strings"
	"time"
)

const (
	analysisNewsLimit    = 5
	analysisNewsKeywords = "基金 净值 基金经理 观点"
	emptyAnalysisReply   = "AI 未返回内容"
)

// FundAnalysisReport is the markdown report produced for one fund. It is not persisted.
type FundAnalysisReport struct {
	FundID      int64     `json:"fundId"`
	FundCode    string    `json:"fundCode"`
	FundName    string    `json:"fundName"`
	Model       string    `json:"model"`
	NewsCount   int       `json:"newsCount"`
	Result      string    `json:"result"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// analysisPlan is everything resolved before any outbound call is made.
type analysisPlan struct {
	model     AIModel
	searchKey string
	fund      *Fund
}

// AnalyzeFund builds an AI analyst report for one of the user's funds.
//
// Steps run sequentially: metrics (fatal on failure), news (best effort),
// prompt, model call.
func (c *Core) AnalyzeFund(ctx context.Context, userID, fundID int64) (*FundAnalysisReport, error) {
	plan, err := c.planFundAnalysis(ctx, userID, fundID)
	if err != nil {
		return nil, err
	}
	logger := c.logger.With("user_id", userID, "fund_id", fundID, "fund_code", plan.fund.FundCode)
	logger.Info("fund analysis started")

	metrics, err := c.market.FundMetrics(ctx, plan.fund.FundCode)
	if err != nil {
		logger.Error("fund analysis: metrics fetch failed", "err", err)
		return nil, WrapError(ErrCodeUpstreamMetrics, "analysis failed: "+err.Error(), err)
	}

	news := c.searchNewsBestEffort(ctx, NewsQuery{
		Query:  FundNewsQuery(plan.fund.FundName),
		APIKey: plan.searchKey,
		Limit:  analysisNewsLimit,
	})

	prompt := ComposeFundAnalysisPrompt(FundAnalysisInput{
		FundName: plan.fund.FundName,
		FundCode: plan.fund.FundCode,
		Metrics:  metrics,
		News:     news.Items,
	})

	result, err := llmComplete(ctx, CompletionRequest{
		Model:       plan.model,
		Messages:    []PromptMessage{{Role: RoleUser, Content: prompt}},
		Temperature: temperature(defaultLLMTemperature),
		Timeout:     c.analysisTimeout,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("fund analysis: llm call failed", "err", err)
		return nil, err
	}

	reply := result.Content
	if strings.TrimSpace(reply) == "" {
		reply = emptyAnalysisReply
	}
	logger.Info("fund analysis completed", "news_count", len(news.Items), "news_degraded", news.Err != nil)
	return &FundAnalysisReport{
		FundID:      plan.fund.ID,
		FundCode:    plan.fund.FundCode,
		FundName:    plan.fund.FundName,
		Model:       firstNonEmpty(result.Model, modelNameOf(plan.model)),
		NewsCount:   len(news.Items),
		Result:      reply,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// planFundAnalysis checks the preconditions in order: search credential,
// usable model, fund ownership.
func (c *Core) planFundAnalysis(ctx context.Context, userID, fundID int64) (*analysisPlan, error) {
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
	fund, err := c.GetFund(ctx, userID, fundID)
	if err != nil {
		return nil, err
	}
	return &analysisPlan{model: model, searchKey: searchKey, fund: fund}, nil
}

// FundNewsQuery is the news search query used for a fund.
func FundNewsQuery(fundName string) string {
	return strings.TrimSpace(fundName) + " " + analysisNewsKeywords
}
