package fundboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
)

const (
	defaultSystemPrompt          = "你是一个专业的金融数据分析助手,可以帮助用户分析基金、股票等金融数据。请用简洁专业的语言回答问题。"
	defaultRecommendationPrompt  = "你是一个智能理财顾问，请根据市场数据为用户推荐合适的投资产品。"
	defaultMarketSentimentPrompt = "你是一个市场分析师，请根据新闻和数据分析当前的市场情绪。"

	maskPrefix     = "****"
	maskVisibleLen = 4
)

// Supported AIModel.Provider values. Empty means ProviderOpenAI.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

var validProviders = map[string]struct{}{
	"":                {},
	ProviderOpenAI:    {},
	ProviderAnthropic: {},
	ProviderGemini:    {},
}

// AIModel is one user-configured model endpoint.
type AIModel struct {
	Name     string `json:"name"`
	BaseURL  string `json:"baseUrl"`
	APIKey   string `json:"apiKey"`
	Provider string `json:"provider,omitempty"`
}

// Settings is the per-user configuration record.
type Settings struct {
	UserID                int64     `json:"-"`
	AIModels              []AIModel `json:"aiModels"`
	ActiveModelIndex      int       `json:"activeModelIndex"`
	SystemPrompt          string    `json:"systemPrompt"`
	RecommendationPrompt  string    `json:"recommendationPrompt"`
	MarketSentimentPrompt string    `json:"marketSentimentPrompt"`
	SearchAPIKey          string    `json:"searchApiKey"`
	UpdatedAt             string    `json:"updatedAt,omitempty"`
}

// SettingsUpdate carries a partial update; nil fields are left unchanged.
type SettingsUpdate struct {
	AIModels              *[]AIModel
	ActiveModelIndex      *int
	SystemPrompt          *string
	RecommendationPrompt  *string
	MarketSentimentPrompt *string
	SearchAPIKey          *string
}

// MaskedAIModel is an AIModel safe to return to clients.
type MaskedAIModel struct {
	Name      string `json:"name"`
	BaseURL   string `json:"baseUrl"`
	APIKey    string `json:"apiKey"`
	Provider  string `json:"provider"`
	HasAPIKey bool   `json:"hasApiKey"`
}

// MaskedSettings is Settings with every credential redacted.
type MaskedSettings struct {
	AIModels              []MaskedAIModel `json:"aiModels"`
	ActiveModelIndex      int             `json:"activeModelIndex"`
	SystemPrompt          string          `json:"systemPrompt"`
	RecommendationPrompt  string          `json:"recommendationPrompt"`
	MarketSentimentPrompt string          `json:"marketSentimentPrompt"`
	SearchAPIKey          string          `json:"searchApiKey"`
	HasSearchAPIKey       bool            `json:"hasSearchApiKey"`
	UpdatedAt             string          `json:"updatedAt,omitempty"`
}

// GetSettings returns the user's settings, creating the default record on first read.
func (c *Core) GetSettings(ctx context.Context, userID int64) (Settings, error) {
	if _, err := c.execContext(ctx, `
		INSERT OR IGNORE INTO settings (
			user_id, ai_models, active_model_index, system_prompt,
			recommendation_prompt, market_sentiment_prompt, search_api_key
		)
		VALUES (?, '[]', 0, ?, ?, ?, '')
	`, userID, defaultSystemPrompt, defaultRecommendationPrompt, defaultMarketSentimentPrompt); err != nil {
		return Settings{}, err
	}
	return c.loadSettings(ctx, userID)
}

func (c *Core) loadSettings(ctx context.Context, userID int64) (Settings, error) {
	var rawModels string
	var systemPrompt, recommendationPrompt, sentimentPrompt, searchKey, updatedAt sql.NullString
	settings := Settings{UserID: userID}
	err := c.queryRowContext(ctx, `
		SELECT ai_models, active_model_index, system_prompt, recommendation_prompt,
			market_sentiment_prompt, search_api_key, updated_at
		FROM settings
		WHERE user_id = ?
	`, userID).Scan(
		&rawModels,
		&settings.ActiveModelIndex,
		&systemPrompt,
		&recommendationPrompt,
		&sentimentPrompt,
		&searchKey,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return Settings{}, notFoundError("settings not found")
	}
	if err != nil {
		return Settings{}, WrapError(ErrCodeDatabase, "failed to load settings", err)
	}

	settings.AIModels = []AIModel{}
	if strings.TrimSpace(rawModels) != "" {
		if err := json.Unmarshal([]byte(rawModels), &settings.AIModels); err != nil {
			return Settings{}, WrapError(ErrCodeInternal, "stored ai models are malformed", err)
		}
	}
	settings.SystemPrompt = stringOrDefault(systemPrompt, defaultSystemPrompt)
	settings.RecommendationPrompt = stringOrDefault(recommendationPrompt, defaultRecommendationPrompt)
	settings.MarketSentimentPrompt = stringOrDefault(sentimentPrompt, defaultMarketSentimentPrompt)
	settings.SearchAPIKey = searchKey.String
	settings.UpdatedAt = updatedAt.String
	return settings, nil
}

// UpdateSettings applies the provided fields and returns the stored result.
func (c *Core) UpdateSettings(ctx context.Context, userID int64, update SettingsUpdate) (Settings, error) {
	current, err := c.GetSettings(ctx, userID)
	if err != nil {
		return Settings{}, err
	}
	next := current

	if update.AIModels != nil {
		models, err := normalizeAIModels(*update.AIModels, current.AIModels)
		if err != nil {
			return Settings{}, err
		}
		next.AIModels = models
	}
	if update.ActiveModelIndex != nil {
		if *update.ActiveModelIndex < 0 {
			return Settings{}, invalidInput("activeModelIndex must not be negative")
		}
		next.ActiveModelIndex = *update.ActiveModelIndex
	}
	if update.SystemPrompt != nil {
		next.SystemPrompt = *update.SystemPrompt
	}
	if update.RecommendationPrompt != nil {
		next.RecommendationPrompt = *update.RecommendationPrompt
	}
	if update.MarketSentimentPrompt != nil {
		next.MarketSentimentPrompt = *update.MarketSentimentPrompt
	}
	if update.SearchAPIKey != nil {
		key := keepIfMasked(strings.TrimSpace(*update.SearchAPIKey), current.SearchAPIKey)
		if isMasked(key) {
			return Settings{}, invalidInput("search api key is masked and matches no stored key; re-enter it")
		}
		next.SearchAPIKey = key
	}

	encoded, err := json.Marshal(next.AIModels)
	if err != nil {
		return Settings{}, WrapError(ErrCodeInternal, "failed to encode ai models", err)
	}
	if _, err := c.execContext(ctx, `
		UPDATE settings SET
			ai_models = ?,
			active_model_index = ?,
			system_prompt = ?,
			recommendation_prompt = ?,
			market_sentiment_prompt = ?,
			search_api_key = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`, string(encoded), next.ActiveModelIndex, next.SystemPrompt, next.RecommendationPrompt,
		next.MarketSentimentPrompt, next.SearchAPIKey, userID); err != nil {
		return Settings{}, err
	}
	return c.loadSettings(ctx, userID)
}

func normalizeAIModels(models []AIModel, current []AIModel) ([]AIModel, error) {
	normalized := make([]AIModel, 0, len(models))
	for _, model := range models {
		m := AIModel{
			Name:     strings.TrimSpace(model.Name),
			BaseURL:  strings.TrimSpace(model.BaseURL),
			APIKey:   strings.TrimSpace(model.APIKey),
			Provider: strings.ToLower(strings.TrimSpace(model.Provider)),
		}
		if _, ok := validProviders[m.Provider]; !ok {
			return nil, invalidInput("unsupported provider: " + model.Provider)
		}
		if isMasked(m.APIKey) {
			key, ok := resolveMaskedKey(m, current)
			if !ok {
				return nil, invalidInput("api key for model " + m.Name + " is masked and matches no stored key; re-enter it")
			}
			m.APIKey = key
		}
		normalized = append(normalized, m)
	}
	return normalized, nil
}

// ResolveActiveModel returns the model selected by ActiveModelIndex.
func ResolveActiveModel(settings Settings) (AIModel, error) {
	if len(settings.AIModels) == 0 {
		return AIModel{}, configurationError("no usable AI model: no AI models configured")
	}
	idx := settings.ActiveModelIndex
	if idx < 0 || idx >= len(settings.AIModels) {
		return AIModel{}, configurationError("no usable AI model: active model index out of range")
	}
	model := settings.AIModels[idx]
	if strings.TrimSpace(model.APIKey) == "" {
		return AIModel{}, configurationError("no usable AI model: API key not configured for active model")
	}
	return model, nil
}

// MaskSettings redacts credentials for client responses.
func MaskSettings(settings Settings) MaskedSettings {
	models := make([]MaskedAIModel, 0, len(settings.AIModels))
	for _, m := range settings.AIModels {
		provider := m.Provider
		if provider == "" {
			provider = ProviderOpenAI
		}
		models = append(models, MaskedAIModel{
			Name:      m.Name,
			BaseURL:   m.BaseURL,
			APIKey:    MaskSecret(m.APIKey),
			Provider:  provider,
			HasAPIKey: m.APIKey != "",
		})
	}
	return MaskedSettings{
		AIModels:              models,
		ActiveModelIndex:      settings.ActiveModelIndex,
		SystemPrompt:          settings.SystemPrompt,
		RecommendationPrompt:  settings.RecommendationPrompt,
		MarketSentimentPrompt: settings.MarketSentimentPrompt,
		SearchAPIKey:          MaskSecret(settings.SearchAPIKey),
		HasSearchAPIKey:       settings.SearchAPIKey != "",
		UpdatedAt:             settings.UpdatedAt,
	}
}

// MaskSecret keeps only the last four characters of a credential.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	runes := []rune(secret)
	if len(runes) <= maskVisibleLen {
		return maskPrefix
	}
	return maskPrefix + string(runes[len(runes)-maskVisibleLen:])
}

func isMasked(value string) bool {
	return strings.HasPrefix(value, maskPrefix)
}

// resolveMaskedKey finds the stored key a masked echo stands for. A model with
// the same name and base URL wins; otherwise the mask must match exactly one
// distinct stored key.
func resolveMaskedKey(model AIModel, current []AIModel) (string, bool) {
	for _, c := range current {
		if c.Name == model.Name && c.BaseURL == model.BaseURL && c.APIKey != "" && MaskSecret(c.APIKey) == model.APIKey {
			return c.APIKey, true
		}
	}
	found := ""
	for _, c := range current {
		if c.APIKey == "" || MaskSecret(c.APIKey) != model.APIKey {
			continue
		}
		if found != "" && found != c.APIKey {
			return "", false
		}
		found = c.APIKey
	}
	return found, found != ""
}

// keepIfMasked returns current when incoming is current's masked form.
func keepIfMasked(incoming, current string) string {
	if current != "" && strings.HasPrefix(incoming, maskPrefix) && incoming == MaskSecret(current) {
		return current
	}
	return incoming
}

func stringOrDefault(value sql.NullString, fallback string) string {
	if !value.Valid {
		return fallback
	}
	return value.String
}
