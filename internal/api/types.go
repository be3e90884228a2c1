package api

import "fundboard/pkg/fundboard"

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// aiModelPayload mirrors fundboard.AIModel with the client's camelCase keys.
type aiModelPayload struct {
	Name     string `json:"name"`
	BaseURL  string `json:"baseUrl"`
	APIKey   string `json:"apiKey"`
	Provider string `json:"provider"`
	// Echoed back from MaskedAIModel; ignored.
	HasAPIKey bool `json:"hasApiKey"`
}

func (p aiModelPayload) model() fundboard.AIModel {
	return fundboard.AIModel{Name: p.Name, BaseURL: p.BaseURL, APIKey: p.APIKey, Provider: p.Provider}
}

// updateSettingsPayload uses pointers so absent keys leave settings unchanged.
type updateSettingsPayload struct {
	AIModels              *[]aiModelPayload `json:"aiModels"`
	ActiveModelIndex      *int              `json:"activeModelIndex"`
	SystemPrompt          *string           `json:"systemPrompt"`
	RecommendationPrompt  *string           `json:"recommendationPrompt"`
	MarketSentimentPrompt *string           `json:"marketSentimentPrompt"`
	SearchAPIKey          *string           `json:"searchApiKey"`
	// Legacy clients send the search key under this name.
	TavilyAPIKey *string `json:"tavilyApiKey"`
	// Read-only fields of MaskedSettings a form may send back.
	HasSearchAPIKey *bool   `json:"hasSearchApiKey"`
	UpdatedAt       *string `json:"updatedAt"`
}

func (p updateSettingsPayload) update() fundboard.SettingsUpdate {
	update := fundboard.SettingsUpdate{
		ActiveModelIndex:      p.ActiveModelIndex,
		SystemPrompt:          p.SystemPrompt,
		RecommendationPrompt:  p.RecommendationPrompt,
		MarketSentimentPrompt: p.MarketSentimentPrompt,
		SearchAPIKey:          p.SearchAPIKey,
	}
	if update.SearchAPIKey == nil {
		update.SearchAPIKey = p.TavilyAPIKey
	}
	if p.AIModels != nil {
		models := make([]fundboard.AIModel, 0, len(*p.AIModels))
		for _, m := range *p.AIModels {
			models = append(models, m.model())
		}
		update.AIModels = &models
	}
	return update
}

type addFundPayload struct {
	FundCode         string   `json:"fundCode"`
	FundName         string   `json:"fundName"`
	FundType         string   `json:"fundType"`
	Style            string   `json:"style"`
	FocusBoards      []string `json:"focusBoards"`
	ScheduleEnabled  bool     `json:"scheduleEnabled"`
	ScheduleTime     string   `json:"scheduleTime"`
	ScheduleInterval string   `json:"scheduleInterval"`
}

// updateFundPayload lists the only fund fields a client may change.
type updateFundPayload struct {
	Style            *string   `json:"style"`
	FocusBoards      *[]string `json:"focusBoards"`
	ScheduleEnabled  *bool     `json:"scheduleEnabled"`
	ScheduleTime     *string   `json:"scheduleTime"`
	ScheduleInterval *string   `json:"scheduleInterval"`
}

type chatPayload struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Version   string `json:"version"`
}

type analysisResponse struct {
	Result string                        `json:"result"`
	Report *fundboard.FundAnalysisReport `json:"report"`
}
