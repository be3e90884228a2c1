package mobile

import (
	"context"
	"encoding/json"

	"fundboard/pkg/fundboard"
)

// Core wraps the FundBoard core for gomobile bindings. Values cross the
// binding as JSON strings; every call runs for a single local user.
type Core struct {
	core *fundboard.Core
}

// Open initializes the core with a database path. dataServiceURL may be empty
// to use the default companion service address.
func Open(dbPath, dataServiceURL string) (*Core, error) {
	core, err := fundboard.OpenWithOptions(fundboard.Options{DBPath: dbPath, DataServiceURL: dataServiceURL})
	if err != nil {
		return nil, err
	}
	return &Core{core: core}, nil
}

// Close releases resources.
func (c *Core) Close() error {
	if c == nil || c.core == nil {
		return nil
	}
	return c.core.Close()
}

// LoginJSON authenticates and returns the user as JSON.
func (c *Core) LoginJSON(username, password string) (string, error) {
	user, err := c.core.Authenticate(context.Background(), fundboard.Credentials{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	return marshalJSON(user)
}

// RegisterJSON creates an account and returns the user as JSON.
func (c *Core) RegisterJSON(username, password string) (string, error) {
	user, err := c.core.RegisterUser(context.Background(), fundboard.Credentials{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	return marshalJSON(user)
}

// GetSettingsJSON returns the user's settings with credentials masked.
func (c *Core) GetSettingsJSON(userID int64) (string, error) {
	settings, err := c.core.GetSettings(context.Background(), userID)
	if err != nil {
		return "", err
	}
	return marshalJSON(fundboard.MaskSettings(settings))
}

// UpdateSettingsJSON applies a partial settings update; absent keys are kept.
func (c *Core) UpdateSettingsJSON(userID int64, payloadJSON string) (string, error) {
	var payload settingsPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", err
	}
	settings, err := c.core.UpdateSettings(context.Background(), userID, fundboard.SettingsUpdate{
		AIModels:              payload.AIModels,
		ActiveModelIndex:      payload.ActiveModelIndex,
		SystemPrompt:          payload.SystemPrompt,
		RecommendationPrompt:  payload.RecommendationPrompt,
		MarketSentimentPrompt: payload.MarketSentimentPrompt,
		SearchAPIKey:          payload.SearchAPIKey,
	})
	if err != nil {
		return "", err
	}
	return marshalJSON(fundboard.MaskSettings(settings))
}

// ListFundsJSON returns the user's watch list.
func (c *Core) ListFundsJSON(userID int64) (string, error) {
	funds, err := c.core.ListFunds(context.Background(), userID)
	if err != nil {
		return "", err
	}
	return marshalJSON(funds)
}

// AddFundJSON adds a fund from JSON and returns the stored fund.
func (c *Core) AddFundJSON(userID int64, payloadJSON string) (string, error) {
	var payload fundPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", err
	}
	fund, err := c.core.AddFund(context.Background(), userID, fundboard.FundInput{
		FundCode:    payload.FundCode,
		FundName:    payload.FundName,
		FundType:    payload.FundType,
		Style:       payload.Style,
		FocusBoards: payload.FocusBoards,
	})
	if err != nil {
		return "", err
	}
	return marshalJSON(fund)
}

// DeleteFund removes a fund from the watch list.
func (c *Core) DeleteFund(userID, fundID int64) error {
	return c.core.DeleteFund(context.Background(), userID, fundID)
}

// AnalyzeFundJSON runs a fund analysis and returns the report.
func (c *Core) AnalyzeFundJSON(userID, fundID int64) (string, error) {
	report, err := c.core.AnalyzeFund(context.Background(), userID, fundID)
	if err != nil {
		return "", err
	}
	return marshalJSON(report)
}

// ChatJSON runs one chat turn and returns the reply.
func (c *Core) ChatJSON(userID int64, message string) (string, error) {
	reply, err := c.core.Chat(context.Background(), userID, message)
	if err != nil {
		return "", err
	}
	return marshalJSON(reply)
}

// GetChatHistoryJSON returns up to limit chat messages; limit <= 0 uses the default.
func (c *Core) GetChatHistoryJSON(userID int64, limit int) (string, error) {
	history, err := c.core.GetChatHistory(context.Background(), userID, limit)
	if err != nil {
		return "", err
	}
	return marshalJSON(history)
}

// ClearChatHistory deletes the user's chat history and returns the row count.
func (c *Core) ClearChatHistory(userID int64) (int64, error) {
	return c.core.ClearChatHistory(context.Background(), userID)
}

// ErrorCode returns the classification code of an error returned by Core,
// or "" for unclassified errors.
func ErrorCode(err error) string {
	return string(fundboard.ErrorCodeOf(err))
}

func marshalJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type settingsPayload struct {
	AIModels              *[]fundboard.AIModel `json:"aiModels"`
	ActiveModelIndex      *int                 `json:"activeModelIndex"`
	SystemPrompt          *string              `json:"systemPrompt"`
	RecommendationPrompt  *string              `json:"recommendationPrompt"`
	MarketSentimentPrompt *string              `json:"marketSentimentPrompt"`
	SearchAPIKey          *string              `json:"searchApiKey"`
}

type fundPayload struct {
	FundCode    string   `json:"fundCode"`
	FundName    string   `json:"fundName"`
	FundType    string   `json:"fundType"`
	Style       string   `json:"style"`
	FocusBoards []string `json:"focusBoards"`
}
