package fundboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/text/width"
)

const defaultScheduleInterval = "24H"

// Fund is a fund on a user's watch list.
type Fund struct {
	ID               int64    `json:"id"`
	FundCode         string   `json:"fundCode"`
	FundName         string   `json:"fundName"`
	FundType         string   `json:"fundType"`
	Style            string   `json:"style"`
	FocusBoards      []string `json:"focusBoards"`
	ScheduleEnabled  bool     `json:"scheduleEnabled"`
	ScheduleTime     string   `json:"scheduleTime"`
	ScheduleInterval string   `json:"scheduleInterval"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
}

// FundInput defines inputs to add a fund.
type FundInput struct {
	FundCode         string
	FundName         string
	FundType         string
	Style            string
	FocusBoards      []string
	ScheduleEnabled  bool
	ScheduleTime     string
	ScheduleInterval string
}

// FundPatch carries the mutable fund fields; nil means unchanged.
type FundPatch struct {
	Style            *string
	FocusBoards      *[]string
	ScheduleEnabled  *bool
	ScheduleTime     *string
	ScheduleInterval *string
}

// FundDetail is a stored fund plus live metrics from the data service.
type FundDetail struct {
	Fund
	Details *FundMetrics `json:"details"`
}

const fundColumns = `id, fund_code, fund_name, fund_type, style, focus_boards,
	schedule_enabled, schedule_time, schedule_interval, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFund(row rowScanner) (*Fund, error) {
	var f Fund
	var fundType, style, boards, scheduleTime, scheduleInterval, createdAt, updatedAt sql.NullString
	var scheduleEnabled int
	if err := row.Scan(&f.ID, &f.FundCode, &f.FundName, &fundType, &style, &boards,
		&scheduleEnabled, &scheduleTime, &scheduleInterval, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	f.FundType = fundType.String
	f.Style = style.String
	f.FocusBoards = decodeFocusBoards(boards.String)
	f.ScheduleEnabled = scheduleEnabled != 0
	f.ScheduleTime = scheduleTime.String
	f.ScheduleInterval = scheduleInterval.String
	f.CreatedAt = createdAt.String
	f.UpdatedAt = updatedAt.String
	return &f, nil
}

func decodeFocusBoards(raw string) []string {
	boards := []string{}
	if strings.TrimSpace(raw) == "" {
		return boards
	}
	if err := json.Unmarshal([]byte(raw), &boards); err != nil {
		return []string{}
	}
	return boards
}

func encodeFocusBoards(boards []string) (string, error) {
	cleaned := make([]string, 0, len(boards))
	seen := make(map[string]struct{}, len(boards))
	for _, b := range boards {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		cleaned = append(cleaned, b)
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListFunds returns the user's funds, newest first.
func (c *Core) ListFunds(ctx context.Context, userID int64) ([]Fund, error) {
	rows, err := c.queryContext(ctx,
		"SELECT "+fundColumns+" FROM funds WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	funds := []Fund{}
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, WrapError(ErrCodeDatabase, "failed to read fund", err)
		}
		funds = append(funds, *f)
	}
	return funds, rows.Err()
}

// GetFund loads one fund owned by the user.
func (c *Core) GetFund(ctx context.Context, userID, fundID int64) (*Fund, error) {
	row := c.queryRowContext(ctx,
		"SELECT "+fundColumns+" FROM funds WHERE id = ? AND user_id = ?",
		fundID, userID,
	)
	f, err := scanFund(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("Fund not found")
	}
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "failed to load fund", err)
	}
	return f, nil
}

// AddFund adds a fund to the user's watch list.
func (c *Core) AddFund(ctx context.Context, userID int64, input FundInput) (*Fund, error) {
	code := strings.TrimSpace(input.FundCode)
	name := strings.TrimSpace(input.FundName)
	if code == "" || name == "" {
		return nil, invalidInput("Fund code and name are required")
	}
	boards, err := encodeFocusBoards(input.FocusBoards)
	if err != nil {
		return nil, WrapError(ErrCodeInvalidInput, "invalid focusBoards", err)
	}
	interval := strings.TrimSpace(input.ScheduleInterval)
	if interval == "" {
		interval = defaultScheduleInterval
	}

	var id int64
	err = c.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM funds WHERE user_id = ? AND fund_code = ?", userID, code,
		).Scan(&exists); err != nil {
			return WrapError(ErrCodeDatabase, "failed to check fund", err)
		}
		if exists > 0 {
			return NewError(ErrCodeDuplicate, "Fund already exists")
		}
		result, err := tx.ExecContext(ctx, `
			INSERT INTO funds (
				user_id, fund_code, fund_name, fund_type, style, focus_boards,
				schedule_enabled, schedule_time, schedule_interval, updated_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		`, userID, code, name, strings.TrimSpace(input.FundType), strings.TrimSpace(input.Style), boards,
			boolToInt(input.ScheduleEnabled), strings.TrimSpace(input.ScheduleTime), interval)
		if err != nil {
			return WrapError(ErrCodeDatabase, "failed to insert fund", err)
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("fund added", "user_id", userID, "fund_id", id, "fund_code", code)
	return c.GetFund(ctx, userID, id)
}

// UpdateFund changes only the provided mutable fields.
func (c *Core) UpdateFund(ctx context.Context, userID, fundID int64, patch FundPatch) (*Fund, error) {
	if _, err := c.GetFund(ctx, userID, fundID); err != nil {
		return nil, err
	}

	sets := []string{}
	args := []any{}
	if patch.Style != nil {
		sets = append(sets, "style = ?")
		args = append(args, strings.TrimSpace(*patch.Style))
	}
	if patch.FocusBoards != nil {
		boards, err := encodeFocusBoards(*patch.FocusBoards)
		if err != nil {
			return nil, WrapError(ErrCodeInvalidInput, "invalid focusBoards", err)
		}
		sets = append(sets, "focus_boards = ?")
		args = append(args, boards)
	}
	if patch.ScheduleEnabled != nil {
		sets = append(sets, "schedule_enabled = ?")
		args = append(args, boolToInt(*patch.ScheduleEnabled))
	}
	if patch.ScheduleTime != nil {
		sets = append(sets, "schedule_time = ?")
		args = append(args, strings.TrimSpace(*patch.ScheduleTime))
	}
	if patch.ScheduleInterval != nil {
		sets = append(sets, "schedule_interval = ?")
		args = append(args, strings.TrimSpace(*patch.ScheduleInterval))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
		args = append(args, fundID, userID)
		query := "UPDATE funds SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
		if _, err := c.execContext(ctx, query, args...); err != nil {
			return nil, err
		}
	}
	return c.GetFund(ctx, userID, fundID)
}

// DeleteFund removes a fund from the user's watch list.
func (c *Core) DeleteFund(ctx context.Context, userID, fundID int64) error {
	result, err := c.execContext(ctx, "DELETE FROM funds WHERE id = ? AND user_id = ?", fundID, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return WrapError(ErrCodeDatabase, "failed to delete fund", err)
	}
	if affected == 0 {
		return notFoundError("Fund not found")
	}
	c.logger.Info("fund deleted", "user_id", userID, "fund_id", fundID)
	return nil
}

// GetFundDetail returns the stored fund and its live metrics.
func (c *Core) GetFundDetail(ctx context.Context, userID, fundID int64) (*FundDetail, error) {
	fund, err := c.GetFund(ctx, userID, fundID)
	if err != nil {
		return nil, err
	}
	metrics, err := c.market.FundMetrics(ctx, fund.FundCode)
	if err != nil {
		return nil, WrapError(ErrCodeUpstreamMetrics, "failed to retrieve fund details", err)
	}
	return &FundDetail{Fund: *fund, Details: metrics}, nil
}

// SearchFunds queries the data service for funds by code, name or pinyin.
func (c *Core) SearchFunds(ctx context.Context, keyword string) ([]FundSearchResult, error) {
	query := NormalizeSearchQuery(keyword)
	if query == "" {
		return nil, invalidInput("Keyword is required")
	}
	results, err := c.market.SearchFunds(ctx, query)
	if err != nil {
		return nil, WrapError(ErrCodeUpstream, "Search failed", err)
	}
	if len(results) > maxFundSearchResults {
		results = results[:maxFundSearchResults]
	}
	return results, nil
}

// NormalizeSearchQuery folds full-width input (common with CJK IMEs) to its
// narrow form, trims and lower-cases it.
func NormalizeSearchQuery(keyword string) string {
	folded := width.Fold.String(keyword)
	return strings.ToLower(strings.TrimSpace(folded))
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
