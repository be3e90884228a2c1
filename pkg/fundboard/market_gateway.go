package fundboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultDataServiceURL is the companion data service started alongside the server.
const DefaultDataServiceURL = "http://127.0.0.1:8001/api"

const (
	maxFundSearchResults = 10
	placeholder          = "---"
)

// ErrFundDataUnavailable is returned when the data service has no data for a code.
var ErrFundDataUnavailable = errors.New("fund data unavailable")

// MarketDataGateway provides fund metrics and fund search.
type MarketDataGateway interface {
	FundMetrics(ctx context.Context, code string) (*FundMetrics, error)
	SearchFunds(ctx context.Context, query string) ([]FundSearchResult, error)
}

// FundMetrics is the normalized metrics record for one fund.
type FundMetrics struct {
	Code        string     `json:"code"`
	Manager     string     `json:"manager"`
	Size        string     `json:"fund_size"`
	Rating      string     `json:"rating"`
	LatestNAV   *Amount    `json:"latest_nav"`
	NAVDate     string     `json:"nav_date"`
	DailyGrowth *Amount    `json:"daily_growth"`
	History     []NAVPoint `json:"history"`
}

// NAVPoint is one day of NAV history.
type NAVPoint struct {
	Date   string `json:"date"`
	NAV    Amount `json:"nav"`
	Growth Amount `json:"growth"`
}

// FundSearchResult is one fund search hit.
type FundSearchResult struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Pinyin string `json:"pinyin,omitempty"`
}

// MarketDataClient talks to the companion data service over HTTP.
type MarketDataClient struct {
	gatewayClient
}

// NewMarketDataClient creates a data service client.
func NewMarketDataClient(opts ...ClientOption) *MarketDataClient {
	return &MarketDataClient{gatewayClient: newGatewayClient(DefaultDataServiceURL, opts...)}
}

type rawFundMetrics struct {
	Code        any              `json:"code"`
	Manager     any              `json:"manager"`
	FundSize    any              `json:"fund_size"`
	Size        any              `json:"size"`
	Rating      any              `json:"rating"`
	LatestNAV   any              `json:"latest_nav"`
	NAVDate     any              `json:"nav_date"`
	DailyGrowth any              `json:"daily_growth"`
	History     []map[string]any `json:"history"`
}

// FundMetrics fetches GET {base}/fund/{code}.
func (c *MarketDataClient) FundMetrics(ctx context.Context, code string) (*FundMetrics, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("fund code is required")
	}
	reqURL := fmt.Sprintf("%s/fund/%s", c.baseURL, url.PathEscape(code))

	var raw rawFundMetrics
	if err := c.getJSON(ctx, reqURL, &raw); err != nil {
		return nil, err
	}
	metrics := normalizeFundMetrics(code, raw)
	if metrics == nil {
		return nil, fmt.Errorf("%w: %s", ErrFundDataUnavailable, code)
	}
	return metrics, nil
}

func normalizeFundMetrics(code string, raw rawFundMetrics) *FundMetrics {
	navDate := anyToString(raw.NAVDate)
	latest, hasNAV := anyToAmount(raw.LatestNAV)
	if anyToString(raw.Code) == "" && navDate == "" && !hasNAV {
		return nil
	}
	growth, hasGrowth := anyToAmount(raw.DailyGrowth)

	size := anyToString(raw.FundSize)
	if size == "" {
		size = anyToString(raw.Size)
	}
	metrics := &FundMetrics{
		Code:    firstNonEmpty(anyToString(raw.Code), code),
		Manager: firstNonEmpty(anyToString(raw.Manager), placeholder),
		Size:    firstNonEmpty(size, placeholder),
		Rating:  firstNonEmpty(anyToString(raw.Rating), placeholder),
		NAVDate: navDate,
		History: normalizeNAVHistory(raw.History),
	}
	if hasNAV {
		metrics.LatestNAV = &latest
	}
	if hasGrowth {
		metrics.DailyGrowth = &growth
	}
	return metrics
}

// normalizeNAVHistory accepts both the akshare column names the data service
// passes through and plain English keys, returning points in date order.
func normalizeNAVHistory(records []map[string]any) []NAVPoint {
	points := make([]NAVPoint, 0, len(records))
	for _, rec := range records {
		date := firstNonEmpty(anyToString(rec["净值日期"]), anyToString(rec["date"]))
		if date == "" {
			continue
		}
		nav, ok := anyToAmount(firstNonNil(rec["单位净值"], rec["nav"]))
		if !ok {
			continue
		}
		growth, _ := anyToAmount(firstNonNil(rec["日增长率"], rec["growth"]))
		points = append(points, NAVPoint{Date: normalizeDate(date), NAV: nav, Growth: growth})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date < points[j].Date
	})
	return points
}

// SearchFunds fetches GET {base}/funds?query=.
func (c *MarketDataClient) SearchFunds(ctx context.Context, query string) ([]FundSearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("q", query)
	reqURL := fmt.Sprintf("%s/funds?%s", c.baseURL, params.Encode())

	var raw json.RawMessage
	if err := c.getJSON(ctx, reqURL, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)

	results := []FundSearchResult{}
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("malformed search payload: %w", err)
		}
	default:
		var wrapped struct {
			Results []FundSearchResult `json:"results"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("malformed search payload: %w", err)
		}
		if wrapped.Results != nil {
			results = wrapped.Results
		}
	}
	if len(results) > maxFundSearchResults {
		results = results[:maxFundSearchResults]
	}
	return results, nil
}

func anyToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func anyToAmount(v any) (Amount, bool) {
	switch val := v.(type) {
	case float64:
		return NewAmount(val), true
	case string:
		return ParseAmount(val)
	default:
		return Amount{}, false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339, "2006/01/02", "20060102"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}
