package fundboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAnalyzeFund(t *testing.T) {
	core, market, news, cleanup := setupTestCore(t)
	defer cleanup()
	ctx := context.Background()
	userID := testUser(t, core, "alice")
	configureAI(t, core, userID, "tvly-key")
	fund := testFund(t, core, userID, "000001", "华夏成长")
	news.items = []NewsItem{{Title: "基金经理调仓", URL: "https://news.test/1", Content: "加仓科技"}}

	var got CompletionRequest
	calls := 0
	stubLLM(t, func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		calls++
		got = req
		return CompletionResult{Model: "test-model", Content: "## 分析\n持有"}, nil
	})

	report, err := core.AnalyzeFund(ctx, userID, fund.ID)
	assertNoError(t, err, "AnalyzeFund")

	if report.Result != "## 分析\n持有" {
		t.Errorf("unexpected result %q", report.Result)
	}
	if report.FundCode != "000001" || report.NewsCount != 1 || report.Model != "test-model" {
		t.Errorf("unexpected report %+v", report)
	}
	if calls != 1 {
		t.Fatalf("expected one model call, got %d", calls)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != RoleUser {
		t.Fatalf("expected a single user message, got %+v", got.Messages)
	}
	prompt := got.Messages[0].Content
	assertContains(t, prompt, "- 名称: 华夏成长 (000001)", "fund identity")
	assertContains(t, prompt, "1. [基金经理调仓](https://news.test/1): 加仓科技", "news line")
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", got.Temperature)
	}
	if got.Timeout != analysisLLMTimeout {
		t.Errorf("expected analysis timeout, got %s", got.Timeout)
	}
	if got.Model.APIKey != "sk-test-1234" {
		t.Errorf("active model not used: %+v", got.Model)
	}

	if len(news.queries) != 1 {
		t.Fatalf("expected one news query, got %d", len(news.queries))
	}
	q := news.queries[0]
	if q.Query != "华夏成长 基金 净值 基金经理 观点" || q.Limit != 5 || q.APIKey != "tvly-key" {
		t.Errorf("unexpected news query %+v", q)
	}
	if len(market.codes) != 1 || market.codes[0] != "000001" {
		t.Errorf("unexpected metrics calls %v", market.codes)
	}
}

func TestAnalyzeFundNewsFailureIsNotFatal(t *testing.T) {
	core, _, news, cleanup := setupTestCore(t)
	defer cleanup()
	ctx := context.Background()
	userID := testUser(t, core, "alice")
	configureAI(t, core, userID, "tvly-key")
	fund := testFund(t, core, userID, "000001", "华夏成长")
	news.err = errors.New("search quota exhausted")

	var prompt string
	stubLLM(t, func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		prompt = req.Messages[0].Content
		return CompletionResult{Content: "ok"}, nil
	})

	report, err := core.AnalyzeFund(ctx, userID, fund.ID)
	assertNoError(t, err, "AnalyzeFund")
	if report.NewsCount != 0 {
		t.Errorf("expected no news, got %d", report.NewsCount)
	}
	assertContains(t, prompt, "**近期相关新闻/观点**:\n\n\n", "empty news section")
}

func TestAnalyzeFundSurvivesNewsServiceFailures(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"timeout", slow},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"search backend down"}`))
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results": [`))
		}},
		{"error object", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
		}},
	}
	providers := map[string]func(baseURL string) NewsSearchGateway{
		"service": func(baseURL string) NewsSearchGateway {
			return NewServiceNewsClient(WithBaseURL(baseURL), WithTimeout(100*time.Millisecond))
		},
		"tavily": func(baseURL string) NewsSearchGateway {
			return NewTavilyNewsClient(WithBaseURL(baseURL), WithTimeout(100*time.Millisecond))
		},
	}

	for providerName, newGateway := range providers {
		for _, tc := range cases {
			t.Run(providerName+"/"+tc.name, func(t *testing.T) {
				srv := httptest.NewServer(tc.handler)
				defer srv.Close()

				core, err := OpenWithOptions(Options{
					DBPath: filepath.Join(t.TempDir(), "news.db"),
					Market: &fakeMarket{metrics: sampleMetrics()},
					News:   newGateway(srv.URL),
				})
				assertNoError(t, err, "OpenWithOptions")
				defer core.Close()

				ctx := context.Background()
				userID := testUser(t, core, "alice")
				configureAI(t, core, userID, "tvly-key")
				fund := testFund(t, core, userID, "000001", "华夏成长")

				var prompt string
				stubLLM(t, func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
					prompt = req.Messages[0].Content
					return CompletionResult{Content: "## 报告"}, nil
				})

				report, err := core.AnalyzeFund(ctx, userID, fund.ID)
				assertNoError(t, err, "AnalyzeFund")
				if report.Result != "## 报告" || report.NewsCount != 0 {
					t.Fatalf("unexpected report %+v", report)
				}
				assertContains(t, prompt, "**近期相关新闻/观点**:\n\n\n", "empty news section")
			})
		}
	}
}

func TestAnalyzeFundPreconditions(t *testing.T) {
	core, market, news, cleanup := setupTestCore(t)
	defer cleanup()
	ctx := context.Background()
	userID := testUser(t, core, "alice")
	fund := testFund(t, core, userID, "000001", "华夏成长")

	calls := 0
	stubLLM(t, func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		calls++
		return CompletionResult{Content: "unused"}, nil
	})

	// No search key.
	configureAI(t, core, userID, "")
	_, err := core.AnalyzeFund(ctx, userID, fund.ID)
	assertErrorCode(t, err, ErrCodeConfiguration, "missing search key")

	// Search key but no models.
	key := "tvly-key"
	noModels := []AIModel{}
	if _, err := core.UpdateSettings(ctx, userID, SettingsUpdate{SearchAPIKey: &key, AIModels: &noModels}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	_, err = core.AnalyzeFund(ctx, userID, fund.ID)
	assertErrorCode(t, err, ErrCodeConfiguration, "no models")

	// Active model without a key.
	keyless := []AIModel{{Name: "m", APIKey: ""}}
	if _, err := core.UpdateSettings(ctx, userID, SettingsUpdate{AIModels: &keyless}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	_, err = core.AnalyzeFund(ctx, userID, fund.ID)
	assertErrorCode(t, err, ErrCodeConfiguration, "keyless model")

	configureAI(t, core, userID, "tvly-key")
	_, err = core.AnalyzeFund(ctx, userID, fund.ID+100)
	assertErrorCode(t, err, ErrCodeNotFound, "unknown fund")

	if calls != 0 || len(market.codes) != 0 || len(news.queries) != 0 {
		t.Fatalf("no outbound call expected, got llm=%d metrics=%d news=%d", calls, len(market.codes), len(news.queries))
	}
}

func TestAnalyzeFundMetricsFailure(t *testing.T) {
	core, market, news, cleanup := setupTestCore(t)
	defer cleanup()
	ctx := context.Background()
	userID := testUser(t, core, "alice")
	configureAI(t, core, userID, "tvly-key")
	fund := testFund(t, core, userID, "000001", "华夏成长")
	market.err = errors.New("data service unreachable")

	calls := 0
	stubLLM(t, func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		calls++
		return CompletionResult{}, nil
	})

	_, err := core.AnalyzeFund(ctx, userID, fund.ID)
	assertErrorCode(t, err, ErrCodeUpstreamMetrics, "metrics failure")
	assertContains(t, err.Error(), "data service unreachable", "cause is kept")
	if calls != 0 || len(news.queries) != 0 {
		t.Fatalf("expected no news or model call, got llm=%d news=%d", calls, len(news.queries))
	}
}

func TestAnalyzeFundEmptyReplyAndLLMFailure(t *testing.T) {
	core, _, _, cleanup := setupTestCore(t)
	defer cleanup()
	ctx := context.Background()
	userID := testUser(t, core, "alice")
	configureAI(t, core, userID, "tvly-key")
	fund := testFund(t, core, userID, "000001", "华夏成长")

	stubLLM(t, func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		return CompletionResult{Content: "  "}, nil
	})
	report, err := core.AnalyzeFund(ctx, userID, fund.ID)
	assertNoError(t, err, "AnalyzeFund empty reply")
	if report.Result != "AI 未返回内容" {
		t.Errorf("expected fallback text, got %q", report.Result)
	}

	stubLLM(t, func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		return CompletionResult{}, WrapError(ErrCodeLLM, "invalid api key", errors.New("401"))
	})
	_, err = core.AnalyzeFund(ctx, userID, fund.ID)
	assertErrorCode(t, err, ErrCodeLLM, "llm failure")
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("expected upstream message, got %v", err)
	}
}
