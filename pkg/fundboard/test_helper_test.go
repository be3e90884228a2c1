package fundboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type fakeMarket struct {
	mu        sync.Mutex
	metrics   *FundMetrics
	err       error
	results   []FundSearchResult
	searchErr error
	codes     []string
	queries   []string
}

func (f *fakeMarket) FundMetrics(_ context.Context, code string) (*FundMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	if f.metrics == nil {
		return nil, ErrFundDataUnavailable
	}
	m := *f.metrics
	return &m, nil
}

func (f *fakeMarket) SearchFunds(_ context.Context, query string) ([]FundSearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.results, f.searchErr
}

type fakeNews struct {
	mu      sync.Mutex
	items   []NewsItem
	err     error
	queries []NewsQuery
}

func (f *fakeNews) SearchNews(_ context.Context, q NewsQuery) ([]NewsItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func sampleMetrics() *FundMetrics {
	nav, _ := ParseAmount("1.2345")
	growth, _ := ParseAmount("-0.52")
	return &FundMetrics{
		Code:        "000001",
		Manager:     "张三",
		Size:        "12.3亿",
		Rating:      "4星",
		LatestNAV:   &nav,
		NAVDate:     "2024-05-10",
		DailyGrowth: &growth,
	}
}

// setupTestDB creates a temporary database with fake gateways.
// The caller should defer cleanup().
func setupTestDB(t *testing.T) (*Core, func()) {
	t.Helper()
	core, _, _, cleanup := setupTestCore(t)
	return core, cleanup
}

func setupTestCore(t *testing.T) (*Core, *fakeMarket, *fakeNews, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "fundboard-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	market := &fakeMarket{metrics: sampleMetrics()}
	news := &fakeNews{}
	core, err := OpenWithOptions(Options{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Market: market,
		News:   news,
	})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open test db: %v", err)
	}

	cleanup := func() {
		core.Close()
		os.RemoveAll(tmpDir)
	}
	return core, market, news, cleanup
}

// testUser registers a user and returns its id.
func testUser(t *testing.T, core *Core, username string) int64 {
	t.Helper()
	user, err := core.RegisterUser(context.Background(), Credentials{Username: username, Password: "secret123"})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user.ID
}

// testFund adds a fund for the user and returns it.
func testFund(t *testing.T, core *Core, userID int64, code, name string) *Fund {
	t.Helper()
	fund, err := core.AddFund(context.Background(), userID, FundInput{FundCode: code, FundName: name})
	if err != nil {
		t.Fatalf("failed to add test fund: %v", err)
	}
	return fund
}

// configureAI stores one usable model and, when searchKey is non-empty, a search key.
func configureAI(t *testing.T, core *Core, userID int64, searchKey string) {
	t.Helper()
	models := []AIModel{{Name: "test-model", BaseURL: "https://llm.test/v1", APIKey: "sk-test-1234"}}
	idx := 0
	if _, err := core.UpdateSettings(context.Background(), userID, SettingsUpdate{
		AIModels:         &models,
		ActiveModelIndex: &idx,
		SearchAPIKey:     &searchKey,
	}); err != nil {
		t.Fatalf("failed to configure ai: %v", err)
	}
}

// stubLLM replaces the model call for the duration of the test.
func stubLLM(t *testing.T, fn func(ctx context.Context, req CompletionRequest) (CompletionResult, error)) {
	t.Helper()
	orig := llmComplete
	llmComplete = fn
	t.Cleanup(func() { llmComplete = orig })
}

// assertNoError fails the test if err is not nil.
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// assertErrorCode fails the test unless err carries code.
func assertErrorCode(t *testing.T, err error, code ErrorCode, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected %s error but got nil", msg, code)
	}
	var structured *Error
	if !errors.As(err, &structured) {
		t.Fatalf("%s: expected structured error, got %T: %v", msg, err, err)
	}
	if structured.Code != code {
		t.Fatalf("%s: expected code %s, got %s (%v)", msg, code, structured.Code, err)
	}
}

// assertContains checks if the string contains the substring.
func assertContains(t *testing.T, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("%s: string %q does not contain %q", msg, s, substr)
	}
}
