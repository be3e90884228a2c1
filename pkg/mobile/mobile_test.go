package mobile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupMobileCore(t *testing.T) (*Core, func()) {
	t.Helper()
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "test.db")
	core, err := Open(dbPath, "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cleanup := func() {
		_ = core.Close()
		_ = os.RemoveAll(tmp)
	}
	return core, cleanup
}

func registerMobileUser(t *testing.T, core *Core) int64 {
	t.Helper()
	resp, err := core.RegisterJSON("alice", "secret123")
	if err != nil {
		t.Fatalf("RegisterJSON: %v", err)
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(resp), &user); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected user id in %s", resp)
	}
	return user.ID
}

func TestMobileCoreJSONFlows(t *testing.T) {
	core, cleanup := setupMobileCore(t)
	defer cleanup()
	uid := registerMobileUser(t, core)

	if _, err := core.LoginJSON("alice", "secret123"); err != nil {
		t.Fatalf("LoginJSON: %v", err)
	}

	resp, err := core.AddFundJSON(uid, `{"fundCode":"000001","fundName":"华夏成长混合","focusBoards":["消费"]}`)
	if err != nil {
		t.Fatalf("AddFundJSON: %v", err)
	}
	var fund struct {
		ID          int64    `json:"id"`
		FundCode    string   `json:"fundCode"`
		FocusBoards []string `json:"focusBoards"`
	}
	if err := json.Unmarshal([]byte(resp), &fund); err != nil {
		t.Fatalf("unmarshal fund: %v", err)
	}
	if fund.FundCode != "000001" || len(fund.FocusBoards) != 1 {
		t.Fatalf("unexpected fund %s", resp)
	}

	list, err := core.ListFundsJSON(uid)
	if err != nil {
		t.Fatalf("ListFundsJSON: %v", err)
	}
	if !strings.Contains(list, "000001") {
		t.Fatalf("expected fund in list, got %s", list)
	}

	if err := core.DeleteFund(uid, fund.ID); err != nil {
		t.Fatalf("DeleteFund: %v", err)
	}
	if err := core.DeleteFund(uid, fund.ID); ErrorCode(err) != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	history, err := core.GetChatHistoryJSON(uid, 0)
	if err != nil {
		t.Fatalf("GetChatHistoryJSON: %v", err)
	}
	if history != "[]" {
		t.Fatalf("expected empty history, got %s", history)
	}
	if n, err := core.ClearChatHistory(uid); err != nil || n != 0 {
		t.Fatalf("ClearChatHistory = %d, %v", n, err)
	}
}

func TestMobileSettingsAreMasked(t *testing.T) {
	core, cleanup := setupMobileCore(t)
	defer cleanup()
	uid := registerMobileUser(t, core)

	resp, err := core.UpdateSettingsJSON(uid, `{"aiModels":[{"name":"m","baseUrl":"https://llm.test/v1","apiKey":"sk-abcdef1234"}],"searchApiKey":"tvly-secret-9876"}`)
	if err != nil {
		t.Fatalf("UpdateSettingsJSON: %v", err)
	}
	if strings.Contains(resp, "sk-abcdef1234") || strings.Contains(resp, "tvly-secret-9876") {
		t.Fatalf("settings leaked a credential: %s", resp)
	}

	got, err := core.GetSettingsJSON(uid)
	if err != nil {
		t.Fatalf("GetSettingsJSON: %v", err)
	}
	if !strings.Contains(got, `"hasSearchApiKey":true`) {
		t.Fatalf("expected search key flag, got %s", got)
	}

	if _, err := core.UpdateSettingsJSON(uid, `not json`); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
}

func TestMobileAIRequiresConfiguration(t *testing.T) {
	core, cleanup := setupMobileCore(t)
	defer cleanup()
	uid := registerMobileUser(t, core)

	_, err := core.ChatJSON(uid, "hello")
	if ErrorCode(err) != "CONFIGURATION_ERROR" {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
	_, err = core.AnalyzeFundJSON(uid, 1)
	if ErrorCode(err) != "CONFIGURATION_ERROR" {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
}

func TestMobileCloseNil(t *testing.T) {
	var c *Core
	if err := c.Close(); err != nil {
		t.Fatalf("Close nil: %v", err)
	}
	if ErrorCode(nil) != "" {
		t.Fatalf("expected empty code for nil error")
	}
}
