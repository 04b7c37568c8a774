package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aidesk/aidesk/internal/cloudtoken"
)

func healthyTokenStore(t *testing.T) *cloudtoken.Store {
	t.Helper()
	store := cloudtoken.NewStore(filepath.Join(t.TempDir(), "token.json"))
	err := store.Save(&cloudtoken.Token{
		ServiceToken:        "svc",
		UserID:              "100",
		IsValidServiceToken: "true",
		SLH:                 "slh",
	})
	if err != nil {
		t.Fatalf("save token: %v", err)
	}
	return store
}

func micloudTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie := false
		for _, c := range r.Cookies() {
			if c.Name == "serviceToken" && c.Value == "svc" {
				gotCookie = true
			}
		}
		if !gotCookie {
			t.Error("expected serviceToken cookie on request")
		}
		switch r.URL.Path {
		case "/sms/full/thread":
			w.Write([]byte(`{"data": {"entries": [
				{"id": "1", "phone": "10086", "content": "您的验证码是 1234", "time": "2026-08-01T10:00:00Z"},
				{"id": "2", "phone": "10010", "content": "账单已出", "time": "2026-08-02T11:00:00Z"}
			]}}`))
		case "/phonecall/full/record":
			w.Write([]byte(`{"data": {"entries": [
				{"phone": "13800138000", "type": "incoming", "duration": 65, "time": "2026-08-03T09:00:00Z"}
			]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestMiCloudUnhealthyToken(t *testing.T) {
	store := cloudtoken.NewStore(filepath.Join(t.TempDir(), "missing.json"))
	tool := NewMiCloudTool(store, "https://unused.example", "")

	payload, err := tool.Execute(context.Background(), map[string]any{"action": "list_sms"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	m := asMap(t, payload)
	if m["status"] != "error" {
		t.Fatalf("expected error status, got %+v", m)
	}
	if !strings.Contains(m["message"].(string), "凭证不可用") {
		t.Errorf("unexpected message: %v", m["message"])
	}
}

func TestMiCloudListAndSearch(t *testing.T) {
	srv := micloudTestServer(t)
	defer srv.Close()

	tool := NewMiCloudTool(healthyTokenStore(t), srv.URL, "")
	ctx := context.Background()

	payload, err := tool.Execute(ctx, map[string]any{"action": "list_sms", "limit": 1})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	m := asMap(t, payload)
	records := m["records"].([]SMSRecord)
	if len(records) != 1 || records[0].Phone != "10086" {
		t.Errorf("unexpected sms records: %+v", records)
	}

	payload, _ = tool.Execute(ctx, map[string]any{"action": "list_calls"})
	calls := asMap(t, payload)["records"].([]CallRecord)
	if len(calls) != 1 || calls[0].Duration != 65 {
		t.Errorf("unexpected call records: %+v", calls)
	}

	payload, _ = tool.Execute(ctx, map[string]any{"action": "search_sms", "keyword": "验证码"})
	matched := asMap(t, payload)["records"].([]SMSRecord)
	if len(matched) != 1 || matched[0].ID != "1" {
		t.Errorf("unexpected search result: %+v", matched)
	}

	payload, _ = tool.Execute(ctx, map[string]any{"action": "search_sms", "keyword": ""})
	if asMap(t, payload)["status"] != "error" {
		t.Error("expected error for empty keyword")
	}
}

func TestMiCloudExport(t *testing.T) {
	srv := micloudTestServer(t)
	defer srv.Close()

	exportDir := t.TempDir()
	tool := NewMiCloudTool(healthyTokenStore(t), srv.URL, exportDir)

	payload, err := tool.Execute(context.Background(), map[string]any{"action": "export_data"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	path := asMap(t, payload)["path"].(string)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "10086") || !strings.Contains(content, "13800138000") {
		t.Errorf("export missing records:\n%s", content)
	}
	if !strings.Contains(content, "sms,") || !strings.Contains(content, "call,") {
		t.Errorf("export missing type column:\n%s", content)
	}
}
