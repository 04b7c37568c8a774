package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aidesk/aidesk/internal/cloudtoken"
)

// SMSRecord is a single text message from the cloud account.
type SMSRecord struct {
	ID      string `json:"id"`
	Phone   string `json:"phone"`
	Content string `json:"content"`
	Time    string `json:"time"`
}

// CallRecord is a single call log entry from the cloud account.
type CallRecord struct {
	Phone    string `json:"phone"`
	Type     string `json:"type"` // incoming, outgoing, missed
	Duration int    `json:"duration"`
	Time     string `json:"time"`
}

// MiCloudTool reads phone data (SMS, call logs) from the cloud account.
// All requests are gated on a healthy cookie token managed by cloudtoken.
type MiCloudTool struct {
	store      *cloudtoken.Store
	baseURL    string
	exportDir  string
	httpClient *http.Client
}

// NewMiCloudTool creates a new MiCloudTool.
func NewMiCloudTool(store *cloudtoken.Store, baseURL, exportDir string) *MiCloudTool {
	if baseURL == "" {
		baseURL = "https://i.mi.com"
	}
	return &MiCloudTool{
		store:      store,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		exportDir:  exportDir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *MiCloudTool) Definition() Definition {
	return Definition{
		Name:        "micloud",
		Description: "Read SMS and call records from the cloud phone account, with optional CSV export.",
		Parameters: map[string]ParamSpec{
			"action": {
				Type:        "string",
				Description: "The action to perform",
				Required:    true,
				Enum:        []string{"list_sms", "list_calls", "search_sms", "export_data"},
			},
			"limit": {
				Type:        "integer",
				Description: "Number of records to return",
				Default:     20,
			},
			"keyword": {
				Type:        "string",
				Description: "Search keyword (for search_sms)",
			},
		},
		Examples: []string{
			`{"tool_name": "micloud", "parameters": {"action": "list_sms", "limit": 10}}`,
		},
	}
}

func (t *MiCloudTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	if !t.store.Healthy() {
		return errPayload("云服务凭证不可用，请先运行 token 服务"), nil
	}

	action := GetString(params, "action", "")
	limit := GetInt(params, "limit", 20)
	switch action {
	case "list_sms":
		records, err := t.fetchSMS(ctx, limit)
		if err != nil {
			return errPayload(fmt.Sprintf("获取短信失败: %v", err)), nil
		}
		return map[string]any{"action": "list_sms", "records": records, "count": len(records)}, nil
	case "list_calls":
		records, err := t.fetchCalls(ctx, limit)
		if err != nil {
			return errPayload(fmt.Sprintf("获取通话记录失败: %v", err)), nil
		}
		return map[string]any{"action": "list_calls", "records": records, "count": len(records)}, nil
	case "search_sms":
		keyword := GetString(params, "keyword", "")
		if keyword == "" {
			return errPayload("搜索关键词不能为空"), nil
		}
		records, err := t.fetchSMS(ctx, 0)
		if err != nil {
			return errPayload(fmt.Sprintf("获取短信失败: %v", err)), nil
		}
		var matched []SMSRecord
		for _, r := range records {
			if strings.Contains(r.Content, keyword) || strings.Contains(r.Phone, keyword) {
				matched = append(matched, r)
			}
		}
		if limit > 0 && len(matched) > limit {
			matched = matched[:limit]
		}
		return map[string]any{"action": "search_sms", "keyword": keyword, "records": matched, "count": len(matched)}, nil
	case "export_data":
		path, err := t.exportCSV(ctx)
		if err != nil {
			return errPayload(fmt.Sprintf("导出数据失败: %v", err)), nil
		}
		return map[string]any{"action": "export_data", "path": path}, nil
	default:
		return errPayload(fmt.Sprintf("不支持的操作: %s", action)), nil
	}
}

func (t *MiCloudTool) get(ctx context.Context, path string, out any) error {
	tok, err := t.store.Load()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: "serviceToken", Value: tok.ServiceToken})
	req.AddCookie(&http.Cookie{Name: "userId", Value: tok.UserID})
	req.AddCookie(&http.Cookie{Name: "i.mi.com_isvalid_servicetoken", Value: tok.IsValidServiceToken})
	req.AddCookie(&http.Cookie{Name: "i.mi.com_slh", Value: tok.SLH})

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloud API error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (t *MiCloudTool) fetchSMS(ctx context.Context, limit int) ([]SMSRecord, error) {
	var parsed struct {
		Data struct {
			Entries []SMSRecord `json:"entries"`
		} `json:"data"`
	}
	if err := t.get(ctx, "/sms/full/thread", &parsed); err != nil {
		return nil, err
	}
	records := parsed.Data.Entries
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (t *MiCloudTool) fetchCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	var parsed struct {
		Data struct {
			Entries []CallRecord `json:"entries"`
		} `json:"data"`
	}
	if err := t.get(ctx, "/phonecall/full/record", &parsed); err != nil {
		return nil, err
	}
	records := parsed.Data.Entries
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (t *MiCloudTool) exportCSV(ctx context.Context) (string, error) {
	sms, err := t.fetchSMS(ctx, 0)
	if err != nil {
		return "", err
	}
	calls, err := t.fetchCalls(ctx, 0)
	if err != nil {
		return "", err
	}

	dir := t.exportDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("micloud_export_%s.csv", time.Now().Format("20060102_150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"type", "phone", "content_or_calltype", "duration", "time"})
	for _, r := range sms {
		w.Write([]string{"sms", r.Phone, r.Content, "", r.Time})
	}
	for _, r := range calls {
		w.Write([]string{"call", r.Phone, r.Type, fmt.Sprintf("%d", r.Duration), r.Time})
	}
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}
