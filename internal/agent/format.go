package agent

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/aidesk/aidesk/internal/tools"
)

// previewLimit bounds email body previews in formatted output.
const previewLimit = 500

// FormatStepResult renders a tool result as markdown for the next planning
// prompt and for step_result events. It is total: unknown tools and
// unexpected shapes degrade to a pretty-printed dump, never a panic.
func FormatStepResult(call ToolCall, res tools.Result) string {
	if !res.Success {
		return fmt.Sprintf("❌ 执行失败: %s", res.Message)
	}

	payload := toMap(res.Result)
	switch call.Name {
	case "system_command":
		return formatCommandResult(payload)
	case "knowledge_base":
		return formatKnowledgeResult(call, payload)
	case "email":
		return formatEmailResult(call, payload)
	case "web_browser":
		return formatWebResult(call, payload)
	default:
		return dump(res.Result)
	}
}

func formatCommandResult(payload map[string]any) string {
	if payload == nil {
		return dump(payload)
	}
	if msg, failed := payloadError(payload); failed {
		return fmt.Sprintf("❌ 命令执行失败: %s", msg)
	}

	var b strings.Builder
	b.WriteString("命令执行结果:\n")
	if stdout := stringField(payload, "stdout"); stdout != "" {
		fmt.Fprintf(&b, "```\n%s\n```\n", strings.TrimRight(stdout, "\n"))
	} else {
		b.WriteString("(无输出)\n")
	}
	if stderr := stringField(payload, "stderr"); stderr != "" {
		fmt.Fprintf(&b, "标准错误:\n```\n%s\n```\n", strings.TrimRight(stderr, "\n"))
	}
	fmt.Fprintf(&b, "返回码: `%v`", payload["return_code"])
	return b.String()
}

func formatKnowledgeResult(call ToolCall, payload map[string]any) string {
	if payload == nil {
		return dump(payload)
	}
	if msg, failed := payloadError(payload); failed {
		return fmt.Sprintf("❌ 知识库操作失败: %s", msg)
	}

	op := stringField(payload, "operation")
	if op == "" {
		op = stringFromParams(call.Parameters, "operation")
	}
	switch op {
	case "search", "get", "get_all":
		docs := sliceField(payload, "documents")
		var b strings.Builder
		fmt.Fprintf(&b, "找到 %d 个文档:\n", len(docs))
		for _, d := range docs {
			doc := toMap(d)
			if doc == nil {
				b.WriteString(dump(d) + "\n")
				continue
			}
			fmt.Fprintf(&b, "\n- 文档 ID: %v\n", doc["id"])
			fmt.Fprintf(&b, "  标题: %s\n", stringField(doc, "title"))
			fmt.Fprintf(&b, "  内容: %s\n", stringField(doc, "content"))
			fmt.Fprintf(&b, "  创建时间: %s\n", stringField(doc, "created_at"))
		}
		return strings.TrimRight(b.String(), "\n")
	case "create":
		return fmt.Sprintf("✅ 文档创建成功，文档 ID: %v", payload["document_id"])
	case "update":
		return fmt.Sprintf("✅ 文档更新成功，文档 ID: %v", payload["document_id"])
	case "delete":
		return fmt.Sprintf("✅ 文档删除成功，文档 ID: %v", payload["document_id"])
	default:
		return dump(payload)
	}
}

func formatEmailResult(call ToolCall, payload map[string]any) string {
	if payload == nil {
		return dump(payload)
	}
	if ok, present := payload["success"].(bool); present && !ok {
		return fmt.Sprintf("❌ 邮件操作失败: %s", firstMessage(payload))
	}

	action := stringFromParams(call.Parameters, "action")
	switch action {
	case "list_emails":
		emails := sliceField(payload, "emails")
		var b strings.Builder
		fmt.Fprintf(&b, "共 %d 封邮件:\n", len(emails))
		known := map[string]bool{"id": true, "from": true, "subject": true, "date": true, "body": true}
		for _, e := range emails {
			msg := toMap(e)
			if msg == nil {
				b.WriteString(dump(e) + "\n")
				continue
			}
			fmt.Fprintf(&b, "\n- 邮件 ID: %v\n", msg["id"])
			fmt.Fprintf(&b, "  主题: %s\n", stringField(msg, "subject"))
			fmt.Fprintf(&b, "  发件人: %s\n", stringField(msg, "from"))
			fmt.Fprintf(&b, "  日期: %s\n", stringField(msg, "date"))
			preview := truncate(stripHTML(stringField(msg, "body")), previewLimit)
			fmt.Fprintf(&b, "  内容预览: %s\n", preview)
			// Surface any extra fields generically.
			extra := make([]string, 0)
			for k := range msg {
				if !known[k] {
					extra = append(extra, k)
				}
			}
			sort.Strings(extra)
			for _, k := range extra {
				fmt.Fprintf(&b, "  %s: %v\n", k, msg[k])
			}
		}
		return strings.TrimRight(b.String(), "\n")
	case "delete_email":
		return fmt.Sprintf("✅ 邮件已删除，邮件 ID: %v", payload["deleted_id"])
	case "send_email":
		return fmt.Sprintf("✅ 邮件已发送给 %s，主题: %s", stringField(payload, "to"), stringField(payload, "subject"))
	case "list_folders":
		folders := sliceField(payload, "folders")
		names := make([]string, 0, len(folders))
		for _, f := range folders {
			names = append(names, fmt.Sprintf("%v", f))
		}
		return fmt.Sprintf("共 %d 个文件夹: %s", len(names), strings.Join(names, ", "))
	case "switch_email_type":
		return fmt.Sprintf("✅ 已切换到 %s 邮箱", stringField(payload, "email_type"))
	default:
		return dump(payload)
	}
}

func formatWebResult(call ToolCall, payload map[string]any) string {
	if payload == nil {
		return dump(payload)
	}
	if msg, failed := payloadError(payload); failed {
		return fmt.Sprintf("❌ 网页操作失败: %s", msg)
	}

	action := stringField(payload, "action")
	switch action {
	case "search":
		results := sliceField(payload, "results")
		var b strings.Builder
		fmt.Fprintf(&b, "搜索结果 (%d 条):\n", len(results))
		for _, r := range results {
			hit := toMap(r)
			if hit == nil {
				b.WriteString(dump(r) + "\n")
				continue
			}
			fmt.Fprintf(&b, "\n- [%s](%s)\n  %s\n", stringField(hit, "title"), stringField(hit, "link"), stringField(hit, "snippet"))
		}
		return strings.TrimRight(b.String(), "\n")
	case "extract":
		return fmt.Sprintf("页面内容 (%s):\n\n%s", stringField(payload, "url"), stringField(payload, "content"))
	case "search_and_extract":
		results := sliceField(payload, "results")
		var b strings.Builder
		fmt.Fprintf(&b, "搜索并提取 (%d 条):\n", len(results))
		for _, r := range results {
			page := toMap(r)
			if page == nil {
				b.WriteString(dump(r) + "\n")
				continue
			}
			fmt.Fprintf(&b, "\n## [%s](%s)\n%s\n", stringField(page, "title"), stringField(page, "link"), stringField(page, "content"))
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return dump(payload)
	}
}

// payloadError reports whether a payload carries an explicit error status.
func payloadError(payload map[string]any) (string, bool) {
	if s, ok := payload["status"].(string); ok && s == "error" {
		return firstMessage(payload), true
	}
	return "", false
}

func firstMessage(payload map[string]any) string {
	for _, key := range []string{"message", "error", "detail"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return "未知错误"
}

// toMap normalizes any payload to a string-keyed map via JSON, returning
// nil when the payload has no object shape.
func toMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func stringFromParams(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return s
}

func sliceField(m map[string]any, key string) []any {
	switch v := m[key].(type) {
	case []any:
		return v
	case nil:
		return nil
	default:
		// Typed slices arrive when the payload never crossed a JSON
		// boundary; normalize through toMap's sibling path.
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var out []any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	}
}

func dump(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return "```json\n" + string(data) + "\n```"
}

// stripHTML removes tags and decodes entities, collapsing whitespace runs.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Cut on a rune boundary.
	runes := []rune(s)
	total := 0
	for i, r := range runes {
		total += len(string(r))
		if total > limit {
			return string(runes[:i]) + "..."
		}
	}
	return s
}
