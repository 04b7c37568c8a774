package tools

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestKB(t *testing.T) *KnowledgeBaseTool {
	t.Helper()
	kb, err := NewKnowledgeBaseTool(filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("NewKnowledgeBaseTool() error: %v", err)
	}
	t.Cleanup(func() { kb.Close() })
	return kb
}

func asMap(t *testing.T, payload any) map[string]any {
	t.Helper()
	m, ok := payload.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", payload)
	}
	return m
}

func TestKnowledgeBaseCRUD(t *testing.T) {
	kb := newTestKB(t)
	ctx := context.Background()

	// create
	payload, err := kb.Execute(ctx, map[string]any{
		"operation": "create", "title": "发票报销", "content": "每月 5 号前提交",
	})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	created := asMap(t, payload)
	id, ok := created["document_id"].(int64)
	if !ok || id <= 0 {
		t.Fatalf("expected positive document id, got %v", created["document_id"])
	}

	// get
	payload, _ = kb.Execute(ctx, map[string]any{"operation": "get", "document_id": int(id)})
	got := asMap(t, payload)
	docs := got["documents"].([]Document)
	if len(docs) != 1 || docs[0].Title != "发票报销" {
		t.Fatalf("unexpected get result: %+v", got)
	}
	if docs[0].CreatedAt == "" {
		t.Error("expected created_at to be set")
	}

	// search
	payload, _ = kb.Execute(ctx, map[string]any{"operation": "search", "query": "报销"})
	found := asMap(t, payload)
	if found["count"].(int) != 1 {
		t.Errorf("expected 1 search hit, got %v", found["count"])
	}

	// update
	payload, _ = kb.Execute(ctx, map[string]any{
		"operation": "update", "document_id": int(id), "content": "每月 10 号前提交",
	})
	if asMap(t, payload)["document_id"].(int64) != id {
		t.Error("unexpected update payload")
	}
	payload, _ = kb.Execute(ctx, map[string]any{"operation": "get", "document_id": int(id)})
	docs = asMap(t, payload)["documents"].([]Document)
	if docs[0].Content != "每月 10 号前提交" {
		t.Errorf("expected updated content, got %q", docs[0].Content)
	}
	if docs[0].Title != "发票报销" {
		t.Errorf("update must not clobber title, got %q", docs[0].Title)
	}

	// get_all
	kb.Execute(ctx, map[string]any{"operation": "create", "title": "二号文档", "content": "内容"})
	payload, _ = kb.Execute(ctx, map[string]any{"operation": "get_all"})
	if asMap(t, payload)["count"].(int) != 2 {
		t.Errorf("expected 2 documents, got %v", asMap(t, payload)["count"])
	}

	// delete
	payload, _ = kb.Execute(ctx, map[string]any{"operation": "delete", "document_id": int(id)})
	if asMap(t, payload)["document_id"].(int64) != id {
		t.Error("unexpected delete payload")
	}
	payload, _ = kb.Execute(ctx, map[string]any{"operation": "get", "document_id": int(id)})
	if asMap(t, payload)["status"] != "error" {
		t.Error("expected error status for deleted document")
	}
}

func TestKnowledgeBaseErrors(t *testing.T) {
	kb := newTestKB(t)
	ctx := context.Background()

	cases := []map[string]any{
		{"operation": "search", "query": ""},
		{"operation": "get", "document_id": 0},
		{"operation": "create", "title": "", "content": "x"},
		{"operation": "update", "document_id": 5},
		{"operation": "delete", "document_id": 99},
		{"operation": "unknown_op"},
	}
	for _, params := range cases {
		payload, err := kb.Execute(ctx, params)
		if err != nil {
			t.Fatalf("Execute(%v) returned Go error: %v", params, err)
		}
		m := asMap(t, payload)
		if m["status"] != "error" {
			t.Errorf("expected error status for %v, got %+v", params, m)
		}
		if m["message"] == "" {
			t.Errorf("expected error message for %v", params)
		}
	}
}
