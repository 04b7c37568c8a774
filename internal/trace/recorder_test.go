package trace

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := NewRecorder(filepath.Join(t.TempDir(), "trace.db"), nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordAndRecent(t *testing.T) {
	r := newTestRecorder(t)

	base := time.Now().Add(-time.Minute)
	r.RecordSpan("s1", "llm", "gpt-4o-mini", "ok", "", base, 800*time.Millisecond)
	r.RecordSpan("s1", "tool", "system_command", "ok", "", base.Add(time.Second), 40*time.Millisecond)
	r.RecordSpan("s1", "tool", "email", "error", "登录失败", base.Add(2*time.Second), 10*time.Millisecond)
	r.RecordSpan("s2", "llm", "gpt-4o-mini", "ok", "", base, time.Second)

	spans, err := r.Recent("s1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans for s1, got %d", len(spans))
	}
	// Most recent first.
	if spans[0].Name != "email" || spans[0].Status != "error" {
		t.Errorf("unexpected first span: %+v", spans[0])
	}
	if spans[0].Detail != "登录失败" {
		t.Errorf("detail not round-tripped: %q", spans[0].Detail)
	}
	if spans[2].Kind != "llm" {
		t.Errorf("expected llm span last, got %+v", spans[2])
	}
	if spans[2].DurationMS != 800 {
		t.Errorf("expected 800ms, got %d", spans[2].DurationMS)
	}
}

func TestRecentLimit(t *testing.T) {
	r := newTestRecorder(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 20; i++ {
		r.RecordSpan("s1", "tool", "x", "ok", "", base.Add(time.Duration(i)*time.Second), time.Millisecond)
	}

	spans, err := r.Recent("s1", 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(spans) != 5 {
		t.Errorf("expected limit of 5, got %d", len(spans))
	}
}

func TestRecentUnknownSession(t *testing.T) {
	r := newTestRecorder(t)
	spans, err := r.Recent("nobody", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("expected no spans, got %d", len(spans))
	}
}
