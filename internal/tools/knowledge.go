package tools

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const knowledgeSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_title ON documents(title);
`

// Document is a knowledge base entry.
type Document struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// KnowledgeBaseTool stores and retrieves documents in a local sqlite store.
type KnowledgeBaseTool struct {
	db         *sql.DB
	maxRetries int
	retryBase  time.Duration
}

// NewKnowledgeBaseTool opens (and initializes) the document store at path.
func NewKnowledgeBaseTool(path string) (*KnowledgeBaseTool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open knowledge db: %w", err)
	}
	if _, err := db.Exec(knowledgeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init knowledge schema: %w", err)
	}
	return &KnowledgeBaseTool{
		db:         db,
		maxRetries: 3,
		retryBase:  100 * time.Millisecond,
	}, nil
}

// Close closes the underlying database.
func (t *KnowledgeBaseTool) Close() error {
	return t.db.Close()
}

func (t *KnowledgeBaseTool) Definition() Definition {
	return Definition{
		Name:        "knowledge_base",
		Description: "Manage documents in the local knowledge base: search, get, create, update and delete.",
		Parameters: map[string]ParamSpec{
			"operation": {
				Type:        "string",
				Description: "The operation to perform",
				Required:    true,
				Enum:        []string{"search", "get", "get_all", "create", "update", "delete"},
			},
			"query": {
				Type:        "string",
				Description: "Search query (for search)",
			},
			"document_id": {
				Type:        "integer",
				Description: "Document id (for get, update, delete)",
			},
			"title": {
				Type:        "string",
				Description: "Document title (for create, update)",
			},
			"content": {
				Type:        "string",
				Description: "Document content (for create, update)",
			},
		},
		Examples: []string{
			`{"tool_name": "knowledge_base", "parameters": {"operation": "search", "query": "发票"}}`,
		},
	}
}

func (t *KnowledgeBaseTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	op := GetString(params, "operation", "")
	switch op {
	case "search":
		return t.search(ctx, GetString(params, "query", ""))
	case "get":
		return t.get(ctx, int64(GetInt(params, "document_id", 0)))
	case "get_all":
		return t.getAll(ctx)
	case "create":
		return t.create(ctx, GetString(params, "title", ""), GetString(params, "content", ""))
	case "update":
		return t.update(ctx, int64(GetInt(params, "document_id", 0)), GetString(params, "title", ""), GetString(params, "content", ""))
	case "delete":
		return t.delete(ctx, int64(GetInt(params, "document_id", 0)))
	default:
		return errPayload(fmt.Sprintf("不支持的操作: %s", op)), nil
	}
}

func errPayload(msg string) map[string]any {
	return map[string]any{"status": "error", "message": msg}
}

// withRetry runs op with exponential backoff. Transient sqlite errors
// (locked database under concurrent writers) are the expected failure mode.
func (t *KnowledgeBaseTool) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		delay := t.retryBase * time.Duration(1<<attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (t *KnowledgeBaseTool) search(ctx context.Context, query string) (any, error) {
	if query == "" {
		return errPayload("搜索关键词不能为空"), nil
	}
	var docs []Document
	err := t.withRetry(ctx, func() error {
		rows, err := t.db.QueryContext(ctx,
			`SELECT id, title, content, created_at FROM documents
			 WHERE title LIKE ? OR content LIKE ?
			 ORDER BY created_at DESC`,
			"%"+query+"%", "%"+query+"%")
		if err != nil {
			return err
		}
		defer rows.Close()
		docs = docs[:0]
		for rows.Next() {
			var d Document
			if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt); err != nil {
				return err
			}
			docs = append(docs, d)
		}
		return rows.Err()
	})
	if err != nil {
		return errPayload(fmt.Sprintf("搜索文档失败: %v", err)), nil
	}
	return map[string]any{"operation": "search", "documents": docs, "count": len(docs)}, nil
}

func (t *KnowledgeBaseTool) get(ctx context.Context, id int64) (any, error) {
	if id <= 0 {
		return errPayload("文档 ID 无效"), nil
	}
	var d Document
	err := t.withRetry(ctx, func() error {
		return t.db.QueryRowContext(ctx,
			`SELECT id, title, content, created_at FROM documents WHERE id = ?`, id).
			Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt)
	})
	if err == sql.ErrNoRows {
		return errPayload(fmt.Sprintf("文档不存在: %d", id)), nil
	}
	if err != nil {
		return errPayload(fmt.Sprintf("获取文档失败: %v", err)), nil
	}
	return map[string]any{"operation": "get", "documents": []Document{d}, "count": 1}, nil
}

func (t *KnowledgeBaseTool) getAll(ctx context.Context) (any, error) {
	var docs []Document
	err := t.withRetry(ctx, func() error {
		rows, err := t.db.QueryContext(ctx,
			`SELECT id, title, content, created_at FROM documents ORDER BY created_at DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		docs = docs[:0]
		for rows.Next() {
			var d Document
			if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt); err != nil {
				return err
			}
			docs = append(docs, d)
		}
		return rows.Err()
	})
	if err != nil {
		return errPayload(fmt.Sprintf("获取文档失败: %v", err)), nil
	}
	return map[string]any{"operation": "get_all", "documents": docs, "count": len(docs)}, nil
}

func (t *KnowledgeBaseTool) create(ctx context.Context, title, content string) (any, error) {
	if title == "" || content == "" {
		return errPayload("创建文档需要标题和内容"), nil
	}
	now := time.Now().Format(time.RFC3339)
	var id int64
	err := t.withRetry(ctx, func() error {
		res, err := t.db.ExecContext(ctx,
			`INSERT INTO documents (title, content, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			title, content, now, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return errPayload(fmt.Sprintf("创建文档失败: %v", err)), nil
	}
	return map[string]any{"operation": "create", "document_id": id, "title": title}, nil
}

func (t *KnowledgeBaseTool) update(ctx context.Context, id int64, title, content string) (any, error) {
	if id <= 0 {
		return errPayload("文档 ID 无效"), nil
	}
	if title == "" && content == "" {
		return errPayload("更新文档需要新的标题或内容"), nil
	}
	var affected int64
	err := t.withRetry(ctx, func() error {
		res, err := t.db.ExecContext(ctx,
			`UPDATE documents SET
				title = COALESCE(NULLIF(?, ''), title),
				content = COALESCE(NULLIF(?, ''), content),
				updated_at = ?
			 WHERE id = ?`,
			title, content, time.Now().Format(time.RFC3339), id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return errPayload(fmt.Sprintf("更新文档失败: %v", err)), nil
	}
	if affected == 0 {
		return errPayload(fmt.Sprintf("文档不存在: %d", id)), nil
	}
	return map[string]any{"operation": "update", "document_id": id}, nil
}

func (t *KnowledgeBaseTool) delete(ctx context.Context, id int64) (any, error) {
	if id <= 0 {
		return errPayload("文档 ID 无效"), nil
	}
	var affected int64
	err := t.withRetry(ctx, func() error {
		res, err := t.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return errPayload(fmt.Sprintf("删除文档失败: %v", err)), nil
	}
	if affected == 0 {
		return errPayload(fmt.Sprintf("文档不存在: %d", id)), nil
	}
	return map[string]any{"operation": "delete", "document_id": id}, nil
}
