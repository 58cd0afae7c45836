// Package tools holds the tools the agent can call: the SQL warehouse,
// document retrieval, image encoding and read-only views of its own memory.
package tools

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/suPer8Hu/agent-backend/internal/memory"
)

// Deps are the backends tools are bound to. Nil members disable their tools.
type Deps struct {
	Warehouse *Warehouse
	RAGFlow   *RAGFlow
	Images    PathResolver
	Memory    *memory.Repo
}

// Build returns the tools available for one conversation.
func Build(deps Deps, conversationID int64) []gollem.Tool {
	var out []gollem.Tool
	if deps.Warehouse != nil {
		out = append(out, &showTablesTool{wh: deps.Warehouse}, &queryTool{wh: deps.Warehouse})
	}
	if deps.RAGFlow != nil {
		out = append(out, &retrieveTool{rag: deps.RAGFlow})
	}
	if deps.Images != nil {
		out = append(out, &imageTool{resolver: deps.Images})
	}
	if deps.Memory != nil {
		out = append(out,
			&memorySearchTool{repo: deps.Memory, conversationID: conversationID},
			&systemMemoryGetTool{repo: deps.Memory},
		)
	}
	return out
}

type showTablesTool struct {
	wh *Warehouse
}

func (t *showTablesTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "sql_show_tables",
		Description: "List every table in the SQL warehouse as schema.table.",
		Parameters:  map[string]*gollem.Parameter{},
	}
}

func (t *showTablesTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	tables, err := t.wh.ShowTables(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tables": tables}, nil
}

type queryTool struct {
	wh *Warehouse
}

func (t *queryTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "sql_query",
		Description: fmt.Sprintf("Run one read-only SQL statement (SELECT, WITH, SHOW, DESCRIBE or EXPLAIN) against the warehouse. At most %d rows are returned.", t.wh.maxRows),
		Parameters: map[string]*gollem.Parameter{
			"sql": {
				Type:        gollem.TypeString,
				Description: "The SQL statement to execute",
				Required:    true,
			},
		},
	}
}

func (t *queryTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	stmt, _ := args["sql"].(string)
	if stmt == "" {
		return nil, goerr.New("sql is required")
	}
	res, err := t.wh.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"columns":   res.Columns,
		"rows":      res.Rows,
		"truncated": res.Truncated,
	}, nil
}

type retrieveTool struct {
	rag *RAGFlow
}

func (t *retrieveTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "retrieve_documents",
		Description: "Search the document knowledge base and return the most relevant passages.",
		Parameters: map[string]*gollem.Parameter{
			"question": {
				Type:        gollem.TypeString,
				Description: "What to look up",
				Required:    true,
			},
			"top_k": {
				Type:        gollem.TypeInteger,
				Description: "Number of passages to return (default 5)",
			},
		},
	}
}

func (t *retrieveTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	question, _ := args["question"].(string)
	if question == "" {
		return nil, goerr.New("question is required")
	}
	res, err := t.rag.Retrieve(ctx, question, intArg(args, "top_k"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"total": res.Total, "context": res.Context}, nil
}

type imageTool struct {
	resolver PathResolver
}

func (t *imageTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "image_to_base64",
		Description: "Encode an uploaded image as base64. The path is relative to the upload directory, e.g. 12/20240101_120000_chart.png.",
		Parameters: map[string]*gollem.Parameter{
			"image_path": {
				Type:        gollem.TypeString,
				Description: "Path of the uploaded image",
				Required:    true,
			},
		},
	}
}

func (t *imageTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	path, _ := args["image_path"].(string)
	if path == "" {
		return nil, goerr.New("image_path is required")
	}
	img, err := EncodeImage(t.resolver, path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"mime_type": img.MimeType, "base64": img.Base64, "size": img.Size}, nil
}

type memorySearchTool struct {
	repo           *memory.Repo
	conversationID int64
}

func (t *memorySearchTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "memory_search",
		Description: "Search earlier messages and notes of the current conversation for a keyword.",
		Parameters: map[string]*gollem.Parameter{
			"keyword": {
				Type:        gollem.TypeString,
				Description: "Substring to look for",
				Required:    true,
			},
			"memory_type": {
				Type:        gollem.TypeString,
				Description: "chat (default), context or knowledge",
			},
		},
	}
}

func (t *memorySearchTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	keyword, _ := args["keyword"].(string)
	if keyword == "" {
		return nil, goerr.New("keyword is required")
	}
	rawType, _ := args["memory_type"].(string)
	typ, err := memory.ParseMemoryType(rawType)
	if err != nil {
		return nil, err
	}
	msgs, err := t.repo.Search(ctx, t.conversationID, keyword, typ)
	if err != nil {
		return nil, err
	}
	hits := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		hits = append(hits, map[string]any{
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		})
	}
	return map[string]any{"matches": hits}, nil
}

type systemMemoryGetTool struct {
	repo *memory.Repo
}

func (t *systemMemoryGetTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "system_memory_get",
		Description: "Read a system-wide memory entry by key. Omit the key to list all keys.",
		Parameters: map[string]*gollem.Parameter{
			"key": {
				Type:        gollem.TypeString,
				Description: "Entry key",
			},
		},
	}
}

func (t *systemMemoryGetTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	key, _ := args["key"].(string)
	if key == "" {
		entries, err := t.repo.ListSystem(ctx)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.Key)
		}
		return map[string]any{"keys": keys}, nil
	}
	e, err := t.repo.GetSystem(ctx, key)
	if err != nil {
		return nil, err
	}
	return map[string]any{"key": e.Key, "content": e.Content}, nil
}

// intArg reads a JSON number argument, which decodes as float64.
func intArg(args map[string]any, name string) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
