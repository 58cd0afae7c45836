package tools_test

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"gorm.io/gorm"

	"github.com/suPer8Hu/agent-backend/internal/memory"
	"github.com/suPer8Hu/agent-backend/internal/tools"
	"github.com/suPer8Hu/agent-backend/internal/uploads"
)

func openWarehouse(t *testing.T, maxRows int) *tools.Warehouse {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "warehouse.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE equipment_usage (id INTEGER PRIMARY KEY, name TEXT, cost REAL)`,
		`CREATE TABLE sites (id INTEGER PRIMARY KEY, city TEXT)`,
		`INSERT INTO equipment_usage (name, cost) VALUES ('lathe', 12.5), ('mill', 30), ('press', 7.25)`,
	} {
		_, err := db.Exec(stmt)
		gt.NoError(t, err).Required()
	}
	return tools.NewWarehouse(db, "sqlite", maxRows)
}

func findTool(t *testing.T, set []gollem.Tool, name string) gollem.Tool {
	t.Helper()
	for _, tool := range set {
		if tool.Spec().Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not registered", name)
	return nil
}

func TestWarehouse_ShowTablesAndQuery(t *testing.T) {
	ctx := context.Background()
	wh := openWarehouse(t, 2)

	tables, err := wh.ShowTables(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, tables).Equal([]string{"equipment_usage", "sites"})

	res, err := wh.Query(ctx, "SELECT name, cost FROM equipment_usage ORDER BY id")
	gt.NoError(t, err).Required()
	gt.Value(t, res.Columns).Equal([]string{"name", "cost"})
	gt.Array(t, res.Rows).Length(2).Required()
	gt.Bool(t, res.Truncated).True()
	gt.Value(t, res.Rows[0]["name"]).Equal(any("lathe"))
}

func TestWarehouse_RejectsWrites(t *testing.T) {
	ctx := context.Background()
	wh := openWarehouse(t, 10)

	for _, stmt := range []string{
		"DELETE FROM sites",
		"DROP TABLE sites",
		"SELECT 1; DROP TABLE sites",
		"WITH x AS (DELETE FROM sites RETURNING *) SELECT * FROM x",
		"",
	} {
		_, err := wh.Query(ctx, stmt)
		gt.Bool(t, errors.Is(err, tools.ErrReadOnly)).True()
	}

	tables, err := wh.ShowTables(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, tables).Length(2)
}

func TestCheckReadOnly_AllowsLiteralsAndComments(t *testing.T) {
	for _, stmt := range []string{
		"select * from sites where city = 'drop table'",
		"-- list sites\nSELECT city FROM sites;",
		"/* note */ WITH c AS (SELECT 1 AS n) SELECT n FROM c",
		"EXPLAIN SELECT 1",
		"show tables",
	} {
		gt.NoError(t, tools.CheckReadOnly(stmt))
	}
}

func TestSQLTools(t *testing.T) {
	ctx := context.Background()
	set := tools.Build(tools.Deps{Warehouse: openWarehouse(t, 10)}, 1)
	gt.Array(t, set).Length(2)

	out, err := findTool(t, set, "sql_show_tables").Run(ctx, map[string]any{})
	gt.NoError(t, err).Required()
	gt.Value(t, out["tables"]).Equal(any([]string{"equipment_usage", "sites"}))

	out, err = findTool(t, set, "sql_query").Run(ctx, map[string]any{"sql": "SELECT COUNT(*) AS n FROM equipment_usage"})
	gt.NoError(t, err).Required()
	rows := out["rows"].([]map[string]any)
	gt.Value(t, rows[0]["n"]).Equal(any(int64(3)))

	_, err = findTool(t, set, "sql_query").Run(ctx, map[string]any{})
	gt.Error(t, err)
}

func TestRAGFlow_Retrieve(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.URL.Path).Equal("/api/v1/retrieval")
		gt.Value(t, r.Header.Get("Authorization")).Equal("Bearer rag-key")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"code":0,"data":{"total":2,"chunks":[
			{"document_keyword":"fft.pdf","similarity":0.91,"content":"FFT computes the DFT quickly."},
			{"document_keyword":"dsp.pdf","similarity":0.5,"content":"Signals."}]}}`))
	}))
	defer srv.Close()

	rag := tools.NewRAGFlow(srv.URL, "rag-key", "ds-1")
	set := tools.Build(tools.Deps{RAGFlow: rag}, 1)
	out, err := findTool(t, set, "retrieve_documents").Run(context.Background(), map[string]any{"question": "What is FFT?", "top_k": float64(3)})
	gt.NoError(t, err).Required()

	gt.Value(t, out["total"]).Equal(any(2))
	ctxText := out["context"].(string)
	gt.String(t, ctxText).Contains("[1] doc=fft.pdf similarity=0.9100\nFFT computes the DFT quickly.")
	gt.String(t, ctxText).Contains("[2] doc=dsp.pdf")

	gt.Value(t, got["question"]).Equal(any("What is FFT?"))
	gt.Value(t, got["page_size"]).Equal(any(float64(3)))
	gt.Value(t, got["enable_rerank"]).Equal(any(true))
	gt.Value(t, got["rerank_top_k"]).Equal(any(float64(10)))
	gt.Value(t, got["dataset_ids"]).Equal(any([]any{"ds-1"}))
}

func TestRAGFlow_NonZeroCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":102,"message":"dataset missing"}`))
	}))
	defer srv.Close()

	_, err := tools.NewRAGFlow(srv.URL, "", "ds").Retrieve(context.Background(), "q", 0)
	gt.Error(t, err)
}

func TestImageTool(t *testing.T) {
	store, err := uploads.NewStore(t.TempDir(), 0)
	gt.NoError(t, err).Required()

	png := []byte("\x89PNG\r\n\x1a\n0000")
	info, err := store.Save(12, "chart.png", strings.NewReader(string(png)))
	gt.NoError(t, err).Required()

	set := tools.Build(tools.Deps{Images: store}, 12)
	tool := findTool(t, set, "image_to_base64")

	rel := filepath.Join("12", info.Filename)
	out, err := tool.Run(context.Background(), map[string]any{"image_path": rel})
	gt.NoError(t, err).Required()
	gt.Value(t, out["mime_type"]).Equal(any("image/png"))
	gt.Value(t, out["base64"]).Equal(any(base64.StdEncoding.EncodeToString(png)))

	outside := filepath.Join(t.TempDir(), "x.png")
	gt.NoError(t, os.WriteFile(outside, png, 0o644)).Required()
	_, err = tool.Run(context.Background(), map[string]any{"image_path": outside})
	gt.Bool(t, errors.Is(err, uploads.ErrOutsideRoot)).True()

	_, err = tool.Run(context.Background(), map[string]any{"image_path": "../../etc/passwd"})
	gt.Bool(t, errors.Is(err, uploads.ErrOutsideRoot)).True()
}

func TestMemoryTools(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "m.db")), &gorm.Config{})
	gt.NoError(t, err).Required()
	gt.NoError(t, db.AutoMigrate(memory.Models()...)).Required()
	repo := memory.NewRepo(db, 0)

	_, err = repo.AppendBatch(ctx, 4, []memory.AgentMessage{
		{Role: "user", Content: "my favourite colour is teal"},
		{Role: "assistant", Content: "noted"},
	}, memory.TypeChat, nil)
	gt.NoError(t, err).Required()
	_, err = repo.AppendBatch(ctx, 9, []memory.AgentMessage{{Role: "user", Content: "teal elsewhere"}}, memory.TypeChat, nil)
	gt.NoError(t, err).Required()
	_, err = repo.UpsertSystem(ctx, "company", "ACME", nil)
	gt.NoError(t, err).Required()

	set := tools.Build(tools.Deps{Memory: repo}, 4)

	out, err := findTool(t, set, "memory_search").Run(ctx, map[string]any{"keyword": "teal"})
	gt.NoError(t, err).Required()
	matches := out["matches"].([]map[string]any)
	gt.Array(t, matches).Length(1)

	out, err = findTool(t, set, "system_memory_get").Run(ctx, map[string]any{"key": "company"})
	gt.NoError(t, err).Required()
	gt.Value(t, out["content"]).Equal(any("ACME"))

	out, err = findTool(t, set, "system_memory_get").Run(ctx, map[string]any{})
	gt.NoError(t, err).Required()
	gt.Value(t, out["keys"]).Equal(any([]string{"company"}))

	_, err = findTool(t, set, "system_memory_get").Run(ctx, map[string]any{"key": "missing"})
	gt.Bool(t, errors.Is(err, memory.ErrNotFound)).True()
}
