package tools

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/m-mizutani/goerr/v2"
)

const (
	defaultMaxRows      = 200
	defaultQueryTimeout = 5 * time.Second
)

var ErrReadOnly = errors.New("only read-only statements are allowed")

// Warehouse is the SQL data source the agent may inspect. It is separate from
// the record store.
type Warehouse struct {
	db      *sql.DB
	driver  string
	maxRows int
	timeout time.Duration
}

// OpenWarehouse accepts the driver names mysql, pgx (alias postgres) and sqlite.
func OpenWarehouse(driver, dsn string, maxRows int) (*Warehouse, error) {
	switch driver {
	case "postgres", "postgresql":
		driver = "pgx"
	case "sqlite3":
		driver = "sqlite"
	case "mysql", "pgx", "sqlite":
	default:
		return nil, goerr.New("unsupported warehouse driver", goerr.V("driver", driver))
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open warehouse", goerr.V("driver", driver))
	}
	return NewWarehouse(db, driver, maxRows), nil
}

func NewWarehouse(db *sql.DB, driver string, maxRows int) *Warehouse {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &Warehouse{db: db, driver: driver, maxRows: maxRows, timeout: defaultQueryTimeout}
}

func (w *Warehouse) Close() error { return w.db.Close() }

// ShowTables lists base tables as schema.table (bare name on sqlite).
func (w *Warehouse) ShowTables(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var q string
	switch w.driver {
	case "sqlite":
		q = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case "pgx":
		q = `SELECT table_schema || '.' || table_name FROM information_schema.tables
			WHERE table_type = 'BASE TABLE' AND table_schema NOT IN ('pg_catalog', 'information_schema')
			ORDER BY table_schema, table_name`
	default:
		q = `SELECT CONCAT(table_schema, '.', table_name) FROM information_schema.tables
			WHERE table_type = 'BASE TABLE' AND table_schema = DATABASE()
			ORDER BY table_schema, table_name`
	}

	rows, err := w.db.QueryContext(ctx, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tables")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, goerr.Wrap(err, "failed to scan table name")
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate tables")
	}
	return out, nil
}

type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated"`
}

// Query runs one read-only statement and returns at most maxRows rows.
func (w *Warehouse) Query(ctx context.Context, statement string) (*QueryResult, error) {
	if err := CheckReadOnly(statement); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	rows, err := w.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, goerr.Wrap(err, "query failed", goerr.V("sql", statement))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read columns")
	}

	res := &QueryResult{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		if len(res.Rows) >= w.maxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, goerr.Wrap(err, "failed to scan row")
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate rows")
	}
	return res, nil
}

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	quoted       = regexp.MustCompile(`'(?:[^']|'')*'`)
	writeWord    = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|drop|alter|create|truncate|grant|revoke|attach|detach|pragma|vacuum|call|exec|execute|copy|into)\b`)
)

var readOnlyLeads = []string{"select", "with", "show", "describe", "desc", "explain"}

// CheckReadOnly accepts a single SELECT/WITH/SHOW/DESCRIBE/EXPLAIN statement
// that contains no data-modifying keyword outside string literals.
func CheckReadOnly(statement string) error {
	s := blockComment.ReplaceAllString(statement, " ")
	s = lineComment.ReplaceAllString(s, " ")
	s = quoted.ReplaceAllString(s, "''")
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "; \t\n")
	if s == "" {
		return goerr.Wrap(ErrReadOnly, "empty statement")
	}
	if strings.Contains(s, ";") {
		return goerr.Wrap(ErrReadOnly, "multiple statements")
	}

	lead := strings.ToLower(strings.Fields(s)[0])
	allowed := false
	for _, l := range readOnlyLeads {
		if lead == l {
			allowed = true
			break
		}
	}
	if !allowed {
		return goerr.Wrap(ErrReadOnly, "statement kind not allowed", goerr.V("lead", lead))
	}
	if m := writeWord.FindString(s); m != "" {
		return goerr.Wrap(ErrReadOnly, "data-modifying keyword", goerr.V("keyword", m))
	}
	return nil
}
