package fetchers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDSQLite runs a query against a SQLite database.
const IDSQLite = "sqlite"

// CredentialSQLitePath is the credentials entry naming the database file when
// the declaration has no "file" option.
const CredentialSQLitePath = "SQLITE_PATH"

var namedParam = regexp.MustCompile(`[:@$]([A-Za-z_][A-Za-z0-9_]*)`)

// SQLite runs the "query" option and returns its rows. Named parameters in
// the query (":country", "@country" or "$country") are bound to the document
// parameter values of the same name.
type SQLite struct{}

// NewSQLite is the registry factory for SQLite.
func NewSQLite() plugin.DataSource { return SQLite{} }

func (SQLite) Fetch(ctx context.Context, in *plugin.Input, spec plugin.FetcherSpec) (any, error) {
	query := spec.String("query")
	if query == "" {
		return nil, fmt.Errorf("sqlite fetcher %q: query is required", spec.Name)
	}

	dsn, err := sqlitePath(in, spec)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite fetcher %q: open: %w", spec.Name, err)
	}
	defer func() { _ = db.Close() }()

	args := bindParams(query, in)
	in.Log().Debug("Running query", "fetcher", spec.Name, "query", query, "args", len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite fetcher %q: query: %w", spec.Name, err)
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows)
}

func sqlitePath(in *plugin.Input, spec plugin.FetcherSpec) (string, error) {
	if spec.String("file") != "" {
		return dataPath(in, spec, "file")
	}
	creds, err := credentials(in, spec)
	if err != nil {
		return "", err
	}
	if p := creds[CredentialSQLitePath]; p != "" {
		return p, nil
	}
	return "", fmt.Errorf("sqlite fetcher %q: no 'file' option and no %s credential", spec.Name, CredentialSQLitePath)
}

// bindParams returns one named argument per distinct document parameter
// referenced in query.
func bindParams(query string, in *plugin.Input) []any {
	var args []any
	seen := make(map[string]bool)
	for _, m := range namedParam.FindAllStringSubmatch(query, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if v, ok := in.Param.Get(name); ok {
			args = append(args, sql.Named(name, v))
		}
	}
	return args
}

func scanRows(rows *sql.Rows) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
