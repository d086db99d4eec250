package fetchers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDCSV reads a delimited text table from the data directory.
const IDCSV = "csv"

// CSV reads the "file" option as a table whose first record is the header.
//
// Options:
//   - delimiter: single character, "," by default
//   - columns: keep only these columns
//   - filter: document parameter keys; a row is kept only when its column of
//     the same name equals the parameter value
type CSV struct{}

// NewCSV is the registry factory for CSV.
func NewCSV() plugin.DataSource { return CSV{} }

func (CSV) Fetch(_ context.Context, in *plugin.Input, spec plugin.FetcherSpec) (any, error) {
	path, err := dataPath(in, spec, "file")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv fetcher %q: %w", spec.Name, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	if d := spec.String("delimiter"); d != "" {
		c, size := utf8.DecodeRuneInString(d)
		if size != len(d) {
			return nil, fmt.Errorf("csv fetcher %q: delimiter must be one character, got %q", spec.Name, d)
		}
		r.Comma = c
	}

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csv fetcher %q: read header: %w", spec.Name, err)
	}

	filters := make(map[string]string)
	for _, key := range spec.Strings("filter") {
		v, ok := in.Param.Get(key)
		if !ok {
			return nil, fmt.Errorf("csv fetcher %q: filter key %q is not a document parameter", spec.Name, key)
		}
		filters[key] = fmt.Sprint(v)
	}
	keep := spec.Strings("columns")

	rows := []any{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv fetcher %q: %w", spec.Name, err)
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		if !matches(row, filters) {
			continue
		}
		if keep != nil {
			row = project(row, keep)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func matches(row map[string]any, filters map[string]string) bool {
	for col, want := range filters {
		if row[col] != want {
			return false
		}
	}
	return true
}

func project(row map[string]any, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}
