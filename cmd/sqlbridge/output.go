// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/sqlbridge/lib/codec"
)

// resultSet is the rows produced by one statement.
type resultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// readRows returns a query that runs the single statement sql and
// collects its rows.
func readRows(sql string) func(conn *sqlite.Conn) (resultSet, error) {
	return func(conn *sqlite.Conn) (resultSet, error) {
		var result resultSet
		stmt, trailing, err := conn.PrepareTransient(sql)
		if err != nil {
			return result, err
		}
		if stmt == nil {
			return result, errors.New("no SQL statement given")
		}
		defer stmt.Finalize()
		if strings.TrimSpace(sql[len(sql)-trailing:]) != "" {
			return result, errors.New("query and each accept a single statement")
		}

		result.Columns = make([]string, stmt.ColumnCount())
		for i := range result.Columns {
			result.Columns[i] = stmt.ColumnName(i)
		}
		for {
			hasRow, err := stmt.Step()
			if err != nil {
				return result, err
			}
			if !hasRow {
				return result, nil
			}
			row := make([]any, len(result.Columns))
			for i := range row {
				row[i] = columnValue(stmt, i)
			}
			result.Rows = append(result.Rows, row)
		}
	}
}

func columnValue(stmt *sqlite.Stmt, column int) any {
	switch stmt.ColumnType(column) {
	case sqlite.TypeInteger:
		return stmt.ColumnInt64(column)
	case sqlite.TypeFloat:
		return stmt.ColumnFloat(column)
	case sqlite.TypeText:
		return stmt.ColumnText(column)
	case sqlite.TypeBlob:
		buffer := make([]byte, stmt.ColumnLen(column))
		stmt.ColumnBytes(column, buffer)
		return buffer
	default:
		return nil
	}
}

// textRenderer is implemented by results with a human-readable form.
type textRenderer interface {
	renderText(w io.Writer) error
}

// emit writes value to stdout in the selected format. Values without a
// text form are written as single-line JSON in text mode.
func (env *environment) emit(value any) error {
	switch env.format {
	case "cbor":
		return codec.NewEncoder(env.stdout).Encode(value)
	case "json":
		encoder := json.NewEncoder(env.stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(normalizeNilSlice(value))
	}

	if renderer, ok := value.(textRenderer); ok {
		return renderer.renderText(env.stdout)
	}
	switch value := value.(type) {
	case string:
		_, err := fmt.Fprintln(env.stdout, value)
		return err
	case []string:
		_, err := fmt.Fprintln(env.stdout, strings.Join(value, "\n"))
		return err
	}
	return json.NewEncoder(env.stdout).Encode(normalizeNilSlice(value))
}

// normalizeNilSlice turns a nil slice into an empty one so JSON output
// is [] rather than null.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}

func (r resultSet) renderText(w io.Writer) error {
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatCell(value)
		}
		fmt.Fprintln(table, strings.Join(cells, "\t"))
	}
	return table.Flush()
}

func (m memberResults) renderText(w io.Writer) error {
	for i, member := range m {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if member.Error != "" {
			fmt.Fprintf(w, "# connection %d: error: %s\n", member.Member, member.Error)
			continue
		}
		fmt.Fprintf(w, "# connection %d\n", member.Member)
		if err := member.resultSet.renderText(w); err != nil {
			return err
		}
	}
	return nil
}

func (r execResult) renderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d row(s) changed\n", r.Changes)
	return err
}

func (r kvResult) renderText(w io.Writer) error {
	verb := "stored"
	if r.Deleted {
		verb = "deleted"
	}
	_, err := fmt.Fprintf(w, "%s %s\n", verb, r.Key)
	return err
}

func (r purgeResult) renderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "purged %d expired key(s)\n", r.Purged)
	return err
}

func formatCell(value any) string {
	switch value := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return "x'" + hex.EncodeToString(value) + "'"
	default:
		return fmt.Sprint(value)
	}
}

// writeMetrics writes families in the Prometheus text exposition
// format.
func writeMetrics(w io.Writer, families []*dto.MetricFamily) error {
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return err
		}
	}
	return nil
}
