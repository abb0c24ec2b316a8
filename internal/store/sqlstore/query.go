package sqlstore

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wolfeidau/caseguard/internal/models"
	"github.com/wolfeidau/caseguard/internal/store"
	"github.com/wolfeidau/caseguard/internal/tenancy"
)

type statement struct {
	query string
	args  []any
}

const alias = tenancy.EntityAlias

func selectStatement(e models.Entity, pred tenancy.Predicate) statement {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s.* FROM %s AS %s", alias, e.Table, alias)
	if join := pred.Join(); join != "" {
		b.WriteString(" ")
		b.WriteString(join)
	}
	fmt.Fprintf(&b, " WHERE %s ORDER BY %s.%s", pred.SQL(), alias, e.IDColumn)
	return statement{query: rebind(b.String()), args: pred.Args()}
}

// insertStatement writes a plain insert for Direct entities. Parent scoped
// entities insert through a SELECT guarded by the parent predicate, so a
// parent the principal cannot see yields no row.
func insertStatement(e models.Entity, fields store.Fields, guard tenancy.Predicate) statement {
	cols, values := split(fields)
	markers := placeholders(len(cols))

	var query string
	args := values
	if e.Tenancy.Strategy == models.StrategyDirect {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			e.Table, strings.Join(cols, ", "), markers)
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) SELECT %s WHERE %s RETURNING *",
			e.Table, strings.Join(cols, ", "), markers, guard.SQL())
		args = append(args, guard.Args()...)
	}
	return statement{query: rebind(query), args: args}
}

func updateStatement(e models.Entity, fields store.Fields, pred tenancy.Predicate) statement {
	cols, values := split(fields)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s AS %s SET %s WHERE %s RETURNING *",
		e.Table, alias, strings.Join(sets, ", "), pred.SQL())
	return statement{query: rebind(query), args: append(values, pred.Args()...)}
}

func deleteStatement(e models.Entity, pred tenancy.Predicate) statement {
	query := fmt.Sprintf("DELETE FROM %s AS %s WHERE %s", e.Table, alias, pred.SQL())
	return statement{query: rebind(query), args: pred.Args()}
}

// split orders columns by name so generated statements are stable.
func split(fields store.Fields) ([]string, []any) {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	values := make([]any, len(cols))
	for i, col := range cols {
		values[i] = fields[col]
	}
	return cols, values
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// rebind numbers '?' markers as $1..$n. Identifiers never contain '?', since
// they are validated against a plain identifier pattern.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// scanRows reads every row into a column keyed map.
func scanRows(rows *sql.Rows) ([]store.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []store.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(store.Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
