// Package query builds parameterized SQL WHERE clauses from request search
// parameters. It encapsulates the common search pattern shared by all
// domain repositories.
package query

import (
	"fmt"
	"strings"
)

// ParamType defines how a search parameter is matched against its column.
type ParamType int

const (
	ParamExact    ParamType = iota // exact equality
	ParamContains                  // case-insensitive substring match
	ParamDate                      // supports prefixes (gt, lt, ge, le, eq)
	ParamNumber                    // supports prefixes (gt, lt, ge, le, eq)
)

// ParamConfig maps a search parameter to its database column.
type ParamConfig struct {
	Type   ParamType
	Column string
}

// Builder accumulates WHERE clause fragments with positional arguments.
type Builder struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// New creates a Builder for the given table and column list.
func New(table, cols string) *Builder {
	return &Builder{
		table: table,
		cols:  cols,
		idx:   1,
	}
}

// Idx returns the next available parameter index.
func (q *Builder) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *Builder) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// AddExact adds an equality clause.
func (q *Builder) AddExact(column, value string) {
	q.where += fmt.Sprintf(" AND %s = $%d", column, q.idx)
	q.args = append(q.args, value)
	q.idx++
}

// AddContains adds a case-insensitive substring clause.
func (q *Builder) AddContains(column, value string) {
	q.where += fmt.Sprintf(" AND %s ILIKE $%d", column, q.idx)
	q.args = append(q.args, "%"+escapeLike(value)+"%")
	q.idx++
}

// AddComparable adds a clause for date or number values with an optional
// two-letter comparison prefix (gt, lt, ge, le, eq).
func (q *Builder) AddComparable(column, value string) {
	op := "="
	if len(value) > 2 {
		switch value[:2] {
		case "gt":
			op, value = ">", value[2:]
		case "lt":
			op, value = "<", value[2:]
		case "ge":
			op, value = ">=", value[2:]
		case "le":
			op, value = "<=", value[2:]
		case "eq":
			value = value[2:]
		}
	}
	q.where += fmt.Sprintf(" AND %s %s $%d", column, op, q.idx)
	q.args = append(q.args, value)
	q.idx++
}

// ApplyParams applies all search parameters that have a configuration.
// Unknown parameters are ignored.
func (q *Builder) ApplyParams(params map[string]string, configs map[string]ParamConfig) {
	for name, value := range params {
		config, ok := configs[name]
		if !ok {
			continue
		}
		switch config.Type {
		case ParamContains:
			q.AddContains(config.Column, value)
		case ParamDate, ParamNumber:
			q.AddComparable(config.Column, value)
		default:
			q.AddExact(config.Column, value)
		}
	}
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *Builder) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// CountSQL returns the count query SQL.
func (q *Builder) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *Builder) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *Builder) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the data query (search args + limit + offset).
func (q *Builder) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// escapeLike escapes LIKE wildcard characters in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
