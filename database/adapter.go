/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Row is one storage record keyed by column name.
type Row map[string]interface{}

// Condition filters rows on one column. A nil Value with "=" or "!=" becomes
// IS NULL / IS NOT NULL; IN and NOT IN take a slice.
type Condition struct {
	Column   string
	Operator string
	Value    interface{}
}

// Eq returns an equality condition.
func Eq(column string, value interface{}) Condition {
	return Condition{Column: column, Operator: "=", Value: value}
}

// Order sorts on one column.
type Order struct {
	Column string
	Desc   bool
}

// SelectQuery describes a single-table lookup. Empty Columns selects all
// columns; zero Limit means no limit.
type SelectQuery struct {
	Table   string
	Columns []string
	Where   []Condition
	Orders  []Order
	Limit   int
	Offset  int
}

// Result reports the effect of a write.
type Result struct {
	Affected        int64
	LastInsertID    int64
	HasLastInsertID bool
}

// Adapter is the storage contract the repository runs on. Transactions are
// explicit and not nested: while one is open every call runs inside it.
type Adapter interface {
	Select(ctx context.Context, q SelectQuery) ([]Row, error)
	Count(ctx context.Context, table string, where []Condition) (int, error)
	// Insert writes row. When returning names an auto-increment column the
	// generated value is reported as LastInsertID.
	Insert(ctx context.Context, table string, row Row, returning string) (Result, error)
	Update(ctx context.Context, table string, row Row, where []Condition) (Result, error)
	Delete(ctx context.Context, table string, where []Condition) (Result, error)

	TxnBegin(ctx context.Context) error
	TxnCommit() error
	TxnRollback() error
	InTxn() bool
}

var operators = map[string]string{
	"=":        "=",
	"==":       "=",
	"!=":       "!=",
	"<>":       "!=",
	"<":        "<",
	"<=":       "<=",
	">":        ">",
	">=":       ">=",
	"like":     "LIKE",
	"not like": "NOT LIKE",
	"in":       "IN",
	"not in":   "NOT IN",
}

// NormalizeOperator returns the canonical SQL form of op, or false when op
// is not supported.
func NormalizeOperator(op string) (string, bool) {
	canon, ok := operators[strings.ToLower(strings.TrimSpace(op))]
	return canon, ok
}

type bunAdapter struct {
	db *bun.DB

	mu sync.Mutex
	tx *bun.Tx
}

var _ Adapter = (*bunAdapter)(nil)

// NewBunAdapter returns an Adapter running on db.
func NewBunAdapter(db *bun.DB) Adapter {
	return &bunAdapter{db: db}
}

func (a *bunAdapter) idb() bun.IDB {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx != nil {
		return a.tx
	}
	return a.db
}

func (a *bunAdapter) Select(ctx context.Context, sq SelectQuery) ([]Row, error) {
	q := a.idb().NewSelect().TableExpr("?", bun.Ident(sq.Table))
	if len(sq.Columns) == 0 {
		q = q.ColumnExpr("*")
	}
	for _, c := range sq.Columns {
		q = q.ColumnExpr("?", bun.Ident(c))
	}
	q, err := applyWhere(q, sq.Where)
	if err != nil {
		return nil, err
	}
	for _, o := range sq.Orders {
		if o.Desc {
			q = q.OrderExpr("? DESC", bun.Ident(o.Column))
		} else {
			q = q.OrderExpr("? ASC", bun.Ident(o.Column))
		}
	}
	if sq.Limit > 0 {
		q = q.Limit(sq.Limit)
	}
	if sq.Offset > 0 {
		q = q.Offset(sq.Offset)
	}

	var raw []map[string]interface{}
	if err := q.Scan(ctx, &raw); err != nil {
		return nil, err
	}
	rows := make([]Row, len(raw))
	for i, r := range raw {
		for k, v := range r {
			// mysql returns text columns as bytes
			if b, ok := v.([]byte); ok {
				r[k] = string(b)
			}
		}
		rows[i] = r
	}
	return rows, nil
}

func (a *bunAdapter) Count(ctx context.Context, table string, where []Condition) (int, error) {
	q := a.idb().NewSelect().TableExpr("?", bun.Ident(table))
	q, err := applyWhere(q, where)
	if err != nil {
		return 0, err
	}
	return q.Count(ctx)
}

func (a *bunAdapter) Insert(ctx context.Context, table string, row Row, returning string) (Result, error) {
	values := map[string]interface{}(row)
	q := a.idb().NewInsert().Model(&values).TableExpr("?", bun.Ident(table))

	if returning != "" && a.db.Dialect().Name() == dialect.PG {
		// lib/pq has no LastInsertId
		var id int64
		res, err := q.Returning("?", bun.Ident(returning)).Exec(ctx, &id)
		if err != nil {
			return Result{}, err
		}
		affected, _ := res.RowsAffected()
		return Result{Affected: affected, LastInsertID: id, HasLastInsertID: true}, nil
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return Result{}, err
	}
	out := Result{}
	out.Affected, _ = res.RowsAffected()
	if returning != "" {
		if id, err := res.LastInsertId(); err == nil {
			out.LastInsertID, out.HasLastInsertID = id, true
		}
	}
	return out, nil
}

// Update and Delete carry no LIMIT: not every dialect supports it and the
// repository always filters on the primary column.
func (a *bunAdapter) Update(ctx context.Context, table string, row Row, where []Condition) (Result, error) {
	if len(where) == 0 {
		return Result{}, fmt.Errorf("update of %s without condition", table)
	}
	values := map[string]interface{}(row)
	q := a.idb().NewUpdate().Model(&values).TableExpr("?", bun.Ident(table))
	q, err := applyWhere(q, where)
	if err != nil {
		return Result{}, err
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return Result{}, err
	}
	affected, _ := res.RowsAffected()
	return Result{Affected: affected}, nil
}

func (a *bunAdapter) Delete(ctx context.Context, table string, where []Condition) (Result, error) {
	if len(where) == 0 {
		return Result{}, fmt.Errorf("delete from %s without condition", table)
	}
	q := a.idb().NewDelete().TableExpr("?", bun.Ident(table))
	q, err := applyWhere(q, where)
	if err != nil {
		return Result{}, err
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return Result{}, err
	}
	affected, _ := res.RowsAffected()
	return Result{Affected: affected}, nil
}

func (a *bunAdapter) TxnBegin(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx != nil {
		return fmt.Errorf("%w: transaction already open", ErrTxnState)
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	a.tx = &tx
	return nil
}

func (a *bunAdapter) TxnCommit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx == nil {
		return fmt.Errorf("%w: no open transaction to commit", ErrTxnState)
	}
	err := a.tx.Commit()
	a.tx = nil
	return err
}

func (a *bunAdapter) TxnRollback() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx == nil {
		return fmt.Errorf("%w: no open transaction to roll back", ErrTxnState)
	}
	err := a.tx.Rollback()
	a.tx = nil
	return err
}

func (a *bunAdapter) InTxn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tx != nil
}

type wherer[Q any] interface {
	Where(query string, args ...interface{}) Q
}

func applyWhere[Q wherer[Q]](q Q, where []Condition) (Q, error) {
	for _, c := range where {
		op, ok := NormalizeOperator(c.Operator)
		if !ok {
			return q, fmt.Errorf("unsupported operator %q on %s", c.Operator, c.Column)
		}
		switch {
		case c.Value == nil && op == "=":
			q = q.Where("? IS NULL", bun.Ident(c.Column))
		case c.Value == nil && op == "!=":
			q = q.Where("? IS NOT NULL", bun.Ident(c.Column))
		case op == "IN" || op == "NOT IN":
			rv := reflect.ValueOf(c.Value)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return q, fmt.Errorf("%s on %s needs a list, got %T", op, c.Column, c.Value)
			}
			if rv.Len() == 0 {
				// empty IN matches nothing, empty NOT IN everything
				if op == "IN" {
					q = q.Where("1 = 0")
				}
				continue
			}
			q = q.Where("? "+op+" (?)", bun.Ident(c.Column), bun.In(c.Value))
		default:
			q = q.Where("? "+op+" ?", bun.Ident(c.Column), c.Value)
		}
	}
	return q, nil
}
