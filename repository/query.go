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

package repository

import (
	"context"
	"reflect"

	"github.com/tomoncle/entorm/database"
	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/types"
)

type condition struct {
	prop     *entity.PropConfig
	operator string
	value    interface{}
}

// Query is a lookup on one entity table. Builder methods resolve property
// names right away and keep the first error, which the terminal methods
// return. Every terminal call runs the query again.
type Query struct {
	repo *Repository
	cfg  *entity.Config
	err  error

	conditions []condition
	// where holds conditions already in storage form
	where  []database.Condition
	orders []database.Order
	limit  int
	offset int
}

func newQuery(repo *Repository, entityType string) *Query {
	q := &Query{repo: repo}
	q.cfg, q.err = repo.entities.For(entityType)
	return q
}

// FailedQuery returns a query whose terminal methods all return err.
func FailedQuery(err error) *Query {
	return &Query{err: err}
}

// Err returns the first builder error.
func (q *Query) Err() error { return q.err }

func (q *Query) column(prop string) (*entity.PropConfig, bool) {
	if q.err != nil {
		return nil, false
	}
	p, err := q.cfg.Property(prop)
	if err != nil {
		q.err = err
		return nil, false
	}
	if !p.Indexed {
		q.err = types.Configurationf("%s.%s has no column of its own", q.cfg.Type, prop)
		return nil, false
	}
	return p, true
}

// Where filters on prop. op is one of = != < <= > >= like, "not like", in
// and "not in"; IN operators take a slice. Entities compare by primary value
// and converted properties are compared in their stored form.
func (q *Query) Where(prop, op string, value interface{}) *Query {
	p, ok := q.column(prop)
	if !ok {
		return q
	}
	canon, ok := database.NormalizeOperator(op)
	if !ok {
		q.err = types.InvalidArgumentf("unsupported operator %q", op)
		return q
	}
	q.conditions = append(q.conditions, condition{prop: p, operator: canon, value: value})
	return q
}

func (q *Query) WhereIn(prop string, values ...interface{}) *Query {
	return q.Where(prop, "IN", values)
}

func (q *Query) Limit(n int) *Query {
	if n < 0 && q.err == nil {
		q.err = types.InvalidArgumentf("negative limit %d", n)
	}
	q.limit = n
	return q
}

func (q *Query) Offset(n int) *Query {
	if n < 0 && q.err == nil {
		q.err = types.InvalidArgumentf("negative offset %d", n)
	}
	q.offset = n
	return q
}

func (q *Query) OrderAsc(prop string) *Query {
	if p, ok := q.column(prop); ok {
		q.orders = append(q.orders, database.Order{Column: p.Column})
	}
	return q
}

func (q *Query) OrderDesc(prop string) *Query {
	if p, ok := q.column(prop); ok {
		q.orders = append(q.orders, database.Order{Column: p.Column, Desc: true})
	}
	return q
}

// Get returns the matching entities in query order.
func (q *Query) Get(ctx context.Context) (*entity.Collection, error) {
	rows, err := q.run(ctx, q.limit, q.offset)
	if err != nil {
		return nil, err
	}
	coll, err := entity.NewCollection(q.cfg)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		e, err := q.repo.SpawnFromRow(ctx, q.cfg.Type, row)
		if err != nil {
			return nil, err
		}
		if err := coll.Add(e); err != nil {
			return nil, err
		}
	}
	return coll, nil
}

// GetFirst returns the first match or an EntityNotFound error.
func (q *Query) GetFirst(ctx context.Context) (entity.Entity, error) {
	e, err := q.TryFirst(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, types.NewEntityNotFound(q.cfg.Type, nil)
	}
	return e, nil
}

// TryFirst returns the first match, or nil when nothing matches.
func (q *Query) TryFirst(ctx context.Context) (entity.Entity, error) {
	rows, err := q.run(ctx, 1, q.offset)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return q.repo.SpawnFromRow(ctx, q.cfg.Type, rows[0])
}

// Count returns the number of matching rows, ignoring limit and offset.
func (q *Query) Count(ctx context.Context) (int, error) {
	where, err := q.storageWhere(ctx)
	if err != nil {
		return 0, err
	}
	n, err := q.repo.adapter.Count(ctx, q.cfg.Table, where)
	if err != nil {
		return 0, database.WrapError("count "+q.cfg.Table, err)
	}
	return n, nil
}

// Page returns one page of matches with the total count. The query's own
// limit and offset are ignored.
func (q *Query) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[entity.Entity], error) {
	if page == nil {
		page = types.NewPageRequest(1, 10)
	}
	pagination := types.NewDefaultPagination[entity.Entity](page.GetPage(), page.GetPageSize())
	total, err := q.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	rows, err := q.run(ctx, page.GetPageSize(), page.GetOffset())
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		e, err := q.repo.SpawnFromRow(ctx, q.cfg.Type, row)
		if err != nil {
			return nil, err
		}
		pagination.Items = append(pagination.Items, e)
	}
	pagination.Total = total
	return pagination, nil
}

func (q *Query) run(ctx context.Context, limit, offset int) ([]database.Row, error) {
	where, err := q.storageWhere(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.repo.adapter.Select(ctx, database.SelectQuery{
		Table:   q.cfg.Table,
		Columns: []string{q.cfg.PrimaryColumn(), q.cfg.PropsColumn},
		Where:   where,
		Orders:  q.orders,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, database.WrapError("select "+q.cfg.Table, err)
	}
	return rows, nil
}

// storageWhere converts the property conditions to column conditions.
func (q *Query) storageWhere(ctx context.Context) ([]database.Condition, error) {
	if q.err != nil {
		return nil, q.err
	}
	where := make([]database.Condition, 0, len(q.where)+len(q.conditions))
	where = append(where, q.where...)
	for _, c := range q.conditions {
		var (
			value interface{}
			err   error
		)
		if c.operator == "IN" || c.operator == "NOT IN" {
			value, err = q.storageList(ctx, c)
		} else {
			value, err = q.repo.storageValue(ctx, q.cfg, c.prop, c.value)
		}
		if err != nil {
			return nil, err
		}
		where = append(where, database.Condition{Column: c.prop.Column, Operator: c.operator, Value: value})
	}
	return where, nil
}

func (q *Query) storageList(ctx context.Context, c condition) ([]interface{}, error) {
	rv := reflect.ValueOf(c.value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, types.InvalidArgumentf("%s on %s needs a list, got %T", c.operator, c.prop.Name, c.value)
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		v, err := q.repo.storageValue(ctx, q.cfg, c.prop, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
