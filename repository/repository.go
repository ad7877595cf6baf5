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
	"errors"
	"sync"

	"github.com/tomoncle/entorm/converter"
	"github.com/tomoncle/entorm/database"
	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/types"
	"github.com/tomoncle/entorm/validator"
)

// ValidatorFor picks the validator of a property. The default uses the
// rules declared on the property.
type ValidatorFor func(prop *entity.PropConfig) validator.Validator

func declaredRules(prop *entity.PropConfig) validator.Validator {
	return prop.Validation
}

// Repository maps registered entities onto rows of one adapter and keeps
// an identity cache so that one (type, primary) pair has one live instance.
// A Repository is meant for one goroutine at a time.
type Repository struct {
	adapter      database.Adapter
	entities     *entity.Registry
	converters   *converter.Registry
	cache        *IdentityCache
	validatorFor ValidatorFor
	logger       database.Logger

	convMu sync.Mutex
	convs  map[string]converter.Converter

	// cache changes made inside an open transaction, undone on rollback
	undo []func()
}

var _ EntityRepository = (*Repository)(nil)

type Option func(*Repository)

func WithLogger(logger database.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

// WithConverters replaces the converter registry. Start from
// converter.NewRegistry() to keep the built-ins.
func WithConverters(converters *converter.Registry) Option {
	return func(r *Repository) { r.converters = converters }
}

func WithCache(cache *IdentityCache) Option {
	return func(r *Repository) { r.cache = cache }
}

func WithValidator(fn ValidatorFor) Option {
	return func(r *Repository) { r.validatorFor = fn }
}

// New returns a repository for the entities of registry. Parent references
// and converter keys are checked here and reported as configuration errors.
func New(adapter database.Adapter, registry *entity.Registry, opts ...Option) (*Repository, error) {
	if adapter == nil {
		return nil, types.InvalidArgumentf("nil adapter")
	}
	if registry == nil {
		return nil, types.InvalidArgumentf("nil entity registry")
	}
	r := &Repository{
		adapter:      adapter,
		entities:     registry,
		converters:   converter.NewRegistry(),
		cache:        NewIdentityCache(),
		validatorFor: declaredRules,
		logger:       database.GetLogger(),
		convs:        make(map[string]converter.Converter),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = database.NopLogger{}
	}

	if err := registry.Validate(); err != nil {
		return nil, err
	}
	for _, cfg := range registry.Configs() {
		for _, p := range cfg.Properties {
			if p.Converter == "" {
				continue
			}
			if _, err := r.converterFor(cfg, p); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Registry returns the entity registry.
func (r *Repository) Registry() *entity.Registry { return r.entities }

// Cache returns the identity cache.
func (r *Repository) Cache() *IdentityCache { return r.cache }

// Adapter returns the storage adapter.
func (r *Repository) Adapter() database.Adapter { return r.adapter }

func (r *Repository) converterFor(cfg *entity.Config, p *entity.PropConfig) (converter.Converter, error) {
	key := cfg.Type + "." + p.Name
	r.convMu.Lock()
	defer r.convMu.Unlock()
	if c, ok := r.convs[key]; ok {
		return c, nil
	}
	c, err := r.converters.Build(p.Converter, converter.Scope{Resolver: r, EntityType: cfg.Type, Property: p})
	if err != nil {
		return nil, err
	}
	r.convs[key] = c
	return c, nil
}

// primaryKey normalizes primary to the Go type of the primary property.
func primaryKey(cfg *entity.Config, primary interface{}) (interface{}, error) {
	if primary == nil {
		return nil, types.InvalidArgumentf("nil primary value for %s", cfg.Type)
	}
	return cfg.Primary().Coerce(primary)
}

// Get returns the entity of entityType with the given primary value,
// reading it from the store when it is not cached.
func (r *Repository) Get(ctx context.Context, entityType string, primary interface{}) (entity.Entity, error) {
	e, err := r.Try(ctx, entityType, primary)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, types.NewEntityNotFound(entityType, primary)
	}
	return e, nil
}

// Try is Get returning a nil entity instead of an EntityNotFound error.
func (r *Repository) Try(ctx context.Context, entityType string, primary interface{}) (entity.Entity, error) {
	cfg, err := r.entities.For(entityType)
	if err != nil {
		return nil, err
	}
	key, err := primaryKey(cfg, primary)
	if err != nil {
		return nil, err
	}
	if e, ok := r.cache.Get(entityType, key); ok {
		return e, nil
	}

	rows, err := r.adapter.Select(ctx, database.SelectQuery{
		Table:   cfg.Table,
		Columns: []string{cfg.PrimaryColumn(), cfg.PropsColumn},
		Where:   []database.Condition{database.Eq(cfg.PrimaryColumn(), key)},
		Limit:   1,
	})
	if err != nil {
		return nil, database.WrapError("select "+cfg.Table, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return r.SpawnFromRow(ctx, entityType, rows[0])
}

// Find starts a query on entityType where every property of conditions
// equals its value.
func (r *Repository) Find(entityType string, conditions types.Conditions) *Query {
	q := newQuery(r, entityType)
	for _, prop := range conditions.Keys() {
		q.Where(prop, "=", conditions[prop])
	}
	return q
}

// All returns every stored entity of entityType.
func (r *Repository) All(ctx context.Context, entityType string) (*entity.Collection, error) {
	return r.Find(entityType, nil).Get(ctx)
}

// FindChildrenOf starts a query on childType restricted to children of
// parents. Parents of one type are matched with IN; parents of different
// types must all match.
func (r *Repository) FindChildrenOf(childType string, conditions types.Conditions, parents ...entity.Entity) *Query {
	q := r.Find(childType, conditions)
	if q.err != nil {
		return q
	}
	if len(parents) == 0 {
		q.err = types.InvalidArgumentf("no parent entities given for %s", childType)
		return q
	}

	var order []string
	byType := make(map[string][]interface{})
	for _, parent := range parents {
		if parent == nil {
			q.err = types.InvalidArgumentf("nil parent entity for %s", childType)
			return q
		}
		primary, err := r.entities.PrimaryValue(parent)
		if err != nil {
			q.err = err
			return q
		}
		if primary == nil {
			q.err = types.InvalidArgumentf("%s parent has no primary value", parent.EntityType())
			return q
		}
		t := parent.EntityType()
		if _, seen := byType[t]; !seen {
			order = append(order, t)
		}
		byType[t] = append(byType[t], primary)
	}

	for _, t := range order {
		column, ok := q.cfg.ParentColumnByType[t]
		if !ok {
			q.err = types.Configurationf("%s has no parent reference to %s", childType, t)
			return q
		}
		values := byType[t]
		if len(values) == 1 {
			q.where = append(q.where, database.Eq(column, values[0]))
		} else {
			q.where = append(q.where, database.Condition{Column: column, Operator: "IN", Value: values})
		}
	}
	return q
}

// Store inserts new entities. Several entities are written in one
// transaction unless the caller already opened one.
func (r *Repository) Store(ctx context.Context, entities ...entity.Entity) error {
	return r.atomically(ctx, len(entities) > 1, func() error {
		for _, e := range entities {
			if err := r.insert(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update writes entities back by primary value. A primary value without a
// row is an EntityNotFound error.
func (r *Repository) Update(ctx context.Context, entities ...entity.Entity) error {
	return r.atomically(ctx, len(entities) > 1, func() error {
		for _, e := range entities {
			if err := r.update(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Save updates entities that have a stored row and inserts the others.
func (r *Repository) Save(ctx context.Context, entities ...entity.Entity) error {
	return r.atomically(ctx, len(entities) > 1, func() error {
		for _, e := range entities {
			cfg, err := r.entities.ForEntity(e)
			if err != nil {
				return err
			}
			primary, err := cfg.PrimaryValue(e)
			if err != nil {
				return err
			}
			if primary == nil {
				err = r.insert(ctx, e)
			} else if err = r.update(ctx, e); errors.Is(err, types.ErrEntityNotFound) {
				err = r.insert(ctx, e)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the entity and, first, every entity referencing it as a
// parent, depth first. Cascading deletes run in one transaction unless the
// caller already opened one.
func (r *Repository) Delete(ctx context.Context, entityType string, primary interface{}) error {
	cfg, err := r.entities.For(entityType)
	if err != nil {
		return err
	}
	key, err := primaryKey(cfg, primary)
	if err != nil {
		return err
	}
	return r.atomically(ctx, len(r.entities.Children(entityType)) > 0, func() error {
		return r.delete(ctx, cfg, key, make(map[string]struct{}))
	})
}

// DeleteEntity deletes e by its primary value. e must not be used
// afterwards.
func (r *Repository) DeleteEntity(ctx context.Context, e entity.Entity) error {
	cfg, err := r.entities.ForEntity(e)
	if err != nil {
		return err
	}
	primary, err := cfg.PrimaryValue(e)
	if err != nil {
		return err
	}
	if primary == nil {
		return types.InvalidArgumentf("%s has no primary value", cfg.Type)
	}
	return r.Delete(ctx, cfg.Type, primary)
}

func (r *Repository) TxnBegin(ctx context.Context) error {
	if err := r.adapter.TxnBegin(ctx); err != nil {
		return database.WrapError("begin", err)
	}
	r.undo = nil
	return nil
}

func (r *Repository) TxnCommit() error {
	if err := r.adapter.TxnCommit(); err != nil {
		r.revertCache()
		return database.WrapError("commit", err)
	}
	r.undo = nil
	return nil
}

// TxnRollback rolls the transaction back and undoes the cache changes made
// since TxnBegin.
func (r *Repository) TxnRollback() error {
	err := r.adapter.TxnRollback()
	r.revertCache()
	if err != nil {
		return database.WrapError("rollback", err)
	}
	return nil
}

// atomically runs fn in a new transaction when wanted and none is open.
// On failure the transaction is rolled back and fn's error returned.
func (r *Repository) atomically(ctx context.Context, want bool, fn func() error) error {
	if !want || r.adapter.InTxn() {
		return fn()
	}
	if err := r.TxnBegin(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := r.TxnRollback(); rbErr != nil {
			r.logger.Warn("Rollback failed", "error", rbErr)
		}
		return err
	}
	return r.TxnCommit()
}

// cachePut caches e, remembering the previous entry while a transaction is
// open.
func (r *Repository) cachePut(entityType string, primary interface{}, e entity.Entity) {
	prev, had := r.cache.Get(entityType, primary)
	r.cache.Put(entityType, primary, e)
	if !r.adapter.InTxn() {
		return
	}
	r.undo = append(r.undo, func() {
		if had {
			r.cache.Put(entityType, primary, prev)
		} else {
			r.cache.Evict(entityType, primary)
		}
	})
}

func (r *Repository) cacheEvict(entityType string, primary interface{}) {
	prev, had := r.cache.Evict(entityType, primary)
	if !had || !r.adapter.InTxn() {
		return
	}
	r.undo = append(r.undo, func() { r.cache.Put(entityType, primary, prev) })
}

func (r *Repository) revertCache() {
	for i := len(r.undo) - 1; i >= 0; i-- {
		r.undo[i]()
	}
	r.undo = nil
}
