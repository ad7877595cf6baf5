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

package entorm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomoncle/entorm/database"
	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/repository"
	"github.com/tomoncle/entorm/types"
)

// Service is a typed view of one entity type over a Repository.
type Service[E entity.Entity] interface {
	// Get returns the entity with the given primary value.
	Get(ctx context.Context, primary any) (E, error)

	// Try is Get returning the zero E and no error when nothing matches.
	Try(ctx context.Context, primary any) (E, error)

	// All returns every stored entity.
	All(ctx context.Context) ([]E, error)

	// List returns the entities whose properties equal conditions.
	List(ctx context.Context, conditions types.Conditions) ([]E, error)

	// Page returns one page of the entities matching conditions.
	Page(ctx context.Context, conditions types.Conditions, page *types.PageRequest) (*types.Pagination[E], error)

	// Count returns the number of entities matching conditions.
	Count(ctx context.Context, conditions types.Conditions) (int, error)

	// ChildrenOf returns the entities referencing any of parents.
	ChildrenOf(ctx context.Context, parents ...entity.Entity) ([]E, error)

	// Save inserts new entities, in one transaction when there are several.
	Save(ctx context.Context, model ...E) error

	// SaveOrUpdate updates stored entities and inserts the others.
	SaveOrUpdate(ctx context.Context, model ...E) error

	// Update writes stored entities back.
	Update(ctx context.Context, model ...E) error

	// Delete removes the entity with the given primary value and its children.
	Delete(ctx context.Context, primary any) error

	// DeleteEntity removes model and its children.
	DeleteEntity(ctx context.Context, model E) error

	// Query starts an untyped query on the entity table.
	Query() *repository.Query

	// Repository returns the underlying repository.
	Repository() (*repository.Repository, error)
}

type baseServiceImpl[E entity.Entity] struct {
	entityType string
	mu         sync.Mutex
	repo       *repository.Repository
}

type ServiceOption[E entity.Entity] func(*baseServiceImpl[E])

// WithRepository binds the service to repo instead of the global one.
func WithRepository[E entity.Entity](repo *repository.Repository) ServiceOption[E] {
	return func(s *baseServiceImpl[E]) {
		s.repo = repo
	}
}

// NewService returns a Service for entityType. Without WithRepository it
// uses the repository over the global database and entity registry, built
// on first use.
func NewService[E entity.Entity](entityType string, opts ...ServiceOption[E]) Service[E] {
	s := &baseServiceImpl[E]{entityType: entityType}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	globalRepoMu sync.Mutex
	globalRepo   *repository.Repository
)

// GlobalRepository returns the repository over database.GetAdapter() and
// database.RegisteredEntities(). database.InitDB must have been called.
func GlobalRepository() (*repository.Repository, error) {
	globalRepoMu.Lock()
	defer globalRepoMu.Unlock()
	adapter := database.GetAdapter()
	if adapter == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if globalRepo == nil || globalRepo.Adapter() != adapter {
		repo, err := repository.New(adapter, database.RegisteredEntities())
		if err != nil {
			return nil, err
		}
		globalRepo = repo
	}
	return globalRepo, nil
}

// baseRepo resolves the global repository on first successful use; a failure
// is retried on the next call.
func (s *baseServiceImpl[E]) baseRepo() (*repository.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo != nil {
		return s.repo, nil
	}
	repo, err := GlobalRepository()
	if err != nil {
		return nil, err
	}
	s.repo = repo
	return repo, nil
}

func (s *baseServiceImpl[E]) Repository() (*repository.Repository, error) {
	return s.baseRepo()
}

func (s *baseServiceImpl[E]) typed(e entity.Entity) (E, error) {
	var zero E
	if e == nil {
		return zero, nil
	}
	typed, ok := e.(E)
	if !ok {
		return zero, types.InvalidArgumentf("%s resolved to %T, want %T", s.entityType, e, zero)
	}
	return typed, nil
}

func (s *baseServiceImpl[E]) typedSlice(items []entity.Entity) ([]E, error) {
	out := make([]E, 0, len(items))
	for _, item := range items {
		e, err := s.typed(item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func untyped[E entity.Entity](model []E) []entity.Entity {
	out := make([]entity.Entity, len(model))
	for i, m := range model {
		out[i] = m
	}
	return out
}

func (s *baseServiceImpl[E]) Get(ctx context.Context, primary any) (E, error) {
	var zero E
	repo, err := s.baseRepo()
	if err != nil {
		return zero, err
	}
	e, err := repo.Get(ctx, s.entityType, primary)
	if err != nil {
		return zero, err
	}
	return s.typed(e)
}

func (s *baseServiceImpl[E]) Try(ctx context.Context, primary any) (E, error) {
	var zero E
	repo, err := s.baseRepo()
	if err != nil {
		return zero, err
	}
	e, err := repo.Try(ctx, s.entityType, primary)
	if err != nil {
		return zero, err
	}
	return s.typed(e)
}

func (s *baseServiceImpl[E]) All(ctx context.Context) ([]E, error) {
	return s.List(ctx, nil)
}

func (s *baseServiceImpl[E]) List(ctx context.Context, conditions types.Conditions) ([]E, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	coll, err := repo.Find(s.entityType, conditions).Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.typedSlice(coll.Items())
}

func (s *baseServiceImpl[E]) Page(ctx context.Context, conditions types.Conditions, page *types.PageRequest) (*types.Pagination[E], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	p, err := repo.Find(s.entityType, conditions).Page(ctx, page)
	if err != nil {
		return nil, err
	}
	items, err := s.typedSlice(p.Items)
	if err != nil {
		return nil, err
	}
	return &types.Pagination[E]{Page: p.Page, PageSize: p.PageSize, Total: p.Total, Items: items}, nil
}

func (s *baseServiceImpl[E]) Count(ctx context.Context, conditions types.Conditions) (int, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.Find(s.entityType, conditions).Count(ctx)
}

func (s *baseServiceImpl[E]) ChildrenOf(ctx context.Context, parents ...entity.Entity) ([]E, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	coll, err := repo.FindChildrenOf(s.entityType, nil, parents...).Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.typedSlice(coll.Items())
}

func (s *baseServiceImpl[E]) Save(ctx context.Context, model ...E) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.Store(ctx, untyped(model)...)
}

func (s *baseServiceImpl[E]) SaveOrUpdate(ctx context.Context, model ...E) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.Save(ctx, untyped(model)...)
}

func (s *baseServiceImpl[E]) Update(ctx context.Context, model ...E) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.Update(ctx, untyped(model)...)
}

func (s *baseServiceImpl[E]) Delete(ctx context.Context, primary any) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.Delete(ctx, s.entityType, primary)
}

func (s *baseServiceImpl[E]) DeleteEntity(ctx context.Context, model E) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.DeleteEntity(ctx, model)
}

// Query returns a query whose terminal calls report the binding error when
// no repository is available.
func (s *baseServiceImpl[E]) Query() *repository.Query {
	repo, err := s.baseRepo()
	if err != nil {
		return repository.FailedQuery(err)
	}
	return repo.Find(s.entityType, nil)
}
