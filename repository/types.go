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

	"github.com/tomoncle/entorm/converter"
	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/types"
)

// CrudRepository reads and writes entities of any registered type.
type CrudRepository interface {
	Get(ctx context.Context, entityType string, primary interface{}) (entity.Entity, error)

	Try(ctx context.Context, entityType string, primary interface{}) (entity.Entity, error)

	Find(entityType string, conditions types.Conditions) *Query

	All(ctx context.Context, entityType string) (*entity.Collection, error)

	FindChildrenOf(childType string, conditions types.Conditions, parents ...entity.Entity) *Query

	Store(ctx context.Context, entities ...entity.Entity) error

	Update(ctx context.Context, entities ...entity.Entity) error

	Save(ctx context.Context, entities ...entity.Entity) error

	Delete(ctx context.Context, entityType string, primary interface{}) error

	DeleteEntity(ctx context.Context, e entity.Entity) error
}

// TransactionRepository controls the adapter transaction. Transactions are
// not nested.
type TransactionRepository interface {
	TxnBegin(ctx context.Context) error
	TxnCommit() error
	TxnRollback() error
}

// EntityRepository is the full repository contract. It also resolves
// entities for converters.
type EntityRepository interface {
	CrudRepository
	TransactionRepository
	converter.Resolver
}
