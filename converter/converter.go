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

package converter

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/tomoncle/entorm/entity"
	"github.com/tomoncle/entorm/types"
)

// Keys of the built-in converters.
const (
	KeyEnum       = "enum"
	KeyCollection = "collection"
	KeyJSON       = "json"
	KeySerialize  = "serialize"
	KeyDatetime   = "datetime"
)

// Converter transforms a property value between its domain form and a
// storage scalar. Neither direction is called with nil.
type Converter interface {
	ConvertForDatabase(ctx context.Context, value interface{}) (interface{}, error)
	ConvertForDomain(ctx context.Context, value interface{}) (interface{}, error)
}

// Resolver gives converters access to the repository that owns them.
type Resolver interface {
	Get(ctx context.Context, entityType string, primary interface{}) (entity.Entity, error)
	Registry() *entity.Registry
}

// Scope is the (repository, entity type, property) triple a converter
// instance is bound to.
type Scope struct {
	Resolver   Resolver
	EntityType string
	Property   *entity.PropConfig
}

// PropertyName returns the scoped property name, or the entity type when the
// converter is used outside a property.
func (s Scope) PropertyName() string {
	if s.Property == nil {
		return s.EntityType
	}
	return s.Property.Name
}

// TypeRef returns the TypeRef of the scoped property.
func (s Scope) TypeRef() string {
	if s.Property == nil {
		return ""
	}
	return s.Property.TypeRef
}

func (s Scope) valueType() reflect.Type {
	if s.Property == nil || s.Property.ValueType() == nil {
		return nil
	}
	return s.Property.ValueType()
}

func (s Scope) fail(rule string, err error) error {
	return types.NewPropertyValidation(s.PropertyName(), rule, err)
}

// Factory builds a converter for one scope.
type Factory func(Scope) (Converter, error)

// Registry maps converter keys to factories. It also holds the enum sets the
// enum converter resolves by TypeRef.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	enums     map[string][]types.BaseEnum
}

// NewRegistry returns a registry with the built-in converters.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		enums:     make(map[string][]types.BaseEnum),
	}
	r.Register(KeyEnum, r.enumFactory)
	r.Register(KeyCollection, collectionFactory)
	r.Register(KeyJSON, jsonFactory)
	r.Register(KeySerialize, serializeFactory)
	r.Register(KeyDatetime, datetimeFactory)
	return r
}

// Register adds or replaces the factory under key.
func (r *Registry) Register(key string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
}

// RegisterEnum declares the cases of the enum set name. Properties select
// it with Convert("enum", name).
func (r *Registry) RegisterEnum(name string, cases ...types.BaseEnum) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enums[name] = append([]types.BaseEnum(nil), cases...)
}

// Keys lists the registered converter keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build creates the converter registered under key for scope.
func (r *Registry) Build(key string, scope Scope) (Converter, error) {
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, types.Configurationf("%s.%s: unknown converter %q", scope.EntityType, scope.PropertyName(), key)
	}
	return f(scope)
}

// Func adapts two functions into a Converter.
type Func struct {
	ToDatabase func(ctx context.Context, value interface{}) (interface{}, error)
	ToDomain   func(ctx context.Context, value interface{}) (interface{}, error)
}

func (f Func) ConvertForDatabase(ctx context.Context, value interface{}) (interface{}, error) {
	return f.ToDatabase(ctx, value)
}

func (f Func) ConvertForDomain(ctx context.Context, value interface{}) (interface{}, error) {
	return f.ToDomain(ctx, value)
}
