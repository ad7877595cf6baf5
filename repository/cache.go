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
	"fmt"
	"sync"

	"github.com/tomoncle/entorm/entity"
)

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// IdentityCache keeps at most one live instance per (entity type, primary
// value). Primary values are keyed by their string form, so int64(7) and
// "7" name the same entity.
//
// The cache is not synchronized unless a locker is injected with
// WithLocker. A locker makes the map safe; it does not make the
// lookup-then-hydrate sequence of a Repository atomic.
type IdentityCache struct {
	mu      sync.Locker
	entries map[string]map[string]entity.Entity
}

type CacheOption func(*IdentityCache)

// WithLocker guards every cache access with l.
func WithLocker(l sync.Locker) CacheOption {
	return func(c *IdentityCache) { c.mu = l }
}

func NewIdentityCache(opts ...CacheOption) *IdentityCache {
	c := &IdentityCache{
		mu:      nopLocker{},
		entries: make(map[string]map[string]entity.Entity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(primary interface{}) string {
	return fmt.Sprint(primary)
}

func (c *IdentityCache) Get(entityType string, primary interface{}) (entity.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[entityType][cacheKey(primary)]
	return e, ok
}

func (c *IdentityCache) Put(entityType string, primary interface{}, e entity.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byKey, ok := c.entries[entityType]
	if !ok {
		byKey = make(map[string]entity.Entity)
		c.entries[entityType] = byKey
	}
	byKey[cacheKey(primary)] = e
}

// Evict drops the entry and returns the instance it held.
func (c *IdentityCache) Evict(entityType string, primary interface{}) (entity.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(primary)
	e, ok := c.entries[entityType][key]
	if ok {
		delete(c.entries[entityType], key)
	}
	return e, ok
}

// Len returns the number of cached instances of entityType.
func (c *IdentityCache) Len(entityType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries[entityType])
}

func (c *IdentityCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]map[string]entity.Entity)
}
