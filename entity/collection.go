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

package entity

import (
	"iter"

	"github.com/tomoncle/entorm/types"
)

// Collection is an ordered list of entities of one type.
type Collection struct {
	cfg   *Config
	items []Entity
}

// NewCollection returns a collection of cfg's type holding items.
func NewCollection(cfg *Config, items ...Entity) (*Collection, error) {
	if cfg == nil {
		return nil, types.Configurationf("collection without entity config")
	}
	c := &Collection{cfg: cfg, items: make([]Entity, 0, len(items))}
	for _, e := range items {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Type is the entity type of the members.
func (c *Collection) Type() string { return c.cfg.Type }

// Config is the entity config of the members.
func (c *Collection) Config() *Config { return c.cfg }

// Add appends e, which must be of the collection's type.
func (c *Collection) Add(e Entity) error {
	if !c.cfg.Owns(e) {
		return types.InvalidArgumentf("%T is not a %s entity", e, c.cfg.Type)
	}
	c.items = append(c.items, e)
	return nil
}

func (c *Collection) Len() int { return len(c.items) }

func (c *Collection) At(i int) Entity { return c.items[i] }

// Items returns a copy of the members.
func (c *Collection) Items() []Entity {
	out := make([]Entity, len(c.items))
	copy(out, c.items)
	return out
}

// All iterates the members in order.
func (c *Collection) All() iter.Seq2[int, Entity] {
	return func(yield func(int, Entity) bool) {
		for i, e := range c.items {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Filter returns a new collection with the members keep accepts.
func (c *Collection) Filter(keep func(Entity) bool) *Collection {
	out := &Collection{cfg: c.cfg, items: make([]Entity, 0, len(c.items))}
	for _, e := range c.items {
		if keep(e) {
			out.items = append(out.items, e)
		}
	}
	return out
}

// Reject returns a new collection without the members drop accepts.
func (c *Collection) Reject(drop func(Entity) bool) *Collection {
	return c.Filter(func(e Entity) bool { return !drop(e) })
}

// Map applies fn to every member.
func (c *Collection) Map(fn func(Entity) interface{}) []interface{} {
	out := make([]interface{}, len(c.items))
	for i, e := range c.items {
		out[i] = fn(e)
	}
	return out
}

// Each calls fn for every member.
func (c *Collection) Each(fn func(int, Entity)) {
	for i, e := range c.items {
		fn(i, e)
	}
}

// Pluck returns the named property of every member, nil where unset.
func (c *Collection) Pluck(property string) ([]interface{}, error) {
	p, err := c.cfg.Property(property)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(c.items))
	for i, e := range c.items {
		v, _, err := p.Value(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// PrimaryValues returns the primary value of every member.
func (c *Collection) PrimaryValues() ([]interface{}, error) {
	return c.Pluck(c.cfg.PrimaryProperty)
}

// ItemsOf returns the members as E, skipping members of another Go type.
func ItemsOf[E Entity](c *Collection) []E {
	out := make([]E, 0, len(c.items))
	for _, e := range c.items {
		if te, ok := e.(E); ok {
			out = append(out, te)
		}
	}
	return out
}
