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
	"reflect"

	"github.com/tomoncle/entorm/types"
	"github.com/tomoncle/entorm/validator"
)

var entityInterface = reflect.TypeOf((*Entity)(nil)).Elem()

// PropConfig describes how one property of an entity is stored.
type PropConfig struct {
	Name   string
	Column string

	// Primary marks the identity property. Primary and Parent imply Indexed.
	Primary bool
	Indexed bool
	Parent  bool

	// TypeRef is the referenced entity type of a parent reference, the enum
	// set of an enum property or the fixed member type of a collection.
	TypeRef string

	// Converter is the key of a converter in the repository's converter registry.
	Converter string

	Constructor   bool
	OmitZero      bool
	AutoIncrement bool
	SQLType       string
	Validation    validator.Rules
	Generator     Generator

	valueType reflect.Type
	get       func(Entity) (reflect.Value, error)
	set       func(Entity, interface{}) error
}

// ValueType is the Go type of the property field.
func (p *PropConfig) ValueType() reflect.Type { return p.valueType }

// Value returns the property value of e and whether it is set. A property is
// unset when it holds nil, or its zero value when OmitZero is on. Pointers to
// scalars are dereferenced.
func (p *PropConfig) Value(e Entity) (interface{}, bool, error) {
	rv, err := p.get(e)
	if err != nil {
		return nil, false, err
	}
	if isNilable(rv.Kind()) && rv.IsNil() {
		return nil, false, nil
	}
	if p.OmitZero && rv.IsZero() {
		return nil, false, nil
	}
	if rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Pointer && !rv.Type().Implements(entityInterface) && isScalarKind(rv.Elem().Kind()) {
		rv = rv.Elem()
	}
	return rv.Interface(), true, nil
}

// Coerce converts v to the property's Go type without assigning it.
func (p *PropConfig) Coerce(v interface{}) (interface{}, error) {
	rv, err := coerce(v, p.valueType)
	if err != nil {
		return nil, types.NewPropertyValidation(p.Name, "type", err)
	}
	return rv.Interface(), nil
}

// Assign sets the property of e, converting v to the field type.
func (p *PropConfig) Assign(e Entity, v interface{}) error {
	return p.set(e, v)
}

// PropBuilder declares one property of entity type E.
type PropBuilder[E Entity] struct {
	prop *PropConfig
}

// Field declares a property backed by the field ref points to. The column
// defaults to the snake-cased property name.
//
//	entity.Field("Title", func(p *Post) *string { return &p.Title })
func Field[E Entity, V any](name string, ref func(E) *V) *PropBuilder[E] {
	vt := reflect.TypeOf((*V)(nil)).Elem()
	prop := &PropConfig{
		Name:      name,
		Column:    SnakeCase(name),
		valueType: vt,
	}
	prop.get = func(e Entity) (reflect.Value, error) {
		te, ok := e.(E)
		if !ok {
			return reflect.Value{}, types.Configurationf("property %s does not belong to %T", name, e)
		}
		return reflect.ValueOf(ref(te)).Elem(), nil
	}
	prop.set = func(e Entity, v interface{}) error {
		te, ok := e.(E)
		if !ok {
			return types.Configurationf("property %s does not belong to %T", name, e)
		}
		val, err := coerce(v, vt)
		if err != nil {
			return types.NewPropertyValidation(name, "type", err)
		}
		reflect.ValueOf(ref(te)).Elem().Set(val)
		return nil
	}
	return &PropBuilder[E]{prop: prop}
}

// Column overrides the storage column.
func (b *PropBuilder[E]) Column(column string) *PropBuilder[E] {
	b.prop.Column = column
	return b
}

// Primary marks the identity property.
func (b *PropBuilder[E]) Primary() *PropBuilder[E] {
	b.prop.Primary = true
	b.prop.Indexed = true
	return b
}

// AutoIncrement lets the store assign the primary value; a zero value
// counts as unset.
func (b *PropBuilder[E]) AutoIncrement() *PropBuilder[E] {
	b.prop.AutoIncrement = true
	b.prop.OmitZero = true
	return b
}

// Index materialises the property as its own column.
func (b *PropBuilder[E]) Index() *PropBuilder[E] {
	b.prop.Indexed = true
	return b
}

// Parent marks the property as a reference to an entity of entityType.
func (b *PropBuilder[E]) Parent(entityType string) *PropBuilder[E] {
	b.prop.Parent = true
	b.prop.Indexed = true
	b.prop.TypeRef = entityType
	return b
}

// Convert selects a converter by registry key. ref is the optional TypeRef
// the converter reads (enum set, collection member type).
func (b *PropBuilder[E]) Convert(key string, ref ...string) *PropBuilder[E] {
	b.prop.Converter = key
	if len(ref) > 0 {
		b.prop.TypeRef = ref[0]
	}
	return b
}

// Validate attaches a rule set checked against the storage value.
func (b *PropBuilder[E]) Validate(rules validator.Rules) *PropBuilder[E] {
	b.prop.Validation = rules
	return b
}

// Generate fills the property with g() when it is unset on first store.
func (b *PropBuilder[E]) Generate(g Generator) *PropBuilder[E] {
	b.prop.Generator = g
	return b
}

// OmitZero treats the zero value as unset.
func (b *PropBuilder[E]) OmitZero() *PropBuilder[E] {
	b.prop.OmitZero = true
	return b
}

// SQLType overrides the column type used when creating tables.
func (b *PropBuilder[E]) SQLType(sqlType string) *PropBuilder[E] {
	b.prop.SQLType = sqlType
	return b
}

// Config returns the declared property.
func (b *PropBuilder[E]) Config() *PropConfig { return b.prop }
