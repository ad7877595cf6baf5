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
	"time"

	"github.com/google/uuid"

	"github.com/tomoncle/entorm/types"
)

// Entity is a domain object persisted as one row. EntityType names the
// registered Config describing it.
type Entity interface {
	EntityType() string
}

// Creator is implemented by entities that want a callback right before
// their first row is written.
type Creator interface {
	OnCreate()
}

// Updater is implemented by entities that want a callback before every
// write, inserts included.
type Updater interface {
	OnUpdate()
}

// Args carries constructor properties by name. Properties missing from
// storage are present with a nil value.
type Args map[string]interface{}

// Arg returns the named argument converted to V. A nil or missing argument
// yields the zero value of V.
func Arg[V any](args Args, name string) (V, error) {
	var zero V
	v, err := coerce(args[name], reflect.TypeOf((*V)(nil)).Elem())
	if err != nil {
		return zero, types.NewPropertyValidation(name, "type", err)
	}
	out, _ := v.Interface().(V)
	return out, nil
}

// Generator produces a value for an unset property when an entity is stored
// for the first time.
type Generator func() interface{}

// GenerateUUID returns a UUIDv7 string, falling back to v4.
func GenerateUUID() interface{} {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// GenerateNow returns the current UTC time.
func GenerateNow() interface{} {
	return time.Now().UTC()
}
