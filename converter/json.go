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
	"fmt"
	"reflect"

	"github.com/goccy/go-json"

	"github.com/tomoncle/entorm/types"
)

var anyType = reflect.TypeOf((*interface{})(nil)).Elem()

// jsonConverter stores structured values as JSON text. Decoding targets the
// Go type of the property; untyped targets get maps, slices and
// int64/float64 numbers.
type jsonConverter struct {
	scope  Scope
	target reflect.Type
}

func jsonFactory(s Scope) (Converter, error) {
	return newJSON(s, s.valueType()), nil
}

// JSONOf returns a json converter factory decoding into T regardless of the
// property type.
func JSONOf[T any]() Factory {
	return func(s Scope) (Converter, error) {
		return newJSON(s, reflect.TypeOf((*T)(nil)).Elem()), nil
	}
}

func newJSON(s Scope, target reflect.Type) *jsonConverter {
	if target == nil {
		target = anyType
	}
	return &jsonConverter{scope: s, target: target}
}

func (c *jsonConverter) ConvertForDatabase(_ context.Context, value interface{}) (interface{}, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, c.scope.fail(KeyJSON, fmt.Errorf("encode: %w", err))
	}
	return string(b), nil
}

func (c *jsonConverter) ConvertForDomain(_ context.Context, value interface{}) (interface{}, error) {
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, c.scope.fail(KeyJSON, fmt.Errorf("expected JSON text, got %T", value))
	}

	ptr := reflect.New(c.target)
	if err := types.DecodeJSON(data, ptr.Interface()); err != nil {
		return nil, c.scope.fail(KeyJSON, fmt.Errorf("decode: %w", err))
	}
	return types.NormalizeNumbers(ptr.Elem().Interface()), nil
}
