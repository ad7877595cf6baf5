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
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// serializeConverter stores values as base64 encoded msgpack, so the blob
// stays valid JSON text.
type serializeConverter struct {
	scope  Scope
	target reflect.Type
}

func serializeFactory(s Scope) (Converter, error) {
	target := s.valueType()
	if target == nil {
		target = anyType
	}
	return &serializeConverter{scope: s, target: target}, nil
}

// SerializeOf returns a serialize converter factory decoding into T.
func SerializeOf[T any]() Factory {
	return func(s Scope) (Converter, error) {
		return &serializeConverter{scope: s, target: reflect.TypeOf((*T)(nil)).Elem()}, nil
	}
}

func (c *serializeConverter) ConvertForDatabase(_ context.Context, value interface{}) (interface{}, error) {
	b, err := msgpack.Marshal(value)
	if err != nil {
		return nil, c.scope.fail(KeySerialize, fmt.Errorf("marshal: %w", err))
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (c *serializeConverter) ConvertForDomain(_ context.Context, value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, c.scope.fail(KeySerialize, fmt.Errorf("expected base64 text, got %T", value))
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, c.scope.fail(KeySerialize, fmt.Errorf("base64: %w", err))
	}
	ptr := reflect.New(c.target)
	if err := msgpack.Unmarshal(b, ptr.Interface()); err != nil {
		return nil, c.scope.fail(KeySerialize, fmt.Errorf("unmarshal: %w", err))
	}
	return ptr.Elem().Interface(), nil
}
