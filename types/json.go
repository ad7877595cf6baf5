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

package types

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// JsonObject is a JSON object as stored in a text column. Numbers decode as
// int64 when integral and float64 otherwise.
type JsonObject map[string]interface{}

// JsonArray is a JSON array as stored in a text column.
type JsonArray []interface{}

// Value implements driver.Valuer for JsonObject.
func (j JsonObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JsonObject. NULL and empty text decode to
// an empty object.
func (j *JsonObject) Scan(value interface{}) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return err
	}
	obj := make(JsonObject)
	if len(raw) > 0 {
		var decoded interface{}
		if err := DecodeJSON(raw, &decoded); err != nil {
			return err
		}
		m, ok := decoded.(map[string]interface{})
		if !ok && decoded != nil {
			return fmt.Errorf("json value is %T, not an object", decoded)
		}
		for k, v := range m {
			obj[k] = v
		}
	}
	*j = obj
	return nil
}

// Value implements driver.Valuer for JsonArray.
func (j JsonArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JsonArray.
func (j *JsonArray) Scan(value interface{}) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return err
	}
	arr := make(JsonArray, 0)
	if len(raw) > 0 {
		var decoded []interface{}
		if err := DecodeJSON(raw, &decoded); err != nil {
			return err
		}
		arr = append(arr, decoded...)
	}
	*j = arr
	return nil
}

// DecodeJSON unmarshals data into v keeping numbers exact: integral numbers
// become int64, the rest float64.
func DecodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if p, ok := v.(*interface{}); ok {
		*p = NormalizeNumbers(*p)
	}
	if p, ok := v.(*map[string]interface{}); ok {
		NormalizeNumbers(*p)
	}
	if p, ok := v.(*[]interface{}); ok {
		for i := range *p {
			(*p)[i] = NormalizeNumbers((*p)[i])
		}
	}
	return nil
}

// NormalizeNumbers replaces json.Number values, recursively, by int64 or float64.
func NormalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		for k, e := range t {
			t[k] = NormalizeNumbers(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = NormalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.TrimSpace(v), nil
	case string:
		return []byte(strings.TrimSpace(v)), nil
	default:
		return nil, fmt.Errorf("json column value must be []byte or string, got %T", value)
	}
}
