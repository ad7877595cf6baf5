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
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// coerce converts a decoded storage value into a value assignable to t.
// It handles the shapes JSON and SQL drivers produce: int64/float64 numbers,
// strings, []interface{} and map[string]interface{}.
func coerce(v interface{}, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch {
	case t.Kind() == reflect.Pointer:
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return reflect.Zero(t), nil
			}
			return coerce(rv.Elem().Interface(), t)
		}
		inner, err := coerce(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil

	case rv.Kind() == reflect.Pointer:
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		return coerce(rv.Elem().Interface(), t)

	case isNumberKind(rv.Kind()) && isNumberKind(t.Kind()):
		if isIntKind(t.Kind()) && isFloatKind(rv.Kind()) && rv.Float() != math.Trunc(rv.Float()) {
			return reflect.Value{}, fmt.Errorf("cannot assign fractional %v to %s", v, t)
		}
		return rv.Convert(t), nil

	case rv.Kind() == reflect.String && t.Kind() == reflect.String,
		rv.Kind() == reflect.Bool && t.Kind() == reflect.Bool:
		return rv.Convert(t), nil

	case rv.Kind() == reflect.String && isNumberKind(t.Kind()):
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot assign %q to %s", rv.String(), t)
		}
		return coerce(f, t)

	case isNumberKind(rv.Kind()) && t.Kind() == reflect.String:
		var s string
		switch {
		case isIntKind(rv.Kind()):
			s = strconv.FormatInt(rv.Int(), 10)
		case isFloatKind(rv.Kind()):
			s = strconv.FormatFloat(rv.Float(), 'f', -1, 64)
		default:
			s = strconv.FormatUint(rv.Uint(), 10)
		}
		return reflect.ValueOf(s).Convert(t), nil

	case rv.Kind() == reflect.Slice && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			e, err := coerce(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil

	case rv.Kind() == reflect.Map && t.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String && t.Key().Kind() == reflect.String:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			e, err := coerce(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("key %s: %w", iter.Key().String(), err)
			}
			out.SetMapIndex(iter.Key().Convert(t.Key()), e)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %T to %s", v, t)
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumberKind(k reflect.Kind) bool {
	return isIntKind(k) || isUintKind(k) || isFloatKind(k)
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func isScalarKind(k reflect.Kind) bool {
	return isNumberKind(k) || k == reflect.String || k == reflect.Bool
}

// SnakeCase turns a Go identifier into a column name: "CreatedAt" becomes
// "created_at" and "UserID" becomes "user_id".
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TableName returns the default table of an entity type: the plural of its
// snake-cased name.
func TableName(entityType string) string {
	return inflection.Plural(SnakeCase(entityType))
}
