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

package validator

import (
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tomoncle/entorm/types"
)

// Rule names reported in PropertyValidationError.Rule.
const (
	RuleScalar    = "scalar"
	RuleNotEmpty  = "notEmpty"
	RuleNoHTML    = "noHTML"
	RuleClass     = "class"
	RuleFilter    = "filter"
	RuleRegex     = "regex"
	RuleMinLength = "minLength"
	RuleMaxLength = "maxLength"
	RuleMin       = "min"
	RuleMax       = "max"
)

// Class restricts the characters of a value.
type Class string

const (
	ClassNone         Class = ""
	ClassAlphaNumeric Class = "alnum"
	ClassAlphabetic   Class = "alpha"
	ClassNumeric      Class = "digit"
)

// Filter is a named format check.
type Filter string

const (
	FilterNone   Filter = ""
	FilterEmail  Filter = "email"
	FilterURL    Filter = "url"
	FilterIP     Filter = "ip"
	FilterInt    Filter = "int"
	FilterFloat  Filter = "float"
	FilterBool   Filter = "bool"
	FilterDomain Filter = "domain"
)

// Validator checks a storage-bound scalar for the named property.
type Validator interface {
	Validate(value interface{}, property string) error
}

// Rules is the rule set of one property. A zero Rules accepts every scalar.
// Rules are evaluated in field order and the first failure is returned.
type Rules struct {
	NotEmpty  bool
	NoHTML    bool
	Class     Class
	Filter    Filter
	Regex     *regexp.Regexp
	MinLength *int
	MaxLength *int
	Min       *float64
	Max       *float64
}

var _ Validator = Rules{}

var markupPattern = regexp.MustCompile(`<[a-zA-Z/!?][^>]*>`)

var domainPattern = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// Validate returns a *types.PropertyValidationError naming the first rule
// value does not satisfy. Nil values only fail rules that demand content.
func (r Rules) Validate(value interface{}, property string) error {
	value = underlying(value)
	if !isScalar(value) {
		return types.NewPropertyValidation(property, RuleScalar,
			fmt.Errorf("%T can't be stored in the database", value))
	}
	s := scalarString(value)

	if r.NotEmpty && (value == nil || value == "") {
		return fail(property, RuleNotEmpty)
	}
	if r.NoHTML && markupPattern.MatchString(s) {
		return fail(property, RuleNoHTML)
	}
	if r.Class != ClassNone && !matchesClass(r.Class, s) {
		return types.NewPropertyValidation(property, RuleClass+"="+string(r.Class), nil)
	}
	if r.Filter != FilterNone && !passesFilter(r.Filter, s) {
		return types.NewPropertyValidation(property, RuleFilter+"="+string(r.Filter), nil)
	}
	if r.Regex != nil && !r.Regex.MatchString(s) {
		return fail(property, RuleRegex)
	}
	if r.MinLength != nil && utf8.RuneCountInString(s) < *r.MinLength {
		return fail(property, RuleMinLength)
	}
	if r.MaxLength != nil && utf8.RuneCountInString(s) > *r.MaxLength {
		return fail(property, RuleMaxLength)
	}
	if r.Min != nil || r.Max != nil {
		n, ok := numeric(value)
		if r.Min != nil && (!ok || n < *r.Min) {
			return fail(property, RuleMin)
		}
		if r.Max != nil && (!ok || n > *r.Max) {
			return fail(property, RuleMax)
		}
	}
	return nil
}

// IsZero reports whether no rule is set.
func (r Rules) IsZero() bool {
	return !r.NotEmpty && !r.NoHTML && r.Class == ClassNone && r.Filter == FilterNone &&
		r.Regex == nil && r.MinLength == nil && r.MaxLength == nil && r.Min == nil && r.Max == nil
}

// Length returns a pointer for MinLength/MaxLength literals.
func Length(n int) *int { return &n }

// Bound returns a pointer for Min/Max literals.
func Bound(n float64) *float64 { return &n }

func fail(property, rule string) error {
	return types.NewPropertyValidation(property, rule, nil)
}

// underlying turns values of named scalar types into their builtin type.
func underlying(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return ""
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func numeric(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func matchesClass(c Class, s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isDigit := r >= '0' && r <= '9'
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		switch c {
		case ClassAlphaNumeric:
			if !isDigit && !isAlpha {
				return false
			}
		case ClassAlphabetic:
			if !isAlpha {
				return false
			}
		case ClassNumeric:
			if !isDigit {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func passesFilter(f Filter, s string) bool {
	switch f {
	case FilterEmail:
		addr, err := mail.ParseAddress(s)
		return err == nil && addr.Address == s
	case FilterURL:
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	case FilterIP:
		return net.ParseIP(s) != nil
	case FilterInt:
		_, err := strconv.ParseInt(s, 10, 64)
		return err == nil
	case FilterFloat:
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	case FilterBool:
		switch strings.ToLower(s) {
		case "1", "true", "on", "yes":
			return true
		}
		return false
	case FilterDomain:
		return len(s) <= 253 && domainPattern.MatchString(s)
	default:
		return false
	}
}
