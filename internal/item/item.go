// Package item defines the storage representation of a record and the
// conversion from plain Go values into it.
//
// An Item holds only strings, booleans, Numbers, lists and nested maps.
// Empty values never appear in an Item: conversion drops nil, empty strings,
// empty lists and empty maps.
package item

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
)

// Item is a stored record keyed by attribute name.
type Item map[string]any

// Number is an exact decimal kept in its textual form.
type Number string

// ErrNotFinite is reported for NaN and infinite floats.
var ErrNotFinite = errors.New("number is not finite")

// ErrUnsupportedType is reported for values that have no storage representation.
var ErrUnsupportedType = errors.New("unsupported type")

// Warning describes a field that could not be converted and was left out.
type Warning struct {
	Field string `json:"field"`
	Err   error  `json:"-"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Field, w.Err)
}

// MarshalJSON includes the error text.
func (w Warning) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Field string `json:"field"`
		Error string `json:"error"`
	}{w.Field, w.Err.Error()})
}

// IntNumber formats an integer.
func IntNumber(n int64) Number {
	return Number(strconv.FormatInt(n, 10))
}

// FloatNumber formats a float with the fewest digits that round-trip.
func FloatNumber(f float64) (Number, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", ErrNotFinite
	}
	return Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// Float64 parses the number.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Int parses the number as an integer, truncating any fraction.
func (n Number) Int() (int64, error) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// MarshalJSON writes the number literally.
func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

// Convert turns plain Go values into an Item.
// Fields that cannot be represented are dropped and reported as warnings;
// Convert itself never fails.
func Convert(fields map[string]any) (Item, []Warning) {
	out := make(Item, len(fields))
	var warnings []Warning

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, ok, ws := convertValue(k, fields[k])
		warnings = append(warnings, ws...)
		if ok {
			out[k] = v
		}
	}
	return out, warnings
}

// convertValue returns the stored form of v and whether it should be kept.
func convertValue(path string, v any) (any, bool, []Warning) {
	switch val := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		return val, val != "", nil
	case bool:
		return val, true, nil
	case Number:
		return val, val != "", nil
	case json.Number:
		return Number(val), val != "", nil
	case int:
		return IntNumber(int64(val)), true, nil
	case int32:
		return IntNumber(int64(val)), true, nil
	case int64:
		return IntNumber(val), true, nil
	case uint:
		return Number(strconv.FormatUint(uint64(val), 10)), true, nil
	case uint64:
		return Number(strconv.FormatUint(val, 10)), true, nil
	case float32:
		return convertFloat(path, float64(val))
	case float64:
		return convertFloat(path, val)
	case *float64:
		if val == nil {
			return nil, false, nil
		}
		return convertFloat(path, *val)
	case time.Time:
		if val.IsZero() {
			return nil, false, nil
		}
		return val.UTC().Format(time.RFC3339), true, nil
	case []string:
		list := make([]any, 0, len(val))
		for _, s := range val {
			if s != "" {
				list = append(list, s)
			}
		}
		return list, len(list) > 0, nil
	case []any:
		return convertList(path, val)
	case []map[string]any:
		list := make([]any, len(val))
		for i, m := range val {
			list[i] = m
		}
		return convertList(path, list)
	case map[string]any:
		return convertMap(path, val)
	case Item:
		return convertMap(path, val)
	default:
		return nil, false, []Warning{{Field: path, Err: fmt.Errorf("%w %T", ErrUnsupportedType, v)}}
	}
}

func convertFloat(path string, f float64) (any, bool, []Warning) {
	n, err := FloatNumber(f)
	if err != nil {
		return nil, false, []Warning{{Field: path, Err: err}}
	}
	return n, true, nil
}

func convertList(path string, list []any) (any, bool, []Warning) {
	out := make([]any, 0, len(list))
	var warnings []Warning
	for i, elem := range list {
		v, ok, ws := convertValue(fmt.Sprintf("%s[%d]", path, i), elem)
		warnings = append(warnings, ws...)
		if ok {
			out = append(out, v)
		}
	}
	return out, len(out) > 0, warnings
}

func convertMap(path string, m map[string]any) (any, bool, []Warning) {
	out := make(map[string]any, len(m))
	var warnings []Warning
	for k, elem := range m {
		v, ok, ws := convertValue(path+"."+k, elem)
		warnings = append(warnings, ws...)
		if ok {
			out[k] = v
		}
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Field < warnings[j].Field })
	return out, len(out) > 0, warnings
}

// String returns the string stored under key, or "".
func (it Item) String(key string) string {
	s, _ := it[key].(string)
	return s
}

// Bool returns the boolean stored under key, or false.
func (it Item) Bool(key string) bool {
	b, _ := it[key].(bool)
	return b
}

// Number returns the number stored under key and whether it was present.
func (it Item) Number(key string) (Number, bool) {
	n, ok := it[key].(Number)
	return n, ok
}

// List returns the list stored under key, or nil.
func (it Item) List(key string) []any {
	l, _ := it[key].([]any)
	return l
}

// Strings returns the string elements of the list stored under key.
func (it Item) Strings(key string) []string {
	var out []string
	for _, v := range it.List(key) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Maps returns the map elements of the list stored under key.
func (it Item) Maps(key string) []map[string]any {
	var out []map[string]any
	for _, v := range it.List(key) {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
