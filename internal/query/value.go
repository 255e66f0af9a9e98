package query

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindDate
	KindTimestamp
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a single scalar cell. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	t    time.Time
	b    bool
}

func Null() Value                 { return Value{} }
func Int(v int64) Value           { return Value{kind: KindInt, i: v} }
func Float(v float64) Value       { return Value{kind: KindFloat, f: v} }
func Text(v string) Value         { return Value{kind: KindText, s: v} }
func Bool(v bool) Value           { return Value{kind: KindBool, b: v} }
func Date(v time.Time) Value      { return Value{kind: KindDate, t: v} }
func Timestamp(v time.Time) Value { return Value{kind: KindTimestamp, t: v} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) Int64() int64     { return v.i }
func (v Value) Float64() float64 { return v.f }
func (v Value) Bool() bool       { return v.b }
func (v Value) Time() time.Time  { return v.t }

// String renders the value as display text; null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindText:
		return v.s
	case KindDate:
		return v.t.Format(time.DateOnly)
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.String())
	}
}

// FromDriver maps a value scanned from database/sql into a Value. dbType is
// the driver's DatabaseTypeName for the column and may be empty.
func FromDriver(raw any, dbType string) Value {
	dbType = strings.ToUpper(dbType)
	switch typed := raw.(type) {
	case nil:
		return Null()
	case int64:
		return Int(typed)
	case int32:
		return Int(int64(typed))
	case int16:
		return Int(int64(typed))
	case int8:
		return Int(int64(typed))
	case int:
		return Int(int64(typed))
	case uint8:
		return Int(int64(typed))
	case uint16:
		return Int(int64(typed))
	case uint32:
		return Int(int64(typed))
	case uint64:
		if typed > math.MaxInt64 {
			return Float(float64(typed))
		}
		return Int(int64(typed))
	case float64:
		return Float(typed)
	case float32:
		return Float(float64(typed))
	case bool:
		return Bool(typed)
	case time.Time:
		if isDateType(dbType) {
			return Date(typed)
		}
		return Timestamp(typed)
	case *big.Int:
		if typed == nil {
			return Null()
		}
		if typed.IsInt64() {
			return Int(typed.Int64())
		}
		f, _ := new(big.Float).SetInt(typed).Float64()
		return Float(f)
	case []byte:
		return textOrNumber(string(typed), dbType)
	case string:
		return textOrNumber(typed, dbType)
	case interface{ Float64() float64 }:
		return Float(typed.Float64())
	}
	if f, ok := pointerFloat(raw); ok {
		return Float(f)
	}
	if s, ok := raw.(fmt.Stringer); ok {
		return Text(s.String())
	}
	return Text(fmt.Sprint(raw))
}

// pointerFloat covers decimal types whose Float64 method has a pointer receiver.
func pointerFloat(raw any) (float64, bool) {
	value := reflect.ValueOf(raw)
	if value.Kind() == reflect.Pointer {
		return 0, false
	}
	ptr := reflect.New(value.Type())
	ptr.Elem().Set(value)
	converter, ok := ptr.Interface().(interface{ Float64() float64 })
	if !ok {
		return 0, false
	}
	return converter.Float64(), true
}

func textOrNumber(value, dbType string) Value {
	if isNumericType(dbType) {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return Float(f)
		}
	}
	return Text(value)
}

func isDateType(dbType string) bool {
	return dbType == "DATE"
}

func isNumericType(dbType string) bool {
	return strings.HasPrefix(dbType, "NUMERIC") || strings.HasPrefix(dbType, "DECIMAL")
}
