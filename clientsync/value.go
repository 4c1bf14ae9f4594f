package clientsync

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// closed variant for query arguments and decoded payload values
// the wire encoding layer owns the exact integer/float sub-encoding rules;
// here numbers are carried as float64 and canonicalized with an integer
// form when the value is integral

type ValueKind int

const (
	ValueKindNull ValueKind = iota
	ValueKindBool
	ValueKindNumber
	ValueKindString
	ValueKindList
	ValueKindMap
)

type Value struct {
	kind        ValueKind
	boolValue   bool
	numberValue float64
	stringValue string
	listValue   []Value
	mapValue    map[string]Value
}

func NullValue() Value {
	return Value{kind: ValueKindNull}
}

func BoolValue(b bool) Value {
	return Value{kind: ValueKindBool, boolValue: b}
}

func IntValue(i int) Value {
	return Value{kind: ValueKindNumber, numberValue: float64(i)}
}

func FloatValue(f float64) Value {
	return Value{kind: ValueKindNumber, numberValue: f}
}

func StringValue(s string) Value {
	return Value{kind: ValueKindString, stringValue: s}
}

func ListValue(values ...Value) Value {
	return Value{kind: ValueKindList, listValue: values}
}

func MapValue(m map[string]Value) Value {
	return Value{kind: ValueKindMap, mapValue: m}
}

func (self Value) Kind() ValueKind {
	return self.kind
}

func (self Value) IsNull() bool {
	return self.kind == ValueKindNull
}

func (self Value) Bool() bool {
	return self.boolValue
}

func (self Value) Number() float64 {
	return self.numberValue
}

func (self Value) Int() int {
	return int(self.numberValue)
}

func (self Value) Text() string {
	return self.stringValue
}

func (self Value) List() []Value {
	return self.listValue
}

func (self Value) Map() map[string]Value {
	return self.mapValue
}

// serializes with sorted map keys and order-preserving lists, recursively
// two values are equal iff their canonical strings are equal
func (self Value) CanonicalString() string {
	out := &strings.Builder{}
	self.canonicalize(out)
	return out.String()
}

func (self Value) canonicalize(out *strings.Builder) {
	switch self.kind {
	case ValueKindNull:
		out.WriteString("null")
	case ValueKindBool:
		if self.boolValue {
			out.WriteString("true")
		} else {
			out.WriteString("false")
		}
	case ValueKindNumber:
		out.WriteString(canonicalNumber(self.numberValue))
	case ValueKindString:
		b, err := json.Marshal(self.stringValue)
		if err != nil {
			// strings always marshal
			panic(err)
		}
		out.Write(b)
	case ValueKindList:
		out.WriteByte('[')
		for i, value := range self.listValue {
			if 0 < i {
				out.WriteByte(',')
			}
			value.canonicalize(out)
		}
		out.WriteByte(']')
	case ValueKindMap:
		keys := make([]string, 0, len(self.mapValue))
		for key := range self.mapValue {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		out.WriteByte('{')
		for i, key := range keys {
			if 0 < i {
				out.WriteByte(',')
			}
			b, err := json.Marshal(key)
			if err != nil {
				panic(err)
			}
			out.Write(b)
			out.WriteByte(':')
			self.mapValue[key].canonicalize(out)
		}
		out.WriteByte('}')
	}
}

func canonicalNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < (1<<53) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (self Value) toJsonValue() any {
	switch self.kind {
	case ValueKindBool:
		return self.boolValue
	case ValueKindNumber:
		if self.numberValue == math.Trunc(self.numberValue) && math.Abs(self.numberValue) < (1<<53) {
			return int64(self.numberValue)
		}
		return self.numberValue
	case ValueKindString:
		return self.stringValue
	case ValueKindList:
		list := make([]any, len(self.listValue))
		for i, value := range self.listValue {
			list[i] = value.toJsonValue()
		}
		return list
	case ValueKindMap:
		m := map[string]any{}
		for key, value := range self.mapValue {
			m[key] = value.toJsonValue()
		}
		return m
	default:
		return nil
	}
}

func valueFromJsonValue(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(v), nil
	case float64:
		return FloatValue(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case string:
		return StringValue(v), nil
	case []any:
		values := make([]Value, len(v))
		for i, item := range v {
			value, err := valueFromJsonValue(item)
			if err != nil {
				return Value{}, err
			}
			values[i] = value
		}
		return ListValue(values...), nil
	case map[string]any:
		m := map[string]Value{}
		for key, item := range v {
			value, err := valueFromJsonValue(item)
			if err != nil {
				return Value{}, err
			}
			m[key] = value
		}
		return MapValue(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func (self Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(self.toJsonValue())
}

func (self *Value) UnmarshalJSON(src []byte) error {
	var v any
	if err := json.Unmarshal(src, &v); err != nil {
		return err
	}
	value, err := valueFromJsonValue(v)
	if err != nil {
		return err
	}
	*self = value
	return nil
}

func ValueFromJson(src []byte) (Value, error) {
	var value Value
	if err := json.Unmarshal(src, &value); err != nil {
		return Value{}, err
	}
	return value, nil
}
