package value

import (
	"fmt"
	"reflect"
	"time"
)

// FromNative converts a host-language value into a Value.
// Supported native kinds: nil, string, all signed/unsigned/floating numeric
// kinds, bool, time.Time, any slice/array (recursively converted to Array),
// any map with string keys (recursively converted to Hash), and any other
// iterable exposed as a slice via reflection (treated as Array). Anything
// else returns a descriptive error.
func FromNative(v interface{}) (Value, error) {
	if v == nil {
		return Empty(), nil
	}
	switch t := v.(type) {
	case Value:
		return t, nil
	case string:
		return Text(t), nil
	case bool:
		return Boolean(t), nil
	case time.Time:
		return Date(t), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Empty(), fmt.Errorf("value: unsupported map key kind %s", rv.Type().Key().Kind())
		}
		h := NewHashValue()
		iter := rv.MapRange()
		for iter.Next() {
			elem, err := FromNative(iter.Value().Interface())
			if err != nil {
				return Empty(), err
			}
			h.Set(iter.Key().String(), elem)
		}
		return NewHash(h), nil
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := FromNative(rv.Index(i).Interface())
			if err != nil {
				return Empty(), err
			}
			items[i] = elem
		}
		return NewArray(NewArrayValues(items)), nil
	case reflect.Ptr:
		if rv.IsNil() {
			return Empty(), nil
		}
		return FromNative(rv.Elem().Interface())
	default:
		return Empty(), fmt.Errorf("value: unsupported native kind %T", v)
	}
}

// ToNative converts a Value back into a plain Go value suitable for a host
// caller: Empty -> nil, scalars -> their Go primitive, Array -> []interface{},
// Hash -> map[string]interface{}, Iterator -> the *Iterator handle (opaque),
// FunctionRef -> its integer address.
func ToNative(v Value) interface{} {
	switch v.Kind() {
	case KindEmpty:
		return nil
	case KindNumber:
		n, _ := v.AsNumber()
		return n
	case KindText:
		s, _ := v.AsText()
		return s
	case KindBoolean:
		b, _ := v.AsBoolean()
		return b
	case KindDate:
		d, _ := v.AsDate()
		return d
	case KindArray:
		arr, _ := v.AsArray()
		out := make([]interface{}, arr.Len())
		for i, it := range arr.Items {
			out[i] = ToNative(it)
		}
		return out
	case KindHash:
		h, _ := v.AsHash()
		out := make(map[string]interface{}, h.Len())
		h.Each(func(key string, val Value) { out[key] = ToNative(val) })
		return out
	case KindIterator:
		it, _ := v.AsIterator()
		return it
	case KindFunctionRef:
		fn, _ := v.AsFunctionRef()
		return fn.Address
	default:
		return nil
	}
}
