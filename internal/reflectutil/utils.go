/*
 *	cloudrpc allows for clients to call procedures on a compute server remotely.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package reflectutil

import (
	"encoding"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// ErrNotPointer is returned by Assign when the destination is not a non-nil pointer
var ErrNotPointer = errors.New("destination must be a non-nil pointer")

// Assign stores a decoded wire value in the value out points to,
// converting it to the pointed-to type if necessary
func Assign(val any, out any) error {
	outVal := reflect.ValueOf(out)
	if outVal.Kind() != reflect.Ptr || outVal.IsNil() {
		return ErrNotPointer
	}

	// Get the type being pointed at
	outType := outVal.Type().Elem()

	newVal, err := ValueOf(val, outType)
	if err != nil {
		return err
	}

	outVal.Elem().Set(newVal)
	return nil
}

// ValueOf returns a reflect value of the given type holding val.
// A nil val becomes the zero value of the type.
func ValueOf(val any, toType reflect.Type) (reflect.Value, error) {
	if val == nil {
		return reflect.Zero(toType), nil
	}
	return Convert(reflect.ValueOf(val), toType)
}

// Convert attempts to convert the given value to the given type
func Convert(in reflect.Value, toType reflect.Type) (reflect.Value, error) {
	// Get input type
	inType := in.Type()

	// If input can be used as the desired type directly, return
	if inType == toType || (toType.Kind() == reflect.Interface && inType.Implements(toType)) {
		return in, nil
	}

	// If the output type is a pointer to the input type
	if reflect.PointerTo(inType) == toType {
		inPtrVal := reflect.New(inType)
		inPtrVal.Elem().Set(in)
		return inPtrVal, nil
	}

	// If the output type is a pointer to something else,
	// convert to the element type and take its address
	if toType.Kind() == reflect.Ptr {
		elem, err := Convert(in, toType.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(toType.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}

	// Create new value of desired type
	to := reflect.New(toType)

	switch val := in.Interface().(type) {
	case string:
		// If desired type satisfies text unmarshaler
		if u, ok := to.Interface().(encoding.TextUnmarshaler); ok {
			if err := u.UnmarshalText([]byte(val)); err != nil {
				return reflect.Value{}, err
			}
			return to.Elem(), nil
		}
	case []byte:
		// If desired type satisfies binary unmarshaler
		if u, ok := to.Interface().(encoding.BinaryUnmarshaler); ok {
			if err := u.UnmarshalBinary(val); err != nil {
				return reflect.Value{}, err
			}
			return to.Elem(), nil
		}
	}

	// Numbers and strings convert according to Go's conversion rules.
	// Conversions from numbers to strings are excluded because
	// they produce runes rather than digits.
	if in.CanConvert(toType) && !(isNumber(inType.Kind()) && toType.Kind() == reflect.String) {
		if err := checkNumber(in, toType); err != nil {
			return reflect.Value{}, err
		}
		return in.Convert(toType), nil
	}

	// Maps decode into structs and typed maps using mapstructure
	if in.Kind() == reflect.Map &&
		(toType.Kind() == reflect.Struct || toType.Kind() == reflect.Map) {
		if err := decodeMap(in.Interface(), to.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %s to %s: %w", inType, toType, err)
		}
		return to.Elem(), nil
	}

	// Slices decode element by element into slices and arrays
	if in.Kind() == reflect.Slice &&
		(toType.Kind() == reflect.Slice || toType.Kind() == reflect.Array) {
		return ConvertSlice(in, toType)
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", inType, toType)
}

// ConvertSlice converts a slice to the slice or array type provided
// in the "to" argument, converting every element along the way
func ConvertSlice(in reflect.Value, to reflect.Type) (reflect.Value, error) {
	elemType := to.Elem()

	var out reflect.Value
	switch to.Kind() {
	case reflect.Slice:
		out = reflect.MakeSlice(to, in.Len(), in.Len())
	case reflect.Array:
		if to.Len() != in.Len() {
			return reflect.Value{}, fmt.Errorf("cannot convert %d elements to %s", in.Len(), to)
		}
		out = reflect.New(to).Elem()
	default:
		return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", in.Type(), to)
	}

	for i := 0; i < in.Len(); i++ {
		// Unwrap interface elements, as in []any
		inVal := in.Index(i)
		if inVal.Kind() == reflect.Interface {
			if inVal.IsNil() {
				continue
			}
			inVal = inVal.Elem()
		}

		outVal, err := Convert(inVal, elemType)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(outVal)
	}

	return out, nil
}

func decodeMap(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       numberHook,
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// numberHook applies the numeric checks of Convert to struct
// fields and map values decoded by mapstructure
func numberHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if err := checkNumber(reflect.ValueOf(data), to); err != nil {
		return nil, err
	}
	return data, nil
}

// checkNumber returns an error if converting the number in to
// toType would lose its value, such as 7.9 to int or 300 to int8.
// Values that are not numbers are not checked.
func checkNumber(in reflect.Value, toType reflect.Type) error {
	if !in.IsValid() || !isNumber(in.Kind()) || !isNumber(toType.Kind()) {
		return nil
	}

	zero := reflect.Zero(toType)
	lossy := false

	switch {
	case isFloat(in.Kind()):
		f := in.Float()
		switch {
		case isInt(toType.Kind()):
			lossy = math.Trunc(f) != f ||
				f < math.MinInt64 || f >= math.MaxInt64 ||
				zero.OverflowInt(int64(f))
		case isUint(toType.Kind()):
			lossy = math.Trunc(f) != f ||
				f < 0 || f >= math.MaxUint64 ||
				zero.OverflowUint(uint64(f))
		default:
			lossy = !math.IsInf(f, 0) && !math.IsNaN(f) && zero.OverflowFloat(f)
		}
	case isInt(in.Kind()):
		i := in.Int()
		switch {
		case isInt(toType.Kind()):
			lossy = zero.OverflowInt(i)
		case isUint(toType.Kind()):
			lossy = i < 0 || zero.OverflowUint(uint64(i))
		}
	case isUint(in.Kind()):
		u := in.Uint()
		switch {
		case isInt(toType.Kind()):
			lossy = u > math.MaxInt64 || zero.OverflowInt(int64(u))
		case isUint(toType.Kind()):
			lossy = zero.OverflowUint(u)
		}
	}

	if lossy {
		return fmt.Errorf("cannot convert %v to %s without losing precision", in.Interface(), toType)
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || isFloat(k)
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
