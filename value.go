/*
 * phpserialize-go, (C) 2024 sokojh
 *
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

package phpserialize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	// KindNull is the PHP null value.
	KindNull Kind = iota
	// KindBool is a PHP boolean.
	KindBool
	// KindInt is a PHP integer (64-bit signed).
	KindInt
	// KindFloat is a PHP float (64-bit IEEE-754, may be ±Inf or NaN).
	KindFloat
	// KindString is a PHP string. The payload is raw bytes, may contain NULs
	// and need not be valid UTF-8.
	KindString
	// KindArray is a PHP array: an ordered sequence of key/value pairs.
	KindArray
	// KindObject is a PHP object: class name plus ordered properties.
	KindObject
	// KindEnum is a PHP 8.1+ enum case.
	KindEnum
	// KindReference is an unresolved R/r reference, carried as a 1-based
	// index into construction order.
	KindReference
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBool:      "boolean",
	KindInt:       "integer",
	KindFloat:     "float",
	KindString:    "string",
	KindArray:     "array",
	KindObject:    "object",
	KindEnum:      "enum",
	KindReference: "reference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Visibility is the declared visibility of an object property.
type Visibility uint8

const (
	// Public property.
	Public Visibility = iota
	// Protected property, wire-encoded with a "\x00*\x00" name prefix.
	Protected
	// Private property, wire-encoded with a "\x00ClassName\x00" name prefix.
	Private
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Protected:
		return "protected"
	case Private:
		return "private"
	}
	return fmt.Sprintf("Visibility(%d)", v)
}

// Element is one key/value pair of a PHP array. Keys are restricted to
// KindInt and KindString by the parser; duplicates are allowed and preserved
// in wire order.
type Element struct {
	Key   Value
	Value Value
}

// Property is one object property.
type Property struct {
	// Name is the decoded property name with any visibility prefix removed.
	Name string
	// Visibility of the property.
	Visibility Visibility
	// DeclaringClass is set for private properties only.
	DeclaringClass string
	// Value of the property.
	Value Value
}

// Value is a decoded PHP value.
//
// String payloads returned by the parser are sub-slices of the input buffer
// unless the result has been detached; the input must outlive the value in
// that case. A Value is immutable once parsing returns and may be read from
// any number of goroutines.
type Value struct {
	kind  Kind
	boolv bool
	intv  int64
	num   float64
	bytes []byte
	// class holds the class name for objects and enums, and the case name
	// slot is enumCase.
	class    string
	enumCase string
	elems    []Element
	props    []Property
	ref      int
}

// Constructors. The parser uses these, and they are handy for building
// expected values in tests.

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, boolv: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, intv: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, num: f} }

// Bytes returns a string value wrapping b without copying.
func Bytes(b []byte) Value { return Value{kind: KindString, bytes: b} }

// String returns a string value holding s.
func String(s string) Value { return Value{kind: KindString, bytes: []byte(s)} }

// Array returns an array value wrapping elems without copying.
func Array(elems []Element) Value { return Value{kind: KindArray, elems: elems} }

// Object returns an object value wrapping props without copying.
func Object(class string, props []Property) Value {
	return Value{kind: KindObject, class: class, props: props}
}

// Enum returns an enum value.
func Enum(class, caseName string) Value {
	return Value{kind: KindEnum, class: class, enumCase: caseName}
}

// Reference returns a reference value carrying a 1-based index.
func Reference(idx int) Value { return Value{kind: KindReference, ref: idx} }

// Kind returns the type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolv, true
}

// Int returns the integer payload.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.intv, true
}

// Float returns the float payload. Integers convert.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.num, true
	case KindInt:
		return float64(v.intv), true
	}
	return 0, false
}

// Bytes returns the raw string payload. The slice aliases the input buffer
// unless the value has been detached; callers must not modify it.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindString {
		return nil, false
	}
	return v.bytes, true
}

// Str returns the string payload if it is valid UTF-8.
func (v Value) Str() (string, bool) {
	if v.kind != KindString || !utf8.Valid(v.bytes) {
		return "", false
	}
	return string(v.bytes), true
}

// Array returns the array elements in wire order.
func (v Value) Array() ([]Element, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.elems, true
}

// Object returns the class name and properties in wire order.
func (v Value) Object() (class string, props []Property, ok bool) {
	if v.kind != KindObject {
		return "", nil, false
	}
	return v.class, v.props, true
}

// Enum returns the enum class and case names.
func (v Value) Enum() (class, caseName string, ok bool) {
	if v.kind != KindEnum {
		return "", "", false
	}
	return v.class, v.enumCase, true
}

// Reference returns the 1-based reference index.
func (v Value) Reference() (int, bool) {
	if v.kind != KindReference {
		return 0, false
	}
	return v.ref, true
}

// StringMap flattens an array into a map keyed by the string form of each
// key. Int keys render in decimal; later duplicates win. Returns false for
// non-arrays.
func (v Value) StringMap() (map[string]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	m := make(map[string]Value, len(v.elems))
	for _, e := range v.elems {
		switch e.Key.kind {
		case KindString:
			m[lossyString(e.Key.bytes)] = e.Value
		case KindInt:
			m[strconv.FormatInt(e.Key.intv, 10)] = e.Value
		default:
			return nil, false
		}
	}
	return m, true
}

// Detach deep-copies every payload that may alias the input buffer,
// returning a value with no ties to the bytes it was parsed from.
func (v Value) Detach() Value {
	switch v.kind {
	case KindString:
		if v.bytes != nil {
			b := make([]byte, len(v.bytes))
			copy(b, v.bytes)
			v.bytes = b
		}
	case KindArray:
		elems := make([]Element, len(v.elems))
		for i, e := range v.elems {
			elems[i] = Element{Key: e.Key.Detach(), Value: e.Value.Detach()}
		}
		v.elems = elems
	case KindObject:
		props := make([]Property, len(v.props))
		for i, p := range v.props {
			p.Value = p.Value.Detach()
			props[i] = p
		}
		v.props = props
	}
	return v
}

// Equal reports structural equality. Float payloads compare bitwise-ish:
// NaN equals NaN, so a detached tree always equals its source.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolv == o.boolv
	case KindInt:
		return v.intv == o.intv
	case KindFloat:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindString:
		return string(v.bytes) == string(o.bytes)
	case KindArray:
		if len(v.elems) != len(o.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Key.Equal(o.elems[i].Key) || !v.elems[i].Value.Equal(o.elems[i].Value) {
				return false
			}
		}
		return true
	case KindObject:
		if v.class != o.class || len(v.props) != len(o.props) {
			return false
		}
		for i := range v.props {
			p, q := v.props[i], o.props[i]
			if p.Name != q.Name || p.Visibility != q.Visibility || p.DeclaringClass != q.DeclaringClass {
				return false
			}
			if !p.Value.Equal(q.Value) {
				return false
			}
		}
		return true
	case KindEnum:
		return v.class == o.class && v.enumCase == o.enumCase
	case KindReference:
		return v.ref == o.ref
	}
	return false
}

// String renders a compact human-readable form for logs and debugging.
func (v Value) String() string {
	var sb strings.Builder
	v.writeDisplay(&sb)
	return sb.String()
}

func (v Value) writeDisplay(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.boolv))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.intv, 10))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.num, 'g', -1, 64))
	case KindString:
		if utf8.Valid(v.bytes) {
			fmt.Fprintf(sb, "%q", v.bytes)
		} else {
			fmt.Fprintf(sb, "<binary %d bytes>", len(v.bytes))
		}
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.Key.writeDisplay(sb)
			sb.WriteString(" => ")
			e.Value.writeDisplay(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteString(v.class)
		sb.WriteString("{...}")
	case KindEnum:
		sb.WriteString(v.class)
		sb.WriteString("::")
		sb.WriteString(v.enumCase)
	case KindReference:
		sb.WriteByte('&')
		sb.WriteString(strconv.Itoa(v.ref))
	}
}

// TypeName returns the kind name for error messages.
func (v Value) TypeName() string { return v.kind.String() }

// lossyString decodes b as UTF-8, substituting U+FFFD for invalid sequences.
func lossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.WriteRune(r)
		}
		b = b[size:]
	}
	return sb.String()
}
