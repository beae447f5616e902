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
	"errors"
	"math"
	"strconv"
	"unicode/utf8"
)

// JSON projection of a value tree.
//
// Mapping rules:
//
//	null                     -> null
//	bool                     -> boolean
//	int                      -> number
//	float                    -> number; NaN -> null, ±Inf -> "Infinity"/"-Infinity"
//	string                   -> string (lossy UTF-8)
//	array, keys 0..n-1       -> array
//	array, any other keys    -> object, int keys in decimal
//	object                   -> object with "__class__" plus properties;
//	                            protected keys render as "*name", private as
//	                            "Class::name"
//	enum                     -> "Class::Case"
//	reference                -> {"__ref__": index}
//
// Keys keep wire order; duplicate array keys are emitted in order, so
// readers that apply last-wins see PHP's overwrite semantics.

// ErrNonUTF8Payload is returned by ToJSONStrict when a string payload or
// property key is not valid UTF-8.
var ErrNonUTF8Payload = errors.New("phpserialize: non-UTF-8 string payload")

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return AppendJSON(make([]byte, 0, 64), v), nil
}

// ToJSON renders v as JSON, lossily decoding non-UTF-8 string payloads.
func ToJSON(v Value) []byte {
	return AppendJSON(nil, v)
}

// ToJSONStrict renders v as JSON but fails on non-UTF-8 string payloads
// instead of substituting replacement runes. Pair it with WithStrictUTF8 in
// pipelines that must not silently rewrite bytes.
func ToJSONStrict(v Value) ([]byte, error) {
	if hasNonUTF8(v) {
		return nil, ErrNonUTF8Payload
	}
	return AppendJSON(nil, v), nil
}

func hasNonUTF8(v Value) bool {
	switch v.kind {
	case KindString:
		return !utf8.Valid(v.bytes)
	case KindArray:
		for _, e := range v.elems {
			if hasNonUTF8(e.Key) || hasNonUTF8(e.Value) {
				return true
			}
		}
	case KindObject:
		for _, p := range v.props {
			if hasNonUTF8(p.Value) {
				return true
			}
		}
	}
	return false
}

// AppendJSON appends the JSON form of v to dst and returns the result.
func AppendJSON(dst []byte, v Value) []byte {
	switch v.kind {
	case KindNull:
		return append(dst, "null"...)
	case KindBool:
		if v.boolv {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case KindInt:
		return strconv.AppendInt(dst, v.intv, 10)
	case KindFloat:
		return appendJSONFloat(dst, v.num)
	case KindString:
		return appendJSONString(dst, v.bytes)
	case KindArray:
		if isIndexed(v.elems) {
			dst = append(dst, '[')
			for i, e := range v.elems {
				if i > 0 {
					dst = append(dst, ',')
				}
				dst = AppendJSON(dst, e.Value)
			}
			return append(dst, ']')
		}
		dst = append(dst, '{')
		for i, e := range v.elems {
			if i > 0 {
				dst = append(dst, ',')
			}
			switch e.Key.kind {
			case KindString:
				dst = appendJSONString(dst, e.Key.bytes)
			case KindInt:
				dst = append(dst, '"')
				dst = strconv.AppendInt(dst, e.Key.intv, 10)
				dst = append(dst, '"')
			}
			dst = append(dst, ':')
			dst = AppendJSON(dst, e.Value)
		}
		return append(dst, '}')
	case KindObject:
		dst = append(dst, `{"__class__":`...)
		dst = appendJSONString(dst, []byte(v.class))
		for _, p := range v.props {
			dst = append(dst, ',')
			dst = appendJSONString(dst, []byte(jsonPropertyKey(p)))
			dst = append(dst, ':')
			dst = AppendJSON(dst, p.Value)
		}
		return append(dst, '}')
	case KindEnum:
		return appendJSONString(dst, []byte(v.class+"::"+v.enumCase))
	case KindReference:
		dst = append(dst, `{"__ref__":`...)
		dst = strconv.AppendInt(dst, int64(v.ref), 10)
		return append(dst, '}')
	}
	return dst
}

// jsonPropertyKey qualifies a property name with its visibility the way the
// wire format does, minus the NUL framing.
func jsonPropertyKey(p Property) string {
	switch p.Visibility {
	case Protected:
		return "*" + p.Name
	case Private:
		if p.DeclaringClass != "" {
			return p.DeclaringClass + "::" + p.Name
		}
	}
	return p.Name
}

// isIndexed reports whether elems has the integer keys 0..n-1 in order,
// which projects to a JSON array rather than an object.
func isIndexed(elems []Element) bool {
	for i, e := range elems {
		if e.Key.kind != KindInt || e.Key.intv != int64(i) {
			return false
		}
	}
	return true
}

func appendJSONFloat(dst []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return append(dst, "null"...)
	case math.IsInf(f, 1):
		return append(dst, `"Infinity"`...)
	case math.IsInf(f, -1):
		return append(dst, `"-Infinity"`...)
	}
	return strconv.AppendFloat(dst, f, 'g', -1, 64)
}

func appendJSONString(dst []byte, src []byte) []byte {
	dst = append(dst, '"')
	if !utf8.Valid(src) {
		src = []byte(lossyString(src))
	}
	dst = escapeBytes(dst, src)
	return append(dst, '"')
}

const valToHex = "0123456789abcdef"

// escapeBytes will escape JSON bytes.
func escapeBytes(dst, src []byte) []byte {
	for _, s := range src {
		switch s {
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '"':
			dst = append(dst, '\\', '"')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\\':
			dst = append(dst, '\\', '\\')
		default:
			if s <= 0x1f {
				dst = append(dst, '\\', 'u', '0', '0', valToHex[s>>4], valToHex[s&0xf])
			} else {
				dst = append(dst, s)
			}
		}
	}
	return dst
}
