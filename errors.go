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
	"strings"
)

// ErrorKind identifies the class of a parse failure.
type ErrorKind uint8

const (
	// ErrUnexpectedEof is returned when the input ends inside a construct.
	ErrUnexpectedEof ErrorKind = iota
	// ErrUnexpectedChar is returned when a required byte does not match.
	ErrUnexpectedChar
	// ErrUnknownType is returned for an unrecognized type marker at dispatch.
	ErrUnknownType
	// ErrInvalidInteger is returned when an integer field does not parse.
	ErrInvalidInteger
	// ErrInvalidFloat is returned when a float field does not parse.
	ErrInvalidFloat
	// ErrInvalidBoolean is returned when a boolean byte is not '0' or '1'.
	ErrInvalidBoolean
	// ErrStringLengthMismatch is returned when a declared string length does
	// not line up with a `";` terminator and recovery was disabled or failed.
	ErrStringLengthMismatch
	// ErrInvalidUTF8 is returned when a field that must be UTF-8 is not.
	ErrInvalidUTF8
	// ErrInvalidReference is returned for a reference index outside the
	// number of values started so far.
	ErrInvalidReference
	// ErrCircularReference is reserved. The decoder never resolves
	// references, so it is currently never produced.
	ErrCircularReference
	// ErrInvalidArrayKey is returned when an array key is not int or string.
	ErrInvalidArrayKey
	// ErrMissingSemicolon is part of the taxonomy but never produced: a
	// missing ';' terminator is reported as ErrUnexpectedChar.
	ErrMissingSemicolon
	// ErrMissingClosingBrace is part of the taxonomy but never produced: a
	// missing '}' terminator is reported as ErrUnexpectedChar.
	ErrMissingClosingBrace
	// ErrInvalidEscape is part of the taxonomy but never produced: the
	// envelope unescaper accepts any input.
	ErrInvalidEscape
	// ErrMaxDepthExceeded is returned when nesting passes the configured cap.
	ErrMaxDepthExceeded
)

var errorKindNames = [...]string{
	ErrUnexpectedEof:        "unexpected end of input",
	ErrUnexpectedChar:       "unexpected character",
	ErrUnknownType:          "unknown type marker",
	ErrInvalidInteger:       "invalid integer",
	ErrInvalidFloat:         "invalid float",
	ErrInvalidBoolean:       "invalid boolean value",
	ErrStringLengthMismatch: "string length mismatch",
	ErrInvalidUTF8:          "invalid UTF-8 sequence",
	ErrInvalidReference:     "invalid reference index",
	ErrCircularReference:    "circular reference",
	ErrInvalidArrayKey:      "invalid array key type",
	ErrMissingSemicolon:     "missing semicolon terminator",
	ErrMissingClosingBrace:  "missing closing brace",
	ErrInvalidEscape:        "invalid escape sequence",
	ErrMaxDepthExceeded:     "maximum nesting depth exceeded",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// ParseError describes a failed parse. It carries the error kind, the byte
// offset at which the failure was detected, an optional free-form context and
// an optional multi-line input preview with a caret under the offending byte.
type ParseError struct {
	Kind     ErrorKind
	Position int

	// Expected and Found are set for ErrUnexpectedChar.
	Expected byte
	Found    byte

	// Marker is set for ErrUnknownType.
	Marker byte

	// Text holds the offending field for ErrInvalidInteger, ErrInvalidFloat
	// and ErrInvalidBoolean.
	Text string

	// ExpectedLen and FoundLen are set for ErrStringLengthMismatch.
	ExpectedLen int
	FoundLen    int

	// Index is set for ErrInvalidReference.
	Index int

	// Limit is set for ErrMaxDepthExceeded.
	Limit int

	Context string
	Preview string
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	switch e.Kind {
	case ErrUnexpectedChar:
		fmt.Fprintf(&sb, "expected %q, found %q", e.Expected, e.Found)
	case ErrUnknownType:
		fmt.Fprintf(&sb, "unknown type marker %q", e.Marker)
	case ErrInvalidInteger, ErrInvalidFloat, ErrInvalidBoolean:
		fmt.Fprintf(&sb, "%s: %s", e.Kind, e.Text)
	case ErrStringLengthMismatch:
		fmt.Fprintf(&sb, "string length mismatch: expected %d, found %d", e.ExpectedLen, e.FoundLen)
	case ErrInvalidReference:
		fmt.Fprintf(&sb, "invalid reference index: %d", e.Index)
	case ErrCircularReference:
		fmt.Fprintf(&sb, "circular reference detected at index %d", e.Index)
	case ErrMaxDepthExceeded:
		fmt.Fprintf(&sb, "maximum nesting depth (%d) exceeded", e.Limit)
	default:
		sb.WriteString(e.Kind.String())
	}
	fmt.Fprintf(&sb, " at position %d", e.Position)
	if e.Context != "" {
		fmt.Fprintf(&sb, " (%s)", e.Context)
	}
	if e.Preview != "" {
		sb.WriteByte('\n')
		sb.WriteString(e.Preview)
	}
	return sb.String()
}

func newError(kind ErrorKind, pos int) *ParseError {
	return &ParseError{Kind: kind, Position: pos}
}

func (e *ParseError) withContext(ctx string) *ParseError {
	e.Context = ctx
	return e
}

// withPreview attaches up to 20 bytes either side of pos, lossily decoded,
// with a caret marking the offending byte on the following line.
func (e *ParseError) withPreview(data []byte, pos int) *ParseError {
	start := pos - 20
	if start < 0 {
		start = 0
	}
	end := pos + 20
	if end > len(data) {
		end = len(data)
	}
	if start >= end {
		return e
	}
	window := lossyString(data[start:end])
	var sb strings.Builder
	sb.Grow(len(window) + pos - start + 2)
	sb.WriteString(window)
	sb.WriteByte('\n')
	for i := 0; i < pos-start; i++ {
		sb.WriteByte(' ')
	}
	sb.WriteByte('^')
	e.Preview = sb.String()
	return e
}
