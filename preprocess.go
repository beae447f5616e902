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

import "bytes"

// Preprocess detects and peels the database-export envelope: the whole
// payload wrapped in `"…"` with every interior `"` doubled, as produced by
// CSV/SQL string export. It returns the payload to parse and whether a fresh
// buffer was allocated. When no envelope is present the input is returned
// as-is and owned is false.
//
// The envelope is only peeled when the byte after the opening quote is a
// recognized type marker; a payload that merely starts and ends with `"` is
// left alone.
func Preprocess(data []byte) (out []byte, owned bool) {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return data, false
	}
	inner := data[1 : len(data)-1]
	if len(inner) == 0 || !isTypeMarker(inner[0]) {
		return data, false
	}
	return unescapeDoubleQuotes(inner), true
}

// isTypeMarker reports whether b opens a serialized value.
func isTypeMarker(b byte) bool {
	switch b {
	case 'N', 'b', 'i', 'd', 's', 'a', 'O', 'C', 'R', 'r', 'E':
		return true
	}
	return false
}

// unescapeDoubleQuotes replaces each adjacent `""` pair with a single `"`,
// left to right, non-overlapping. Chunks between quotes are block-copied so
// the loop advances a quote at a time, not a byte at a time.
func unescapeDoubleQuotes(data []byte) []byte {
	result := make([]byte, 0, len(data))
	for {
		q := bytes.IndexByte(data, '"')
		if q < 0 {
			return append(result, data...)
		}
		result = append(result, data[:q+1]...)
		if q+1 < len(data) && data[q+1] == '"' {
			data = data[q+2:]
		} else {
			data = data[q+1:]
		}
	}
}
