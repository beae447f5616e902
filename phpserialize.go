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

// Package phpserialize decodes PHP's serialize() textual format into a typed
// value tree. Decoding is single pass and zero copy: string payloads in the
// result are sub-slices of the input unless detached, so the input buffer
// must outlive the returned value. Inputs exported through database quoting
// (the whole payload wrapped in `"…"` with interior quotes doubled) are
// detected and unwrapped automatically.
package phpserialize

// Parse decodes one serialized value from b.
//
// By default the result borrows from b; pass WithCopyStrings(true) to get a
// detached tree. When the database-export envelope is peeled the parse runs
// on a temporary buffer and the result is always detached before returning.
func Parse(b []byte, opts ...ParserOption) (Value, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Value{}, err
		}
	}

	data, owned := b, false
	if cfg.autoUnescape {
		data, owned = Preprocess(b)
	}

	p := parser{cur: cursor{data: data}, cfg: cfg}
	v, perr := p.parseValue()
	if perr != nil {
		return Value{}, perr
	}
	// The unescape buffer is local to this call; nothing may keep pointing
	// into it once we return.
	if owned || cfg.copyStrings {
		v = v.Detach()
	}
	return v, nil
}

// ParseString decodes one serialized value from s. The result never aliases
// s's backing storage.
func ParseString(s string, opts ...ParserOption) (Value, error) {
	return Parse([]byte(s), opts...)
}

// LooksSerialized reports whether b plausibly holds a serialized value:
// non-empty and opening with a recognized type marker. It reads one byte and
// never allocates, so it is cheap enough to gate ingest paths with.
func LooksSerialized(b []byte) bool {
	return len(b) > 0 && isTypeMarker(b[0])
}
