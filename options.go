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

// DefaultMaxDepth is the nesting cap applied when no option overrides it.
const DefaultMaxDepth = 512

type config struct {
	maxDepth     int
	autoUnescape bool
	strictUTF8   bool
	strict       bool
	copyStrings  bool
}

func defaultConfig() config {
	return config{
		maxDepth:     DefaultMaxDepth,
		autoUnescape: true,
	}
}

// ParserOption is a parser option.
type ParserOption func(cfg *config) error

// WithMaxDepth sets the maximum nesting depth for arrays and objects.
// Default: 512.
func WithMaxDepth(n int) ParserOption {
	return func(cfg *config) error {
		cfg.maxDepth = n
		return nil
	}
}

// WithStrict disables lenient string recovery. With strict parsing a string
// whose declared length does not land exactly on a `";` terminator fails
// with a length mismatch instead of rescanning for the true terminator.
// Default: false - recovery enabled.
func WithStrict(b bool) ParserOption {
	return func(cfg *config) error {
		cfg.strict = b
		return nil
	}
}

// WithAutoUnescape controls the database-export envelope preprocessor.
// Default: true - enabled.
func WithAutoUnescape(b bool) ParserOption {
	return func(cfg *config) error {
		cfg.autoUnescape = b
		return nil
	}
}

// WithStrictUTF8 is reserved for projection layers. The setting is stored
// but nothing in this package reads it: the parser keeps string payloads as
// raw bytes either way, and ToJSON lossy-decodes regardless of it. The JSON
// projection that rejects non-UTF-8 payloads is the separate ToJSONStrict.
// Default: false.
func WithStrictUTF8(b bool) ParserOption {
	return func(cfg *config) error {
		cfg.strictUTF8 = b
		return nil
	}
}

// WithCopyStrings will copy string payloads so they no longer reference the
// input. For enhanced performance the parser can point back into the
// original buffer for strings, however this can lead to issues in scenarios
// in which the underlying buffer is reused. Enabling this costs one deep
// copy of the result.
// Default: false - strings borrow from the input.
func WithCopyStrings(b bool) ParserOption {
	return func(cfg *config) error {
		cfg.copyStrings = b
		return nil
	}
}
