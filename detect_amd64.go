//go:build !appengine && !noasm && gc
// +build !appengine,!noasm,gc

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

import "github.com/klauspost/cpuid/v2"

// SupportedCPU reports whether the host CPU runs the delimiter and
// terminator scans on the wide vector kernels. Decoding is correct either
// way; on CPUs without AVX2 the runtime falls back to narrower scans.
func SupportedCPU() bool {
	return cpuid.CPU.Supports(cpuid.AVX2)
}
