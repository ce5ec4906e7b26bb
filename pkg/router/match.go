// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import "strings"

// PathMatch reports whether a single path pattern matches a signal type,
// using the trie's wildcard semantics: "*" matches exactly one segment,
// "**" matches zero or more. The bus filter and plugin signal_patterns
// share this matcher.
func PathMatch(pattern, signalType string) bool {
	return segmentsMatch(strings.Split(pattern, "."), strings.Split(signalType, "."))
}

// MatchesAny reports whether any pattern matches. An empty pattern list
// matches everything (the plugin middleware convention).
func MatchesAny(patterns []string, signalType string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if PathMatch(p, signalType) {
			return true
		}
	}
	return false
}

func segmentsMatch(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	head, tail := pattern[0], pattern[1:]

	if head == WildcardMulti {
		for skip := 0; skip <= len(segs); skip++ {
			if segmentsMatch(tail, segs[skip:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if head != WildcardSingle && head != segs[0] {
		return false
	}
	return segmentsMatch(tail, segs[1:])
}
