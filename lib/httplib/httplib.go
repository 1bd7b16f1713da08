/*
Copyright 2025 The Fedlet Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package httplib carries the header helpers shared by the HTML and
// redirect responses a service provider writes back to browsers.
package httplib

import (
	"net/http"
	"sort"
	"strings"
)

// CSPMap maps Content-Security-Policy directive names to their values.
type CSPMap map[string][]string

// GetContentSecurityPolicyString renders the policy with directives
// sorted by name so the emitted header is stable.
func GetContentSecurityPolicyString(policy CSPMap) string {
	directives := make([]string, 0, len(policy))
	for name, values := range policy {
		directives = append(directives, strings.Join(append([]string{name}, values...), " "))
	}
	sort.Strings(directives)
	return strings.Join(directives, "; ")
}

// SetNoCacheHeaders tells proxies and browsers not to cache the
// content.
func SetNoCacheHeaders(h http.Header) {
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// SetDefaultSecurityHeaders adds the baseline security headers for
// browser-facing responses.
func SetDefaultSecurityHeaders(h http.Header) {
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin")
	h.Set("X-Frame-Options", "SAMEORIGIN")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
}
