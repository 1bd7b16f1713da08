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

package metadata

import (
	"strconv"
	"strings"

	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/protocol"
)

// AuthnContextMap maps numeric authentication levels to authentication
// context class references. Entries come from the
// spAuthncontextClassrefMapping attribute, one "classRef|level|label"
// string per value, where the label "default" designates the entry used
// when no level matches.
type AuthnContextMap struct {
	byLevel         map[int]string
	byClassRef      map[string]int
	defaultClassRef string
}

// ParseAuthnContextMapping parses mapping entries. An empty entry list
// yields the built-in mapping of PasswordProtectedTransport at level 0.
func ParseAuthnContextMapping(entries []string) (*AuthnContextMap, error) {
	m := &AuthnContextMap{
		byLevel:    make(map[int]string),
		byClassRef: make(map[string]int),
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) < 2 {
			return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "invalid authn context mapping entry %q", entry))
		}
		classRef := strings.TrimSpace(parts[0])
		level, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || classRef == "" {
			return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "invalid authn context mapping entry %q", entry))
		}
		m.byLevel[level] = classRef
		m.byClassRef[classRef] = level
		if len(parts) > 2 && strings.TrimSpace(parts[2]) == "default" {
			m.defaultClassRef = classRef
		}
	}
	if len(m.byLevel) == 0 {
		m.byLevel[0] = protocol.ClassRefPasswordProtectedTransport
		m.byClassRef[protocol.ClassRefPasswordProtectedTransport] = 0
		m.defaultClassRef = protocol.ClassRefPasswordProtectedTransport
	}
	return m, nil
}

// ClassRef returns the class reference mapped to the given level. When
// no entry matches it falls back to the default entry, and failing
// that to PasswordProtectedTransport.
func (m *AuthnContextMap) ClassRef(level int) string {
	if classRef, ok := m.byLevel[level]; ok {
		return classRef
	}
	if m.defaultClassRef != "" {
		return m.defaultClassRef
	}
	return protocol.ClassRefPasswordProtectedTransport
}

// DefaultClassRef returns the class reference of the entry labeled
// "default", or empty when none is.
func (m *AuthnContextMap) DefaultClassRef() string {
	return m.defaultClassRef
}

// Level returns the level mapped to the given class reference.
func (m *AuthnContextMap) Level(classRef string) (int, bool) {
	level, ok := m.byClassRef[classRef]
	return level, ok
}
