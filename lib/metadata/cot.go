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
	"bufio"
	"bytes"
	"strings"

	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
)

// Circle-of-trust property keys.
const (
	cotNameKey             = "cot-name"
	cotTrustedProvidersKey = "sun-fm-trusted-providers"
)

// CircleOfTrust is a named set of entity IDs that trust each other.
type CircleOfTrust struct {
	// Name is the circle name.
	Name string

	providers map[string]struct{}
}

// ParseCircleOfTrust parses a circle-of-trust document. The format is
// properties style: one key=value pair per line, with cot-name naming
// the circle and sun-fm-trusted-providers listing comma separated
// entity IDs. Lines starting with # are comments.
func ParseCircleOfTrust(raw []byte) (*CircleOfTrust, error) {
	cot := &CircleOfTrust{providers: make(map[string]struct{})}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "invalid circle of trust line %q", line))
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case cotNameKey:
			cot.Name = value
		case cotTrustedProvidersKey:
			for _, provider := range strings.Split(value, ",") {
				if provider = strings.TrimSpace(provider); provider != "" {
					cot.providers[provider] = struct{}{}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "reading circle of trust").WithCause(err))
	}
	if cot.Name == "" {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "circle of trust has no %v", cotNameKey))
	}
	return cot, nil
}

// Contains reports whether the entity is a member of the circle.
func (c *CircleOfTrust) Contains(entityID string) bool {
	_, ok := c.providers[entityID]
	return ok
}

// Providers returns the member entity IDs in unspecified order.
func (c *CircleOfTrust) Providers() []string {
	out := make([]string, 0, len(c.providers))
	for provider := range c.providers {
		out = append(out, provider)
	}
	return out
}
