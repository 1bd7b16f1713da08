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

// Source provides the current configuration snapshot. Implementations
// must return a consistent immutable Store on every call.
type Source interface {
	// Snapshot returns the current store.
	Snapshot() *Store
}

// StaticSource serves a fixed store. It is the Source to use when
// configuration is assembled in memory and never reloaded.
type StaticSource struct {
	store *Store
}

// NewStaticSource returns a Source pinned to the given store.
func NewStaticSource(store *Store) *StaticSource {
	return &StaticSource{store: store}
}

// Snapshot returns the pinned store.
func (s *StaticSource) Snapshot() *Store {
	return s.store
}
