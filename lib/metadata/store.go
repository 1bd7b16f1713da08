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
	"sort"

	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
)

// StoreConfig carries the raw configuration documents a Store is built
// from.
type StoreConfig struct {
	// SPMetadata is the hosted SP metadata document.
	SPMetadata []byte
	// SPExtended is the hosted SP extended configuration document.
	SPExtended []byte
	// IDPMetadata holds one metadata document per remote IdP.
	IDPMetadata [][]byte
	// IDPExtended holds extended configuration documents, matched to
	// IdPs by the entityID inside each document.
	IDPExtended [][]byte
	// CirclesOfTrust holds circle-of-trust documents.
	CirclesOfTrust [][]byte
}

// Store is an immutable snapshot of all provider configuration. All
// lookups are safe for concurrent use.
type Store struct {
	sp         *ServiceProvider
	idps       map[string]*IdentityProvider
	bySourceID map[string]*IdentityProvider
	cots       []*CircleOfTrust
}

// NewStore parses the configuration documents into a snapshot.
func NewStore(config StoreConfig) (*Store, error) {
	if len(config.SPMetadata) == 0 {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "missing sp metadata"))
	}
	if len(config.SPExtended) == 0 {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "missing sp extended configuration"))
	}
	spDescriptor, err := ParseEntityDescriptor(config.SPMetadata)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if spDescriptor.SPSSODescriptor == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "entity %q has no SPSSODescriptor", spDescriptor.EntityID))
	}
	spExtended, err := ParseSPExtendedConfig(config.SPExtended)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if spExtended.EntityID != spDescriptor.EntityID {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "sp extended configuration is for %q, metadata is for %q", spExtended.EntityID, spDescriptor.EntityID))
	}

	store := &Store{
		sp: &ServiceProvider{
			EntityID:   spDescriptor.EntityID,
			Descriptor: spDescriptor.SPSSODescriptor,
			Config:     spExtended,
		},
		idps:       make(map[string]*IdentityProvider),
		bySourceID: make(map[string]*IdentityProvider),
	}

	extended := make(map[string]*IDPExtendedConfig)
	for _, raw := range config.IDPExtended {
		idpExtended, err := ParseIDPExtendedConfig(raw)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		extended[idpExtended.EntityID] = idpExtended
	}
	for _, raw := range config.IDPMetadata {
		descriptor, err := ParseEntityDescriptor(raw)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if descriptor.IDPSSODescriptor == nil {
			return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "entity %q has no IDPSSODescriptor", descriptor.EntityID))
		}
		idp, err := newIdentityProvider(descriptor, extended[descriptor.EntityID])
		if err != nil {
			return nil, trace.Wrap(err)
		}
		store.idps[idp.EntityID] = idp
		store.bySourceID[idp.SourceID()] = idp
	}
	for _, raw := range config.CirclesOfTrust {
		cot, err := ParseCircleOfTrust(raw)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		store.cots = append(store.cots, cot)
	}
	return store, nil
}

// ServiceProvider returns the hosted SP.
func (s *Store) ServiceProvider() *ServiceProvider {
	return s.sp
}

// IdentityProvider returns the IdP with the given entity ID.
func (s *Store) IdentityProvider(entityID string) (*IdentityProvider, error) {
	idp, ok := s.idps[entityID]
	if !ok {
		return nil, trace.NotFound("no identity provider %q", entityID)
	}
	return idp, nil
}

// IdentityProviderBySourceID returns the IdP whose artifact source ID
// matches, in uppercase hex.
func (s *Store) IdentityProviderBySourceID(sourceID string) (*IdentityProvider, error) {
	idp, ok := s.bySourceID[sourceID]
	if !ok {
		return nil, trace.NotFound("no identity provider with source ID %v", sourceID)
	}
	return idp, nil
}

// IdentityProviders returns all IdPs ordered by entity ID.
func (s *Store) IdentityProviders() []*IdentityProvider {
	out := make([]*IdentityProvider, 0, len(s.idps))
	for _, idp := range s.idps {
		out = append(out, idp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// CirclesOfTrust returns the parsed circles.
func (s *Store) CirclesOfTrust() []*CircleOfTrust {
	return s.cots
}

// InSameCircle reports whether both entities are members of at least
// one common circle of trust.
func (s *Store) InSameCircle(entityA, entityB string) bool {
	for _, cot := range s.cots {
		if cot.Contains(entityA) && cot.Contains(entityB) {
			return true
		}
	}
	return false
}
