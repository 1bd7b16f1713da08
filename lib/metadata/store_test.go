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

package metadata_test

import (
	"sync"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/protocol"
	"github.com/vijayoommen/Fedlet/lib/samltest"
)

var (
	fixtureOnce sync.Once
	fixture     *samltest.Providers
	fixtureErr  error
)

func testProviders(t *testing.T) *samltest.Providers {
	fixtureOnce.Do(func() {
		fixture, fixtureErr = samltest.NewProviders()
	})
	require.NoError(t, fixtureErr)
	return fixture
}

func TestParseEntityDescriptor(t *testing.T) {
	t.Parallel()

	descriptor, err := metadata.ParseEntityDescriptor(testProviders(t).IDPMetadata())
	require.NoError(t, err)
	require.Equal(t, samltest.IDPEntityID, descriptor.EntityID)
	require.NotNil(t, descriptor.IDPSSODescriptor)
	require.Nil(t, descriptor.SPSSODescriptor)

	_, err = metadata.ParseEntityDescriptor([]byte("not xml at all"))
	require.True(t, fedlet.IsKind(err, fedlet.KindConfiguration))

	_, err = metadata.ParseEntityDescriptor([]byte(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata"/>`))
	require.True(t, fedlet.IsKind(err, fedlet.KindConfiguration))
}

func TestNewStore(t *testing.T) {
	t.Parallel()
	providers := testProviders(t)

	store, err := providers.Store(nil, nil)
	require.NoError(t, err)

	sp := store.ServiceProvider()
	require.Equal(t, samltest.SPEntityID, sp.EntityID)
	require.Equal(t, "/sp", sp.Config.MetaAlias)
	require.Equal(t, samltest.KeyAlias, sp.Config.SigningCertAlias)

	idp, err := store.IdentityProvider(samltest.IDPEntityID)
	require.NoError(t, err)
	require.Len(t, idp.SigningCertificates(), 1)
	require.Equal(t, providers.IDP.Cert.Raw, idp.SigningCertificates()[0].Raw)

	_, err = store.IdentityProvider("https://unknown.example.com")
	require.True(t, trace.IsNotFound(err))

	bySource, err := store.IdentityProviderBySourceID(metadata.SourceID(samltest.IDPEntityID))
	require.NoError(t, err)
	require.Equal(t, idp, bySource)

	_, err = store.IdentityProviderBySourceID("0000000000000000000000000000000000000000")
	require.True(t, trace.IsNotFound(err))

	all := store.IdentityProviders()
	require.Len(t, all, 1)
	require.Equal(t, samltest.IDPEntityID, all[0].EntityID)
}

func TestStoreCircleOfTrust(t *testing.T) {
	t.Parallel()

	store, err := testProviders(t).Store(nil, nil)
	require.NoError(t, err)

	require.True(t, store.InSameCircle(samltest.SPEntityID, samltest.IDPEntityID))
	require.True(t, store.InSameCircle(samltest.IDPEntityID, samltest.SPEntityID))
	require.False(t, store.InSameCircle(samltest.SPEntityID, "https://stranger.example.com"))

	cots := store.CirclesOfTrust()
	require.Len(t, cots, 1)
	require.Equal(t, samltest.CircleName, cots[0].Name)
}

func TestStoreRejectsMismatchedExtendedConfig(t *testing.T) {
	t.Parallel()
	providers := testProviders(t)

	config := providers.StoreConfig(nil, nil)
	config.SPExtended = []byte(`<EntityConfig xmlns="urn:sun:fm:SAML:2.0:entityconfig" hosted="1" entityID="https://other.example.com">
  <SPSSOConfig metaAlias="/sp"/>
</EntityConfig>`)
	_, err := metadata.NewStore(config)
	require.True(t, fedlet.IsKind(err, fedlet.KindConfiguration))
}

func TestServiceProviderEndpoints(t *testing.T) {
	t.Parallel()

	store, err := testProviders(t).Store(nil, nil)
	require.NoError(t, err)
	sp := store.ServiceProvider()

	acs, err := sp.AssertionConsumerService(protocol.BindingHTTPPOST)
	require.NoError(t, err)
	require.Equal(t, samltest.ACSURL, acs.Location)
	require.Equal(t, 0, acs.Index)
	require.True(t, acs.IsDefault)

	artifactACS, err := sp.AssertionConsumerService(protocol.BindingHTTPArtifact)
	require.NoError(t, err)
	require.Equal(t, 1, artifactACS.Index)

	_, err = sp.AssertionConsumerService("urn:example:unknown-binding")
	require.True(t, fedlet.IsKind(err, fedlet.KindConfiguration))

	slo, err := sp.SingleLogoutService(protocol.BindingSOAP)
	require.NoError(t, err)
	require.Equal(t, samltest.SPSLOSOAPURL, slo.Location)
}

func TestIdentityProviderEndpoints(t *testing.T) {
	t.Parallel()

	store, err := testProviders(t).Store(nil, nil)
	require.NoError(t, err)
	idp, err := store.IdentityProvider(samltest.IDPEntityID)
	require.NoError(t, err)

	sso, err := idp.SingleSignOnService(protocol.BindingHTTPRedirect)
	require.NoError(t, err)
	require.Equal(t, samltest.IDPSSOURL, sso.Location)
	require.Equal(t, samltest.IDPSSOURL, sso.ResponseOrLocation())

	ars, err := idp.ArtifactResolutionService(0)
	require.NoError(t, err)
	require.Equal(t, samltest.IDPArtifactURL, ars.Location)

	_, err = idp.ArtifactResolutionService(7)
	require.True(t, fedlet.IsKind(err, fedlet.KindConfiguration))

	slo, err := idp.SingleLogoutService(protocol.BindingSOAP)
	require.NoError(t, err)
	require.Equal(t, samltest.IDPSLOSOAPURL, slo.Location)
}
