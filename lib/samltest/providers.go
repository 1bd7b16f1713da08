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

package samltest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gravitational/trace"

	"github.com/vijayoommen/Fedlet/lib/metadata"
)

// Fixture provider entity IDs and endpoints.
const (
	SPEntityID  = "https://sp.example.com"
	IDPEntityID = "https://idp.example.com"

	ACSURL         = "https://sp.example.com/fedlet/acs"
	SPSLOURL       = "https://sp.example.com/fedlet/slo"
	SPSLOSOAPURL   = "https://sp.example.com/fedlet/slo/soap"
	IDPSSOURL      = "https://idp.example.com/sso"
	IDPSLOURL      = "https://idp.example.com/slo"
	IDPSLOSOAPURL  = "https://idp.example.com/slo/soap"
	IDPArtifactURL = "https://idp.example.com/artifact"

	CircleName = "example-cot"
)

// Providers bundles the SP and IdP fixture identities.
type Providers struct {
	SP  *Identity
	IDP *Identity
}

// NewProviders generates both fixture identities.
func NewProviders() (*Providers, error) {
	sp, err := NewIdentity("sp.example.com")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	idp, err := NewIdentity("idp.example.com")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Providers{SP: sp, IDP: idp}, nil
}

// SPMetadata renders the hosted SP metadata document.
func (p *Providers) SPMetadata() []byte {
	return []byte(fmt.Sprintf(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="%v">
  <SPSSODescriptor AuthnRequestsSigned="false" WantAssertionsSigned="false" protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <KeyDescriptor use="signing">
      <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">
        <X509Data><X509Certificate>%v</X509Certificate></X509Data>
      </KeyInfo>
    </KeyDescriptor>
    <SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="%v"/>
    <SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="%v"/>
    <SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:SOAP" Location="%v"/>
    <NameIDFormat>urn:oasis:names:tc:SAML:2.0:nameid-format:transient</NameIDFormat>
    <AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="%v" index="0" isDefault="true"/>
    <AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Artifact" Location="%v" index="1"/>
  </SPSSODescriptor>
</EntityDescriptor>`,
		SPEntityID, p.SP.CertBase64(), SPSLOURL, SPSLOURL, SPSLOSOAPURL, ACSURL, ACSURL))
}

// SPExtended renders the SP extended configuration. Attribute
// overrides are merged over the base configuration, an override with
// no values removes the attribute.
func (p *Providers) SPExtended(overrides map[string][]string) []byte {
	attrs := map[string][]string{
		"signingCertAlias": {KeyAlias},
	}
	for name, values := range overrides {
		if len(values) == 0 {
			delete(attrs, name)
			continue
		}
		attrs[name] = values
	}
	return []byte(fmt.Sprintf(`<EntityConfig xmlns="urn:sun:fm:SAML:2.0:entityconfig" hosted="1" entityID="%v">
  <SPSSOConfig metaAlias="/sp">
%v  </SPSSOConfig>
</EntityConfig>`, SPEntityID, renderAttributes(attrs)))
}

// IDPMetadata renders the remote IdP metadata document.
func (p *Providers) IDPMetadata() []byte {
	return []byte(fmt.Sprintf(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="%v">
  <IDPSSODescriptor WantAuthnRequestsSigned="false" protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <KeyDescriptor use="signing">
      <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">
        <X509Data><X509Certificate>%v</X509Certificate></X509Data>
      </KeyInfo>
    </KeyDescriptor>
    <ArtifactResolutionService Binding="urn:oasis:names:tc:SAML:2.0:bindings:SOAP" Location="%v" index="0" isDefault="true"/>
    <SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="%v"/>
    <SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="%v"/>
    <SingleLogoutService Binding="urn:oasis:names:tc:SAML:2.0:bindings:SOAP" Location="%v"/>
    <SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="%v"/>
    <SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="%v"/>
  </IDPSSODescriptor>
</EntityDescriptor>`,
		IDPEntityID, p.IDP.CertBase64(), IDPArtifactURL, IDPSLOURL, IDPSLOURL, IDPSLOSOAPURL, IDPSSOURL, IDPSSOURL))
}

// IDPExtended renders the IdP extended configuration from the given
// attributes.
func (p *Providers) IDPExtended(attrs map[string][]string) []byte {
	return []byte(fmt.Sprintf(`<EntityConfig xmlns="urn:sun:fm:SAML:2.0:entityconfig" hosted="0" entityID="%v">
  <IDPSSOConfig>
%v  </IDPSSOConfig>
</EntityConfig>`, IDPEntityID, renderAttributes(attrs)))
}

// COT renders a circle-of-trust document holding both fixture
// providers.
func (p *Providers) COT() []byte {
	return []byte(fmt.Sprintf("cot-name=%v\nsun-fm-cot-status=Active\nsun-fm-trusted-providers=%v,%v\n",
		CircleName, IDPEntityID, SPEntityID))
}

// StoreConfig assembles the full fixture store configuration with the
// given extended attribute overrides.
func (p *Providers) StoreConfig(spOverrides, idpAttrs map[string][]string) metadata.StoreConfig {
	return metadata.StoreConfig{
		SPMetadata:     p.SPMetadata(),
		SPExtended:     p.SPExtended(spOverrides),
		IDPMetadata:    [][]byte{p.IDPMetadata()},
		IDPExtended:    [][]byte{p.IDPExtended(idpAttrs)},
		CirclesOfTrust: [][]byte{p.COT()},
	}
}

// Store builds a fixture store with the given extended attribute
// overrides.
func (p *Providers) Store(spOverrides, idpAttrs map[string][]string) (*metadata.Store, error) {
	store, err := metadata.NewStore(p.StoreConfig(spOverrides, idpAttrs))
	return store, trace.Wrap(err)
}

func renderAttributes(attrs map[string][]string) string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var builder strings.Builder
	for _, name := range names {
		builder.WriteString(fmt.Sprintf("    <Attribute name=%q>\n", name))
		for _, value := range attrs[name] {
			builder.WriteString(fmt.Sprintf("      <Value>%v</Value>\n", value))
		}
		builder.WriteString("    </Attribute>\n")
	}
	return builder.String()
}
