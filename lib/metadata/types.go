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

// Package metadata loads and holds SAMLv2 entity descriptors, extended
// provider configuration and circle-of-trust membership. The Store it
// produces is an immutable snapshot; the Repository reloads a
// configuration directory and swaps snapshots atomically.
package metadata

import (
	"encoding/xml"

	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
)

// EntityDescriptor is a SAMLv2 metadata document for a single entity.
type EntityDescriptor struct {
	XMLName          xml.Name          `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntityDescriptor"`
	EntityID         string            `xml:"entityID,attr"`
	SPSSODescriptor  *SPSSODescriptor  `xml:"SPSSODescriptor"`
	IDPSSODescriptor *IDPSSODescriptor `xml:"IDPSSODescriptor"`
}

// SPSSODescriptor describes the service provider role.
type SPSSODescriptor struct {
	AuthnRequestsSigned        bool              `xml:"AuthnRequestsSigned,attr"`
	WantAssertionsSigned       bool              `xml:"WantAssertionsSigned,attr"`
	ProtocolSupportEnumeration string            `xml:"protocolSupportEnumeration,attr"`
	KeyDescriptors             []KeyDescriptor   `xml:"KeyDescriptor"`
	SingleLogoutServices       []Endpoint        `xml:"SingleLogoutService"`
	NameIDFormats              []string          `xml:"NameIDFormat"`
	AssertionConsumerServices  []IndexedEndpoint `xml:"AssertionConsumerService"`
}

// IDPSSODescriptor describes the identity provider role.
type IDPSSODescriptor struct {
	WantAuthnRequestsSigned    bool              `xml:"WantAuthnRequestsSigned,attr"`
	ProtocolSupportEnumeration string            `xml:"protocolSupportEnumeration,attr"`
	KeyDescriptors             []KeyDescriptor   `xml:"KeyDescriptor"`
	ArtifactResolutionServices []IndexedEndpoint `xml:"ArtifactResolutionService"`
	SingleLogoutServices       []Endpoint        `xml:"SingleLogoutService"`
	NameIDFormats              []string          `xml:"NameIDFormat"`
	SingleSignOnServices       []Endpoint        `xml:"SingleSignOnService"`
}

// KeyDescriptor binds an X.509 certificate to a key use.
type KeyDescriptor struct {
	// Use is "signing", "encryption" or empty for both.
	Use     string  `xml:"use,attr"`
	KeyInfo KeyInfo `xml:"KeyInfo"`
}

// KeyInfo is the XML-DSig key material container.
type KeyInfo struct {
	XMLName  xml.Name `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
	X509Data X509Data `xml:"X509Data"`
}

// X509Data carries base64 DER certificates.
type X509Data struct {
	X509Certificates []string `xml:"X509Certificate"`
}

// Endpoint is a role endpoint bound to a binding URI.
type Endpoint struct {
	Binding          string `xml:"Binding,attr"`
	Location         string `xml:"Location,attr"`
	ResponseLocation string `xml:"ResponseLocation,attr"`
}

// ResponseOrLocation returns the response location, falling back to the
// request location when none is set.
func (e *Endpoint) ResponseOrLocation() string {
	if e.ResponseLocation != "" {
		return e.ResponseLocation
	}
	return e.Location
}

// IndexedEndpoint is an endpoint carrying an index, such as an
// assertion consumer service or an artifact resolution service.
type IndexedEndpoint struct {
	Binding   string `xml:"Binding,attr"`
	Location  string `xml:"Location,attr"`
	Index     int    `xml:"index,attr"`
	IsDefault bool   `xml:"isDefault,attr"`
}

// ParseEntityDescriptor parses a metadata document.
func ParseEntityDescriptor(raw []byte) (*EntityDescriptor, error) {
	var descriptor EntityDescriptor
	if err := xml.Unmarshal(raw, &descriptor); err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "parsing entity descriptor").WithCause(err))
	}
	if descriptor.EntityID == "" {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "entity descriptor has no entityID"))
	}
	return &descriptor, nil
}
