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
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"strings"

	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/codec"
)

// ServiceProvider is the hosted SP: its metadata descriptor joined with
// its extended configuration.
type ServiceProvider struct {
	// EntityID is the SP entity ID.
	EntityID string
	// Descriptor is the SPSSODescriptor from the metadata document.
	Descriptor *SPSSODescriptor
	// Config is the parsed extended configuration.
	Config *SPExtendedConfig
}

// AssertionConsumerService returns the ACS endpoint for the binding,
// preferring the one marked default.
func (sp *ServiceProvider) AssertionConsumerService(binding string) (*IndexedEndpoint, error) {
	var match *IndexedEndpoint
	for i := range sp.Descriptor.AssertionConsumerServices {
		endpoint := &sp.Descriptor.AssertionConsumerServices[i]
		if endpoint.Binding != binding {
			continue
		}
		if endpoint.IsDefault {
			return endpoint, nil
		}
		if match == nil {
			match = endpoint
		}
	}
	if match == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "sp %q has no assertion consumer service for binding %q", sp.EntityID, binding))
	}
	return match, nil
}

// SingleLogoutService returns the SP logout endpoint for the binding.
func (sp *ServiceProvider) SingleLogoutService(binding string) (*Endpoint, error) {
	endpoint := endpointForBinding(sp.Descriptor.SingleLogoutServices, binding)
	if endpoint == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "sp %q has no single logout service for binding %q", sp.EntityID, binding))
	}
	return endpoint, nil
}

// AuthnRequestsSigned reports whether the SP declares that it signs its
// authentication requests.
func (sp *ServiceProvider) AuthnRequestsSigned() bool {
	return sp.Descriptor.AuthnRequestsSigned
}

// WantAssertionsSigned reports whether the SP requires a signature on
// the assertion itself.
func (sp *ServiceProvider) WantAssertionsSigned() bool {
	return sp.Descriptor.WantAssertionsSigned
}

// IdentityProvider is a remote IdP: its metadata descriptor joined with
// its extended configuration and derived signing material.
type IdentityProvider struct {
	// EntityID is the IdP entity ID.
	EntityID string
	// Descriptor is the IDPSSODescriptor from the metadata document.
	Descriptor *IDPSSODescriptor
	// Config is the parsed extended configuration, never nil.
	Config *IDPExtendedConfig

	signingCerts []*x509.Certificate
	sourceID     string
}

func newIdentityProvider(descriptor *EntityDescriptor, config *IDPExtendedConfig) (*IdentityProvider, error) {
	if config == nil {
		config = &IDPExtendedConfig{EntityID: descriptor.EntityID}
	}
	idp := &IdentityProvider{
		EntityID:   descriptor.EntityID,
		Descriptor: descriptor.IDPSSODescriptor,
		Config:     config,
		sourceID:   SourceID(descriptor.EntityID),
	}
	certs, err := signingCertificates(descriptor.IDPSSODescriptor.KeyDescriptors)
	if err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "idp %q signing certificate", descriptor.EntityID).WithCause(err))
	}
	idp.signingCerts = certs
	return idp, nil
}

// SingleSignOnService returns the IdP SSO endpoint for the binding.
func (idp *IdentityProvider) SingleSignOnService(binding string) (*Endpoint, error) {
	endpoint := endpointForBinding(idp.Descriptor.SingleSignOnServices, binding)
	if endpoint == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "idp %q has no single sign on service for binding %q", idp.EntityID, binding))
	}
	return endpoint, nil
}

// SingleLogoutService returns the IdP logout endpoint for the binding.
func (idp *IdentityProvider) SingleLogoutService(binding string) (*Endpoint, error) {
	endpoint := endpointForBinding(idp.Descriptor.SingleLogoutServices, binding)
	if endpoint == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "idp %q has no single logout service for binding %q", idp.EntityID, binding))
	}
	return endpoint, nil
}

// ArtifactResolutionService returns the resolution endpoint with the
// given index.
func (idp *IdentityProvider) ArtifactResolutionService(index int) (*IndexedEndpoint, error) {
	for i := range idp.Descriptor.ArtifactResolutionServices {
		endpoint := &idp.Descriptor.ArtifactResolutionServices[i]
		if endpoint.Index == index {
			return endpoint, nil
		}
	}
	return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "idp %q has no artifact resolution service with index %v", idp.EntityID, index))
}

// SigningCertificates returns the IdP certificates acceptable for
// signature verification.
func (idp *IdentityProvider) SigningCertificates() []*x509.Certificate {
	return idp.signingCerts
}

// SourceID returns the uppercase hex SHA-1 of the IdP entity ID, as
// carried in artifacts.
func (idp *IdentityProvider) SourceID() string {
	return idp.sourceID
}

// WantAuthnRequestsSigned reports whether authentication requests sent
// to this IdP must be signed, from either the metadata descriptor or
// the extended configuration.
func (idp *IdentityProvider) WantAuthnRequestsSigned() bool {
	return idp.Descriptor.WantAuthnRequestsSigned || idp.Config.WantAuthnRequestsSigned
}

// SourceID computes the artifact source ID for an entity ID as
// uppercase hex.
func SourceID(entityID string) string {
	sum := sha1.Sum([]byte(entityID))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func endpointForBinding(endpoints []Endpoint, binding string) *Endpoint {
	for i := range endpoints {
		if endpoints[i].Binding == binding {
			return &endpoints[i]
		}
	}
	return nil
}

// signingCertificates decodes the certificates of every key descriptor
// usable for signing. Base64 whitespace from pretty printed metadata is
// tolerated.
func signingCertificates(descriptors []KeyDescriptor) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, kd := range descriptors {
		if kd.Use != "" && kd.Use != "signing" {
			continue
		}
		for _, encoded := range kd.KeyInfo.X509Data.X509Certificates {
			der, err := codec.Base64Decode(encoded)
			if err != nil {
				return nil, trace.Wrap(err)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, trace.Wrap(err)
			}
			certs = append(certs, cert)
		}
	}
	return certs, nil
}
