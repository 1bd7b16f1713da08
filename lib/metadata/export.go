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

	"github.com/beevik/etree"

	"github.com/vijayoommen/Fedlet/lib/protocol"
)

// ExportParams controls how a hosted SP descriptor document is built.
type ExportParams struct {
	// ID becomes the document ID attribute when non-empty. Signed
	// exports need one so the signature reference can point at it.
	ID string
	// SigningCert is the base64 DER certificate to publish for the
	// signing use, empty to omit.
	SigningCert string
	// EncryptionCert is the base64 DER certificate to publish for the
	// encryption use, empty to omit.
	EncryptionCert string
}

// BuildSPEntityDescriptor renders the hosted SP back into a metadata
// document suitable for handing to identity provider operators.
func BuildSPEntityDescriptor(sp *ServiceProvider, params ExportParams) *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement("md:EntityDescriptor")
	root.CreateAttr("xmlns:md", protocol.MetadataNamespace)
	if params.ID != "" {
		root.CreateAttr("ID", params.ID)
	}
	root.CreateAttr("entityID", sp.EntityID)

	descriptor := root.CreateElement("md:SPSSODescriptor")
	descriptor.CreateAttr("AuthnRequestsSigned", strconv.FormatBool(sp.Descriptor.AuthnRequestsSigned))
	descriptor.CreateAttr("WantAssertionsSigned", strconv.FormatBool(sp.Descriptor.WantAssertionsSigned))
	enumeration := sp.Descriptor.ProtocolSupportEnumeration
	if enumeration == "" {
		enumeration = protocol.ProtocolNamespace
	}
	descriptor.CreateAttr("protocolSupportEnumeration", enumeration)

	addKeyDescriptor(descriptor, "signing", params.SigningCert)
	addKeyDescriptor(descriptor, "encryption", params.EncryptionCert)

	for i := range sp.Descriptor.SingleLogoutServices {
		endpoint := &sp.Descriptor.SingleLogoutServices[i]
		el := descriptor.CreateElement("md:SingleLogoutService")
		el.CreateAttr("Binding", endpoint.Binding)
		el.CreateAttr("Location", endpoint.Location)
		if endpoint.ResponseLocation != "" {
			el.CreateAttr("ResponseLocation", endpoint.ResponseLocation)
		}
	}
	for _, format := range sp.Descriptor.NameIDFormats {
		descriptor.CreateElement("md:NameIDFormat").SetText(format)
	}
	for i := range sp.Descriptor.AssertionConsumerServices {
		endpoint := &sp.Descriptor.AssertionConsumerServices[i]
		el := descriptor.CreateElement("md:AssertionConsumerService")
		el.CreateAttr("Binding", endpoint.Binding)
		el.CreateAttr("Location", endpoint.Location)
		el.CreateAttr("index", strconv.Itoa(endpoint.Index))
		if endpoint.IsDefault {
			el.CreateAttr("isDefault", "true")
		}
	}
	return doc
}

func addKeyDescriptor(descriptor *etree.Element, use, cert string) {
	if cert == "" {
		return
	}
	kd := descriptor.CreateElement("md:KeyDescriptor")
	kd.CreateAttr("use", use)
	keyInfo := kd.CreateElement("ds:KeyInfo")
	keyInfo.CreateAttr("xmlns:ds", protocol.DSigNamespace)
	keyInfo.CreateElement("ds:X509Data").CreateElement("ds:X509Certificate").SetText(cert)
}
