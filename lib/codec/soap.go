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

package codec

import (
	"github.com/beevik/etree"
	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
)

// EnvelopeNamespace is the SOAP 1.1 envelope namespace used by the
// SAML SOAP binding.
const EnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"

const envelopePrefix = "soap-env"

// WrapSOAP moves el into the body of a fresh SOAP envelope and returns
// the envelope document.
func WrapSOAP(el *etree.Element) *etree.Document {
	doc := etree.NewDocument()
	env := doc.CreateElement(envelopePrefix + ":Envelope")
	env.CreateAttr("xmlns:"+envelopePrefix, EnvelopeNamespace)
	body := env.CreateElement(envelopePrefix + ":Body")
	body.AddChild(el)
	return doc
}

// SOAPBodyChild returns the element child of /Envelope/Body matching
// the given namespace and local name. Namespaces are compared by their
// resolved URI, not by prefix. A missing envelope, body or child is a
// protocol error.
func SOAPBodyChild(doc *etree.Document, namespace, local string) (*etree.Element, error) {
	root := doc.Root()
	if root == nil || root.Tag != "Envelope" || root.NamespaceURI() != EnvelopeNamespace {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "document is not a SOAP envelope"))
	}
	var body *etree.Element
	for _, child := range root.ChildElements() {
		if child.Tag == "Body" && child.NamespaceURI() == EnvelopeNamespace {
			body = child
			break
		}
	}
	if body == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "SOAP envelope has no Body"))
	}
	for _, child := range body.ChildElements() {
		if child.Tag == local && child.NamespaceURI() == namespace {
			return child, nil
		}
	}
	return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "SOAP body has no %s element", local))
}
