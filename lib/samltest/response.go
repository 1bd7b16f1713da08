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
	"sort"
	"time"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/vijayoommen/Fedlet/lib/protocol"
)

// ResponseParams controls the authentication response fixture.
type ResponseParams struct {
	// ID is the response ID, generated when empty.
	ID string
	// AssertionID is the assertion ID, generated when empty.
	AssertionID string
	// InResponseTo correlates the response to a request, omitted when
	// empty.
	InResponseTo string
	// Issuer defaults to the fixture IdP entity ID.
	Issuer string
	// Destination defaults to the fixture ACS URL.
	Destination string
	// Recipient defaults to the fixture ACS URL.
	Recipient string
	// Audience defaults to the fixture SP entity ID.
	Audience string
	// StatusCode defaults to the success status.
	StatusCode string
	// NameID defaults to a fixture subject.
	NameID string
	// SessionIndex defaults to a fixture session.
	SessionIndex string
	// ClassRef defaults to PasswordProtectedTransport.
	ClassRef string
	// Instant is the issue instant, also used to derive the validity
	// window. Defaults to the current time.
	Instant time.Time
	// NotBefore defaults to five minutes before Instant.
	NotBefore time.Time
	// NotOnOrAfter defaults to five minutes after Instant.
	NotOnOrAfter time.Time
	// Attributes populate an attribute statement when non-empty.
	Attributes map[string][]string
	// OmitAssertion drops the assertion entirely, as failure responses
	// do.
	OmitAssertion bool
}

func (p *ResponseParams) setDefaults() {
	if p.ID == "" {
		p.ID = protocol.GenerateID()
	}
	if p.AssertionID == "" {
		p.AssertionID = protocol.GenerateID()
	}
	if p.Issuer == "" {
		p.Issuer = IDPEntityID
	}
	if p.Destination == "" {
		p.Destination = ACSURL
	}
	if p.Recipient == "" {
		p.Recipient = ACSURL
	}
	if p.Audience == "" {
		p.Audience = SPEntityID
	}
	if p.StatusCode == "" {
		p.StatusCode = protocol.StatusSuccess
	}
	if p.NameID == "" {
		p.NameID = "jdoe@example.com"
	}
	if p.SessionIndex == "" {
		p.SessionIndex = "s2f4a1"
	}
	if p.ClassRef == "" {
		p.ClassRef = protocol.ClassRefPasswordProtectedTransport
	}
	if p.Instant.IsZero() {
		p.Instant = time.Now().UTC()
	}
	if p.NotBefore.IsZero() {
		p.NotBefore = p.Instant.Add(-5 * time.Minute)
	}
	if p.NotOnOrAfter.IsZero() {
		p.NotOnOrAfter = p.Instant.Add(5 * time.Minute)
	}
}

// BuildResponse renders an authentication response document the way
// identity providers produce them.
func BuildResponse(params ResponseParams) *etree.Document {
	params.setDefaults()

	doc := etree.NewDocument()
	response := doc.CreateElement("samlp:Response")
	response.CreateAttr("xmlns:samlp", protocol.ProtocolNamespace)
	response.CreateAttr("xmlns:saml", protocol.AssertionNamespace)
	response.CreateAttr("ID", params.ID)
	response.CreateAttr("Version", protocol.Version)
	response.CreateAttr("IssueInstant", protocol.FormatTime(params.Instant))
	response.CreateAttr("Destination", params.Destination)
	if params.InResponseTo != "" {
		response.CreateAttr("InResponseTo", params.InResponseTo)
	}
	response.CreateElement("saml:Issuer").SetText(params.Issuer)
	status := response.CreateElement("samlp:Status")
	status.CreateElement("samlp:StatusCode").CreateAttr("Value", params.StatusCode)
	if params.OmitAssertion {
		return doc
	}

	assertion := response.CreateElement("saml:Assertion")
	// Identity providers declare the assertion namespace on the
	// assertion itself so it stays self-contained when validated or
	// decrypted as a subtree.
	assertion.CreateAttr("xmlns:saml", protocol.AssertionNamespace)
	assertion.CreateAttr("ID", params.AssertionID)
	assertion.CreateAttr("Version", protocol.Version)
	assertion.CreateAttr("IssueInstant", protocol.FormatTime(params.Instant))
	assertion.CreateElement("saml:Issuer").SetText(params.Issuer)

	subject := assertion.CreateElement("saml:Subject")
	nameID := subject.CreateElement("saml:NameID")
	nameID.CreateAttr("Format", protocol.NameIDFormatEmailAddress)
	nameID.SetText(params.NameID)
	confirmation := subject.CreateElement("saml:SubjectConfirmation")
	confirmation.CreateAttr("Method", "urn:oasis:names:tc:SAML:2.0:cm:bearer")
	confirmationData := confirmation.CreateElement("saml:SubjectConfirmationData")
	confirmationData.CreateAttr("NotOnOrAfter", protocol.FormatTime(params.NotOnOrAfter))
	confirmationData.CreateAttr("Recipient", params.Recipient)
	if params.InResponseTo != "" {
		confirmationData.CreateAttr("InResponseTo", params.InResponseTo)
	}

	conditions := assertion.CreateElement("saml:Conditions")
	conditions.CreateAttr("NotBefore", protocol.FormatTime(params.NotBefore))
	conditions.CreateAttr("NotOnOrAfter", protocol.FormatTime(params.NotOnOrAfter))
	conditions.CreateElement("saml:AudienceRestriction").CreateElement("saml:Audience").SetText(params.Audience)

	authnStatement := assertion.CreateElement("saml:AuthnStatement")
	authnStatement.CreateAttr("AuthnInstant", protocol.FormatTime(params.Instant))
	authnStatement.CreateAttr("SessionIndex", params.SessionIndex)
	authnStatement.CreateElement("saml:AuthnContext").
		CreateElement("saml:AuthnContextClassRef").SetText(params.ClassRef)

	if len(params.Attributes) > 0 {
		statement := assertion.CreateElement("saml:AttributeStatement")
		names := make([]string, 0, len(params.Attributes))
		for name := range params.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			attribute := statement.CreateElement("saml:Attribute")
			attribute.CreateAttr("Name", name)
			for _, value := range params.Attributes[name] {
				attribute.CreateElement("saml:AttributeValue").SetText(value)
			}
		}
	}
	return doc
}

// SignedResponse builds a response and signs it with the IdP identity,
// the assertion, the response or both.
func (p *Providers) SignedResponse(params ResponseParams, signAssertion, signResponse bool) (*etree.Document, error) {
	params.setDefaults()
	doc := BuildResponse(params)
	signer, err := p.IDP.Signer(dsig.RSASHA256SignatureMethod)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if signAssertion && !params.OmitAssertion {
		if err := signer.Sign(doc, params.AssertionID, KeyAlias); err != nil {
			return nil, trace.Wrap(err)
		}
	}
	if signResponse {
		if err := signer.Sign(doc, params.ID, KeyAlias); err != nil {
			return nil, trace.Wrap(err)
		}
	}
	return doc, nil
}

// BuildArtifactResponse wraps a response document in an
// ArtifactResponse as IdP artifact resolution endpoints return them.
func BuildArtifactResponse(id, inResponseTo, statusCode string, embedded *etree.Document) *etree.Document {
	if id == "" {
		id = protocol.GenerateID()
	}
	doc := etree.NewDocument()
	artifactResponse := doc.CreateElement("samlp:ArtifactResponse")
	artifactResponse.CreateAttr("xmlns:samlp", protocol.ProtocolNamespace)
	artifactResponse.CreateAttr("ID", id)
	artifactResponse.CreateAttr("Version", protocol.Version)
	artifactResponse.CreateAttr("IssueInstant", protocol.FormatTime(time.Now().UTC()))
	artifactResponse.CreateAttr("InResponseTo", inResponseTo)
	status := artifactResponse.CreateElement("samlp:Status")
	status.CreateElement("samlp:StatusCode").CreateAttr("Value", statusCode)
	if embedded != nil && embedded.Root() != nil {
		artifactResponse.AddChild(embedded.Root().Copy())
	}
	return doc
}
