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

package protocol

import (
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
)

// AuthnRequestParams are the inputs to BuildAuthnRequest. ID and
// IssueInstant are supplied by the caller so the request can be tracked
// for correlation before it is emitted.
type AuthnRequestParams struct {
	// ID is the request ID, a fresh NCName from GenerateID.
	ID string
	// SPEntityID is the issuer of the request.
	SPEntityID string
	// Destination is the identity provider single sign-on endpoint for
	// the chosen request binding.
	Destination string
	// ACSURL is the assertion consumer service URL the response should
	// be delivered to.
	ACSURL string
	// ProtocolBinding is the binding URI of the assertion consumer
	// service, the binding the response will use.
	ProtocolBinding string
	// IssueInstant is the request issue time.
	IssueInstant time.Time
	// ForceAuthn asks the identity provider to re-authenticate the
	// subject even when a session exists.
	ForceAuthn bool
	// IsPassive forbids visible interaction with the subject.
	IsPassive bool
	// AllowCreate permits the identity provider to create a new
	// federated identifier.
	AllowCreate bool
	// NameIDFormat, when set, is carried on the NameIDPolicy element.
	NameIDFormat string
	// AuthnContextClassRef, when set, is requested with exact
	// comparison.
	AuthnContextClassRef string
}

// BuildAuthnRequest constructs an AuthnRequest document.
func BuildAuthnRequest(p AuthnRequestParams) (*etree.Document, error) {
	switch {
	case p.ID == "":
		return nil, trace.BadParameter("missing ID")
	case p.SPEntityID == "":
		return nil, trace.BadParameter("missing SPEntityID")
	case p.Destination == "":
		return nil, trace.BadParameter("missing Destination")
	case p.ACSURL == "":
		return nil, trace.BadParameter("missing ACSURL")
	case p.ProtocolBinding == "":
		return nil, trace.BadParameter("missing ProtocolBinding")
	case p.IssueInstant.IsZero():
		return nil, trace.BadParameter("missing IssueInstant")
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("samlp:AuthnRequest")
	root.CreateAttr("xmlns:samlp", ProtocolNamespace)
	root.CreateAttr("xmlns:saml", AssertionNamespace)
	root.CreateAttr("ID", p.ID)
	root.CreateAttr("Version", Version)
	root.CreateAttr("IssueInstant", FormatTime(p.IssueInstant))
	root.CreateAttr("Destination", p.Destination)
	root.CreateAttr("AssertionConsumerServiceURL", p.ACSURL)
	root.CreateAttr("ProtocolBinding", p.ProtocolBinding)
	if p.ForceAuthn {
		root.CreateAttr("ForceAuthn", "true")
	}
	if p.IsPassive {
		root.CreateAttr("IsPassive", "true")
	}

	root.CreateElement("saml:Issuer").SetText(p.SPEntityID)

	policy := root.CreateElement("samlp:NameIDPolicy")
	policy.CreateAttr("AllowCreate", strconv.FormatBool(p.AllowCreate))
	if p.NameIDFormat != "" {
		policy.CreateAttr("Format", p.NameIDFormat)
	}

	if p.AuthnContextClassRef != "" {
		rac := root.CreateElement("samlp:RequestedAuthnContext")
		rac.CreateAttr("Comparison", ComparisonExact)
		rac.CreateElement("saml:AuthnContextClassRef").SetText(p.AuthnContextClassRef)
	}
	return doc, nil
}

// LogoutRequestParams are the inputs to BuildLogoutRequest. NameID and
// SessionIndex identify the session being terminated and are required.
type LogoutRequestParams struct {
	ID           string
	SPEntityID   string
	Destination  string
	IssueInstant time.Time
	// NameID is the subject identifier of the session to close.
	NameID string
	// NameIDFormat, NameQualifier and SPNameQualifier qualify NameID
	// and are emitted only when set; some identity providers require
	// them.
	NameIDFormat    string
	NameQualifier   string
	SPNameQualifier string
	// SessionIndex names the identity provider session.
	SessionIndex string
}

// BuildLogoutRequest constructs a LogoutRequest document.
func BuildLogoutRequest(p LogoutRequestParams) (*etree.Document, error) {
	switch {
	case p.ID == "":
		return nil, trace.BadParameter("missing ID")
	case p.SPEntityID == "":
		return nil, trace.BadParameter("missing SPEntityID")
	case p.Destination == "":
		return nil, trace.BadParameter("missing Destination")
	case p.IssueInstant.IsZero():
		return nil, trace.BadParameter("missing IssueInstant")
	case p.NameID == "":
		return nil, trace.BadParameter("missing NameID")
	case p.SessionIndex == "":
		return nil, trace.BadParameter("missing SessionIndex")
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("samlp:LogoutRequest")
	root.CreateAttr("xmlns:samlp", ProtocolNamespace)
	root.CreateAttr("xmlns:saml", AssertionNamespace)
	root.CreateAttr("ID", p.ID)
	root.CreateAttr("Version", Version)
	root.CreateAttr("IssueInstant", FormatTime(p.IssueInstant))
	root.CreateAttr("Destination", p.Destination)

	root.CreateElement("saml:Issuer").SetText(p.SPEntityID)

	nameID := root.CreateElement("saml:NameID")
	if p.NameIDFormat != "" {
		nameID.CreateAttr("Format", p.NameIDFormat)
	}
	if p.NameQualifier != "" {
		nameID.CreateAttr("NameQualifier", p.NameQualifier)
	}
	if p.SPNameQualifier != "" {
		nameID.CreateAttr("SPNameQualifier", p.SPNameQualifier)
	}
	nameID.SetText(p.NameID)

	root.CreateElement("samlp:SessionIndex").SetText(p.SessionIndex)
	return doc, nil
}

// LogoutResponseParams are the inputs to BuildLogoutResponse.
type LogoutResponseParams struct {
	ID           string
	SPEntityID   string
	Destination  string
	IssueInstant time.Time
	// InResponseTo is the ID of the LogoutRequest being answered.
	InResponseTo string
	// StatusCode defaults to Success.
	StatusCode string
}

// BuildLogoutResponse constructs a LogoutResponse document.
func BuildLogoutResponse(p LogoutResponseParams) (*etree.Document, error) {
	switch {
	case p.ID == "":
		return nil, trace.BadParameter("missing ID")
	case p.SPEntityID == "":
		return nil, trace.BadParameter("missing SPEntityID")
	case p.Destination == "":
		return nil, trace.BadParameter("missing Destination")
	case p.IssueInstant.IsZero():
		return nil, trace.BadParameter("missing IssueInstant")
	case p.InResponseTo == "":
		return nil, trace.BadParameter("missing InResponseTo")
	}
	status := p.StatusCode
	if status == "" {
		status = StatusSuccess
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("samlp:LogoutResponse")
	root.CreateAttr("xmlns:samlp", ProtocolNamespace)
	root.CreateAttr("xmlns:saml", AssertionNamespace)
	root.CreateAttr("ID", p.ID)
	root.CreateAttr("Version", Version)
	root.CreateAttr("IssueInstant", FormatTime(p.IssueInstant))
	root.CreateAttr("Destination", p.Destination)
	root.CreateAttr("InResponseTo", p.InResponseTo)

	root.CreateElement("saml:Issuer").SetText(p.SPEntityID)
	root.CreateElement("samlp:Status").CreateElement("samlp:StatusCode").CreateAttr("Value", status)
	return doc, nil
}

// ArtifactResolveParams are the inputs to BuildArtifactResolve.
type ArtifactResolveParams struct {
	ID           string
	SPEntityID   string
	Destination  string
	IssueInstant time.Time
	// Artifact is the base64 artifact exactly as received.
	Artifact string
}

// BuildArtifactResolve constructs an ArtifactResolve document for the
// SOAP back channel.
func BuildArtifactResolve(p ArtifactResolveParams) (*etree.Document, error) {
	switch {
	case p.ID == "":
		return nil, trace.BadParameter("missing ID")
	case p.SPEntityID == "":
		return nil, trace.BadParameter("missing SPEntityID")
	case p.Destination == "":
		return nil, trace.BadParameter("missing Destination")
	case p.IssueInstant.IsZero():
		return nil, trace.BadParameter("missing IssueInstant")
	case p.Artifact == "":
		return nil, trace.BadParameter("missing Artifact")
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("samlp:ArtifactResolve")
	root.CreateAttr("xmlns:samlp", ProtocolNamespace)
	root.CreateAttr("xmlns:saml", AssertionNamespace)
	root.CreateAttr("ID", p.ID)
	root.CreateAttr("Version", Version)
	root.CreateAttr("IssueInstant", FormatTime(p.IssueInstant))
	root.CreateAttr("Destination", p.Destination)

	root.CreateElement("saml:Issuer").SetText(p.SPEntityID)
	root.CreateElement("samlp:Artifact").SetText(p.Artifact)
	return doc, nil
}
