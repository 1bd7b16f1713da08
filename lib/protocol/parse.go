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
	"bytes"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
	xrv "github.com/mattermost/xml-roundtrip-validator"

	fedlet "github.com/vijayoommen/Fedlet"
)

// The parsed message types expose typed getters evaluated lazily over
// the element tree. Getters for fields the protocol requires return an
// error of kind MalformedMessage when the field is absent; optional
// getters return a zero value instead.

// NameID is a subject identifier together with its qualifiers.
type NameID struct {
	Value           string
	Format          string
	NameQualifier   string
	SPNameQualifier string
}

// Attribute is a single attribute from an assertion attribute
// statement.
type Attribute struct {
	Name         string
	NameFormat   string
	FriendlyName string
	Values       []string
}

// parseDocument guards raw against XML round-trip mismatches before
// handing it to etree.
func parseDocument(raw []byte) (*etree.Document, error) {
	if err := xrv.Validate(bytes.NewReader(raw)); err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "message failed XML round-trip validation").WithCause(err))
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "parsing message XML").WithCause(err))
	}
	if doc.Root() == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "message has no root element"))
	}
	return doc, nil
}

// childNS returns the first element child with the given namespace URI
// and local name. Navigation resolves namespaces rather than matching
// prefixes, so messages may use any prefix.
func childNS(el *etree.Element, namespace, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, child := range el.ChildElements() {
		if child.Tag == tag && child.NamespaceURI() == namespace {
			return child
		}
	}
	return nil
}

func childrenNS(el *etree.Element, namespace, tag string) []*etree.Element {
	if el == nil {
		return nil
	}
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == tag && child.NamespaceURI() == namespace {
			out = append(out, child)
		}
	}
	return out
}

func checkRoot(el *etree.Element, namespace, tag string) error {
	if el == nil || el.Tag != tag || el.NamespaceURI() != namespace {
		found := "nothing"
		if el != nil {
			found = el.FullTag()
		}
		return trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "expected %s element, found %s", tag, found))
	}
	return nil
}

func requiredAttr(el *etree.Element, name, message string) (string, error) {
	v := el.SelectAttrValue(name, "")
	if v == "" {
		return "", trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "%s has no %s attribute", message, name))
	}
	return v, nil
}

func issuerOf(el *etree.Element, message string) (string, error) {
	issuer := childNS(el, AssertionNamespace, "Issuer")
	if issuer == nil || strings.TrimSpace(issuer.Text()) == "" {
		return "", trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "%s has no Issuer", message))
	}
	return strings.TrimSpace(issuer.Text()), nil
}

func statusCodeOf(el *etree.Element, message string) (string, error) {
	status := childNS(el, ProtocolNamespace, "Status")
	code := childNS(status, ProtocolNamespace, "StatusCode")
	if code == nil {
		return "", trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "%s has no StatusCode", message))
	}
	return requiredAttr(code, "Value", message+" StatusCode")
}

// signatureOf returns the first ds:Signature whose parent is el, so
// only the enveloped signature of that element, never one nested in a
// child message.
func signatureOf(el *etree.Element) *etree.Element {
	return childNS(el, DSigNamespace, "Signature")
}

func optionalTime(el *etree.Element, name string) time.Time {
	v := el.SelectAttrValue(name, "")
	if v == "" {
		return time.Time{}
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Response is a parsed samlp:Response.
type Response struct {
	root *etree.Element
	raw  []byte
}

// ParseResponse parses a samlp:Response document.
func ParseResponse(raw []byte) (*Response, error) {
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return ResponseFromElement(doc.Root(), raw)
}

// ResponseFromElement wraps an already-parsed Response element, as
// found inside an ArtifactResponse or a SOAP body.
func ResponseFromElement(el *etree.Element, raw []byte) (*Response, error) {
	if err := checkRoot(el, ProtocolNamespace, "Response"); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Response{root: el, raw: raw}, nil
}

// Root returns the response element.
func (r *Response) Root() *etree.Element { return r.root }

// RawXML returns the bytes the response was parsed from.
func (r *Response) RawXML() []byte { return r.raw }

// ID returns the response ID.
func (r *Response) ID() (string, error) {
	return requiredAttr(r.root, "ID", "Response")
}

// InResponseTo returns the request ID this response answers, or empty
// for identity-provider-initiated sign-on.
func (r *Response) InResponseTo() string {
	return r.root.SelectAttrValue("InResponseTo", "")
}

// Destination returns the Destination attribute, if present.
func (r *Response) Destination() string {
	return r.root.SelectAttrValue("Destination", "")
}

// IssueInstant returns the issue time, or the zero time when absent or
// unparseable.
func (r *Response) IssueInstant() time.Time {
	return optionalTime(r.root, "IssueInstant")
}

// Issuer returns the response issuer entity ID.
func (r *Response) Issuer() (string, error) {
	return issuerOf(r.root, "Response")
}

// StatusCode returns the top-level status code value.
func (r *Response) StatusCode() (string, error) {
	return statusCodeOf(r.root, "Response")
}

// AssertionElement returns the first assertion element, or nil.
func (r *Response) AssertionElement() *etree.Element {
	return childNS(r.root, AssertionNamespace, "Assertion")
}

func (r *Response) requireAssertion() (*etree.Element, error) {
	assertion := r.AssertionElement()
	if assertion == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "Response has no Assertion"))
	}
	return assertion, nil
}

// AssertionID returns the ID of the assertion.
func (r *Response) AssertionID() (string, error) {
	assertion, err := r.requireAssertion()
	if err != nil {
		return "", trace.Wrap(err)
	}
	return requiredAttr(assertion, "ID", "Assertion")
}

// SubjectNameID returns the asserted subject identifier.
func (r *Response) SubjectNameID() (NameID, error) {
	assertion, err := r.requireAssertion()
	if err != nil {
		return NameID{}, trace.Wrap(err)
	}
	subject := childNS(assertion, AssertionNamespace, "Subject")
	nameID := childNS(subject, AssertionNamespace, "NameID")
	if nameID == nil || strings.TrimSpace(nameID.Text()) == "" {
		return NameID{}, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "Assertion has no Subject NameID"))
	}
	return NameID{
		Value:           strings.TrimSpace(nameID.Text()),
		Format:          nameID.SelectAttrValue("Format", ""),
		NameQualifier:   nameID.SelectAttrValue("NameQualifier", ""),
		SPNameQualifier: nameID.SelectAttrValue("SPNameQualifier", ""),
	}, nil
}

func (r *Response) conditions() (*etree.Element, error) {
	assertion, err := r.requireAssertion()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	conditions := childNS(assertion, AssertionNamespace, "Conditions")
	if conditions == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "Assertion has no Conditions"))
	}
	return conditions, nil
}

// NotBefore returns the assertion validity window start.
func (r *Response) NotBefore() (time.Time, error) {
	conditions, err := r.conditions()
	if err != nil {
		return time.Time{}, trace.Wrap(err)
	}
	v, err := requiredAttr(conditions, "NotBefore", "Conditions")
	if err != nil {
		return time.Time{}, trace.Wrap(err)
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "bad NotBefore %q", v).WithCause(err))
	}
	return t, nil
}

// NotOnOrAfter returns the assertion validity window end.
func (r *Response) NotOnOrAfter() (time.Time, error) {
	conditions, err := r.conditions()
	if err != nil {
		return time.Time{}, trace.Wrap(err)
	}
	v, err := requiredAttr(conditions, "NotOnOrAfter", "Conditions")
	if err != nil {
		return time.Time{}, trace.Wrap(err)
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "bad NotOnOrAfter %q", v).WithCause(err))
	}
	return t, nil
}

// Audiences returns every audience entity ID listed by the assertion
// conditions.
func (r *Response) Audiences() ([]string, error) {
	conditions, err := r.conditions()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var audiences []string
	for _, restriction := range childrenNS(conditions, AssertionNamespace, "AudienceRestriction") {
		for _, audience := range childrenNS(restriction, AssertionNamespace, "Audience") {
			if v := strings.TrimSpace(audience.Text()); v != "" {
				audiences = append(audiences, v)
			}
		}
	}
	if len(audiences) == 0 {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "Assertion has no AudienceRestriction"))
	}
	return audiences, nil
}

func (r *Response) authnStatement() *etree.Element {
	return childNS(r.AssertionElement(), AssertionNamespace, "AuthnStatement")
}

// SessionIndex returns the identity provider session index, if any.
func (r *Response) SessionIndex() string {
	stmt := r.authnStatement()
	if stmt == nil {
		return ""
	}
	return stmt.SelectAttrValue("SessionIndex", "")
}

// AuthnInstant returns the authentication time, or the zero time.
func (r *Response) AuthnInstant() time.Time {
	stmt := r.authnStatement()
	if stmt == nil {
		return time.Time{}
	}
	return optionalTime(stmt, "AuthnInstant")
}

// AuthnContextClassRef returns the asserted authentication context
// class, if any.
func (r *Response) AuthnContextClassRef() string {
	ctx := childNS(r.authnStatement(), AssertionNamespace, "AuthnContext")
	ref := childNS(ctx, AssertionNamespace, "AuthnContextClassRef")
	if ref == nil {
		return ""
	}
	return strings.TrimSpace(ref.Text())
}

// Attributes returns the attributes of every attribute statement.
func (r *Response) Attributes() []Attribute {
	var out []Attribute
	for _, stmt := range childrenNS(r.AssertionElement(), AssertionNamespace, "AttributeStatement") {
		for _, attr := range childrenNS(stmt, AssertionNamespace, "Attribute") {
			a := Attribute{
				Name:         attr.SelectAttrValue("Name", ""),
				NameFormat:   attr.SelectAttrValue("NameFormat", ""),
				FriendlyName: attr.SelectAttrValue("FriendlyName", ""),
			}
			for _, value := range childrenNS(attr, AssertionNamespace, "AttributeValue") {
				a.Values = append(a.Values, value.Text())
			}
			out = append(out, a)
		}
	}
	return out
}

// Signature returns the enveloped response-level signature, or nil.
func (r *Response) Signature() *etree.Element {
	return signatureOf(r.root)
}

// AssertionSignature returns the enveloped assertion-level signature,
// or nil.
func (r *Response) AssertionSignature() *etree.Element {
	return signatureOf(r.AssertionElement())
}

// ArtifactResponse is a parsed samlp:ArtifactResponse.
type ArtifactResponse struct {
	root *etree.Element
	raw  []byte
}

// ParseArtifactResponse parses a samlp:ArtifactResponse document.
func ParseArtifactResponse(raw []byte) (*ArtifactResponse, error) {
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return ArtifactResponseFromElement(doc.Root(), raw)
}

// ArtifactResponseFromElement wraps an ArtifactResponse element already
// parsed out of a SOAP body.
func ArtifactResponseFromElement(el *etree.Element, raw []byte) (*ArtifactResponse, error) {
	if err := checkRoot(el, ProtocolNamespace, "ArtifactResponse"); err != nil {
		return nil, trace.Wrap(err)
	}
	return &ArtifactResponse{root: el, raw: raw}, nil
}

// Root returns the ArtifactResponse element.
func (a *ArtifactResponse) Root() *etree.Element { return a.root }

// RawXML returns the bytes the message was parsed from.
func (a *ArtifactResponse) RawXML() []byte { return a.raw }

// ID returns the message ID, or empty when absent.
func (a *ArtifactResponse) ID() string {
	return a.root.SelectAttrValue("ID", "")
}

// InResponseTo returns the ArtifactResolve ID being answered.
func (a *ArtifactResponse) InResponseTo() (string, error) {
	return requiredAttr(a.root, "InResponseTo", "ArtifactResponse")
}

// StatusCode returns the resolution status code.
func (a *ArtifactResponse) StatusCode() (string, error) {
	return statusCodeOf(a.root, "ArtifactResponse")
}

// Response returns the embedded sign-on response.
func (a *ArtifactResponse) Response() (*Response, error) {
	embedded := childNS(a.root, ProtocolNamespace, "Response")
	if embedded == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "ArtifactResponse has no embedded Response"))
	}
	return &Response{root: embedded, raw: a.raw}, nil
}

// Signature returns the enveloped ArtifactResponse signature, or nil.
func (a *ArtifactResponse) Signature() *etree.Element {
	return signatureOf(a.root)
}

// LogoutRequest is a parsed samlp:LogoutRequest.
type LogoutRequest struct {
	root *etree.Element
	raw  []byte
}

// ParseLogoutRequest parses a samlp:LogoutRequest document.
func ParseLogoutRequest(raw []byte) (*LogoutRequest, error) {
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return LogoutRequestFromElement(doc.Root(), raw)
}

// LogoutRequestFromElement wraps a LogoutRequest element already parsed
// out of a SOAP body.
func LogoutRequestFromElement(el *etree.Element, raw []byte) (*LogoutRequest, error) {
	if err := checkRoot(el, ProtocolNamespace, "LogoutRequest"); err != nil {
		return nil, trace.Wrap(err)
	}
	return &LogoutRequest{root: el, raw: raw}, nil
}

// Root returns the LogoutRequest element.
func (l *LogoutRequest) Root() *etree.Element { return l.root }

// RawXML returns the bytes the message was parsed from.
func (l *LogoutRequest) RawXML() []byte { return l.raw }

// ID returns the request ID.
func (l *LogoutRequest) ID() (string, error) {
	return requiredAttr(l.root, "ID", "LogoutRequest")
}

// Issuer returns the requesting entity ID.
func (l *LogoutRequest) Issuer() (string, error) {
	return issuerOf(l.root, "LogoutRequest")
}

// Destination returns the Destination attribute, if present.
func (l *LogoutRequest) Destination() string {
	return l.root.SelectAttrValue("Destination", "")
}

// NotOnOrAfter returns the request expiry, or the zero time.
func (l *LogoutRequest) NotOnOrAfter() time.Time {
	return optionalTime(l.root, "NotOnOrAfter")
}

// SessionIndex returns the first session index, or empty.
func (l *LogoutRequest) SessionIndex() string {
	si := childNS(l.root, ProtocolNamespace, "SessionIndex")
	if si == nil {
		return ""
	}
	return strings.TrimSpace(si.Text())
}

// NameID returns the subject being logged out; the zero NameID when
// absent.
func (l *LogoutRequest) NameID() NameID {
	nameID := childNS(l.root, AssertionNamespace, "NameID")
	if nameID == nil {
		return NameID{}
	}
	return NameID{
		Value:           strings.TrimSpace(nameID.Text()),
		Format:          nameID.SelectAttrValue("Format", ""),
		NameQualifier:   nameID.SelectAttrValue("NameQualifier", ""),
		SPNameQualifier: nameID.SelectAttrValue("SPNameQualifier", ""),
	}
}

// Signature returns the enveloped request signature, or nil.
func (l *LogoutRequest) Signature() *etree.Element {
	return signatureOf(l.root)
}

// LogoutResponse is a parsed samlp:LogoutResponse.
type LogoutResponse struct {
	root *etree.Element
	raw  []byte
}

// ParseLogoutResponse parses a samlp:LogoutResponse document.
func ParseLogoutResponse(raw []byte) (*LogoutResponse, error) {
	doc, err := parseDocument(raw)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return LogoutResponseFromElement(doc.Root(), raw)
}

// LogoutResponseFromElement wraps a LogoutResponse element already
// parsed out of a SOAP body.
func LogoutResponseFromElement(el *etree.Element, raw []byte) (*LogoutResponse, error) {
	if err := checkRoot(el, ProtocolNamespace, "LogoutResponse"); err != nil {
		return nil, trace.Wrap(err)
	}
	return &LogoutResponse{root: el, raw: raw}, nil
}

// Root returns the LogoutResponse element.
func (l *LogoutResponse) Root() *etree.Element { return l.root }

// RawXML returns the bytes the message was parsed from.
func (l *LogoutResponse) RawXML() []byte { return l.raw }

// ID returns the response ID.
func (l *LogoutResponse) ID() (string, error) {
	return requiredAttr(l.root, "ID", "LogoutResponse")
}

// Issuer returns the responding entity ID.
func (l *LogoutResponse) Issuer() (string, error) {
	return issuerOf(l.root, "LogoutResponse")
}

// StatusCode returns the logout status code.
func (l *LogoutResponse) StatusCode() (string, error) {
	return statusCodeOf(l.root, "LogoutResponse")
}

// InResponseTo returns the LogoutRequest ID being answered, or empty.
func (l *LogoutResponse) InResponseTo() string {
	return l.root.SelectAttrValue("InResponseTo", "")
}

// Destination returns the Destination attribute, if present.
func (l *LogoutResponse) Destination() string {
	return l.root.SelectAttrValue("Destination", "")
}

// Signature returns the enveloped response signature, or nil.
func (l *LogoutResponse) Signature() *etree.Element {
	return signatureOf(l.root)
}
