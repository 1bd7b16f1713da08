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

package sp

import (
	"slices"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/correlation"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/protocol"
)

// Signature placement levels for sign-on responses, ordered by
// strength. A signature over an outer element covers everything the
// inner ones would.
const (
	sigNone = iota
	sigAssertion
	sigResponse
	sigArtifactResponse
)

func sigLevelName(level int) string {
	switch level {
	case sigAssertion:
		return "assertion"
	case sigResponse:
		return "response"
	case sigArtifactResponse:
		return "artifact response"
	}
	return "none"
}

// issuerProvider resolves the identity provider that issued an inbound
// message. A missing entry means the message comes from a party the
// deployment does not know, not a local configuration mistake.
func (s *SP) issuerProvider(store *metadata.Store, issuer string) (*metadata.IdentityProvider, error) {
	idp, err := store.IdentityProvider(issuer)
	if err != nil {
		if trace.IsNotFound(err) {
			return nil, trace.Wrap(fedlet.NewError(fedlet.KindUnknownIssuer, "issuer %q is not a configured identity provider", issuer))
		}
		return nil, trace.Wrap(err)
	}
	return idp, nil
}

// validateAuthnResponse runs the checks on an inbound sign-on response
// in a fixed order: signature, issuer, status, validity window,
// audience, circle of trust, request correlation. The order is part of
// the contract; an unsigned response that should have been signed is
// reported as such even if it would also fail a later check.
//
// artResponse is non-nil when the response arrived by artifact
// resolution, in which case the enclosing ArtifactResponse is the
// outermost signable element.
//
// The correlation entry for the response is consumed exactly once no
// matter where validation stops, so a rejected response cannot be
// replayed after the host fixes whatever made it fail.
func (s *SP) validateAuthnResponse(store *metadata.Store, response *protocol.Response, artResponse *protocol.ArtifactResponse, bucket string) error {
	spMeta := store.ServiceProvider()
	cfg := spMeta.Config

	issuer, err := response.Issuer()
	if err != nil {
		return trace.Wrap(err)
	}
	if inResponseTo := response.InResponseTo(); inResponseTo != "" {
		defer s.requests.Claim(bucket, inResponseTo, correlation.KindAuthn)
	}

	if err := s.checkAuthnSignature(store, spMeta, response, artResponse, issuer); err != nil {
		return trace.Wrap(err)
	}
	if _, err := s.issuerProvider(store, issuer); err != nil {
		return trace.Wrap(err)
	}

	status, err := response.StatusCode()
	if err != nil {
		return trace.Wrap(err)
	}
	if status != protocol.StatusSuccess {
		return trace.Wrap(fedlet.NewError(fedlet.KindResponderFailure, "identity provider reported status %q", status).WithStatus(status))
	}

	notBefore, err := response.NotBefore()
	if err != nil {
		return trace.Wrap(err)
	}
	notOnOrAfter, err := response.NotOnOrAfter()
	if err != nil {
		return trace.Wrap(err)
	}
	now := s.cfg.Clock.Now().UTC()
	skew := cfg.AssertionTimeSkew
	if now.Before(notBefore.Add(-skew)) || !now.Before(notOnOrAfter.Add(skew)) {
		return trace.Wrap(fedlet.NewError(fedlet.KindAssertionExpiredOrNotYetValid,
			"assertion is valid from %v until %v, now is %v with %v accepted skew", notBefore, notOnOrAfter, now, skew))
	}

	audiences, err := response.Audiences()
	if err != nil {
		return trace.Wrap(err)
	}
	if !slices.Contains(audiences, spMeta.EntityID) {
		return trace.Wrap(fedlet.NewError(fedlet.KindAudienceMismatch, "assertion audiences %v do not include %q", audiences, spMeta.EntityID))
	}

	if !store.InSameCircle(spMeta.EntityID, issuer) {
		return trace.Wrap(fedlet.NewError(fedlet.KindNotInCircleOfTrust, "no circle of trust contains both %q and %q", spMeta.EntityID, issuer))
	}

	if inResponseTo := response.InResponseTo(); inResponseTo != "" && !s.cfg.SkipCorrelationCheck {
		if !s.requests.Claim(bucket, inResponseTo, correlation.KindAuthn) {
			return trace.Wrap(fedlet.NewError(fedlet.KindCorrelationMismatch, "response answers unknown or already consumed request %q", inResponseTo))
		}
	}
	return nil
}

// checkAuthnSignature enforces the signing policy for sign-on
// responses. The policy flags determine the weakest acceptable
// placement; among the signatures actually present, the outermost one
// is verified since it covers the rest of the message.
func (s *SP) checkAuthnSignature(store *metadata.Store, spMeta *metadata.ServiceProvider, response *protocol.Response, artResponse *protocol.ArtifactResponse, issuer string) error {
	cfg := spMeta.Config

	required := sigNone
	if artResponse != nil {
		if cfg.WantArtifactResponseSigned {
			required = sigArtifactResponse
		}
	} else if cfg.WantPOSTResponseSigned {
		required = sigResponse
	}
	if required < sigAssertion && spMeta.WantAssertionsSigned() {
		required = sigAssertion
	}

	strength := sigNone
	var signed, signature *etree.Element
	var referenceID string
	if artResponse != nil {
		if sig := artResponse.Signature(); sig != nil {
			strength, signed, signature = sigArtifactResponse, artResponse.Root(), sig
			referenceID = artResponse.ID()
		}
	}
	if strength == sigNone {
		if sig := response.Signature(); sig != nil {
			id, err := response.ID()
			if err != nil {
				return trace.Wrap(err)
			}
			strength, signed, signature, referenceID = sigResponse, response.Root(), sig, id
		}
	}
	if strength == sigNone {
		if sig := response.AssertionSignature(); sig != nil {
			id, err := response.AssertionID()
			if err != nil {
				return trace.Wrap(err)
			}
			strength, signed, signature, referenceID = sigAssertion, response.AssertionElement(), sig, id
		}
	}

	if strength < required {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureMissing, "configuration requires a signed %s but no signature at or above that level is present", sigLevelName(required)))
	}
	if strength == sigNone {
		return nil
	}
	idp, err := s.issuerProvider(store, issuer)
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(s.verifier.Verify(signed, signature, referenceID, idp.SigningCertificates()))
}

// logoutBinding records how an inbound logout message arrived. For the
// HTTP-Redirect binding the signature lives in the query string, so the
// raw query as received is kept for verification.
type logoutBinding struct {
	binding  string
	rawQuery string
}

// verifyLogoutSignature checks the signature on an inbound logout
// message against the issuer's certificates. Redirect arrivals verify
// the query string, the other bindings verify the embedded XML
// signature.
func (s *SP) verifyLogoutSignature(root, signature *etree.Element, referenceID string, arrival logoutBinding, idp *metadata.IdentityProvider, what string) error {
	if arrival.binding == protocol.BindingHTTPRedirect {
		return trace.Wrap(s.queryVerifier.VerifyQuery(arrival.rawQuery, idp.SigningCertificates()))
	}
	if signature == nil {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureMissing, "%s is not signed but the configuration requires it", what))
	}
	return trace.Wrap(s.verifier.Verify(root, signature, referenceID, idp.SigningCertificates()))
}

// validateLogoutRequest checks an identity provider initiated logout
// request: signature when the configuration demands one, then issuer,
// then circle of trust. Logout requests carry no status and answer
// nothing, so the status and correlation steps do not apply.
func (s *SP) validateLogoutRequest(store *metadata.Store, request *protocol.LogoutRequest, arrival logoutBinding) error {
	spMeta := store.ServiceProvider()

	issuer, err := request.Issuer()
	if err != nil {
		return trace.Wrap(err)
	}

	if spMeta.Config.WantLogoutRequestSigned {
		idp, err := s.issuerProvider(store, issuer)
		if err != nil {
			return trace.Wrap(err)
		}
		id, err := request.ID()
		if err != nil {
			return trace.Wrap(err)
		}
		if err := s.verifyLogoutSignature(request.Root(), request.Signature(), id, arrival, idp, "logout request"); err != nil {
			return trace.Wrap(err)
		}
	}
	if _, err := s.issuerProvider(store, issuer); err != nil {
		return trace.Wrap(err)
	}
	if !store.InSameCircle(spMeta.EntityID, issuer) {
		return trace.Wrap(fedlet.NewError(fedlet.KindNotInCircleOfTrust, "no circle of trust contains both %q and %q", spMeta.EntityID, issuer))
	}
	return nil
}

// validateLogoutResponse checks a logout response in the same fixed
// order as sign-on responses, minus the assertion steps. Unlike
// sign-on, a logout response always answers a request this service
// provider sent, so a missing InResponseTo is a correlation failure
// rather than an identity provider initiated flow.
func (s *SP) validateLogoutResponse(store *metadata.Store, response *protocol.LogoutResponse, arrival logoutBinding, bucket string) error {
	spMeta := store.ServiceProvider()

	issuer, err := response.Issuer()
	if err != nil {
		return trace.Wrap(err)
	}
	inResponseTo := response.InResponseTo()
	if inResponseTo != "" {
		defer s.requests.Claim(bucket, inResponseTo, correlation.KindLogout)
	}

	if spMeta.Config.WantLogoutResponseSigned {
		idp, err := s.issuerProvider(store, issuer)
		if err != nil {
			return trace.Wrap(err)
		}
		id, err := response.ID()
		if err != nil {
			return trace.Wrap(err)
		}
		if err := s.verifyLogoutSignature(response.Root(), response.Signature(), id, arrival, idp, "logout response"); err != nil {
			return trace.Wrap(err)
		}
	}
	if _, err := s.issuerProvider(store, issuer); err != nil {
		return trace.Wrap(err)
	}

	status, err := response.StatusCode()
	if err != nil {
		return trace.Wrap(err)
	}
	if status != protocol.StatusSuccess {
		return trace.Wrap(fedlet.NewError(fedlet.KindResponderFailure, "identity provider reported status %q", status).WithStatus(status))
	}

	if !store.InSameCircle(spMeta.EntityID, issuer) {
		return trace.Wrap(fedlet.NewError(fedlet.KindNotInCircleOfTrust, "no circle of trust contains both %q and %q", spMeta.EntityID, issuer))
	}

	if !s.cfg.SkipCorrelationCheck {
		if inResponseTo == "" {
			return trace.Wrap(fedlet.NewError(fedlet.KindCorrelationMismatch, "logout response does not reference a request"))
		}
		if !s.requests.Claim(bucket, inResponseTo, correlation.KindLogout) {
			return trace.Wrap(fedlet.NewError(fedlet.KindCorrelationMismatch, "logout response answers unknown or already consumed request %q", inResponseTo))
		}
	}
	return nil
}
