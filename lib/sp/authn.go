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
	"context"
	"time"

	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/artifact"
	"github.com/vijayoommen/Fedlet/lib/codec"
	"github.com/vijayoommen/Fedlet/lib/correlation"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/protocol"
	"github.com/vijayoommen/Fedlet/lib/xmlsig"
)

// AuthnRequestOptions controls a single sign-on request. The zero
// value sends an unforced request over HTTP-Redirect and asks for the
// response on HTTP-POST.
type AuthnRequestOptions struct {
	// RelayState is opaque host state returned with the response. It
	// must pass the configured relay state list when one is set.
	RelayState string
	// Binding selects how the request travels to the identity
	// provider, HTTP-Redirect (default) or HTTP-POST.
	Binding string
	// ResponseBinding selects how the response should come back,
	// HTTP-POST (default) or HTTP-Artifact.
	ResponseBinding string
	// ForceAuthn asks the identity provider to reauthenticate the
	// user even if a session exists.
	ForceAuthn bool
	// IsPassive forbids visible interaction with the user.
	IsPassive bool
	// AllowCreate permits the identity provider to mint a new
	// identifier for the subject.
	AllowCreate bool
	// NameIDFormat names the requested identifier format.
	NameIDFormat string
	// AuthnContextClassRef requests a specific authentication context
	// class, bypassing the configured level map.
	AuthnContextClassRef string
	// AuthLevel selects an authentication context through the
	// provider's configured level map. Ignored when no map is
	// configured or AuthnContextClassRef is set.
	AuthLevel int
}

// SendAuthnRequest starts single sign-on against the given identity
// provider by redirecting the user agent or serving a self-submitting
// form, depending on the binding. The request ID is recorded so the
// matching response can be correlated when it arrives.
func (s *SP) SendAuthnRequest(ctx context.Context, req Request, rw ResponseWriter, idpEntityID string, opts AuthnRequestOptions) error {
	store, err := s.snapshot()
	if err != nil {
		return trace.Wrap(err)
	}
	spMeta := store.ServiceProvider()
	cfg := spMeta.Config

	if err := checkRelayState(cfg, opts.RelayState); err != nil {
		return trace.Wrap(err)
	}
	idp, err := s.identityProvider(store, idpEntityID)
	if err != nil {
		return trace.Wrap(err)
	}

	binding := opts.Binding
	if binding == "" {
		binding = protocol.BindingHTTPRedirect
	}
	responseBinding := opts.ResponseBinding
	if responseBinding == "" {
		responseBinding = protocol.BindingHTTPPOST
	}

	sso, err := idp.SingleSignOnService(binding)
	if err != nil {
		return trace.Wrap(err)
	}
	acs, err := spMeta.AssertionConsumerService(responseBinding)
	if err != nil {
		return trace.Wrap(err)
	}

	classRef := opts.AuthnContextClassRef
	if classRef == "" && cfg.AuthnContexts != nil {
		classRef = cfg.AuthnContexts.ClassRef(opts.AuthLevel)
	}

	id := protocol.GenerateID()
	doc, err := protocol.BuildAuthnRequest(protocol.AuthnRequestParams{
		ID:                   id,
		SPEntityID:           spMeta.EntityID,
		Destination:          sso.Location,
		ACSURL:               acs.Location,
		ProtocolBinding:      responseBinding,
		IssueInstant:         s.cfg.Clock.Now().UTC(),
		ForceAuthn:           opts.ForceAuthn,
		IsPassive:            opts.IsPassive,
		AllowCreate:          opts.AllowCreate,
		NameIDFormat:         opts.NameIDFormat,
		AuthnContextClassRef: classRef,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	sign := spMeta.AuthnRequestsSigned() || idp.WantAuthnRequestsSigned()

	switch binding {
	case protocol.BindingHTTPRedirect:
		target, err := s.redirectURL(cfg, doc, xmlsig.ParamSAMLRequest, sso.Location, opts.RelayState, sign, "signing the authentication request")
		if err != nil {
			return trace.Wrap(err)
		}
		s.requests.Add(req.UserBucket(), id, correlation.KindAuthn)
		if err := rw.Redirect(target); err != nil {
			return trace.Wrap(err)
		}
	case protocol.BindingHTTPPOST:
		message, err := s.postFormMessage(cfg, doc, id, sign, "signing the authentication request")
		if err != nil {
			return trace.Wrap(err)
		}
		s.requests.Add(req.UserBucket(), id, correlation.KindAuthn)
		if err := writePostForm(rw, postFormData{
			Action:     sso.Location,
			ParamName:  xmlsig.ParamSAMLRequest,
			Message:    message,
			RelayState: opts.RelayState,
		}); err != nil {
			return trace.Wrap(err)
		}
	default:
		return trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "unsupported authentication request binding %q", binding))
	}

	messagesSent.WithLabelValues("authn_request", binding).Inc()
	s.logger.DebugContext(ctx, "Sent authentication request.", "idp", idpEntityID, "binding", binding, "id", id)
	return nil
}

// AuthnResponse is the validated outcome of single sign-on, carrying
// everything a host needs to establish its own session.
type AuthnResponse struct {
	// Issuer is the entity ID of the identity provider that produced
	// the assertion.
	Issuer string
	// InResponseTo echoes the ID of the authentication request, empty
	// for identity provider initiated sign-on.
	InResponseTo string
	// NameID identifies the authenticated subject.
	NameID protocol.NameID
	// SessionIndex names the identity provider session. Hosts keep it
	// to target a later logout.
	SessionIndex string
	// AuthnContextClassRef reports how the subject authenticated.
	AuthnContextClassRef string
	// AuthnInstant is when the authentication happened.
	AuthnInstant time.Time
	// NotBefore and NotOnOrAfter bound the assertion's validity.
	NotBefore    time.Time
	NotOnOrAfter time.Time
	// Audiences lists the audience restrictions of the assertion.
	Audiences []string
	// Attributes carries the attribute statement, if any.
	Attributes []protocol.Attribute
	// RawXML is the response document exactly as received, after
	// artifact resolution when that binding was used.
	RawXML []byte
}

// GetAuthnResponse receives and validates a sign-on response arriving
// on the assertion consumer endpoint, by HTTP-POST or by artifact
// resolution. On failure the raw response XML, when available, can be
// recovered from the error with fedlet.ErrorXML.
func (s *SP) GetAuthnResponse(ctx context.Context, req Request) (*AuthnResponse, error) {
	store, err := s.snapshot()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	result, err := s.getAuthnResponse(ctx, store, req)
	observeReceived("authn_response", err)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	s.logger.InfoContext(ctx, "Accepted sign-on response.",
		"issuer", result.Issuer, "session_index", result.SessionIndex, "in_response_to", result.InResponseTo)
	return result, nil
}

func (s *SP) getAuthnResponse(ctx context.Context, store *metadata.Store, req Request) (*AuthnResponse, error) {
	encoded := req.QueryParam(xmlsig.ParamSAMLResponse)
	encodedArtifact := req.QueryParam(artifact.ParamSAMLArt)
	switch {
	case encoded != "" && encodedArtifact != "":
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "request carries both SAMLResponse and SAMLart"))
	case encoded == "" && encodedArtifact == "":
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "request carries neither SAMLResponse nor SAMLart"))
	}

	var response *protocol.Response
	var artResponse *protocol.ArtifactResponse
	if encodedArtifact != "" {
		var err error
		artResponse, response, err = s.resolveArtifact(ctx, store, encodedArtifact)
		if err != nil {
			return nil, trace.Wrap(err)
		}
	} else {
		raw, err := codec.Base64Decode(encoded)
		if err != nil {
			return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "SAMLResponse is not valid base64").WithCause(err))
		}
		response, err = protocol.ParseResponse(raw)
		if err != nil {
			return nil, trace.Wrap(fedlet.AttachXML(err, raw))
		}
	}

	if err := s.validateAuthnResponse(store, response, artResponse, req.UserBucket()); err != nil {
		return nil, trace.Wrap(fedlet.AttachXML(err, response.RawXML()))
	}
	result, err := buildAuthnResult(response)
	if err != nil {
		return nil, trace.Wrap(fedlet.AttachXML(err, response.RawXML()))
	}
	return result, nil
}

// resolveArtifact dereferences an artifact over the SOAP back channel
// and returns both the enclosing ArtifactResponse and the embedded
// Response. The artifact's source ID, not any request parameter,
// decides which identity provider is asked.
func (s *SP) resolveArtifact(ctx context.Context, store *metadata.Store, encoded string) (*protocol.ArtifactResponse, *protocol.Response, error) {
	art, err := artifact.Parse(encoded)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	idp, err := store.IdentityProviderBySourceID(art.SourceIDHex())
	if err != nil {
		if trace.IsNotFound(err) {
			return nil, nil, trace.Wrap(fedlet.NewError(fedlet.KindUnknownIssuer, "artifact source ID matches no configured identity provider"))
		}
		return nil, nil, trace.Wrap(err)
	}
	endpoint, err := idp.ArtifactResolutionService(art.EndpointIndex)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}

	spMeta := store.ServiceProvider()
	id := protocol.GenerateID()
	doc, err := protocol.BuildArtifactResolve(protocol.ArtifactResolveParams{
		ID:           id,
		SPEntityID:   spMeta.EntityID,
		Destination:  endpoint.Location,
		IssueInstant: s.cfg.Clock.Now().UTC(),
		Artifact:     encoded,
	})
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	if idp.Config.WantArtifactResolveSigned {
		alias, err := signingAlias(spMeta.Config, "signing the artifact resolve request")
		if err != nil {
			return nil, nil, trace.Wrap(err)
		}
		signer, err := s.signer(spMeta.Config)
		if err != nil {
			return nil, nil, trace.Wrap(err)
		}
		if err := signer.Sign(doc, id, alias); err != nil {
			return nil, nil, trace.Wrap(err)
		}
	}

	s.logger.DebugContext(ctx, "Resolving artifact.", "idp", idp.EntityID, "endpoint", endpoint.Location)
	messagesSent.WithLabelValues("artifact_resolve", protocol.BindingSOAP).Inc()
	artResponse, err := s.soap.ResolveArtifact(ctx, endpoint.Location, doc)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	status, err := artResponse.StatusCode()
	if err != nil {
		return nil, nil, trace.Wrap(fedlet.AttachXML(err, artResponse.RawXML()))
	}
	if status != protocol.StatusSuccess {
		err := fedlet.NewError(fedlet.KindResponderFailure, "artifact resolution reported status %q", status).WithStatus(status)
		return nil, nil, trace.Wrap(fedlet.AttachXML(err, artResponse.RawXML()))
	}
	response, err := artResponse.Response()
	if err != nil {
		return nil, nil, trace.Wrap(fedlet.AttachXML(err, artResponse.RawXML()))
	}
	return artResponse, response, nil
}

func buildAuthnResult(response *protocol.Response) (*AuthnResponse, error) {
	issuer, err := response.Issuer()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	nameID, err := response.SubjectNameID()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	notBefore, err := response.NotBefore()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	notOnOrAfter, err := response.NotOnOrAfter()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	audiences, err := response.Audiences()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &AuthnResponse{
		Issuer:               issuer,
		InResponseTo:         response.InResponseTo(),
		NameID:               nameID,
		SessionIndex:         response.SessionIndex(),
		AuthnContextClassRef: response.AuthnContextClassRef(),
		AuthnInstant:         response.AuthnInstant(),
		NotBefore:            notBefore,
		NotOnOrAfter:         notOnOrAfter,
		Audiences:            audiences,
		Attributes:           response.Attributes(),
		RawXML:               response.RawXML(),
	}, nil
}
