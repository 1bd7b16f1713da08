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
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
	xrv "github.com/mattermost/xml-roundtrip-validator"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/codec"
	"github.com/vijayoommen/Fedlet/lib/correlation"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/protocol"
	"github.com/vijayoommen/Fedlet/lib/xmlsig"
)

// Front channel messages are small; anything beyond this on an inbound
// SOAP body is not a logout message.
const maxInboundBytes = 1 << 20

// LogoutRequestOptions controls an outbound logout request.
type LogoutRequestOptions struct {
	// Binding selects HTTP-Redirect (default), HTTP-POST or SOAP.
	Binding string
	// NameID identifies the subject whose session should end.
	// Required.
	NameID string
	// NameIDFormat, NameQualifier and SPNameQualifier qualify NameID
	// the way the identity provider issued it.
	NameIDFormat    string
	NameQualifier   string
	SPNameQualifier string
	// SessionIndex names the identity provider session to close.
	// Required.
	SessionIndex string
	// RelayState is opaque host state returned with the response on
	// the front channel bindings.
	RelayState string
}

// SendLogoutRequest starts single logout against the given identity
// provider. On the front channel bindings it emits a redirect or a
// self-submitting form and returns a nil response; the answer arrives
// later through GetLogoutResponse. On the SOAP binding it performs the
// whole exchange on the back channel and returns the validated
// logout response.
func (s *SP) SendLogoutRequest(ctx context.Context, req Request, rw ResponseWriter, idpEntityID string, opts LogoutRequestOptions) (*protocol.LogoutResponse, error) {
	store, err := s.snapshot()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	spMeta := store.ServiceProvider()
	cfg := spMeta.Config

	if err := checkRelayState(cfg, opts.RelayState); err != nil {
		return nil, trace.Wrap(err)
	}
	idp, err := s.identityProvider(store, idpEntityID)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	binding := opts.Binding
	if binding == "" {
		binding = protocol.BindingHTTPRedirect
	}
	slo, err := idp.SingleLogoutService(binding)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	id := protocol.GenerateID()
	doc, err := protocol.BuildLogoutRequest(protocol.LogoutRequestParams{
		ID:              id,
		SPEntityID:      spMeta.EntityID,
		Destination:     slo.Location,
		IssueInstant:    s.cfg.Clock.Now().UTC(),
		NameID:          opts.NameID,
		NameIDFormat:    opts.NameIDFormat,
		NameQualifier:   opts.NameQualifier,
		SPNameQualifier: opts.SPNameQualifier,
		SessionIndex:    opts.SessionIndex,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	sign := cfg.WantLogoutRequestSigned || idp.Config.WantLogoutRequestSigned

	switch binding {
	case protocol.BindingHTTPRedirect:
		target, err := s.redirectURL(cfg, doc, xmlsig.ParamSAMLRequest, slo.Location, opts.RelayState, sign, "signing the logout request")
		if err != nil {
			return nil, trace.Wrap(err)
		}
		s.requests.Add(req.UserBucket(), id, correlation.KindLogout)
		if err := rw.Redirect(target); err != nil {
			return nil, trace.Wrap(err)
		}
	case protocol.BindingHTTPPOST:
		message, err := s.postFormMessage(cfg, doc, id, sign, "signing the logout request")
		if err != nil {
			return nil, trace.Wrap(err)
		}
		s.requests.Add(req.UserBucket(), id, correlation.KindLogout)
		if err := writePostForm(rw, postFormData{
			Action:     slo.Location,
			ParamName:  xmlsig.ParamSAMLRequest,
			Message:    message,
			RelayState: opts.RelayState,
		}); err != nil {
			return nil, trace.Wrap(err)
		}
	case protocol.BindingSOAP:
		return s.soapLogout(ctx, store, req, doc, id, idpEntityID, slo.Location, sign)
	default:
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "unsupported logout request binding %q", binding))
	}

	messagesSent.WithLabelValues("logout_request", binding).Inc()
	s.logger.DebugContext(ctx, "Sent logout request.", "idp", idpEntityID, "binding", binding, "id", id)
	return nil, nil
}

// soapLogout runs the logout exchange on the back channel. A transport
// failure leaves the correlation entry in place; it ages out by TTL.
func (s *SP) soapLogout(ctx context.Context, store *metadata.Store, req Request, doc *etree.Document, id, idpEntityID, endpoint string, sign bool) (*protocol.LogoutResponse, error) {
	spMeta := store.ServiceProvider()
	if sign {
		alias, err := signingAlias(spMeta.Config, "signing the logout request")
		if err != nil {
			return nil, trace.Wrap(err)
		}
		signer, err := s.signer(spMeta.Config)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if err := signer.Sign(doc, id, alias); err != nil {
			return nil, trace.Wrap(err)
		}
	}

	s.requests.Add(req.UserBucket(), id, correlation.KindLogout)
	messagesSent.WithLabelValues("logout_request", protocol.BindingSOAP).Inc()
	element, payload, err := s.soap.Call(ctx, endpoint, doc.Root(), protocol.ProtocolNamespace, "LogoutResponse", "logout")
	if err != nil {
		return nil, trace.Wrap(err)
	}

	response, err := protocol.LogoutResponseFromElement(element, payload)
	if err == nil {
		err = s.validateLogoutResponse(store, response, logoutBinding{binding: protocol.BindingSOAP}, req.UserBucket())
	}
	observeReceived("logout_response", err)
	if err != nil {
		return nil, trace.Wrap(fedlet.AttachXML(err, payload))
	}
	s.logger.InfoContext(ctx, "Completed back channel logout.", "idp", idpEntityID, "in_response_to", id)
	return response, nil
}

// GetLogoutRequest receives and validates a logout request initiated
// by an identity provider, arriving by HTTP-Redirect, HTTP-POST or
// SOAP. The host terminates its local session and answers with
// SendLogoutResponse or SendSoapLogoutResponse depending on how the
// request came in.
func (s *SP) GetLogoutRequest(ctx context.Context, req Request) (*protocol.LogoutRequest, error) {
	store, err := s.snapshot()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	request, arrival, err := s.readLogoutRequest(req)
	if err == nil {
		err = s.validateLogoutRequest(store, request, arrival)
	}
	observeReceived("logout_request", err)
	if err != nil {
		if request != nil {
			err = fedlet.AttachXML(err, request.RawXML())
		}
		return nil, trace.Wrap(err)
	}
	issuer, _ := request.Issuer()
	s.logger.InfoContext(ctx, "Accepted logout request.", "issuer", issuer, "binding", arrival.binding)
	return request, nil
}

func (s *SP) readLogoutRequest(req Request) (*protocol.LogoutRequest, logoutBinding, error) {
	if req.Method() == http.MethodGet {
		arrival := logoutBinding{binding: protocol.BindingHTTPRedirect, rawQuery: rawQueryOf(req.RawURL())}
		encoded := req.QueryParam(xmlsig.ParamSAMLRequest)
		if encoded == "" {
			return nil, arrival, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "logout request carries no SAMLRequest parameter"))
		}
		raw, err := codec.Base64InflateDecode(encoded)
		if err != nil {
			return nil, arrival, trace.Wrap(err)
		}
		request, err := protocol.ParseLogoutRequest(raw)
		return request, arrival, trace.Wrap(err)
	}

	if encoded := req.QueryParam(xmlsig.ParamSAMLRequest); encoded != "" {
		arrival := logoutBinding{binding: protocol.BindingHTTPPOST}
		raw, err := codec.Base64Decode(encoded)
		if err != nil {
			return nil, arrival, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "SAMLRequest is not valid base64").WithCause(err))
		}
		request, err := protocol.ParseLogoutRequest(raw)
		return request, arrival, trace.Wrap(err)
	}

	// No form field, the request body is a SOAP envelope.
	arrival := logoutBinding{binding: protocol.BindingSOAP}
	payload, err := io.ReadAll(io.LimitReader(req.Body(), maxInboundBytes))
	if err != nil {
		return nil, arrival, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "reading logout request body").WithCause(err))
	}
	if err := xrv.Validate(bytes.NewReader(payload)); err != nil {
		return nil, arrival, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "invalid logout request XML").WithCause(err))
	}
	document := etree.NewDocument()
	if err := document.ReadFromBytes(payload); err != nil {
		return nil, arrival, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "parsing logout request envelope").WithCause(err))
	}
	element, err := codec.SOAPBodyChild(document, protocol.ProtocolNamespace, "LogoutRequest")
	if err != nil {
		return nil, arrival, trace.Wrap(err)
	}
	request, err := protocol.LogoutRequestFromElement(element, payload)
	return request, arrival, trace.Wrap(err)
}

// GetLogoutResponse receives and validates a logout response arriving
// on the front channel, by HTTP-Redirect or HTTP-POST, answering a
// request this service provider sent earlier.
func (s *SP) GetLogoutResponse(ctx context.Context, req Request) (*protocol.LogoutResponse, error) {
	store, err := s.snapshot()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	response, arrival, err := s.readLogoutResponse(req)
	if err == nil {
		err = s.validateLogoutResponse(store, response, arrival, req.UserBucket())
	}
	observeReceived("logout_response", err)
	if err != nil {
		if response != nil {
			err = fedlet.AttachXML(err, response.RawXML())
		}
		return nil, trace.Wrap(err)
	}
	issuer, _ := response.Issuer()
	s.logger.InfoContext(ctx, "Accepted logout response.", "issuer", issuer, "in_response_to", response.InResponseTo())
	return response, nil
}

func (s *SP) readLogoutResponse(req Request) (*protocol.LogoutResponse, logoutBinding, error) {
	if req.Method() == http.MethodGet {
		arrival := logoutBinding{binding: protocol.BindingHTTPRedirect, rawQuery: rawQueryOf(req.RawURL())}
		encoded := req.QueryParam(xmlsig.ParamSAMLResponse)
		if encoded == "" {
			return nil, arrival, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "logout response carries no SAMLResponse parameter"))
		}
		raw, err := codec.Base64InflateDecode(encoded)
		if err != nil {
			return nil, arrival, trace.Wrap(err)
		}
		response, err := protocol.ParseLogoutResponse(raw)
		return response, arrival, trace.Wrap(err)
	}

	arrival := logoutBinding{binding: protocol.BindingHTTPPOST}
	encoded := req.QueryParam(xmlsig.ParamSAMLResponse)
	if encoded == "" {
		return nil, arrival, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "logout response carries no SAMLResponse parameter"))
	}
	raw, err := codec.Base64Decode(encoded)
	if err != nil {
		return nil, arrival, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "SAMLResponse is not valid base64").WithCause(err))
	}
	response, err := protocol.ParseLogoutResponse(raw)
	return response, arrival, trace.Wrap(err)
}

// LogoutResponseOptions controls the answer to an identity provider
// initiated logout request.
type LogoutResponseOptions struct {
	// InResponseTo is the ID of the logout request being answered.
	// Required.
	InResponseTo string
	// Binding selects HTTP-Redirect (default) or HTTP-POST. SOAP
	// requests are answered with SendSoapLogoutResponse instead.
	Binding string
	// RelayState echoes the relay state that came with the request.
	RelayState string
}

// SendLogoutResponse answers a front channel logout request after the
// host has terminated its local session.
func (s *SP) SendLogoutResponse(ctx context.Context, req Request, rw ResponseWriter, idpEntityID string, opts LogoutResponseOptions) error {
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
	if opts.InResponseTo == "" {
		return trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "logout response needs the ID of the request it answers"))
	}

	binding := opts.Binding
	if binding == "" {
		binding = protocol.BindingHTTPRedirect
	}
	slo, err := idp.SingleLogoutService(binding)
	if err != nil {
		return trace.Wrap(err)
	}
	destination := slo.ResponseOrLocation()

	id := protocol.GenerateID()
	doc, err := protocol.BuildLogoutResponse(protocol.LogoutResponseParams{
		ID:           id,
		SPEntityID:   spMeta.EntityID,
		Destination:  destination,
		IssueInstant: s.cfg.Clock.Now().UTC(),
		InResponseTo: opts.InResponseTo,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	sign := cfg.WantLogoutResponseSigned || idp.Config.WantLogoutResponseSigned

	switch binding {
	case protocol.BindingHTTPRedirect:
		target, err := s.redirectURL(cfg, doc, xmlsig.ParamSAMLResponse, destination, opts.RelayState, sign, "signing the logout response")
		if err != nil {
			return trace.Wrap(err)
		}
		if err := rw.Redirect(target); err != nil {
			return trace.Wrap(err)
		}
	case protocol.BindingHTTPPOST:
		message, err := s.postFormMessage(cfg, doc, id, sign, "signing the logout response")
		if err != nil {
			return trace.Wrap(err)
		}
		if err := writePostForm(rw, postFormData{
			Action:     destination,
			ParamName:  xmlsig.ParamSAMLResponse,
			Message:    message,
			RelayState: opts.RelayState,
		}); err != nil {
			return trace.Wrap(err)
		}
	default:
		return trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "unsupported logout response binding %q", binding))
	}

	messagesSent.WithLabelValues("logout_response", binding).Inc()
	s.logger.DebugContext(ctx, "Sent logout response.", "idp", idpEntityID, "binding", binding, "in_response_to", opts.InResponseTo)
	return nil
}

// SendSoapLogoutResponse answers a SOAP logout request on the same
// HTTP exchange it arrived on, writing the enveloped response to rw.
func (s *SP) SendSoapLogoutResponse(rw ResponseWriter, idpEntityID, inResponseTo string) error {
	store, err := s.snapshot()
	if err != nil {
		return trace.Wrap(err)
	}
	spMeta := store.ServiceProvider()
	cfg := spMeta.Config

	idp, err := s.identityProvider(store, idpEntityID)
	if err != nil {
		return trace.Wrap(err)
	}
	if inResponseTo == "" {
		return trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "logout response needs the ID of the request it answers"))
	}
	slo, err := idp.SingleLogoutService(protocol.BindingSOAP)
	if err != nil {
		return trace.Wrap(err)
	}

	id := protocol.GenerateID()
	doc, err := protocol.BuildLogoutResponse(protocol.LogoutResponseParams{
		ID:           id,
		SPEntityID:   spMeta.EntityID,
		Destination:  slo.ResponseOrLocation(),
		IssueInstant: s.cfg.Clock.Now().UTC(),
		InResponseTo: inResponseTo,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	if cfg.WantLogoutResponseSigned || idp.Config.WantLogoutResponseSigned {
		alias, err := signingAlias(cfg, "signing the logout response")
		if err != nil {
			return trace.Wrap(err)
		}
		signer, err := s.signer(cfg)
		if err != nil {
			return trace.Wrap(err)
		}
		if err := signer.Sign(doc, id, alias); err != nil {
			return trace.Wrap(err)
		}
	}

	envelope := codec.WrapSOAP(doc.Root())
	payload, err := envelope.WriteToBytes()
	if err != nil {
		return trace.Wrap(err)
	}
	messagesSent.WithLabelValues("logout_response", protocol.BindingSOAP).Inc()
	return trace.Wrap(rw.Write(payload, "text/xml; charset=utf-8"))
}
