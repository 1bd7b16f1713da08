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
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/crewjam/saml/testsaml"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/require"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/artifact"
	"github.com/vijayoommen/Fedlet/lib/codec"
	"github.com/vijayoommen/Fedlet/lib/correlation"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/protocol"
	"github.com/vijayoommen/Fedlet/lib/samltest"
	"github.com/vijayoommen/Fedlet/lib/xmlsig"
)

func TestSendAuthnRequestRedirect(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)

	rw := &fakeResponseWriter{}
	err := ts.SendAuthnRequest(context.Background(), getRequest(t, "alice", "/fedlet/login", ""), rw, samltest.IDPEntityID, AuthnRequestOptions{
		RelayState:  "/app/home",
		ForceAuthn:  true,
		AllowCreate: true,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rw.redirectURL, samltest.IDPSSOURL+"?"))

	u, err := url.Parse(rw.redirectURL)
	require.NoError(t, err)
	require.Equal(t, "/app/home", u.Query().Get(xmlsig.ParamRelayState))
	require.Empty(t, u.Query().Get(xmlsig.ParamSignature))

	xml, err := testsaml.ParseRedirectRequest(u)
	require.NoError(t, err)
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(xml))
	root := doc.Root()
	require.Equal(t, "AuthnRequest", root.Tag)
	require.Equal(t, samltest.IDPSSOURL, root.SelectAttrValue("Destination", ""))
	require.Equal(t, samltest.ACSURL, root.SelectAttrValue("AssertionConsumerServiceURL", ""))
	require.Equal(t, protocol.BindingHTTPPOST, root.SelectAttrValue("ProtocolBinding", ""))
	require.Equal(t, "true", root.SelectAttrValue("ForceAuthn", ""))

	issuer := root.FindElement("./Issuer")
	require.NotNil(t, issuer)
	require.Equal(t, samltest.SPEntityID, issuer.Text())

	policy := root.FindElement("./NameIDPolicy")
	require.NotNil(t, policy)
	require.Equal(t, "true", policy.SelectAttrValue("AllowCreate", ""))
}

func TestSendAuthnRequestRedirectSigned(t *testing.T) {
	t.Parallel()
	// The identity provider demands signed requests through its
	// extended configuration.
	ts := newTestSP(t, nil, map[string][]string{"wantAuthnRequestsSigned": {"true"}})

	rw := &fakeResponseWriter{}
	err := ts.SendAuthnRequest(context.Background(), getRequest(t, "alice", "/fedlet/login", ""), rw, samltest.IDPEntityID, AuthnRequestOptions{RelayState: "/deep"})
	require.NoError(t, err)

	u, err := url.Parse(rw.redirectURL)
	require.NoError(t, err)
	require.NotEmpty(t, u.Query().Get(xmlsig.ParamSigAlg))
	require.NotEmpty(t, u.Query().Get(xmlsig.ParamSignature))

	verifier, err := xmlsig.NewQuerySigner(xmlsig.QuerySignerConfig{})
	require.NoError(t, err)
	require.NoError(t, verifier.VerifyQuery(u.RawQuery, []*x509.Certificate{ts.providers.SP.Cert}))
}

func TestSendAuthnRequestPost(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)

	rw := &fakeResponseWriter{}
	err := ts.SendAuthnRequest(context.Background(), getRequest(t, "alice", "/fedlet/login", ""), rw, samltest.IDPEntityID, AuthnRequestOptions{
		Binding:    protocol.BindingHTTPPOST,
		RelayState: "/deep/link",
	})
	require.NoError(t, err)
	require.Empty(t, rw.redirectURL)
	require.Equal(t, "text/html; charset=utf-8", rw.contentType)
	require.Contains(t, string(rw.body), `onload="document.forms[0].submit()"`)

	action, fields := parseAutoSubmitForm(t, rw.body)
	require.Equal(t, samltest.IDPSSOURL, action)
	require.Equal(t, "/deep/link", fields[xmlsig.ParamRelayState])

	raw, err := codec.Base64Decode(fields[xmlsig.ParamSAMLRequest])
	require.NoError(t, err)
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(raw))
	require.Equal(t, "AuthnRequest", doc.Root().Tag)
}

func TestSendAuthnRequestErrors(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, map[string][]string{"relayStateUrlList": {"https://sp.example.com/app"}}, nil)

	tests := []struct {
		name string
		idp  string
		opts AuthnRequestOptions
		kind fedlet.Kind
	}{
		{
			name: "unknown identity provider",
			idp:  "https://missing.example.com",
			kind: fedlet.KindConfiguration,
		},
		{
			name: "unsupported binding",
			idp:  samltest.IDPEntityID,
			opts: AuthnRequestOptions{Binding: protocol.BindingSOAP},
			kind: fedlet.KindConfiguration,
		},
		{
			name: "relay state off the list",
			idp:  samltest.IDPEntityID,
			opts: AuthnRequestOptions{RelayState: "https://evil.example.com"},
			kind: fedlet.KindRelayStateRejected,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ts.SendAuthnRequest(context.Background(), getRequest(t, "alice", "/fedlet/login", ""), &fakeResponseWriter{}, tt.idp, tt.opts)
			require.True(t, fedlet.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestGetAuthnResponsePost(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)
	requestID := ts.startSSO(t, "alice")

	doc, err := ts.providers.SignedResponse(samltest.ResponseParams{
		InResponseTo: requestID,
		Attributes: map[string][]string{
			"email":  {"jdoe@example.com"},
			"groups": {"admins", "users"},
		},
	}, true, false)
	require.NoError(t, err)

	form := url.Values{xmlsig.ParamSAMLResponse: {encodeDoc(t, doc)}}
	result, err := ts.GetAuthnResponse(context.Background(), postFormRequest("alice", form))
	require.NoError(t, err)
	require.Equal(t, samltest.IDPEntityID, result.Issuer)
	require.Equal(t, requestID, result.InResponseTo)
	require.Equal(t, "jdoe@example.com", result.NameID.Value)
	require.Equal(t, protocol.NameIDFormatEmailAddress, result.NameID.Format)
	require.Equal(t, "s2f4a1", result.SessionIndex)
	require.Equal(t, protocol.ClassRefPasswordProtectedTransport, result.AuthnContextClassRef)
	require.Equal(t, []string{samltest.SPEntityID}, result.Audiences)
	require.NotEmpty(t, result.RawXML)

	attrs := attributeMap(result.Attributes)
	require.Equal(t, []string{"jdoe@example.com"}, attrs["email"])
	require.Equal(t, []string{"admins", "users"}, attrs["groups"])

	// The correlation entry is consumed, a replay of the same response
	// no longer matches anything.
	_, err = ts.GetAuthnResponse(context.Background(), postFormRequest("alice", form))
	require.True(t, fedlet.IsKind(err, fedlet.KindCorrelationMismatch), "got %v", err)
}

func TestGetAuthnResponseIdPInitiated(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)

	doc, err := ts.providers.SignedResponse(samltest.ResponseParams{}, true, false)
	require.NoError(t, err)

	result, err := ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
		xmlsig.ParamSAMLResponse: {encodeDoc(t, doc)},
	}))
	require.NoError(t, err)
	require.Empty(t, result.InResponseTo)
	require.Equal(t, "jdoe@example.com", result.NameID.Value)
}

func TestGetAuthnResponseSignatureRequired(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, map[string][]string{"wantPOSTResponseSigned": {"true"}}, nil)
	requestID := ts.startSSO(t, "alice")

	// The response is unsigned and its audience is wrong. The missing
	// signature must win over the later audience check.
	doc := samltest.BuildResponse(samltest.ResponseParams{
		InResponseTo: requestID,
		Audience:     "https://other.example.com",
	})
	_, err := ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
		xmlsig.ParamSAMLResponse: {encodeDoc(t, doc)},
	}))
	require.True(t, fedlet.IsKind(err, fedlet.KindSignatureMissing), "got %v", err)

	// Even so the correlation entry is gone.
	require.False(t, ts.SP.requests.Contains("alice", requestID, correlation.KindAuthn))

	// An assertion signature does not satisfy a response level
	// requirement.
	signedAssertion, err := ts.providers.SignedResponse(samltest.ResponseParams{}, true, false)
	require.NoError(t, err)
	_, err = ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
		xmlsig.ParamSAMLResponse: {encodeDoc(t, signedAssertion)},
	}))
	require.True(t, fedlet.IsKind(err, fedlet.KindSignatureMissing), "got %v", err)

	// A response level signature does.
	signedResponse, err := ts.providers.SignedResponse(samltest.ResponseParams{}, false, true)
	require.NoError(t, err)
	_, err = ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
		xmlsig.ParamSAMLResponse: {encodeDoc(t, signedResponse)},
	}))
	require.NoError(t, err)
}

func TestGetAuthnResponseAudienceMismatch(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)

	doc, err := ts.providers.SignedResponse(samltest.ResponseParams{
		Audience: "https://someone-else.example.com",
	}, true, false)
	require.NoError(t, err)

	_, err = ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
		xmlsig.ParamSAMLResponse: {encodeDoc(t, doc)},
	}))
	require.True(t, fedlet.IsKind(err, fedlet.KindAudienceMismatch), "got %v", err)
}

func TestGetAuthnResponseValidityWindow(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)
	now := ts.clock.Now().UTC()

	tests := []struct {
		name         string
		notBefore    time.Time
		notOnOrAfter time.Time
		wantErr      bool
	}{
		{
			name:         "inside the window",
			notBefore:    now.Add(-time.Minute),
			notOnOrAfter: now.Add(time.Minute),
		},
		{
			name:         "expired beyond skew",
			notBefore:    now.Add(-time.Hour),
			notOnOrAfter: now.Add(-time.Minute),
			wantErr:      true,
		},
		{
			name:         "not yet valid",
			notBefore:    now.Add(time.Minute),
			notOnOrAfter: now.Add(time.Hour),
			wantErr:      true,
		},
		{
			name:         "expired within the default skew",
			notBefore:    now.Add(-time.Hour),
			notOnOrAfter: now.Add(-10 * time.Second),
		},
		{
			name:         "early within the default skew",
			notBefore:    now.Add(10 * time.Second),
			notOnOrAfter: now.Add(time.Hour),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := ts.providers.SignedResponse(samltest.ResponseParams{
				NotBefore:    tt.notBefore,
				NotOnOrAfter: tt.notOnOrAfter,
			}, true, false)
			require.NoError(t, err)

			_, err = ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
				xmlsig.ParamSAMLResponse: {encodeDoc(t, doc)},
			}))
			if tt.wantErr {
				require.True(t, fedlet.IsKind(err, fedlet.KindAssertionExpiredOrNotYetValid), "got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGetAuthnResponseTampered(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)

	doc, err := ts.providers.SignedResponse(samltest.ResponseParams{}, true, false)
	require.NoError(t, err)
	nameID := doc.FindElement(".//NameID")
	require.NotNil(t, nameID)
	nameID.SetText("mallory@example.com")

	_, err = ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
		xmlsig.ParamSAMLResponse: {encodeDoc(t, doc)},
	}))
	require.True(t, fedlet.IsKind(err, fedlet.KindSignatureInvalid), "got %v", err)
}

func TestGetAuthnResponseUnknownIssuer(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)

	doc := samltest.BuildResponse(samltest.ResponseParams{Issuer: "https://rogue.example.com"})
	_, err := ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
		xmlsig.ParamSAMLResponse: {encodeDoc(t, doc)},
	}))
	require.True(t, fedlet.IsKind(err, fedlet.KindUnknownIssuer), "got %v", err)
}

func TestGetAuthnResponseResponderFailure(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)

	doc := samltest.BuildResponse(samltest.ResponseParams{
		StatusCode:    protocol.StatusResponder,
		OmitAssertion: true,
	})
	_, err := ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
		xmlsig.ParamSAMLResponse: {encodeDoc(t, doc)},
	}))
	require.True(t, fedlet.IsKind(err, fedlet.KindResponderFailure), "got %v", err)
	require.Equal(t, protocol.StatusResponder, fedlet.ErrorStatus(err))
	require.NotEmpty(t, fedlet.ErrorXML(err))
}

func TestGetAuthnResponseMalformed(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)

	tests := []struct {
		name string
		form url.Values
	}{
		{
			name: "both response and artifact",
			form: url.Values{
				xmlsig.ParamSAMLResponse: {"Zm9v"},
				artifact.ParamSAMLArt:    {"Zm9v"},
			},
		},
		{
			name: "neither response nor artifact",
			form: url.Values{},
		},
		{
			name: "response is not base64",
			form: url.Values{xmlsig.ParamSAMLResponse: {"!!not-base64!!"}},
		},
		{
			name: "response is not XML",
			form: url.Values{xmlsig.ParamSAMLResponse: {codec.Base64Encode([]byte("plain text"))}},
		},
		{
			name: "response is the wrong element",
			form: url.Values{xmlsig.ParamSAMLResponse: {codec.Base64Encode([]byte(`<Ping xmlns="urn:example"/>`))}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ts.GetAuthnResponse(context.Background(), postFormRequest("alice", tt.form))
			require.True(t, fedlet.IsKind(err, fedlet.KindMalformedMessage), "got %v", err)
		})
	}
}

func TestGetAuthnResponseNotInCircleOfTrust(t *testing.T) {
	t.Parallel()
	providers, err := samltest.NewProviders()
	require.NoError(t, err)

	// The identity provider is configured but shares no circle with
	// the service provider.
	cfg := providers.StoreConfig(nil, nil)
	cfg.CirclesOfTrust = [][]byte{[]byte("cot-name=lonely\nsun-fm-cot-status=Active\nsun-fm-trusted-providers=" + samltest.SPEntityID + "\n")}
	store, err := metadata.NewStore(cfg)
	require.NoError(t, err)
	ts := newTestSPFromStore(t, providers, store)

	doc, err := providers.SignedResponse(samltest.ResponseParams{}, true, false)
	require.NoError(t, err)
	_, err = ts.GetAuthnResponse(context.Background(), postFormRequest("alice", url.Values{
		xmlsig.ParamSAMLResponse: {encodeDoc(t, doc)},
	}))
	require.True(t, fedlet.IsKind(err, fedlet.KindNotInCircleOfTrust), "got %v", err)
}

type artifactCapture struct {
	mu          sync.Mutex
	contentType string
	payloads    [][]byte
}

type artifactServerConfig struct {
	providers    *samltest.Providers
	embedded     *etree.Document
	signEnvelope bool
	status       string
}

// newArtifactServer plays the identity provider's artifact resolution
// endpoint: it answers every ArtifactResolve with an ArtifactResponse
// embedding the configured document.
func newArtifactServer(t *testing.T, cfg artifactServerConfig) (*httptest.Server, *artifactCapture) {
	t.Helper()
	capture := &artifactCapture{}

	var signer *xmlsig.Signer
	if cfg.signEnvelope {
		var err error
		signer, err = cfg.providers.IDP.Signer(dsig.RSASHA256SignatureMethod)
		require.NoError(t, err)
	}
	status := cfg.status
	if status == "" {
		status = protocol.StatusSuccess
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		document := etree.NewDocument()
		if err := document.ReadFromBytes(payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resolve, err := codec.SOAPBodyChild(document, protocol.ProtocolNamespace, "ArtifactResolve")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		capture.mu.Lock()
		capture.contentType = r.Header.Get("Content-Type")
		capture.payloads = append(capture.payloads, payload)
		capture.mu.Unlock()

		responseID := protocol.GenerateID()
		response := samltest.BuildArtifactResponse(responseID, resolve.SelectAttrValue("ID", ""), status, cfg.embedded)
		if signer != nil {
			if err := signer.Sign(response, responseID, samltest.KeyAlias); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		envelope := codec.WrapSOAP(response.Root())
		out, err := envelope.WriteToBytes()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.Write(out)
	}))
	t.Cleanup(server.Close)
	return server, capture
}

// newArtifactTestSP builds an SP whose identity provider resolves
// artifacts at the given URL.
func newArtifactTestSP(t *testing.T, providers *samltest.Providers, spOverrides, idpAttrs map[string][]string, resolveURL string) *testSP {
	t.Helper()
	store, err := providers.Store(spOverrides, idpAttrs)
	require.NoError(t, err)
	idp, err := store.IdentityProvider(samltest.IDPEntityID)
	require.NoError(t, err)
	idp.Descriptor.ArtifactResolutionServices[0].Location = resolveURL
	return newTestSPFromStore(t, providers, store)
}

func testArtifactValue(t *testing.T) string {
	t.Helper()
	var handle [20]byte
	copy(handle[:], "fedlet-test-handle--")
	return artifact.New(samltest.IDPEntityID, 0, handle).String()
}

func TestGetAuthnResponseArtifact(t *testing.T) {
	t.Parallel()
	providers, err := samltest.NewProviders()
	require.NoError(t, err)

	embedded, err := providers.SignedResponse(samltest.ResponseParams{}, true, false)
	require.NoError(t, err)
	server, capture := newArtifactServer(t, artifactServerConfig{providers: providers, embedded: embedded})
	ts := newArtifactTestSP(t, providers, nil, nil, server.URL)

	art := testArtifactValue(t)
	result, err := ts.GetAuthnResponse(context.Background(), getRequest(t, "alice", "/fedlet/acs", artifact.ParamSAMLArt+"="+url.QueryEscape(art)))
	require.NoError(t, err)
	require.Equal(t, "jdoe@example.com", result.NameID.Value)
	require.Equal(t, samltest.IDPEntityID, result.Issuer)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.Len(t, capture.payloads, 1)
	require.Equal(t, "text/xml; charset=utf-8", capture.contentType)

	document := etree.NewDocument()
	require.NoError(t, document.ReadFromBytes(capture.payloads[0]))
	resolve, err := codec.SOAPBodyChild(document, protocol.ProtocolNamespace, "ArtifactResolve")
	require.NoError(t, err)
	sent := resolve.FindElement("./Artifact")
	require.NotNil(t, sent)
	require.Equal(t, art, sent.Text())
	issuer := resolve.FindElement("./Issuer")
	require.NotNil(t, issuer)
	require.Equal(t, samltest.SPEntityID, issuer.Text())
}

func TestGetAuthnResponseArtifactResponseSigned(t *testing.T) {
	t.Parallel()
	providers, err := samltest.NewProviders()
	require.NoError(t, err)
	overrides := map[string][]string{"wantArtifactResponseSigned": {"true"}}

	embedded, err := providers.SignedResponse(samltest.ResponseParams{}, true, false)
	require.NoError(t, err)

	// An unsigned envelope fails the policy even though the embedded
	// assertion is signed.
	unsigned, _ := newArtifactServer(t, artifactServerConfig{providers: providers, embedded: embedded})
	ts := newArtifactTestSP(t, providers, overrides, nil, unsigned.URL)
	_, err = ts.GetAuthnResponse(context.Background(), getRequest(t, "alice", "/fedlet/acs", artifact.ParamSAMLArt+"="+url.QueryEscape(testArtifactValue(t))))
	require.True(t, fedlet.IsKind(err, fedlet.KindSignatureMissing), "got %v", err)

	// A signed envelope passes.
	signed, _ := newArtifactServer(t, artifactServerConfig{providers: providers, embedded: embedded, signEnvelope: true})
	ts = newArtifactTestSP(t, providers, overrides, nil, signed.URL)
	result, err := ts.GetAuthnResponse(context.Background(), getRequest(t, "alice", "/fedlet/acs", artifact.ParamSAMLArt+"="+url.QueryEscape(testArtifactValue(t))))
	require.NoError(t, err)
	require.Equal(t, "jdoe@example.com", result.NameID.Value)
}

func TestGetAuthnResponseArtifactResolveSigned(t *testing.T) {
	t.Parallel()
	providers, err := samltest.NewProviders()
	require.NoError(t, err)

	embedded, err := providers.SignedResponse(samltest.ResponseParams{}, true, false)
	require.NoError(t, err)
	server, capture := newArtifactServer(t, artifactServerConfig{providers: providers, embedded: embedded})
	ts := newArtifactTestSP(t, providers, nil, map[string][]string{"wantArtifactResolveSigned": {"true"}}, server.URL)

	_, err = ts.GetAuthnResponse(context.Background(), getRequest(t, "alice", "/fedlet/acs", artifact.ParamSAMLArt+"="+url.QueryEscape(testArtifactValue(t))))
	require.NoError(t, err)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.Len(t, capture.payloads, 1)
	document := etree.NewDocument()
	require.NoError(t, document.ReadFromBytes(capture.payloads[0]))
	resolve, err := codec.SOAPBodyChild(document, protocol.ProtocolNamespace, "ArtifactResolve")
	require.NoError(t, err)
	signature := resolve.FindElement("./Signature")
	require.NotNil(t, signature)

	verifier := xmlsig.NewVerifier(xmlsig.VerifierConfig{})
	require.NoError(t, verifier.Verify(resolve, signature, resolve.SelectAttrValue("ID", ""), []*x509.Certificate{providers.SP.Cert}))
}

func TestGetAuthnResponseArtifactResponderFailure(t *testing.T) {
	t.Parallel()
	providers, err := samltest.NewProviders()
	require.NoError(t, err)

	server, _ := newArtifactServer(t, artifactServerConfig{providers: providers, status: protocol.StatusResponder})
	ts := newArtifactTestSP(t, providers, nil, nil, server.URL)

	_, err = ts.GetAuthnResponse(context.Background(), getRequest(t, "alice", "/fedlet/acs", artifact.ParamSAMLArt+"="+url.QueryEscape(testArtifactValue(t))))
	require.True(t, fedlet.IsKind(err, fedlet.KindResponderFailure), "got %v", err)
	require.Equal(t, protocol.StatusResponder, fedlet.ErrorStatus(err))
}

func TestGetAuthnResponseArtifactUnknownSource(t *testing.T) {
	t.Parallel()
	ts := newTestSP(t, nil, nil)

	var handle [20]byte
	art := artifact.New("https://rogue.example.com", 0, handle)
	_, err := ts.GetAuthnResponse(context.Background(), getRequest(t, "alice", "/fedlet/acs", artifact.ParamSAMLArt+"="+url.QueryEscape(art.String())))
	require.True(t, fedlet.IsKind(err, fedlet.KindUnknownIssuer), "got %v", err)
}

func attributeMap(attrs []protocol.Attribute) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for _, attr := range attrs {
		out[attr.Name] = attr.Values
	}
	return out
}
