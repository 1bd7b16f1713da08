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

package xmlsig_test

import (
	"crypto/x509"
	"net/url"
	"strings"
	"testing"

	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/require"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/codec"
	"github.com/vijayoommen/Fedlet/lib/xmlsig"
)

func testQuerySigner(t *testing.T, method string) *xmlsig.QuerySigner {
	t.Helper()
	signer, err := xmlsig.NewQuerySigner(xmlsig.QuerySignerConfig{
		KeyStore:        testIdentity(t).KeyStore(),
		SignatureMethod: method,
	})
	require.NoError(t, err)
	return signer
}

func testRedirectMessage(t *testing.T) string {
	t.Helper()
	encoded, err := codec.Deflate([]byte(`<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="id-1"/>`))
	require.NoError(t, err)
	return codec.Base64Encode(encoded)
}

func TestSignQueryShape(t *testing.T) {
	t.Parallel()
	signer := testQuerySigner(t, "")
	message := testRedirectMessage(t)

	query, err := signer.SignQuery(xmlsig.ParamSAMLRequest, message, "state 1", "signing")
	require.NoError(t, err)

	// Fixed parameter order with every value encoded exactly once.
	require.True(t, strings.HasPrefix(query, "SAMLRequest="))
	relayIndex := strings.Index(query, "&RelayState=state+1&")
	algIndex := strings.Index(query, "&SigAlg=")
	sigIndex := strings.Index(query, "&Signature=")
	require.Greater(t, relayIndex, 0)
	require.Greater(t, algIndex, relayIndex)
	require.Greater(t, sigIndex, algIndex)
	require.Contains(t, query, "SigAlg="+url.QueryEscape(dsig.RSASHA256SignatureMethod))
}

func TestSignQueryOmitsEmptyRelayState(t *testing.T) {
	t.Parallel()
	signer := testQuerySigner(t, "")

	query, err := signer.SignQuery(xmlsig.ParamSAMLResponse, testRedirectMessage(t), "", "signing")
	require.NoError(t, err)
	require.NotContains(t, query, "RelayState=")
	require.True(t, strings.HasPrefix(query, "SAMLResponse="))
}

func TestVerifyQueryRoundTrip(t *testing.T) {
	t.Parallel()
	id := testIdentity(t)
	certs := []*x509.Certificate{id.Cert}

	for _, method := range []string{dsig.RSASHA1SignatureMethod, dsig.RSASHA256SignatureMethod} {
		signer := testQuerySigner(t, method)
		query, err := signer.SignQuery(xmlsig.ParamSAMLRequest, testRedirectMessage(t), "https://app.example.com/home", "signing")
		require.NoError(t, err)
		require.NoError(t, signer.VerifyQuery(query, certs), "method %v", method)
	}
}

// TestVerifyQueryReordered covers peers that emit the signed
// parameters in a different order than they were signed in. The raw
// encoded segments are resliced into canonical order, so verification
// still passes.
func TestVerifyQueryReordered(t *testing.T) {
	t.Parallel()
	id := testIdentity(t)
	signer := testQuerySigner(t, "")

	query, err := signer.SignQuery(xmlsig.ParamSAMLRequest, testRedirectMessage(t), "a/b c&d=e", "signing")
	require.NoError(t, err)

	segments := strings.Split(query, "&")
	reordered := make([]string, 0, len(segments))
	for i := len(segments) - 1; i >= 0; i-- {
		reordered = append(reordered, segments[i])
	}
	require.NoError(t, signer.VerifyQuery(strings.Join(reordered, "&"), []*x509.Certificate{id.Cert}))
}

func TestVerifyQueryTampered(t *testing.T) {
	t.Parallel()
	id := testIdentity(t)
	signer := testQuerySigner(t, "")

	query, err := signer.SignQuery(xmlsig.ParamSAMLRequest, testRedirectMessage(t), "https://app.example.com/home", "signing")
	require.NoError(t, err)

	tampered := strings.Replace(query, url.QueryEscape("https://app.example.com/home"), url.QueryEscape("https://evil.example.com/"), 1)
	require.NotEqual(t, query, tampered)
	err = signer.VerifyQuery(tampered, []*x509.Certificate{id.Cert})
	require.True(t, fedlet.IsKind(err, fedlet.KindSignatureInvalid))
}

func TestVerifyQueryErrors(t *testing.T) {
	t.Parallel()
	id := testIdentity(t)
	certs := []*x509.Certificate{id.Cert}
	signer := testQuerySigner(t, "")

	query, err := signer.SignQuery(xmlsig.ParamSAMLRequest, testRedirectMessage(t), "", "signing")
	require.NoError(t, err)

	// Strip the signature parameter.
	unsigned := query[:strings.Index(query, "&Signature=")]
	err = signer.VerifyQuery(unsigned, certs)
	require.True(t, fedlet.IsKind(err, fedlet.KindSignatureMissing))

	// No message parameter at all.
	err = signer.VerifyQuery("RelayState=x&SigAlg=y&Signature=z", certs)
	require.True(t, fedlet.IsKind(err, fedlet.KindMalformedMessage))

	// Unsupported algorithm.
	err = signer.VerifyQuery("SAMLRequest=x&SigAlg="+url.QueryEscape("urn:example:des")+"&Signature=AAAA", certs)
	require.True(t, fedlet.IsKind(err, fedlet.KindSignatureInvalid))

	// Garbage signature value.
	err = signer.VerifyQuery("SAMLRequest=x&SigAlg="+url.QueryEscape(dsig.RSASHA256SignatureMethod)+"&Signature=%2x", certs)
	require.Error(t, err)
}

func TestVerifyQueryNoCertificates(t *testing.T) {
	t.Parallel()
	signer := testQuerySigner(t, "")

	query, err := signer.SignQuery(xmlsig.ParamSAMLRequest, testRedirectMessage(t), "", "signing")
	require.NoError(t, err)
	err = signer.VerifyQuery(query, nil)
	require.True(t, fedlet.IsKind(err, fedlet.KindConfiguration))
}
