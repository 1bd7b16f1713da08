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

package xmlsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/gravitational/trace"
	dsig "github.com/russellhaering/goxmldsig"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/codec"
)

// Redirect binding query parameter names.
const (
	ParamSAMLRequest  = "SAMLRequest"
	ParamSAMLResponse = "SAMLResponse"
	ParamRelayState   = "RelayState"
	ParamSigAlg       = "SigAlg"
	ParamSignature    = "Signature"
)

// QuerySignerConfig configures a QuerySigner.
type QuerySignerConfig struct {
	// KeyStore resolves certificate aliases to key pairs. Required for
	// signing, not for verification.
	KeyStore KeyStore
	// SignatureMethod is the algorithm URI advertised in SigAlg on
	// outbound queries. Defaults to RSA-SHA256.
	SignatureMethod string
}

// QuerySigner signs and verifies HTTP-Redirect binding query strings.
//
// The signed data is the query string with the message parameter,
// RelayState and SigAlg in that fixed order, each value URL-encoded
// exactly once. Verification slices the parameters back out of the raw
// query string rather than re-encoding decoded values, so it sees the
// exact bytes the peer signed.
type QuerySigner struct {
	cfg  QuerySignerConfig
	hash crypto.Hash
}

// NewQuerySigner returns a QuerySigner for the config.
func NewQuerySigner(cfg QuerySignerConfig) (*QuerySigner, error) {
	if cfg.SignatureMethod == "" {
		cfg.SignatureMethod = dsig.RSASHA256SignatureMethod
	}
	hash, err := hashForSignatureMethod(cfg.SignatureMethod)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &QuerySigner{cfg: cfg, hash: hash}, nil
}

// SignQuery builds the signed query string for a redirect binding
// message. paramName is SAMLRequest or SAMLResponse and message is the
// deflated base64 message value before URL encoding. The returned
// string carries no leading delimiter.
func (q *QuerySigner) SignQuery(paramName, message, relayState, alias string) (string, error) {
	if q.cfg.KeyStore == nil {
		return "", trace.BadParameter("query signer has no key store")
	}
	pair, err := q.cfg.KeyStore.KeyPair(alias)
	if err != nil {
		return "", trace.Wrap(err)
	}
	key, ok := pair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return "", trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "certificate alias %q does not hold an RSA key", alias))
	}

	var builder strings.Builder
	builder.WriteString(paramName)
	builder.WriteString("=")
	builder.WriteString(url.QueryEscape(message))
	if relayState != "" {
		builder.WriteString("&" + ParamRelayState + "=")
		builder.WriteString(url.QueryEscape(relayState))
	}
	builder.WriteString("&" + ParamSigAlg + "=")
	builder.WriteString(url.QueryEscape(q.cfg.SignatureMethod))
	signedData := builder.String()

	hashed := hashSum(q.hash, []byte(signedData))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, q.hash, hashed)
	if err != nil {
		return "", trace.Wrap(err)
	}
	return signedData + "&" + ParamSignature + "=" + url.QueryEscape(base64.StdEncoding.EncodeToString(signature)), nil
}

// VerifyQuery checks the signature over a raw redirect binding query
// string against the expected signer certificates.
func (q *QuerySigner) VerifyQuery(rawQuery string, certs []*x509.Certificate) error {
	if len(certs) == 0 {
		return trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "no signing certificates to verify against"))
	}
	segments := querySegments(rawQuery)

	messageSegment, ok := segments[ParamSAMLRequest]
	if !ok {
		if messageSegment, ok = segments[ParamSAMLResponse]; !ok {
			return trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "query carries neither SAMLRequest nor SAMLResponse"))
		}
	}
	signatureSegment, ok := segments[ParamSignature]
	if !ok {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureMissing, "query carries no Signature"))
	}
	algSegment, ok := segments[ParamSigAlg]
	if !ok {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "signed query carries no SigAlg"))
	}

	signedData := messageSegment
	if relaySegment, ok := segments[ParamRelayState]; ok {
		signedData += "&" + relaySegment
	}
	signedData += "&" + algSegment

	algorithm, err := segmentValue(algSegment)
	if err != nil {
		return trace.Wrap(err)
	}
	var hash crypto.Hash
	switch algorithm {
	case dsig.RSASHA1SignatureMethod:
		hash = crypto.SHA1
	case dsig.RSASHA256SignatureMethod:
		hash = crypto.SHA256
	default:
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "unsupported redirect signature algorithm %q", algorithm))
	}

	encodedSignature, err := segmentValue(signatureSegment)
	if err != nil {
		return trace.Wrap(err)
	}
	signature, err := codec.Base64Decode(encodedSignature)
	if err != nil {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "malformed redirect signature").WithCause(err))
	}

	hashed := hashSum(hash, []byte(signedData))
	for _, cert := range certs {
		key, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			continue
		}
		if rsa.VerifyPKCS1v15(key, hash, hashed, signature) == nil {
			return nil
		}
	}
	return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "redirect signature does not verify against any expected certificate"))
}

// querySegments splits a raw query into whole key=value segments keyed
// by parameter name, keeping values URL-encoded. The first occurrence
// of a parameter wins.
func querySegments(rawQuery string) map[string]string {
	segments := make(map[string]string)
	for _, segment := range strings.Split(rawQuery, "&") {
		if segment == "" {
			continue
		}
		name, _, _ := strings.Cut(segment, "=")
		if _, exists := segments[name]; !exists {
			segments[name] = segment
		}
	}
	return segments
}

func segmentValue(segment string) (string, error) {
	_, encoded, _ := strings.Cut(segment, "=")
	value, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "malformed query parameter").WithCause(err))
	}
	return value, nil
}

func hashSum(hash crypto.Hash, data []byte) []byte {
	digest := hash.New()
	digest.Write(data)
	return digest.Sum(nil)
}
