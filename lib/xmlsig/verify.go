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
	"bytes"
	"crypto/x509"
	"errors"
	"slices"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	dsig "github.com/russellhaering/goxmldsig"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/codec"
	"github.com/vijayoommen/Fedlet/lib/protocol"
)

// Signature transform algorithm URIs.
const (
	TransformEnveloped     = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	TransformExclusiveC14N = "http://www.w3.org/2001/10/xml-exc-c14n#"
)

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// Clock is used to check certificate validity windows. Defaults to
	// the wall clock.
	Clock clockwork.Clock
}

// Verifier checks enveloped XML signatures against expected signer
// certificates.
type Verifier struct {
	clock *dsig.Clock
}

// NewVerifier returns a Verifier for the config.
func NewVerifier(cfg VerifierConfig) *Verifier {
	verifier := &Verifier{}
	if cfg.Clock != nil {
		verifier.clock = dsig.NewFakeClock(cfg.Clock)
	}
	return verifier
}

// Verify checks the enveloped signature carried by element. The
// signature must hold a single reference to #referenceID, its
// transforms must be exactly the enveloped and exclusive
// canonicalization pair, any embedded certificate must match one of
// the expected certificates, and the digest and signature value must
// verify against an expected certificate's key. Any deviation fails
// with a signature invalid error.
func (v *Verifier) Verify(element, signature *etree.Element, referenceID string, certs []*x509.Certificate) error {
	if element == nil || signature == nil {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureMissing, "no signature to verify"))
	}
	if len(certs) == 0 {
		return trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "no signing certificates to verify against"))
	}
	if signature.Parent() != element {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "signature is not enveloped in the referenced element"))
	}
	if err := v.checkSignedInfo(signature, referenceID); err != nil {
		return trace.Wrap(err)
	}
	if err := checkEmbeddedCertificate(signature, certs); err != nil {
		return trace.Wrap(err)
	}
	validation := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{Roots: certs})
	validation.Clock = v.clock
	if _, err := validation.Validate(element); err != nil {
		if errors.Is(err, dsig.ErrMissingSignature) {
			return trace.Wrap(fedlet.NewError(fedlet.KindSignatureMissing, "no signature referencing %q", referenceID))
		}
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "signature verification failed").WithCause(err))
	}
	return nil
}

// checkSignedInfo enforces the reference URI and transform set before
// any cryptographic work happens.
func (v *Verifier) checkSignedInfo(signature *etree.Element, referenceID string) error {
	signedInfo := childByName(signature, protocol.DSigNamespace, "SignedInfo")
	if signedInfo == nil {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "signature has no SignedInfo"))
	}
	references := childrenByName(signedInfo, protocol.DSigNamespace, "Reference")
	if len(references) != 1 {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "expected exactly one signature reference, found %v", len(references)))
	}
	reference := references[0]
	if uri := reference.SelectAttrValue("URI", ""); uri != "#"+referenceID {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "signature reference %q does not match %q", uri, "#"+referenceID))
	}
	transforms := childByName(reference, protocol.DSigNamespace, "Transforms")
	if transforms == nil {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "signature reference has no transforms"))
	}
	var seen []string
	for _, transform := range childrenByName(transforms, protocol.DSigNamespace, "Transform") {
		seen = append(seen, transform.SelectAttrValue("Algorithm", ""))
	}
	if len(seen) != 2 || !slices.Contains(seen, TransformEnveloped) || !slices.Contains(seen, TransformExclusiveC14N) {
		return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "unexpected signature transforms %v", seen))
	}
	return nil
}

// checkEmbeddedCertificate compares any certificate embedded in the
// signature's KeyInfo to the expected certificates. The embedded value
// is decoded with whitespace elided, so pretty printed signatures
// compare equal.
func checkEmbeddedCertificate(signature *etree.Element, certs []*x509.Certificate) error {
	keyInfo := childByName(signature, protocol.DSigNamespace, "KeyInfo")
	if keyInfo == nil {
		return nil
	}
	x509Data := childByName(keyInfo, protocol.DSigNamespace, "X509Data")
	if x509Data == nil {
		return nil
	}
	for _, embedded := range childrenByName(x509Data, protocol.DSigNamespace, "X509Certificate") {
		der, err := codec.Base64Decode(embedded.Text())
		if err != nil {
			return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "malformed embedded certificate").WithCause(err))
		}
		matched := false
		for _, cert := range certs {
			if bytes.Equal(der, cert.Raw) {
				matched = true
				break
			}
		}
		if !matched {
			return trace.Wrap(fedlet.NewError(fedlet.KindSignatureInvalid, "embedded certificate does not match any expected signing certificate"))
		}
	}
	return nil
}

func childByName(el *etree.Element, namespace, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local && child.NamespaceURI() == namespace {
			return child
		}
	}
	return nil
}

func childrenByName(el *etree.Element, namespace, local string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == local && child.NamespaceURI() == namespace {
			out = append(out, child)
		}
	}
	return out
}
