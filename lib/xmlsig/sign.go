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

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
	dsig "github.com/russellhaering/goxmldsig"

	fedlet "github.com/vijayoommen/Fedlet"
)

// Digest algorithm URIs accepted in signature configuration.
const (
	DigestSHA1   = "http://www.w3.org/2000/09/xmldsig#sha1"
	DigestSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"
)

// SignerConfig configures a Signer.
type SignerConfig struct {
	// KeyStore resolves certificate aliases to key pairs.
	KeyStore KeyStore
	// SignatureMethod is the signature algorithm URI. Defaults to
	// RSA-SHA256.
	SignatureMethod string
	// DigestMethod is the configured digest algorithm URI. Defaults to
	// SHA-1. The reference digest emitted on the wire follows the
	// signature method's hash, which RSA-SHA256 upgrades to SHA-256.
	DigestMethod string
	// OmitKeyInfo drops the KeyInfo element carrying the signing
	// certificate from produced signatures.
	OmitKeyInfo bool
}

// CheckAndSetDefaults validates the config and fills in defaults.
func (c *SignerConfig) CheckAndSetDefaults() error {
	if c.KeyStore == nil {
		return trace.BadParameter("missing parameter KeyStore")
	}
	if c.SignatureMethod == "" {
		c.SignatureMethod = dsig.RSASHA256SignatureMethod
	}
	if _, err := hashForSignatureMethod(c.SignatureMethod); err != nil {
		return trace.Wrap(err)
	}
	if c.DigestMethod == "" {
		c.DigestMethod = DigestSHA1
	}
	if c.DigestMethod != DigestSHA1 && c.DigestMethod != DigestSHA256 {
		return trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "unsupported digest method %q", c.DigestMethod))
	}
	return nil
}

// Signer produces enveloped XML signatures. It is safe for concurrent
// use, every Sign call builds a fresh signing context.
type Signer struct {
	cfg SignerConfig
}

// NewSigner returns a Signer for the config.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Signer{cfg: cfg}, nil
}

// Sign computes an enveloped signature over the element carrying the
// given ID attribute and inserts it as that element's first child. The
// signature holds a single reference to #id with the enveloped and
// exclusive canonicalization transforms.
func (s *Signer) Sign(doc *etree.Document, id, alias string) error {
	root := doc.Root()
	if root == nil {
		return trace.BadParameter("cannot sign an empty document")
	}
	el := elementByID(root, id)
	if el == nil {
		return trace.NotFound("no element with ID %q to sign", id)
	}
	pair, err := s.cfg.KeyStore.KeyPair(alias)
	if err != nil {
		return trace.Wrap(err)
	}
	ctx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(pair))
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	if err := ctx.SetSignatureMethod(s.cfg.SignatureMethod); err != nil {
		return trace.Wrap(err)
	}
	signature, err := ctx.ConstructSignature(el, true)
	if err != nil {
		return trace.Wrap(err)
	}
	if s.cfg.OmitKeyInfo {
		for _, child := range signature.ChildElements() {
			if child.Tag == "KeyInfo" {
				signature.RemoveChild(child)
				break
			}
		}
	}
	el.InsertChildAt(0, signature)
	return nil
}

// elementByID walks the tree for the element whose ID attribute equals
// id.
func elementByID(el *etree.Element, id string) *etree.Element {
	if el.SelectAttrValue("ID", "") == id {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := elementByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func hashForSignatureMethod(method string) (crypto.Hash, error) {
	switch method {
	case dsig.RSASHA1SignatureMethod:
		return crypto.SHA1, nil
	case dsig.RSASHA256SignatureMethod:
		return crypto.SHA256, nil
	case dsig.RSASHA512SignatureMethod:
		return crypto.SHA512, nil
	}
	return 0, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "unsupported signature method %q", method))
}
