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

// Package samltest provides identities, metadata documents and signed
// protocol messages for tests across the fedlet packages.
package samltest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"time"

	"github.com/gravitational/trace"

	"github.com/vijayoommen/Fedlet/lib/xmlsig"
)

// KeyAlias is the certificate alias fixtures register their signing
// key under.
const KeyAlias = "signing"

// Identity is a generated RSA key pair with a self-signed certificate.
type Identity struct {
	Key  *rsa.PrivateKey
	Cert *x509.Certificate
}

// NewIdentity generates a fresh identity for the common name.
func NewIdentity(commonName string) (*Identity, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Identity{Key: key, Cert: cert}, nil
}

// CertBase64 returns the certificate DER in standard base64, the form
// metadata documents embed.
func (i *Identity) CertBase64() string {
	return base64.StdEncoding.EncodeToString(i.Cert.Raw)
}

// TLSCertificate returns the identity as a tls key pair.
func (i *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{i.Cert.Raw},
		PrivateKey:  i.Key,
		Leaf:        i.Cert,
	}
}

// KeyStore returns a key store holding the identity under KeyAlias.
func (i *Identity) KeyStore() *xmlsig.MemoryKeyStore {
	return xmlsig.NewMemoryKeyStore(map[string]tls.Certificate{
		KeyAlias: i.TLSCertificate(),
	})
}

// Signer returns a signer over the identity's key store.
func (i *Identity) Signer(signatureMethod string) (*xmlsig.Signer, error) {
	signer, err := xmlsig.NewSigner(xmlsig.SignerConfig{
		KeyStore:        i.KeyStore(),
		SignatureMethod: signatureMethod,
	})
	return signer, trace.Wrap(err)
}
