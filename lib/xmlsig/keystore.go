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

// Package xmlsig signs and verifies XML documents and redirect binding
// query strings for the SAMLv2 message flows.
package xmlsig

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
)

// KeyStore resolves signing key pairs by certificate alias.
type KeyStore interface {
	// KeyPair returns the key pair registered under the alias.
	KeyPair(alias string) (tls.Certificate, error)
}

// MemoryKeyStore is a KeyStore over a fixed alias map.
type MemoryKeyStore struct {
	pairs map[string]tls.Certificate
}

// NewMemoryKeyStore builds a key store from an alias map.
func NewMemoryKeyStore(pairs map[string]tls.Certificate) *MemoryKeyStore {
	copied := make(map[string]tls.Certificate, len(pairs))
	for alias, pair := range pairs {
		copied[alias] = pair
	}
	return &MemoryKeyStore{pairs: copied}
}

// KeyPair implements KeyStore.
func (s *MemoryKeyStore) KeyPair(alias string) (tls.Certificate, error) {
	pair, ok := s.pairs[alias]
	if !ok {
		return tls.Certificate{}, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "no key pair for certificate alias %q", alias))
	}
	return pair, nil
}

// LoadKeyPair reads a PEM certificate and key file pair and parses the
// leaf certificate.
func LoadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "loading key pair from %v and %v", certFile, keyFile).WithCause(err))
	}
	if pair.Leaf == nil && len(pair.Certificate) != 0 {
		pair.Leaf, err = x509.ParseCertificate(pair.Certificate[0])
		if err != nil {
			return tls.Certificate{}, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "parsing leaf certificate from %v", certFile).WithCause(err))
		}
	}
	return pair, nil
}
