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
	"github.com/gravitational/trace"

	"github.com/vijayoommen/Fedlet/lib/codec"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/protocol"
)

// GetExportableMetadata renders the service provider's entity
// descriptor for hand off to identity provider operators. Certificates
// referenced by the configured aliases are published in the matching
// key descriptors. With signMetadata set the document is signed with
// the signing alias.
func (s *SP) GetExportableMetadata(signMetadata bool) (string, error) {
	store, err := s.snapshot()
	if err != nil {
		return "", trace.Wrap(err)
	}
	spMeta := store.ServiceProvider()
	cfg := spMeta.Config

	var params metadata.ExportParams
	if cfg.SigningCertAlias != "" {
		pair, err := s.cfg.KeyStore.KeyPair(cfg.SigningCertAlias)
		if err != nil {
			return "", trace.Wrap(err)
		}
		params.SigningCert = codec.Base64Encode(pair.Certificate[0])
	}
	if cfg.EncryptionCertAlias != "" {
		pair, err := s.cfg.KeyStore.KeyPair(cfg.EncryptionCertAlias)
		if err != nil {
			return "", trace.Wrap(err)
		}
		params.EncryptionCert = codec.Base64Encode(pair.Certificate[0])
	}

	var alias string
	if signMetadata {
		alias, err = signingAlias(cfg, "signing the exported metadata")
		if err != nil {
			return "", trace.Wrap(err)
		}
		params.ID = protocol.GenerateID()
	}

	doc := metadata.BuildSPEntityDescriptor(spMeta, params)
	if signMetadata {
		signer, err := s.signer(cfg)
		if err != nil {
			return "", trace.Wrap(err)
		}
		if err := signer.Sign(doc, params.ID, alias); err != nil {
			return "", trace.Wrap(err)
		}
	}

	out, err := doc.WriteToString()
	if err != nil {
		return "", trace.Wrap(err)
	}
	return out, nil
}
