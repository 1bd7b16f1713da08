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

package codec

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	fedlet "github.com/vijayoommen/Fedlet"
)

const protocolNamespace = "urn:oasis:names:tc:SAML:2.0:protocol"

func TestWrapSOAPRoundTrip(t *testing.T) {
	t.Parallel()

	msg := etree.NewDocument()
	resolve := msg.CreateElement("samlp:ArtifactResolve")
	resolve.CreateAttr("xmlns:samlp", protocolNamespace)
	resolve.CreateAttr("ID", "id-abc")

	envelope := WrapSOAP(msg.Root())
	serialized, err := envelope.WriteToBytes()
	require.NoError(t, err)

	parsed := etree.NewDocument()
	require.NoError(t, parsed.ReadFromBytes(serialized))

	child, err := SOAPBodyChild(parsed, protocolNamespace, "ArtifactResolve")
	require.NoError(t, err)
	require.Equal(t, "id-abc", child.SelectAttrValue("ID", ""))
}

func TestSOAPBodyChildAcceptsForeignPrefixes(t *testing.T) {
	t.Parallel()

	// Same namespaces, different prefixes than the ones we emit.
	raw := `<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<SOAP-ENV:Body><sp:ArtifactResponse xmlns:sp="urn:oasis:names:tc:SAML:2.0:protocol" ID="id-r"/></SOAP-ENV:Body>` +
		`</SOAP-ENV:Envelope>`
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(raw))

	child, err := SOAPBodyChild(doc, protocolNamespace, "ArtifactResponse")
	require.NoError(t, err)
	require.Equal(t, "id-r", child.SelectAttrValue("ID", ""))
}

func TestSOAPBodyChildErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "not an envelope",
			raw:  `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"/>`,
		},
		{
			name: "no body",
			raw:  `<soap-env:Envelope xmlns:soap-env="http://schemas.xmlsoap.org/soap/envelope/"/>`,
		},
		{
			name: "missing child",
			raw: `<soap-env:Envelope xmlns:soap-env="http://schemas.xmlsoap.org/soap/envelope/">` +
				`<soap-env:Body/></soap-env:Envelope>`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := etree.NewDocument()
			require.NoError(t, doc.ReadFromString(tt.raw))
			_, err := SOAPBodyChild(doc, protocolNamespace, "ArtifactResponse")
			require.Error(t, err)
			require.True(t, fedlet.IsKind(err, fedlet.KindMalformedMessage))
		})
	}
}
