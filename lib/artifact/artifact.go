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

// Package artifact implements the SAMLv2 type 0x0004 artifact format
// and the SOAP back channel used to resolve artifacts and deliver
// logout messages.
package artifact

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/codec"
)

// ParamSAMLArt is the query or form parameter carrying an artifact in
// the HTTP-Artifact binding.
const ParamSAMLArt = "SAMLart"

// TypeCode is the only artifact type a service provider handles.
const TypeCode = 0x0004

// Length is the decoded size of a type 0x0004 artifact: a two byte
// type code, a two byte endpoint index, a 20 byte source ID and a 20
// byte message handle.
const Length = 44

// Artifact is a decoded SAMLv2 artifact.
type Artifact struct {
	// EndpointIndex selects the issuer's artifact resolution service.
	EndpointIndex int
	// SourceID is the SHA-1 of the issuing entity ID.
	SourceID [20]byte
	// MessageHandle is the issuer's opaque reference to the message.
	MessageHandle [20]byte
}

// Parse decodes a base64 artifact value.
func Parse(encoded string) (*Artifact, error) {
	raw, err := codec.Base64Decode(encoded)
	if err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "malformed artifact encoding").WithCause(err))
	}
	if len(raw) != Length {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "artifact must decode to %v bytes, got %v", Length, len(raw)))
	}
	if typeCode := binary.BigEndian.Uint16(raw[0:2]); typeCode != TypeCode {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "unsupported artifact type code %#04x", typeCode))
	}
	artifact := &Artifact{
		EndpointIndex: int(binary.BigEndian.Uint16(raw[2:4])),
	}
	copy(artifact.SourceID[:], raw[4:24])
	copy(artifact.MessageHandle[:], raw[24:44])
	return artifact, nil
}

// New builds an artifact naming the given issuer.
func New(entityID string, endpointIndex int, messageHandle [20]byte) *Artifact {
	return &Artifact{
		EndpointIndex: endpointIndex,
		SourceID:      sha1.Sum([]byte(entityID)),
		MessageHandle: messageHandle,
	}
}

// String returns the base64 wire form.
func (a *Artifact) String() string {
	raw := make([]byte, Length)
	binary.BigEndian.PutUint16(raw[0:2], TypeCode)
	binary.BigEndian.PutUint16(raw[2:4], uint16(a.EndpointIndex))
	copy(raw[4:24], a.SourceID[:])
	copy(raw[24:44], a.MessageHandle[:])
	return codec.Base64Encode(raw)
}

// SourceIDHex returns the source ID in the uppercase hex form the
// metadata store indexes identity providers by.
func (a *Artifact) SourceIDHex() string {
	return strings.ToUpper(hex.EncodeToString(a.SourceID[:]))
}
