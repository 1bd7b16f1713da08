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

// Package codec implements the encoding pipelines used by the SAML
// bindings: raw DEFLATE, base64, URL escaping and the SOAP envelope.
package codec

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"io"
	"net/url"
	"strings"

	"github.com/gravitational/trace"

	fedlet "github.com/vijayoommen/Fedlet"
)

// Deflate compresses data with raw DEFLATE, without a zlib or gzip
// header, as required by the HTTP-Redirect binding.
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := w.Close(); err != nil {
		return nil, trace.Wrap(err)
	}
	return buf.Bytes(), nil
}

// Inflate decompresses a raw DEFLATE stream. Empty input is a protocol
// error rather than an empty result.
func Inflate(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "empty deflated payload"))
	}
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "inflating payload").WithCause(err))
	}
	return out, nil
}

// Base64Encode encodes data with standard base64.
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode decodes standard base64, eliding embedded whitespace
// first: identity providers line-wrap POST payloads.
func Base64Decode(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	out, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "decoding base64 payload").WithCause(err))
	}
	return out, nil
}

// DeflateBase64URLEncode runs the full outbound HTTP-Redirect pipeline:
// DEFLATE, then base64, then URL escaping. The result can be placed in
// a query string verbatim.
func DeflateBase64URLEncode(xml []byte) (string, error) {
	deflated, err := Deflate(xml)
	if err != nil {
		return "", trace.Wrap(err)
	}
	return url.QueryEscape(Base64Encode(deflated)), nil
}

// URLDecodeBase64Inflate is the inverse of DeflateBase64URLEncode,
// taking the still-escaped query parameter value.
func URLDecodeBase64Inflate(value string) ([]byte, error) {
	unescaped, err := url.QueryUnescape(value)
	if err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "unescaping query value").WithCause(err))
	}
	return Base64InflateDecode(unescaped)
}

// Base64InflateDecode decodes a base64 value and inflates the result,
// the inbound pipeline for an already URL-decoded redirect parameter.
func Base64InflateDecode(value string) ([]byte, error) {
	decoded, err := Base64Decode(value)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out, err := Inflate(decoded)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return out, nil
}
