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
	"bytes"
	"html/template"
	"net/url"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"

	"github.com/vijayoommen/Fedlet/lib/codec"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/xmlsig"
)

// postFormTemplate renders the self-submitting form of the HTTP-POST
// binding. Browsers without scripting fall back to the visible
// Continue button inside noscript.
var postFormTemplate = template.Must(template.New("postform").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>SAML HTTP POST binding</title>
</head>
<body onload="document.forms[0].submit()">
<noscript>
<p>Scripting is disabled, press Continue to proceed.</p>
</noscript>
<form method="post" action="{{.Action}}">
<input type="hidden" name="{{.ParamName}}" value="{{.Message}}">
{{- if .RelayState}}
<input type="hidden" name="RelayState" value="{{.RelayState}}">
{{- end}}
<noscript><input type="submit" value="Continue"></noscript>
</form>
</body>
</html>
`))

type postFormData struct {
	Action     string
	ParamName  string
	Message    string
	RelayState string
}

func writePostForm(rw ResponseWriter, data postFormData) error {
	var buf bytes.Buffer
	if err := postFormTemplate.Execute(&buf, data); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(rw.Write(buf.Bytes(), "text/html; charset=utf-8"))
}

// redirectURL encodes doc for the HTTP-Redirect binding and appends the
// resulting query to endpoint. When sign is set the query carries
// SigAlg and Signature computed over the raw parameter segments.
func (s *SP) redirectURL(cfg *metadata.SPExtendedConfig, doc *etree.Document, paramName, endpoint, relayState string, sign bool, operation string) (string, error) {
	xml, err := doc.WriteToBytes()
	if err != nil {
		return "", trace.Wrap(err)
	}
	deflated, err := codec.Deflate(xml)
	if err != nil {
		return "", trace.Wrap(err)
	}
	message := codec.Base64Encode(deflated)

	var query string
	if sign {
		alias, err := signingAlias(cfg, operation)
		if err != nil {
			return "", trace.Wrap(err)
		}
		signer, err := s.querySigner(cfg)
		if err != nil {
			return "", trace.Wrap(err)
		}
		query, err = signer.SignQuery(paramName, message, relayState, alias)
		if err != nil {
			return "", trace.Wrap(err)
		}
	} else {
		query = paramName + "=" + url.QueryEscape(message)
		if relayState != "" {
			query += "&" + xmlsig.ParamRelayState + "=" + url.QueryEscape(relayState)
		}
	}
	return appendQuery(endpoint, query), nil
}

// postFormMessage prepares doc for the HTTP-POST binding, signing it in
// place first when sign is set, and returns the base64 form value.
func (s *SP) postFormMessage(cfg *metadata.SPExtendedConfig, doc *etree.Document, id string, sign bool, operation string) (string, error) {
	if sign {
		alias, err := signingAlias(cfg, operation)
		if err != nil {
			return "", trace.Wrap(err)
		}
		signer, err := s.signer(cfg)
		if err != nil {
			return "", trace.Wrap(err)
		}
		if err := signer.Sign(doc, id, alias); err != nil {
			return "", trace.Wrap(err)
		}
	}
	xml, err := doc.WriteToBytes()
	if err != nil {
		return "", trace.Wrap(err)
	}
	return codec.Base64Encode(xml), nil
}
