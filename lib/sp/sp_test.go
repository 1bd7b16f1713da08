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
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/crewjam/saml/testsaml"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/codec"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/samltest"
)

// testSP bundles an SP with the fixture identities and the fake clock
// it runs on.
type testSP struct {
	*SP
	providers *samltest.Providers
	clock     *clockwork.FakeClock
}

func newTestSPFromStore(t *testing.T, providers *samltest.Providers, store *metadata.Store) *testSP {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Now())
	s, err := New(Config{
		Source:   metadata.NewStaticSource(store),
		KeyStore: providers.SP.KeyStore(),
		Clock:    clock,
	})
	require.NoError(t, err)
	return &testSP{SP: s, providers: providers, clock: clock}
}

func newTestSP(t *testing.T, spOverrides, idpAttrs map[string][]string) *testSP {
	t.Helper()
	providers, err := samltest.NewProviders()
	require.NoError(t, err)
	store, err := providers.Store(spOverrides, idpAttrs)
	require.NoError(t, err)
	return newTestSPFromStore(t, providers, store)
}

type fakeRequest struct {
	method string
	rawURL string
	form   url.Values
	body   io.Reader
	bucket string
}

func (f *fakeRequest) Method() string { return f.method }

func (f *fakeRequest) RawURL() string { return f.rawURL }

func (f *fakeRequest) QueryParam(name string) string { return f.form.Get(name) }

func (f *fakeRequest) Body() io.Reader {
	if f.body == nil {
		return bytes.NewReader(nil)
	}
	return f.body
}

func (f *fakeRequest) UserBucket() string { return f.bucket }

func getRequest(t *testing.T, bucket, path, rawQuery string) *fakeRequest {
	t.Helper()
	form, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	rawURL := path
	if rawQuery != "" {
		rawURL += "?" + rawQuery
	}
	return &fakeRequest{method: http.MethodGet, rawURL: rawURL, form: form, bucket: bucket}
}

func postFormRequest(bucket string, form url.Values) *fakeRequest {
	return &fakeRequest{method: http.MethodPost, rawURL: "/fedlet/acs", form: form, bucket: bucket}
}

func soapRequest(bucket string, payload []byte) *fakeRequest {
	return &fakeRequest{
		method: http.MethodPost,
		rawURL: "/fedlet/slo/soap",
		form:   url.Values{},
		body:   bytes.NewReader(payload),
		bucket: bucket,
	}
}

type fakeResponseWriter struct {
	redirectURL string
	body        []byte
	contentType string
}

func (f *fakeResponseWriter) Redirect(url string) error {
	f.redirectURL = url
	return nil
}

func (f *fakeResponseWriter) Write(body []byte, contentType string) error {
	f.body = append([]byte(nil), body...)
	f.contentType = contentType
	return nil
}

func encodeDoc(t *testing.T, doc *etree.Document) string {
	t.Helper()
	xml, err := doc.WriteToBytes()
	require.NoError(t, err)
	return codec.Base64Encode(xml)
}

func deflateEncodeDoc(t *testing.T, doc *etree.Document) string {
	t.Helper()
	xml, err := doc.WriteToBytes()
	require.NoError(t, err)
	deflated, err := codec.Deflate(xml)
	require.NoError(t, err)
	return codec.Base64Encode(deflated)
}

// startSSO sends an authentication request for the bucket and returns
// the request ID recorded for correlation.
func (ts *testSP) startSSO(t *testing.T, bucket string) string {
	t.Helper()
	rw := &fakeResponseWriter{}
	err := ts.SendAuthnRequest(context.Background(), getRequest(t, bucket, "/fedlet/login", ""), rw, samltest.IDPEntityID, AuthnRequestOptions{})
	require.NoError(t, err)

	u, err := url.Parse(rw.redirectURL)
	require.NoError(t, err)
	xml, err := testsaml.ParseRedirectRequest(u)
	require.NoError(t, err)
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(xml))
	id := doc.Root().SelectAttrValue("ID", "")
	require.NotEmpty(t, id)
	return id
}

// parseAutoSubmitForm pulls the target and hidden fields out of a POST
// binding page with a real HTML parser, the way a browser would see it.
func parseAutoSubmitForm(t *testing.T, body []byte) (string, map[string]string) {
	t.Helper()
	root, err := html.Parse(bytes.NewReader(body))
	require.NoError(t, err)

	var action string
	fields := make(map[string]string)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "form":
				action = htmlAttr(n, "action")
			case "input":
				if htmlAttr(n, "type") == "hidden" {
					fields[htmlAttr(n, "name")] = htmlAttr(n, "value")
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	require.NotEmpty(t, action, "page carries no form")
	return action, fields
}

func htmlAttr(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func TestConfigCheckAndSetDefaults(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.True(t, trace.IsBadParameter(err))

	providers, err := samltest.NewProviders()
	require.NoError(t, err)
	store, err := providers.Store(nil, nil)
	require.NoError(t, err)

	s, err := New(Config{Source: metadata.NewStaticSource(store)})
	require.NoError(t, err)
	require.NotNil(t, s.cfg.Clock)
	require.NotNil(t, s.cfg.KeyStore)
	require.NotNil(t, s.logger)
}

func TestCheckRelayState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		list       []string
		relayState string
		wantErr    bool
	}{
		{name: "empty state always passes", list: []string{"https://sp.example.com/app"}, relayState: ""},
		{name: "no list accepts anything", relayState: "https://anywhere.example.com"},
		{name: "listed value passes", list: []string{"https://sp.example.com/app"}, relayState: "https://sp.example.com/app"},
		{name: "unlisted value rejected", list: []string{"https://sp.example.com/app"}, relayState: "https://evil.example.com", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &metadata.SPExtendedConfig{RelayStateURLList: tt.list}
			err := checkRelayState(cfg, tt.relayState)
			if tt.wantErr {
				require.True(t, fedlet.IsKind(err, fedlet.KindRelayStateRejected))
				return
			}
			require.NoError(t, err)
		})
	}
}
