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
	"io"
	"net/http"
	"strings"

	"github.com/gravitational/trace"

	"github.com/vijayoommen/Fedlet/lib/httplib"
)

// Request is the inbound half of the host contract. Hosts hand one to
// every Get operation; the net/http adapter below covers the common
// case.
type Request interface {
	// Method returns the HTTP method.
	Method() string
	// RawURL returns the request URI exactly as received, query string
	// included. Redirect binding signatures are verified against these
	// raw bytes.
	RawURL() string
	// QueryParam returns the named query or form parameter, empty when
	// absent.
	QueryParam(name string) string
	// Body returns the request body. Only the SOAP binding reads it.
	Body() io.Reader
	// UserBucket returns an opaque per-session token scoping request
	// correlation, typically a session cookie value.
	UserBucket() string
}

// ResponseWriter is the outbound half of the host contract. Writing a
// redirect or a body completes the exchange.
type ResponseWriter interface {
	// Redirect sends the browser to the URL.
	Redirect(url string) error
	// Write sends a 200 response with the body and content type.
	Write(body []byte, contentType string) error
}

// NewRequest adapts a net/http request. userBucket scopes request
// correlation to the caller's session; hosts usually pass a session
// cookie value.
func NewRequest(r *http.Request, userBucket string) Request {
	return &httpRequest{r: r, bucket: userBucket}
}

type httpRequest struct {
	r      *http.Request
	bucket string
}

func (h *httpRequest) Method() string { return h.r.Method }

func (h *httpRequest) RawURL() string { return h.r.RequestURI }

func (h *httpRequest) QueryParam(name string) string { return h.r.FormValue(name) }

func (h *httpRequest) Body() io.Reader { return h.r.Body }

func (h *httpRequest) UserBucket() string { return h.bucket }

// NewResponseWriter adapts a net/http response writer. HTML responses
// get the browser security headers, everything is marked uncacheable.
func NewResponseWriter(w http.ResponseWriter, r *http.Request) ResponseWriter {
	return &httpResponseWriter{w: w, r: r}
}

type httpResponseWriter struct {
	w http.ResponseWriter
	r *http.Request
}

func (h *httpResponseWriter) Redirect(url string) error {
	httplib.SetNoCacheHeaders(h.w.Header())
	http.Redirect(h.w, h.r, url, http.StatusFound)
	return nil
}

// formCSP locks down everything the auto-submitting form does not
// need. There is no script-src directive: the form relies on an inline
// onload handler, and the page carries no other script.
var formCSP = httplib.GetContentSecurityPolicyString(httplib.CSPMap{
	"base-uri":        {"'none'"},
	"frame-ancestors": {"'none'"},
	"object-src":      {"'none'"},
	"img-src":         {"'none'"},
	"style-src":       {"'none'"},
})

func (h *httpResponseWriter) Write(body []byte, contentType string) error {
	header := h.w.Header()
	header.Set("Content-Type", contentType)
	httplib.SetNoCacheHeaders(header)
	if strings.HasPrefix(contentType, "text/html") {
		header.Set("Content-Security-Policy", formCSP)
		httplib.SetDefaultSecurityHeaders(header)
	}
	_, err := h.w.Write(body)
	return trace.Wrap(err)
}

// rawQueryOf slices the raw query string out of a request URI.
func rawQueryOf(rawURL string) string {
	if i := strings.Index(rawURL, "?"); i >= 0 {
		return rawURL[i+1:]
	}
	return ""
}

// appendQuery attaches a query string to an endpoint that may already
// carry one.
func appendQuery(endpoint, query string) string {
	if strings.Contains(endpoint, "?") {
		return endpoint + "&" + query
	}
	return endpoint + "?" + query
}
