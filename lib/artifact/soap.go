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

package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	xrv "github.com/mattermost/xml-roundtrip-validator"
	"github.com/prometheus/client_golang/prometheus"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/codec"
	"github.com/vijayoommen/Fedlet/lib/defaults"
	"github.com/vijayoommen/Fedlet/lib/protocol"
	"github.com/vijayoommen/Fedlet/lib/utils"
)

// maxResponseBytes bounds how much of a back channel response is read.
const maxResponseBytes = 10 << 20

var backChannelSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    fedlet.MetricBackChannelSeconds,
		Help:    "Latency of SOAP back channel calls by operation",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// SOAPClientConfig configures a SOAPClient.
type SOAPClientConfig struct {
	// HTTPClient issues the back channel requests. Defaults to a
	// client that refuses to follow redirects.
	HTTPClient *http.Client
	// Timeout bounds each call, default 30 seconds, capped at two
	// minutes.
	Timeout time.Duration
	// Logger emits back channel failures. Defaults to the artifact
	// component logger.
	Logger *slog.Logger
	// Clock measures call latency. Defaults to the wall clock.
	Clock clockwork.Clock
}

// CheckAndSetDefaults validates the config and fills in defaults.
func (c *SOAPClientConfig) CheckAndSetDefaults() error {
	if c.Timeout < 0 {
		return trace.BadParameter("negative Timeout")
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.SOAPTimeout
	}
	if c.Timeout > defaults.SOAPTimeoutCeiling {
		c.Timeout = defaults.SOAPTimeoutCeiling
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if c.Logger == nil {
		c.Logger = slog.With(fedlet.ComponentKey, fedlet.ComponentArtifact)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// SOAPClient performs synchronous SOAP binding exchanges with identity
// provider back channel endpoints.
type SOAPClient struct {
	cfg SOAPClientConfig
}

// NewSOAPClient returns a SOAPClient for the config.
func NewSOAPClient(cfg SOAPClientConfig) (*SOAPClient, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := utils.RegisterPrometheusCollectors(backChannelSeconds); err != nil {
		return nil, trace.Wrap(err)
	}
	return &SOAPClient{cfg: cfg}, nil
}

// Call posts the message wrapped in a SOAP envelope and returns the
// response body child with the wanted namespace and tag, plus the raw
// response payload. The message element is copied, the caller's
// document is left untouched.
func (c *SOAPClient) Call(ctx context.Context, endpoint string, message *etree.Element, responseNS, responseTag, operation string) (*etree.Element, []byte, error) {
	if message == nil {
		return nil, nil, trace.BadParameter("missing SOAP message")
	}
	envelope := codec.WrapSOAP(message.Copy())
	body, err := envelope.WriteToBytes()
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, trace.Wrap(fedlet.NewError(fedlet.KindBackChannel, "building back channel request for %v", endpoint).WithCause(err))
	}
	request.Header.Set("Content-Type", "text/xml; charset=utf-8")

	start := c.cfg.Clock.Now()
	response, err := c.cfg.HTTPClient.Do(request)
	backChannelSeconds.WithLabelValues(operation).Observe(c.cfg.Clock.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return nil, nil, trace.Wrap(fedlet.NewError(fedlet.KindCancelled, "back channel call to %v canceled", endpoint).WithCause(err))
		case errors.Is(err, context.DeadlineExceeded):
			return nil, nil, trace.Wrap(fedlet.NewError(fedlet.KindBackChannel, "back channel call to %v timed out after %v", endpoint, c.cfg.Timeout).WithCause(err))
		}
		return nil, nil, trace.Wrap(fedlet.NewError(fedlet.KindBackChannel, "back channel call to %v failed", endpoint).WithCause(err))
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		c.cfg.Logger.WarnContext(ctx, "Back channel endpoint returned an unexpected status.",
			"endpoint", endpoint, "status", response.StatusCode)
		return nil, nil, trace.Wrap(fedlet.NewError(fedlet.KindBackChannel, "back channel endpoint %v returned status %v", endpoint, response.StatusCode))
	}
	payload, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, trace.Wrap(fedlet.NewError(fedlet.KindBackChannel, "reading back channel response from %v", endpoint).WithCause(err))
	}

	if err := xrv.Validate(bytes.NewReader(payload)); err != nil {
		return nil, nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "invalid back channel XML").WithCause(err))
	}
	document := etree.NewDocument()
	if err := document.ReadFromBytes(payload); err != nil {
		return nil, nil, trace.Wrap(fedlet.NewError(fedlet.KindMalformedMessage, "parsing back channel response").WithCause(err))
	}
	child, err := codec.SOAPBodyChild(document, responseNS, responseTag)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	return child, payload, nil
}

// ResolveArtifact posts an ArtifactResolve request and returns the
// validated ArtifactResponse. The response must correlate to the
// request ID.
func (c *SOAPClient) ResolveArtifact(ctx context.Context, endpoint string, request *etree.Document) (*protocol.ArtifactResponse, error) {
	root := request.Root()
	if root == nil {
		return nil, trace.BadParameter("empty artifact resolve document")
	}
	requestID := root.SelectAttrValue("ID", "")

	element, payload, err := c.Call(ctx, endpoint, root, protocol.ProtocolNamespace, "ArtifactResponse", "artifact_resolve")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	artifactResponse, err := protocol.ArtifactResponseFromElement(element, payload)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	inResponseTo, err := artifactResponse.InResponseTo()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if inResponseTo != requestID {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindCorrelationMismatch, "artifact response answers %q, expected %q", inResponseTo, requestID))
	}
	return artifactResponse, nil
}
