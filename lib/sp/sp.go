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

// Package sp is the service provider entry point consumed by host
// applications. An SP sends authentication and logout requests to
// configured identity providers and validates what comes back,
// reporting failures with the taxonomy in the root fedlet package.
//
// The host supplies a metadata Source, a key store and the Request and
// ResponseWriter pair from its web framework; everything else is
// derived from the metadata snapshot current at each call, so
// configuration reloads take effect between requests without
// restarting.
package sp

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/artifact"
	"github.com/vijayoommen/Fedlet/lib/correlation"
	"github.com/vijayoommen/Fedlet/lib/metadata"
	"github.com/vijayoommen/Fedlet/lib/utils"
	"github.com/vijayoommen/Fedlet/lib/xmlsig"
)

// Config holds the dependencies of an SP.
type Config struct {
	// Source supplies metadata snapshots. Use metadata.NewStaticSource
	// for fixed configuration or a metadata.Repository for a watched
	// directory.
	Source metadata.Source
	// KeyStore resolves the certificate aliases named by the extended
	// configuration. Optional when nothing is signed.
	KeyStore xmlsig.KeyStore
	// HTTPClient issues SOAP back channel calls. Defaults to a client
	// that refuses to follow redirects.
	HTTPClient *http.Client
	// SOAPTimeout bounds each back channel call, default 30 seconds.
	SOAPTimeout time.Duration
	// SkipCorrelationCheck disables InResponseTo enforcement for hosts
	// federating with identity providers that do not echo request IDs.
	// Replay protection is lost with it.
	SkipCorrelationCheck bool
	// CorrelationTTL bounds how long issued request IDs stay claimable.
	CorrelationTTL time.Duration
	// CorrelationMaxPerBucket caps tracked requests per user session.
	CorrelationMaxPerBucket int
	// Clock drives issue instants, validity windows and correlation
	// expiry. Defaults to the wall clock.
	Clock clockwork.Clock
	// Logger emits operational events. Defaults to the sp component
	// logger.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the config and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.Source == nil {
		return trace.BadParameter("missing Source")
	}
	if c.KeyStore == nil {
		c.KeyStore = xmlsig.NewMemoryKeyStore(nil)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.With(fedlet.ComponentKey, fedlet.ComponentSP)
	}
	return nil
}

// SP implements the service provider side of the SAMLv2 web SSO and
// single logout profiles. Safe for concurrent use.
type SP struct {
	cfg      Config
	logger   *slog.Logger
	verifier *xmlsig.Verifier
	// queryVerifier checks redirect binding signatures; it holds no
	// keys, outbound query signing uses a signer built per snapshot.
	queryVerifier *xmlsig.QuerySigner
	soap          *artifact.SOAPClient
	requests      *correlation.Cache
}

// New returns an SP for the config.
func New(cfg Config) (*SP, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := utils.RegisterPrometheusCollectors(messagesSent, messagesReceived); err != nil {
		return nil, trace.Wrap(err)
	}
	requests, err := correlation.NewCache(correlation.CacheConfig{
		TTL:          cfg.CorrelationTTL,
		MaxPerBucket: cfg.CorrelationMaxPerBucket,
		Clock:        cfg.Clock,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	soap, err := artifact.NewSOAPClient(artifact.SOAPClientConfig{
		HTTPClient: cfg.HTTPClient,
		Timeout:    cfg.SOAPTimeout,
		Logger:     cfg.Logger,
		Clock:      cfg.Clock,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	queryVerifier, err := xmlsig.NewQuerySigner(xmlsig.QuerySignerConfig{})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &SP{
		cfg:           cfg,
		logger:        cfg.Logger,
		verifier:      xmlsig.NewVerifier(xmlsig.VerifierConfig{Clock: cfg.Clock}),
		queryVerifier: queryVerifier,
		soap:          soap,
		requests:      requests,
	}, nil
}

func (s *SP) snapshot() (*metadata.Store, error) {
	store := s.cfg.Source.Snapshot()
	if store == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "metadata source returned no snapshot"))
	}
	return store, nil
}

// identityProvider resolves an IdP the host asked to talk to. Unknown
// entity IDs here are host configuration mistakes, not suspect inbound
// messages.
func (s *SP) identityProvider(store *metadata.Store, entityID string) (*metadata.IdentityProvider, error) {
	idp, err := store.IdentityProvider(entityID)
	if err != nil {
		if trace.IsNotFound(err) {
			return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "identity provider %q is not configured", entityID))
		}
		return nil, trace.Wrap(err)
	}
	return idp, nil
}

// signer builds an XML signer for the snapshot's signature and digest
// configuration.
func (s *SP) signer(cfg *metadata.SPExtendedConfig) (*xmlsig.Signer, error) {
	return xmlsig.NewSigner(xmlsig.SignerConfig{
		KeyStore:        s.cfg.KeyStore,
		SignatureMethod: cfg.SignatureMethod,
		DigestMethod:    cfg.DigestMethod,
	})
}

func (s *SP) querySigner(cfg *metadata.SPExtendedConfig) (*xmlsig.QuerySigner, error) {
	return xmlsig.NewQuerySigner(xmlsig.QuerySignerConfig{
		KeyStore:        s.cfg.KeyStore,
		SignatureMethod: cfg.SignatureMethod,
	})
}

// signingAlias returns the configured signing certificate alias, or a
// configuration error naming the operation that needed it.
func signingAlias(cfg *metadata.SPExtendedConfig, operation string) (string, error) {
	if cfg.SigningCertAlias == "" {
		return "", trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "%s requires a signature but no signing certificate alias is configured", operation))
	}
	return cfg.SigningCertAlias, nil
}

// checkRelayState enforces the relay state whitelist. The empty relay
// state is always allowed, and deployments that configure no list
// accept anything; otherwise the value must appear verbatim in the
// list.
func checkRelayState(cfg *metadata.SPExtendedConfig, relayState string) error {
	if relayState == "" || len(cfg.RelayStateURLList) == 0 {
		return nil
	}
	if !slices.Contains(cfg.RelayStateURLList, relayState) {
		return trace.Wrap(fedlet.NewError(fedlet.KindRelayStateRejected, "relay state %q is not on the allowed list", relayState))
	}
	return nil
}
