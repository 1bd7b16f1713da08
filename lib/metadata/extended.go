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

package metadata

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/trace"
	dsig "github.com/russellhaering/goxmldsig"

	fedlet "github.com/vijayoommen/Fedlet"
	"github.com/vijayoommen/Fedlet/lib/defaults"
	"github.com/vijayoommen/Fedlet/lib/xmlsig"
)

// EntityConfigNamespace is the namespace of extended provider
// configuration documents.
const EntityConfigNamespace = "urn:sun:fm:SAML:2.0:entityconfig"

// Extended configuration attribute names.
const (
	attrAuthnContextMapping        = "spAuthncontextClassrefMapping"
	attrAssertionTimeSkew          = "assertionTimeSkew"
	attrSigningCertAlias           = "signingCertAlias"
	attrEncryptionCertAlias        = "encryptionCertAlias"
	attrSignatureMethod            = "signatureMethod"
	attrDigestMethod               = "digestMethod"
	attrRelayStateURLList          = "relayStateUrlList"
	attrWantArtifactResponseSigned = "wantArtifactResponseSigned"
	attrWantPOSTResponseSigned     = "wantPOSTResponseSigned"
	attrWantLogoutRequestSigned    = "wantLogoutRequestSigned"
	attrWantLogoutResponseSigned   = "wantLogoutResponseSigned"
	attrWantArtifactResolveSigned  = "wantArtifactResolveSigned"
	attrWantAuthnRequestsSigned    = "wantAuthnRequestsSigned"
)

type entityConfigXML struct {
	XMLName      xml.Name       `xml:"urn:sun:fm:SAML:2.0:entityconfig EntityConfig"`
	EntityID     string         `xml:"entityID,attr"`
	Hosted       string         `xml:"hosted,attr"`
	SPSSOConfig  *ssoConfigXML  `xml:"SPSSOConfig"`
	IDPSSOConfig *ssoConfigXML  `xml:"IDPSSOConfig"`
}

type ssoConfigXML struct {
	MetaAlias  string             `xml:"metaAlias,attr"`
	Attributes []configAttribute  `xml:"Attribute"`
}

type configAttribute struct {
	Name   string   `xml:"name,attr"`
	Values []string `xml:"Value"`
}

func (c *ssoConfigXML) attribute(name string) []string {
	for _, attr := range c.Attributes {
		if attr.Name == name {
			return attr.Values
		}
	}
	return nil
}

func (c *ssoConfigXML) first(name string) string {
	values := c.attribute(name)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (c *ssoConfigXML) boolean(name string) bool {
	return strings.EqualFold(c.first(name), "true")
}

// SPExtendedConfig is the hosted service provider side of the extended
// configuration document.
type SPExtendedConfig struct {
	// EntityID is the hosted SP entity this configuration belongs to.
	EntityID string
	// MetaAlias identifies the hosted provider instance.
	MetaAlias string
	// SigningCertAlias selects the signing key pair in the key store.
	SigningCertAlias string
	// EncryptionCertAlias selects the decryption key pair in the key store.
	EncryptionCertAlias string
	// SignatureMethod is the XML signature algorithm URI used for
	// outbound signing.
	SignatureMethod string
	// DigestMethod is the XML signature digest algorithm URI.
	DigestMethod string
	// AssertionTimeSkew widens assertion validity windows in both
	// directions.
	AssertionTimeSkew time.Duration
	// RelayStateURLList whitelists non-empty RelayState values.
	RelayStateURLList []string
	// AuthnContexts maps authentication levels to context class refs.
	AuthnContexts *AuthnContextMap
	// WantArtifactResponseSigned requires a signature on resolved
	// ArtifactResponse messages.
	WantArtifactResponseSigned bool
	// WantPOSTResponseSigned requires a top-level signature on
	// responses received over HTTP-POST.
	WantPOSTResponseSigned bool
	// WantLogoutRequestSigned requires signatures on received logout
	// requests and signs outbound ones.
	WantLogoutRequestSigned bool
	// WantLogoutResponseSigned requires signatures on received logout
	// responses and signs outbound ones.
	WantLogoutResponseSigned bool
}

// IDPExtendedConfig is the remote identity provider side of the
// extended configuration document.
type IDPExtendedConfig struct {
	// EntityID is the remote IdP entity this configuration belongs to.
	EntityID string
	// WantArtifactResolveSigned asks the SP to sign ArtifactResolve
	// requests sent to this IdP.
	WantArtifactResolveSigned bool
	// WantAuthnRequestsSigned asks the SP to sign authentication
	// requests sent to this IdP.
	WantAuthnRequestsSigned bool
	// WantLogoutRequestSigned asks the SP to sign logout requests sent
	// to this IdP.
	WantLogoutRequestSigned bool
	// WantLogoutResponseSigned asks the SP to sign logout responses
	// sent to this IdP.
	WantLogoutResponseSigned bool
}

func parseEntityConfig(raw []byte) (*entityConfigXML, error) {
	var config entityConfigXML
	if err := xml.Unmarshal(raw, &config); err != nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "parsing entity config").WithCause(err))
	}
	if config.EntityID == "" {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "entity config has no entityID"))
	}
	return &config, nil
}

// ParseSPExtendedConfig parses the hosted SP extended configuration and
// applies defaults for any attribute left unset.
func ParseSPExtendedConfig(raw []byte) (*SPExtendedConfig, error) {
	config, err := parseEntityConfig(raw)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if config.SPSSOConfig == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "entity config for %q has no SPSSOConfig", config.EntityID))
	}
	sso := config.SPSSOConfig

	out := &SPExtendedConfig{
		EntityID:                   config.EntityID,
		MetaAlias:                  sso.MetaAlias,
		SigningCertAlias:           sso.first(attrSigningCertAlias),
		EncryptionCertAlias:        sso.first(attrEncryptionCertAlias),
		SignatureMethod:            sso.first(attrSignatureMethod),
		DigestMethod:               sso.first(attrDigestMethod),
		AssertionTimeSkew:          defaults.AssertionTimeSkew,
		WantArtifactResponseSigned: sso.boolean(attrWantArtifactResponseSigned),
		WantPOSTResponseSigned:     sso.boolean(attrWantPOSTResponseSigned),
		WantLogoutRequestSigned:    sso.boolean(attrWantLogoutRequestSigned),
		WantLogoutResponseSigned:   sso.boolean(attrWantLogoutResponseSigned),
	}
	if out.SignatureMethod == "" {
		out.SignatureMethod = dsig.RSASHA256SignatureMethod
	}
	if out.DigestMethod == "" {
		out.DigestMethod = xmlsig.DigestSHA1
	}
	if skew := sso.first(attrAssertionTimeSkew); skew != "" {
		seconds, err := strconv.Atoi(skew)
		if err != nil || seconds < 0 {
			return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "invalid %v value %q", attrAssertionTimeSkew, skew))
		}
		out.AssertionTimeSkew = time.Duration(seconds) * time.Second
	}
	for _, value := range sso.attribute(attrRelayStateURLList) {
		value = strings.TrimSpace(value)
		if value != "" {
			out.RelayStateURLList = append(out.RelayStateURLList, value)
		}
	}
	out.AuthnContexts, err = ParseAuthnContextMapping(sso.attribute(attrAuthnContextMapping))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return out, nil
}

// ParseIDPExtendedConfig parses a remote IdP extended configuration.
func ParseIDPExtendedConfig(raw []byte) (*IDPExtendedConfig, error) {
	config, err := parseEntityConfig(raw)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if config.IDPSSOConfig == nil {
		return nil, trace.Wrap(fedlet.NewError(fedlet.KindConfiguration, "entity config for %q has no IDPSSOConfig", config.EntityID))
	}
	sso := config.IDPSSOConfig
	return &IDPExtendedConfig{
		EntityID:                  config.EntityID,
		WantArtifactResolveSigned: sso.boolean(attrWantArtifactResolveSigned),
		WantAuthnRequestsSigned:   sso.boolean(attrWantAuthnRequestsSigned),
		WantLogoutRequestSigned:   sso.boolean(attrWantLogoutRequestSigned),
		WantLogoutResponseSigned:  sso.boolean(attrWantLogoutResponseSigned),
	}, nil
}
