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

package fedlet

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol failure. The host maps kinds to HTTP
// statuses; the library never recovers from one internally.
type Kind string

const (
	// KindConfiguration indicates a missing alias, bad metadata XML or
	// an unknown binding.
	KindConfiguration Kind = "configuration_error"
	// KindMalformedMessage indicates an XML parse failure or a required
	// field that is absent.
	KindMalformedMessage Kind = "malformed_message"
	// KindSignatureMissing indicates policy required a signature that
	// was not present.
	KindSignatureMissing Kind = "signature_missing"
	// KindSignatureInvalid indicates a signature was present but failed
	// verification, including certificate mismatch, digest mismatch and
	// bad reference URIs.
	KindSignatureInvalid Kind = "signature_invalid"
	// KindUnknownIssuer indicates the message issuer is not a configured
	// identity provider.
	KindUnknownIssuer Kind = "unknown_issuer"
	// KindNotInCircleOfTrust indicates the issuer is known but shares no
	// circle of trust with the service provider.
	KindNotInCircleOfTrust Kind = "not_in_circle_of_trust"
	// KindAssertionExpiredOrNotYetValid indicates the assertion time
	// window failed against the configured skew.
	KindAssertionExpiredOrNotYetValid Kind = "assertion_expired_or_not_yet_valid"
	// KindAudienceMismatch indicates the service provider entity ID is
	// not listed in the assertion audiences.
	KindAudienceMismatch Kind = "audience_mismatch"
	// KindResponderFailure indicates the identity provider returned a
	// non-Success status code, carried on the error.
	KindResponderFailure Kind = "responder_failure"
	// KindCorrelationMismatch indicates InResponseTo did not match a
	// tracked request, or an ArtifactResolve/ArtifactResponse mismatch.
	KindCorrelationMismatch Kind = "correlation_mismatch"
	// KindRelayStateRejected indicates a RelayState outside the
	// configured whitelist.
	KindRelayStateRejected Kind = "relay_state_rejected"
	// KindBackChannel indicates an HTTP, TLS or SOAP failure reaching
	// the identity provider.
	KindBackChannel Kind = "back_channel_error"
	// KindCancelled indicates the host cancelled a blocking operation.
	KindCancelled Kind = "cancelled"
)

// Error is the single tagged failure type surfaced to the host. Status
// carries the identity provider status code for responder failures and
// XML carries the raw message being processed when one was available.
type Error struct {
	Kind    Kind
	Message string
	Status  string
	XML     []byte
	Err     error
}

// NewError returns an Error of the given kind.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithCause attaches the underlying cause and returns the error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithStatus attaches the identity provider status code and returns the
// error.
func (e *Error) WithStatus(code string) *Error {
	e.Status = code
	return e
}

// ErrorKind extracts the Kind from err, unwrapping as needed. It
// returns the empty Kind when err carries no taxonomy.
func ErrorKind(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return ErrorKind(err) == kind
}

// AttachXML attaches the raw message XML to err when err carries the
// taxonomy and no XML was recorded yet. The original error is returned
// unchanged otherwise.
func AttachXML(err error, raw []byte) error {
	var fe *Error
	if errors.As(err, &fe) && fe.XML == nil {
		fe.XML = raw
	}
	return err
}

// ErrorStatus returns the identity provider status code recorded on a
// responder failure, or the empty string.
func ErrorStatus(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return ""
}

// ErrorXML returns the raw message XML attached to err, if any.
func ErrorXML(err error) []byte {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.XML
	}
	return nil
}
