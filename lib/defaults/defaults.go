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

// Package defaults contains default constants set in various parts of
// the fedlet codebase.
package defaults

import "time"

const (
	// AssertionTimeSkew is the clock skew tolerated when checking
	// assertion NotBefore/NotOnOrAfter conditions.
	AssertionTimeSkew = 15 * time.Second

	// CorrelationTTL is how long an issued request ID stays in the
	// correlation cache before it ages out.
	CorrelationTTL = 10 * time.Minute

	// CorrelationMaxPerBucket bounds the number of in-flight request
	// IDs tracked per user bucket; the oldest entry is evicted first.
	CorrelationMaxPerBucket = 32

	// SOAPTimeout is the default timeout for back-channel SOAP round
	// trips to an identity provider.
	SOAPTimeout = 30 * time.Second

	// SOAPTimeoutCeiling is the hard upper bound on the configurable
	// SOAP timeout.
	SOAPTimeoutCeiling = 120 * time.Second
)
