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

// Prometheus metric names exported by the library.
const (
	// MetricMessagesSent counts outbound SAML messages by message type
	// and binding.
	MetricMessagesSent = "fedlet_messages_sent_total"

	// MetricMessagesReceived counts inbound SAML messages by message
	// type and validation outcome.
	MetricMessagesReceived = "fedlet_messages_received_total"

	// MetricBackChannelSeconds observes the latency of SOAP back-channel
	// round trips to identity providers.
	MetricBackChannelSeconds = "fedlet_backchannel_request_seconds"

	// MetricMetadataReloads counts metadata repository reloads by
	// result.
	MetricMetadataReloads = "fedlet_metadata_reloads_total"
)
