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
	"github.com/prometheus/client_golang/prometheus"

	fedlet "github.com/vijayoommen/Fedlet"
)

var (
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fedlet.MetricMessagesSent,
			Help: "Outbound SAML messages by message type and binding",
		},
		[]string{"type", "binding"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fedlet.MetricMessagesReceived,
			Help: "Inbound SAML messages by message type and validation outcome",
		},
		[]string{"type", "result"},
	)
)

// observeReceived records an inbound message outcome, using the error
// kind as the result label.
func observeReceived(messageType string, err error) {
	result := "ok"
	if err != nil {
		if kind := fedlet.ErrorKind(err); kind != "" {
			result = string(kind)
		} else {
			result = "error"
		}
	}
	messagesReceived.WithLabelValues(messageType, result).Inc()
}
