// Copyright 2018-2024 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package metrics exposes the upload lifecycle counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PreRequestsAccepted counts pre-requests that reserved a session.
	PreRequestsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Name:      "prerequests_accepted_total",
		Help:      "Number of accepted upload pre-requests.",
	})

	// PreRequestsRejected counts pre-requests refused for any reason.
	PreRequestsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Name:      "prerequests_rejected_total",
		Help:      "Number of rejected upload pre-requests.",
	})

	// ChunksReceived counts chunk PUTs that appended bytes.
	ChunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Name:      "chunks_received_total",
		Help:      "Number of accepted upload chunks.",
	})

	// BytesAccepted counts payload bytes flushed to temporary chunks.
	BytesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Name:      "bytes_accepted_total",
		Help:      "Number of payload bytes accepted.",
	})

	// UploadsCompleted counts uploads committed to the blob store.
	UploadsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Name:      "uploads_completed_total",
		Help:      "Number of uploads committed to the blob store.",
	})

	// ChunksReaped counts temporary chunks deleted by the reaper.
	ChunksReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Name:      "chunks_reaped_total",
		Help:      "Number of aged temporary chunks deleted by the reaper.",
	})
)
