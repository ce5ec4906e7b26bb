// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package signal

import (
	"time"

	"github.com/teradata-labs/jido/pkg/jid"
)

// Recorded is a signal as it appears in a bus log: the log-assigned id,
// the correlation chain, and the append time.
type Recorded struct {
	// ID is the log-assigned, time-ordered id. Log order equals the total
	// order of these ids.
	ID jid.ID `json:"id"`

	// CorrelationID is the id of the originating signal when the emission
	// chain is known; zero otherwise.
	CorrelationID jid.ID `json:"correlation_id,omitempty"`

	// CreatedAt is the append time in UTC, millisecond precision, derived
	// from the id's embedded timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Type mirrors Signal.Type for filtering without dereferencing.
	Type string `json:"type"`

	// Signal is the recorded payload.
	Signal *Signal `json:"signal"`
}

// CreatedAtMillis returns the append timestamp as unix milliseconds, the
// unit subscription checkpoints are kept in.
func (r *Recorded) CreatedAtMillis() int64 {
	return r.CreatedAt.UnixMilli()
}

// CompareRecorded orders two recorded signals by id: (timestamp, sequence)
// lexicographically. It is the total order underlying the log invariant.
func CompareRecorded(a, b *Recorded) int {
	return jid.Compare(a.ID, b.ID)
}
