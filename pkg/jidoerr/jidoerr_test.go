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

package jidoerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind and message",
			err:  &Error{Kind: KindTimeout, Message: "action timed out"},
			want: "timeout: action timed out",
		},
		{
			name: "with code",
			err:  Routing(CodeNoHandler, "no handler for signal"),
			want: "routing_error (no_handler): no handler for signal",
		},
		{
			name: "with cause",
			err:  Wrap(KindDispatch, CodeBusNotFound, "unknown bus", errors.New("boom")),
			want: "dispatch_error (bus_not_found): unknown bus: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorsIsMatchesByKindAndCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Subscription(CodeSubscriptionExists, "duplicate"))

	assert.True(t, errors.Is(err, &Error{Kind: KindSubscription}))
	assert.True(t, errors.Is(err, &Error{Kind: KindSubscription, Code: CodeSubscriptionExists}))
	assert.False(t, errors.Is(err, &Error{Kind: KindSubscription, Code: CodeSubscriptionNotFound}))
	assert.False(t, errors.Is(err, &Error{Kind: KindSnapshot}))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindRouting, KindOf(NoHandler("user.created")))
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("outer: %w", Timeout("slow"))))
	assert.Equal(t, KindExecution, KindOf(errors.New("plain")))
}

func TestCompensationDetails(t *testing.T) {
	original := errors.New("db unreachable")
	compErr := errors.New("rollback failed")

	err := Compensation(false, original, compErr)
	require.Equal(t, KindCompensation, err.Kind)
	assert.Equal(t, false, err.Details["compensated"])
	assert.Equal(t, original, err.Details["original_error"])
	assert.Equal(t, compErr, err.Details["compensation_error"])
	assert.True(t, errors.Is(err, original))

	ok := Compensation(true, original, nil)
	assert.Equal(t, true, ok.Details["compensated"])
	assert.NotContains(t, ok.Details, "compensation_error")
}

func TestNoHandlerCarriesSignalType(t *testing.T) {
	err := NoHandler("user.created")
	assert.Equal(t, CodeNoHandler, err.Code)
	assert.Equal(t, "user.created", err.Details["signal_type"])
}

func TestTimeoutIsRetryable(t *testing.T) {
	assert.True(t, Timeout("worker expired").Retryable)
}
