package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdempotencyStatusValid(t *testing.T) {
	for _, status := range []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed} {
		require.True(t, status.Valid(), string(status))
	}
	require.False(t, IdempotencyStatus("broken").Valid())
	require.False(t, IdempotencyStatus("").Valid())
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "key taken", err: ErrIdempotencyKeyAlreadyExists, want: true},
		{name: "payload mismatch wrapped", err: fmt.Errorf("POST /orders: %w", ErrIdempotencyHashMismatch), want: true},
		{name: "in progress", err: ErrIdempotencyInProgress, want: true},
		{name: "missing key", err: ErrIdempotencyKeyRequired, want: false},
		{name: "business error", err: ErrEmptyCart, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsIdempotencyConflict(tt.err))
		})
	}
}
