package vaulterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"bare sentinel", ErrInsufficientShares, KindValidation},
		{"wrapped by E", E("lockShares", ErrInsufficientShares), KindValidation},
		{"fmt wrapped", fmt.Errorf("settle: %w", ErrInsufficientLiquidity), KindLiquidityShortfall},
		{"Ef context", Ef("approve", ErrInvalidSettlementTime, "min %d", 10), KindTemporalGuard},
		{"foreign error", errors.New("disk full"), KindUnknown},
		{"reentrancy", E("settle", ErrReentrantCall), KindReentrancy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := E("lockShares", ErrInsufficientShares)
	assert.Equal(t, "lockShares: insufficient shares", err.Error())
	assert.ErrorIs(t, err, ErrInsufficientShares)

	err = Ef("approveRedemption", ErrInvalidSettlementTime, "got %d want >= %d", 5, 10)
	assert.ErrorIs(t, err, ErrInvalidSettlementTime)
	assert.Contains(t, err.Error(), "got 5 want >= 10")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrSettlementTimeNotReached))
	assert.True(t, Retryable(E("settle", ErrInsufficientLiquidity)))
	assert.True(t, Retryable(ErrEmergencyQuotaExceeded))
	assert.False(t, Retryable(ErrNotPendingApproval))
	assert.False(t, Retryable(ErrArithmeticUnderflow))
	assert.False(t, Retryable(nil))
}
