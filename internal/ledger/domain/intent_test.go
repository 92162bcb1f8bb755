package domain

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFee(t *testing.T) {
	tests := []struct {
		name        string
		amount      int64
		basisPoints int64
		want        int64
	}{
		{"zero rate", 10_000, 0, 0},
		{"full rate", 10_000, 10_000, 10_000},
		{"typical rate", 10_000, 250, 250},
		{"truncates toward zero", 999, 250, 24},
		{"sub-unit amount truncates to zero", 3, 250, 0},
		{"one basis point", 9_999, 1, 0},
		{"large amount", 1_000_000_000, 30, 3_000_000},
		{"max bitcoin supply in sats at full rate", 2_100_000_000_000_000, 10_000, 2_100_000_000_000_000},
		{"near int64 ceiling", 2_000_000_000_000_000_000, 250, 50_000_000_000_000_000},
		{"int64 max at full rate", math.MaxInt64, 10_000, math.MaxInt64},
		{"int64 max truncates remainder", math.MaxInt64, 1, math.MaxInt64 / 10_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fee(tt.amount, tt.basisPoints))
		})
	}
}

func TestFeeDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, Fee(987_654, 175), Fee(987_654, 175))
	}
}

func TestFeeNeverExceedsAmount(t *testing.T) {
	amounts := []int64{1, 2, 99, 100, 10_000, 1_000_000, 2_100_000_000_000_000, math.MaxInt64}
	rates := []int64{0, 1, 250, 9_999, 10_000}

	for _, amount := range amounts {
		for _, rate := range rates {
			fee := Fee(amount, rate)
			assert.GreaterOrEqual(t, fee, int64(0))
			assert.LessOrEqual(t, fee, amount)
		}
	}
}

func TestNewPaymentIntent(t *testing.T) {
	intent, err := NewPaymentIntent("pay-1", "merchant-1", 5_000, 125, 7, "order #42")
	require.NoError(t, err)

	assert.Equal(t, "pay-1", intent.ID)
	assert.Equal(t, "merchant-1", intent.Merchant)
	assert.Equal(t, int64(5_000), intent.Amount)
	assert.Equal(t, int64(125), intent.Fee)
	assert.Equal(t, StatusPending, intent.Status)
	assert.Equal(t, int64(7), intent.CreatedAt)
	assert.Empty(t, intent.Customer)
	assert.Nil(t, intent.CompletedAt)
}

func TestNewPaymentIntentValidation(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		merchantID  string
		amount      int64
		description string
		wantErr     error
	}{
		{"zero amount", "pay-1", "m-1", 0, "", ErrInsufficientAmount},
		{"negative amount", "pay-1", "m-1", -100, "", ErrInsufficientAmount},
		{"empty id", "", "m-1", 100, "", nil},
		{"id too long", strings.Repeat("x", MaxPaymentIDLen+1), "m-1", 100, "", nil},
		{"description too long", "pay-1", "m-1", 100, strings.Repeat("d", MaxDescriptionLen+1), nil},
		{"empty merchant", "pay-1", "", 100, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPaymentIntent(tt.id, tt.merchantID, tt.amount, 0, 1, tt.description)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestMarkCompleted(t *testing.T) {
	intent, err := NewPaymentIntent("pay-1", "m-1", 1_000, 25, 1, "")
	require.NoError(t, err)

	require.NoError(t, intent.MarkCompleted("customer-1", 2))

	assert.Equal(t, StatusCompleted, intent.Status)
	assert.Equal(t, "customer-1", intent.Customer)
	require.NotNil(t, intent.CompletedAt)
	assert.Equal(t, int64(2), *intent.CompletedAt)
	assert.True(t, intent.IsTerminal())
}

func TestMarkCompletedTwice(t *testing.T) {
	intent, err := NewPaymentIntent("pay-1", "m-1", 1_000, 25, 1, "")
	require.NoError(t, err)

	require.NoError(t, intent.MarkCompleted("customer-1", 2))

	err = intent.MarkCompleted("customer-2", 3)
	assert.ErrorIs(t, err, ErrPaymentAlreadyCompleted)

	// First completion is untouched
	assert.Equal(t, "customer-1", intent.Customer)
	assert.Equal(t, int64(2), *intent.CompletedAt)
}
