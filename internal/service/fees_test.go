package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeScheduleSplit(t *testing.T) {
	tests := []struct {
		name       string
		percent    string
		gross      int64
		wantFee    int64
		wantSeller int64
	}{
		{"default rate", "20", 4500, 900, 3600},
		{"rounds down below half", "20", 1, 0, 1},
		{"rounds up above half", "20", 3, 1, 2},
		{"half rounds up", "2.5", 100, 3, 97},
		{"no fee", "0", 999, 0, 999},
		{"all fee", "100", 999, 999, 0},
		{"zero gross", "20", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := NewFeeSchedule(decimal.RequireFromString(tt.percent))
			require.NoError(t, err)

			fee, seller := fs.Split(tt.gross)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantSeller, seller)
			assert.Equal(t, tt.gross, fee+seller)
		})
	}
}

func TestNewFeeScheduleRejectsOutOfRange(t *testing.T) {
	_, err := NewFeeSchedule(decimal.NewFromInt(-1))
	assert.Error(t, err)

	_, err = NewFeeSchedule(decimal.NewFromInt(101))
	assert.Error(t, err)
}
