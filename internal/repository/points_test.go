package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmshop/luckybox-system/internal/model"
)

func TestLedgerRoundTrip(t *testing.T) {
	// credit 1000, debit 300, refund 50: totals 1000, 700, 750.
	steps := []struct {
		typ       model.PointType
		amount    int64
		wantTotal int64
	}{
		{typ: model.PointTypeCredit, amount: 1000, wantTotal: 1000},
		{typ: model.PointTypeDebit, amount: 300, wantTotal: 700},
		{typ: model.PointTypeRefund, amount: 50, wantTotal: 750},
	}

	var entries []model.PointEntry
	balance := int64(0)

	for _, step := range steps {
		total, err := NextTotal(balance, step.typ, step.amount)
		require.NoError(t, err)
		assert.Equal(t, step.wantTotal, total)

		entries = append(entries, model.PointEntry{Type: step.typ, Amount: step.amount, TotalAmount: total})
		balance = total
	}

	assert.Equal(t, int64(750), FoldBalance(entries))
}

func TestNextTotalRejectsOverdraft(t *testing.T) {
	_, err := NextTotal(100, model.PointTypeDebit, 101)
	require.ErrorIs(t, err, ErrInsufficientPoints)

	total, err := NextTotal(100, model.PointTypeDebit, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestFoldBalanceEmpty(t *testing.T) {
	assert.Equal(t, int64(0), FoldBalance(nil))
}
