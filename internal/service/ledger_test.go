package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"investment-ledger/internal/model"
)

func TestComputePurchaseFigures(t *testing.T) {
	p := &model.Plan{
		MinAmount:           decimal.NewFromInt(50),
		DailyPercentage:     decimal.NewFromInt(2),
		DirectProfitPercent: decimal.NewFromInt(10),
		TotalPayoutPercent:  decimal.NewFromInt(200),
	}

	figures := computePurchaseFigures(decimal.NewFromInt(60), p)

	assert.True(t, figures.Bonus.Equal(decimal.NewFromInt(6)), "bonus = %s", figures.Bonus)
	assert.True(t, figures.ROIAmount.Equal(decimal.NewFromFloat(1.2)), "roi = %s", figures.ROIAmount)
	assert.True(t, figures.TotalPayout.Equal(decimal.NewFromInt(120)), "payout = %s", figures.TotalPayout)
}

func TestComputePurchaseFiguresFractionalRates(t *testing.T) {
	p := &model.Plan{
		DailyPercentage:     decimal.RequireFromString("1.5"),
		DirectProfitPercent: decimal.RequireFromString("7.5"),
		TotalPayoutPercent:  decimal.RequireFromString("250"),
	}

	figures := computePurchaseFigures(decimal.NewFromInt(1000), p)

	assert.True(t, figures.Bonus.Equal(decimal.NewFromInt(75)))
	assert.True(t, figures.ROIAmount.Equal(decimal.NewFromInt(15)))
	assert.True(t, figures.TotalPayout.Equal(decimal.NewFromInt(2500)))
}

func TestSettlementStateDerivation(t *testing.T) {
	tests := []struct {
		name   string
		tx     model.LedgerTransaction
		expect model.SettlementState
	}{
		{"pending withdrawal is reserved", model.LedgerTransaction{Type: model.TxTypeWithdraw, Status: model.TxStatusPending}, model.SettlementReserved},
		{"approved and applied is settled", model.LedgerTransaction{Type: model.TxTypeWithdraw, Status: model.TxStatusApproved, BalanceUpdated: true}, model.SettlementSettled},
		{"rejected and applied is refunded", model.LedgerTransaction{Type: model.TxTypeWithdraw, Status: model.TxStatusRejected, BalanceUpdated: true}, model.SettlementRefunded},
		{"rejected but unapplied is still reserved", model.LedgerTransaction{Type: model.TxTypeWithdraw, Status: model.TxStatusRejected}, model.SettlementReserved},
		{"non-withdrawal is unknown", model.LedgerTransaction{Type: model.TxTypeDeposit, Status: model.TxStatusApproved}, model.SettlementUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.tx.SettlementState())
		})
	}
}
