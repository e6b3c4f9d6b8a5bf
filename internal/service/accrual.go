package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"investment-ledger/internal/model"
	"investment-ledger/internal/repository"
)

// AccrualService runs the scheduled daily-profit job: every active position
// earns its fixed roi_amount until total_accumulated reaches the payout cap,
// at which point the position closes. Each position settles in its own
// transaction so one bad row cannot abort the whole run.
type AccrualService struct {
	ledger       *LedgerService
	accounts     *repository.AccountRepository
	positions    *repository.PositionRepository
	transactions *repository.TransactionRepository
	schedule     string
	cron         *cron.Cron
}

// NewAccrualService creates a new AccrualService instance.
func NewAccrualService(
	ledger *LedgerService,
	accounts *repository.AccountRepository,
	positions *repository.PositionRepository,
	transactions *repository.TransactionRepository,
	schedule string,
) *AccrualService {
	if schedule == "" {
		schedule = "@daily"
	}
	return &AccrualService{
		ledger:       ledger,
		accounts:     accounts,
		positions:    positions,
		transactions: transactions,
		schedule:     schedule,
	}
}

// Start schedules the accrual run.
func (s *AccrualService) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Accrual run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule accrual job: %w", err)
	}
	s.cron.Start()
	log.Info().Str("schedule", s.schedule).Msg("Accrual job scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *AccrualService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Run accrues one day of profit for every active position.
func (s *AccrualService) Run(ctx context.Context) error {
	ids, err := s.positions.ListActiveIDs(ctx)
	if err != nil {
		return err
	}

	var accrued, closed, failed int
	for _, id := range ids {
		didClose, err := s.accruePosition(ctx, id)
		if err != nil {
			failed++
			log.Error().Err(err).Str("position_id", id).Msg("Position accrual failed")
			continue
		}
		accrued++
		if didClose {
			closed++
		}
	}

	log.Info().
		Int("accrued", accrued).
		Int("closed", closed).
		Int("failed", failed).
		Msg("Accrual run completed")
	return nil
}

// accruePosition credits one day of profit for a single position in one
// atomic transaction. Reports whether the position reached its cap and
// closed.
func (s *AccrualService) accruePosition(ctx context.Context, positionID string) (bool, error) {
	var closed bool
	err := s.ledger.inTx(ctx, func(tx pgx.Tx) error {
		closed = false

		position, err := s.positions.WithTx(tx).GetForUpdate(ctx, positionID)
		if err != nil {
			return err
		}
		if position.Status != model.PositionStatusActive {
			return nil // closed by a concurrent run
		}

		// Cap the credit at the remaining payout headroom.
		headroom := position.TotalPayoutAmount.Sub(position.TotalAccumulated)
		if headroom.LessThanOrEqual(decimal.Zero) {
			_, err := s.positions.WithTx(tx).ApplyAccrual(ctx, positionID, decimal.Zero, true)
			closed = true
			return err
		}
		credit := decimal.Min(position.ROIAmount, headroom)
		closed = credit.GreaterThanOrEqual(headroom)

		accounts := s.accounts.WithTx(tx)
		if _, err := accounts.GetForUpdate(ctx, position.UserID); err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if _, err := accounts.CreditProfit(ctx, position.UserID, credit); err != nil {
			return err
		}

		if _, err := s.positions.WithTx(tx).ApplyAccrual(ctx, positionID, credit, closed); err != nil {
			return err
		}

		desc := fmt.Sprintf("daily profit for position %s", positionID)
		_, err = s.transactions.WithTx(tx).Create(ctx, repository.CreateTransactionParams{
			UserID:         position.UserID,
			Amount:         credit,
			Type:           model.TxTypeProfit,
			Status:         model.TxStatusApproved,
			BalanceUpdated: true,
			Description:    &desc,
		})
		return err
	})
	return closed, err
}
