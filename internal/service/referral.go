package service

import (
	"context"
	"errors"

	"investment-ledger/internal/model"
	"investment-ledger/internal/repository"
)

// ReferralService resolves the upline sponsor of a user. The sponsor edge is
// a plain identifier reference with no structural cycle guarantee, so the
// resolver guards against self-sponsorship explicitly.
type ReferralService struct {
	accounts *repository.AccountRepository
}

// NewReferralService creates a new ReferralService instance.
func NewReferralService(accounts *repository.AccountRepository) *ReferralService {
	return &ReferralService{accounts: accounts}
}

// ResolveSponsor returns the account of the user's recorded sponsor, or nil
// when the user has no sponsor, sponsors itself, or the sponsor's account
// cannot be found. Resolution runs before the purchase transaction;
// eligibility is re-validated inside it on the locked row.
func (s *ReferralService) ResolveSponsor(ctx context.Context, userID string) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if account.ReferrerID == "" || account.ReferrerID == userID {
		return nil, nil
	}

	sponsor, err := s.accounts.GetByID(ctx, account.ReferrerID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, nil // dangling sponsor reference: no bonus
		}
		return nil, err
	}
	return sponsor, nil
}
