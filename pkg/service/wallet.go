package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"transfer_requests_back/internal/wallet"
	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
	"transfer_requests_back/pkg/repository"
)

type WalletService struct {
	users repository.Users
}

func NewWalletService(users repository.Users) *WalletService {
	return &WalletService{users: users}
}

func (s *WalletService) OwnershipMessage(actor models.Actor) string {
	return wallet.OwnershipMessage(actor.UserID, actor.Email)
}

// VerifyWallet stores the caller's payout address once they prove control of
// it by signing their ownership message.
func (s *WalletService) VerifyWallet(ctx context.Context, actor models.Actor, input models.WalletVerifyInput) (models.User, error) {
	address, err := wallet.VerifyOwnership(input.Address, s.OwnershipMessage(actor), input.Signature)
	switch {
	case errors.Is(err, wallet.ErrInvalidAddress):
		return models.User{}, apperror.Field("address", err.Error())
	case errors.Is(err, wallet.ErrInvalidSignature), errors.Is(err, wallet.ErrSignatureMismatch):
		return models.User{}, apperror.Field("signature", err.Error())
	case err != nil:
		return models.User{}, apperror.Internal(err)
	}

	user, err := s.users.SetVerifiedWallet(ctx, actor.UserID, address)
	if err != nil {
		return user, fromRepo(err, "user", logrus.Fields{"user_id": actor.UserID})
	}
	logrus.WithFields(logrus.Fields{"user_id": actor.UserID, "wallet": address}).Info("wallet verified")
	return user, nil
}
