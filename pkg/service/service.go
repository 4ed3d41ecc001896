package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
	"transfer_requests_back/pkg/repository"
)

type Authorization interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
}

type TransferRequests interface {
	Create(ctx context.Context, actor models.Actor, input models.TransferRequestInput) (models.TransferRequest, error)
	Get(ctx context.Context, actor models.Actor, publicID string) (models.TransferRequestDetail, error)
	List(ctx context.Context, actor models.Actor, status string, limit, offset int) ([]models.TransferRequest, error)
	Edit(ctx context.Context, actor models.Actor, publicID string, input models.TransferRequestInput) (models.TransferRequest, error)
	Submit(ctx context.Context, actor models.Actor, publicID string) (models.TransferRequest, error)
	Review(ctx context.Context, actor models.Actor, publicID string, input models.ReviewInput) (models.TransferRequest, error)
	Void(ctx context.Context, actor models.Actor, publicID string) (models.TransferRequest, error)
}

type Reconciliation interface {
	Dispatch(ctx context.Context, actor models.Actor, input models.DispatchInput) ([]models.DispatchItem, error)
	TransfersPaymentSent(ctx context.Context, actor models.Actor, input models.PaymentSentInput) ([]models.Transfer, error)
	TransferPaymentConfirm(ctx context.Context, event models.ChainEvent) (models.Transfer, error)
	ManualConfirm(ctx context.Context, actor models.Actor, event models.ChainEvent) (models.Transfer, error)
	CancelTransfers(ctx context.Context, actor models.Actor, input models.CancelInput) ([]models.Transfer, error)
	RetryTransfer(ctx context.Context, actor models.Actor, requestID int64) (models.Transfer, error)
}

type Wallet interface {
	OwnershipMessage(actor models.Actor) string
	VerifyWallet(ctx context.Context, actor models.Actor, input models.WalletVerifyInput) (models.User, error)
}

// Notifier tells people about status changes. Delivery failures never undo
// the change that triggered them.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, req models.TransferRequest, recipient models.User) error
}

type Options struct {
	// Env picks the payment identifier prefix.
	Env string
	// TokenDecimals maps chain name to the decimals of the token paid out on it.
	TokenDecimals map[string]int32
}

type Service struct {
	Authorization
	TransferRequests
	Reconciliation
	Wallet
}

func NewService(repos *repository.Repository, notifier Notifier, opts Options) *Service {
	return &Service{
		Authorization:    NewAuthService(repos.Users),
		TransferRequests: NewTransferRequestService(repos.TransferRequests, repos.Transfers, repos.Users, notifier),
		Reconciliation:   NewReconciliationService(repos.TransferRequests, repos.Transfers, repos.Users, notifier, opts),
		Wallet:           NewWalletService(repos.Users),
	}
}

type AuthService struct {
	users repository.Users
}

func NewAuthService(users repository.Users) *AuthService {
	return &AuthService{users: users}
}

func (s *AuthService) GetUser(ctx context.Context, id int64) (models.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return user, fromRepo(err, "user", logrus.Fields{"user_id": id})
	}
	return user, nil
}

// fromRepo maps repository errors onto the service error taxonomy. Anything
// unexpected is logged with fields and hidden behind a generic message.
func fromRepo(err error, what string, fields logrus.Fields) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperror.NotFound(what + " not found")
	case errors.Is(err, repository.ErrPreconditionFailed):
		logrus.WithFields(fields).WithError(err).Info("precondition failed")
		return apperror.Precondition(what+" precondition failed", err)
	case unavailable(err):
		logrus.WithFields(fields).WithError(err).Warn("storage unavailable")
		return apperror.Upstream("storage unavailable, try again later", err)
	default:
		logrus.WithFields(fields).WithError(err).Error("unexpected repository error")
		return apperror.Internal(err)
	}
}

// unavailable reports connection-level failures that say nothing about the
// data itself.
func unavailable(err error) bool {
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr)
}

func fromTransition(err error) error {
	switch {
	case errors.Is(err, workflow.ErrForbidden):
		return apperror.Forbidden(err.Error())
	case errors.Is(err, workflow.ErrUnknownAction):
		return apperror.Field("decision", err.Error())
	}
	var te *workflow.TransitionError
	if !errors.As(err, &te) {
		return apperror.Validation("invalid status transition", apperror.FieldError{Field: "status", Message: err.Error()})
	}
	msg := fmt.Sprintf("cannot %s a request in %s", te.Action, te.From)
	if te.From.Terminal() {
		msg += "; the request is final"
	} else {
		sources := workflow.Sources(te.Action)
		allowed := make([]string, len(sources))
		for i, st := range sources {
			allowed[i] = string(st)
		}
		msg += "; allowed from " + strings.Join(allowed, ", ")
	}
	return apperror.Validation("invalid status transition", apperror.FieldError{Field: "status", Message: msg})
}

func uniqueIDs(ids []int64) error {
	if len(ids) == 0 {
		return apperror.Field("request_ids", "at least one id is required")
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return apperror.Field("request_ids", fmt.Sprintf("invalid id %d", id))
		}
		if seen[id] {
			return apperror.Field("request_ids", fmt.Sprintf("duplicate id %d", id))
		}
		seen[id] = true
	}
	return nil
}

func notify(ctx context.Context, n Notifier, req models.TransferRequest, recipient models.User) {
	if n == nil {
		return
	}
	if err := n.NotifyStatusChange(ctx, req, recipient); err != nil {
		logrus.WithFields(logrus.Fields{
			"transfer_request_id": req.ID,
			"recipient_id":        recipient.ID,
		}).WithError(err).Warn("status notification failed")
	}
}
