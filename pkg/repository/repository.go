package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrPreconditionFailed means a conditional update matched fewer rows than
	// required; the whole operation was rolled back.
	ErrPreconditionFailed = errors.New("precondition failed")
)

type Users interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
	GetUsers(ctx context.Context, ids []int64) (map[int64]models.User, error)
	SetVerifiedWallet(ctx context.Context, userID int64, address string) (models.User, error)
}

type TransferRequests interface {
	Create(ctx context.Context, req models.TransferRequest) (models.TransferRequest, error)
	GetByPublicID(ctx context.Context, publicID string) (models.TransferRequest, error)
	GetByID(ctx context.Context, id int64) (models.TransferRequest, error)
	GetByIDs(ctx context.Context, ids []int64) ([]models.TransferRequest, error)
	List(ctx context.Context, filter models.TransferRequestFilter) ([]models.TransferRequest, error)
	UpdateDetails(ctx context.Context, id int64, from, to workflow.Status, input models.TransferRequestInput) (models.TransferRequest, error)
	Transition(ctx context.Context, id int64, from, to workflow.Status, notes *string) (models.TransferRequest, error)
	Approve(ctx context.Context, id int64, from workflow.Status) (models.TransferRequest, error)
}

type Transfers interface {
	ListByRequest(ctx context.Context, requestID int64) ([]models.Transfer, error)
	GetOpenByRef(ctx context.Context, ref string) (models.Transfer, error)
	Dispatch(ctx context.Context, controllerID int64, items []models.DispatchItem) error
	MarkSent(ctx context.Context, controllerID int64, requestIDs []int64, hash, from, to, chain string) ([]models.Transfer, error)
	Confirm(ctx context.Context, transferID, requestID int64, hash, from, to, chain string) (models.Transfer, error)
	Cancel(ctx context.Context, requestIDs []int64, reason *string) ([]models.Transfer, error)
	Retry(ctx context.Context, requestID int64) (models.Transfer, error)
	ClaimAwaitingReceipt(ctx context.Context, limit int) ([]models.Transfer, error)
	Complete(ctx context.Context, transferID, requestID int64) error
	Fail(ctx context.Context, transferID, requestID int64, notes string) error
}

type Repository struct {
	Users
	TransferRequests
	Transfers
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		Users:            NewUsersPostgres(db),
		TransferRequests: NewTransferRequestsPostgres(db),
		Transfers:        NewTransfersPostgres(db),
	}
}
