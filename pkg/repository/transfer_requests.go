package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
)

const requestColumns = `id, public_id, amount, program_id, requester_id, receiver_id, approver_group_id,
        status, reason, notes, is_active, created_at, updated_at`

type TransferRequestsPostgres struct {
	db *sqlx.DB
}

func NewTransferRequestsPostgres(db *sqlx.DB) *TransferRequestsPostgres {
	return &TransferRequestsPostgres{db: db}
}

func (r *TransferRequestsPostgres) Create(ctx context.Context, req models.TransferRequest) (models.TransferRequest, error) {
	var created models.TransferRequest
	query := `
        INSERT INTO transfer_requests
            (public_id, amount, program_id, requester_id, receiver_id, approver_group_id, status, reason, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
        RETURNING ` + requestColumns
	err := r.db.GetContext(ctx, &created, query,
		uuid.NewString(),
		req.Amount,
		req.ProgramID,
		req.RequesterID,
		req.ReceiverID,
		req.ApproverGroupID,
		req.Status,
		req.Reason,
	)
	return created, errors.Wrap(err, "create transfer request")
}

func (r *TransferRequestsPostgres) GetByPublicID(ctx context.Context, publicID string) (models.TransferRequest, error) {
	var req models.TransferRequest
	query := `SELECT ` + requestColumns + ` FROM transfer_requests WHERE public_id = $1`
	err := r.db.GetContext(ctx, &req, query, publicID)
	if errors.Is(err, sql.ErrNoRows) {
		return req, ErrNotFound
	}
	return req, errors.Wrap(err, "get transfer request")
}

func (r *TransferRequestsPostgres) GetByID(ctx context.Context, id int64) (models.TransferRequest, error) {
	var req models.TransferRequest
	query := `SELECT ` + requestColumns + ` FROM transfer_requests WHERE id = $1`
	err := r.db.GetContext(ctx, &req, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return req, ErrNotFound
	}
	return req, errors.Wrap(err, "get transfer request")
}

func (r *TransferRequestsPostgres) GetByIDs(ctx context.Context, ids []int64) ([]models.TransferRequest, error) {
	var reqs []models.TransferRequest
	query := `SELECT ` + requestColumns + ` FROM transfer_requests WHERE id = ANY($1) ORDER BY id`
	err := r.db.SelectContext(ctx, &reqs, query, pq.Array(ids))
	return reqs, errors.Wrap(err, "get transfer requests")
}

func (r *TransferRequestsPostgres) List(ctx context.Context, filter models.TransferRequestFilter) ([]models.TransferRequest, error) {
	var (
		where = []string{"is_active"}
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.RequesterID != nil {
		where = append(where, "requester_id = "+arg(*filter.RequesterID))
	}
	if filter.ParticipantID != nil {
		id := arg(*filter.ParticipantID)
		where = append(where, "(requester_id = "+id+" OR receiver_id = "+id+")")
	}
	if filter.Status != nil {
		where = append(where, "status = "+arg(*filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + requestColumns + ` FROM transfer_requests WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(filter.Offset)

	reqs := []models.TransferRequest{}
	err := r.db.SelectContext(ctx, &reqs, query, args...)
	return reqs, errors.Wrap(err, "list transfer requests")
}

// UpdateDetails rewrites the editable fields, only if the request is still in from.
func (r *TransferRequestsPostgres) UpdateDetails(ctx context.Context, id int64, from, to workflow.Status, input models.TransferRequestInput) (models.TransferRequest, error) {
	var req models.TransferRequest
	query := `
        UPDATE transfer_requests
        SET amount = $1, program_id = $2, receiver_id = $3, approver_group_id = $4, reason = $5,
            status = $6, updated_at = now()
        WHERE id = $7 AND status = $8 AND is_active
        RETURNING ` + requestColumns
	err := r.db.GetContext(ctx, &req, query,
		input.Amount, input.ProgramID, input.ReceiverID, input.ApproverGroupID, input.Reason,
		to, id, from)
	if errors.Is(err, sql.ErrNoRows) {
		return req, errors.Wrapf(ErrPreconditionFailed, "request %d is no longer %s", id, from)
	}
	return req, errors.Wrap(err, "update transfer request")
}

// Transition moves the request from -> to. Nothing is written when another
// caller changed the status first. Entering a status that releases the
// request's funds also deactivates its open transfer in the same transaction.
func (r *TransferRequestsPostgres) Transition(ctx context.Context, id int64, from, to workflow.Status, notes *string) (models.TransferRequest, error) {
	var req models.TransferRequest
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
            UPDATE transfer_requests
            SET status = $1, notes = COALESCE($2, notes), is_active = $3, updated_at = now()
            WHERE id = $4 AND status = $5 AND is_active
            RETURNING ` + requestColumns
		err := tx.GetContext(ctx, &req, query, to, notes, !workflow.Deactivates(to), id, from)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrPreconditionFailed, "request %d is no longer %s", id, from)
		}
		if err != nil {
			return errors.Wrap(err, "transition transfer request")
		}
		if !workflow.ReleasesTransfer(to) {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
            UPDATE transfers SET is_active = false, notes = COALESCE($1, notes), updated_at = now()
            WHERE transfer_request_id = $2 AND `+openTransfer, notes, id)
		return errors.Wrap(err, "release open transfer")
	})
	return req, err
}

// Approve marks the request approved and opens its pending transfer in the
// same transaction. An open transfer left from an earlier approval is kept
// rather than duplicated.
func (r *TransferRequestsPostgres) Approve(ctx context.Context, id int64, from workflow.Status) (models.TransferRequest, error) {
	var req models.TransferRequest
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
            UPDATE transfer_requests
            SET status = $1, updated_at = now()
            WHERE id = $2 AND status = $3 AND is_active
            RETURNING ` + requestColumns
		err := tx.GetContext(ctx, &req, query, workflow.StatusApproved, id, from)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrPreconditionFailed, "request %d is no longer %s", id, from)
		}
		if err != nil {
			return errors.Wrap(err, "approve transfer request")
		}

		_, err = tx.ExecContext(ctx, `
            INSERT INTO transfers (transfer_request_id, status, is_active)
            SELECT $1, $2::text, true
            WHERE NOT EXISTS (
                SELECT 1 FROM transfers WHERE transfer_request_id = $1 AND is_active AND status = 'PENDING'
            )`, id, models.TransferPending)
		return errors.Wrap(err, "open transfer")
	})
	return req, err
}
