package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"transfer_requests_back/internal/identifier"
	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
)

const transferColumns = `id, transfer_request_id, status, tx_hash, from_address, to_address, controller_id,
        transfer_ref, chain_name, is_active, notes, last_checked_at, created_at, updated_at`

// openTransfer selects the single transfer of a request that may still be
// dispatched, sent or cancelled.
const openTransfer = `is_active AND status = 'PENDING' AND tx_hash IS NULL`

type TransfersPostgres struct {
	db *sqlx.DB
}

func NewTransfersPostgres(db *sqlx.DB) *TransfersPostgres {
	return &TransfersPostgres{db: db}
}

func (r *TransfersPostgres) ListByRequest(ctx context.Context, requestID int64) ([]models.Transfer, error) {
	transfers := []models.Transfer{}
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE transfer_request_id = $1 ORDER BY id`
	err := r.db.SelectContext(ctx, &transfers, query, requestID)
	return transfers, errors.Wrap(err, "list transfers")
}

func (r *TransfersPostgres) GetOpenByRef(ctx context.Context, ref string) (models.Transfer, error) {
	var t models.Transfer
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE transfer_ref = $1 AND ` + openTransfer
	err := r.db.GetContext(ctx, &t, query, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, errors.Wrap(err, "get transfer by ref")
}

// Dispatch moves every request APPROVED -> PROCESSING and stamps its open
// transfer with the payment reference. One stale item rolls back the batch.
func (r *TransfersPostgres) Dispatch(ctx context.Context, controllerID int64, items []models.DispatchItem) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, item := range items {
			res, err := tx.ExecContext(ctx, `
                UPDATE transfer_requests SET status = $1, updated_at = now()
                WHERE id = $2 AND status = $3 AND is_active`,
				workflow.StatusProcessing, item.RequestID, workflow.StatusApproved)
			if err != nil {
				return errors.Wrap(err, "dispatch request")
			}
			if err := expectOne(res, "dispatch request"); err != nil {
				return err
			}

			res, err = tx.ExecContext(ctx, `
                UPDATE transfers SET transfer_ref = $1, to_address = $2, controller_id = $3, updated_at = now()
                WHERE transfer_request_id = $4 AND transfer_ref IS NULL AND `+openTransfer,
				item.TransferRef, item.ToAddress, controllerID, item.RequestID)
			if err != nil {
				return errors.Wrap(err, "dispatch transfer")
			}
			if err := expectOne(res, "dispatch transfer"); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkSent records the broadcast hash and the chain it went out on for the
// controller's unconfirmed transfers. Every requested id must match,
// otherwise nothing is written.
func (r *TransfersPostgres) MarkSent(ctx context.Context, controllerID int64, requestIDs []int64, hash, from, to, chain string) ([]models.Transfer, error) {
	var updated []models.Transfer
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
            UPDATE transfers SET tx_hash = $1, from_address = $2, to_address = $3, chain_name = $4, updated_at = now()
            WHERE transfer_request_id = ANY($5) AND controller_id = $6 AND ` + openTransfer + `
            RETURNING ` + transferColumns
		if err := tx.SelectContext(ctx, &updated, query, hash, from, to, chain, pq.Array(requestIDs), controllerID); err != nil {
			return errors.Wrap(err, "mark transfers sent")
		}
		return matchesAll(updated, requestIDs, "mark transfers sent")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Confirm finalises a transfer seen on chain and marks its request paid.
func (r *TransfersPostgres) Confirm(ctx context.Context, transferID, requestID int64, hash, from, to, chain string) (models.Transfer, error) {
	var t models.Transfer
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
            UPDATE transfers
            SET tx_hash = $1, from_address = $2, to_address = $3, chain_name = $4, status = $5, updated_at = now()
            WHERE id = $6 AND ` + openTransfer + `
            RETURNING ` + transferColumns
		err := tx.GetContext(ctx, &t, query, hash, from, to, chain, models.TransferCompleted, transferID)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrPreconditionFailed, "transfer %d is already confirmed", transferID)
		}
		if err != nil {
			return errors.Wrap(err, "confirm transfer")
		}
		return markPaid(ctx, tx, requestID)
	})
	return t, err
}

// Cancel deactivates the open transfer of every request. A request whose
// transfer already carries a payment identifier cannot be cancelled since
// the reference may already be in flight.
func (r *TransfersPostgres) Cancel(ctx context.Context, requestIDs []int64, reason *string) ([]models.Transfer, error) {
	var cancelled []models.Transfer
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
            UPDATE transfers SET is_active = false, notes = COALESCE($1, notes), updated_at = now()
            WHERE transfer_request_id = ANY($2) AND ` + openTransfer + `
              AND (transfer_ref IS NULL OR transfer_ref NOT LIKE $3)
              AND transfer_request_id IN (
                  SELECT id FROM transfer_requests WHERE status IN ($4, $5) AND is_active
              )
            RETURNING ` + transferColumns
		err := tx.SelectContext(ctx, &cancelled, query,
			reason, pq.Array(requestIDs), identifier.PrefixProduction+"%",
			workflow.StatusApproved, workflow.StatusProcessing)
		if err != nil {
			return errors.Wrap(err, "cancel transfers")
		}
		if err := matchesAll(cancelled, requestIDs, "cancel transfers"); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
            UPDATE transfer_requests SET status = $1, notes = COALESCE($2, notes), updated_at = now()
            WHERE id = ANY($3) AND status = $4 AND is_active`,
			workflow.StatusApproved, reason, pq.Array(requestIDs), workflow.StatusProcessing)
		return errors.Wrap(err, "revert cancelled requests")
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// Retry opens a new pending transfer for an approved request that has none.
func (r *TransfersPostgres) Retry(ctx context.Context, requestID int64) (models.Transfer, error) {
	var t models.Transfer
	query := `
        INSERT INTO transfers (transfer_request_id, status, is_active)
        SELECT id, $2::text, true FROM transfer_requests
        WHERE id = $1 AND status = $3 AND is_active
          AND NOT EXISTS (SELECT 1 FROM transfers WHERE transfer_request_id = $1 AND ` + openTransfer + `)
        RETURNING ` + transferColumns
	err := r.db.GetContext(ctx, &t, query, requestID, models.TransferPending, workflow.StatusApproved)
	if errors.Is(err, sql.ErrNoRows) {
		return t, errors.Wrapf(ErrPreconditionFailed, "request %d cannot take a new transfer", requestID)
	}
	return t, errors.Wrap(err, "retry transfer")
}

// ClaimAwaitingReceipt picks the sent transfers checked least recently and
// stamps them as checked, so transfers whose receipt never shows up rotate to
// the back of the queue instead of starving newer ones.
func (r *TransfersPostgres) ClaimAwaitingReceipt(ctx context.Context, limit int) ([]models.Transfer, error) {
	transfers := []models.Transfer{}
	query := `
        UPDATE transfers SET last_checked_at = now()
        WHERE id IN (
            SELECT id FROM transfers
            WHERE is_active AND status = 'PENDING' AND tx_hash IS NOT NULL
            ORDER BY last_checked_at NULLS FIRST, id
            LIMIT $1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + transferColumns
	err := r.db.SelectContext(ctx, &transfers, query, limit)
	return transfers, errors.Wrap(err, "claim transfers awaiting receipt")
}

func (r *TransfersPostgres) Complete(ctx context.Context, transferID, requestID int64) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
            UPDATE transfers SET status = $1, updated_at = now()
            WHERE id = $2 AND is_active AND status = 'PENDING' AND tx_hash IS NOT NULL`,
			models.TransferCompleted, transferID)
		if err != nil {
			return errors.Wrap(err, "complete transfer")
		}
		if err := expectOne(res, "complete transfer"); err != nil {
			return err
		}
		return markPaid(ctx, tx, requestID)
	})
}

// Fail records a reverted transfer and hands the request back to the
// controllers as APPROVED so a retry can be opened.
func (r *TransfersPostgres) Fail(ctx context.Context, transferID, requestID int64, notes string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
            UPDATE transfers SET status = $1, notes = $2, updated_at = now()
            WHERE id = $3 AND is_active AND status = 'PENDING'`,
			models.TransferFailed, notes, transferID)
		if err != nil {
			return errors.Wrap(err, "fail transfer")
		}
		if err := expectOne(res, "fail transfer"); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
            UPDATE transfer_requests SET status = $1, notes = $2, updated_at = now()
            WHERE id = $3 AND status = $4 AND is_active`,
			workflow.StatusApproved, notes, requestID, workflow.StatusProcessing)
		if err != nil {
			return errors.Wrap(err, "revert failed request")
		}
		return expectOne(res, "revert failed request")
	})
}

func markPaid(ctx context.Context, tx *sqlx.Tx, requestID int64) error {
	res, err := tx.ExecContext(ctx, `
        UPDATE transfer_requests SET status = $1, updated_at = now()
        WHERE id = $2 AND status = $3 AND is_active`,
		workflow.StatusPaid, requestID, workflow.StatusProcessing)
	if err != nil {
		return errors.Wrap(err, "mark request paid")
	}
	return expectOne(res, "mark request paid")
}

// matchesAll checks that the updated rows cover every requested id.
func matchesAll(updated []models.Transfer, requestIDs []int64, what string) error {
	seen := make(map[int64]bool, len(updated))
	for _, t := range updated {
		seen[t.TransferRequestID] = true
	}
	if len(seen) != len(requestIDs) {
		return errors.Wrapf(ErrPreconditionFailed, "%s: matched %d of %d requests", what, len(seen), len(requestIDs))
	}
	return nil
}
