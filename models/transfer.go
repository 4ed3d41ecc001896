package models

import "time"

type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferCompleted TransferStatus = "COMPLETED"
	TransferFailed    TransferStatus = "FAILED"
)

type Transfer struct {
	ID                int64          `json:"id" db:"id"`
	TransferRequestID int64          `json:"transfer_request_id" db:"transfer_request_id"`
	Status            TransferStatus `json:"status" db:"status"`
	TxHash            *string        `json:"tx_hash,omitempty" db:"tx_hash"`
	FromAddress       *string        `json:"from_address,omitempty" db:"from_address"`
	ToAddress         *string        `json:"to_address,omitempty" db:"to_address"`
	ControllerID      *int64         `json:"controller_id,omitempty" db:"controller_id"`
	TransferRef       *string        `json:"transfer_ref,omitempty" db:"transfer_ref"`
	ChainName         *string        `json:"chain_name,omitempty" db:"chain_name"`
	IsActive          bool           `json:"is_active" db:"is_active"`
	Notes             *string        `json:"notes,omitempty" db:"notes"`
	LastCheckedAt     *time.Time     `json:"last_checked_at,omitempty" db:"last_checked_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// Sent reports whether the transfer has been broadcast.
func (t Transfer) Sent() bool {
	return t.TxHash != nil && *t.TxHash != ""
}
