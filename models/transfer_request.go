package models

import (
	"time"

	"github.com/shopspring/decimal"

	"transfer_requests_back/internal/workflow"
)

type TransferRequest struct {
	ID              int64           `json:"-" db:"id"`
	PublicID        string          `json:"id" db:"public_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	ProgramID       int64           `json:"program_id" db:"program_id"`
	RequesterID     int64           `json:"requester_id" db:"requester_id"`
	ReceiverID      int64           `json:"receiver_id" db:"receiver_id"`
	ApproverGroupID int64           `json:"approver_group_id" db:"approver_group_id"`
	Status          workflow.Status `json:"status" db:"status"`
	Reason          string          `json:"reason" db:"reason"`
	Notes           *string         `json:"notes,omitempty" db:"notes"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

type TransferRequestDetail struct {
	TransferRequest
	Transfers []Transfer `json:"transfers"`
}

type TransferRequestInput struct {
	Amount          decimal.Decimal `json:"amount"`
	ProgramID       int64           `json:"program_id" binding:"required,gt=0"`
	ReceiverID      int64           `json:"receiver_id" binding:"required,gt=0"`
	ApproverGroupID int64           `json:"approver_group_id" binding:"required,gt=0"`
	Reason          string          `json:"reason" binding:"max=2000"`
	Submit          bool            `json:"submit"`
}

type TransferRequestFilter struct {
	RequesterID *int64
	// ParticipantID matches requests the user either raised or receives.
	ParticipantID *int64
	Status        *workflow.Status
	Limit         int
	Offset        int
}

type ReviewInput struct {
	Decision workflow.Action `json:"decision" binding:"required,oneof=approve request_changes reject block unblock"`
	Reason   string          `json:"reason" binding:"max=2000"`
}
