package models

import (
	"time"

	"transfer_requests_back/internal/workflow"
)

type User struct {
	ID             int64         `json:"id" db:"id"`
	Email          string        `json:"email" db:"email"`
	Name           string        `json:"name" db:"name"`
	RoleID         workflow.Role `json:"role_id" db:"role_id"`
	WalletAddress  *string       `json:"wallet_address,omitempty" db:"wallet_address"`
	WalletVerified bool          `json:"wallet_verified" db:"wallet_verified"`
	IsActive       bool          `json:"is_active" db:"is_active"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// Actor is the authenticated caller of a core operation. Handlers build it
// from the request and pass it down explicitly.
type Actor struct {
	UserID int64
	Email  string
	Role   workflow.Role
}

func (u User) Actor() Actor {
	return Actor{UserID: u.ID, Email: u.Email, Role: u.RoleID}
}

type WalletVerifyInput struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}
