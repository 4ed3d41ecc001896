package models

const (
	DispatchChain  = "chain"
	DispatchManual = "manual"
)

type DispatchInput struct {
	RequestIDs []int64 `json:"request_ids" binding:"required,min=1,dive,gt=0"`
	Method     string  `json:"method" binding:"required,oneof=chain manual"`
	Reference  string  `json:"reference" binding:"max=128"`
}

// DispatchItem is what the repository needs to move one approved request
// into processing.
type DispatchItem struct {
	RequestID   int64   `json:"request_id"`
	TransferRef string  `json:"transfer_ref"`
	ToAddress   *string `json:"to_address,omitempty"`
}

type PaymentSentInput struct {
	RequestIDs []int64 `json:"request_ids" binding:"required,min=1,dive,gt=0"`
	Hash       string  `json:"hash" binding:"required"`
	From       string  `json:"from" binding:"required"`
	To         string  `json:"to" binding:"required"`
	ChainName  string  `json:"chain_name" binding:"required"`
}

type CancelInput struct {
	RequestIDs []int64 `json:"request_ids" binding:"required,min=1,dive,gt=0"`
	Reason     string  `json:"reason" binding:"required,max=2000"`
}

type RetryInput struct {
	RequestID int64 `json:"request_id" binding:"required,gt=0"`
}

// ChainEvent is a Forward event observed on chain, or the same shape posted
// by an admin for manual reconciliation. Value is the raw token amount in the
// token's smallest unit.
type ChainEvent struct {
	ChainName       string `json:"chainName" binding:"required"`
	ID              string `json:"id" binding:"required"`
	From            string `json:"from" binding:"required"`
	To              string `json:"to" binding:"required"`
	Value           string `json:"value" binding:"required"`
	TransactionHash string `json:"transactionHash" binding:"required"`
}
