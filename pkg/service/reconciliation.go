package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"transfer_requests_back/internal/identifier"
	"transfer_requests_back/internal/wallet"
	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
	"transfer_requests_back/pkg/metrics"
	"transfer_requests_back/pkg/repository"
	"transfer_requests_back/pkg/utils"
)

type ReconciliationService struct {
	requests  repository.TransferRequests
	transfers repository.Transfers
	users     repository.Users
	notifier  Notifier
	env       string
	decimals  map[string]int32
}

func NewReconciliationService(requests repository.TransferRequests, transfers repository.Transfers,
	users repository.Users, notifier Notifier, opts Options) *ReconciliationService {
	return &ReconciliationService{
		requests:  requests,
		transfers: transfers,
		users:     users,
		notifier:  notifier,
		env:       opts.Env,
		decimals:  opts.TokenDecimals,
	}
}

// Dispatch stamps every approved request in the batch with its payment
// reference and moves it to PROCESSING. Chain payouts get a generated payment
// identifier, manual payouts carry the controller's own reference.
func (s *ReconciliationService) Dispatch(ctx context.Context, actor models.Actor, input models.DispatchInput) ([]models.DispatchItem, error) {
	var err error
	defer func() { metrics.ObserveReconciliation("dispatch", err) }()

	if !workflow.Permits(actor.Role, workflow.ActionDispatch) {
		err = apperror.Forbidden("role cannot dispatch transfers")
		return nil, err
	}
	if err = uniqueIDs(input.RequestIDs); err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(input.Reference)
	switch input.Method {
	case models.DispatchChain:
	case models.DispatchManual:
		if reference == "" {
			err = apperror.Field("reference", "required for manual payouts")
			return nil, err
		}
		if identifier.IsPaymentIdentifier(reference) {
			err = apperror.Field("reference", "must not use the payment identifier prefix")
			return nil, err
		}
	default:
		err = apperror.Field("method", "must be chain or manual")
		return nil, err
	}

	reqs, rerr := s.requests.GetByIDs(ctx, input.RequestIDs)
	if rerr != nil {
		err = fromRepo(rerr, "transfer requests", logrus.Fields{"request_ids": input.RequestIDs})
		return nil, err
	}
	if len(reqs) != len(input.RequestIDs) {
		err = apperror.Precondition("unknown transfer request in batch", repository.ErrNotFound)
		return nil, err
	}

	userIDs := make([]int64, 0, 2*len(reqs))
	for _, req := range reqs {
		if _, terr := workflow.Next(req.Status, workflow.ActionDispatch, actor.Role); terr != nil || !req.IsActive {
			err = apperror.Precondition(fmt.Sprintf("transfer request %d cannot be dispatched", req.ID), terr)
			return nil, err
		}
		userIDs = append(userIDs, req.ReceiverID, req.RequesterID)
	}
	users, uerr := s.users.GetUsers(ctx, userIDs)
	if uerr != nil {
		err = fromRepo(uerr, "users", logrus.Fields{"request_ids": input.RequestIDs})
		return nil, err
	}

	items := make([]models.DispatchItem, 0, len(reqs))
	for _, req := range reqs {
		receiver := users[req.ReceiverID]
		item := models.DispatchItem{RequestID: req.ID, TransferRef: reference}
		if receiver.WalletVerified && receiver.WalletAddress != nil {
			to := *receiver.WalletAddress
			item.ToAddress = &to
		}
		if input.Method == models.DispatchChain {
			if item.ToAddress == nil {
				err = apperror.Precondition(fmt.Sprintf("receiver of transfer request %d has no verified wallet", req.ID), nil)
				return nil, err
			}
			ref, gerr := identifier.Generate(s.env, *item.ToAddress, req.Amount, req.CreatedAt, users[req.RequesterID].Email)
			if gerr != nil {
				err = apperror.Precondition(fmt.Sprintf("transfer request %d: %v", req.ID, gerr), gerr)
				return nil, err
			}
			item.TransferRef = ref
		}
		items = append(items, item)
	}

	if derr := s.transfers.Dispatch(ctx, actor.UserID, items); derr != nil {
		err = fromRepo(derr, "dispatch", logrus.Fields{"request_ids": input.RequestIDs})
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"request_ids":   input.RequestIDs,
		"method":        input.Method,
		"controller_id": actor.UserID,
	}).Info("transfers dispatched")
	return items, nil
}

// TransfersPaymentSent records the broadcast hash on every listed request's
// unconfirmed transfer. Either all of them match or nothing changes.
func (s *ReconciliationService) TransfersPaymentSent(ctx context.Context, actor models.Actor, input models.PaymentSentInput) ([]models.Transfer, error) {
	var err error
	defer func() { metrics.ObserveReconciliation("payment_sent", err) }()

	if !workflow.Permits(actor.Role, workflow.ActionMarkPaid) {
		err = apperror.Forbidden("role cannot record payments")
		return nil, err
	}
	if err = uniqueIDs(input.RequestIDs); err != nil {
		return nil, err
	}
	chain := strings.TrimSpace(input.ChainName)
	if _, ok := s.decimals[chain]; !ok {
		err = apperror.Field("chain_name", "unknown chain "+chain)
		return nil, err
	}
	hash, from, to, verr := normalizePayment(input.Hash, input.From, input.To)
	if verr != nil {
		err = verr
		return nil, err
	}

	updated, rerr := s.transfers.MarkSent(ctx, actor.UserID, input.RequestIDs, hash, from, to, chain)
	if rerr != nil {
		err = fromRepo(rerr, "payment sent", logrus.Fields{"request_ids": input.RequestIDs, "tx_hash": hash})
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"request_ids":   input.RequestIDs,
		"tx_hash":       hash,
		"chain":         chain,
		"controller_id": actor.UserID,
	}).Info("payment sent recorded")
	return updated, nil
}

// TransferPaymentConfirm finalises the transfer a Forward event pays for.
// The event must name an unconfirmed transfer and agree with it on recipient
// and amount.
func (s *ReconciliationService) TransferPaymentConfirm(ctx context.Context, event models.ChainEvent) (models.Transfer, error) {
	var err error
	defer func() { metrics.ObserveReconciliation("payment_confirm", err) }()

	fields := logrus.Fields{"chain": event.ChainName, "payment_id": event.ID, "tx_hash": event.TransactionHash}

	decimals, ok := s.decimals[event.ChainName]
	if !ok {
		err = apperror.Field("chainName", "unknown chain "+event.ChainName)
		return models.Transfer{}, err
	}
	if !identifier.Pattern.MatchString(event.ID) {
		err = apperror.Field("id", "not a payment identifier")
		return models.Transfer{}, err
	}
	hash, from, to, verr := normalizePayment(event.TransactionHash, event.From, event.To)
	if verr != nil {
		err = verr
		return models.Transfer{}, err
	}
	value, derr := decimal.NewFromString(strings.TrimSpace(event.Value))
	if derr != nil || value.IsNegative() || !value.Equal(value.Truncate(0)) {
		err = apperror.Field("value", "must be a non-negative integer amount")
		return models.Transfer{}, err
	}

	t, rerr := s.transfers.GetOpenByRef(ctx, event.ID)
	if rerr != nil {
		if errors.Is(rerr, repository.ErrNotFound) {
			err = apperror.Precondition("no unconfirmed transfer for payment identifier", rerr)
		} else {
			err = fromRepo(rerr, "transfer", fields)
		}
		return models.Transfer{}, err
	}
	fields["transfer_id"] = t.ID
	fields["transfer_request_id"] = t.TransferRequestID

	if t.ToAddress != nil && *t.ToAddress != to {
		err = apperror.Precondition("recipient does not match transfer", repository.ErrPreconditionFailed)
		return models.Transfer{}, err
	}
	req, rerr := s.requests.GetByID(ctx, t.TransferRequestID)
	if rerr != nil {
		err = fromRepo(rerr, "transfer request", fields)
		return models.Transfer{}, err
	}
	if expected := req.Amount.Shift(decimals); !value.Equal(expected) {
		err = apperror.Precondition(fmt.Sprintf("value %s does not match expected %s", value, expected), repository.ErrPreconditionFailed)
		return models.Transfer{}, err
	}

	confirmed, rerr := s.transfers.Confirm(ctx, t.ID, req.ID, hash, from, to, event.ChainName)
	if rerr != nil {
		err = fromRepo(rerr, "transfer confirmation", fields)
		return models.Transfer{}, err
	}
	logrus.WithFields(fields).Info("transfer confirmed on chain")

	req.Status = workflow.StatusPaid
	if receiver, uerr := s.users.GetUser(ctx, req.ReceiverID); uerr == nil {
		notify(ctx, s.notifier, req, receiver)
	}
	return confirmed, nil
}

// ManualConfirm lets an operator replay a chain event the listener missed.
func (s *ReconciliationService) ManualConfirm(ctx context.Context, actor models.Actor, event models.ChainEvent) (models.Transfer, error) {
	if actor.Role != workflow.RoleAdmin {
		return models.Transfer{}, apperror.Forbidden("only admins can confirm payments manually")
	}
	logrus.WithFields(logrus.Fields{"payment_id": event.ID, "admin_id": actor.UserID}).Info("manual payment confirmation")
	return s.TransferPaymentConfirm(ctx, event)
}

// CancelTransfers withdraws the open transfer of every listed request. The
// batch fails as a whole if any request already carries a payment identifier
// or has no open transfer.
func (s *ReconciliationService) CancelTransfers(ctx context.Context, actor models.Actor, input models.CancelInput) ([]models.Transfer, error) {
	var err error
	defer func() { metrics.ObserveReconciliation("cancel", err) }()

	if !workflow.Permits(actor.Role, workflow.ActionCancel) {
		err = apperror.Forbidden("role cannot cancel transfers")
		return nil, err
	}
	if err = uniqueIDs(input.RequestIDs); err != nil {
		return nil, err
	}
	reason := utils.SanitizeText(input.Reason)
	if reason == "" {
		err = apperror.Field("reason", "required to cancel transfers")
		return nil, err
	}

	cancelled, rerr := s.transfers.Cancel(ctx, input.RequestIDs, &reason)
	if rerr != nil {
		err = fromRepo(rerr, "cancel", logrus.Fields{"request_ids": input.RequestIDs})
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"request_ids":   input.RequestIDs,
		"controller_id": actor.UserID,
	}).Info("transfers cancelled")
	return cancelled, nil
}

// RetryTransfer opens a fresh pending transfer for an approved request whose
// previous transfer was cancelled or failed.
func (s *ReconciliationService) RetryTransfer(ctx context.Context, actor models.Actor, requestID int64) (models.Transfer, error) {
	var err error
	defer func() { metrics.ObserveReconciliation("retry", err) }()

	if !workflow.Permits(actor.Role, workflow.ActionDispatch) {
		err = apperror.Forbidden("role cannot retry transfers")
		return models.Transfer{}, err
	}
	t, rerr := s.transfers.Retry(ctx, requestID)
	if rerr != nil {
		err = fromRepo(rerr, "retry", logrus.Fields{"transfer_request_id": requestID})
		return t, err
	}
	logrus.WithFields(logrus.Fields{"transfer_request_id": requestID, "transfer_id": t.ID}).Info("transfer retried")
	return t, nil
}

func normalizePayment(hash, from, to string) (string, string, string, error) {
	var fields []apperror.FieldError
	h, err := wallet.NormalizeTxHash(hash)
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "hash", Message: err.Error()})
	}
	f, err := wallet.NormalizeAddress(from)
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "from", Message: err.Error()})
	}
	t, err := wallet.NormalizeAddress(to)
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "to", Message: err.Error()})
	}
	if len(fields) > 0 {
		return "", "", "", apperror.Validation("validation failed", fields...)
	}
	return h, f, t, nil
}
