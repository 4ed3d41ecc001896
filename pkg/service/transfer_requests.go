package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
	"transfer_requests_back/pkg/metrics"
	"transfer_requests_back/pkg/repository"
	"transfer_requests_back/pkg/utils"
)

type TransferRequestService struct {
	requests  repository.TransferRequests
	transfers repository.Transfers
	users     repository.Users
	notifier  Notifier
}

func NewTransferRequestService(requests repository.TransferRequests, transfers repository.Transfers,
	users repository.Users, notifier Notifier) *TransferRequestService {
	return &TransferRequestService{requests: requests, transfers: transfers, users: users, notifier: notifier}
}

func (s *TransferRequestService) Create(ctx context.Context, actor models.Actor, input models.TransferRequestInput) (models.TransferRequest, error) {
	if !workflow.Permits(actor.Role, workflow.ActionSubmit) {
		return models.TransferRequest{}, apperror.Forbidden("role cannot create transfer requests")
	}
	input.Reason = utils.SanitizeText(input.Reason)
	if err := s.validateInput(ctx, input); err != nil {
		return models.TransferRequest{}, err
	}

	status := workflow.StatusDraft
	if input.Submit {
		next, err := workflow.Next(workflow.StatusDraft, workflow.ActionSubmit, actor.Role)
		if err != nil {
			return models.TransferRequest{}, fromTransition(err)
		}
		status = next
	}

	created, err := s.requests.Create(ctx, models.TransferRequest{
		Amount:          input.Amount,
		ProgramID:       input.ProgramID,
		RequesterID:     actor.UserID,
		ReceiverID:      input.ReceiverID,
		ApproverGroupID: input.ApproverGroupID,
		Status:          status,
		Reason:          input.Reason,
	})
	if err != nil {
		return created, fromRepo(err, "transfer request", logrus.Fields{"requester_id": actor.UserID})
	}

	logrus.WithFields(logrus.Fields{
		"transfer_request_id": created.ID,
		"status":              created.Status,
		"requester_id":        actor.UserID,
	}).Info("transfer request created")
	return created, nil
}

func (s *TransferRequestService) Get(ctx context.Context, actor models.Actor, publicID string) (models.TransferRequestDetail, error) {
	req, err := s.load(ctx, actor, publicID)
	if err != nil {
		return models.TransferRequestDetail{}, err
	}
	transfers, err := s.transfers.ListByRequest(ctx, req.ID)
	if err != nil {
		return models.TransferRequestDetail{}, fromRepo(err, "transfers", logrus.Fields{"transfer_request_id": req.ID})
	}
	return models.TransferRequestDetail{TransferRequest: req, Transfers: transfers}, nil
}

// List returns active requests. Requesters only see the ones they raised or
// receive.
func (s *TransferRequestService) List(ctx context.Context, actor models.Actor, status string, limit, offset int) ([]models.TransferRequest, error) {
	filter := models.TransferRequestFilter{Limit: limit, Offset: offset}
	if actor.Role == workflow.RoleRequester {
		filter.ParticipantID = &actor.UserID
	}
	if status != "" {
		st, err := workflow.ParseStatus(status)
		if err != nil {
			return nil, apperror.Field("status", err.Error())
		}
		filter.Status = &st
	}
	reqs, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, fromRepo(err, "transfer requests", logrus.Fields{"user_id": actor.UserID})
	}
	return reqs, nil
}

func (s *TransferRequestService) Edit(ctx context.Context, actor models.Actor, publicID string, input models.TransferRequestInput) (models.TransferRequest, error) {
	req, err := s.loadOwned(ctx, actor, publicID)
	if err != nil {
		return req, err
	}
	next, err := workflow.Next(req.Status, workflow.ActionEdit, actor.Role)
	metrics.ObserveTransition(string(workflow.ActionEdit), err)
	if err != nil {
		return req, fromTransition(err)
	}
	input.Reason = utils.SanitizeText(input.Reason)
	if err := s.validateInput(ctx, input); err != nil {
		return req, err
	}

	updated, err := s.requests.UpdateDetails(ctx, req.ID, req.Status, next, input)
	if err != nil {
		return req, fromRepo(err, "transfer request", logrus.Fields{"transfer_request_id": req.ID})
	}
	return updated, nil
}

func (s *TransferRequestService) Submit(ctx context.Context, actor models.Actor, publicID string) (models.TransferRequest, error) {
	req, err := s.loadOwned(ctx, actor, publicID)
	if err != nil {
		return req, err
	}
	return s.apply(ctx, actor, req, workflow.ActionSubmit, "")
}

// Review applies an approver or compliance decision. Nobody but an admin may
// review a request they raised themselves.
func (s *TransferRequestService) Review(ctx context.Context, actor models.Actor, publicID string, input models.ReviewInput) (models.TransferRequest, error) {
	switch input.Decision {
	case workflow.ActionApprove, workflow.ActionRequestChanges, workflow.ActionReject,
		workflow.ActionBlock, workflow.ActionUnblock:
	default:
		return models.TransferRequest{}, apperror.Field("decision", "unknown decision "+string(input.Decision))
	}
	req, err := s.load(ctx, actor, publicID)
	if err != nil {
		return req, err
	}
	if req.RequesterID == actor.UserID && actor.Role != workflow.RoleAdmin {
		return req, apperror.Forbidden("cannot review your own transfer request")
	}
	return s.apply(ctx, actor, req, input.Decision, input.Reason)
}

func (s *TransferRequestService) Void(ctx context.Context, actor models.Actor, publicID string) (models.TransferRequest, error) {
	req, err := s.loadOwned(ctx, actor, publicID)
	if err != nil {
		return req, err
	}
	return s.apply(ctx, actor, req, workflow.ActionVoid, "")
}

// apply runs one workflow action against the request as last read. The
// repository only writes if the status is still the one we validated against.
func (s *TransferRequestService) apply(ctx context.Context, actor models.Actor, req models.TransferRequest,
	action workflow.Action, reason string) (models.TransferRequest, error) {
	reason = utils.SanitizeText(reason)
	if workflow.RequiresReason(action) && reason == "" {
		return req, apperror.Field("reason", "a reason is required to "+string(action))
	}

	next, err := workflow.Next(req.Status, action, actor.Role)
	if err != nil {
		metrics.ObserveTransition(string(action), err)
		return req, fromTransition(err)
	}

	var notes *string
	if reason != "" {
		notes = &reason
	}
	var updated models.TransferRequest
	if action == workflow.ActionApprove {
		updated, err = s.requests.Approve(ctx, req.ID, req.Status)
	} else {
		updated, err = s.requests.Transition(ctx, req.ID, req.Status, next, notes)
	}
	metrics.ObserveTransition(string(action), err)
	if err != nil {
		return req, fromRepo(err, "transfer request", logrus.Fields{"transfer_request_id": req.ID, "action": action})
	}

	logrus.WithFields(logrus.Fields{
		"transfer_request_id": req.ID,
		"action":              action,
		"from":                req.Status,
		"to":                  updated.Status,
		"actor_id":            actor.UserID,
	}).Info("transfer request transitioned")

	if updated.RequesterID != actor.UserID {
		if requester, err := s.users.GetUser(ctx, updated.RequesterID); err == nil {
			notify(ctx, s.notifier, updated, requester)
		}
	}
	return updated, nil
}

// load fetches an active request and hides other people's requests from
// requesters.
func (s *TransferRequestService) load(ctx context.Context, actor models.Actor, publicID string) (models.TransferRequest, error) {
	req, err := s.requests.GetByPublicID(ctx, publicID)
	if err != nil {
		return req, fromRepo(err, "transfer request", logrus.Fields{"public_id": publicID})
	}
	if !req.IsActive {
		return models.TransferRequest{}, apperror.NotFound("transfer request not found")
	}
	if actor.Role == workflow.RoleRequester && req.RequesterID != actor.UserID && req.ReceiverID != actor.UserID {
		return models.TransferRequest{}, apperror.NotFound("transfer request not found")
	}
	return req, nil
}

// loadOwned is load for changes the requester makes to their own request.
func (s *TransferRequestService) loadOwned(ctx context.Context, actor models.Actor, publicID string) (models.TransferRequest, error) {
	req, err := s.load(ctx, actor, publicID)
	if err != nil {
		return req, err
	}
	if actor.Role == workflow.RoleRequester && req.RequesterID != actor.UserID {
		return models.TransferRequest{}, apperror.Forbidden("only the requester can change this transfer request")
	}
	return req, nil
}

func (s *TransferRequestService) validateInput(ctx context.Context, input models.TransferRequestInput) error {
	if !input.Amount.IsPositive() {
		return apperror.Field("amount", "must be greater than zero")
	}
	if _, err := s.users.GetUser(ctx, input.ReceiverID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Field("receiver_id", "unknown receiver")
		}
		return fromRepo(err, "receiver", logrus.Fields{"receiver_id": input.ReceiverID})
	}
	return nil
}
