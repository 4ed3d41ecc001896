package service

import (
	"context"
	"time"

	"transfer_requests_back/internal/workflow"
	"transfer_requests_back/models"
	"transfer_requests_back/pkg/repository"
)

type fakeUsers struct {
	users map[int64]models.User
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return u, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetUsers(_ context.Context, ids []int64) (map[int64]models.User, error) {
	out := map[int64]models.User{}
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (f *fakeUsers) SetVerifiedWallet(_ context.Context, userID int64, address string) (models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return u, repository.ErrNotFound
	}
	u.WalletAddress = &address
	u.WalletVerified = true
	f.users[userID] = u
	return u, nil
}

// fakeRequests keeps requests in memory and applies the same conditional
// update rule as the database: write only if the status is unchanged.
type fakeRequests struct {
	byID map[int64]models.TransferRequest
	// writes counts successful status changes.
	writes int
	// open counts the active pending transfers of each request.
	open map[int64]int
}

func newFakeRequests(reqs ...models.TransferRequest) *fakeRequests {
	f := &fakeRequests{byID: map[int64]models.TransferRequest{}, open: map[int64]int{}}
	for _, r := range reqs {
		f.byID[r.ID] = r
	}
	return f
}

func (f *fakeRequests) Create(_ context.Context, req models.TransferRequest) (models.TransferRequest, error) {
	req.ID = int64(len(f.byID) + 1)
	req.PublicID = "new-request"
	req.IsActive = true
	req.CreatedAt = time.Now()
	f.byID[req.ID] = req
	return req, nil
}

func (f *fakeRequests) GetByPublicID(_ context.Context, publicID string) (models.TransferRequest, error) {
	for _, r := range f.byID {
		if r.PublicID == publicID {
			return r, nil
		}
	}
	return models.TransferRequest{}, repository.ErrNotFound
}

func (f *fakeRequests) GetByID(_ context.Context, id int64) (models.TransferRequest, error) {
	r, ok := f.byID[id]
	if !ok {
		return r, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeRequests) GetByIDs(_ context.Context, ids []int64) ([]models.TransferRequest, error) {
	var out []models.TransferRequest
	for _, id := range ids {
		if r, ok := f.byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequests) List(_ context.Context, filter models.TransferRequestFilter) ([]models.TransferRequest, error) {
	var out []models.TransferRequest
	for _, r := range f.byID {
		if filter.RequesterID != nil && r.RequesterID != *filter.RequesterID {
			continue
		}
		if p := filter.ParticipantID; p != nil && r.RequesterID != *p && r.ReceiverID != *p {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRequests) UpdateDetails(_ context.Context, id int64, from, to workflow.Status, input models.TransferRequestInput) (models.TransferRequest, error) {
	r := f.byID[id]
	if r.Status != from {
		return r, repository.ErrPreconditionFailed
	}
	r.Amount = input.Amount
	r.Reason = input.Reason
	r.Status = to
	f.byID[id] = r
	f.writes++
	return r, nil
}

func (f *fakeRequests) Transition(_ context.Context, id int64, from, to workflow.Status, notes *string) (models.TransferRequest, error) {
	r := f.byID[id]
	if r.Status != from || !r.IsActive {
		return r, repository.ErrPreconditionFailed
	}
	r.Status = to
	if notes != nil {
		r.Notes = notes
	}
	r.IsActive = !workflow.Deactivates(to)
	if workflow.ReleasesTransfer(to) {
		delete(f.open, id)
	}
	f.byID[id] = r
	f.writes++
	return r, nil
}

func (f *fakeRequests) Approve(ctx context.Context, id int64, from workflow.Status) (models.TransferRequest, error) {
	r, err := f.Transition(ctx, id, from, workflow.StatusApproved, nil)
	if err != nil {
		return r, err
	}
	if f.open[id] == 0 {
		f.open[id] = 1
	}
	return r, nil
}

type fakeTransfers struct {
	open       map[string]models.Transfer
	sent       map[int64]bool
	dispatched []models.DispatchItem
	confirmed  []int64
	cancelErr  error
	reasons    []string
}

func newFakeTransfers() *fakeTransfers {
	return &fakeTransfers{open: map[string]models.Transfer{}, sent: map[int64]bool{}}
}

func (f *fakeTransfers) ListByRequest(context.Context, int64) ([]models.Transfer, error) {
	return []models.Transfer{}, nil
}

func (f *fakeTransfers) GetOpenByRef(_ context.Context, ref string) (models.Transfer, error) {
	t, ok := f.open[ref]
	if !ok {
		return t, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTransfers) Dispatch(_ context.Context, _ int64, items []models.DispatchItem) error {
	f.dispatched = append(f.dispatched, items...)
	return nil
}

func (f *fakeTransfers) MarkSent(_ context.Context, _ int64, ids []int64, hash, _, _, chain string) ([]models.Transfer, error) {
	for _, id := range ids {
		if f.sent[id] {
			return nil, repository.ErrPreconditionFailed
		}
	}
	var out []models.Transfer
	for _, id := range ids {
		f.sent[id] = true
		h := hash
		c := chain
		out = append(out, models.Transfer{TransferRequestID: id, TxHash: &h, ChainName: &c, Status: models.TransferPending})
	}
	return out, nil
}

func (f *fakeTransfers) Confirm(_ context.Context, transferID, requestID int64, hash, from, to, chain string) (models.Transfer, error) {
	f.confirmed = append(f.confirmed, transferID)
	return models.Transfer{ID: transferID, TransferRequestID: requestID, Status: models.TransferCompleted,
		TxHash: &hash, FromAddress: &from, ToAddress: &to, ChainName: &chain}, nil
}

func (f *fakeTransfers) Cancel(_ context.Context, ids []int64, reason *string) ([]models.Transfer, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	if reason != nil {
		f.reasons = append(f.reasons, *reason)
	}
	out := make([]models.Transfer, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Transfer{TransferRequestID: id})
	}
	return out, nil
}

func (f *fakeTransfers) Retry(_ context.Context, requestID int64) (models.Transfer, error) {
	return models.Transfer{ID: 99, TransferRequestID: requestID, Status: models.TransferPending, IsActive: true}, nil
}

func (f *fakeTransfers) ClaimAwaitingReceipt(context.Context, int) ([]models.Transfer, error) {
	return nil, nil
}

func (f *fakeTransfers) Complete(context.Context, int64, int64) error { return nil }

func (f *fakeTransfers) Fail(context.Context, int64, int64, string) error { return nil }

type recordingNotifier struct {
	sent []workflow.Status
}

func (n *recordingNotifier) NotifyStatusChange(_ context.Context, req models.TransferRequest, _ models.User) error {
	n.sent = append(n.sent, req.Status)
	return nil
}
