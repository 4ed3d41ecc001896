package sweeper

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer_requests_back/models"
	"transfer_requests_back/pkg/chainclient"
)

// fakeStore claims like the database does: never checked first, then the
// oldest check, ties broken by id.
type fakeStore struct {
	transfers []models.Transfer
	completed []int64
	failed    []int64
	clock     int64
}

func (f *fakeStore) ClaimAwaitingReceipt(_ context.Context, limit int) ([]models.Transfer, error) {
	sort.SliceStable(f.transfers, func(i, j int) bool {
		a, b := f.transfers[i].LastCheckedAt, f.transfers[j].LastCheckedAt
		switch {
		case a == nil && b == nil:
			return f.transfers[i].ID < f.transfers[j].ID
		case a == nil || b == nil:
			return a == nil
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return f.transfers[i].ID < f.transfers[j].ID
	})
	if limit > len(f.transfers) {
		limit = len(f.transfers)
	}
	f.clock++
	checked := time.Unix(f.clock, 0)
	claimed := make([]models.Transfer, 0, limit)
	for i := 0; i < limit; i++ {
		f.transfers[i].LastCheckedAt = &checked
		claimed = append(claimed, f.transfers[i])
	}
	return claimed, nil
}

func (f *fakeStore) Complete(_ context.Context, transferID, _ int64) error {
	f.completed = append(f.completed, transferID)
	for i, t := range f.transfers {
		if t.ID == transferID {
			f.transfers = append(f.transfers[:i], f.transfers[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) Fail(_ context.Context, transferID, _ int64, _ string) error {
	f.failed = append(f.failed, transferID)
	return nil
}

type mapChecker map[string]chainclient.ReceiptStatus

func (m mapChecker) ReceiptStatus(_ context.Context, hash string) (chainclient.ReceiptStatus, error) {
	switch hash {
	case "0xslow":
		return chainclient.ReceiptPending, chainclient.ErrTimeout
	case "0xbroken":
		return chainclient.ReceiptPending, errors.New("boom")
	}
	return m[hash], nil
}

func sent(id int64, hash string, chain *string) models.Transfer {
	return models.Transfer{ID: id, TransferRequestID: id * 10, TxHash: &hash, ChainName: chain, Status: models.TransferPending}
}

func TestSweep(t *testing.T) {
	other := "base"
	store := &fakeStore{transfers: []models.Transfer{
		sent(1, "0xok", nil),
		sent(2, "0xreverted", nil),
		sent(3, "0xwaiting", nil),
		sent(4, "0xslow", nil),
		sent(5, "0xbroken", nil),
		sent(6, "0xok", &other),
	}}
	checker := mapChecker{
		"0xok":       chainclient.ReceiptSuccess,
		"0xreverted": chainclient.ReceiptFailed,
		"0xwaiting":  chainclient.ReceiptPending,
	}
	s := New(store, map[string]chainclient.ReceiptChecker{"polygon": checker}, "polygon", 0)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Completed: 1, Failed: 1, Pending: 1, Skipped: 3}, res)
	assert.Equal(t, []int64{1}, store.completed)
	assert.Equal(t, []int64{2}, store.failed)
}

func TestStuckTransfersDoNotStarveNewerOnes(t *testing.T) {
	store := &fakeStore{transfers: []models.Transfer{
		sent(1, "0xwaiting", nil),
		sent(2, "0xwaiting", nil),
		sent(3, "0xok", nil),
	}}
	checker := mapChecker{
		"0xwaiting": chainclient.ReceiptPending,
		"0xok":      chainclient.ReceiptSuccess,
	}
	s := New(store, map[string]chainclient.ReceiptChecker{"polygon": checker}, "polygon", 2)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Pending: 2}, res)
	assert.Empty(t, store.completed)

	res, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, []int64{3}, store.completed)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(&fakeStore{}, nil, "polygon", 10)
	_, err := s.Start("not a schedule")
	assert.Error(t, err)

	c, err := s.Start("@every 1h")
	require.NoError(t, err)
	c.Stop()
}
