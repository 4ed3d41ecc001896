package chainclient

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer_requests_back/pkg/cache"
)

const hash = "0x1111111111111111111111111111111111111111111111111111111111111111"

func explorer(t *testing.T, body string, status int) *ExplorerClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "gettxreceiptstatus", r.URL.Query().Get("action"))
		assert.Equal(t, hash, r.URL.Query().Get("txhash"))
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewExplorerClient(srv.URL, "key", 5*time.Second)
}

func TestExplorerReceiptStatus(t *testing.T) {
	tests := []struct {
		body string
		want ReceiptStatus
	}{
		{`{"status":"1","message":"OK","result":{"status":"1"}}`, ReceiptSuccess},
		{`{"status":"1","message":"OK","result":{"status":"0"}}`, ReceiptFailed},
		{`{"status":"1","message":"OK","result":{"status":""}}`, ReceiptPending},
	}
	for _, tt := range tests {
		got, err := explorer(t, tt.body, http.StatusOK).ReceiptStatus(context.Background(), hash)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.body)
	}
}

func TestExplorerErrors(t *testing.T) {
	_, err := explorer(t, `{"status":"0","message":"NOTOK","result":{}}`, http.StatusOK).ReceiptStatus(context.Background(), hash)
	assert.Error(t, err)

	_, err = explorer(t, `oops`, http.StatusBadGateway).ReceiptStatus(context.Background(), hash)
	assert.Error(t, err)
}

func TestExplorerTimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewExplorerClient(srv.URL, "key", 20*time.Millisecond).ReceiptStatus(context.Background(), hash)
	assert.ErrorIs(t, err, ErrTimeout)
}

type fakeFetcher struct {
	receipt *types.Receipt
	err     error
}

func (f fakeFetcher) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	return f.receipt, f.err
}

func TestRPCReceiptStatus(t *testing.T) {
	ok := &RPCClient{client: fakeFetcher{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}}, timeout: time.Second}
	st, err := ok.ReceiptStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, ReceiptSuccess, st)

	reverted := &RPCClient{client: fakeFetcher{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}, timeout: time.Second}
	st, err = reverted.ReceiptStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, ReceiptFailed, st)

	missing := &RPCClient{client: fakeFetcher{err: ethereum.NotFound}, timeout: time.Second}
	st, err = missing.ReceiptStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, ReceiptPending, st)

	slow := &RPCClient{client: fakeFetcher{err: context.DeadlineExceeded}, timeout: time.Second}
	_, err = slow.ReceiptStatus(context.Background(), hash)
	assert.ErrorIs(t, err, ErrTimeout)
}

type staticChecker struct {
	status ReceiptStatus
	err    error
	calls  int
}

func (s *staticChecker) ReceiptStatus(ctx context.Context, h string) (ReceiptStatus, error) {
	s.calls++
	return s.status, s.err
}

func TestCheckerFallsBackAndCaches(t *testing.T) {
	primary := &staticChecker{err: errors.New("node down")}
	fallback := &staticChecker{status: ReceiptSuccess}
	c := NewChecker(cache.NewReceiptCache(time.Minute), primary, fallback)

	st, err := c.ReceiptStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, ReceiptSuccess, st)

	st, err = c.ReceiptStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, ReceiptSuccess, st)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestCheckerDoesNotCachePending(t *testing.T) {
	src := &staticChecker{status: ReceiptPending}
	c := NewChecker(cache.NewReceiptCache(time.Minute), src)

	for i := 0; i < 2; i++ {
		st, err := c.ReceiptStatus(context.Background(), hash)
		require.NoError(t, err)
		assert.Equal(t, ReceiptPending, st)
	}
	assert.Equal(t, 2, src.calls)
}

func TestCheckerAllSourcesFail(t *testing.T) {
	c := NewChecker(nil, &staticChecker{err: ErrTimeout})
	st, err := c.ReceiptStatus(context.Background(), hash)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, ReceiptPending, st)
}
