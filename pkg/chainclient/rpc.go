package chainclient

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

type receiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type RPCClient struct {
	client  receiptFetcher
	closer  func()
	timeout time.Duration
}

func DialRPC(ctx context.Context, url string, timeout time.Duration) (*RPCClient, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RPCClient{client: c, closer: c.Close, timeout: timeout}, nil
}

func (c *RPCClient) ReceiptStatus(ctx context.Context, hash string) (ReceiptStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return ReceiptPending, nil
	}
	if err != nil {
		return ReceiptPending, classify(err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return ReceiptSuccess, nil
	}
	return ReceiptFailed, nil
}

func (c *RPCClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}
