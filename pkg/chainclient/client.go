package chainclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"transfer_requests_back/pkg/cache"
	"transfer_requests_back/pkg/config"
)

type ReceiptStatus int

const (
	ReceiptPending ReceiptStatus = iota
	ReceiptSuccess
	ReceiptFailed
)

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptSuccess:
		return "success"
	case ReceiptFailed:
		return "failed"
	default:
		return "pending"
	}
}

// ErrTimeout marks an upstream call that ran out of time. Callers retry
// later and must not infer any transfer state from it.
var ErrTimeout = errors.New("chain request timed out")

type ReceiptChecker interface {
	ReceiptStatus(ctx context.Context, hash string) (ReceiptStatus, error)
}

func classify(err error) error {
	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Checker asks each source in order until one answers, caching final outcomes.
type Checker struct {
	sources []ReceiptChecker
	cache   *cache.ReceiptCache
}

func NewChecker(c *cache.ReceiptCache, sources ...ReceiptChecker) *Checker {
	return &Checker{sources: sources, cache: c}
}

func (c *Checker) ReceiptStatus(ctx context.Context, hash string) (ReceiptStatus, error) {
	if c.cache != nil {
		if ok, found := c.cache.Get(hash); found {
			if ok {
				return ReceiptSuccess, nil
			}
			return ReceiptFailed, nil
		}
	}

	lastErr := errors.New("no receipt source configured")
	for i, src := range c.sources {
		st, err := src.ReceiptStatus(ctx, hash)
		if err != nil {
			logrus.WithFields(logrus.Fields{"tx_hash": hash, "source": i}).WithError(err).Warn("receipt lookup failed")
			lastErr = err
			continue
		}
		if st != ReceiptPending && c.cache != nil {
			c.cache.Set(hash, st == ReceiptSuccess)
		}
		return st, nil
	}
	return ReceiptPending, lastErr
}

// NewForChain builds a checker over the chain's RPC node, falling back to its
// block explorer. The returned func releases the RPC connection.
func NewForChain(ctx context.Context, chain config.Chain, c *cache.ReceiptCache) (*Checker, func(), error) {
	var (
		sources []ReceiptChecker
		closeFn = func() {}
	)
	if chain.RPCURL != "" {
		rpc, err := DialRPC(ctx, chain.RPCURL, chain.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s rpc: %w", chain.Name, err)
		}
		sources = append(sources, rpc)
		closeFn = rpc.Close
	}
	if chain.ExplorerURL != "" {
		sources = append(sources, NewExplorerClient(chain.ExplorerURL, chain.ExplorerAPIKey, chain.Timeout))
	}
	if len(sources) == 0 {
		return nil, nil, fmt.Errorf("chain %s has neither rpc_url nor explorer_url", chain.Name)
	}
	return NewChecker(c, sources...), closeFn, nil
}
