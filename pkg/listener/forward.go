// Package listener follows Forward events emitted by the payment forwarder
// contract and hands each one to payment confirmation.
package listener

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
	"transfer_requests_back/pkg/config"
	"transfer_requests_back/pkg/metrics"
)

const forwarderABIJSON = `[{
  "anonymous": false,
  "name": "Forward",
  "type": "event",
  "inputs": [
    {"indexed": false, "name": "id", "type": "string"},
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"}
  ]
}]`

var (
	ForwarderABI = mustParseABI(forwarderABIJSON)
	// ForwardTopic is topic[0] of every Forward log.
	ForwardTopic = ForwarderABI.Events["Forward"].ID

	ErrNotForward = errors.New("log is not a Forward event")
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ParseForwardLog decodes a raw Forward log into the event shape payment
// confirmation accepts. Addresses and the hash come out lower-cased.
func ParseForwardLog(chainName string, lg types.Log) (models.ChainEvent, error) {
	if len(lg.Topics) != 3 || lg.Topics[0] != ForwardTopic {
		return models.ChainEvent{}, ErrNotForward
	}
	values, err := ForwarderABI.Unpack("Forward", lg.Data)
	if err != nil {
		return models.ChainEvent{}, fmt.Errorf("decode Forward data: %w", err)
	}
	if len(values) != 2 {
		return models.ChainEvent{}, fmt.Errorf("decode Forward data: got %d values", len(values))
	}
	id, ok := values[0].(string)
	if !ok {
		return models.ChainEvent{}, fmt.Errorf("decode Forward id: unexpected %T", values[0])
	}
	value, ok := values[1].(*big.Int)
	if !ok {
		return models.ChainEvent{}, fmt.Errorf("decode Forward value: unexpected %T", values[1])
	}

	return models.ChainEvent{
		ChainName:       chainName,
		ID:              id,
		From:            strings.ToLower(common.BytesToAddress(lg.Topics[1].Bytes()).Hex()),
		To:              strings.ToLower(common.BytesToAddress(lg.Topics[2].Bytes()).Hex()),
		Value:           value.String(),
		TransactionHash: strings.ToLower(lg.TxHash.Hex()),
	}, nil
}

type Confirmer interface {
	TransferPaymentConfirm(ctx context.Context, event models.ChainEvent) (models.Transfer, error)
}

// LogSubscriber is the part of ethclient.Client the listener uses.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	Close()
}

type Dialer func(ctx context.Context, url string) (LogSubscriber, error)

func DialWebsocket(ctx context.Context, url string) (LogSubscriber, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type Listener struct {
	chain      config.Chain
	confirmer  Confirmer
	dial       Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	log        *logrus.Entry
}

func New(chain config.Chain, confirmer Confirmer, dial Dialer) *Listener {
	if dial == nil {
		dial = DialWebsocket
	}
	if chain.Timeout <= 0 {
		chain.Timeout = 30 * time.Second
	}
	return &Listener{
		chain:      chain,
		confirmer:  confirmer,
		dial:       dial,
		minBackoff: time.Second,
		maxBackoff: time.Minute,
		log:        logrus.WithFields(logrus.Fields{"chain": chain.Name, "forwarder": chain.ForwarderAddress}),
	}
}

// Run keeps a subscription open until ctx is done, re-dialling with
// exponential backoff whenever the connection drops.
func (l *Listener) Run(ctx context.Context) {
	backoff := l.minBackoff
	for {
		established, err := l.subscribe(ctx)
		if ctx.Err() != nil {
			l.log.Info("listener stopped")
			return
		}
		if established {
			backoff = l.minBackoff
		}
		l.log.WithError(err).Warnf("subscription lost, retrying in %s", backoff)

		select {
		case <-ctx.Done():
			l.log.Info("listener stopped")
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

func (l *Listener) subscribe(ctx context.Context) (bool, error) {
	client, err := l.dial(ctx, l.chain.WSURL)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer client.Close()

	logs := make(chan types.Log, 64)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(l.chain.ForwarderAddress)},
		Topics:    [][]common.Hash{{ForwardTopic}},
	}
	sub, err := client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()
	l.log.Info("subscribed to Forward events")

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return true, err
		case lg := <-logs:
			l.handle(ctx, lg)
		}
	}
}

func (l *Listener) handle(ctx context.Context, lg types.Log) {
	entry := l.log.WithFields(logrus.Fields{"tx_hash": lg.TxHash.Hex(), "block": lg.BlockNumber})
	if lg.Removed {
		entry.Warn("Forward log removed by reorg")
		return
	}
	event, err := ParseForwardLog(l.chain.Name, lg)
	if err != nil {
		metrics.ObserveChainEvent(l.chain.Name, err)
		entry.WithError(err).Error("undecodable Forward log")
		return
	}

	cctx, cancel := context.WithTimeout(ctx, l.chain.Timeout)
	defer cancel()
	transfer, err := l.confirmer.TransferPaymentConfirm(cctx, event)
	metrics.ObserveChainEvent(l.chain.Name, err)

	entry = entry.WithField("payment_id", event.ID)
	var appErr *apperror.Error
	switch {
	case err == nil:
		entry.WithField("transfer_id", transfer.ID).Info("payment confirmed")
	case errors.As(err, &appErr) && appErr.Status < 500:
		// events for other deployments or already confirmed payments land here
		entry.WithError(err).Warn("Forward event not applied")
	default:
		entry.WithError(err).Error("payment confirmation failed")
	}
}
