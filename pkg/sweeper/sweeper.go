// Package sweeper finalises transfers whose payment hash was reported by a
// controller but never matched a Forward event.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"transfer_requests_back/models"
	"transfer_requests_back/pkg/chainclient"
	"transfer_requests_back/pkg/metrics"
)

// Store hands out sent transfers least recently checked first. Claiming a
// transfer marks it as checked.
type Store interface {
	ClaimAwaitingReceipt(ctx context.Context, limit int) ([]models.Transfer, error)
	Complete(ctx context.Context, transferID, requestID int64) error
	Fail(ctx context.Context, transferID, requestID int64, notes string) error
}

type Result struct {
	Completed int
	Failed    int
	Pending   int
	Skipped   int
}

type Sweeper struct {
	store        Store
	checkers     map[string]chainclient.ReceiptChecker
	defaultChain string
	batch        int
	timeout      time.Duration
}

// New builds a sweeper. Transfers without a chain name are checked on
// defaultChain.
func New(store Store, checkers map[string]chainclient.ReceiptChecker, defaultChain string, batch int) *Sweeper {
	if batch <= 0 {
		batch = 50
	}
	return &Sweeper{
		store:        store,
		checkers:     checkers,
		defaultChain: defaultChain,
		batch:        batch,
		timeout:      time.Minute,
	}
}

// Sweep checks one batch of sent transfers. A receipt that cannot be fetched
// leaves its transfer to a later run, behind the ones not checked yet.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	transfers, err := s.store.ClaimAwaitingReceipt(ctx, s.batch)
	if err != nil {
		return res, err
	}

	for _, t := range transfers {
		entry := logrus.WithFields(logrus.Fields{"transfer_id": t.ID, "transfer_request_id": t.TransferRequestID})
		chain := s.defaultChain
		if t.ChainName != nil && *t.ChainName != "" {
			chain = *t.ChainName
		}
		checker, ok := s.checkers[chain]
		if !ok || !t.Sent() {
			entry.WithField("chain", chain).Warn("no receipt checker for transfer")
			res.Skipped++
			continue
		}

		status, err := checker.ReceiptStatus(ctx, *t.TxHash)
		if err != nil {
			if errors.Is(err, chainclient.ErrTimeout) {
				entry.Warn("receipt lookup timed out")
			} else {
				entry.WithError(err).Error("receipt lookup failed")
			}
			res.Skipped++
			continue
		}

		switch status {
		case chainclient.ReceiptPending:
			res.Pending++
		case chainclient.ReceiptSuccess:
			err = s.store.Complete(ctx, t.ID, t.TransferRequestID)
			metrics.ObserveReconciliation("sweep_complete", err)
			if err != nil {
				entry.WithError(err).Error("complete transfer")
				res.Skipped++
				continue
			}
			entry.Info("transfer completed from receipt")
			res.Completed++
		case chainclient.ReceiptFailed:
			err = s.store.Fail(ctx, t.ID, t.TransferRequestID, "transaction reverted on chain")
			metrics.ObserveReconciliation("sweep_fail", err)
			if err != nil {
				entry.WithError(err).Error("fail transfer")
				res.Skipped++
				continue
			}
			entry.Warn("transfer failed on chain")
			res.Failed++
		}
	}
	return res, nil
}

// Start runs Sweep on schedule until the returned cron is stopped. Runs never
// overlap.
func (s *Sweeper) Start(schedule string) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(logrus.StandardLogger())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		res, err := s.Sweep(ctx)
		if err != nil {
			logrus.WithError(err).Error("receipt sweep failed")
			return
		}
		logrus.WithFields(logrus.Fields{
			"completed": res.Completed,
			"failed":    res.Failed,
			"pending":   res.Pending,
			"skipped":   res.Skipped,
		}).Debug("receipt sweep finished")
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	logrus.WithField("schedule", schedule).Info("receipt sweeper scheduled")
	return c, nil
}
