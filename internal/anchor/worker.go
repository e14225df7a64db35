package anchor

import (
	"context"
	"encoding/json"
	"time"

	auditrepo "github.com/yungbote/tessera-backend/internal/data/repos/audit"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

// Worker drains the anchor submission queue. It claims one pending
// submission per tick with SKIP LOCKED, so running several workers is
// safe.
type Worker struct {
	log  *logger.Logger
	repo auditrepo.AnchorSubmissionRepo
	sink Sink
}

func NewWorker(baseLog *logger.Logger, repo auditrepo.AnchorSubmissionRepo, sink Sink) *Worker {
	return &Worker{
		log:  baseLog.With("component", "AnchorWorker"),
		repo: repo,
		sink: sink,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		const maxAttempts = 5
		retryDelay := 30 * time.Second
		staleLocked := 2 * time.Minute
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dbc := dbctx.Context{Ctx: ctx}
				sub, err := w.repo.ClaimNextPending(dbc, retryDelay, staleLocked)
				if err != nil {
					w.log.Warn("ClaimNextPending failed", "error", err)
					continue
				}
				if sub == nil {
					continue
				}
				w.process(ctx, sub, maxAttempts)
			}
		}
	}()
}

func (w *Worker) process(ctx context.Context, sub *types.AnchorSubmission, maxAttempts int) {
	dbc := dbctx.Context{Ctx: ctx}

	var tx Transaction
	if err := json.Unmarshal(sub.Payload, &tx); err != nil {
		// Undecodable payloads never succeed; fail them outright.
		w.log.Error("anchor payload undecodable", "submission_id", sub.ID, "error", err)
		if mErr := w.repo.MarkFailed(dbc, sub.ID, "payload undecodable: "+err.Error(), true); mErr != nil {
			w.log.Error("MarkFailed failed", "submission_id", sub.ID, "error", mErr)
		}
		return
	}

	receipt, err := w.sink.Submit(ctx, &tx)
	if err != nil {
		// The claim bumped the stored attempts; sub still holds the
		// pre-claim count.
		exhausted := sub.Attempts+1 >= maxAttempts
		w.log.Warn("anchor submit failed",
			"submission_id", sub.ID,
			"transaction_id", sub.TransactionID,
			"sink", w.sink.Name(),
			"attempts", sub.Attempts+1,
			"exhausted", exhausted,
			"error", err,
		)
		if mErr := w.repo.MarkFailed(dbc, sub.ID, err.Error(), exhausted); mErr != nil {
			w.log.Error("MarkFailed failed", "submission_id", sub.ID, "error", mErr)
		}
		return
	}

	if err := w.repo.MarkSubmitted(dbc, sub.ID, receipt.ForwardTxID, receipt.ExternalTxID); err != nil {
		w.log.Error("MarkSubmitted failed", "submission_id", sub.ID, "error", err)
		return
	}
	w.log.Info("anchor transaction submitted",
		"transaction_id", sub.TransactionID,
		"transaction_type", sub.TransactionType,
		"sink", w.sink.Name(),
		"forward_tx_id", receipt.ForwardTxID,
	)
}
