package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type AnchorSubmissionRepo interface {
	Enqueue(dbc dbctx.Context, subs []*types.AnchorSubmission) ([]*types.AnchorSubmission, error)
	ClaimNextPending(dbc dbctx.Context, retryDelay time.Duration, staleLocked time.Duration) (*types.AnchorSubmission, error)
	MarkSubmitted(dbc dbctx.Context, id uuid.UUID, forwardTxID, externalTxID string) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, lastError string, exhausted bool) error
	GetByTransactionID(dbc dbctx.Context, transactionID string) (*types.AnchorSubmission, error)
	ListByStatus(dbc dbctx.Context, statuses []string) ([]*types.AnchorSubmission, error)
}

type anchorSubmissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnchorSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) AnchorSubmissionRepo {
	return &anchorSubmissionRepo{
		db:  db,
		log: baseLog.With("repo", "AnchorSubmissionRepo"),
	}
}

func (r *anchorSubmissionRepo) Enqueue(dbc dbctx.Context, subs []*types.AnchorSubmission) ([]*types.AnchorSubmission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(subs) == 0 {
		return []*types.AnchorSubmission{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ClaimNextPending picks one pending submission with SKIP LOCKED so
// concurrent workers never double-submit. A submission whose lock is
// older than staleLocked is treated as abandoned and reclaimed.
func (r *anchorSubmissionRepo) ClaimNextPending(dbc dbctx.Context, retryDelay time.Duration, staleLocked time.Duration) (*types.AnchorSubmission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleLocked)
	var claimed *types.AnchorSubmission
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var sub types.AnchorSubmission
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        status = ?
        AND (locked_at IS NULL OR locked_at < ?)
        AND (attempts = 0 OR updated_at < ?)
      `, types.AnchorStatusPending, staleCutoff, retryCutoff).
			Order("created_at ASC")
		qErr := q.First(&sub).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.AnchorSubmission{}).
			Where("id = ?", sub.ID).
			Updates(map[string]interface{}{
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *anchorSubmissionRepo) MarkSubmitted(dbc dbctx.Context, id uuid.UUID, forwardTxID, externalTxID string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.AnchorSubmission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         types.AnchorStatusSubmitted,
			"forward_tx_id":  forwardTxID,
			"external_tx_id": externalTxID,
			"last_error":     "",
			"locked_at":      nil,
			"submitted_at":   now,
			"updated_at":     now,
		}).Error
}

func (r *anchorSubmissionRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, lastError string, exhausted bool) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	status := types.AnchorStatusPending
	if exhausted {
		status = types.AnchorStatusFailed
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.AnchorSubmission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
			"locked_at":  nil,
			"updated_at": time.Now(),
		}).Error
}

func (r *anchorSubmissionRepo) GetByTransactionID(dbc dbctx.Context, transactionID string) (*types.AnchorSubmission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if transactionID == "" {
		return nil, nil
	}
	var sub types.AnchorSubmission
	err := transaction.WithContext(dbc.Ctx).
		Where("transaction_id = ?", transactionID).
		Limit(1).
		Find(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == uuid.Nil {
		return nil, nil
	}
	return &sub, nil
}

func (r *anchorSubmissionRepo) ListByStatus(dbc dbctx.Context, statuses []string) ([]*types.AnchorSubmission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AnchorSubmission
	if len(statuses) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
