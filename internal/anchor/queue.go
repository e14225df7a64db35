package anchor

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	auditrepo "github.com/yungbote/tessera-backend/internal/data/repos/audit"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

// Queue persists transactions for asynchronous submission. Anchoring
// is advisory: engines enqueue after their own transaction commits and
// never fail an operation because the sink is down.
type Queue struct {
	repo auditrepo.AnchorSubmissionRepo
	log  *logger.Logger
}

func NewQueue(repo auditrepo.AnchorSubmissionRepo, baseLog *logger.Logger) *Queue {
	return &Queue{
		repo: repo,
		log:  baseLog.With("component", "AnchorQueue"),
	}
}

func (q *Queue) Enqueue(dbc dbctx.Context, txs ...*Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	rows := make([]*types.AnchorSubmission, 0, len(txs))
	for _, tx := range txs {
		payload, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("marshal anchor transaction: %w", err)
		}
		rows = append(rows, &types.AnchorSubmission{
			ID:              uuid.New(),
			TransactionID:   tx.TransactionID,
			TransactionType: tx.TransactionType,
			Payload:         datatypes.JSON(payload),
			Status:          types.AnchorStatusPending,
		})
	}
	if _, err := q.repo.Enqueue(dbc, rows); err != nil {
		return fmt.Errorf("enqueue anchor submissions: %w", err)
	}
	return nil
}
