package anchor

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

// LogSink is the development backend: it writes the transaction to the
// structured log and fabricates a receipt. Useful wherever a real
// anchoring endpoint is not provisioned.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(baseLog *logger.Logger) *LogSink {
	return &LogSink{log: baseLog.With("sink", "LogSink")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Submit(ctx context.Context, tx *Transaction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.log.Info("anchor transaction",
		"transaction_id", tx.TransactionID,
		"transaction_type", tx.TransactionType,
		"arrangement", tx.Arrangement,
		"accrual", tx.Accrual,
		"anticipation", tx.Anticipation,
		"action", tx.Action,
	)
	return &Receipt{
		ForwardTxID:  "log-fwd-" + uuid.New().String(),
		ExternalTxID: "log-ext-" + uuid.New().String(),
	}, nil
}
