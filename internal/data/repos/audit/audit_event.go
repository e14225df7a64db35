package audit

import (
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type AuditEventRepo interface {
	Append(dbc dbctx.Context, events []*types.AuditEvent) ([]*types.AuditEvent, error)
	ListByTarget(dbc dbctx.Context, targetType, targetID string, limit int) ([]*types.AuditEvent, error)
	ListByEventType(dbc dbctx.Context, eventType string, limit int) ([]*types.AuditEvent, error)
}

type auditEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditEventRepo(db *gorm.DB, baseLog *logger.Logger) AuditEventRepo {
	return &auditEventRepo{
		db:  db,
		log: baseLog.With("repo", "AuditEventRepo"),
	}
}

// Append inserts events. There is deliberately no update or delete on
// this repo; the table trigger would reject them anyway.
func (r *auditEventRepo) Append(dbc dbctx.Context, events []*types.AuditEvent) ([]*types.AuditEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.AuditEvent{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *auditEventRepo) ListByTarget(dbc dbctx.Context, targetType, targetID string, limit int) ([]*types.AuditEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AuditEvent
	if targetType == "" || targetID == "" {
		return out, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditEventRepo) ListByEventType(dbc dbctx.Context, eventType string, limit int) ([]*types.AuditEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AuditEvent
	if eventType == "" {
		return out, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("event_type = ?", eventType).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
