package memory

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

type AuditLogRepository struct {
	v view
}

func (r *AuditLogRepository) Create(ctx context.Context, log model.AuditLog) error {
	return r.v.do(func(st *state) error {
		st.auditSeq++
		log.ID = st.auditSeq
		if log.CreatedAt.IsZero() {
			log.CreatedAt = time.Now()
		}
		st.auditLogs = append(st.auditLogs, log)
		return nil
	})
}

// 新しい順
func (r *AuditLogRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}

	var out []model.AuditLog
	var total int64
	err := r.v.do(func(st *state) error {
		var hits []model.AuditLog
		for i := len(st.auditLogs) - 1; i >= 0; i-- {
			if l := st.auditLogs[i]; matchAuditLog(l, f) {
				hits = append(hits, l)
			}
		}
		total = int64(len(hits))
		out = offsetLimit(hits, (f.Page-1)*f.Limit, f.Limit)
		return nil
	})
	return out, total, err
}

func matchAuditLog(l model.AuditLog, f repo.AuditLogFilter) bool {
	switch {
	case f.ActorID != "" && l.ActorID != f.ActorID:
		return false
	case f.Action != "" && l.Action != f.Action:
		return false
	case f.ResourceType != "" && l.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && l.ResourceID != f.ResourceID:
		return false
	case f.From != nil && l.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && l.CreatedAt.After(*f.To):
		return false
	}
	return true
}
