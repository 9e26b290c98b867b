package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

// 空の項目は絞り込まない
type AuditLogFilter struct {
	Page         int
	Limit        int
	ActorID      string
	Action       model.AuditAction
	ResourceType model.AuditResourceType
	ResourceID   string
	From         *time.Time
	To           *time.Time
}

type AuditLogRepository interface {
	//監査ログを1件保存
	Create(ctx context.Context, log model.AuditLog) error

	// 新しい順。totalはページング前の件数
	List(ctx context.Context, f AuditLogFilter) ([]model.AuditLog, int64, error)
}
