package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 管理画面の監査ログ一覧の絞り込み
type AuditLogListFilter struct {
	Page         int
	Limit        int
	ActorUserID  *int64
	Action       model.AuditAction
	ResourceType model.AuditResourceType
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
}

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	// 新しい順。total は絞り込み後の件数
	List(ctx context.Context, f AuditLogListFilter) ([]model.AuditLog, int64, error)
}
