package usecase

import (
	"context"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// 管理者向けの監査ログ閲覧
type AuditLogUsecase struct {
	tx repo.TransactionManager
}

func NewAuditLogUsecase(tx repo.TransactionManager) *AuditLogUsecase {
	return &AuditLogUsecase{tx: tx}
}

type AuditLogListInput struct {
	Page         int
	Limit        int
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	From         string // RFC3339
	To           string // RFC3339
}

type AuditLogListOutput struct {
	Items []model.AuditLog `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func (u *AuditLogUsecase) List(ctx context.Context, in AuditLogListInput) (AuditLogListOutput, error) {
	page, limit, err := normalizePage(in.Page, in.Limit)
	if err != nil {
		return AuditLogListOutput{}, err
	}

	action := model.AuditAction(strings.ToUpper(strings.TrimSpace(in.Action)))
	if action != "" && !action.Valid() {
		return AuditLogListOutput{}, fieldError("action", "is invalid")
	}
	resourceType := model.AuditResourceType(strings.ToLower(strings.TrimSpace(in.ResourceType)))
	if resourceType != "" && !resourceType.Valid() {
		return AuditLogListOutput{}, fieldError("resource_type", "is invalid")
	}
	if in.ActorUserID != nil && *in.ActorUserID <= 0 {
		return AuditLogListOutput{}, fieldError("actor_user_id", "is invalid")
	}
	if in.ResourceID != nil && *in.ResourceID <= 0 {
		return AuditLogListOutput{}, fieldError("resource_id", "is invalid")
	}

	from, ok := parseDateTimeRFC3339(in.From)
	if !ok {
		return AuditLogListOutput{}, fieldError("from", "must be RFC3339")
	}
	to, ok := parseDateTimeRFC3339(in.To)
	if !ok {
		return AuditLogListOutput{}, fieldError("to", "must be RFC3339")
	}
	if from != nil && to != nil && from.After(*to) {
		return AuditLogListOutput{}, fieldError("from", "must be before to")
	}

	var out AuditLogListOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		logs, total, err := r.AuditLogs().List(ctx, repo.AuditLogListFilter{
			Page:         page,
			Limit:        limit,
			ActorUserID:  in.ActorUserID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   in.ResourceID,
			From:         from,
			To:           to,
		})
		if err != nil {
			return NewInternal(err)
		}
		out = AuditLogListOutput{Items: logs, Total: total, Page: page, Limit: limit}
		return nil
	})
	if err != nil {
		return AuditLogListOutput{}, passThrough(err)
	}
	return out, nil
}
