package usecase

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

// 管理者向けの監査ログ閲覧
type AuditLogUsecase struct {
	logs repo.AuditLogRepository
	log  logrus.FieldLogger
}

func NewAuditLogUsecase(logs repo.AuditLogRepository, log logrus.FieldLogger) *AuditLogUsecase {
	return &AuditLogUsecase{logs: logs, log: log}
}

// 文字列のまま受け取り、ここで検証する
type AuditLogListInput struct {
	Page         int
	Limit        int
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	From         *string
	To           *string
}

type AuditLogListOutput struct {
	Items []model.AuditLog `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func (u *AuditLogUsecase) List(ctx context.Context, actor Actor, in AuditLogListInput) (AuditLogListOutput, error) {
	if !actor.IsAdmin() {
		return AuditLogListOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if in.Page < 1 {
		return AuditLogListOutput{}, validationError("invalid page")
	}
	if in.Limit < 1 || in.Limit > 200 {
		return AuditLogListOutput{}, validationError("invalid limit")
	}

	f := repo.AuditLogFilter{
		Page:       in.Page,
		Limit:      in.Limit,
		ActorID:    strings.TrimSpace(in.ActorID),
		ResourceID: strings.TrimSpace(in.ResourceID),
	}
	if v := strings.ToUpper(strings.TrimSpace(in.Action)); v != "" {
		a, ok := model.ParseAuditAction(v)
		if !ok {
			return AuditLogListOutput{}, validationError("invalid action")
		}
		f.Action = a
	}
	if v := strings.ToLower(strings.TrimSpace(in.ResourceType)); v != "" {
		rt, ok := model.ParseAuditResourceType(v)
		if !ok {
			return AuditLogListOutput{}, validationError("invalid resource_type")
		}
		f.ResourceType = rt
	}

	var ok bool
	if in.From != nil {
		if f.From, ok = ParseDateTimeRFC3339(*in.From); !ok {
			return AuditLogListOutput{}, validationError("invalid from")
		}
	}
	if in.To != nil {
		if f.To, ok = ParseDateTimeRFC3339(*in.To); !ok {
			return AuditLogListOutput{}, validationError("invalid to")
		}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return AuditLogListOutput{}, validationError("from must be <= to")
	}

	items, total, err := u.logs.List(ctx, f)
	if err != nil {
		return AuditLogListOutput{}, persistenceFailure(u.log, "audit_log", "List", nil, true, err)
	}
	if items == nil {
		items = []model.AuditLog{}
	}
	return AuditLogListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}
