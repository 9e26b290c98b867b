package usecase

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"
)

var discountCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,64}$`)

type DiscountUsecase struct {
	tx        repo.TransactionManager
	discounts repo.DiscountCodeRepository
	log       logrus.FieldLogger
}

func NewDiscountUsecase(tx repo.TransactionManager, discounts repo.DiscountCodeRepository, log logrus.FieldLogger) *DiscountUsecase {
	return &DiscountUsecase{tx: tx, discounts: discounts, log: log}
}

type CreateDiscountInput struct {
	Code                  string
	DiscountType          string
	DiscountValue         decimal.Decimal
	MaximumDiscountAmount *int64
	UsageLimit            *int64
}

func validateDiscountInput(in CreateDiscountInput) (model.DiscountCode, error) {
	code := model.NormalizeDiscountCode(in.Code)
	if !discountCodePattern.MatchString(code) {
		return model.DiscountCode{}, validationError("code must be 3-64 chars of A-Z, 0-9, _ or -")
	}

	d := model.DiscountCode{
		Code:                  code,
		DiscountType:          model.DiscountType(in.DiscountType),
		DiscountValue:         in.DiscountValue,
		MaximumDiscountAmount: in.MaximumDiscountAmount,
		UsageLimit:            in.UsageLimit,
		IsActive:              true,
	}

	switch d.DiscountType {
	case model.DiscountTypePercentage:
		// (0, 100]
		if !d.DiscountValue.IsPositive() || d.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return model.DiscountCode{}, validationError("percentage must be > 0 and <= 100")
		}
	case model.DiscountTypeFixedAmount:
		if !d.DiscountValue.IsPositive() || !d.DiscountValue.Equal(d.DiscountValue.Truncate(0)) {
			return model.DiscountCode{}, validationError("fixed_amount must be a positive whole number of minor units")
		}
		if _, err := model.ToAmount(d.DiscountValue); err != nil {
			return model.DiscountCode{}, validationError("fixed_amount out of range")
		}
		if d.MaximumDiscountAmount != nil {
			return model.DiscountCode{}, validationError("maximum_discount_amount only applies to percentage codes")
		}
	default:
		return model.DiscountCode{}, validationError("invalid discount_type")
	}

	if d.MaximumDiscountAmount != nil && *d.MaximumDiscountAmount <= 0 {
		return model.DiscountCode{}, validationError("maximum_discount_amount must be > 0")
	}
	if d.UsageLimit != nil && *d.UsageLimit <= 0 {
		return model.DiscountCode{}, validationError("usage_limit must be > 0")
	}
	return d, nil
}

func (u *DiscountUsecase) Create(ctx context.Context, actor Actor, in CreateDiscountInput) (model.DiscountCode, error) {
	d, err := validateDiscountInput(in)
	if err != nil {
		return model.DiscountCode{}, err
	}

	var created model.DiscountCode
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		c, err := r.DiscountCodes().Create(ctx, d)
		if errors.Is(err, repo.ErrDuplicate) {
			return validationError("code already exists")
		}
		if err != nil {
			return err
		}
		created = c

		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actor.ID,
			Action:       model.AuditActionCreateDiscountCode,
			ResourceType: model.AuditResourceDiscount,
			ResourceID:   c.Code,
			BeforeJSON:   "{}",
			AfterJSON:    toJSON(c),
			CreatedAt:    time.Now(),
		})
	})
	if err != nil {
		return model.DiscountCode{}, wrapTxError(u.log, "discount", "Create", map[string]any{"code": d.Code}, err)
	}
	return created, nil
}

func (u *DiscountUsecase) List(ctx context.Context, activeOnly bool) ([]model.DiscountCode, error) {
	items, err := u.discounts.List(ctx, activeOnly)
	if err != nil {
		return []model.DiscountCode{}, persistenceFailure(u.log, "discount", "List", nil, true, err)
	}
	return items, nil
}

// 無効化（使用回数は残す）
func (u *DiscountUsecase) Deactivate(ctx context.Context, actor Actor, code string) error {
	code = model.NormalizeDiscountCode(code)
	if code == "" {
		return validationError("code required")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.DiscountCodes().FindByCode(ctx, code)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("discount code not found")
		}
		if err != nil {
			return err
		}
		if !before.IsActive {
			return nil
		}
		if err := r.DiscountCodes().Deactivate(ctx, code); err != nil {
			return err
		}

		after := before
		after.IsActive = false
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actor.ID,
			Action:       model.AuditActionDeactivateDiscount,
			ResourceType: model.AuditResourceDiscount,
			ResourceID:   code,
			BeforeJSON:   toJSON(before),
			AfterJSON:    toJSON(after),
			CreatedAt:    time.Now(),
		})
	})
	return wrapTxError(u.log, "discount", "Deactivate", map[string]any{"code": code}, err)
}
