package model

import "time"

// 注文ステータス更新、商品編集など（在庫の変化はInventoryMovementに残す）
type AuditAction string

const (
	AuditActionUpdateOrderStatus   AuditAction = "UPDATE_ORDER_STATUS"
	AuditActionUpdatePaymentStatus AuditAction = "UPDATE_PAYMENT_STATUS"
	AuditActionUpdateProduct       AuditAction = "UPDATE_PRODUCT"
	AuditActionDeleteProduct       AuditAction = "DELETE_PRODUCT"
	AuditActionCreateDiscountCode  AuditAction = "CREATE_DISCOUNT_CODE"
	AuditActionDeactivateDiscount  AuditAction = "DEACTIVATE_DISCOUNT_CODE"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceProduct  AuditResourceType = "product"
	AuditResourceOrder    AuditResourceType = "order"
	AuditResourceDiscount AuditResourceType = "discount_code"
)

// 監査ログ（管理者・出品者の操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作した人（外部IdPのsubject）
	ActorID string `gorm:"type:varchar(64);not null;index" json:"actor_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func ParseAuditAction(s string) (AuditAction, bool) {
	switch AuditAction(s) {
	case AuditActionUpdateOrderStatus, AuditActionUpdatePaymentStatus, AuditActionUpdateProduct,
		AuditActionDeleteProduct, AuditActionCreateDiscountCode, AuditActionDeactivateDiscount:
		return AuditAction(s), true
	}
	return "", false
}

func ParseAuditResourceType(s string) (AuditResourceType, bool) {
	switch AuditResourceType(s) {
	case AuditResourceProduct, AuditResourceOrder, AuditResourceDiscount:
		return AuditResourceType(s), true
	}
	return "", false
}
