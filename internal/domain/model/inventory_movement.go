package model

import "time"

type MovementType string

const (
	MovementRestock      MovementType = "restock"
	MovementSale         MovementType = "sale"
	MovementReturn       MovementType = "return"
	MovementAdjustment   MovementType = "adjustment"
	MovementDamage       MovementType = "damage"
	MovementCancellation MovementType = "cancellation"
	MovementInitial      MovementType = "initial"
)

// 手動調整で指定できる種別か（sale / initial はシステムが作る）
func (t MovementType) Manual() bool {
	switch t {
	case MovementRestock, MovementReturn, MovementAdjustment, MovementDamage, MovementCancellation:
		return true
	}
	return false
}

// 在庫移動の履歴（追記のみ、更新・削除しない）
// NewQuantity = PreviousQuantity + Quantity
type InventoryMovement struct {
	ID               int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID        int64        `gorm:"not null;index" json:"product_id"`
	MovementType     MovementType `gorm:"type:varchar(20);not null;index" json:"movement_type"`
	Quantity         int64        `gorm:"not null" json:"quantity"`
	PreviousQuantity int64        `gorm:"not null" json:"previous_quantity"`
	NewQuantity      int64        `gorm:"not null" json:"new_quantity"`
	ReferenceType    string       `gorm:"type:varchar(30)" json:"reference_type,omitempty"`
	ReferenceID      string       `gorm:"type:varchar(64);index" json:"reference_id,omitempty"`
	Notes            string       `gorm:"type:varchar(500)" json:"notes"`
	CreatedBy        string       `gorm:"type:varchar(64);not null" json:"created_by"`
	CreatedAt        time.Time    `gorm:"not null;autoCreateTime" json:"created_at"`
}

// 履歴の整合性
func (m InventoryMovement) Consistent() bool {
	return m.NewQuantity == m.PreviousQuantity+m.Quantity
}
