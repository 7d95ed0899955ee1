package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/interbox/payments-backend/pkg/enums"
)

// Order is the internal purchase/registration record. The unique index on
// correlation_id plus a conditional status update is what guarantees at most
// one paid order per charge.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CorrelationID string            `gorm:"column:correlation_id;uniqueIndex;not null"`
	Kind          enums.IntentKind  `gorm:"column:kind;not null"`
	ProductRef    string            `gorm:"column:product_ref"`
	CustomerEmail string            `gorm:"column:customer_email;index"`
	Variant       *string           `gorm:"column:variant"`
	AmountCents   int               `gorm:"column:amount_cents;not null"`
	Status        enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	PaidAt        *time.Time        `gorm:"column:paid_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
