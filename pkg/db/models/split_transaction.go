package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/interbox/payments-backend/pkg/enums"
)

// SplitTransaction is the audit row for one disbursement attempt. It is
// append-only: replays write new rows, nothing is updated in place.
type SplitTransaction struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderRef              string            `gorm:"column:order_ref;index;not null"`
	CorrelationID         string            `gorm:"column:correlation_id;index"`
	Category              string            `gorm:"column:category;not null"`
	Recipient             string            `gorm:"column:recipient;not null"`
	PixKey                string            `gorm:"column:pix_key"`
	AmountCents           int               `gorm:"column:amount_cents;not null"`
	Percent               decimal.Decimal   `gorm:"column:percent;type:numeric(6,3)"`
	Status                enums.SplitStatus `gorm:"column:status;not null"`
	ProviderTransactionID *string           `gorm:"column:provider_transaction_id"`
	Error                 *string           `gorm:"column:error"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
}
