package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/interbox/payments-backend/pkg/enums"
)

// Charge is the local record of a gateway payment request. Only Status and
// ProviderID mutate after creation; everything else is written once.
type Charge struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CorrelationID  string             `gorm:"column:correlation_id;uniqueIndex;not null"`
	ProviderID     *string            `gorm:"column:provider_id"`
	Kind           enums.IntentKind   `gorm:"column:kind;not null"`
	Fingerprint    string             `gorm:"column:fingerprint;index;not null"`
	Status         enums.ChargeStatus `gorm:"column:status;not null;default:'ACTIVE'"`
	AmountCents    int                `gorm:"column:amount_cents;not null"`
	BRCode         string             `gorm:"column:br_code"`
	QRCodeImageURL string             `gorm:"column:qr_code_image_url"`
	CustomerName   string             `gorm:"column:customer_name"`
	CustomerEmail  string             `gorm:"column:customer_email;index"`
	CustomerPhone  string             `gorm:"column:customer_phone"`
	CustomerTaxID  string             `gorm:"column:customer_tax_id"`
	Metadata       json.RawMessage    `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
