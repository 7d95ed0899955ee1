package charges

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
)

// Repository persists charges and their paired orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateCharge(ctx context.Context, charge *models.Charge) error
	FindChargeByCorrelationID(ctx context.Context, correlationID string) (*models.Charge, error)
	FindActiveChargeByFingerprint(ctx context.Context, fingerprint string) (*models.Charge, error)
	SetChargeStatus(ctx context.Context, correlationID string, status enums.ChargeStatus, providerID *string) error
	ListActiveChargesOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Charge, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrderByCorrelationID(ctx context.Context, correlationID string) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, correlationID string, paidAt time.Time) (bool, error)
	CancelPendingOrder(ctx context.Context, correlationID string) (bool, error)
	ListPendingOrdersCreatedSince(ctx context.Context, since time.Time, limit int) ([]models.Order, error)
	ListPaidOrdersSince(ctx context.Context, since time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCharge(ctx context.Context, charge *models.Charge) error {
	return r.db.WithContext(ctx).Create(charge).Error
}

func (r *repository) FindChargeByCorrelationID(ctx context.Context, correlationID string) (*models.Charge, error) {
	var charge models.Charge
	err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (r *repository) FindActiveChargeByFingerprint(ctx context.Context, fingerprint string) (*models.Charge, error) {
	var charge models.Charge
	err := r.db.WithContext(ctx).
		Where("fingerprint = ? AND status = ?", fingerprint, enums.ChargeStatusActive).
		Order("created_at DESC").
		First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (r *repository) SetChargeStatus(ctx context.Context, correlationID string, status enums.ChargeStatus, providerID *string) error {
	updates := map[string]any{"status": status}
	if providerID != nil {
		updates["provider_id"] = *providerID
	}
	return r.db.WithContext(ctx).
		Model(&models.Charge{}).
		Where("correlation_id = ?", correlationID).
		Updates(updates).Error
}

func (r *repository) ListActiveChargesOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Charge, error) {
	var out []models.Charge
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.ChargeStatusActive, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindOrderByCorrelationID(ctx context.Context, correlationID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid performs the conditional pending-to-paid transition. The
// WHERE clause excludes rows already paid, so under concurrent confirmation
// signals exactly one caller sees a true return.
func (r *repository) MarkOrderPaid(ctx context.Context, correlationID string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("correlation_id = ? AND status <> ?", correlationID, enums.OrderStatusPaid).
		Updates(map[string]any{
			"status":  enums.OrderStatusPaid,
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CancelPendingOrder(ctx context.Context, correlationID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("correlation_id = ? AND status = ?", correlationID, enums.OrderStatusPending).
		Update("status", enums.OrderStatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListPendingOrdersCreatedSince(ctx context.Context, since time.Time, limit int) ([]models.Order, error) {
	var out []models.Order
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", enums.OrderStatusPending, since).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListPaidOrdersSince(ctx context.Context, since time.Time, limit int) ([]models.Order, error) {
	var out []models.Order
	q := r.db.WithContext(ctx).
		Where("status = ? AND paid_at >= ?", enums.OrderStatusPaid, since).
		Order("paid_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
