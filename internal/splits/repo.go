package splits

import (
	"context"

	"gorm.io/gorm"

	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
)

// Repository handles split transaction persistence. Rows are append-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.SplitTransaction) error
	ListByOrderRef(ctx context.Context, orderRef string) ([]models.SplitTransaction, error)
	HasSuccessful(ctx context.Context, correlationID string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a split repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.SplitTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListByOrderRef(ctx context.Context, orderRef string) ([]models.SplitTransaction, error) {
	var txns []models.SplitTransaction
	if err := r.db.WithContext(ctx).
		Where("order_ref = ?", orderRef).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// HasSuccessful is keyed on the gateway correlation id rather than the order
// row: replays for an order the relational store never saw arrive under a
// fresh order id, and the checkpoint has to hold across them.
func (r *repository) HasSuccessful(ctx context.Context, correlationID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SplitTransaction{}).
		Where("correlation_id = ? AND status = ?", correlationID, enums.SplitStatusSuccess).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
