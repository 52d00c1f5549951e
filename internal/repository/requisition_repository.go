package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/reqflow/internal/models"
)

// RequisitionRepository provides persistence access for Requisition
// aggregates, lines included.
type RequisitionRepository struct {
	db *gorm.DB
}

// NewRequisitionRepository constructs a repository using the provided gorm DB.
func NewRequisitionRepository(db *gorm.DB) *RequisitionRepository {
	return &RequisitionRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle so
// callers can group repository operations inside one transaction.
func (r *RequisitionRepository) WithTx(tx *gorm.DB) *RequisitionRepository {
	return &RequisitionRepository{db: tx}
}

// Create persists the requisition together with its lines.
func (r *RequisitionRepository) Create(ctx context.Context, req *models.Requisition) error {
	return errors.WithStack(r.db.WithContext(ctx).Create(req).Error)
}

// Update persists the modified requisition. Lines are saved along with it.
func (r *RequisitionRepository) Update(ctx context.Context, req *models.Requisition) error {
	return errors.WithStack(r.db.WithContext(ctx).Save(req).Error)
}

// FindByID returns the requisition by id with its lines preloaded.
func (r *RequisitionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Requisition, error) {
	var req models.Requisition
	if err := r.db.WithContext(ctx).Preload("Lines").First(&req, "id = ?", id).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	return &req, nil
}

// FindByIDs returns the requisitions for the given ids, lines preloaded.
// Every id must resolve; a missing record is an error so batch operations
// never silently operate on a subset.
func (r *RequisitionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Requisition, error) {
	return r.findByIDs(ctx, ids, false)
}

// FindByIDsForUpdate behaves like FindByIDs but takes row locks so two
// concurrent transitions on the same requisitions serialize. The loser
// re-reads state already advanced by the winner and fails its precondition.
func (r *RequisitionRepository) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Requisition, error) {
	return r.findByIDs(ctx, ids, true)
}

func (r *RequisitionRepository) findByIDs(ctx context.Context, ids []uuid.UUID, lock bool) ([]models.Requisition, error) {
	tx := r.db.WithContext(ctx).Preload("Lines")
	if lock && r.db.Dialector.Name() == "postgres" {
		// SQLite (used by tests) has no FOR UPDATE; its transactions
		// serialize writes on their own.
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var reqs []models.Requisition
	if err := tx.Find(&reqs, "id IN ?", ids).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	if len(reqs) != len(ids) {
		return nil, errors.WithStack(gorm.ErrRecordNotFound)
	}
	return reqs, nil
}

// UpdateStates advances every listed requisition to the given state in one
// statement. State is the only column touched.
func (r *RequisitionRepository) UpdateStates(ctx context.Context, ids []uuid.UUID, state models.State) error {
	err := r.db.WithContext(ctx).
		Model(&models.Requisition{}).
		Where("id IN ?", ids).
		Update("state", state).Error
	return errors.WithStack(err)
}

// MarkConverted links the requisition to its purchase order and advances it
// to the terminal state in a single update.
func (r *RequisitionRepository) MarkConverted(ctx context.Context, id uuid.UUID, orderID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Requisition{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"linked_order_id": orderID,
			"state":           models.StateConvertedToRFQ,
		}).Error
	return errors.WithStack(err)
}

// List returns requisitions ordered by creation time descending.
func (r *RequisitionRepository) List(ctx context.Context, limit int) ([]models.Requisition, error) {
	if limit <= 0 {
		limit = 50
	}
	var reqs []models.Requisition
	err := r.db.WithContext(ctx).Preload("Lines").Order("created_at desc").Limit(limit).Find(&reqs).Error
	return reqs, errors.WithStack(err)
}
