package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/reqflow/internal/approval"
	"github.com/example/reqflow/internal/directory"
	"github.com/example/reqflow/internal/models"
	"github.com/example/reqflow/internal/mq"
	"github.com/example/reqflow/internal/purchasing"
	"github.com/example/reqflow/internal/repository"
	"github.com/example/reqflow/internal/sequence"
)

// RequisitionService contains the business logic of the approval workflow:
// creation, the four departmental approvals and the conversion into a
// purchase order. All collaborators are injected.
type RequisitionService struct {
	db           *gorm.DB
	requisitions *repository.RequisitionRepository
	numbering    sequence.Numbering
	authorizer   directory.Authorizer
	purchasing   purchasing.Client
	mq           mq.Publisher
	companyID    string
	logger       *zap.Logger
}

// NewRequisitionService builds a service with dependencies. The publisher
// may be nil; events are then skipped.
func NewRequisitionService(
	db *gorm.DB,
	repo *repository.RequisitionRepository,
	numbering sequence.Numbering,
	authorizer directory.Authorizer,
	purchasingClient purchasing.Client,
	publisher mq.Publisher,
	companyID string,
	logger *zap.Logger,
) *RequisitionService {
	return &RequisitionService{
		db:           db,
		requisitions: repo,
		numbering:    numbering,
		authorizer:   authorizer,
		purchasing:   purchasingClient,
		mq:           publisher,
		companyID:    companyID,
		logger:       logger,
	}
}

// Create persists a new requisition in draft state. A missing or placeholder
// reference is replaced by the next value from the numbering collaborator.
// Creation itself is not gated; approval gating begins at the first
// transition.
func (s *RequisitionService) Create(ctx context.Context, req *models.Requisition) error {
	if req.Reference == "" || req.Reference == models.ReferencePlaceholder {
		ref, err := s.numbering.Next(ctx, sequence.KeyRequisition)
		if err != nil {
			return &approval.CollaboratorError{Collaborator: "numbering", Err: err}
		}
		req.Reference = ref
	}
	req.State = models.StateDraft
	req.LinkedOrderID = ""
	if err := s.requisitions.Create(ctx, req); err != nil {
		return err
	}
	s.publishEvent(ctx, "requisition.created", req, nil)
	return nil
}

// ApproveByStore moves draft requisitions to store-approved. Gated on the
// preparing group.
func (s *RequisitionService) ApproveByStore(ctx context.Context, ids []uuid.UUID, actorID string) error {
	return s.approve(ctx, approval.ActionApproveByStore, ids, actorID)
}

// ApproveByProduction moves store-approved requisitions to
// production-approved. Gated on the store group.
func (s *RequisitionService) ApproveByProduction(ctx context.Context, ids []uuid.UUID, actorID string) error {
	return s.approve(ctx, approval.ActionApproveByProduction, ids, actorID)
}

// ApproveByGM moves production-approved requisitions to GM-approved. Gated
// on the production group.
func (s *RequisitionService) ApproveByGM(ctx context.Context, ids []uuid.UUID, actorID string) error {
	return s.approve(ctx, approval.ActionApproveByGM, ids, actorID)
}

// ApproveByPurchaseDept moves GM-approved requisitions to
// purchase-approved. Gated on the GM group.
func (s *RequisitionService) ApproveByPurchaseDept(ctx context.Context, ids []uuid.UUID, actorID string) error {
	return s.approve(ctx, approval.ActionApproveByPurchaseDept, ids, actorID)
}

// approve applies one transition to a batch of requisitions. The whole batch
// runs in a single transaction: every record's state precondition is checked
// first, then the actor's authorization once, then the state update. A
// single mismatched record fails the batch before anything is written.
func (s *RequisitionService) approve(ctx context.Context, action approval.Action, ids []uuid.UUID, actorID string) error {
	step, err := approval.Lookup(action)
	if err != nil {
		return err
	}
	if step.To == models.StateConvertedToRFQ {
		// conversion has its own entry point with different batch semantics
		return errors.WithStack(approval.ErrUnknownAction)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.requisitions.WithTx(tx)
		recs, err := repo.FindByIDsForUpdate(ctx, ids)
		if err != nil {
			return err
		}
		for i := range recs {
			if err := step.CheckState(recs[i].State); err != nil {
				return err
			}
		}
		allowed, err := s.actorAllowed(ctx, actorID, step.Role)
		if err != nil {
			return err
		}
		if !allowed {
			return approval.ErrNotAuthorized
		}
		return repo.UpdateStates(ctx, ids, step.To)
	})
	if err != nil {
		return err
	}

	s.logger.Info("requisitions approved",
		zap.String("action", string(action)),
		zap.String("actor", actorID),
		zap.Int("count", len(ids)))
	for _, id := range ids {
		s.publishEvent(ctx, "requisition.approved", &models.Requisition{ID: id, State: step.To}, map[string]any{
			"action": string(action),
			"actor":  actorID,
		})
	}
	return nil
}

// ConversionResult reports the outcome of converting one requisition.
// AlreadyConverted marks the idempotent no-op case.
type ConversionResult struct {
	RequisitionID    uuid.UUID
	Reference        string
	OrderID          string
	AlreadyConverted bool
	Err              error
}

// ConvertToRFQ materializes purchase-approved requisitions into purchase
// orders. State preconditions are validated for the whole batch up front and
// authorization is checked once, like an approval; the conversion itself is
// per-record atomic: one record's collaborator failure is reported in its
// result and does not block the others. Records already holding a linked
// order are skipped without error and without new collaborator calls.
func (s *RequisitionService) ConvertToRFQ(ctx context.Context, ids []uuid.UUID, actorID string) ([]ConversionResult, error) {
	step, err := approval.Lookup(approval.ActionConvertToRFQ)
	if err != nil {
		return nil, err
	}

	recs, err := s.requisitions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Converted() {
			continue
		}
		if err := step.CheckState(recs[i].State); err != nil {
			return nil, err
		}
	}
	allowed, err := s.actorAllowed(ctx, actorID, step.Role)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, approval.ErrNotAuthorized
	}

	results := make([]ConversionResult, 0, len(recs))
	for i := range recs {
		results = append(results, s.convertOne(ctx, recs[i].ID, step))
	}
	return results, nil
}

// convertOne converts a single requisition inside its own transaction. The
// record is re-read under lock so a concurrent conversion surfaces as the
// idempotent skip or a state mismatch rather than a double order.
func (s *RequisitionService) convertOne(ctx context.Context, id uuid.UUID, step approval.Step) ConversionResult {
	result := ConversionResult{RequisitionID: id}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.requisitions.WithTx(tx)
		recs, err := repo.FindByIDsForUpdate(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		rec := &recs[0]
		result.Reference = rec.Reference

		if rec.Converted() {
			result.OrderID = rec.LinkedOrderID
			result.AlreadyConverted = true
			return nil
		}
		if err := step.CheckState(rec.State); err != nil {
			return err
		}
		for i := range rec.Lines {
			if rec.Lines[i].ProductID == "" {
				return &approval.IncompleteLineItemError{Reference: rec.Reference}
			}
		}

		now := time.Now().UTC()
		orderID, err := s.purchasing.CreateOrder(ctx, purchasing.OrderRequest{
			VendorID:  rec.VendorID,
			Origin:    rec.Reference,
			OrderDate: now,
			CompanyID: s.companyID,
		})
		if err != nil {
			return &approval.CollaboratorError{Collaborator: "purchasing", Err: err}
		}
		for i := range rec.Lines {
			line := &rec.Lines[i]
			_, err := s.purchasing.CreateOrderLine(ctx, purchasing.OrderLineRequest{
				OrderID:     orderID,
				ProductID:   line.ProductID,
				Label:       line.Label(),
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Unit:        line.Unit,
				PlannedDate: now,
			})
			if err != nil {
				return &approval.CollaboratorError{Collaborator: "purchasing", Err: err}
			}
		}

		if err := repo.MarkConverted(ctx, rec.ID, orderID); err != nil {
			return err
		}
		result.OrderID = orderID
		return nil
	})
	if err != nil {
		result.Err = err
		s.logger.Warn("requisition conversion failed",
			zap.String("requisition", id.String()),
			zap.Error(err))
		return result
	}
	if !result.AlreadyConverted {
		s.publishEvent(ctx, "requisition.converted", &models.Requisition{
			ID:            id,
			Reference:     result.Reference,
			State:         models.StateConvertedToRFQ,
			LinkedOrderID: result.OrderID,
		}, nil)
	}
	return result
}

// actorAllowed applies the role-or-admin disjunction every step uses.
func (s *RequisitionService) actorAllowed(ctx context.Context, actorID string, role approval.Role) (bool, error) {
	ok, err := s.authorizer.HasRole(ctx, actorID, role)
	if err != nil {
		return false, &approval.CollaboratorError{Collaborator: "directory", Err: err}
	}
	if ok {
		return true, nil
	}
	ok, err = s.authorizer.HasRole(ctx, actorID, approval.RoleAdmin)
	if err != nil {
		return false, &approval.CollaboratorError{Collaborator: "directory", Err: err}
	}
	return ok, nil
}

func (s *RequisitionService) publishEvent(ctx context.Context, event string, req *models.Requisition, extra map[string]any) {
	if s.mq == nil {
		return
	}
	payload := map[string]any{
		"event":         event,
		"requisitionId": req.ID.String(),
		"reference":     req.Reference,
		"state":         req.State,
		"occurredAt":    time.Now().UTC().Format(time.RFC3339),
	}
	if req.LinkedOrderID != "" {
		payload["orderId"] = req.LinkedOrderID
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := s.mq.Publish(ctx, event, payload); err != nil {
		s.logger.Warn("publish event failed", zap.String("event", event), zap.Error(err))
	}
}
