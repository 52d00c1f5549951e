package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/reqflow/internal/approval"
	"github.com/example/reqflow/internal/models"
	"github.com/example/reqflow/internal/repository"
	"github.com/example/reqflow/internal/service"
)

// actorHeader carries the acting identity. Authenticating it is the
// gateway's job; this service only gates transitions on role membership.
const actorHeader = "X-Actor-ID"

// Server wraps the gin engine and collaborators needed to handle API requests.
type Server struct {
	Engine       *gin.Engine
	requisitions *repository.RequisitionRepository
	workflow     *service.RequisitionService
	logger       *zap.Logger
}

// NewServer constructs a new API server and registers routes.
func NewServer(repo *repository.RequisitionRepository, workflow *service.RequisitionService, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	srv := &Server{Engine: router, requisitions: repo, workflow: workflow, logger: logger}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	api := s.Engine.Group("/api")
	api.POST("/requisitions", s.createRequisition)
	api.GET("/requisitions", s.listRequisitions)
	api.GET("/requisitions/:id", s.getRequisition)
	api.POST("/requisitions/approve/store", s.approveHandler(s.workflow.ApproveByStore))
	api.POST("/requisitions/approve/production", s.approveHandler(s.workflow.ApproveByProduction))
	api.POST("/requisitions/approve/gm", s.approveHandler(s.workflow.ApproveByGM))
	api.POST("/requisitions/approve/purchase", s.approveHandler(s.workflow.ApproveByPurchaseDept))
	api.POST("/requisitions/convert", s.convert)
}

type linePayload struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    float64 `json:"quantity" binding:"gte=0"`
	UnitPrice   float64 `json:"unitPrice"`
	Unit        *string `json:"unit"`
	Description string  `json:"description"`
}

func (s *Server) createRequisition(c *gin.Context) {
	var payload struct {
		Reference string        `json:"reference"`
		VendorID  *string       `json:"vendorId"`
		OrderDate *time.Time    `json:"orderDate"`
		Notes     string        `json:"notes"`
		Lines     []linePayload `json:"lines"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := &models.Requisition{
		Reference: payload.Reference,
		VendorID:  payload.VendorID,
		Notes:     payload.Notes,
	}
	if payload.OrderDate != nil {
		req.OrderDate = *payload.OrderDate
	}
	for _, line := range payload.Lines {
		req.Lines = append(req.Lines, models.RequisitionLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Unit:        line.Unit,
			Description: line.Description,
		})
	}

	if err := s.workflow.Create(c.Request.Context(), req); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (s *Server) listRequisitions(c *gin.Context) {
	reqs, err := s.requisitions.List(c.Request.Context(), 100)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

func (s *Server) getRequisition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	req, err := s.requisitions.FindByID(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type batchPayload struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}

func (s *Server) approveHandler(op func(ctx context.Context, ids []uuid.UUID, actorID string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(actorHeader)
		if actor == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + actorHeader + " header"})
			return
		}
		var payload batchPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := op(c.Request.Context(), payload.IDs, actor); err != nil {
			s.renderError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type conversionResultPayload struct {
	RequisitionID    uuid.UUID `json:"requisitionId"`
	Reference        string    `json:"reference,omitempty"`
	OrderID          string    `json:"orderId,omitempty"`
	AlreadyConverted bool      `json:"alreadyConverted,omitempty"`
	Error            string    `json:"error,omitempty"`
}

func (s *Server) convert(c *gin.Context) {
	actor := c.GetHeader(actorHeader)
	if actor == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + actorHeader + " header"})
		return
	}
	var payload batchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := s.workflow.ConvertToRFQ(c.Request.Context(), payload.IDs, actor)
	if err != nil {
		s.renderError(c, err)
		return
	}

	out := make([]conversionResultPayload, 0, len(results))
	for _, r := range results {
		item := conversionResultPayload{
			RequisitionID:    r.RequisitionID,
			Reference:        r.Reference,
			OrderID:          r.OrderID,
			AlreadyConverted: r.AlreadyConverted,
		}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, out)
}

// renderError maps domain errors onto HTTP statuses.
func (s *Server) renderError(c *gin.Context, err error) {
	var (
		stateErr *approval.StateMismatchError
		lineErr  *approval.IncompleteLineItemError
		collab   *approval.CollaboratorError
	)
	switch {
	case errors.Is(err, approval.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":         stateErr.Error(),
			"requiredState": stateErr.Required,
		})
	case errors.As(err, &lineErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": lineErr.Error()})
	case errors.As(err, &collab):
		c.JSON(http.StatusBadGateway, gin.H{"error": collab.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "requisition not found"})
	default:
		s.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
