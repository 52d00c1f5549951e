package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/reqflow/internal/approval"
	httpserver "github.com/example/reqflow/internal/http"
	"github.com/example/reqflow/internal/models"
	"github.com/example/reqflow/internal/purchasing"
	"github.com/example/reqflow/internal/repository"
	"github.com/example/reqflow/internal/sequence"
	"github.com/example/reqflow/internal/service"
)

type staticAuthorizer map[string][]approval.Role

func (s staticAuthorizer) HasRole(ctx context.Context, actorID string, role approval.Role) (bool, error) {
	for _, r := range s[actorID] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

type memoryPurchasing struct {
	seq   int
	lines int
}

func (m *memoryPurchasing) CreateOrder(ctx context.Context, req purchasing.OrderRequest) (string, error) {
	m.seq++
	return fmt.Sprintf("PO%03d", m.seq), nil
}

func (m *memoryPurchasing) CreateOrderLine(ctx context.Context, req purchasing.OrderLineRequest) (string, error) {
	m.lines++
	return fmt.Sprintf("POL%03d", m.lines), nil
}

func newTestServer(t *testing.T) (*httpserver.Server, *repository.RequisitionRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Requisition{}, &models.RequisitionLine{}, &sequence.Sequence{}))

	auth := staticAuthorizer{
		"alice": {approval.RolePreparing},
		"erin":  {approval.RolePurchase},
	}
	repo := repository.NewRequisitionRepository(db)
	svc := service.NewRequisitionService(
		db, repo, sequence.NewStore(db, "PR", 5), auth, &memoryPurchasing{}, nil, "company-main", zap.NewNop())
	return httpserver.NewServer(repo, svc, zap.NewNop()), repo
}

func doJSON(t *testing.T, srv *httpserver.Server, method, path, actor string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	rec := httptest.NewRecorder()
	srv.Engine.ServeHTTP(rec, req)
	return rec
}

func createDraft(t *testing.T, srv *httpserver.Server) uuid.UUID {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/requisitions", "", gin.H{
		"notes": "restock",
		"lines": []gin.H{
			{"productId": "PROD-1", "productName": "Copper Wire", "quantity": 2, "unitPrice": 4.2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Requisition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created.ID
}

func TestCreateRequisitionAssignsReference(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/requisitions", "", gin.H{
		"lines": []gin.H{{"productId": "PROD-1", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Requisition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "PR00001", created.Reference)
	assert.Equal(t, models.StateDraft, created.State)
	assert.Len(t, created.Lines, 1)
}

func TestApproveRequiresActorHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createDraft(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/requisitions/approve/store", "", gin.H{"ids": []uuid.UUID{id}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApproveStoreAdvancesState(t *testing.T) {
	srv, repo := newTestServer(t)
	id := createDraft(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/requisitions/approve/store", "alice", gin.H{"ids": []uuid.UUID{id}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	req, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StateStoreApproved, req.State)
}

func TestApproveUnauthorizedActorGets403(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createDraft(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/requisitions/approve/store", "mallory", gin.H{"ids": []uuid.UUID{id}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveWrongStateGets409(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createDraft(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/requisitions/approve/production", "alice", gin.H{"ids": []uuid.UUID{id}})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		RequiredState models.State `json:"requiredState"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.StateStoreApproved, body.RequiredState)
}

func TestApproveUnknownRequisitionGets404(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/requisitions/approve/store", "alice", gin.H{"ids": []uuid.UUID{uuid.New()}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConvertReturnsPerRecordResults(t *testing.T) {
	srv, repo := newTestServer(t)
	id := createDraft(t, srv)
	require.NoError(t, repo.UpdateStates(context.Background(), []uuid.UUID{id}, models.StatePurchaseApproved))

	rec := doJSON(t, srv, http.MethodPost, "/api/requisitions/convert", "erin", gin.H{"ids": []uuid.UUID{id}})
	require.Equal(t, http.StatusOK, rec.Code)

	var results []struct {
		RequisitionID uuid.UUID `json:"requisitionId"`
		OrderID       string    `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].RequisitionID)
	assert.Equal(t, "PO001", results[0].OrderID)

	req, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StateConvertedToRFQ, req.State)
	assert.Equal(t, "PO001", req.LinkedOrderID)
}

func TestGetRequisition(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createDraft(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/api/requisitions/"+id.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var req models.Requisition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &req))
	assert.Equal(t, id, req.ID)
	assert.Len(t, req.Lines, 1)
}

func TestListRequisitions(t *testing.T) {
	srv, _ := newTestServer(t)
	createDraft(t, srv)
	createDraft(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/api/requisitions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reqs []models.Requisition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reqs))
	assert.Len(t, reqs, 2)
}
