package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReferencePlaceholder is the value a draft carries before the numbering
// service assigns a real reference.
const ReferencePlaceholder = "New"

// State describes where a requisition sits in the approval chain. States form
// a strict total order; a requisition only ever moves forward through them.
type State string

const (
	StateDraft              State = "draft"
	StateStoreApproved      State = "store"
	StateProductionApproved State = "production"
	StateGmApproved         State = "gm"
	StatePurchaseApproved   State = "purchase"
	StateConvertedToRFQ     State = "rfq"
)

var stateNames = map[State]string{
	StateDraft:              "Preparing Group",
	StateStoreApproved:      "Approved by Store Department",
	StateProductionApproved: "Approved by Production",
	StateGmApproved:         "Approved by GM",
	StatePurchaseApproved:   "Purchase Department",
	StateConvertedToRFQ:     "Final Purchase Department (RFQ)",
}

// DisplayName returns the human-readable label for the state, used in error
// messages surfaced to callers.
func (s State) DisplayName() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return string(s)
}

// Requisition is the aggregate root of the approval workflow. It owns its
// lines exclusively; deleting a requisition deletes them too.
type Requisition struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Reference     string            `gorm:"uniqueIndex;not null" json:"reference"`
	VendorID      *string           `json:"vendorId,omitempty"`
	OrderDate     time.Time         `json:"orderDate"`
	State         State             `json:"state"`
	Notes         string            `json:"notes,omitempty"`
	LinkedOrderID string            `json:"linkedOrderId,omitempty"`
	Lines         []RequisitionLine `gorm:"foreignKey:RequisitionID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Converted reports whether the requisition has already been materialized
// into a purchase order.
func (r *Requisition) Converted() bool {
	return r.LinkedOrderID != ""
}

// BeforeCreate is a GORM hook that populates the primary key and defaults.
func (r *Requisition) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.State == "" {
		r.State = StateDraft
	}
	if r.OrderDate.IsZero() {
		r.OrderDate = time.Now().UTC()
	}
	return nil
}

// RequisitionLine is a single requested item. Lines have no lifecycle of
// their own; they exist only as part of their requisition. ProductID may be
// blank while drafting and is only enforced at conversion time.
type RequisitionLine struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequisitionID uuid.UUID `gorm:"type:uuid;index" json:"requisitionId"`
	ProductID     string    `json:"productId,omitempty"`
	ProductName   string    `json:"productName,omitempty"`
	Quantity      float64   `json:"quantity"`
	UnitPrice     float64   `json:"unitPrice"`
	Unit          *string   `json:"unit,omitempty"`
	Description   string    `json:"description,omitempty"`
}

// BeforeCreate populates the line primary key.
func (l *RequisitionLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Label returns the display name used on generated purchase order lines,
// falling back to the raw product reference.
func (l *RequisitionLine) Label() string {
	if l.ProductName != "" {
		return l.ProductName
	}
	return l.ProductID
}
