package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseOrder: Draft -> Approved -> Completed | Cancelled. Completion only
// happens through goods receipt posting.
type PurchaseOrder struct {
	ID                int                   `gorm:"primary_key" json:"id"`
	CompanyId         string                `gorm:"index:idx_purchase_order_company_number,unique,priority:1;not null" json:"company_id"`
	Number            string                `gorm:"size:50;not null;index:idx_purchase_order_company_number,unique,priority:2" json:"number" binding:"required"`
	SupplierId        int                   `gorm:"index;not null" json:"supplier_id"`
	PurchaseRequestId *int                  `gorm:"index" json:"purchase_request_id"`
	OrderDate         time.Time             `gorm:"not null" json:"order_date"`
	CurrentStatus     PurchaseOrderStatus   `gorm:"type:enum('Draft','Approved','Completed','Cancelled');not null" json:"current_status"`
	Note              string                `gorm:"type:text" json:"note"`
	Details           []PurchaseOrderDetail `gorm:"foreignKey:PurchaseOrderId" json:"details"`
	CreatedAt         time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CompanyId       string          `gorm:"index;not null" json:"company_id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	MaterialId      int             `gorm:"index;not null" json:"material_id"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
}

type NewPurchaseOrderDetail struct {
	MaterialId int             `json:"material_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type NewPurchaseOrder struct {
	Number            string                   `json:"number" validate:"required"`
	SupplierId        int                      `json:"supplier_id" validate:"required"`
	PurchaseRequestId *int                     `json:"purchase_request_id"`
	OrderDate         *time.Time               `json:"order_date"`
	Note              string                   `json:"note"`
	Details           []NewPurchaseOrderDetail `json:"details" validate:"required,min=1,dive"`
}

func (input *NewPurchaseOrder) validate(ctx context.Context, companyId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[PurchaseOrder](ctx, companyId, "number", input.Number, id); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Supplier](ctx, companyId, input.SupplierId); err != nil {
		return utils.NewNotFoundError("supplier")
	}
	if input.PurchaseRequestId != nil {
		purchaseRequest, err := utils.FetchModel[PurchaseRequest](ctx, companyId, *input.PurchaseRequestId)
		if err != nil {
			return utils.NewNotFoundError("purchase request")
		}
		if purchaseRequest.CurrentStatus != PurchaseRequestStatusApproved {
			return &utils.InvalidStateTransitionError{
				Document: "purchase request",
				From:     string(purchaseRequest.CurrentStatus),
				To:       "referenced by purchase order",
			}
		}
	}
	materialIds := make([]int, 0, len(input.Details))
	for _, detail := range input.Details {
		if !detail.Qty.IsPositive() {
			return utils.NewValidationError("detail quantity must be positive")
		}
		if detail.UnitPrice.IsNegative() {
			return utils.NewValidationError("unit price must not be negative")
		}
		materialIds = append(materialIds, detail.MaterialId)
	}
	if err := utils.ValidateResourcesId[Material](ctx, companyId, materialIds); err != nil {
		return utils.NewNotFoundError("material")
	}
	return nil
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	orderDate := time.Now()
	if input.OrderDate != nil {
		orderDate = *input.OrderDate
	}

	purchaseOrder := PurchaseOrder{
		CompanyId:         companyId,
		Number:            input.Number,
		SupplierId:        input.SupplierId,
		PurchaseRequestId: input.PurchaseRequestId,
		OrderDate:         orderDate,
		CurrentStatus:     PurchaseOrderStatusDraft,
		Note:              input.Note,
	}
	for _, detail := range input.Details {
		purchaseOrder.Details = append(purchaseOrder.Details, PurchaseOrderDetail{
			CompanyId:  companyId,
			MaterialId: detail.MaterialId,
			Qty:        detail.Qty,
			UnitPrice:  detail.UnitPrice,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&purchaseOrder).Error; err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

// UpdateStatusPurchaseOrder applies a guarded transition (Approve / Cancel).
// Completed is reserved for the goods receipt flow.
func UpdateStatusPurchaseOrder(ctx context.Context, id int, status PurchaseOrderStatus) (*PurchaseOrder, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if status == PurchaseOrderStatusCompleted {
		return nil, utils.NewValidationError("purchase orders are completed by posting a goods receipt")
	}

	purchaseOrder, err := utils.FetchModel[PurchaseOrder](ctx, companyId, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("purchase order")
	}

	if !purchaseOrder.CurrentStatus.CanTransitionTo(status) {
		return nil, &utils.InvalidStateTransitionError{
			Document: "purchase order",
			From:     string(purchaseOrder.CurrentStatus),
			To:       string(status),
		}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(purchaseOrder).UpdateColumn("CurrentStatus", status).Error; err != nil {
		return nil, err
	}
	purchaseOrder.CurrentStatus = status
	return purchaseOrder, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	purchaseOrder, err := utils.FetchModel[PurchaseOrder](ctx, companyId, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("purchase order")
	}
	return purchaseOrder, nil
}

func ListPurchaseOrder(ctx context.Context, status *PurchaseOrderStatus) ([]*PurchaseOrder, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId).Preload("Details")
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var results []*PurchaseOrder
	if err := dbCtx.Order("order_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// fetchPurchaseOrderForUpdate locks the order row so only one receipt can
// complete it.
func fetchPurchaseOrderForUpdate(tx *gorm.DB, companyId string, id int) (*PurchaseOrder, error) {
	var purchaseOrder PurchaseOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ?", companyId).
		First(&purchaseOrder, id).Error
	if err != nil {
		return nil, utils.NewNotFoundError("purchase order")
	}
	return &purchaseOrder, nil
}
