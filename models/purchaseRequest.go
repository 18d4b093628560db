package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
)

// PurchaseRequest: Draft -> Submitted -> Approved | Rejected.
type PurchaseRequest struct {
	ID            int                     `gorm:"primary_key" json:"id"`
	CompanyId     string                  `gorm:"index:idx_purchase_request_company_number,unique,priority:1;not null" json:"company_id"`
	Number        string                  `gorm:"size:50;not null;index:idx_purchase_request_company_number,unique,priority:2" json:"number" binding:"required"`
	RequestDate   time.Time               `gorm:"not null" json:"request_date"`
	CurrentStatus PurchaseRequestStatus   `gorm:"type:enum('Draft','Submitted','Approved','Rejected');not null" json:"current_status"`
	Note          string                  `gorm:"type:text" json:"note"`
	RequestedBy   int                     `gorm:"not null" json:"requested_by"`
	Details       []PurchaseRequestDetail `gorm:"foreignKey:PurchaseRequestId" json:"details"`
	CreatedAt     time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseRequestDetail struct {
	ID                int             `gorm:"primary_key" json:"id"`
	CompanyId         string          `gorm:"index;not null" json:"company_id"`
	PurchaseRequestId int             `gorm:"index;not null" json:"purchase_request_id"`
	MaterialId        int             `gorm:"index;not null" json:"material_id"`
	Qty               decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Note              string          `gorm:"type:text" json:"note"`
}

type NewPurchaseRequestDetail struct {
	MaterialId int             `json:"material_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
	Note       string          `json:"note"`
}

type NewPurchaseRequest struct {
	Number      string                     `json:"number" validate:"required"`
	RequestDate *time.Time                 `json:"request_date"`
	Note        string                     `json:"note"`
	Details     []NewPurchaseRequestDetail `json:"details" validate:"required,min=1,dive"`
}

func (input *NewPurchaseRequest) validate(ctx context.Context, companyId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[PurchaseRequest](ctx, companyId, "number", input.Number, id); err != nil {
		return err
	}
	materialIds := make([]int, 0, len(input.Details))
	for _, detail := range input.Details {
		if !detail.Qty.IsPositive() {
			return utils.NewValidationError("detail quantity must be positive")
		}
		materialIds = append(materialIds, detail.MaterialId)
	}
	if err := utils.ValidateResourcesId[Material](ctx, companyId, materialIds); err != nil {
		return utils.NewNotFoundError("material")
	}
	return nil
}

func CreatePurchaseRequest(ctx context.Context, input *NewPurchaseRequest) (*PurchaseRequest, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	requestDate := time.Now()
	if input.RequestDate != nil {
		requestDate = *input.RequestDate
	}

	purchaseRequest := PurchaseRequest{
		CompanyId:     companyId,
		Number:        input.Number,
		RequestDate:   requestDate,
		CurrentStatus: PurchaseRequestStatusDraft,
		Note:          input.Note,
		RequestedBy:   userId,
	}
	for _, detail := range input.Details {
		purchaseRequest.Details = append(purchaseRequest.Details, PurchaseRequestDetail{
			CompanyId:  companyId,
			MaterialId: detail.MaterialId,
			Qty:        detail.Qty,
			Note:       detail.Note,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&purchaseRequest).Error; err != nil {
		return nil, err
	}
	return &purchaseRequest, nil
}

// UpdateStatusPurchaseRequest applies a guarded transition.
func UpdateStatusPurchaseRequest(ctx context.Context, id int, status PurchaseRequestStatus) (*PurchaseRequest, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	purchaseRequest, err := utils.FetchModel[PurchaseRequest](ctx, companyId, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("purchase request")
	}

	if !purchaseRequest.CurrentStatus.CanTransitionTo(status) {
		return nil, &utils.InvalidStateTransitionError{
			Document: "purchase request",
			From:     string(purchaseRequest.CurrentStatus),
			To:       string(status),
		}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(purchaseRequest).UpdateColumn("CurrentStatus", status).Error; err != nil {
		return nil, err
	}
	purchaseRequest.CurrentStatus = status
	return purchaseRequest, nil
}

func GetPurchaseRequest(ctx context.Context, id int) (*PurchaseRequest, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	purchaseRequest, err := utils.FetchModel[PurchaseRequest](ctx, companyId, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("purchase request")
	}
	return purchaseRequest, nil
}

func ListPurchaseRequest(ctx context.Context, status *PurchaseRequestStatus) ([]*PurchaseRequest, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId).Preload("Details")
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var results []*PurchaseRequest
	if err := dbCtx.Order("request_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
