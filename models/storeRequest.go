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

// StoreRequest asks the warehouse to issue materials to a department.
// Draft -> Submitted -> Approved / Rejected; Fulfilled is set by the goods
// issue flow only.
type StoreRequest struct {
	ID            int                  `gorm:"primary_key" json:"id"`
	CompanyId     string               `gorm:"index:idx_store_request_company_number,unique,priority:1;not null" json:"company_id"`
	Number        string               `gorm:"size:50;not null;index:idx_store_request_company_number,unique,priority:2" json:"number"`
	Department    string               `gorm:"size:100;not null" json:"department"`
	RequestDate   time.Time            `gorm:"not null" json:"request_date"`
	CurrentStatus StoreRequestStatus   `gorm:"type:enum('Draft','Submitted','Approved','Rejected','Fulfilled');not null" json:"current_status"`
	RequestedBy   int                  `gorm:"not null" json:"requested_by"`
	Note          string               `gorm:"type:text" json:"note"`
	Details       []StoreRequestDetail `gorm:"foreignKey:StoreRequestId" json:"details"`
	CreatedAt     time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type StoreRequestDetail struct {
	ID             int             `gorm:"primary_key" json:"id"`
	CompanyId      string          `gorm:"index;not null" json:"company_id"`
	StoreRequestId int             `gorm:"index;not null" json:"store_request_id"`
	MaterialId     int             `gorm:"index;not null" json:"material_id"`
	Qty            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
}

type NewStoreRequestDetail struct {
	MaterialId int             `json:"material_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
}

type NewStoreRequest struct {
	Number      string                  `json:"number" validate:"required"`
	Department  string                  `json:"department" validate:"required"`
	RequestDate *time.Time              `json:"request_date"`
	Note        string                  `json:"note"`
	Details     []NewStoreRequestDetail `json:"details" validate:"required,min=1,dive"`
}

func (input *NewStoreRequest) validate(ctx context.Context, companyId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[StoreRequest](ctx, companyId, "number", input.Number, id); err != nil {
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

func CreateStoreRequest(ctx context.Context, input *NewStoreRequest) (*StoreRequest, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	requestDate := time.Now()
	if input.RequestDate != nil {
		requestDate = *input.RequestDate
	}
	requestedBy, _ := utils.GetUserIdFromContext(ctx)

	storeRequest := StoreRequest{
		CompanyId:     companyId,
		Number:        input.Number,
		Department:    input.Department,
		RequestDate:   requestDate,
		CurrentStatus: StoreRequestStatusDraft,
		RequestedBy:   requestedBy,
		Note:          input.Note,
	}
	for _, detail := range input.Details {
		storeRequest.Details = append(storeRequest.Details, StoreRequestDetail{
			CompanyId:  companyId,
			MaterialId: detail.MaterialId,
			Qty:        detail.Qty,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&storeRequest).Error; err != nil {
		return nil, err
	}
	return &storeRequest, nil
}

func UpdateStatusStoreRequest(ctx context.Context, id int, status StoreRequestStatus) (*StoreRequest, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if status == StoreRequestStatusFulfilled {
		return nil, utils.NewValidationError("store requests are fulfilled by posting a goods issue")
	}

	storeRequest, err := utils.FetchModel[StoreRequest](ctx, companyId, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("store request")
	}

	if !storeRequest.CurrentStatus.CanTransitionTo(status) {
		return nil, &utils.InvalidStateTransitionError{
			Document: "store request",
			From:     string(storeRequest.CurrentStatus),
			To:       string(status),
		}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(storeRequest).UpdateColumn("CurrentStatus", status).Error; err != nil {
		return nil, err
	}
	storeRequest.CurrentStatus = status
	return storeRequest, nil
}

func GetStoreRequest(ctx context.Context, id int) (*StoreRequest, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	storeRequest, err := utils.FetchModel[StoreRequest](ctx, companyId, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("store request")
	}
	return storeRequest, nil
}

func ListStoreRequest(ctx context.Context, status *StoreRequestStatus) ([]*StoreRequest, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId).Preload("Details")
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var results []*StoreRequest
	if err := dbCtx.Order("request_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func fetchStoreRequestForUpdate(tx *gorm.DB, companyId string, id int) (*StoreRequest, error) {
	var storeRequest StoreRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ?", companyId).
		First(&storeRequest, id).Error
	if err != nil {
		return nil, utils.NewNotFoundError("store request")
	}
	if err := tx.Where("company_id = ? AND store_request_id = ?", companyId, id).
		Find(&storeRequest.Details).Error; err != nil {
		return nil, err
	}
	return &storeRequest, nil
}
