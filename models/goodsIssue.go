package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GoodsIssue hands materials out of the warehouse against an approved store
// request. Sufficiency is checked for every line, with balance rows locked,
// before the first OUT movement is posted. A shortfall on any line rejects
// the whole issue.
type GoodsIssue struct {
	ID             int              `gorm:"primary_key" json:"id"`
	CompanyId      string           `gorm:"index:idx_goods_issue_company_number,unique,priority:1;not null" json:"company_id"`
	Number         string           `gorm:"size:50;not null;index:idx_goods_issue_company_number,unique,priority:2" json:"number"`
	StoreRequestId int              `gorm:"index;not null" json:"store_request_id"`
	IssueDate      time.Time        `gorm:"not null" json:"issue_date"`
	Note           string           `gorm:"type:text" json:"note"`
	Details        []GoodsIssueLine `gorm:"foreignKey:GoodsIssueId" json:"details"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

type GoodsIssueLine struct {
	ID           int             `gorm:"primary_key" json:"id"`
	CompanyId    string          `gorm:"index;not null" json:"company_id"`
	GoodsIssueId int             `gorm:"index;not null" json:"goods_issue_id"`
	MaterialId   int             `gorm:"index;not null" json:"material_id"`
	Qty          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
}

type NewGoodsIssueLine struct {
	MaterialId int             `json:"material_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
}

type NewGoodsIssue struct {
	Number         string              `json:"number" validate:"required"`
	StoreRequestId int                 `json:"store_request_id" validate:"required"`
	IssueDate      *time.Time          `json:"issue_date"`
	Note           string              `json:"note"`
	// Details defaults to the full requested quantities when empty.
	Details []NewGoodsIssueLine `json:"details" validate:"dive"`
}

// CreateGoodsIssueFromStoreRequest posts OUT movements for an approved store
// request and marks it Fulfilled, all in one transaction.
func CreateGoodsIssueFromStoreRequest(ctx context.Context, input *NewGoodsIssue) (*GoodsIssue, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[GoodsIssue](ctx, companyId, "number", input.Number, 0); err != nil {
		return nil, err
	}
	for _, line := range input.Details {
		if !line.Qty.IsPositive() {
			return nil, utils.NewValidationError("issue quantity must be positive")
		}
	}

	issueDate := time.Now()
	if input.IssueDate != nil {
		issueDate = *input.IssueDate
	}

	var issue GoodsIssue
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCompanyPostingLock(tx, companyId); err != nil {
			return err
		}
		defer ReleaseCompanyPostingLock(tx, companyId)

		storeRequest, err := fetchStoreRequestForUpdate(tx, companyId, input.StoreRequestId)
		if err != nil {
			return err
		}
		if storeRequest.CurrentStatus != StoreRequestStatusApproved {
			return &utils.InvalidStateTransitionError{
				Document: "store request",
				From:     string(storeRequest.CurrentStatus),
				To:       string(StoreRequestStatusFulfilled),
			}
		}

		lines := input.Details
		if len(lines) == 0 {
			for _, detail := range storeRequest.Details {
				lines = append(lines, NewGoodsIssueLine{
					MaterialId: detail.MaterialId,
					Qty:        detail.Qty,
				})
			}
		} else {
			requested := make(map[int]bool, len(storeRequest.Details))
			for _, detail := range storeRequest.Details {
				requested[detail.MaterialId] = true
			}
			for _, line := range lines {
				if !requested[line.MaterialId] {
					return utils.NewValidationError("issue line material is not on the store request")
				}
			}
		}

		// Sufficiency gate. Every balance row is locked and checked before
		// any OUT movement is posted, so a shortfall on the last line cannot
		// leave earlier lines issued.
		needed := make(map[int]decimal.Decimal, len(lines))
		order := make([]int, 0, len(lines))
		for _, line := range lines {
			if _, seen := needed[line.MaterialId]; !seen {
				order = append(order, line.MaterialId)
			}
			needed[line.MaterialId] = needed[line.MaterialId].Add(line.Qty)
		}
		for _, materialId := range order {
			stockMaterial, err := FirstOrCreateStockMaterialForUpdate(tx, companyId, materialId)
			if err != nil {
				return err
			}
			if err := CheckSufficientStock(stockMaterial.QtyOnHand, needed[materialId]); err != nil {
				return err
			}
		}

		issue = GoodsIssue{
			CompanyId:      companyId,
			Number:         input.Number,
			StoreRequestId: storeRequest.ID,
			IssueDate:      issueDate,
			Note:           input.Note,
		}
		for _, line := range lines {
			issue.Details = append(issue.Details, GoodsIssueLine{
				CompanyId:  companyId,
				MaterialId: line.MaterialId,
				Qty:        line.Qty,
			})
		}
		if err := tx.Create(&issue).Error; err != nil {
			return err
		}

		for _, line := range lines {
			_, err := recordStockMovement(tx, ctx, companyId, &NewStockMovement{
				MaterialId:      line.MaterialId,
				MovementType:    MovementTypeOut,
				Qty:             line.Qty,
				Reference:       issue.Number,
				TransactionTime: &issueDate,
			})
			if err != nil {
				return err
			}
		}

		return tx.Model(&StoreRequest{}).
			Where("company_id = ? AND id = ?", companyId, storeRequest.ID).
			UpdateColumn("current_status", StoreRequestStatusFulfilled).Error
	})
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func GetGoodsIssue(ctx context.Context, id int) (*GoodsIssue, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	issue, err := utils.FetchModel[GoodsIssue](ctx, companyId, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("goods issue")
	}
	return issue, nil
}

func ListGoodsIssue(ctx context.Context, storeRequestId *int) ([]*GoodsIssue, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId).Preload("Details")
	if storeRequestId != nil {
		dbCtx = dbCtx.Where("store_request_id = ?", *storeRequestId)
	}
	var results []*GoodsIssue
	if err := dbCtx.Order("issue_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
