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

// GoodsReceipt records an inbound delivery against an approved purchase
// order. Posting a receipt writes one IN stock movement per line and
// completes the order, all in one transaction.
type GoodsReceipt struct {
	ID              int                `gorm:"primary_key" json:"id"`
	CompanyId       string             `gorm:"index:idx_goods_receipt_company_number,unique,priority:1;not null" json:"company_id"`
	Number          string             `gorm:"size:50;not null;index:idx_goods_receipt_company_number,unique,priority:2" json:"number"`
	PurchaseOrderId int                `gorm:"index;not null" json:"purchase_order_id"`
	ReceiveDate     time.Time          `gorm:"not null" json:"receive_date"`
	Note            string             `gorm:"type:text" json:"note"`
	Details         []GoodsReceiptLine `gorm:"foreignKey:GoodsReceiptId" json:"details"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

type GoodsReceiptLine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	CompanyId      string          `gorm:"index;not null" json:"company_id"`
	GoodsReceiptId int             `gorm:"index;not null" json:"goods_receipt_id"`
	MaterialId     int             `gorm:"index;not null" json:"material_id"`
	Qty            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
}

type NewGoodsReceiptLine struct {
	MaterialId int             `json:"material_id" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
}

type NewGoodsReceipt struct {
	Number          string                `json:"number" validate:"required"`
	PurchaseOrderId int                   `json:"purchase_order_id" validate:"required"`
	ReceiveDate     *time.Time            `json:"receive_date"`
	Note            string                `json:"note"`
	Details         []NewGoodsReceiptLine `json:"details" validate:"required,min=1,dive"`
}

// CreateGoodsReceiptFromPurchaseOrder posts a receipt against an approved
// purchase order. The order row is locked for the duration, each line posts
// an IN movement referencing the receipt number, and the order moves to
// Completed. Any failure, including an unknown material on a later line,
// rolls the whole receipt back.
func CreateGoodsReceiptFromPurchaseOrder(ctx context.Context, input *NewGoodsReceipt) (*GoodsReceipt, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[GoodsReceipt](ctx, companyId, "number", input.Number, 0); err != nil {
		return nil, err
	}
	for _, line := range input.Details {
		if !line.Qty.IsPositive() {
			return nil, utils.NewValidationError("receipt quantity must be positive")
		}
	}

	receiveDate := time.Now()
	if input.ReceiveDate != nil {
		receiveDate = *input.ReceiveDate
	}

	var receipt GoodsReceipt
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCompanyPostingLock(tx, companyId); err != nil {
			return err
		}
		defer ReleaseCompanyPostingLock(tx, companyId)

		purchaseOrder, err := fetchPurchaseOrderForUpdate(tx, companyId, input.PurchaseOrderId)
		if err != nil {
			return err
		}
		if purchaseOrder.CurrentStatus != PurchaseOrderStatusApproved {
			return &utils.InvalidStateTransitionError{
				Document: "purchase order",
				From:     string(purchaseOrder.CurrentStatus),
				To:       string(PurchaseOrderStatusCompleted),
			}
		}

		receipt = GoodsReceipt{
			CompanyId:       companyId,
			Number:          input.Number,
			PurchaseOrderId: purchaseOrder.ID,
			ReceiveDate:     receiveDate,
			Note:            input.Note,
		}
		for _, line := range input.Details {
			receipt.Details = append(receipt.Details, GoodsReceiptLine{
				CompanyId:  companyId,
				MaterialId: line.MaterialId,
				Qty:        line.Qty,
			})
		}
		if err := tx.Create(&receipt).Error; err != nil {
			return err
		}

		for _, line := range input.Details {
			var count int64
			err := tx.Model(&Material{}).
				Where("company_id = ? AND id = ?", companyId, line.MaterialId).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count == 0 {
				return utils.NewNotFoundError("material")
			}

			_, err = recordStockMovement(tx, ctx, companyId, &NewStockMovement{
				MaterialId:      line.MaterialId,
				MovementType:    MovementTypeIn,
				Qty:             line.Qty,
				Reference:       receipt.Number,
				TransactionTime: &receiveDate,
			})
			if err != nil {
				return err
			}
		}

		return tx.Model(&PurchaseOrder{}).
			Where("company_id = ? AND id = ?", companyId, purchaseOrder.ID).
			UpdateColumn("current_status", PurchaseOrderStatusCompleted).Error
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func GetGoodsReceipt(ctx context.Context, id int) (*GoodsReceipt, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	receipt, err := utils.FetchModel[GoodsReceipt](ctx, companyId, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("goods receipt")
	}
	return receipt, nil
}

func ListGoodsReceipt(ctx context.Context, purchaseOrderId *int) ([]*GoodsReceipt, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId).Preload("Details")
	if purchaseOrderId != nil {
		dbCtx = dbCtx.Where("purchase_order_id = ?", *purchaseOrderId)
	}
	var results []*GoodsReceipt
	if err := dbCtx.Order("receive_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
