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

// StockMaterial is the current-balance snapshot for a (company, material)
// pair. Invariant: qty_on_hand always equals the running sum of the
// material's movement deltas. It is written ONLY inside the movement-posting
// transaction, after the row has been locked.
type StockMaterial struct {
	ID         int             `gorm:"primary_key" json:"id"`
	CompanyId  string          `gorm:"index:idx_stock_material_company_material,unique,priority:1;not null" json:"company_id"`
	MaterialId int             `gorm:"index:idx_stock_material_company_material,unique,priority:2;not null" json:"material_id"`
	QtyOnHand  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_on_hand"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FirstOrCreateStockMaterialForUpdate finds or creates the balance row for
// (company, material) and takes a FOR UPDATE lock on it, serializing all
// movement postings against the same material.
func FirstOrCreateStockMaterialForUpdate(tx *gorm.DB, companyId string, materialId int) (*StockMaterial, error) {
	stockMaterial := StockMaterial{
		CompanyId:  companyId,
		MaterialId: materialId,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND material_id = ?", companyId, materialId).
		FirstOrCreate(&stockMaterial)
	if result.Error != nil {
		return nil, result.Error
	}
	return &stockMaterial, nil
}

func GetStockBalance(ctx context.Context, materialId int) (decimal.Decimal, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return decimal.Zero, errors.New("company id is required")
	}

	if err := utils.ValidateResourceId[Material](ctx, companyId, materialId); err != nil {
		return decimal.Zero, utils.NewNotFoundError("material")
	}

	db := config.GetDB()
	var stockMaterial StockMaterial
	err := db.WithContext(ctx).
		Where("company_id = ? AND material_id = ?", companyId, materialId).
		First(&stockMaterial).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// no movements yet
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return stockMaterial.QtyOnHand, nil
}

func ListStockMaterial(ctx context.Context) ([]*StockMaterial, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchAllModels[StockMaterial](ctx, companyId)
}
