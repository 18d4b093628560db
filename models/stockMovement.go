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

// StockMovement is the append-only warehouse stock ledger. Rows are never
// updated or deleted; corrections are posted as new ADJUSTMENT rows.
// Reporting orders by transaction_time; balance replay orders by id.
type StockMovement struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CompanyId       string          `gorm:"index:idx_stock_movement_company_material,priority:1;not null" json:"company_id"`
	MaterialId      int             `gorm:"index:idx_stock_movement_company_material,priority:2;not null" json:"material_id"`
	MovementType    MovementType    `gorm:"type:enum('IN','OUT','ADJUSTMENT');not null" json:"movement_type"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Reference       string          `gorm:"size:100;index" json:"reference"`
	Note            string          `gorm:"type:text" json:"note"`
	OperatorId      int             `gorm:"not null" json:"operator_id"`
	OperatorName    string          `gorm:"size:100" json:"operator_name"`
	TransactionTime time.Time       `gorm:"index;not null" json:"transaction_time"`
	CorrelationId   string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeUpdate keeps the ledger append-only at the ORM layer too.
func (sm *StockMovement) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("stock movements are append-only")
}

func (sm *StockMovement) BeforeDelete(tx *gorm.DB) error {
	return errors.New("stock movements are append-only")
}

type NewStockMovement struct {
	MaterialId      int             `json:"material_id" validate:"required"`
	MovementType    MovementType    `json:"movement_type" validate:"required"`
	Qty             decimal.Decimal `json:"qty"`
	Reference       string          `json:"reference"`
	Note            string          `json:"note"`
	TransactionTime *time.Time      `json:"transaction_time"`
}

func (input *NewStockMovement) validate() error {
	switch input.MovementType {
	case MovementTypeIn, MovementTypeOut:
		if !input.Qty.IsPositive() {
			return utils.NewValidationError("quantity must be positive")
		}
	case MovementTypeAdjustment:
		if input.Qty.IsZero() {
			return utils.NewValidationError("adjustment quantity must not be zero")
		}
	default:
		return utils.NewValidationError("invalid movement type")
	}
	return nil
}

// recordStockMovement posts one ledger row and updates the balance snapshot
// inside the caller's transaction. The balance row is locked before the
// guard runs, so concurrent outgoing movements serialize instead of
// double-spending stock.
func recordStockMovement(tx *gorm.DB, ctx context.Context, companyId string, input *NewStockMovement) (*StockMovement, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	stockMaterial, err := FirstOrCreateStockMaterialForUpdate(tx, companyId, input.MaterialId)
	if err != nil {
		return nil, err
	}

	delta := movementDelta(input.MovementType, input.Qty)
	if delta.IsNegative() {
		if err := CheckSufficientStock(stockMaterial.QtyOnHand, delta.Neg()); err != nil {
			return nil, err
		}
	}

	operatorId, _ := utils.GetUserIdFromContext(ctx)
	operatorName, _ := utils.GetUserNameFromContext(ctx)
	transactionTime := time.Now()
	if input.TransactionTime != nil {
		transactionTime = *input.TransactionTime
	}

	movement := StockMovement{
		CompanyId:       companyId,
		MaterialId:      input.MaterialId,
		MovementType:    input.MovementType,
		Qty:             input.Qty,
		Reference:       input.Reference,
		Note:            input.Note,
		OperatorId:      operatorId,
		OperatorName:    operatorName,
		TransactionTime: transactionTime,
		CorrelationId:   correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, err
	}

	newQty := stockMaterial.QtyOnHand.Add(delta)
	if err := tx.Model(stockMaterial).UpdateColumn("QtyOnHand", newQty).Error; err != nil {
		return nil, err
	}

	return &movement, nil
}

// RecordStockMovement is the single-movement entry point (manual IN/OUT/
// ADJUSTMENT postings). Document workflows post through recordStockMovement
// under their own transaction.
func RecordStockMovement(ctx context.Context, input *NewStockMovement) (*StockMovement, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := utils.ValidateResourceId[Material](ctx, companyId, input.MaterialId); err != nil {
		return nil, utils.NewNotFoundError("material")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	movement, err := recordStockMovement(tx, ctx, companyId, input)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	return movement, tx.Commit().Error
}

// StockMovementFilter narrows history queries. All fields optional.
type StockMovementFilter struct {
	MaterialId   *int
	MovementType *MovementType
	Reference    *string
	DateFrom     *time.Time
	DateTo       *time.Time
}

func ListStockMovement(ctx context.Context, filter *StockMovementFilter) ([]*StockMovement, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if filter != nil {
		if filter.MaterialId != nil {
			dbCtx = dbCtx.Where("material_id = ?", *filter.MaterialId)
		}
		if filter.MovementType != nil {
			dbCtx = dbCtx.Where("movement_type = ?", *filter.MovementType)
		}
		if filter.Reference != nil && *filter.Reference != "" {
			dbCtx = dbCtx.Where("reference = ?", *filter.Reference)
		}
		if filter.DateFrom != nil {
			dbCtx = dbCtx.Where("transaction_time >= ?", *filter.DateFrom)
		}
		if filter.DateTo != nil {
			dbCtx = dbCtx.Where("transaction_time <= ?", *filter.DateTo)
		}
	}

	var results []*StockMovement
	if err := dbCtx.Order("transaction_time, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// StockSummaryRow pairs per-type movement totals with the balance snapshot.
// total_adjustment is the NET signed adjustment, so for every row
// current_balance == total_in - total_out + total_adjustment.
type StockSummaryRow struct {
	MaterialId      int             `json:"material_id"`
	MaterialCode    string          `json:"material_code"`
	MaterialName    string          `json:"material_name"`
	TotalIn         decimal.Decimal `json:"total_in"`
	TotalOut        decimal.Decimal `json:"total_out"`
	TotalAdjustment decimal.Decimal `json:"total_adjustment"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
}

func GetStockSummary(ctx context.Context) ([]*StockSummaryRow, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	sql := `
SELECT
    m.id AS material_id,
    m.code AS material_code,
    m.name AS material_name,
    COALESCE(l.total_in, 0) AS total_in,
    COALESCE(l.total_out, 0) AS total_out,
    COALESCE(l.total_adjustment, 0) AS total_adjustment,
    COALESCE(sm.qty_on_hand, 0) AS current_balance
FROM materials m
LEFT JOIN (
    SELECT
        material_id,
        SUM(CASE WHEN movement_type = 'IN' THEN qty ELSE 0 END) AS total_in,
        SUM(CASE WHEN movement_type = 'OUT' THEN qty ELSE 0 END) AS total_out,
        SUM(CASE WHEN movement_type = 'ADJUSTMENT' THEN qty ELSE 0 END) AS total_adjustment
    FROM stock_movements
    WHERE company_id = ?
    GROUP BY material_id
) l ON l.material_id = m.id
LEFT JOIN stock_materials sm ON sm.material_id = m.id AND sm.company_id = ?
WHERE m.company_id = ?
ORDER BY m.name;
`

	var rows []*StockSummaryRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, companyId, companyId, companyId).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
