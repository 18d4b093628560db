package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockTangkiTransaction is the append-only tank ledger. A transfer between
// two tanks is two rows (KELUAR on source, MASUK on destination) sharing one
// transfer_pair_id; both are written in the same transaction or not at all.
type StockTangkiTransaction struct {
	ID              int                   `gorm:"primary_key" json:"id"`
	CompanyId       string                `gorm:"index:idx_stock_tangki_company_tangki,priority:1;not null" json:"company_id"`
	TangkiId        int                   `gorm:"index:idx_stock_tangki_company_tangki,priority:2;not null" json:"tangki_id"`
	TransactionType TangkiTransactionType `gorm:"type:enum('MASUK','KELUAR','ADJUSTMENT');not null" json:"transaction_type"`
	Qty             decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"qty"`
	Reference       string                `gorm:"size:100;index" json:"reference"`
	Note            string                `gorm:"type:text" json:"note"`
	OperatorId      int                   `gorm:"not null" json:"operator_id"`
	OperatorName    string                `gorm:"size:100" json:"operator_name"`
	TransferPairId  *string               `gorm:"size:36;index" json:"transfer_pair_id"`
	TransactionTime time.Time             `gorm:"index;not null" json:"transaction_time"`
	CorrelationId   string                `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time             `gorm:"autoCreateTime" json:"created_at"`
}

func (st *StockTangkiTransaction) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("tangki transactions are append-only")
}

func (st *StockTangkiTransaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("tangki transactions are append-only")
}

type NewTangkiTransaction struct {
	TangkiId        int                   `json:"tangki_id" validate:"required"`
	TransactionType TangkiTransactionType `json:"transaction_type" validate:"required"`
	Qty             decimal.Decimal       `json:"qty"`
	Reference       string                `json:"reference"`
	Note            string                `json:"note"`
	TransactionTime *time.Time            `json:"transaction_time"`
}

func (input *NewTangkiTransaction) validate() error {
	switch input.TransactionType {
	case TangkiTransactionTypeMasuk, TangkiTransactionTypeKeluar:
		if !input.Qty.IsPositive() {
			return utils.NewValidationError("quantity must be positive")
		}
	case TangkiTransactionTypeAdjustment:
		if input.Qty.IsZero() {
			return utils.NewValidationError("adjustment quantity must not be zero")
		}
	default:
		return utils.NewValidationError("invalid tangki transaction type")
	}
	return nil
}

// recordTangkiTransaction posts one ledger row against an already-locked
// tank and updates its fill level. Both guards run here: outgoing quantities
// must not drive the fill negative, incoming ones must not exceed capacity.
func recordTangkiTransaction(tx *gorm.DB, ctx context.Context, tangki *Tangki, input *NewTangkiTransaction, transferPairId *string) (*StockTangkiTransaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	delta := tangkiDelta(input.TransactionType, input.Qty)
	if delta.IsNegative() {
		if err := CheckSufficientStock(tangki.IsiSaatIni, delta.Neg()); err != nil {
			return nil, err
		}
	} else {
		if err := CheckTangkiCapacity(tangki.Kapasitas, tangki.IsiSaatIni, delta); err != nil {
			return nil, err
		}
	}

	operatorId, _ := utils.GetUserIdFromContext(ctx)
	operatorName, _ := utils.GetUserNameFromContext(ctx)
	transactionTime := time.Now()
	if input.TransactionTime != nil {
		transactionTime = *input.TransactionTime
	}

	transaction := StockTangkiTransaction{
		CompanyId:       tangki.CompanyId,
		TangkiId:        tangki.ID,
		TransactionType: input.TransactionType,
		Qty:             input.Qty,
		Reference:       input.Reference,
		Note:            input.Note,
		OperatorId:      operatorId,
		OperatorName:    operatorName,
		TransferPairId:  transferPairId,
		TransactionTime: transactionTime,
		CorrelationId:   correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&transaction).Error; err != nil {
		return nil, err
	}

	newIsi := tangki.IsiSaatIni.Add(delta)
	if err := tx.Model(tangki).UpdateColumn("IsiSaatIni", newIsi).Error; err != nil {
		return nil, err
	}
	tangki.IsiSaatIni = newIsi

	return &transaction, nil
}

// RecordTangkiTransaction posts a single MASUK/KELUAR/ADJUSTMENT against one
// tank under its own transaction.
func RecordTangkiTransaction(ctx context.Context, input *NewTangkiTransaction) (*StockTangkiTransaction, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	tangki, err := fetchTangkiForUpdate(tx, companyId, input.TangkiId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	transaction, err := recordTangkiTransaction(tx, ctx, tangki, input, nil)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	return transaction, tx.Commit().Error
}

type NewTangkiTransfer struct {
	SourceTangkiId      int             `json:"source_tangki_id" validate:"required"`
	DestinationTangkiId int             `json:"destination_tangki_id" validate:"required"`
	Qty                 decimal.Decimal `json:"qty"`
	Reference           string          `json:"reference"`
	Note                string          `json:"note"`
	TransactionTime     *time.Time      `json:"transaction_time"`
}

// TransferTangkiStock moves qty from one tank to another as one atomic unit:
// KELUAR on the source and MASUK on the destination, linked by a shared
// transfer pair id. Tanks are locked in id order so two opposing transfers
// cannot deadlock.
func TransferTangkiStock(ctx context.Context, input *NewTangkiTransfer) ([]*StockTangkiTransaction, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.SourceTangkiId == input.DestinationTangkiId {
		return nil, utils.NewValidationError("source and destination tangki must differ")
	}
	if !input.Qty.IsPositive() {
		return nil, utils.NewValidationError("quantity must be positive")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	firstId, secondId := input.SourceTangkiId, input.DestinationTangkiId
	if secondId < firstId {
		firstId, secondId = secondId, firstId
	}
	locked := map[int]*Tangki{}
	for _, id := range []int{firstId, secondId} {
		tangki, err := fetchTangkiForUpdate(tx, companyId, id)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		locked[id] = tangki
	}
	source := locked[input.SourceTangkiId]
	destination := locked[input.DestinationTangkiId]

	pairId := uuid.NewString()

	keluar, err := recordTangkiTransaction(tx, ctx, source, &NewTangkiTransaction{
		TangkiId:        source.ID,
		TransactionType: TangkiTransactionTypeKeluar,
		Qty:             input.Qty,
		Reference:       input.Reference,
		Note:            input.Note,
		TransactionTime: input.TransactionTime,
	}, &pairId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	masuk, err := recordTangkiTransaction(tx, ctx, destination, &NewTangkiTransaction{
		TangkiId:        destination.ID,
		TransactionType: TangkiTransactionTypeMasuk,
		Qty:             input.Qty,
		Reference:       input.Reference,
		Note:            input.Note,
		TransactionTime: input.TransactionTime,
	}, &pairId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	return []*StockTangkiTransaction{keluar, masuk}, tx.Commit().Error
}

// TangkiTransactionFilter narrows history queries. All fields optional.
type TangkiTransactionFilter struct {
	TangkiId        *int
	TransactionType *TangkiTransactionType
	DateFrom        *time.Time
	DateTo          *time.Time
}

func ListTangkiTransaction(ctx context.Context, filter *TangkiTransactionFilter) ([]*StockTangkiTransaction, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if filter != nil {
		if filter.TangkiId != nil {
			dbCtx = dbCtx.Where("tangki_id = ?", *filter.TangkiId)
		}
		if filter.TransactionType != nil {
			dbCtx = dbCtx.Where("transaction_type = ?", *filter.TransactionType)
		}
		if filter.DateFrom != nil {
			dbCtx = dbCtx.Where("transaction_time >= ?", *filter.DateFrom)
		}
		if filter.DateTo != nil {
			dbCtx = dbCtx.Where("transaction_time <= ?", *filter.DateTo)
		}
	}

	var results []*StockTangkiTransaction
	if err := dbCtx.Order("transaction_time, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// TangkiSummaryRow pairs per-type totals with the fill snapshot; the net
// adjustment keeps isi_saat_ini == total_masuk - total_keluar + total_adjustment.
type TangkiSummaryRow struct {
	TangkiId        int             `json:"tangki_id"`
	TangkiName      string          `json:"tangki_name"`
	Kapasitas       decimal.Decimal `json:"kapasitas"`
	TotalMasuk      decimal.Decimal `json:"total_masuk"`
	TotalKeluar     decimal.Decimal `json:"total_keluar"`
	TotalAdjustment decimal.Decimal `json:"total_adjustment"`
	IsiSaatIni      decimal.Decimal `json:"isi_saat_ini"`
}

func GetTangkiStockSummary(ctx context.Context) ([]*TangkiSummaryRow, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	sql := `
SELECT
    t.id AS tangki_id,
    t.name AS tangki_name,
    t.kapasitas,
    COALESCE(l.total_masuk, 0) AS total_masuk,
    COALESCE(l.total_keluar, 0) AS total_keluar,
    COALESCE(l.total_adjustment, 0) AS total_adjustment,
    t.isi_saat_ini
FROM tangkis t
LEFT JOIN (
    SELECT
        tangki_id,
        SUM(CASE WHEN transaction_type = 'MASUK' THEN qty ELSE 0 END) AS total_masuk,
        SUM(CASE WHEN transaction_type = 'KELUAR' THEN qty ELSE 0 END) AS total_keluar,
        SUM(CASE WHEN transaction_type = 'ADJUSTMENT' THEN qty ELSE 0 END) AS total_adjustment
    FROM stock_tangki_transactions
    WHERE company_id = ?
    GROUP BY tangki_id
) l ON l.tangki_id = t.id
WHERE t.company_id = ?
ORDER BY t.name;
`

	var rows []*TangkiSummaryRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, companyId, companyId).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
