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

// Tangki is a bulk liquid storage vessel (CPO, kernel oil, sludge). Its fill
// level is tracked by its own ledger, independent from warehouse stock.
// Invariant: 0 <= isi_saat_ini <= kapasitas, enforced at the transaction
// boundary rather than as a database constraint.
type Tangki struct {
	ID         int             `gorm:"primary_key" json:"id"`
	CompanyId  string          `gorm:"index;not null" json:"company_id"`
	Name       string          `gorm:"size:100;not null;index" json:"name" binding:"required"`
	MaterialId int             `gorm:"index;not null" json:"material_id"`
	Kapasitas  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"kapasitas"`
	IsiSaatIni decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"isi_saat_ini"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTangki struct {
	Name       string          `json:"name" validate:"required"`
	MaterialId int             `json:"material_id" validate:"required"`
	Kapasitas  decimal.Decimal `json:"kapasitas"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewTangki) validate(ctx context.Context, companyId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Kapasitas.IsPositive() {
		return utils.NewValidationError("kapasitas must be positive")
	}
	if err := utils.ValidateUnique[Tangki](ctx, companyId, "name", input.Name, id); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Material](ctx, companyId, input.MaterialId); err != nil {
		return utils.NewNotFoundError("material")
	}
	return nil
}

func CreateTangki(ctx context.Context, input *NewTangki) (*Tangki, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	tangki := Tangki{
		CompanyId:  companyId,
		Name:       input.Name,
		MaterialId: input.MaterialId,
		Kapasitas:  input.Kapasitas,
		IsiSaatIni: decimal.Zero,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&tangki).Error; err != nil {
		return nil, err
	}
	return &tangki, nil
}

func UpdateTangki(ctx context.Context, id int, input *NewTangki) (*Tangki, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	tangki, err := utils.FetchModel[Tangki](ctx, companyId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("tangki")
	}

	// shrinking below the current fill would break the capacity invariant
	if input.Kapasitas.LessThan(tangki.IsiSaatIni) {
		return nil, utils.NewValidationError("kapasitas cannot be less than current fill %s", tangki.IsiSaatIni)
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(tangki).Updates(map[string]interface{}{
		"Name":       input.Name,
		"MaterialId": input.MaterialId,
		"Kapasitas":  input.Kapasitas,
	}).Error
	if err != nil {
		return nil, err
	}
	return tangki, nil
}

func DeleteTangki(ctx context.Context, id int) (*Tangki, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	tangki, err := utils.FetchModel[Tangki](ctx, companyId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("tangki")
	}

	if !tangki.IsiSaatIni.IsZero() {
		return nil, utils.NewValidationError("tangki still holds %s; empty it before deleting", tangki.IsiSaatIni)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(tangki).Error; err != nil {
		return nil, err
	}
	return tangki, nil
}

func GetTangki(ctx context.Context, id int) (*Tangki, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	tangki, err := utils.FetchModel[Tangki](ctx, companyId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("tangki")
	}
	return tangki, nil
}

func ListTangki(ctx context.Context) ([]*Tangki, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchAllModels[Tangki](ctx, companyId)
}

// fetchTangkiForUpdate locks the tank row for the posting transaction.
func fetchTangkiForUpdate(tx *gorm.DB, companyId string, id int) (*Tangki, error) {
	var tangki Tangki
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ?", companyId).
		First(&tangki, id).Error
	if err != nil {
		return nil, utils.NewNotFoundError("tangki")
	}
	return &tangki, nil
}
