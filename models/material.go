package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/utils"
)

// Material is a stockable item. Identity (id, code) is immutable once
// referenced by movements; descriptive fields stay editable.
type Material struct {
	ID         int       `gorm:"primary_key" json:"id"`
	CompanyId  string    `gorm:"index;not null" json:"company_id"`
	Code       string    `gorm:"size:50;not null;index" json:"code" binding:"required"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	CategoryId int       `gorm:"index;not null" json:"category_id"`
	UnitId     int       `gorm:"index;not null" json:"unit_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMaterial struct {
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	CategoryId int    `json:"category_id" validate:"required"`
	UnitId     int    `json:"unit_id" validate:"required"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewMaterial) validate(ctx context.Context, companyId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Material](ctx, companyId, "code", input.Code, id); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[MaterialCategory](ctx, companyId, input.CategoryId); err != nil {
		return utils.NewNotFoundError("category")
	}
	if err := utils.ValidateResourceId[UnitOfMeasure](ctx, companyId, input.UnitId); err != nil {
		return utils.NewNotFoundError("unit")
	}
	return nil
}

func CreateMaterial(ctx context.Context, input *NewMaterial) (*Material, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	material := Material{
		CompanyId:  companyId,
		Code:       input.Code,
		Name:       input.Name,
		CategoryId: input.CategoryId,
		UnitId:     input.UnitId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&material).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

func UpdateMaterial(ctx context.Context, id int, input *NewMaterial) (*Material, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	material, err := utils.FetchModel[Material](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(material).Updates(map[string]interface{}{
		"Code":       input.Code,
		"Name":       input.Name,
		"CategoryId": input.CategoryId,
		"UnitId":     input.UnitId,
	}).Error
	if err != nil {
		return nil, err
	}
	return material, nil
}

// DeleteMaterial refuses to delete a material that has ledger history; the
// movement log must stay reconstructible forever.
func DeleteMaterial(ctx context.Context, id int) (*Material, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	material, err := utils.FetchModel[Material](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[StockMovement](ctx, companyId, "material_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("material has stock movements")
	}
	count, err = utils.ResourceCountWhere[Tangki](ctx, companyId, "material_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("material is assigned to a tank")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Where("company_id = ? AND material_id = ?", companyId, id).Delete(&StockMaterial{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Delete(material).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	return material, tx.Commit().Error
}

func GetMaterial(ctx context.Context, id int) (*Material, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchModel[Material](ctx, companyId, id)
}

func ListMaterial(ctx context.Context, name *string) ([]*Material, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*Material
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
