package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/utils"
)

type UnitOfMeasure struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CompanyId    string    `gorm:"index;not null" json:"company_id"`
	Name         string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Abbreviation string    `gorm:"size:20;not null" json:"abbreviation"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUnitOfMeasure struct {
	Name         string `json:"name" validate:"required"`
	Abbreviation string `json:"abbreviation" validate:"required"`
}

func CreateUnitOfMeasure(ctx context.Context, input *NewUnitOfMeasure) (*UnitOfMeasure, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[UnitOfMeasure](ctx, companyId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	unit := UnitOfMeasure{
		CompanyId:    companyId,
		Name:         input.Name,
		Abbreviation: input.Abbreviation,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func DeleteUnitOfMeasure(ctx context.Context, id int) (*UnitOfMeasure, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	unit, err := utils.FetchModel[UnitOfMeasure](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Material](ctx, companyId, "unit_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("unit has materials")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(unit).Error; err != nil {
		return nil, err
	}
	return unit, nil
}

func ListUnitOfMeasure(ctx context.Context) ([]*UnitOfMeasure, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchAllModels[UnitOfMeasure](ctx, companyId)
}
