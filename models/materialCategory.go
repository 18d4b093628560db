package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/utils"
)

type MaterialCategory struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMaterialCategory struct {
	Name string `json:"name" validate:"required"`
}

func CreateMaterialCategory(ctx context.Context, input *NewMaterialCategory) (*MaterialCategory, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[MaterialCategory](ctx, companyId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	category := MaterialCategory{
		CompanyId: companyId,
		Name:      input.Name,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func UpdateMaterialCategory(ctx context.Context, id int, input *NewMaterialCategory) (*MaterialCategory, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[MaterialCategory](ctx, companyId, "name", input.Name, id); err != nil {
		return nil, err
	}

	category, err := utils.FetchModel[MaterialCategory](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(category).Update("Name", input.Name).Error; err != nil {
		return nil, err
	}
	return category, nil
}

func DeleteMaterialCategory(ctx context.Context, id int) (*MaterialCategory, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	category, err := utils.FetchModel[MaterialCategory](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// check if category is used
	count, err := utils.ResourceCountWhere[Material](ctx, companyId, "category_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("category has materials")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(category).Error; err != nil {
		return nil, err
	}
	return category, nil
}

func ListMaterialCategory(ctx context.Context) ([]*MaterialCategory, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchAllModels[MaterialCategory](ctx, companyId)
}
