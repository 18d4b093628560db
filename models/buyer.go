package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/utils"
)

// Buyer purchases mill output (CPO, kernel). Master data only; sales
// documents are outside this service.
type Buyer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	Code      string    `gorm:"size:50;not null" json:"code" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Address   string    `gorm:"type:text" json:"address"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBuyer struct {
	Code    string `json:"code" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (input *NewBuyer) validate(ctx context.Context, companyId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Buyer](ctx, companyId, "code", input.Code, id); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Buyer](ctx, companyId, "name", input.Name, id); err != nil {
		return err
	}
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.NewValidationError("invalid phone number")
		}
	}
	return nil
}

func CreateBuyer(ctx context.Context, input *NewBuyer) (*Buyer, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	buyer := Buyer{
		CompanyId: companyId,
		Code:      input.Code,
		Name:      input.Name,
		Phone:     input.Phone,
		Address:   input.Address,
		IsActive:  utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&buyer).Error; err != nil {
		return nil, err
	}
	return &buyer, nil
}

func UpdateBuyer(ctx context.Context, id int, input *NewBuyer) (*Buyer, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	buyer, err := utils.FetchModel[Buyer](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(buyer).Updates(map[string]interface{}{
		"Code":    input.Code,
		"Name":    input.Name,
		"Phone":   input.Phone,
		"Address": input.Address,
	}).Error
	if err != nil {
		return nil, err
	}
	return buyer, nil
}

func DeleteBuyer(ctx context.Context, id int) (*Buyer, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	buyer, err := utils.FetchModel[Buyer](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(buyer).Error; err != nil {
		return nil, err
	}
	return buyer, nil
}

func ListBuyer(ctx context.Context, name *string) ([]*Buyer, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*Buyer
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
